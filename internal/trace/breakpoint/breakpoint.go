// Package breakpoint installs a one-shot software breakpoint at main and
// runs the tracee until it traps there, per §4.4 of the tracer design.
package breakpoint

import (
	"fmt"

	"github.com/gwatch/gwatch/internal/trace/tracee"
)

// brkInstruction is the AArch64 unconditional BRK #0 encoding, patched into
// the low 32 bits of the 64-bit word at mainAddr.
const brkInstruction = 0xD4200000

// NeverReachedMainError reports that the tracee exited before the
// breakpoint at main was hit.
type NeverReachedMainError struct {
	ExitCode int
}

func (e *NeverReachedMainError) Error() string {
	return fmt.Sprintf("breakpoint: tracee exited with status %d before reaching main", e.ExitCode)
}

// UnexpectedStopError reports a stop that was not the expected SIGTRAP trap
// while waiting for the breakpoint to hit.
type UnexpectedStopError struct {
	Status tracee.Status
}

func (e *UnexpectedStopError) Error() string {
	return fmt.Sprintf("breakpoint: unexpected tracee status while waiting for main: %s", e.Status)
}

// RunToMain installs a software breakpoint at mainAddr, continues the
// tracee until it traps there, restores the original instruction, and
// rewinds the program counter to mainAddr.
//
// On entry the tracee must be stopped at its initial stop (post-exec,
// pre-any-user-instruction). RunToMain uses a guard-style deferred restore
// so that every exit path — including an error returned after the poke —
// leaves the original instruction back in place when it is still possible
// to do so.
func RunToMain(ctl tracee.Controller, mainAddr uint64) error {
	original, err := ctl.PeekWord(mainAddr)
	if err != nil {
		return fmt.Errorf("breakpoint: peek main word: %w", err)
	}

	patched := (original &^ 0xFFFFFFFF) | brkInstruction
	if err := ctl.PokeWord(mainAddr, patched); err != nil {
		return fmt.Errorf("breakpoint: install trap: %w", err)
	}

	// Guard: whatever happens from here, best-effort restore the original
	// instruction before returning so a half-patched main never survives a
	// failed attempt. The success path below performs its own checked
	// restore and disarms this guard first.
	instructionRestored := false
	defer func() {
		if !instructionRestored {
			_ = ctl.PokeWord(mainAddr, original)
		}
	}()

	if err := ctl.Continue(0); err != nil {
		return fmt.Errorf("breakpoint: continue to main: %w", err)
	}

	status, err := ctl.WaitForStop()
	if err != nil {
		return fmt.Errorf("breakpoint: wait for main: %w", err)
	}

	switch status.Kind {
	case tracee.Exited, tracee.Signaled:
		return &NeverReachedMainError{ExitCode: status.Signal}
	}
	if !status.IsTrap() {
		return &UnexpectedStopError{Status: status}
	}

	// Restore now, before rewinding PC, so that a failure writing registers
	// still leaves the instruction stream intact.
	if err := ctl.PokeWord(mainAddr, original); err != nil {
		return fmt.Errorf("breakpoint: restore original instruction: %w", err)
	}
	instructionRestored = true

	regs, err := ctl.GetGeneralRegs()
	if err != nil {
		return fmt.Errorf("breakpoint: read registers: %w", err)
	}
	regs.PC = mainAddr
	if err := ctl.SetGeneralRegs(regs); err != nil {
		return fmt.Errorf("breakpoint: rewind PC: %w", err)
	}

	return nil
}
