package breakpoint_test

import (
	"errors"
	"testing"

	"github.com/gwatch/gwatch/internal/trace/breakpoint"
	"github.com/gwatch/gwatch/internal/trace/tracee"
)

// fakeController is a minimal in-memory tracee.Controller used to exercise
// the breakpoint driver without a real ptrace backend.
type fakeController struct {
	mem        map[uint64]uint64
	pokes      []uint64 // values poked at mainAddr, in order
	regs       tracee.GeneralRegs
	continued  bool
	stopStatus tracee.Status
	stopErr    error
	pokeErrOn  uint64 // if nonzero, PokeWord at this address fails once
	pokeFailed bool
}

func newFakeController(mainAddr, original uint64) *fakeController {
	return &fakeController{
		mem:        map[uint64]uint64{mainAddr: original},
		stopStatus: tracee.Status{Kind: tracee.Stopped, Signal: 5},
	}
}

func (f *fakeController) WaitForStop() (tracee.Status, error) { return f.stopStatus, f.stopErr }
func (f *fakeController) PeekWord(addr uint64) (uint64, error) { return f.mem[addr], nil }
func (f *fakeController) PokeWord(addr, value uint64) error {
	if f.pokeErrOn != 0 && addr == f.pokeErrOn && !f.pokeFailed {
		f.pokeFailed = true
		return errors.New("simulated poke failure")
	}
	f.mem[addr] = value
	f.pokes = append(f.pokes, value)
	return nil
}
func (f *fakeController) GetGeneralRegs() (tracee.GeneralRegs, error) { return f.regs, nil }
func (f *fakeController) SetGeneralRegs(r tracee.GeneralRegs) error {
	f.regs = r
	return nil
}
func (f *fakeController) GetDebugRegs() ([]byte, error) { return nil, errors.New("not implemented") }
func (f *fakeController) SetDebugRegs([]byte) error     { return errors.New("not implemented") }
func (f *fakeController) SingleStep(sig int) error      { return nil }
func (f *fakeController) Continue(sig int) error {
	f.continued = true
	return nil
}

var _ tracee.Controller = (*fakeController)(nil)

func TestRunToMain_Success(t *testing.T) {
	const mainAddr = 0x401000
	const original = 0x1234567890ABCDEF
	ctl := newFakeController(mainAddr, original)

	if err := breakpoint.RunToMain(ctl, mainAddr); err != nil {
		t.Fatalf("RunToMain: %v", err)
	}

	if !ctl.continued {
		t.Error("expected Continue to be called")
	}
	if ctl.mem[mainAddr] != original {
		t.Errorf("memory at main = 0x%x, want original 0x%x (restored)", ctl.mem[mainAddr], original)
	}
	if ctl.regs.PC != mainAddr {
		t.Errorf("PC = 0x%x, want 0x%x", ctl.regs.PC, mainAddr)
	}
}

func TestRunToMain_PatchesLowBitsOnly(t *testing.T) {
	const mainAddr = 0x401000
	const original = 0x1111111122222222
	ctl := newFakeController(mainAddr, original)

	if err := breakpoint.RunToMain(ctl, mainAddr); err != nil {
		t.Fatalf("RunToMain: %v", err)
	}

	if len(ctl.pokes) != 2 {
		t.Fatalf("expected exactly 2 pokes (patch, restore), got %d: %#x", len(ctl.pokes), ctl.pokes)
	}
	patched := ctl.pokes[0]
	wantHigh := uint64(original &^ 0xFFFFFFFF)
	if patched&^0xFFFFFFFF != wantHigh {
		t.Errorf("high 32 bits changed: got 0x%x, want 0x%x", patched&^0xFFFFFFFF, wantHigh)
	}
	if patched&0xFFFFFFFF != 0xD4200000 {
		t.Errorf("low 32 bits = 0x%x, want BRK encoding 0xD4200000", patched&0xFFFFFFFF)
	}
	if restored := ctl.pokes[1]; restored != original {
		t.Errorf("restore poke = 0x%x, want original 0x%x", restored, original)
	}
}

func TestRunToMain_NeverReachedMain_Exited(t *testing.T) {
	const mainAddr = 0x401000
	ctl := newFakeController(mainAddr, 0xdead)
	ctl.stopStatus = tracee.Status{Kind: tracee.Exited, Signal: 1}

	err := breakpoint.RunToMain(ctl, mainAddr)
	var nrm *breakpoint.NeverReachedMainError
	if !errorsAs(err, &nrm) {
		t.Fatalf("expected NeverReachedMainError, got %v", err)
	}
	if nrm.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", nrm.ExitCode)
	}
	// Breakpoint word must still be restored even on this failure path.
	if ctl.mem[mainAddr] != 0xdead {
		t.Errorf("memory at main = 0x%x, want original 0xdead (restored on failure)", ctl.mem[mainAddr])
	}
}

func TestRunToMain_UnexpectedStop(t *testing.T) {
	const mainAddr = 0x401000
	ctl := newFakeController(mainAddr, 0xbeef)
	ctl.stopStatus = tracee.Status{Kind: tracee.Stopped, Signal: 2} // SIGINT, not SIGTRAP

	err := breakpoint.RunToMain(ctl, mainAddr)
	var use *breakpoint.UnexpectedStopError
	if !errorsAs(err, &use) {
		t.Fatalf("expected UnexpectedStopError, got %v", err)
	}
}

func errorsAs[T any](err error, target *T) bool {
	return errors.As(err, target)
}
