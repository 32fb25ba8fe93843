// Package tracer implements the change-detection loop: starting from the
// tracee stopped at main, it emits a sink.ChangeEvent for every transition
// of the watched value until the tracee exits.
package tracer

import (
	"fmt"

	"github.com/gwatch/gwatch/internal/sink"
	"github.com/gwatch/gwatch/internal/trace/dbgregs"
	"github.com/gwatch/gwatch/internal/trace/target"
	"github.com/gwatch/gwatch/internal/trace/tracee"
)

// HardwareWatchpointError reports that a hardware watchpoint could not be
// armed. It is never returned to the caller of Run: it is only ever handed
// to the Sink as a warning, per §4.5's "not fatal" contract.
type HardwareWatchpointError struct {
	Err error
}

func (e *HardwareWatchpointError) Error() string {
	return fmt.Sprintf("tracer: hardware watchpoint unavailable: %v", e.Err)
}

func (e *HardwareWatchpointError) Unwrap() error { return e.Err }

// Run drives the change-detection loop for rt.VariableRuntimeAddress against
// an already-stopped-at-main tracee, publishing every event to s. It returns
// only on a fatal tracee-control error; normal tracee termination is
// reported to the sink and Run returns nil.
func Run(ctl tracee.Controller, rt *target.ResolvedTarget, variableName string, s sink.Sink) error {
	s.Resolution(rt, variableName)

	last, err := ctl.PeekWord(rt.VariableRuntimeAddress)
	if err != nil {
		return fmt.Errorf("tracer: baseline peek: %w", err)
	}
	s.Initial(rt.VariableRuntimeAddress, last)

	if err := armHardwareWatchpoint(ctl, rt); err != nil {
		s.Warning((&HardwareWatchpointError{Err: err}).Error())
	}

	// pendingSignal is delivered with the next single step: 0 normally, or
	// the signal number forwarded from the previous non-trap stop.
	pendingSignal := 0
	for {
		if err := ctl.SingleStep(pendingSignal); err != nil {
			return fmt.Errorf("tracer: single step: %w", err)
		}
		pendingSignal = 0

		status, err := ctl.WaitForStop()
		if err != nil {
			return fmt.Errorf("tracer: wait for stop: %w", err)
		}

		switch status.Kind {
		case tracee.Exited:
			s.Terminated(sink.Termination{Exited: true, ExitCode: status.Signal})
			return nil
		case tracee.Signaled:
			s.Terminated(sink.Termination{Exited: false, Signal: status.Signal})
			return nil
		}

		if !status.IsTrap() {
			s.Warning(fmt.Sprintf("tracer: forwarding signal %d to tracee", status.Signal))
			pendingSignal = status.Signal
			continue
		}

		current, err := ctl.PeekWord(rt.VariableRuntimeAddress)
		if err != nil {
			return fmt.Errorf("tracer: peek watched word: %w", err)
		}
		if current != last {
			s.Change(sink.ChangeEvent{VariableName: variableName, PreviousValue: last, CurrentValue: current})
			last = current
		}
	}
}

// armHardwareWatchpoint attempts to install a single read+write watchpoint
// at rt.VariableRuntimeAddress, preserving whatever register-set length the
// kernel reports for the debug-register image (§4.2).
func armHardwareWatchpoint(ctl tracee.Controller, rt *target.ResolvedTarget) error {
	current, err := ctl.GetDebugRegs()
	if err != nil {
		return fmt.Errorf("get debug regs: %w", err)
	}

	img, err := dbgregs.NewSingleWatch(rt.VariableRuntimeAddress, rt.VariableSize)
	if err != nil {
		return fmt.Errorf("encode watchpoint: %w", err)
	}

	if err := ctl.SetDebugRegs(img.Marshal(len(current))); err != nil {
		return fmt.Errorf("set debug regs: %w", err)
	}
	return nil
}
