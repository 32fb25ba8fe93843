package tracer_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gwatch/gwatch/internal/sink"
	"github.com/gwatch/gwatch/internal/trace/target"
	"github.com/gwatch/gwatch/internal/trace/tracee"
	"github.com/gwatch/gwatch/internal/trace/tracer"
)

// scriptedController plays back a fixed sequence of watched-word values,
// one per single-step, and reports Exited after the sequence is consumed.
type scriptedController struct {
	values  []uint64
	signals []int // sig passed to each SingleStep call, recorded
	idx     int
	varAddr uint64

	debugRegsErr error

	// forwardSignalAt, when nonzero, makes the WaitForStop call immediately
	// after the forwardSignalAt'th SingleStep report a non-trap stop
	// carrying forwardSignal instead of the usual SIGTRAP, exactly once.
	forwardSignalAt int
	forwardSignal   int
	forwardSent     bool
}

func (c *scriptedController) WaitForStop() (tracee.Status, error) {
	if c.forwardSignalAt != 0 && c.idx == c.forwardSignalAt && !c.forwardSent {
		c.forwardSent = true
		return tracee.Status{Kind: tracee.Stopped, Signal: c.forwardSignal}, nil
	}
	if c.idx >= len(c.values) {
		return tracee.Status{Kind: tracee.Exited, Signal: 0}, nil
	}
	return tracee.Status{Kind: tracee.Stopped, Signal: 5}, nil
}

func (c *scriptedController) PeekWord(addr uint64) (uint64, error) {
	if addr != c.varAddr {
		return 0, nil
	}
	if c.idx < len(c.values) {
		return c.values[c.idx], nil
	}
	return 0, nil
}

func (c *scriptedController) PokeWord(uint64, uint64) error { return nil }

func (c *scriptedController) GetGeneralRegs() (tracee.GeneralRegs, error) {
	return tracee.GeneralRegs{}, nil
}
func (c *scriptedController) SetGeneralRegs(tracee.GeneralRegs) error { return nil }

func (c *scriptedController) GetDebugRegs() ([]byte, error) {
	if c.debugRegsErr != nil {
		return nil, c.debugRegsErr
	}
	return make([]byte, 16), nil // one slot's worth
}
func (c *scriptedController) SetDebugRegs([]byte) error { return nil }

func (c *scriptedController) SingleStep(sig int) error {
	c.signals = append(c.signals, sig)
	c.idx++
	return nil
}
func (c *scriptedController) Continue(int) error { return errors.New("unused") }

var _ tracee.Controller = (*scriptedController)(nil)

// recordingSink captures every call made to it, in order.
type recordingSink struct {
	resolutions []string
	initial     []uint64
	changes     []sink.ChangeEvent
	warnings    []string
	terminated  []sink.Termination
}

func (r *recordingSink) Resolution(rt *target.ResolvedTarget, name string) {
	r.resolutions = append(r.resolutions, name)
}
func (r *recordingSink) Initial(addr, value uint64) { r.initial = append(r.initial, value) }
func (r *recordingSink) Change(e sink.ChangeEvent)  { r.changes = append(r.changes, e) }
func (r *recordingSink) Warning(msg string)         { r.warnings = append(r.warnings, msg) }
func (r *recordingSink) Terminated(t sink.Termination) {
	r.terminated = append(r.terminated, t)
}

var _ sink.Sink = (*recordingSink)(nil)

func TestRun_MonotonicCounter(t *testing.T) {
	const varAddr = 0x20000
	ctl := &scriptedController{varAddr: varAddr, values: []uint64{0, 1, 2, 3}}
	rt := &target.ResolvedTarget{VariableRuntimeAddress: varAddr, VariableSize: 4}
	s := &recordingSink{}

	if err := tracer.Run(ctl, rt, "counter", s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(s.initial) != 1 || s.initial[0] != 0 {
		t.Fatalf("initial = %v, want [0]", s.initial)
	}

	want := []sink.ChangeEvent{
		{VariableName: "counter", PreviousValue: 0, CurrentValue: 1},
		{VariableName: "counter", PreviousValue: 1, CurrentValue: 2},
		{VariableName: "counter", PreviousValue: 2, CurrentValue: 3},
	}
	if !reflect.DeepEqual(s.changes, want) {
		t.Fatalf("changes = %+v, want %+v", s.changes, want)
	}

	if len(s.terminated) != 1 || !s.terminated[0].Exited {
		t.Fatalf("terminated = %+v, want one Exited termination", s.terminated)
	}
}

func TestRun_NoOp(t *testing.T) {
	const varAddr = 0x20000
	ctl := &scriptedController{varAddr: varAddr, values: nil}
	rt := &target.ResolvedTarget{VariableRuntimeAddress: varAddr, VariableSize: 4}
	s := &recordingSink{}

	if err := tracer.Run(ctl, rt, "counter", s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.changes) != 0 {
		t.Fatalf("changes = %+v, want none", s.changes)
	}
	if len(s.terminated) != 1 || !s.terminated[0].Exited {
		t.Fatalf("terminated = %+v, want one Exited termination", s.terminated)
	}
}

func TestRun_WriteSame_EmitsOneEvent(t *testing.T) {
	const varAddr = 0x20000
	ctl := &scriptedController{varAddr: varAddr, values: []uint64{0, 5, 5, 5}}
	rt := &target.ResolvedTarget{VariableRuntimeAddress: varAddr, VariableSize: 4}
	s := &recordingSink{}

	if err := tracer.Run(ctl, rt, "counter", s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []sink.ChangeEvent{{VariableName: "counter", PreviousValue: 0, CurrentValue: 5}}
	if !reflect.DeepEqual(s.changes, want) {
		t.Fatalf("changes = %+v, want %+v", s.changes, want)
	}
}

// TestRun_ForwardsNonTrapSignal covers the case where the tracee stops for
// a reason other than the expected single-step trap — e.g. a caught
// SIGUSR1 delivered mid-run — and the loop must hand that signal back to
// the tracee on its next resume rather than misreading it as a watchpoint
// hit.
func TestRun_ForwardsNonTrapSignal(t *testing.T) {
	const varAddr = 0x20000
	const sigusr1 = 10
	ctl := &scriptedController{
		varAddr:         varAddr,
		values:          []uint64{0, 1, 2},
		forwardSignalAt: 1,
		forwardSignal:   sigusr1,
	}
	rt := &target.ResolvedTarget{VariableRuntimeAddress: varAddr, VariableSize: 4}
	s := &recordingSink{}

	if err := tracer.Run(ctl, rt, "counter", s); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(s.warnings) == 0 {
		t.Fatal("expected a warning when a non-trap stop is forwarded")
	}

	forwarded := false
	for _, sig := range ctl.signals {
		if sig == sigusr1 {
			forwarded = true
			break
		}
	}
	if !forwarded {
		t.Fatalf("SingleStep was never called with signal %d; calls were %v", sigusr1, ctl.signals)
	}

	// Value 1 belongs to the step that ended in the signal stop, which is
	// never peeked; the next trap stop observes 2.
	want := []sink.ChangeEvent{{VariableName: "counter", PreviousValue: 0, CurrentValue: 2}}
	if !reflect.DeepEqual(s.changes, want) {
		t.Fatalf("changes = %+v, want %+v", s.changes, want)
	}
	if len(s.terminated) != 1 || !s.terminated[0].Exited {
		t.Fatalf("terminated = %+v, want one Exited termination", s.terminated)
	}
}

func TestRun_HardwareWatchpointFailure_IsNonFatal(t *testing.T) {
	const varAddr = 0x20000
	ctl := &scriptedController{varAddr: varAddr, values: []uint64{0, 1}, debugRegsErr: errors.New("permission denied")}
	rt := &target.ResolvedTarget{VariableRuntimeAddress: varAddr, VariableSize: 4}
	s := &recordingSink{}

	if err := tracer.Run(ctl, rt, "counter", s); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.warnings) == 0 {
		t.Fatal("expected at least one warning for the failed watchpoint arm")
	}
	if len(s.changes) != 1 {
		t.Fatalf("changes = %+v, want exactly one (polling must still work)", s.changes)
	}
}
