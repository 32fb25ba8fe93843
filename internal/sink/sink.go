// Package sink defines the output contract for a trace session: the four
// event categories a tracer emits, decoupled from where they end up
// (stdout, local history, a remote collector, or several at once).
package sink

import (
	"github.com/gwatch/gwatch/internal/trace/target"
)

// ChangeEvent records one observed transition of the watched variable.
type ChangeEvent struct {
	VariableName  string
	PreviousValue uint64
	CurrentValue  uint64
}

// Termination describes how the tracee ended.
type Termination struct {
	Exited   bool
	ExitCode int
	Signal   int
}

// Sink receives the ordered stream of events produced by a trace session.
// Implementations must not block the tracer for long: the tracee remains
// stopped while a Sink method runs.
type Sink interface {
	// Resolution reports the symbol/map resolution diagnostics, emitted
	// once at the start of a session.
	Resolution(rt *target.ResolvedTarget, variableName string)

	// Initial reports the baseline value observed at entry to main.
	Initial(addr, value uint64)

	// Change reports one watched-variable transition.
	Change(event ChangeEvent)

	// Warning reports a non-fatal condition, such as a failed hardware
	// watchpoint arm attempt.
	Warning(msg string)

	// Terminated reports how the tracee ended. Always the last call on a
	// Sink for a given session.
	Terminated(t Termination)
}
