package sink

import (
	"encoding/json"
	"log/slog"

	"github.com/gwatch/gwatch/internal/journal"
	"github.com/gwatch/gwatch/internal/trace/target"
)

// JournalSink appends every event to a tamper-evident journal.Logger,
// giving a trace session a hash-chained audit trail independent of the
// stdout transcript.
type JournalSink struct {
	logger *journal.Logger
	log    *slog.Logger
}

// NewJournalSink wraps logger as a Sink.
func NewJournalSink(logger *journal.Logger, log *slog.Logger) *JournalSink {
	return &JournalSink{logger: logger, log: log}
}

func (j *JournalSink) append(kind journal.Kind, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		j.log.Warn("journal: failed to marshal payload", "kind", kind, "error", err)
		return
	}
	if _, err := j.logger.Append(kind, payload); err != nil {
		j.log.Warn("journal: failed to append entry", "kind", kind, "error", err)
	}
}

func (j *JournalSink) Resolution(rt *target.ResolvedTarget, variableName string) {
	j.append(journal.KindResolution, struct {
		VariableName    string `json:"variable_name"`
		ELFVirtualBase  uint64 `json:"elf_virtual_base"`
		RuntimeBase     uint64 `json:"runtime_base"`
		ASLRShift       uint64 `json:"aslr_shift"`
		VariableAddr    uint64 `json:"variable_runtime_address"`
		VariableSize    uint64 `json:"variable_size"`
		MainAddr        uint64 `json:"main_runtime_address"`
	}{variableName, rt.ELFVirtualBase, rt.RuntimeBase, rt.ASLRShift, rt.VariableRuntimeAddress, rt.VariableSize, rt.MainRuntimeAddress})
}

func (j *JournalSink) Initial(addr, value uint64) {
	j.append(journal.KindInitial, struct {
		Addr  uint64 `json:"addr"`
		Value uint64 `json:"value"`
	}{addr, value})
}

func (j *JournalSink) Change(e ChangeEvent) {
	j.append(journal.KindChange, struct {
		VariableName  string `json:"variable_name"`
		PreviousValue uint64 `json:"previous_value"`
		CurrentValue  uint64 `json:"current_value"`
	}{e.VariableName, e.PreviousValue, e.CurrentValue})
}

func (j *JournalSink) Warning(msg string) {
	j.append(journal.Kind("warning"), struct {
		Message string `json:"message"`
	}{msg})
}

func (j *JournalSink) Terminated(t Termination) {
	j.append(journal.KindTermination, struct {
		Exited   bool `json:"exited"`
		ExitCode int  `json:"exit_code,omitempty"`
		Signal   int  `json:"signal,omitempty"`
	}{t.Exited, t.ExitCode, t.Signal})
}

var _ Sink = (*JournalSink)(nil)
