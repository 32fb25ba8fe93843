package sink

import (
	"fmt"
	"io"

	"github.com/gwatch/gwatch/internal/trace/target"
)

// StdoutSink formats trace events as the human-readable protocol lines
// described by the external-interface contract: one resolution-diagnostics
// line, one initial-value line, one line per change, and a final
// termination line.
type StdoutSink struct {
	w io.Writer
}

// NewStdoutSink wraps w (typically os.Stdout) as a Sink.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w}
}

func (s *StdoutSink) Resolution(rt *target.ResolvedTarget, variableName string) {
	fmt.Fprintf(s.w, "resolved %s: elf_base=0x%x runtime_base=0x%x aslr_shift=0x%x var_addr=0x%x var_size=%d main_addr=0x%x\n",
		variableName, rt.ELFVirtualBase, rt.RuntimeBase, rt.ASLRShift, rt.VariableRuntimeAddress, rt.VariableSize, rt.MainRuntimeAddress)
}

func (s *StdoutSink) Initial(addr, value uint64) {
	fmt.Fprintf(s.w, "Initial value at 0x%x = 0x%x\n", addr, value)
}

func (s *StdoutSink) Change(e ChangeEvent) {
	fmt.Fprintf(s.w, "%s write 0x%x -> 0x%x\n", e.VariableName, e.PreviousValue, e.CurrentValue)
}

func (s *StdoutSink) Warning(msg string) {
	fmt.Fprintf(s.w, "warning: %s\n", msg)
}

func (s *StdoutSink) Terminated(t Termination) {
	if t.Exited {
		fmt.Fprintf(s.w, "Child exited with status %d\n", t.ExitCode)
		return
	}
	fmt.Fprintf(s.w, "Child terminated by signal %d\n", t.Signal)
}

var _ Sink = (*StdoutSink)(nil)
