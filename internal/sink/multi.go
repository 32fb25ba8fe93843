package sink

import "github.com/gwatch/gwatch/internal/trace/target"

// MultiSink fans every event out to a fixed list of sinks, in order. A
// failure in one sink (Sink methods have no error return; each sink
// handles its own failures) cannot block the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a Sink that forwards every call to each of sinks in
// order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Resolution(rt *target.ResolvedTarget, variableName string) {
	for _, s := range m.sinks {
		s.Resolution(rt, variableName)
	}
}

func (m *MultiSink) Initial(addr, value uint64) {
	for _, s := range m.sinks {
		s.Initial(addr, value)
	}
}

func (m *MultiSink) Change(e ChangeEvent) {
	for _, s := range m.sinks {
		s.Change(e)
	}
}

func (m *MultiSink) Warning(msg string) {
	for _, s := range m.sinks {
		s.Warning(msg)
	}
}

func (m *MultiSink) Terminated(t Termination) {
	for _, s := range m.sinks {
		s.Terminated(t)
	}
}

var _ Sink = (*MultiSink)(nil)
