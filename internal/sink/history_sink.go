package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/gwatch/gwatch/internal/history"
	"github.com/gwatch/gwatch/internal/trace/target"
)

// HistorySink persists every ChangeEvent to a local history.Store under a
// fixed session ID. Resolution, Initial, and Terminated are not persisted —
// history.Store's schema only tracks changes; session metadata belongs in
// the journal.
type HistorySink struct {
	store     *history.Store
	sessionID string
	log       *slog.Logger
}

// NewHistorySink wraps store, recording every change under sessionID.
func NewHistorySink(store *history.Store, sessionID string, log *slog.Logger) *HistorySink {
	return &HistorySink{store: store, sessionID: sessionID, log: log}
}

func (h *HistorySink) Resolution(*target.ResolvedTarget, string) {}
func (h *HistorySink) Initial(uint64, uint64)                    {}

func (h *HistorySink) Change(e ChangeEvent) {
	ctx := context.Background()
	if err := h.store.Record(ctx, h.sessionID, e.VariableName, e.PreviousValue, e.CurrentValue, time.Now()); err != nil {
		h.log.Warn("history: failed to record change event", "error", err)
	}
}

func (h *HistorySink) Warning(string)     {}
func (h *HistorySink) Terminated(Termination) {}

var _ Sink = (*HistorySink)(nil)
