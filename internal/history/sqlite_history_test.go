package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/gwatch/gwatch/internal/history"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndSession_PreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	events := []struct{ prev, cur uint64 }{
		{0, 1},
		{1, 2},
		{2, 3},
	}
	for i, e := range events {
		if err := s.Record(ctx, "session-a", "counter", e.prev, e.cur, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	records, err := s.Session(ctx, "session-a")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for i, want := range events {
		if records[i].PreviousValue != want.prev || records[i].CurrentValue != want.cur {
			t.Errorf("records[%d] = {%d -> %d}, want {%d -> %d}", i, records[i].PreviousValue, records[i].CurrentValue, want.prev, want.cur)
		}
		if records[i].VariableName != "counter" {
			t.Errorf("records[%d].VariableName = %q, want counter", i, records[i].VariableName)
		}
	}
}

func TestStore_Session_IsolatesBySessionID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.Record(ctx, "session-a", "counter", 0, 1, now); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, "session-b", "counter", 0, 9, now); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := s.Session(ctx, "session-a")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(records) != 1 || records[0].CurrentValue != 1 {
		t.Fatalf("records = %+v, want exactly one record with CurrentValue 1", records)
	}
}

func TestStore_Session_EmptyForUnknownSession(t *testing.T) {
	s := openTestStore(t)
	records, err := s.Session(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %+v, want none", records)
	}
}
