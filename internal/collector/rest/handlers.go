package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gwatch/gwatch/internal/collector/storage"
)

// Server holds the dependencies needed by the REST handlers.
type Server struct {
	store Store
}

// NewServer creates a new Server with the provided storage layer.
func NewServer(store Store) *Server {
	return &Server{store: store}
}

// handleHealthz responds to GET /healthz. Does not require authentication.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ingestEventRequest is the JSON body expected by POST /api/v1/events.
type ingestEventRequest struct {
	SessionID     string `json:"session_id"`
	HostLabel     string `json:"host_label"`
	VariableName  string `json:"variable_name"`
	PreviousValue uint64 `json:"previous_value"`
	CurrentValue  uint64 `json:"current_value"`
	ObservedAt    string `json:"observed_at"` // RFC3339Nano
}

// handlePostEvent responds to POST /api/v1/events by persisting a single
// ChangeEvent forwarded from a gwatch client. The collector assigns a fresh
// event ID to every accepted request; clients never supply one, so a request
// that is sent twice is stored as two rows.
func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if req.SessionID == "" || req.HostLabel == "" || req.VariableName == "" {
		writeError(w, http.StatusBadRequest, "session_id, host_label, and variable_name are required")
		return
	}

	observedAt, err := time.Parse(time.RFC3339Nano, req.ObservedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'observed_at' must be a valid RFC3339 timestamp")
		return
	}

	evt := storage.Event{
		EventID:       uuid.NewString(),
		SessionID:     req.SessionID,
		HostLabel:     req.HostLabel,
		VariableName:  req.VariableName,
		PreviousValue: req.PreviousValue,
		CurrentValue:  req.CurrentValue,
		ObservedAt:    observedAt,
		ReceivedAt:    time.Now().UTC(),
	}

	if err := s.store.BatchInsertEvents(r.Context(), evt); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to ingest event")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"event_id": evt.EventID})
}

// handleGetEvents responds to GET /api/v1/events.
//
// Supported query parameters:
//
//	session_id – exact session filter (optional)
//	host_label – exact host filter (optional)
//	from       – RFC3339 start of the received_at window (required)
//	to         – RFC3339 end of the received_at window (required)
//	limit      – maximum number of results (default 100, max 1000)
//	offset     – pagination offset (default 0)
func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	fromStr := q.Get("from")
	toStr := q.Get("to")
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "query parameters 'from' and 'to' are required (RFC3339)")
		return
	}

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'from' must be a valid RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'to' must be a valid RFC3339 timestamp")
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "'to' must be after 'from'")
		return
	}

	eq := storage.EventQuery{From: from, To: to}
	eq.SessionID = q.Get("session_id")
	eq.HostLabel = q.Get("host_label")

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		if limit > 1000 {
			limit = 1000
		}
		eq.Limit = limit
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "'offset' must be a non-negative integer")
			return
		}
		eq.Offset = offset
	}

	events, err := s.store.QueryEvents(r.Context(), eq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	if events == nil {
		events = []storage.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(events)
}
