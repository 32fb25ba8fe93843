package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gwatch/gwatch/internal/trace/target"
)

// RemoteSink streams ChangeEvents to a gwatch-collector instance over HTTP,
// authenticating each request with a freshly minted HS256 bearer token. A
// CLI-distributed tool has no certificate-provisioning story, so the
// collector and every RemoteSink share a single pre-shared secret rather
// than an RSA keypair.
type RemoteSink struct {
	addr      string
	secret    string
	sessionID string
	hostLabel string
	client    *http.Client
	log       *slog.Logger
}

// NewRemoteSink returns a RemoteSink that POSTs change events to
// addr+"/api/v1/events", tagging each with sessionID and hostLabel.
func NewRemoteSink(addr, secret, sessionID, hostLabel string, log *slog.Logger) *RemoteSink {
	return &RemoteSink{
		addr:      addr,
		secret:    secret,
		sessionID: sessionID,
		hostLabel: hostLabel,
		client:    &http.Client{Timeout: 5 * time.Second},
		log:       log,
	}
}

func (r *RemoteSink) Resolution(*target.ResolvedTarget, string) {}
func (r *RemoteSink) Initial(uint64, uint64)                    {}

func (r *RemoteSink) Change(e ChangeEvent) {
	body := struct {
		SessionID     string `json:"session_id"`
		HostLabel     string `json:"host_label"`
		VariableName  string `json:"variable_name"`
		PreviousValue uint64 `json:"previous_value"`
		CurrentValue  uint64 `json:"current_value"`
		ObservedAt    string `json:"observed_at"`
	}{
		SessionID:     r.sessionID,
		HostLabel:     r.hostLabel,
		VariableName:  e.VariableName,
		PreviousValue: e.PreviousValue,
		CurrentValue:  e.CurrentValue,
		ObservedAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}

	if err := r.post(body); err != nil {
		r.log.Warn("remote sink: failed to forward change event", "error", err)
	}
}

func (r *RemoteSink) Warning(string)          {}
func (r *RemoteSink) Terminated(Termination)  {}

// post marshals payload, signs a short-lived HS256 bearer token, and sends
// the request. It never blocks the tracer loop on a slow or unreachable
// collector beyond its client timeout. Its error is only logged by Change
// and never reaches the tracer — a remote-forwarding failure is diagnostic
// only, never fatal to tracing.
func (r *RemoteSink) post(payload any) error {
	token, err := r.signToken()
	if err != nil {
		return fmt.Errorf("sign bearer token: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, r.addr+"/api/v1/events", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector responded %s", resp.Status)
	}
	return nil
}

func (r *RemoteSink) signToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   r.sessionID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(r.secret))
}

var _ Sink = (*RemoteSink)(nil)
