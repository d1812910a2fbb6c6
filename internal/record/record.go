// Package record delivers scan-success records to an external
// session-record API. Delivery is fire-and-forget: failures are logged for
// operators but never retried and never propagate into the capture flow.
package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/medscan/internal/schedule"
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// Record describes one successfully verified (or manually confirmed) dose.
type Record struct {
	SessionID    string           `json:"session_id"`
	MedicationID string           `json:"medication_id"`
	PatientID    string           `json:"patient_id"`
	Verdict      validate.Verdict `json:"verdict"`
	RawText      string           `json:"raw_text"`
	Manual       bool             `json:"manual"`
	Adherence    schedule.Status  `json:"adherence,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// Emitter accepts success records. Implementations must tolerate being
// called from the capture loop's hot path: Emit never returns an error.
type Emitter interface {
	Emit(ctx context.Context, rec Record)
}

// Nop discards all records. Used when no record endpoint is configured.
type Nop struct{}

func (Nop) Emit(context.Context, Record) {}

// HTTPEmitter posts records as JSON to a configured endpoint.
type HTTPEmitter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEmitter creates an emitter targeting the given URL.
func NewHTTPEmitter(endpoint string, timeout time.Duration) *HTTPEmitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Emit posts the record. Errors are logged, not returned; the session
// outcome is already decided by the time a record is emitted.
func (e *HTTPEmitter) Emit(ctx context.Context, rec Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		slog.Error("Failed to marshal session record", "session_id", rec.SessionID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build session record request", "session_id", rec.SessionID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		slog.Error("Failed to deliver session record", "session_id", rec.SessionID, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		slog.Error("Session record rejected",
			"session_id", rec.SessionID,
			"status", fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		return
	}
	slog.Info("Session record delivered", "session_id", rec.SessionID, "manual", rec.Manual)
}
