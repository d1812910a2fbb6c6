package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/medscan/internal/capture"
	"github.com/MeKo-Tech/medscan/internal/extract"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/record"
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// serverSession pairs a capture session with what it verifies. Frames
// arrive over the network instead of from a local device, so the server
// feeds the state machine directly rather than through a Controller.
type serverSession struct {
	mu       sync.Mutex
	sess     *capture.Session
	expected validate.Expected
	meta     capture.Meta
	counted  bool // final-state metric recorded
}

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*serverSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*serverSession)}
}

func (st *sessionStore) add(ss *serverSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[ss.sess.ID] = ss
}

func (st *sessionStore) get(id string) *serverSession {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// CreateSessionRequest starts a capture session.
type CreateSessionRequest struct {
	Expected     validate.Expected `json:"expected"`
	MedicationID string            `json:"medication_id"`
	PatientID    string            `json:"patient_id"`
	ScheduledAt  time.Time         `json:"scheduled_at,omitzero"`
}

// ResolveSessionRequest settles a session in manual confirmation.
type ResolveSessionRequest struct {
	Confirmed bool `json:"confirmed"`
}

// createSessionHandler starts a new capture session.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeSessionError(w, "Invalid session request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Expected.PatientName == "" || req.Expected.ScheduledTime == "" {
		s.writeSessionError(w, "expected.patient_name and expected.scheduled_time are required", http.StatusBadRequest)
		return
	}

	sess := capture.NewSession(uuid.NewString())
	if s.captureCfg.AttemptLimit > 0 {
		sess.AttemptLimit = s.captureCfg.AttemptLimit
	}
	sess.Apply(capture.EventStart{}, time.Now())

	ss := &serverSession{
		sess:     sess,
		expected: req.Expected,
		meta: capture.Meta{
			MedicationID: req.MedicationID,
			PatientID:    req.PatientID,
			ScheduledAt:  req.ScheduledAt,
			Window:       s.driftWindow,
		},
	}
	s.sessions.add(ss)

	slog.Info("Capture session created", "session_id", sess.ID, "medication_id", req.MedicationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(ss.snapshot()); err != nil {
		slog.Error("Failed to encode session response", "error", err)
	}
}

// sessionRouter dispatches /sessions/{id}, /sessions/{id}/resolve and
// /sessions/{id}/stream.
func (s *Server) sessionRouter(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	ss := s.sessions.get(id)
	if ss == nil {
		s.writeSessionError(w, "Session not found", http.StatusNotFound)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.writeSessionSnapshot(w, ss)
		case http.MethodDelete:
			s.stopSessionHandler(w, r, ss)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "resolve":
		s.resolveSessionHandler(w, r, ss)
	case "stream":
		s.sessionStreamHandler(w, r, ss)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) stopSessionHandler(w http.ResponseWriter, r *http.Request, ss *serverSession) {
	ss.mu.Lock()
	ss.sess.Apply(capture.EventStop{}, time.Now())
	s.noteFinalStateLocked(ss)
	ss.mu.Unlock()
	s.writeSessionSnapshot(w, ss)
}

func (s *Server) resolveSessionHandler(w http.ResponseWriter, r *http.Request, ss *serverSession) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ResolveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeSessionError(w, "Invalid resolve request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var ev capture.Event = capture.EventDecline{}
	if req.Confirmed {
		ev = capture.EventConfirm{}
	}

	ss.mu.Lock()
	effects := ss.sess.Apply(ev, time.Now())
	s.noteFinalStateLocked(ss)
	ss.mu.Unlock()

	for _, eff := range effects {
		if e, ok := eff.(capture.EffectEmitRecord); ok {
			s.emitRecord(r.Context(), ss, e)
		}
	}
	s.writeSessionSnapshot(w, ss)
}

// processFrame pushes one frame through recognition and validation and
// advances the session. The caller's pacing replaces the local capture
// throttle: a retry re-arms immediately and the client decides when to
// send the next frame.
func (s *Server) processFrame(ctx context.Context, ss *serverSession, image []byte) SessionResponse {
	start := time.Now()
	reading, err := s.recognize(ctx, image)
	gotText := err == nil && !reading.Empty()
	if err != nil && !errors.Is(err, recognize.ErrNoText) {
		slog.Warn("Recognition failed", "session_id", ss.sess.ID, "error", err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !gotText {
		scanRequestsTotal.WithLabelValues("session_frame", "no_text").Inc()
		ss.sess.Apply(capture.EventNoLabel{}, time.Now())
		s.noteFinalStateLocked(ss)
		return ss.snapshotLocked()
	}

	effects := ss.sess.Apply(capture.EventFrameText{Reading: reading}, time.Now())
	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]
		switch e := eff.(type) {
		case capture.EffectValidate:
			label := extract.Extract(e.Reading)
			verdict := validate.Validate(label, ss.expected)
			effects = append(effects, ss.sess.Apply(capture.EventVerdict{Verdict: verdict, Reading: e.Reading}, time.Now())...)
		case capture.EffectScheduleRetry:
			effects = append(effects, ss.sess.Apply(capture.EventRetry{}, time.Now())...)
		case capture.EffectEmitRecord:
			s.emitRecord(ctx, ss, e)
		}
	}

	scanRequestsTotal.WithLabelValues("session_frame", "success").Inc()
	scanDuration.WithLabelValues("session_frame").Observe(time.Since(start).Seconds())
	s.noteFinalStateLocked(ss)
	return ss.snapshotLocked()
}

// emitRecord builds and delivers the success record for a session.
func (s *Server) emitRecord(ctx context.Context, ss *serverSession, e capture.EffectEmitRecord) {
	now := time.Now()
	rec := record.Record{
		SessionID:    ss.sess.ID,
		MedicationID: ss.meta.MedicationID,
		PatientID:    ss.meta.PatientID,
		Verdict:      e.Verdict,
		RawText:      e.RawText,
		Manual:       e.Manual,
		Timestamp:    now,
	}
	if !ss.meta.ScheduledAt.IsZero() {
		rec.Adherence = ss.meta.Window.Classify(ss.meta.ScheduledAt, now)
	}
	s.emitter.Emit(ctx, rec)
}

// noteFinalStateLocked records the session outcome metric exactly once.
// Caller holds ss.mu.
func (s *Server) noteFinalStateLocked(ss *serverSession) {
	if ss.counted {
		return
	}
	switch ss.sess.State {
	case capture.StateSuccess, capture.StateAbandoned, capture.StateManualConfirmation:
		sessionOutcomesTotal.WithLabelValues(string(ss.sess.State)).Inc()
		ss.counted = true
	}
}

func (ss *serverSession) snapshot() SessionResponse {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.snapshotLocked()
}

func (ss *serverSession) snapshotLocked() SessionResponse {
	return SessionResponse{
		SessionID:          ss.sess.ID,
		State:              ss.sess.State,
		ValidationFailures: ss.sess.ValidationFailures,
		NoLabelTimeouts:    ss.sess.NoLabelTimeouts,
		Verdict:            ss.sess.LastVerdict,
	}
}

func (s *Server) writeSessionSnapshot(w http.ResponseWriter, ss *serverSession) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ss.snapshot()); err != nil {
		slog.Error("Failed to encode session response", "error", err)
	}
}

func (s *Server) writeSessionError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
