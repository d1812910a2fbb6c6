// Package server exposes the label verification pipeline over HTTP: a
// one-shot verify endpoint, an extraction endpoint, and capture sessions
// with a WebSocket frame stream.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/medscan/internal/capture"
	"github.com/MeKo-Tech/medscan/internal/extract"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/record"
	"github.com/MeKo-Tech/medscan/internal/schedule"
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	recognizer  recognize.Recognizer
	emitter     record.Emitter
	sessions    *sessionStore
	rateLimiter *RateLimiter

	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	captureCfg  capture.Config
	driftWindow schedule.Window
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int

	// RatePerMinute caps scan requests per client. Zero disables limiting.
	RatePerMinute int

	Capture     capture.Config
	DriftWindow schedule.Window
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// VerifyResponse is the one-shot /verify payload.
type VerifyResponse struct {
	Success    bool              `json:"success"`
	Verdict    *validate.Verdict `json:"verdict,omitempty"`
	Label      *extract.Label    `json:"label,omitempty"`
	Text       string            `json:"text,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// ExtractResponse is the /extract payload.
type ExtractResponse struct {
	Success bool           `json:"success"`
	Label   *extract.Label `json:"label,omitempty"`
	Text    string         `json:"text,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SessionResponse is a snapshot of a capture session.
type SessionResponse struct {
	SessionID          string            `json:"session_id"`
	State              capture.State     `json:"state"`
	ValidationFailures int               `json:"validation_failures"`
	NoLabelTimeouts    int               `json:"no_label_timeouts"`
	Verdict            *validate.Verdict `json:"verdict,omitempty"`
}

// NewServer creates a verification server instance.
func NewServer(cfg Config, rec recognize.Recognizer, emitter record.Emitter) *Server {
	if emitter == nil {
		emitter = record.Nop{}
	}
	var limiter *RateLimiter
	if cfg.RatePerMinute > 0 {
		limiter = NewRateLimiter(cfg.RatePerMinute, 0, 0)
	}
	window := cfg.DriftWindow
	if window.OnTime == 0 && window.Late == 0 {
		window = schedule.DefaultWindow()
	}
	return &Server{
		recognizer:  rec,
		emitter:     emitter,
		sessions:    newSessionStore(),
		rateLimiter: limiter,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
		timeoutSec:  cfg.TimeoutSec,
		captureCfg:  cfg.Capture,
		driftWindow: window,
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/verify", s.corsMiddleware(s.rateLimitMiddleware(s.verifyHandler)))
	mux.HandleFunc("/extract", s.corsMiddleware(s.rateLimitMiddleware(s.extractHandler)))
	mux.HandleFunc("/sessions", s.corsMiddleware(s.rateLimitMiddleware(s.createSessionHandler)))
	mux.HandleFunc("/sessions/", s.corsMiddleware(s.sessionRouter))
	mux.Handle("/metrics", promhttp.Handler())
}

// recognizeTimeout bounds a single recognition call.
func (s *Server) recognizeTimeout() time.Duration {
	if s.captureCfg.RecognizeTimeout > 0 {
		return s.captureCfg.RecognizeTimeout
	}
	return 10 * time.Second
}
