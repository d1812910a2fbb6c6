package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/medscan/internal/extract"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/record"
	"github.com/MeKo-Tech/medscan/internal/schedule"
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// ErrDeviceUnavailable reports that the frame source could not be opened.
// The session never leaves Idle in that case.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// FrameSource supplies label images. Open acquires the underlying device
// exclusively; Close releases it and must be safe to call more than once.
type FrameSource interface {
	Open(ctx context.Context) error
	Frame(ctx context.Context) ([]byte, error)
	Close() error
}

// Config tunes the capture loop.
type Config struct {
	// Auto keeps grabbing frames until text appears or the no-label
	// window elapses. When false each acquisition takes a single frame
	// and its failure counts as a no-label strike immediately.
	Auto bool

	// AttemptLimit caps both the validation-failure and no-label strike
	// counters. Zero means DefaultAttemptLimit.
	AttemptLimit int

	// NoLabelWindow is how long auto mode scans before declaring that no
	// label is in view.
	NoLabelWindow time.Duration

	// Throttle is the minimum gap between recognition attempts in auto
	// mode, and the pause before a retry after a failed validation.
	Throttle time.Duration

	// RecognizeTimeout bounds a single recognition call.
	RecognizeTimeout time.Duration
}

// DefaultConfig returns the standard capture tuning.
func DefaultConfig() Config {
	return Config{
		Auto:             true,
		AttemptLimit:     DefaultAttemptLimit,
		NoLabelWindow:    30 * time.Second,
		Throttle:         2 * time.Second,
		RecognizeTimeout: 10 * time.Second,
	}
}

// Meta identifies what a session verifies, for the emitted record.
type Meta struct {
	MedicationID string
	PatientID    string
	ScheduledAt  time.Time
	Window       schedule.Window
}

// Controller runs one capture session end to end: it owns the frame
// source, feeds events into the Session state machine and performs the
// resulting effects.
type Controller struct {
	cfg        Config
	expected   validate.Expected
	meta       Meta
	recognizer recognize.Recognizer
	frames     FrameSource
	emitter    record.Emitter
	clock      Clock

	mu       sync.Mutex
	sess     *Session
	released bool
}

// New creates a controller for a fresh session.
func New(cfg Config, expected validate.Expected, meta Meta,
	rec recognize.Recognizer, frames FrameSource, emitter record.Emitter,
) *Controller {
	if cfg.NoLabelWindow <= 0 {
		cfg.NoLabelWindow = 30 * time.Second
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = 2 * time.Second
	}
	if cfg.RecognizeTimeout <= 0 {
		cfg.RecognizeTimeout = 10 * time.Second
	}
	if emitter == nil {
		emitter = record.Nop{}
	}
	sess := NewSession(uuid.NewString())
	if cfg.AttemptLimit > 0 {
		sess.AttemptLimit = cfg.AttemptLimit
	}
	return &Controller{
		cfg:        cfg,
		expected:   expected,
		meta:       meta,
		recognizer: rec,
		frames:     frames,
		emitter:    emitter,
		clock:      RealClock(),
		sess:       sess,
	}
}

// WithClock overrides the controller's clock. For tests.
func (c *Controller) WithClock(clock Clock) *Controller {
	c.clock = clock
	return c
}

// Session returns the controller's session.
func (c *Controller) Session() *Session {
	return c.sess
}

// Run executes the capture loop until the session reaches a terminal
// state or hands over to manual confirmation. On context cancellation
// the session is abandoned and the context error returned.
func (c *Controller) Run(ctx context.Context) (*Session, error) {
	if err := c.frames.Open(ctx); err != nil {
		return c.sess, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer c.release()

	slog.Info("Capture session started",
		"session_id", c.sess.ID,
		"medication_id", c.meta.MedicationID,
		"auto", c.cfg.Auto)

	if err := c.dispatch(ctx, EventStart{}); err != nil {
		c.Stop()
		return c.sess, err
	}
	slog.Info("Capture loop finished", "session_id", c.sess.ID, "state", c.sess.State)
	return c.sess, nil
}

// Stop abandons the session from any pre-terminal state.
func (c *Controller) Stop() {
	for _, eff := range c.apply(EventStop{}) {
		if _, ok := eff.(EffectReleaseDevice); ok {
			c.release()
		}
	}
}

// ResolveManual settles a session waiting in manual confirmation.
// Confirmed sessions succeed and emit a manual record; declined ones are
// abandoned. Calling it in any other state is a no-op.
func (c *Controller) ResolveManual(ctx context.Context, confirmed bool) State {
	var ev Event = EventDecline{}
	if confirmed {
		ev = EventConfirm{}
	}
	for _, eff := range c.apply(ev) {
		if e, ok := eff.(EffectEmitRecord); ok {
			c.emitRecord(ctx, e)
		}
	}
	return c.sess.State
}

func (c *Controller) apply(ev Event) []Effect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Apply(ev, c.clock.Now())
}

// dispatch feeds an event through the state machine and keeps performing
// effects until no further events are produced. Effects that merely hand
// control elsewhere (manual prompt, device release) end the loop by
// producing nothing.
func (c *Controller) dispatch(ctx context.Context, ev Event) error {
	pending := []Event{ev}
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]
		for _, eff := range c.apply(next) {
			follow, err := c.perform(ctx, eff)
			if err != nil {
				return err
			}
			if follow != nil {
				pending = append(pending, follow)
			}
		}
	}
	return nil
}

func (c *Controller) perform(ctx context.Context, eff Effect) (Event, error) {
	switch e := eff.(type) {
	case EffectAcquireFrame:
		return c.acquire(ctx)
	case EffectValidate:
		label := extract.Extract(e.Reading)
		verdict := validate.Validate(label, c.expected)
		slog.Info("Label validated",
			"session_id", c.sess.ID,
			"valid", verdict.IsValid,
			"score", verdict.Score,
			"confidence", fmt.Sprintf("%.2f", verdict.Confidence))
		if !verdict.IsValid {
			// Field detail stays in the logs; the user only sees the retry.
			for _, res := range verdict.Results {
				if !res.Passed {
					slog.Debug("Field mismatch",
						"session_id", c.sess.ID,
						"field", res.Field,
						"score", fmt.Sprintf("%.2f", res.Score))
				}
			}
		}
		return EventVerdict{Verdict: verdict, Reading: e.Reading}, nil
	case EffectScheduleRetry:
		if err := c.clock.Sleep(ctx, c.cfg.Throttle); err != nil {
			return nil, err
		}
		return EventRetry{}, nil
	case EffectEmitRecord:
		c.emitRecord(ctx, e)
		return nil, nil
	case EffectPromptManual:
		slog.Info("Awaiting manual confirmation", "session_id", c.sess.ID)
		return nil, nil
	case EffectReleaseDevice:
		c.release()
		return nil, nil
	default:
		return nil, nil
	}
}

// acquire runs one acquisition cycle and reports either recognized text
// or a no-label strike. In auto mode it polls frames until the window
// elapses; recognition failures inside the window are absorbed.
func (c *Controller) acquire(ctx context.Context) (Event, error) {
	if !c.cfg.Auto {
		reading, ok := c.tryFrame(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !ok {
			return EventNoLabel{}, nil
		}
		return EventFrameText{Reading: reading}, nil
	}

	windowStart := c.clock.Now()
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !first {
			if err := c.clock.Sleep(ctx, c.cfg.Throttle); err != nil {
				return nil, err
			}
		}
		first = false
		if c.clock.Now().Sub(windowStart) >= c.cfg.NoLabelWindow {
			slog.Debug("No label within window", "session_id", c.sess.ID)
			return EventNoLabel{}, nil
		}
		if reading, ok := c.tryFrame(ctx); ok {
			return EventFrameText{Reading: reading}, nil
		}
	}
}

// tryFrame grabs and recognizes one frame. Any failure, device hiccup or
// empty recognition alike, reads as "no usable text yet".
func (c *Controller) tryFrame(ctx context.Context) (recognize.Reading, bool) {
	frame, err := c.frames.Frame(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoFrame) {
			slog.Warn("Frame acquisition failed", "session_id", c.sess.ID, "error", err)
		}
		return recognize.Reading{}, false
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RecognizeTimeout)
	defer cancel()
	reading, err := c.recognizer.Recognize(rctx, frame)
	if err != nil {
		if !errors.Is(err, recognize.ErrNoText) {
			slog.Warn("Recognition failed", "session_id", c.sess.ID, "error", err)
		}
		return recognize.Reading{}, false
	}
	if reading.Empty() {
		return recognize.Reading{}, false
	}
	return reading, true
}

func (c *Controller) emitRecord(ctx context.Context, e EffectEmitRecord) {
	now := c.clock.Now()
	rec := record.Record{
		SessionID:    c.sess.ID,
		MedicationID: c.meta.MedicationID,
		PatientID:    c.meta.PatientID,
		Verdict:      e.Verdict,
		RawText:      e.RawText,
		Manual:       e.Manual,
		Timestamp:    now,
	}
	if !c.meta.ScheduledAt.IsZero() {
		w := c.meta.Window
		if w.OnTime == 0 && w.Late == 0 {
			w = schedule.DefaultWindow()
		}
		rec.Adherence = w.Classify(c.meta.ScheduledAt, now)
	}
	c.emitter.Emit(ctx, rec)
}

func (c *Controller) release() {
	c.mu.Lock()
	already := c.released
	c.released = true
	c.mu.Unlock()
	if already {
		return
	}
	if err := c.frames.Close(); err != nil {
		slog.Warn("Failed to release frame source", "session_id", c.sess.ID, "error", err)
	}
}
