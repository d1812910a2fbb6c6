// Package capture drives the label scan loop: repeated frame acquisition,
// recognition and validation with bounded retries, a no-label timeout path
// and a manual-confirmation fallback.
//
// The state machine itself is pure: Apply maps (state, event) to the next
// state plus a list of side effects, so the three-strikes and timeout
// logic is testable without cameras or timers. The Controller owns the
// impure parts.
package capture

import (
	"time"

	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/validate"
)

// State is the capture session lifecycle state.
type State string

const (
	StateIdle               State = "idle"
	StateCapturing          State = "capturing"
	StateValidating         State = "validating"
	StateSuccess            State = "success"
	StateRetryPending       State = "retry_pending"
	StateManualConfirmation State = "manual_confirmation"
	StateAbandoned          State = "abandoned"
)

// Terminal reports whether no further automatic transitions can occur.
// ManualConfirmation is terminal for automation; it still accepts the
// user's confirm/decline resolution.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateAbandoned
}

// DefaultAttemptLimit caps both strike counters.
const DefaultAttemptLimit = 3

// Event is an input to the session state machine.
type Event interface{ isEvent() }

type (
	// EventStart begins capturing (user start or loop re-arm from Idle).
	EventStart struct{}
	// EventFrameText reports a frame that produced recognized text.
	EventFrameText struct{ Reading recognize.Reading }
	// EventNoLabel reports that the no-label window elapsed (auto mode) or
	// a manual capture produced no usable text.
	EventNoLabel struct{}
	// EventVerdict reports the validation outcome for the current attempt.
	EventVerdict struct {
		Verdict validate.Verdict
		Reading recognize.Reading
	}
	// EventRetry re-arms capturing after a failed validation attempt.
	EventRetry struct{}
	// EventConfirm is the user's manual "yes, taken" affirmation.
	EventConfirm struct{}
	// EventDecline is the user declining or closing the manual prompt.
	EventDecline struct{}
	// EventStop is a user-initiated cancellation.
	EventStop struct{}
)

func (EventStart) isEvent()     {}
func (EventFrameText) isEvent() {}
func (EventNoLabel) isEvent()   {}
func (EventVerdict) isEvent()   {}
func (EventRetry) isEvent()     {}
func (EventConfirm) isEvent()   {}
func (EventDecline) isEvent()   {}
func (EventStop) isEvent()      {}

// Effect is an action the controller must perform after a transition.
type Effect interface{ isEffect() }

type (
	// EffectAcquireFrame requests the next frame/recognition cycle.
	EffectAcquireFrame struct{}
	// EffectValidate requests validation of a recognized reading.
	EffectValidate struct{ Reading recognize.Reading }
	// EffectScheduleRetry requests a throttled re-arm of the capture loop.
	EffectScheduleRetry struct{}
	// EffectEmitRecord requests the one-time success record emission.
	EffectEmitRecord struct {
		Manual  bool
		Verdict validate.Verdict
		RawText string
	}
	// EffectPromptManual hands the session over to manual confirmation.
	EffectPromptManual struct{}
	// EffectReleaseDevice releases the exclusively-held capture device.
	EffectReleaseDevice struct{}
)

func (EffectAcquireFrame) isEffect()  {}
func (EffectValidate) isEffect()      {}
func (EffectScheduleRetry) isEffect() {}
func (EffectEmitRecord) isEffect()    {}
func (EffectPromptManual) isEffect()  {}
func (EffectReleaseDevice) isEffect() {}

// Session holds the state of one capture session. Sessions are never
// shared between goroutines without external synchronization; the
// pipeline components themselves are stateless and safely shared.
type Session struct {
	ID    string
	State State

	// Two independent three-strikes counters.
	ValidationFailures int
	NoLabelTimeouts    int

	AttemptLimit int

	StartedAt     time.Time
	LastAttemptAt time.Time

	LastVerdict *validate.Verdict
	LastReading recognize.Reading

	recordEmitted bool
}

// NewSession creates an idle session with the default attempt limit.
func NewSession(id string) *Session {
	return &Session{ID: id, State: StateIdle, AttemptLimit: DefaultAttemptLimit}
}

// Apply advances the state machine. Unknown or out-of-state events are
// ignored and produce no effects; in particular, events arriving after a
// terminal state never re-trigger side effects, which is what makes the
// success record emission at-most-once.
func (s *Session) Apply(ev Event, now time.Time) []Effect {
	switch e := ev.(type) {
	case EventStart:
		return s.applyStart(now)
	case EventFrameText:
		return s.applyFrameText(e, now)
	case EventNoLabel:
		return s.applyNoLabel()
	case EventVerdict:
		return s.applyVerdict(e)
	case EventRetry:
		return s.applyRetry()
	case EventConfirm:
		return s.applyConfirm()
	case EventDecline:
		return s.applyDecline()
	case EventStop:
		return s.applyStop()
	default:
		return nil
	}
}

func (s *Session) applyStart(now time.Time) []Effect {
	if s.State != StateIdle {
		return nil
	}
	s.State = StateCapturing
	s.StartedAt = now
	return []Effect{EffectAcquireFrame{}}
}

func (s *Session) applyFrameText(e EventFrameText, now time.Time) []Effect {
	if s.State != StateCapturing {
		return nil
	}
	s.State = StateValidating
	s.LastAttemptAt = now
	s.LastReading = e.Reading
	return []Effect{EffectValidate{Reading: e.Reading}}
}

func (s *Session) applyNoLabel() []Effect {
	if s.State != StateCapturing {
		return nil
	}
	s.NoLabelTimeouts++
	if s.NoLabelTimeouts >= s.limit() {
		s.State = StateManualConfirmation
		return []Effect{EffectPromptManual{}, EffectReleaseDevice{}}
	}
	return []Effect{EffectAcquireFrame{}}
}

func (s *Session) applyVerdict(e EventVerdict) []Effect {
	if s.State != StateValidating {
		return nil
	}
	v := e.Verdict
	s.LastVerdict = &v

	if v.IsValid {
		s.State = StateSuccess
		effects := []Effect{EffectReleaseDevice{}}
		if !s.recordEmitted {
			s.recordEmitted = true
			effects = append([]Effect{EffectEmitRecord{
				Verdict: v,
				RawText: e.Reading.Text,
			}}, effects...)
		}
		return effects
	}

	s.ValidationFailures++
	if s.ValidationFailures >= s.limit() {
		s.State = StateManualConfirmation
		return []Effect{EffectPromptManual{}, EffectReleaseDevice{}}
	}
	s.State = StateRetryPending
	return []Effect{EffectScheduleRetry{}}
}

func (s *Session) applyRetry() []Effect {
	if s.State != StateRetryPending {
		return nil
	}
	s.State = StateCapturing
	return []Effect{EffectAcquireFrame{}}
}

func (s *Session) applyConfirm() []Effect {
	if s.State != StateManualConfirmation {
		return nil
	}
	s.State = StateSuccess
	if s.recordEmitted {
		return nil
	}
	s.recordEmitted = true
	var verdict validate.Verdict
	if s.LastVerdict != nil {
		verdict = *s.LastVerdict
	}
	return []Effect{EffectEmitRecord{
		Manual:  true,
		Verdict: verdict,
		RawText: s.LastReading.Text,
	}}
}

func (s *Session) applyDecline() []Effect {
	if s.State != StateManualConfirmation {
		return nil
	}
	s.State = StateAbandoned
	return nil
}

func (s *Session) applyStop() []Effect {
	switch s.State {
	case StateIdle, StateCapturing, StateValidating, StateRetryPending:
		s.State = StateAbandoned
		return []Effect{EffectReleaseDevice{}}
	default:
		return nil
	}
}

func (s *Session) limit() int {
	if s.AttemptLimit > 0 {
		return s.AttemptLimit
	}
	return DefaultAttemptLimit
}
