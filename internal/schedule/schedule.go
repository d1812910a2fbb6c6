// Package schedule handles dose timing concerns that are deliberately
// separate from label matching: formatting a scheduled time the way it is
// printed on the label, and classifying how far from schedule a dose was
// actually taken. Printed-time matching answers "is this the right
// label"; drift answers "was it taken on time". The two never feed each
// other.
package schedule

import (
	"fmt"
	"time"
)

// Status classifies adherence drift for a dose.
type Status string

const (
	StatusOnTime Status = "on_time"
	StatusLate   Status = "late"
	StatusMissed Status = "missed"
)

// Window holds the drift thresholds.
type Window struct {
	OnTime time.Duration // at most this far from schedule counts as on time
	Late   time.Duration // beyond OnTime up to this is late; beyond is missed
}

// DefaultWindow returns the standard 60/120 minute drift windows.
func DefaultWindow() Window {
	return Window{OnTime: 60 * time.Minute, Late: 120 * time.Minute}
}

// Classify returns the drift status of a dose taken at the given moment
// relative to its scheduled time. Drift counts in both directions; taking
// a dose early is the same distance from schedule as taking it late.
func (w Window) Classify(scheduled, taken time.Time) Status {
	drift := taken.Sub(scheduled)
	if drift < 0 {
		drift = -drift
	}
	switch {
	case drift <= w.OnTime:
		return StatusOnTime
	case drift <= w.Late:
		return StatusLate
	default:
		return StatusMissed
	}
}

// DisplayTime formats a scheduled dose time in the patient's stored
// timezone as the locale display string printed on labels (e.g. "9:00 AM").
func DisplayTime(t time.Time, timezone string) (string, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("load patient timezone %q: %w", timezone, err)
	}
	return t.In(loc).Format("3:04 PM"), nil
}
