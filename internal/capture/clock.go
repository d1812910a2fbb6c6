package capture

import (
	"context"
	"time"
)

// Clock abstracts time for the controller so throttle and window logic
// can run against a fake clock in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until the context is cancelled, in which case
	// it returns the context's error.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the system timer.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
