package executor

import (
	"context"
	"time"
)

// WaitUntil blocks until offset units have passed since start or ctx ends
func WaitUntil(ctx context.Context, start time.Time, offset int, unit time.Duration) error {
	target := start.Add(time.Duration(offset) * unit)
	d := time.Until(target)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Elapsed returns seconds since start
func Elapsed(start time.Time) float64 {
	return time.Since(start).Seconds()
}
