package actuator

import (
	"context"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/config"
)

// Timing holds the retry count and waits of the heat pump dispatch
type Timing struct {
	Attempts      int
	OnSettle      time.Duration
	OnRetryPause  time.Duration
	OffSettle     time.Duration
	OffRetryPause time.Duration
	ContactSettle time.Duration
}

// NewTiming converts the configured dispatch tuning
func NewTiming(t config.DispatchTuning) Timing {
	return Timing{
		Attempts:      t.Attempts,
		OnSettle:      t.OnSettle.Duration(),
		OnRetryPause:  t.OnRetryPause.Duration(),
		OffSettle:     t.OffSettle.Duration(),
		OffRetryPause: t.OffRetryPause.Duration(),
		ContactSettle: t.ContactSettle.Duration(),
	}
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
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
