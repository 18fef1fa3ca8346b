// File: internal/humanoid/testing.go
package humanoid

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

// RecordingSleeper records requested delays without sleeping.
type RecordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Delays returns a copy of every recorded delay.
func (r *RecordingSleeper) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// Count is the number of recorded sleeps.
func (r *RecordingSleeper) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

// DefaultTimingConfig mirrors the production defaults.
func DefaultTimingConfig() config.TimingConfig {
	return config.TimingConfig{
		MinDelay:           defaultMinDelay,
		PageLoadBase:       2000 * time.Millisecond,
		PageLoadVariance:   0.4,
		ClickBase:          1000 * time.Millisecond,
		ClickVariance:      0.5,
		NavigationBase:     3000 * time.Millisecond,
		NavigationVariance: 0.3,
		TypingBase:         100 * time.Millisecond,
		TypingVariance:     0.8,
		RandomPauseMin:     500 * time.Millisecond,
		RandomPauseMax:     2000 * time.Millisecond,
	}
}

// NewTestTiming returns a deterministic Timing that never sleeps, and the
// recorder that observes it.
func NewTestTiming(seed int64) (*Timing, *RecordingSleeper) {
	rec := &RecordingSleeper{}
	return NewWithSleeper(DefaultTimingConfig(), zap.NewNop(), rec, seed), rec
}
