// File: internal/humanoid/timing.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/config"
	"go.uber.org/zap"
)

const (
	defaultMinDelay = 100 * time.Millisecond

	// confirmationBase is how long a confirmation dialog is given to render.
	confirmationBase     = 1500 * time.Millisecond
	confirmationVariance = 0.3
)

// Sleeper pauses for a duration, returning early if ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// ContextSleep is the production sleeper.
var ContextSleep = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
})

// Timing produces randomized, human-like pauses between browser actions.
// It is safe for concurrent use.
type Timing struct {
	cfg     config.TimingConfig
	logger  *zap.Logger
	sleeper Sleeper

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Timing that really sleeps.
func New(cfg config.TimingConfig, logger *zap.Logger) *Timing {
	return NewWithSleeper(cfg, logger, ContextSleep, time.Now().UnixNano())
}

// NewWithSleeper creates a Timing with an explicit sleeper and seed.
func NewWithSleeper(cfg config.TimingConfig, logger *zap.Logger, sleeper Sleeper, seed int64) *Timing {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = defaultMinDelay
	}
	return &Timing{
		cfg:     cfg,
		logger:  logger.Named("timing"),
		sleeper: sleeper,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Jitter returns base shifted uniformly by up to base*variance in either
// direction, never below the configured minimum delay.
func (t *Timing) Jitter(base time.Duration, variance float64) time.Duration {
	if variance < 0 {
		variance = 0
	}
	t.mu.Lock()
	r := t.rng.Float64()*2 - 1
	t.mu.Unlock()

	d := base + time.Duration(float64(base)*variance*r)
	if d < t.cfg.MinDelay {
		d = t.cfg.MinDelay
	}
	return d
}

// HumanDelay sleeps for a jittered duration around base.
func (t *Timing) HumanDelay(ctx context.Context, base time.Duration, variance float64) error {
	d := t.Jitter(base, variance)
	t.logger.Debug("Human delay applied",
		zap.Duration("base", base),
		zap.Duration("actual", d),
		zap.Float64("variance", variance),
	)
	return t.sleeper.Sleep(ctx, d)
}

// PageLoad waits as if reading a freshly loaded page.
func (t *Timing) PageLoad(ctx context.Context) error {
	return t.HumanDelay(ctx, t.cfg.PageLoadBase, t.cfg.PageLoadVariance)
}

// Click waits before a click.
func (t *Timing) Click(ctx context.Context) error {
	return t.HumanDelay(ctx, t.cfg.ClickBase, t.cfg.ClickVariance)
}

// Retry is the shorter pause between click attempts.
func (t *Timing) Retry(ctx context.Context) error {
	return t.HumanDelay(ctx, t.cfg.ClickBase/2, t.cfg.ClickVariance)
}

// Navigation waits after a navigation.
func (t *Timing) Navigation(ctx context.Context) error {
	return t.HumanDelay(ctx, t.cfg.NavigationBase, t.cfg.NavigationVariance)
}

// Typing waits between keystroke bursts.
func (t *Timing) Typing(ctx context.Context) error {
	return t.HumanDelay(ctx, t.cfg.TypingBase, t.cfg.TypingVariance)
}

// Confirmation waits for a confirmation dialog to render.
func (t *Timing) Confirmation(ctx context.Context) error {
	return t.HumanDelay(ctx, confirmationBase, confirmationVariance)
}

// Wait sleeps for exactly d. Used for fixed cooldowns.
func (t *Timing) Wait(ctx context.Context, d time.Duration) error {
	return t.sleeper.Sleep(ctx, d)
}

// RandomPause sleeps for a uniformly random duration in the configured range.
func (t *Timing) RandomPause(ctx context.Context) error {
	lo, hi := t.cfg.RandomPauseMin, t.cfg.RandomPauseMax
	d := lo
	if hi > lo {
		t.mu.Lock()
		d += time.Duration(t.rng.Int63n(int64(hi - lo)))
		t.mu.Unlock()
	}
	return t.sleeper.Sleep(ctx, d)
}
