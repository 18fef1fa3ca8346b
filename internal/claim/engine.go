// File: internal/claim/engine.go
package claim

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
)

const defaultClickAttempts = 3

// Outcome is the result of claiming one reward.
type Outcome struct {
	Selector    string    `json:"selector"`
	Method      string    `json:"method,omitempty"`
	Success     bool      `json:"success"`
	Clicked     bool      `json:"clicked"`
	Attempts    int       `json:"attempts"`
	Confirmed   bool      `json:"confirmed"`
	DialogFound bool      `json:"dialog_found"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Result summarizes a claim batch.
type Result struct {
	Success         bool      `json:"success"`
	DryRun          bool      `json:"dry_run,omitempty"`
	NoRewards       bool      `json:"no_rewards,omitempty"`
	ClaimsProcessed int       `json:"claims_processed"`
	TotalAttempts   int       `json:"total_attempts"`
	Successful      []Outcome `json:"successful_claims"`
	Failed          []Outcome `json:"failed_claims"`
	Errors          []string  `json:"error_details,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// DryRunResult is reported in place of claiming when nothing may be clicked.
func DryRunResult() Result {
	return Result{
		Success:    true,
		DryRun:     true,
		Successful: []Outcome{},
		Failed:     []Outcome{},
		Timestamp:  time.Now().UTC(),
	}
}

// Engine clicks claimable rewards with human-like pacing.
type Engine struct {
	cfg    config.ClaimConfig
	timing *humanoid.Timing
	logger *zap.Logger
}

// NewEngine creates a claim engine.
func NewEngine(cfg config.ClaimConfig, timing *humanoid.Timing, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClickAttempts <= 0 {
		cfg.ClickAttempts = defaultClickAttempts
	}
	return &Engine{cfg: cfg, timing: timing, logger: logger.Named("claim")}
}

// ClaimAvailableRewards claims every claimable reward in avail. Individual
// failures are collected without stopping the batch; the batch succeeds when
// at least one reward was claimed, or when there was nothing to claim. The
// error is non-nil only if ctx ends mid-batch.
func (e *Engine) ClaimAvailableRewards(ctx context.Context, b browser.Browser, avail *detection.Availability) (Result, error) {
	res := Result{
		Successful: []Outcome{},
		Failed:     []Outcome{},
		Timestamp:  time.Now().UTC(),
	}
	if !avail.HasClaimable() {
		e.logger.Info("No claimable rewards")
		res.Success = true
		res.NoRewards = true
		return res, nil
	}

	e.logger.Info("Starting reward claiming", zap.Int("claimable", len(avail.Claimable)))
	for i, reward := range avail.Claimable {
		if i > 0 {
			if err := e.timing.RandomPause(ctx); err != nil {
				return res, err
			}
		}

		out, err := e.claimOne(ctx, b, reward)
		res.TotalAttempts += out.Attempts
		if err != nil {
			return res, err
		}
		if out.Success {
			res.ClaimsProcessed++
			res.Successful = append(res.Successful, out)
		} else {
			res.Failed = append(res.Failed, out)
			res.Errors = append(res.Errors, out.Error)
		}
	}

	res.Success = res.ClaimsProcessed > 0
	e.logger.Info("Reward claiming completed",
		zap.Int("claims_processed", res.ClaimsProcessed),
		zap.Int("failed", len(res.Failed)),
		zap.Int("total_attempts", res.TotalAttempts),
	)
	return res, nil
}

func (e *Engine) claimOne(ctx context.Context, b browser.Browser, reward detection.RewardState) (Outcome, error) {
	out := Outcome{Selector: reward.Selector, Method: reward.Method, Timestamp: time.Now().UTC()}

	if err := e.timing.Click(ctx); err != nil {
		return out, err
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.ClickAttempts; attempt++ {
		out.Attempts = attempt
		clicked, err := b.ClickElement(ctx, reward.Selector, e.cfg.ClickTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			lastErr = err
		}
		if clicked {
			out.Clicked = true
			break
		}
		e.logger.Debug("Click attempt failed",
			zap.String("selector", reward.Selector),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < e.cfg.ClickAttempts {
			if err := e.timing.Retry(ctx); err != nil {
				return out, err
			}
		}
	}

	if !out.Clicked {
		out.Error = fmt.Sprintf("failed to click after %d attempts", out.Attempts)
		if lastErr != nil {
			out.Error += ": " + lastErr.Error()
		}
		e.logger.Warn("Reward claim failed", zap.String("selector", reward.Selector), zap.String("error", out.Error))
		return out, nil
	}

	conf, err := e.HandleConfirmation(ctx, b)
	if err != nil {
		return out, err
	}
	out.Confirmed = conf.Confirmed
	out.DialogFound = conf.DialogFound
	out.Success = out.Clicked && (out.Confirmed || !out.DialogFound)
	if !out.Success {
		out.Error = "confirmation dialog could not be accepted"
	}

	e.logger.Info("Reward claim attempted",
		zap.String("selector", reward.Selector),
		zap.Bool("success", out.Success),
		zap.Bool("dialog_found", out.DialogFound),
	)
	return out, nil
}
