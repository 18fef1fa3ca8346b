// File: internal/workflow/runner.go
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"github.com/xkilldash9x/dailyclaim/internal/observability"
)

// OrchestratorFactory builds the orchestrator for one account.
type OrchestratorFactory func(account config.AuthConfig) (*Orchestrator, error)

// RunnerOptions bounds fan-out and retries.
type RunnerOptions struct {
	MaxAttempts int
	Concurrency int
	// Stagger spaces account starts. Zero starts them back to back.
	Stagger time.Duration
	DryRun  bool
}

// RunnerOptionsFromConfig reads the workflow section.
func RunnerOptionsFromConfig(cfg config.WorkflowConfig, dryRun bool) RunnerOptions {
	return RunnerOptions{
		MaxAttempts: cfg.MaxAttempts,
		Concurrency: cfg.Concurrency,
		Stagger:     cfg.AccountStagger,
		DryRun:      dryRun,
	}
}

// AccountOutcome is the final result for one account after retries.
type AccountOutcome struct {
	Account  string    `json:"account"`
	Attempts []*Result `json:"attempts"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
}

// Final is the last attempt, or nil if none ran.
func (a AccountOutcome) Final() *Result {
	if len(a.Attempts) == 0 {
		return nil
	}
	return a.Attempts[len(a.Attempts)-1]
}

// Succeeded reports whether the final attempt succeeded.
func (a AccountOutcome) Succeeded() bool {
	f := a.Final()
	return a.Err == nil && f != nil && f.Success
}

// Runner executes the workflow for many accounts, each on its own browser.
type Runner struct {
	opts     RunnerOptions
	browsers browser.Factory
	build    OrchestratorFactory
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions, browsers browser.Factory, build OrchestratorFactory, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	limit := rate.Inf
	if opts.Stagger > 0 {
		limit = rate.Every(opts.Stagger)
	}
	return &Runner{
		opts:     opts,
		browsers: browsers,
		build:    build,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.Named("runner"),
	}
}

// RunAll runs every account and returns one outcome per account, in input
// order. Account failures are reported in the outcomes; the error is non-nil
// only when ctx ended.
func (r *Runner) RunAll(ctx context.Context, accounts []config.AuthConfig) ([]AccountOutcome, error) {
	outcomes := make([]AccountOutcome, len(accounts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, acct := range accounts {
		if err := r.limiter.Wait(gctx); err != nil {
			r.logger.Warn("Context cancelled while waiting to start account", zap.String("account", acct.Name), zap.Error(err))
			break
		}
		i, acct := i, acct
		g.Go(func() error {
			out := r.RunAccount(gctx, acct)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range outcomes {
		if outcomes[i].Account == "" {
			outcomes[i].Account = accounts[i].Name
		}
	}
	return outcomes, ctx.Err()
}

// RunAccount runs one account, retrying while recovery recommends it and
// the attempt budget allows. Authentication and configuration failures are
// never retried.
func (r *Runner) RunAccount(ctx context.Context, acct config.AuthConfig) AccountOutcome {
	out := AccountOutcome{Account: acct.Name, Attempts: []*Result{}}
	logger := r.logger.With(zap.String("account", acct.Name))

	orch, err := r.build(acct)
	if err != nil {
		out.Err = err
		out.Error = observability.RedactString(err.Error())
		logger.Error("Could not build workflow", zap.Error(err))
		return out
	}

	runID := uuid.NewString()
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		run := Run{ID: runID, Account: acct.Name, Attempt: attempt, DryRun: r.opts.DryRun}

		res, err := r.attempt(ctx, orch, run)
		if res != nil {
			out.Attempts = append(out.Attempts, res)
		}
		out.Err = err
		if err == nil {
			out.Error = ""
			return out
		}
		out.Error = observability.RedactString(err.Error())

		if ctx.Err() != nil || !shouldRetry(res, err) || attempt == r.opts.MaxAttempts {
			break
		}
		logger.Warn("Retrying check-in", zap.Int("next_attempt", attempt+1), zap.Error(err))
	}
	return out
}

func (r *Runner) attempt(ctx context.Context, orch *Orchestrator, run Run) (*Result, error) {
	b, err := r.browsers(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.KindGeneric, "browser.open", err)
	}
	return orch.Execute(ctx, b, run)
}

// shouldRetry applies the retry policy to a failed attempt.
func shouldRetry(res *Result, err error) bool {
	if failure.IsKind(err, failure.KindAuthentication) || failure.IsKind(err, failure.KindConfiguration) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if res == nil {
		// The browser never opened; nothing was classified.
		return true
	}
	return res.Recovery != nil && res.Recovery.RetryRecommended
}
