// File: internal/workflow/orchestrator.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/auth"
	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/claim"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"github.com/xkilldash9x/dailyclaim/internal/history"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/observability"
	"github.com/xkilldash9x/dailyclaim/internal/recovery"
	"github.com/xkilldash9x/dailyclaim/internal/validation"
)

const (
	defaultModalProbeTimeout = time.Second
	// Cleanup and history writes get their own budget so that a cancelled
	// run still closes its browser and leaves a record.
	cleanupTimeout = 15 * time.Second
)

// modalSelectors close overlays that block the page before login.
var modalSelectors = []string{
	".components-home-assets-__sign-guide_---guide-close---2VvmzE",
	"span.components-home-assets-__sign-guide_---guide-close---2VvmzE",
	".modal-close",
	".close-button",
	"[aria-label='Close']",
	"button[class*='close']",
	"span[class*='close']",
}

// Options configures an Orchestrator.
type Options struct {
	TargetURL         string
	ScreenshotDir     string
	DebugScreenshots  bool
	ModalProbeTimeout time.Duration
}

// Deps are the components an Orchestrator sequences.
type Deps struct {
	Auth      auth.Authenticator
	Detector  *detection.Engine
	Claimer   *claim.Engine
	Validator *validation.Validator
	Recovery  *recovery.Handler
	History   history.Sink
	Timing    *humanoid.Timing
	Logger    *zap.Logger
}

// Orchestrator drives one check-in on one browser session:
// navigate, dismiss modals, authenticate, detect, claim, validate.
type Orchestrator struct {
	opts      Options
	auth      auth.Authenticator
	detector  *detection.Engine
	claimer   *claim.Engine
	validator *validation.Validator
	recovery  *recovery.Handler
	sink      history.Sink
	timing    *humanoid.Timing
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an Orchestrator. Every dependency except History is required.
func New(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Auth == nil ||
		deps.Detector == nil ||
		deps.Claimer == nil ||
		deps.Validator == nil ||
		deps.Recovery == nil ||
		deps.Timing == nil {
		return nil, fmt.Errorf("cannot initialize workflow orchestrator with nil dependencies")
	}
	if opts.TargetURL == "" {
		return nil, failure.New(failure.KindConfiguration, "workflow.new", "target url is required")
	}
	if opts.ModalProbeTimeout <= 0 {
		opts.ModalProbeTimeout = defaultModalProbeTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		opts:      opts,
		auth:      deps.Auth,
		detector:  deps.Detector,
		claimer:   deps.Claimer,
		validator: deps.Validator,
		recovery:  deps.Recovery,
		sink:      deps.History,
		timing:    deps.Timing,
		logger:    logger.Named("workflow"),
		now:       time.Now,
	}, nil
}

// Execute runs the workflow on b and always closes b exactly once before
// returning. The result is returned on every path; on failure err is a
// *WorkflowError naming the last attempted step.
func (o *Orchestrator) Execute(ctx context.Context, b browser.Browser, run Run) (res *Result, err error) {
	res = &Result{
		Run:         run,
		Screenshots: []string{},
		Errors:      []string{},
		StartedAt:   o.now().UTC(),
	}
	logger := o.logger.With(
		zap.String("run_id", run.ID),
		zap.String("account", run.Account),
		zap.Int("attempt", run.Attempt),
	)

	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if cerr := b.Close(cctx); cerr != nil {
			logger.Error("Cleanup failed", zap.Error(cerr))
		} else {
			res.CleanupCompleted = true
		}
		res.FinishedAt = o.now().UTC()
		o.logResult(cctx, logger, res)
	}()

	logger.Info("Starting check-in workflow", zap.Bool("dry_run", run.DryRun))

	res.Step = StepNavigation
	if err := b.Navigate(ctx, o.opts.TargetURL); err != nil {
		return o.fail(ctx, logger, b, res, fmt.Errorf("navigate to %s: %w", o.opts.TargetURL, err))
	}
	if err := o.timing.Navigation(ctx); err != nil {
		return o.fail(ctx, logger, b, res, err)
	}

	res.Step = StepModalDismissal
	n, err := o.dismissModals(ctx, logger, b)
	res.ModalsDismissed = n
	if err != nil {
		return o.fail(ctx, logger, b, res, err)
	}

	res.Step = StepAuthentication
	ok, err := o.auth.Authenticate(ctx, b)
	res.AuthenticationSuccess = ok
	if err != nil {
		return o.fail(ctx, logger, b, res, err)
	}
	if !ok {
		return o.fail(ctx, logger, b, res,
			failure.New(failure.KindAuthentication, "workflow.authenticate", "authentication failed using %s", o.auth.Method()))
	}

	res.Step = StepRewardDetection
	avail, err := o.detector.DetectRewardAvailability(ctx, b)
	if err != nil {
		return o.fail(ctx, logger, b, res, err)
	}
	res.Detection = avail
	logger.Info("Reward detection completed",
		zap.Int("claimable", len(avail.Claimable)),
		zap.Float64("confidence", avail.Confidence),
	)

	switch {
	case run.DryRun:
		res.Step = StepDryRunComplete
		dr := claim.DryRunResult()
		res.Claiming = &dr
		logger.Info("Dry run: skipping reward claiming")

	case !avail.HasClaimable():
		res.Step = StepNoRewards
		res.Claiming = &claim.Result{Success: true, NoRewards: true, Timestamp: o.now().UTC()}
		logger.Info("No claimable rewards found")

	default:
		res.Step = StepRewardClaiming
		cr, err := o.claimer.ClaimAvailableRewards(ctx, b, avail)
		res.Claiming = &cr
		if err != nil {
			return o.fail(ctx, logger, b, res, err)
		}
		if !cr.Success {
			return o.fail(ctx, logger, b, res, claimFailure(cr))
		}

		res.Step = StepClaimValidation
		vr, err := o.validator.ValidateClaimSuccess(ctx, b, avail)
		res.Validation = &vr
		if err != nil {
			return o.fail(ctx, logger, b, res, err)
		}
		if vr.Screenshot != "" {
			res.Screenshots = append(res.Screenshots, vr.Screenshot)
		}
	}

	res.Success = true
	res.WorkflowCompleted = true
	logger.Info("Check-in workflow finished", zap.String("step", string(res.Step)))
	return res, nil
}

// fail records err, asks for a recovery recommendation and captures a debug
// screenshot. Recovery is skipped once ctx is done.
func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, b browser.Browser, res *Result, err error) (*Result, error) {
	res.Errors = append(res.Errors, observability.RedactString(err.Error()))

	if ctx.Err() == nil {
		rr := o.recovery.HandleError(ctx, b, err, res.PrimaryStrategy())
		res.Recovery = &rr
		if path := o.debugScreenshot(ctx, logger, b, "checkin_workflow_error"); path != "" {
			res.Screenshots = append(res.Screenshots, path)
		}
	}

	werr := &WorkflowError{Step: res.Step, Err: err}
	fields := []zap.Field{zap.String("step", string(res.Step)), zap.Error(err)}
	if res.Recovery != nil {
		fields = append(fields,
			zap.String("error_type", string(res.Recovery.Kind)),
			zap.Bool("retry_recommended", res.Recovery.RetryRecommended),
		)
	}
	logger.Error("Check-in workflow failed", fields...)
	return res, werr
}

// dismissModals clicks every blocking overlay it can find. Probe failures are
// ignored; only cancellation is returned.
func (o *Orchestrator) dismissModals(ctx context.Context, logger *zap.Logger, b browser.Browser) (int, error) {
	dismissed := 0
	for _, sel := range modalSelectors {
		found, err := b.FindElement(ctx, sel, o.opts.ModalProbeTimeout)
		if err != nil || !found {
			if ctx.Err() != nil {
				return dismissed, ctx.Err()
			}
			continue
		}
		clicked, err := b.ClickElement(ctx, sel, o.opts.ModalProbeTimeout)
		if err != nil && ctx.Err() != nil {
			return dismissed, ctx.Err()
		}
		if !clicked {
			continue
		}
		dismissed++
		logger.Debug("Dismissed modal", zap.String("selector", sel))
		if err := o.timing.Click(ctx); err != nil {
			return dismissed, err
		}
	}
	if dismissed > 0 {
		logger.Info("Blocking modals dismissed", zap.Int("count", dismissed))
	}
	return dismissed, nil
}

// debugScreenshot captures the page when debug screenshots are enabled.
func (o *Orchestrator) debugScreenshot(ctx context.Context, logger *zap.Logger, b browser.Browser, prefix string) string {
	if !o.opts.DebugScreenshots || b == nil {
		return ""
	}
	path, err := browser.ScreenshotPath(o.opts.ScreenshotDir, prefix, o.now())
	if err != nil {
		return ""
	}
	if err := b.Screenshot(ctx, path); err != nil {
		logger.Warn("Debug screenshot failed", zap.Error(err))
		return ""
	}
	logger.Info("Debug screenshot captured", zap.String("path", path))
	return path
}

func (o *Orchestrator) logResult(ctx context.Context, logger *zap.Logger, res *Result) {
	if o.sink == nil {
		return
	}
	if err := o.sink.Append(ctx, res.Record()); err != nil {
		logger.Error("Failed to record execution history", zap.Error(err))
	}
}

// claimFailure turns a batch in which nothing was claimed into an error.
func claimFailure(cr claim.Result) error {
	msg := "no reward could be claimed"
	if len(cr.Errors) > 0 {
		msg += ": " + cr.Errors[0]
	}
	return &failure.Error{Kind: failure.KindClaiming, Op: "workflow.claim", Err: errors.New(msg)}
}
