// File: internal/validation/validator.go
package validation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
)

// Signal group weights and the acceptance threshold.
const (
	WeightUIFeedback        = 0.4
	WeightStateChanges      = 0.4
	WeightSuccessIndicators = 0.2
	ValidatedThreshold      = 0.6

	claimableDecreasedConfidence = 0.8
	claimedIncreasedConfidence   = 0.9
	iconConfidence               = 0.7
)

// Group names a family of evidence.
type Group string

const (
	GroupUIFeedback        Group = "ui_feedback"
	GroupStateChanges      Group = "state_changes"
	GroupSuccessIndicators Group = "success_indicators"
)

type weightedSelector struct {
	selector   string
	confidence float64
}

var uiFeedbackSelectors = []weightedSelector{
	{".success-message", 0.9},
	{".toast-success", 0.85},
	{".notification.success", 0.85},
	{"[data-status='success']", 0.85},
	{"[role='alert'][class*='success']", 0.8},
	{browser.TextSelector("Claimed successfully"), 0.9},
	{browser.TextSelector("Check-in successful"), 0.9},
	{browser.TextSelector("Checked in today"), 0.85},
	{browser.TextSelector("签到成功"), 0.9},
	{browser.TextSelector("簽到成功"), 0.9},
	{browser.TextSelector("領取成功"), 0.9},
}

var successIconSelectors = []string{
	".success-icon",
	".icon-success",
	".checkmark",
	"i[class*='check']",
	"svg[class*='success']",
}

// Signal is one piece of evidence that a claim went through.
type Signal struct {
	Group      Group   `json:"group"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of validating a claim.
type Result struct {
	Validated         bool      `json:"claim_validated"`
	Confidence        float64   `json:"validation_confidence"`
	UIFeedback        []Signal  `json:"ui_feedback"`
	StateChanges      []Signal  `json:"state_changes"`
	SuccessIndicators []Signal  `json:"success_indicators"`
	Screenshot        string    `json:"screenshot,omitempty"`
	Errors            []string  `json:"errors,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// AvailabilityDetector re-reads reward state after a claim.
type AvailabilityDetector interface {
	DetectRewardAvailability(ctx context.Context, b browser.Browser) (*detection.Availability, error)
}

// Validator gathers post-claim evidence.
type Validator struct {
	detector      AvailabilityDetector
	probeTimeout  time.Duration
	screenshotDir string
	logger        *zap.Logger
	now           func() time.Time
}

// NewValidator creates a validator. screenshotDir may be empty to use the default.
func NewValidator(detector AvailabilityDetector, probeTimeout time.Duration, screenshotDir string, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &Validator{
		detector:      detector,
		probeTimeout:  probeTimeout,
		screenshotDir: screenshotDir,
		logger:        logger.Named("validation"),
		now:           time.Now,
	}
}

// ValidateClaimSuccess scores UI feedback, reward state deltas against pre
// and success icons. Groups without evidence are left out of the weighted
// mean. pre may be nil, in which case no state delta is computed.
func (v *Validator) ValidateClaimSuccess(ctx context.Context, b browser.Browser, pre *detection.Availability) (Result, error) {
	res := Result{
		UIFeedback:        []Signal{},
		StateChanges:      []Signal{},
		SuccessIndicators: []Signal{},
		Timestamp:         v.now().UTC(),
	}

	for _, ws := range uiFeedbackSelectors {
		found, err := b.FindElement(ctx, ws.selector, v.probeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		if found {
			res.UIFeedback = append(res.UIFeedback, Signal{Group: GroupUIFeedback, Evidence: ws.selector, Confidence: ws.confidence})
		}
	}

	if pre != nil && v.detector != nil {
		post, err := v.detector.DetectRewardAvailability(ctx, b)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors = append(res.Errors, err.Error())
			v.logger.Warn("Post-claim detection failed", zap.Error(err))
		case post == nil:
		case post.LowConfidence || post.Confidence < detection.LowConfidenceGate:
			// An empty or unreadable page yields no rewards at all.
			v.logger.Warn("Post-claim detection too weak to compare reward states",
				zap.Float64("confidence", post.Confidence))
		default:
			if len(post.Claimable) < len(pre.Claimable) {
				res.StateChanges = append(res.StateChanges, Signal{Group: GroupStateChanges, Evidence: "claimable_decreased", Confidence: claimableDecreasedConfidence})
			}
			if len(post.Claimed) > len(pre.Claimed) {
				res.StateChanges = append(res.StateChanges, Signal{Group: GroupStateChanges, Evidence: "claimed_increased", Confidence: claimedIncreasedConfidence})
			}
		}
	}

	for _, sel := range successIconSelectors {
		found, err := b.FindElement(ctx, sel, v.probeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		if found {
			res.SuccessIndicators = append(res.SuccessIndicators, Signal{Group: GroupSuccessIndicators, Evidence: sel, Confidence: iconConfidence})
		}
	}

	res.Confidence = Score(res.UIFeedback, res.StateChanges, res.SuccessIndicators)
	res.Validated = res.Confidence > ValidatedThreshold

	if res.Validated {
		if path, err := browser.ScreenshotPath(v.screenshotDir, "claim_success", v.now()); err == nil {
			if err := b.Screenshot(ctx, path); err != nil {
				v.logger.Warn("Failed to capture confirmation screenshot", zap.Error(err))
			} else {
				res.Screenshot = path
			}
		}
	}

	v.logger.Info("Claim validation completed",
		zap.Bool("validated", res.Validated),
		zap.Float64("confidence", res.Confidence),
		zap.Int("ui_feedback", len(res.UIFeedback)),
		zap.Int("state_changes", len(res.StateChanges)),
		zap.Int("success_indicators", len(res.SuccessIndicators)),
	)
	return res, nil
}

// Score is the availability-weighted mean of each group's average confidence.
func Score(ui, state, icons []Signal) float64 {
	var sum, weights float64
	for _, g := range []struct {
		signals []Signal
		weight  float64
	}{
		{ui, WeightUIFeedback},
		{state, WeightStateChanges},
		{icons, WeightSuccessIndicators},
	} {
		if len(g.signals) == 0 {
			continue
		}
		var total float64
		for _, s := range g.signals {
			total += s.Confidence
		}
		sum += g.weight * total / float64(len(g.signals))
		weights += g.weight
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}
