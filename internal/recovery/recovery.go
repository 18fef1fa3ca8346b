// File: internal/recovery/recovery.go
package recovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dailyclaim/internal/auth"
	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/detection"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"github.com/xkilldash9x/dailyclaim/internal/observability"
)

const (
	defaultCooldown     = 5 * time.Second
	genericWait         = time.Second
	defaultProbeTimeout = 2 * time.Second
	// uiRecoveryGate is the analysis confidence a re-detected interface must exceed.
	uiRecoveryGate = detection.LowConfidenceGate
)

// Result is the recommendation produced for one failure.
type Result struct {
	Kind              failure.Kind `json:"error_type"`
	Message           string       `json:"error_message"`
	RecoveryAttempted bool         `json:"recovery_attempted"`
	RecoverySuccess   bool         `json:"recovery_success"`
	RetryRecommended  bool         `json:"retry_recommended"`
	FallbackAvailable bool         `json:"fallback_available"`
	FallbackStrategy  string       `json:"fallback_strategy,omitempty"`
	Detail            string       `json:"detail,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
}

// messageRules are applied in order to untyped errors.
var messageRules = []struct {
	needle string
	kind   failure.Kind
}{
	{"timeout", failure.KindNetworkTimeout},
	{"not found", failure.KindElementNotFound},
	{"auth", failure.KindAuthentication},
	{"ui", failure.KindUIChange},
}

// Classify maps err onto the recovery taxonomy. Typed failures are mapped by
// kind; context deadlines count as timeouts; anything else falls back to a
// case-insensitive match on the message.
func Classify(err error) failure.Kind {
	if err == nil {
		return failure.KindGeneric
	}
	if k, ok := failure.KindOf(err); ok {
		switch k {
		case failure.KindNetworkTimeout, failure.KindElementNotFound,
			failure.KindAuthentication, failure.KindUIChange, failure.KindGeneric:
			return k
		case failure.KindDetection:
			return failure.KindUIChange
		case failure.KindClaiming:
			return failure.KindElementNotFound
		default:
			return failure.KindGeneric
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.KindNetworkTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, r := range messageRules {
		if strings.Contains(msg, r.needle) {
			return r.kind
		}
	}
	return failure.KindGeneric
}

// Analyzer re-runs interface analysis for UI change recovery.
type Analyzer interface {
	AnalyzeInterface(ctx context.Context, b browser.Browser) (*detection.DetectionResult, error)
}

// Handler turns failures into recovery recommendations. It never decides
// that a failure is fatal; the caller's retry budget does.
type Handler struct {
	analyzer     Analyzer
	strategies   *detection.Registry
	timing       *humanoid.Timing
	cooldown     time.Duration
	probeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewHandler creates a handler. A zero cooldown uses the default of 5s.
func NewHandler(analyzer Analyzer, strategies *detection.Registry, timing *humanoid.Timing, cooldown time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Handler{
		analyzer:     analyzer,
		strategies:   strategies,
		timing:       timing,
		cooldown:     cooldown,
		probeTimeout: defaultProbeTimeout,
		logger:       logger.Named("recovery"),
		now:          time.Now,
	}
}

// HandleError classifies err and attempts the matching recovery against b.
// primary names the strategy in use when the failure happened, so that
// element recovery only tries the others. b may be nil when the session
// never opened.
func (h *Handler) HandleError(ctx context.Context, b browser.Browser, err error, primary string) Result {
	res := Result{
		Kind:              Classify(err),
		RecoveryAttempted: true,
		Timestamp:         h.now().UTC(),
	}
	if err != nil {
		res.Message = observability.RedactString(err.Error())
	}

	switch res.Kind {
	case failure.KindNetworkTimeout:
		h.recoverTimeout(ctx, b, &res)
	case failure.KindElementNotFound:
		h.recoverElement(ctx, b, primary, &res)
	case failure.KindAuthentication:
		h.recoverAuth(ctx, b, &res)
	case failure.KindUIChange:
		h.recoverUIChange(ctx, b, &res)
	default:
		h.recoverGeneric(ctx, b, &res)
	}

	h.logger.Info("Workflow error handled",
		zap.String("error_type", string(res.Kind)),
		zap.Bool("recovery_success", res.RecoverySuccess),
		zap.Bool("retry_recommended", res.RetryRecommended),
		zap.Bool("fallback_available", res.FallbackAvailable),
		zap.String("detail", res.Detail),
	)
	return res
}

func (h *Handler) recoverTimeout(ctx context.Context, b browser.Browser, res *Result) {
	res.RetryRecommended = true
	res.FallbackAvailable = true
	if err := h.timing.Wait(ctx, h.cooldown); err != nil {
		res.Detail = err.Error()
		return
	}
	res.RecoverySuccess = h.alive(ctx, b, res)
}

func (h *Handler) recoverElement(ctx context.Context, b browser.Browser, primary string, res *Result) {
	if b == nil || h.strategies == nil {
		res.Detail = "no session to re-detect against"
		return
	}
	for _, s := range h.strategies.All() {
		if s.Name() == primary {
			continue
		}
		sr, err := s.Detect(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				res.Detail = ctx.Err().Error()
				return
			}
			h.logger.Debug("Fallback strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if len(sr.FoundElements) > 0 {
			res.RecoverySuccess = true
			res.RetryRecommended = true
			res.FallbackAvailable = true
			res.FallbackStrategy = s.Name()
			return
		}
	}
	res.Detail = "no fallback strategy found elements"
}

func (h *Handler) recoverAuth(ctx context.Context, b browser.Browser, res *Result) {
	if b == nil {
		res.FallbackAvailable = true
		res.Detail = "no session to probe for a login prompt"
		return
	}
	found, sel, err := auth.LoginPromptVisible(ctx, b, h.probeTimeout)
	if err != nil {
		// The prompt state is unknown; treat it like a missing prompt.
		res.RetryRecommended = true
		res.Detail = "login prompt check failed: " + err.Error()
		return
	}
	if found {
		// Session is gone; only re-authentication helps.
		res.FallbackAvailable = true
		res.Detail = "login prompt visible: " + sel
		return
	}
	res.RecoverySuccess = true
	res.RetryRecommended = true
	res.Detail = "no login prompt, possible false positive"
}

func (h *Handler) recoverUIChange(ctx context.Context, b browser.Browser, res *Result) {
	if b == nil || h.analyzer == nil {
		res.Detail = "no session to re-analyze"
		return
	}
	analysis, err := h.analyzer.AnalyzeInterface(ctx, b)
	if err != nil {
		res.Detail = err.Error()
		return
	}
	ok := analysis.Confidence > uiRecoveryGate
	res.RecoverySuccess = ok
	res.RetryRecommended = ok
	res.FallbackAvailable = ok
	if ok {
		res.FallbackStrategy = analysis.PrimaryStrategy
	}
}

func (h *Handler) recoverGeneric(ctx context.Context, b browser.Browser, res *Result) {
	res.RetryRecommended = true
	if err := h.timing.Wait(ctx, genericWait); err != nil {
		res.Detail = err.Error()
		return
	}
	res.RecoverySuccess = h.alive(ctx, b, res)
}

// alive checks that the session still answers.
func (h *Handler) alive(ctx context.Context, b browser.Browser, res *Result) bool {
	if b == nil {
		res.Detail = "no session"
		return false
	}
	if _, err := b.CurrentURL(ctx); err != nil {
		res.Detail = "browser unresponsive: " + err.Error()
		return false
	}
	return true
}
