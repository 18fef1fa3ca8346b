// File: internal/detection/engine.go
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"github.com/xkilldash9x/dailyclaim/internal/humanoid"
	"go.uber.org/zap"
)

// ErrAllStrategiesFailed is wrapped by AnalyzeInterface when no strategy could run.
var ErrAllStrategiesFailed = errors.New("all detection strategies failed")

// Engine runs the registered strategies against a page and ranks them.
// It is stateless between calls and may be shared by concurrent workflows,
// each driving its own browser.
type Engine struct {
	registry *Registry
	timing   *humanoid.Timing
	opts     Options
	logger   *zap.Logger
}

// NewEngine creates a detection engine.
func NewEngine(registry *Registry, timing *humanoid.Timing, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		timing:   timing,
		opts:     opts,
		logger:   logger.Named("detection"),
	}
}

// Registry returns the engine's strategy registry.
func (e *Engine) Registry() *Registry { return e.registry }

type ranked struct {
	strategy Strategy
	result   StrategyResult
}

// AnalyzeInterface runs every strategy, keeps those that found elements and
// ranks them by confidence, then element count. Finding nothing is a valid
// result with zero confidence; an error is returned only when every strategy
// failed to run.
func (e *Engine) AnalyzeInterface(ctx context.Context, b browser.Browser) (*DetectionResult, error) {
	strategies := e.registry.All()
	res := &DetectionResult{
		FallbackStrategies: []string{},
		Timestamp:          time.Now().UTC(),
	}

	e.logger.Info("Starting interface analysis", zap.Int("strategies", len(strategies)))

	var hits []ranked
	for _, s := range strategies {
		sr, err := s.Detect(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if res.StrategyErrors == nil {
				res.StrategyErrors = make(map[string]string)
			}
			res.StrategyErrors[s.Name()] = err.Error()
			e.logger.Warn("Strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		res.Selectors = append(res.Selectors, sr.Selectors...)
		if len(sr.FoundElements) > 0 {
			hits = append(hits, ranked{strategy: s, result: sr})
		}
	}

	if len(strategies) > 0 && len(res.StrategyErrors) == len(strategies) {
		return res, failure.Wrap(failure.KindDetection, "detection.analyze",
			fmt.Errorf("%w (%d)", ErrAllStrategiesFailed, len(strategies)))
	}

	if len(hits) == 0 {
		e.logger.Warn("No strategy found any interface elements")
		return res, nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i].result, hits[j].result
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return len(a.FoundElements) > len(b.FoundElements)
	})

	primary := hits[0]
	res.PrimaryStrategy = primary.strategy.Name()
	res.Confidence = clamp01(primary.result.Confidence)
	for _, h := range hits[1:] {
		res.FallbackStrategies = append(res.FallbackStrategies, h.strategy.Name())
	}

	if sc, ok := primary.strategy.(StateClassifier); ok {
		states, err := sc.ClassifyStates(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			e.logger.Warn("Reward state classification failed",
				zap.String("strategy", res.PrimaryStrategy), zap.Error(err))
		}
		res.RewardStates = states
	}

	e.logger.Info("Interface analysis completed",
		zap.String("primary_strategy", res.PrimaryStrategy),
		zap.Strings("fallback_strategies", res.FallbackStrategies),
		zap.Float64("confidence", res.Confidence),
	)
	return res, nil
}

// DetectRewardAvailability analyzes the page and reports which rewards can be
// claimed. Analyses below LowConfidenceGate are returned without rewards.
// Weak classifications are corroborated by up to MaxFallbackMerges fallback
// classifiers, and the confidence gains a bonus for every reward found.
func (e *Engine) DetectRewardAvailability(ctx context.Context, b browser.Browser) (*Availability, error) {
	analysis, err := e.AnalyzeInterface(ctx, b)
	if err != nil {
		return nil, err
	}

	avail := &Availability{
		Claimable:       []RewardState{},
		Claimed:         []RewardState{},
		Unavailable:     []RewardState{},
		Confidence:      analysis.Confidence,
		PrimaryStrategy: analysis.PrimaryStrategy,
		Analysis:        analysis,
		Timestamp:       time.Now().UTC(),
	}

	if analysis.Confidence < LowConfidenceGate {
		avail.LowConfidence = true
		e.logger.Warn("Detection confidence below gate, skipping reward classification",
			zap.Float64("confidence", analysis.Confidence),
			zap.Float64("gate", LowConfidenceGate),
		)
		return avail, nil
	}

	states := analysis.RewardStates
	base := analysis.Confidence
	if states.Classified {
		base = states.Confidence
	}
	avail.Claimable = append(avail.Claimable, states.Claimable...)
	avail.Claimed = append(avail.Claimed, states.Claimed...)
	avail.Unavailable = append(avail.Unavailable, states.Unavailable...)

	if base < FallbackThreshold {
		if err := e.mergeFallbacks(ctx, b, analysis.FallbackStrategies, avail); err != nil {
			return nil, err
		}
	}

	avail.TotalFound = len(avail.Claimable) + len(avail.Claimed) + len(avail.Unavailable)
	bonus := min(rewardBonusCap, float64(avail.TotalFound)*rewardBonusPerItem)
	avail.Confidence = min(1.0, base+bonus)

	e.logger.Info("Reward availability detected",
		zap.Int("claimable", len(avail.Claimable)),
		zap.Int("claimed", len(avail.Claimed)),
		zap.Int("unavailable", len(avail.Unavailable)),
		zap.Float64("confidence", avail.Confidence),
	)
	return avail, nil
}

// mergeFallbacks folds the reward lists of fallback classifiers into avail,
// skipping exact duplicates. Lists only ever grow.
func (e *Engine) mergeFallbacks(ctx context.Context, b browser.Browser, fallbacks []string, avail *Availability) error {
	seen := make(map[rewardKey]bool)
	for _, list := range [][]RewardState{avail.Claimable, avail.Claimed, avail.Unavailable} {
		for _, r := range list {
			seen[r.key()] = true
		}
	}
	add := func(dst *[]RewardState, src []RewardState) {
		for _, r := range src {
			if k := r.key(); !seen[k] {
				seen[k] = true
				*dst = append(*dst, r)
			}
		}
	}

	merged := 0
	for _, name := range fallbacks {
		if merged >= MaxFallbackMerges {
			break
		}
		s, ok := e.registry.Get(name)
		if !ok {
			continue
		}
		sc, ok := s.(StateClassifier)
		if !ok {
			continue
		}
		merged++
		states, err := sc.ClassifyStates(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Debug("Fallback classification failed", zap.String("strategy", name), zap.Error(err))
			continue
		}
		add(&avail.Claimable, states.Claimable)
		add(&avail.Claimed, states.Claimed)
		add(&avail.Unavailable, states.Unavailable)
		avail.MergedStrategies = append(avail.MergedStrategies, name)
	}
	return nil
}

// FindBestSelector returns the first selector for target, in strategy
// priority order, that is present on the page.
func (e *Engine) FindBestSelector(ctx context.Context, b browser.Browser, target TargetType) (string, bool) {
	for _, s := range e.registry.All() {
		src, ok := s.(SelectorSource)
		if !ok {
			continue
		}
		for _, sel := range src.SelectorsFor(target) {
			found, err := b.FindElement(ctx, sel, e.opts.ProbeTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return "", false
				}
				continue
			}
			if found {
				e.logger.Info("Found selector for target",
					zap.String("target", string(target)),
					zap.String("selector", truncate(sel, 50)),
					zap.String("strategy", s.Name()),
				)
				return sel, true
			}
		}
	}
	e.logger.Warn("No selector found for target", zap.String("target", string(target)))
	return "", false
}

// Reliability is the outcome of repeatedly probing one selector.
type Reliability struct {
	Selector         string        `json:"selector" yaml:"selector"`
	Attempts         int           `json:"total_attempts" yaml:"total_attempts"`
	Successes        int           `json:"successful_attempts" yaml:"successful_attempts"`
	ReliabilityScore float64       `json:"reliability_score" yaml:"reliability_score"`
	AvgFindTime      time.Duration `json:"average_find_time" yaml:"average_find_time"`
	Errors           []string      `json:"errors" yaml:"errors"`
}

// ValidateSelectorReliability probes selector attempts times, spaced by the
// configured gap, and reports the success ratio and mean find time.
func (e *Engine) ValidateSelectorReliability(ctx context.Context, b browser.Browser, selector string, attempts int) (Reliability, error) {
	if attempts <= 0 {
		attempts = 3
	}
	rel := Reliability{Selector: selector, Attempts: attempts, Errors: []string{}}

	var total time.Duration
	for i := 0; i < attempts; i++ {
		start := time.Now()
		found, err := b.FindElement(ctx, selector, e.opts.ReliabilityTimeout)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return rel, ctx.Err()
			}
			rel.Errors = append(rel.Errors, err.Error())
		case found:
			rel.Successes++
			total += time.Since(start)
		}
		if i < attempts-1 {
			if err := e.timing.Wait(ctx, e.opts.ReliabilityGap); err != nil {
				return rel, err
			}
		}
	}

	rel.ReliabilityScore = float64(rel.Successes) / float64(attempts)
	if rel.Successes > 0 {
		rel.AvgFindTime = total / time.Duration(rel.Successes)
	}

	e.logger.Info("Selector reliability validated",
		zap.String("selector", truncate(selector, 30)),
		zap.Float64("reliability", rel.ReliabilityScore),
		zap.Duration("avg_time", rel.AvgFindTime),
	)
	return rel, nil
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
