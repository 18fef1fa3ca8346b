// File: internal/detection/strategy.go
package detection

import (
	"context"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"github.com/xkilldash9x/dailyclaim/internal/config"
	"github.com/xkilldash9x/dailyclaim/internal/failure"
	"go.uber.org/zap"
)

// SelectorGroup is an ordered list of selectors for one target type.
type SelectorGroup struct {
	Target    TargetType
	Selectors []string
	// Patterns holds the text each selector was built from, if any.
	Patterns []string
}

// StateSelector is a selector that identifies a reward in a given state.
type StateSelector struct {
	Selector   string
	Confidence float64
}

// StateTable holds the three disjoint selector families used to classify rewards.
type StateTable struct {
	Claimable   []StateSelector
	Claimed     []StateSelector
	Unavailable []StateSelector
	// Confidence is reported when classification ran normally.
	Confidence float64
}

// Options tunes probe timeouts.
type Options struct {
	ProbeTimeout      time.Duration
	StateProbeTimeout time.Duration
	// ProbeAttempts is how often a probe that errors is tried before it
	// counts as failed. A timeout is an answer and is never retried.
	ProbeAttempts      int
	ReliabilityTimeout time.Duration
	ReliabilityGap     time.Duration
}

// DefaultOptions matches the shipped configuration.
func DefaultOptions() Options {
	return Options{
		ProbeTimeout:       3 * time.Second,
		StateProbeTimeout:  2 * time.Second,
		ProbeAttempts:      3,
		ReliabilityTimeout: 5 * time.Second,
		ReliabilityGap:     500 * time.Millisecond,
	}
}

// OptionsFromConfig applies configured probe settings over the defaults.
func OptionsFromConfig(cfg config.DetectionConfig) Options {
	o := DefaultOptions()
	if cfg.ProbeTimeout > 0 {
		o.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.StateProbeTimeout > 0 {
		o.StateProbeTimeout = cfg.StateProbeTimeout
	}
	if cfg.RetryAttempts > 0 {
		o.ProbeAttempts = cfg.RetryAttempts
	}
	if cfg.WaitTimeout > 0 {
		o.ReliabilityTimeout = cfg.WaitTimeout
	}
	return o
}

// ProbeStrategy tests a static selector table against the live page.
type ProbeStrategy struct {
	name            string
	prior           float64
	foundConfidence float64
	priority        Priority
	groups          []SelectorGroup
	timeout         time.Duration
	attempts        int
	logger          *zap.Logger
}

var (
	_ Strategy       = (*ProbeStrategy)(nil)
	_ SelectorSource = (*ProbeStrategy)(nil)
)

// NewProbeStrategy creates a strategy with an aggregate prior confidence and a
// per-selector confidence for matches.
func NewProbeStrategy(name string, prior, foundConfidence float64, priority Priority, groups []SelectorGroup, timeout time.Duration, logger *zap.Logger) *ProbeStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProbeStrategy{
		name:            name,
		prior:           prior,
		foundConfidence: foundConfidence,
		priority:        priority,
		groups:          groups,
		timeout:         timeout,
		attempts:        1,
		logger:          logger.Named(name),
	}
}

// WithAttempts sets how often an erroring probe is tried. Values below one
// are ignored.
func (s *ProbeStrategy) WithAttempts(n int) *ProbeStrategy {
	if n > 0 {
		s.attempts = n
	}
	return s
}

// probe runs FindElement, retrying errors up to the attempt budget.
func (s *ProbeStrategy) probe(ctx context.Context, b browser.Browser, sel string, timeout time.Duration) (bool, error) {
	var err error
	for i := 0; i < s.attempts; i++ {
		var found bool
		found, err = b.FindElement(ctx, sel, timeout)
		if err == nil {
			return found, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}
	return false, err
}

func (s *ProbeStrategy) Name() string { return s.name }

// Prior is the strategy's confidence when at least one selector matches.
func (s *ProbeStrategy) Prior() float64 { return s.prior }

func (s *ProbeStrategy) SelectorsFor(target TargetType) []string {
	for _, g := range s.groups {
		if g.Target == target {
			return append([]string(nil), g.Selectors...)
		}
	}
	return nil
}

// Detect probes every selector. It fails only when no probe could run at all.
func (s *ProbeStrategy) Detect(ctx context.Context, b browser.Browser) (StrategyResult, error) {
	res := StrategyResult{Strategy: s.name, Confidence: s.prior}

	var probed, failed int
	var lastErr error
	for _, g := range s.groups {
		for i, sel := range g.Selectors {
			found, err := s.probe(ctx, b, sel, s.timeout)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				failed++
				lastErr = err
				s.logger.Debug("Selector probe failed", zap.String("selector", sel), zap.Error(err))
				continue
			}
			probed++

			cand := SelectorCandidate{
				Selector:   sel,
				TargetType: g.Target,
				Priority:   s.priority,
				Found:      found,
				Confidence: NotFoundConfidence,
				Strategy:   s.name,
			}
			if i < len(g.Patterns) {
				cand.TextPattern = g.Patterns[i]
			}
			if found {
				cand.Confidence = s.foundConfidence
				res.FoundElements = append(res.FoundElements, g.Target)
			}
			res.Selectors = append(res.Selectors, cand)
		}
	}

	if probed == 0 && failed > 0 {
		res.Confidence = 0
		return res, failure.Wrap(failure.KindDetection, s.name+".detect", lastErr)
	}
	if len(res.FoundElements) == 0 {
		res.Confidence = min(s.prior, NoEvidenceFloor)
	}

	s.logger.Info("Detection completed",
		zap.Int("selectors_tested", probed),
		zap.Int("elements_found", len(res.FoundElements)),
		zap.Float64("confidence", res.Confidence),
	)
	return res, nil
}

// ClassifyingStrategy is a ProbeStrategy that can also classify reward states.
type ClassifyingStrategy struct {
	*ProbeStrategy
	states       StateTable
	stateTimeout time.Duration
}

var _ StateClassifier = (*ClassifyingStrategy)(nil)

// NewClassifyingStrategy adds a state table to a probe strategy.
func NewClassifyingStrategy(base *ProbeStrategy, states StateTable, stateTimeout time.Duration) *ClassifyingStrategy {
	return &ClassifyingStrategy{ProbeStrategy: base, states: states, stateTimeout: stateTimeout}
}

// ClassifyStates probes the claimable, claimed and unavailable families in
// that order. A selector already classified by an earlier family is skipped.
func (s *ClassifyingStrategy) ClassifyStates(ctx context.Context, b browser.Browser) (RewardStates, error) {
	out := RewardStates{Confidence: s.states.Confidence, Method: s.name, Classified: true}
	seen := make(map[string]bool)

	var probed, failed int
	var lastErr error
	families := []struct {
		state State
		sels  []StateSelector
		dst   *[]RewardState
	}{
		{StateClaimable, s.states.Claimable, &out.Claimable},
		{StateClaimed, s.states.Claimed, &out.Claimed},
		{StateUnavailable, s.states.Unavailable, &out.Unavailable},
	}
	for _, fam := range families {
		for _, ss := range fam.sels {
			if seen[ss.Selector] {
				continue
			}
			found, err := s.probe(ctx, b, ss.Selector, s.stateTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				failed++
				lastErr = err
				continue
			}
			probed++
			if found {
				seen[ss.Selector] = true
				*fam.dst = append(*fam.dst, RewardState{
					Selector:   ss.Selector,
					State:      fam.state,
					Confidence: ss.Confidence,
					Method:     s.name,
				})
			}
		}
	}

	if probed == 0 && failed > 0 {
		out.Confidence = NoEvidenceFloor
		return out, failure.Wrap(failure.KindDetection, s.name+".classify", lastErr)
	}

	s.logger.Info("Reward state analysis completed",
		zap.Int("claimable", len(out.Claimable)),
		zap.Int("claimed", len(out.Claimed)),
		zap.Int("unavailable", len(out.Unavailable)),
	)
	return out, nil
}
