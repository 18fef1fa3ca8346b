// File: internal/detection/types.go
package detection

import (
	"context"
	"time"

	"github.com/xkilldash9x/dailyclaim/internal/browser"
)

// TargetType names the kind of element a selector is meant to locate.
type TargetType string

const (
	TargetSigninButton    TargetType = "signin_button"
	TargetRewardContainer TargetType = "reward_container"
	TargetClaimButton     TargetType = "claim_button"
	TargetRewardItem      TargetType = "reward_item"
	TargetGenericButton   TargetType = "generic_button"
)

// Priority is the author's prior trust in a selector family.
type Priority string

const (
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityFallback Priority = "fallback"
)

// State is a reward's claim state.
type State string

const (
	StateClaimable   State = "claimable"
	StateClaimed     State = "claimed"
	StateUnavailable State = "unavailable"
)

// Confidence policy shared by every strategy.
const (
	// NotFoundConfidence is assigned to a selector that matched nothing.
	NotFoundConfidence = 0.1
	// NoEvidenceFloor caps a strategy's confidence when nothing matched.
	NoEvidenceFloor = 0.2
	// LowConfidenceGate stops reward classification on unreliable matches.
	LowConfidenceGate = 0.3
	// FallbackThreshold triggers merging of fallback classifiers.
	FallbackThreshold = 0.6
	// MaxFallbackMerges bounds how many fallback classifiers are consulted.
	MaxFallbackMerges = 2
	// rewardBonusPerItem and rewardBonusCap shape the reward-count bonus.
	rewardBonusPerItem = 0.1
	rewardBonusCap     = 0.3
)

// SelectorCandidate is one selector probed by a strategy.
type SelectorCandidate struct {
	Selector    string     `json:"selector"`
	TargetType  TargetType `json:"target_type"`
	Priority    Priority   `json:"priority"`
	Confidence  float64    `json:"confidence"`
	Found       bool       `json:"found"`
	Strategy    string     `json:"strategy"`
	TextPattern string     `json:"text_pattern,omitempty"`
}

// RewardState is one reward entry located on the page. Its identity within
// a run is Selector plus Method.
type RewardState struct {
	Selector   string  `json:"selector"`
	State      State   `json:"state"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// key is the de-duplication key used when merging classifier output.
func (r RewardState) key() rewardKey {
	return rewardKey{selector: r.Selector, state: r.State, confidence: r.Confidence}
}

type rewardKey struct {
	selector   string
	state      State
	confidence float64
}

// RewardStates groups reward entries by state.
type RewardStates struct {
	Claimable   []RewardState `json:"claimable_rewards"`
	Claimed     []RewardState `json:"claimed_rewards"`
	Unavailable []RewardState `json:"unavailable_rewards"`
	Confidence  float64       `json:"detection_confidence"`
	Method      string        `json:"analysis_method"`
	// Classified is false when the primary strategy cannot classify.
	Classified bool `json:"classified"`
}

// Total counts every reward entry.
func (r RewardStates) Total() int {
	return len(r.Claimable) + len(r.Claimed) + len(r.Unavailable)
}

// StrategyResult is what one strategy's Detect reports.
type StrategyResult struct {
	Strategy      string              `json:"strategy"`
	Selectors     []SelectorCandidate `json:"selectors"`
	FoundElements []TargetType        `json:"found_elements"`
	Confidence    float64             `json:"confidence"`
}

// DetectionResult is the outcome of one interface analysis.
type DetectionResult struct {
	Selectors          []SelectorCandidate `json:"selectors"`
	PrimaryStrategy    string              `json:"primary_strategy,omitempty"`
	FallbackStrategies []string            `json:"fallback_strategies"`
	Confidence         float64             `json:"detection_confidence"`
	RewardStates       RewardStates        `json:"reward_states"`
	StrategyErrors     map[string]string   `json:"strategy_errors,omitempty"`
	Timestamp          time.Time           `json:"timestamp"`
}

// HasPrimary reports whether any strategy found elements.
func (d *DetectionResult) HasPrimary() bool {
	return d != nil && d.PrimaryStrategy != ""
}

// Availability is the reward-availability view built on an analysis.
type Availability struct {
	Claimable        []RewardState    `json:"claimable_rewards"`
	Claimed          []RewardState    `json:"claimed_rewards"`
	Unavailable      []RewardState    `json:"unavailable_rewards"`
	TotalFound       int              `json:"total_found"`
	Confidence       float64          `json:"detection_confidence"`
	PrimaryStrategy  string           `json:"primary_strategy,omitempty"`
	MergedStrategies []string         `json:"merged_strategies,omitempty"`
	LowConfidence    bool             `json:"low_confidence"`
	Analysis         *DetectionResult `json:"-"`
	Timestamp        time.Time        `json:"timestamp"`
}

// HasClaimable reports whether anything can be claimed.
func (a *Availability) HasClaimable() bool {
	return a != nil && len(a.Claimable) > 0
}

// Strategy is one detection heuristic. Strategies are consulted in registry
// order, which is also their priority order.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, b browser.Browser) (StrategyResult, error)
}

// StateClassifier is implemented by strategies that can tell claimable,
// claimed and unavailable rewards apart.
type StateClassifier interface {
	ClassifyStates(ctx context.Context, b browser.Browser) (RewardStates, error)
}

// SelectorSource exposes a strategy's ordered selector table.
type SelectorSource interface {
	SelectorsFor(target TargetType) []string
}

// SelectorFor returns the strategy's first selector for target.
func SelectorFor(s Strategy, target TargetType) (string, bool) {
	src, ok := s.(SelectorSource)
	if !ok {
		return "", false
	}
	sels := src.SelectorsFor(target)
	if len(sels) == 0 {
		return "", false
	}
	return sels[0], true
}
