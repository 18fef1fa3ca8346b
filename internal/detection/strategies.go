// File: internal/detection/strategies.go
package detection

import (
	"github.com/xkilldash9x/dailyclaim/internal/browser"
	"go.uber.org/zap"
)

// Built-in strategy names, in priority order.
const (
	StrategyClassBased     = "hoyolab_class_based"
	StrategyAttributeBased = "attribute_based"
	StrategyTextContent    = "text_content"
	StrategyGeneric        = "generic_fallback"
)

// -- Class based --

var classBasedGroups = []SelectorGroup{
	{Target: TargetSigninButton, Selectors: []string{
		".signin-btn",
		".check-in-btn",
		".daily-signin",
		"#signin-button",
	}},
	{Target: TargetRewardContainer, Selectors: []string{
		"div[class*='sign-item']",
		".reward-item",
		".rewards-list",
		".daily-rewards",
	}},
	{Target: TargetClaimButton, Selectors: []string{
		".claim-btn",
		".receive-btn",
		".get-reward",
	}},
}

var classBasedStates = StateTable{
	Claimable: []StateSelector{
		{"div[class*='sign-item']:has(span[class*='red-point'])", 0.95},
		{".reward-item:not(.claimed):not(.disabled)", 0.9},
		{".daily-reward.available", 0.9},
		{".signin-reward.claimable", 0.9},
		{"[data-state='available']", 0.9},
	},
	Claimed: []StateSelector{
		{"div[class*='sign-item'] [class*='has-signed']", 0.9},
		{".reward-item.claimed", 0.9},
		{".daily-reward.completed", 0.9},
		{".signin-reward.received", 0.9},
		{"[data-state='claimed']", 0.9},
	},
	Unavailable: []StateSelector{
		{".reward-item.disabled", 0.8},
		{".daily-reward.locked", 0.8},
		{".signin-reward.unavailable", 0.8},
		{"[data-state='locked']", 0.8},
	},
	Confidence: 0.8,
}

// NewClassBasedStrategy matches the site's own component class names.
func NewClassBasedStrategy(opts Options, logger *zap.Logger) *ClassifyingStrategy {
	base := NewProbeStrategy(StrategyClassBased, 0.8, 0.9, PriorityHigh, classBasedGroups, opts.ProbeTimeout, logger).
		WithAttempts(opts.ProbeAttempts)
	return NewClassifyingStrategy(base, classBasedStates, opts.StateProbeTimeout)
}

// -- Attribute based --

var attributeGroups = []SelectorGroup{
	{Target: TargetSigninButton, Selectors: []string{
		"[data-testid='signin-button']",
		"[aria-label*='sign in' i]",
		"[data-action='signin']",
		"[role='button'][aria-label*='check' i]",
	}},
	{Target: TargetRewardContainer, Selectors: []string{
		"[data-testid='reward-item']",
		"[aria-label*='reward' i]",
		"[data-component='reward']",
	}},
	{Target: TargetClaimButton, Selectors: []string{
		"[data-testid='claim-button']",
		"[data-action='claim']",
		"[aria-label*='claim' i]",
	}},
}

var attributeStates = StateTable{
	Claimable: []StateSelector{
		{"[data-status='claimable']", 0.85},
		{"[data-claimable='true']", 0.85},
		{"[data-reward][aria-disabled='false']", 0.8},
	},
	Claimed: []StateSelector{
		{"[data-status='claimed']", 0.85},
		{"[data-received='true']", 0.85},
		{"[data-reward][aria-checked='true']", 0.8},
	},
	Unavailable: []StateSelector{
		{"[data-status='locked']", 0.8},
		{"[data-reward][aria-disabled='true']", 0.75},
	},
	Confidence: 0.7,
}

// NewAttributeStrategy matches data-* attributes and ARIA labels.
func NewAttributeStrategy(opts Options, logger *zap.Logger) *ClassifyingStrategy {
	base := NewProbeStrategy(StrategyAttributeBased, 0.7, 0.8, PriorityMedium, attributeGroups, opts.ProbeTimeout, logger).
		WithAttempts(opts.ProbeAttempts)
	return NewClassifyingStrategy(base, attributeStates, opts.StateProbeTimeout)
}

// -- Text content --

var textPatterns = []struct {
	target   TargetType
	patterns []string
}{
	{TargetSigninButton, []string{"Sign in", "Check in", "Daily check-in", "领取", "簽到"}},
	{TargetRewardItem, []string{"Primogem", "Mora", "Enhancement Ore", "reward", "奖励"}},
}

func textGroups() []SelectorGroup {
	groups := make([]SelectorGroup, 0, len(textPatterns))
	for _, tp := range textPatterns {
		g := SelectorGroup{Target: tp.target}
		for _, p := range tp.patterns {
			g.Selectors = append(g.Selectors, browser.TextSelector(p))
			g.Patterns = append(g.Patterns, p)
		}
		groups = append(groups, g)
	}
	return groups
}

// NewTextStrategy matches visible text, including localized labels.
func NewTextStrategy(opts Options, logger *zap.Logger) *ProbeStrategy {
	return NewProbeStrategy(StrategyTextContent, 0.6, 0.75, PriorityLow, textGroups(), opts.ProbeTimeout, logger).
		WithAttempts(opts.ProbeAttempts)
}

// -- Generic fallback --

var genericGroups = []SelectorGroup{
	{Target: TargetGenericButton, Selectors: []string{
		"button[type='submit']",
		"input[type='submit']",
		".btn-primary",
		".btn-success",
		".button",
		"a.btn",
		"[role='button']",
	}},
}

// NewGenericStrategy matches common button patterns on any site.
func NewGenericStrategy(opts Options, logger *zap.Logger) *ProbeStrategy {
	return NewProbeStrategy(StrategyGeneric, 0.3, 0.7, PriorityFallback, genericGroups, opts.ProbeTimeout, logger).
		WithAttempts(opts.ProbeAttempts)
}

// BuiltinStrategies returns the four built-in strategies in priority order.
func BuiltinStrategies(opts Options, logger *zap.Logger) []Strategy {
	return []Strategy{
		NewClassBasedStrategy(opts, logger),
		NewAttributeStrategy(opts, logger),
		NewTextStrategy(opts, logger),
		NewGenericStrategy(opts, logger),
	}
}
