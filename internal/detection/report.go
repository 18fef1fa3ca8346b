// File: internal/detection/report.go
package detection

import (
	"math"
	"time"
)

// Stability buckets.
const (
	highConfidence   = 0.8
	mediumConfidence = 0.5
	// stableThreshold is the stability score below which monitoring is recommended.
	stableThreshold = 50.0
)

// SelectorInfo is one selector entry in an InterfaceReport.
type SelectorInfo struct {
	Selector   string     `json:"selector" yaml:"selector"`
	TargetType TargetType `json:"target_type" yaml:"target_type"`
	Strategy   string     `json:"strategy" yaml:"strategy"`
	Found      bool       `json:"found" yaml:"found"`
}

// InterfaceReport summarizes how reliably the current page can be automated.
type InterfaceReport struct {
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	PrimaryStrategy    string    `json:"primary_detection_method" yaml:"primary_detection_method"`
	FallbackStrategies []string  `json:"fallback_methods" yaml:"fallback_methods"`
	Confidence         float64   `json:"overall_confidence" yaml:"overall_confidence"`

	HighConfidence   []SelectorInfo `json:"high_confidence" yaml:"high_confidence"`
	MediumConfidence []SelectorInfo `json:"medium_confidence" yaml:"medium_confidence"`
	LowConfidence    []SelectorInfo `json:"low_confidence" yaml:"low_confidence"`

	Claimable   int `json:"claimable_rewards" yaml:"claimable_rewards"`
	Claimed     int `json:"claimed_rewards" yaml:"claimed_rewards"`
	Unavailable int `json:"unavailable_rewards" yaml:"unavailable_rewards"`

	// StabilityScore is the percentage of selectors in the high bucket.
	StabilityScore float64  `json:"stability_score" yaml:"stability_score"`
	Monitoring     []string `json:"recommended_monitoring" yaml:"recommended_monitoring"`
}

// BuildInterfaceReport buckets every probed selector by confidence and scores
// the interface's stability. avail may be nil.
func BuildInterfaceReport(analysis *DetectionResult, avail *Availability) InterfaceReport {
	rep := InterfaceReport{
		Timestamp:          time.Now().UTC(),
		FallbackStrategies: []string{},
		HighConfidence:     []SelectorInfo{},
		MediumConfidence:   []SelectorInfo{},
		LowConfidence:      []SelectorInfo{},
		Monitoring:         []string{},
	}
	if analysis != nil {
		rep.PrimaryStrategy = analysis.PrimaryStrategy
		rep.FallbackStrategies = append(rep.FallbackStrategies, analysis.FallbackStrategies...)
		rep.Confidence = analysis.Confidence

		for _, c := range analysis.Selectors {
			info := SelectorInfo{Selector: c.Selector, TargetType: c.TargetType, Strategy: c.Strategy, Found: c.Found}
			switch {
			case c.Confidence >= highConfidence:
				rep.HighConfidence = append(rep.HighConfidence, info)
			case c.Confidence >= mediumConfidence:
				rep.MediumConfidence = append(rep.MediumConfidence, info)
			default:
				rep.LowConfidence = append(rep.LowConfidence, info)
			}
		}
		if n := len(analysis.Selectors); n > 0 {
			score := float64(len(rep.HighConfidence)) / float64(n) * 100
			rep.StabilityScore = math.Round(score*100) / 100
		}
	}
	if avail != nil {
		rep.Claimable = len(avail.Claimable)
		rep.Claimed = len(avail.Claimed)
		rep.Unavailable = len(avail.Unavailable)
	}

	if rep.StabilityScore < stableThreshold {
		rep.Monitoring = append(rep.Monitoring,
			"Weekly selector validation",
			"Interface change detection",
			"Fallback strategy testing",
		)
	}
	return rep
}
