// Package score converts raw provider match confidences into canonical
// [0,1] values and applies the global match-quality threshold.
package score

import "math"

// DefaultHighQualityThreshold is the global cutoff above which a
// candidate or related party counts as a high-quality match.
const DefaultHighQualityThreshold = 0.85

// Normalize converts a raw provider score of unknown scale into [0,1].
// Providers disagree on units: some return 0-100 percentages, others 0-1
// probabilities. Any magnitude above 1 is treated as a percentage. The
// result is clamped to [0,1]. Missing or non-finite input yields nil.
func Normalize(raw *float64) *float64 {
	if raw == nil {
		return nil
	}
	v := *raw
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if math.Abs(v) > 1 {
		v /= 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

// Thresholder evaluates normalized scores against a configured cutoff.
type Thresholder struct {
	threshold float64
}

// NewThresholder creates a Thresholder. Non-positive thresholds fall back
// to the default.
func NewThresholder(threshold float64) Thresholder {
	if threshold <= 0 {
		threshold = DefaultHighQualityThreshold
	}
	return Thresholder{threshold: threshold}
}

// Threshold returns the configured cutoff.
func (t Thresholder) Threshold() float64 { return t.threshold }

// HighQuality reports whether a normalized score meets the cutoff.
// A nil score is never high-quality.
func (t Thresholder) HighQuality(norm *float64) bool {
	return norm != nil && *norm >= t.threshold
}
