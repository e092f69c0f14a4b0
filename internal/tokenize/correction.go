package tokenize

import "math"

// Defaults per the configured-but-unfixed thresholds named in the source's
// open questions: a model needs at least this many samples before its
// correction factor is trusted, and the factor itself is clamped to a sane
// range to resist outlier reports.
const (
	DefaultMinSamples = 5
	DefaultBoundLow   = 0.25
	DefaultBoundHigh  = 4.0
)

// CorrectionFactor is the learned per-model multiplier applied to the raw
// heuristic estimate, updated online from (estimated, actual) usage pairs.
// Callers serialize updates per model row (single-writer); this type itself
// does no locking.
type CorrectionFactor struct {
	ModelNickname string
	TotalSamples  int
	SumRatio      float64
	AvgCorrection float64
	BoundLow      float64
	BoundHigh     float64
}

// NewCorrectionFactor returns a zero-state factor with an identity multiplier
// and the default bounds.
func NewCorrectionFactor(modelNickname string) *CorrectionFactor {
	return &CorrectionFactor{
		ModelNickname: modelNickname,
		AvgCorrection: 1.0,
		BoundLow:      DefaultBoundLow,
		BoundHigh:     DefaultBoundHigh,
	}
}

// Sample records one observed (estimated, actual) pair and updates the
// running average. Idempotent under replay only in the sense that replaying
// the same sample twice is indistinguishable from two independent samples —
// callers must not double-record a single usage report.
func (c *CorrectionFactor) Sample(estimated, actual int) {
	if estimated <= 0 {
		return
	}
	ratio := float64(actual) / float64(estimated)
	c.TotalSamples++
	c.SumRatio += ratio
	c.AvgCorrection = c.SumRatio / float64(c.TotalSamples)
}

// Apply multiplies a raw estimate by the learned correction, but only once
// enough samples have been observed; otherwise the raw estimate passes
// through unchanged. The multiplier itself is always clamped to bounds.
func (c *CorrectionFactor) Apply(rawEstimate int, minSamples int) int {
	if c.TotalSamples < minSamples {
		return rawEstimate
	}
	factor := c.AvgCorrection
	low, high := c.BoundLow, c.BoundHigh
	if low == 0 && high == 0 {
		low, high = DefaultBoundLow, DefaultBoundHigh
	}
	if factor < low {
		factor = low
	}
	if factor > high {
		factor = high
	}
	return int(math.Round(float64(rawEstimate) * factor))
}

// CostMicros computes cost in micros (1e-6 currency units) for a token count
// given a configured cost-per-million-tokens rate, itself expressed in
// micros: cost_micros = tokens * costPerMTokenMicros / 1_000_000.
func CostMicros(tokens int, costPerMTokenMicros float64) int64 {
	return int64(math.Round(float64(tokens) * costPerMTokenMicros / 1_000_000))
}
