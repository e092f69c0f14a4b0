package tokenize

import "testing"

func TestCorrectionConvergence(t *testing.T) {
	c := NewCorrectionFactor("test-model")
	for i := 0; i < 100; i++ {
		estimated := 1000
		actual := int(float64(estimated) * 1.1)
		c.Sample(estimated, actual)
	}
	if diff := c.AvgCorrection - 1.1; diff > 1e-3 || diff < -1e-3 {
		t.Errorf("avgCorrection = %v, want close to 1.1", c.AvgCorrection)
	}
	if got := float64(c.TotalSamples)*c.AvgCorrection - c.SumRatio; got > 1e-6 || got < -1e-6 {
		t.Errorf("invariant broken: totalSamples*avgCorrection should equal sumRatio, diff=%v", got)
	}
}

func TestCorrectionBelowMinSamplesPassesThrough(t *testing.T) {
	c := NewCorrectionFactor("m")
	c.Sample(1000, 2000)
	if got := c.Apply(1000, DefaultMinSamples); got != 1000 {
		t.Errorf("Apply with insufficient samples = %d, want 1000 (raw passthrough)", got)
	}
}

func TestCorrectionAppliedAfterMinSamples(t *testing.T) {
	c := NewCorrectionFactor("m")
	for i := 0; i < DefaultMinSamples; i++ {
		c.Sample(1000, 1200)
	}
	got := c.Apply(1000, DefaultMinSamples)
	if got != 1200 {
		t.Errorf("Apply() = %d, want 1200", got)
	}
}

func TestCorrectionBounded(t *testing.T) {
	c := NewCorrectionFactor("m")
	for i := 0; i < DefaultMinSamples; i++ {
		c.Sample(100, 10000) // ratio 100x, should clamp
	}
	got := c.Apply(1000, DefaultMinSamples)
	if got != int(1000*DefaultBoundHigh) {
		t.Errorf("Apply() = %d, want clamped to %v", got, 1000*DefaultBoundHigh)
	}
}
