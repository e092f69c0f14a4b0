package tokenize

import "testing"

func TestEstimateTokensBasics(t *testing.T) {
	cases := []struct {
		name string
		in   string
		min  int
		max  int
	}{
		{"empty", "", 0, 0},
		{"short word", "cat", 1, 1},
		{"digits", "12345", 1, 1},
		{"cjk", "日本語", 3, 3},
		{"english word", "understanding", 1, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := EstimateTokens(c.in)
			if got < c.min || got > c.max {
				t.Errorf("EstimateTokens(%q) = %d, want in [%d,%d]", c.in, got, c.min, c.max)
			}
		})
	}
}

func TestEstimateTokensLinearish(t *testing.T) {
	short := EstimateTokens("hello world")
	long := EstimateTokens("hello world hello world hello world hello world")
	if long <= short {
		t.Errorf("expected longer text to estimate more tokens: short=%d long=%d", short, long)
	}
}
