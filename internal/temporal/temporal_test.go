package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func at(offsets ...float64) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, o := range offsets {
		out[i] = epoch.Add(time.Duration(o * float64(time.Second)))
	}
	return out
}

func TestFibonacciAlignment_InsufficientData(t *testing.T) {
	r := FibonacciAlignment(at(0, 10), 0.1)
	assert.True(t, r.InsufficientData)
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, 0.0, r.Confidence)
}

func TestFibonacciAlignment_PerfectSequence(t *testing.T) {
	// Gaps 1, 2, 3, 5, 8 — pure Fibonacci.
	r := FibonacciAlignment(at(0, 1, 3, 6, 11, 19), 0.1)
	assert.False(t, r.InsufficientData)
	assert.Equal(t, 1.0, r.Score)
	assert.Equal(t, 5, r.MatchedGaps)
	assert.Equal(t, 5, r.TotalGaps)
	assert.InDelta(t, 0.6, r.Confidence, 1e-9) // 6 events / 10
}

func TestFibonacciAlignment_NoAlignment(t *testing.T) {
	// Gaps 100, 150, 170 — nearest Fibonacci numbers are far off.
	r := FibonacciAlignment(at(0, 100, 250, 420), 0.05)
	assert.Less(t, r.Score, 0.5)
}

func TestFibonacciAlignment_ConfidenceSaturates(t *testing.T) {
	offsets := make([]float64, 25)
	for i := range offsets {
		offsets[i] = float64(i * 7)
	}
	r := FibonacciAlignment(at(offsets...), 0.1)
	assert.Equal(t, 1.0, r.Confidence)
}

func TestGoldenRatioAlignment_InsufficientData(t *testing.T) {
	r := GoldenRatioAlignment(at(0, 5))
	assert.True(t, r.InsufficientData)
}

func TestGoldenRatioAlignment_PerfectRatio(t *testing.T) {
	// Gaps 10, 16.18, 26.18 — each ratio ≈ φ.
	r := GoldenRatioAlignment(at(0, 10, 26.18, 52.36))
	require.Equal(t, 2, r.ValidRatios)
	assert.Greater(t, r.Score, 0.99)
}

func TestGoldenRatioAlignment_UniformGaps(t *testing.T) {
	// Ratio 1 everywhere: closeness = 1 - (φ-1)/φ ≈ 0.618.
	r := GoldenRatioAlignment(at(0, 10, 20, 30, 40))
	assert.InDelta(t, 0.618, r.Score, 0.001)
}

func TestGoldenRatioAlignment_ZeroGapsSkipped(t *testing.T) {
	r := GoldenRatioAlignment(at(0, 0, 0, 10))
	assert.GreaterOrEqual(t, r.Score, 0.0)
	assert.LessOrEqual(t, r.Score, 1.0)
}

func TestPeriodicity_InsufficientData(t *testing.T) {
	r := Periodicity(at(0, 1), 3)
	assert.True(t, r.InsufficientData)
}

func TestPeriodicity_StrongPeriodicSignal(t *testing.T) {
	// One event every 8 seconds for 64 events.
	offsets := make([]float64, 64)
	for i := range offsets {
		offsets[i] = float64(i * 8)
	}
	r := Periodicity(at(offsets...), 3)

	require.NotEmpty(t, r.Components)
	assert.Equal(t, 1.0, r.Components[0].Strength)
	// The dominant period should be 8s (or a harmonic thereof).
	found := false
	for _, c := range r.Components {
		ratio := c.PeriodSeconds / 8
		if ratio > 0.9 && ratio < 1.1 {
			found = true
		}
	}
	assert.True(t, found, "expected a component near 8s, got %+v", r.Components)
	assert.Equal(t, 1.0, r.Confidence)
	assert.GreaterOrEqual(t, r.Score, 0.0)
	assert.LessOrEqual(t, r.Score, 1.0)
}

func TestPeriodicity_StrengthBounds(t *testing.T) {
	r := Periodicity(at(0, 3, 11, 17, 31, 45, 46, 59), 5)
	for _, c := range r.Components {
		assert.GreaterOrEqual(t, c.Strength, 0.0)
		assert.LessOrEqual(t, c.Strength, 1.0)
		assert.Greater(t, c.PeriodSeconds, 0.0)
	}
}

func TestPeriodicity_LongWindowCoarsensBins(t *testing.T) {
	// Span of ~1M seconds forces bins wider than 1s.
	r := Periodicity(at(0, 500_000, 1_000_000), 3)
	assert.Greater(t, r.BinSeconds, 1.0)
}

func TestConfidence_Monotonic(t *testing.T) {
	prev := 0.0
	for n := 3; n <= 15; n++ {
		offsets := make([]float64, n)
		for i := range offsets {
			offsets[i] = float64(i)
		}
		r := FibonacciAlignment(at(offsets...), 0.1)
		assert.GreaterOrEqual(t, r.Confidence, prev)
		assert.LessOrEqual(t, r.Confidence, 1.0)
		prev = r.Confidence
	}
}
