package temporal

import (
	"math"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Temporal pattern analysis — burst, periodicity and numeric-sequence
// alignment over event timestamps. All functions are pure batch
// computations; fewer than minEvents timestamps yields a zero-score,
// zero-confidence result rather than an error.
// ---------------------------------------------------------------------------

// minEvents is the minimum usable timestamp count.
const minEvents = 3

// goldenRatio is φ = (1+√5)/2.
var goldenRatio = (1 + math.Sqrt(5)) / 2

// DefaultFibTolerance is the relative gap-match tolerance.
const DefaultFibTolerance = 0.1

// confidence saturates at 10 events: min(1, n/10).
func confidence(n int) float64 {
	c := float64(n) / 10
	if c > 1 {
		return 1
	}
	return c
}

// FibResult reports how closely successive event gaps align with the
// Fibonacci sequence.
type FibResult struct {
	Score            float64 `json:"score"`
	Confidence       float64 `json:"confidence"`
	InsufficientData bool    `json:"insufficient_data,omitempty"`
	MatchedGaps      int     `json:"matched_gaps"`
	TotalGaps        int     `json:"total_gaps"`
	Tolerance        float64 `json:"tolerance"`
}

// FibonacciAlignment scores how many successive time gaps sit within
// tolerance of a Fibonacci number. Gaps are measured in seconds.
func FibonacciAlignment(timestamps []time.Time, tolerance float64) FibResult {
	if tolerance <= 0 {
		tolerance = DefaultFibTolerance
	}
	result := FibResult{Tolerance: tolerance}
	if len(timestamps) < minEvents {
		result.InsufficientData = true
		return result
	}

	gaps := sortedGaps(timestamps)
	result.TotalGaps = len(gaps)

	maxGap := 0.0
	for _, g := range gaps {
		if g > maxGap {
			maxGap = g
		}
	}
	fibs := fibonacciUpTo(1.5 * maxGap)

	for _, gap := range gaps {
		if gap <= 0 {
			continue
		}
		nearest := nearestValue(fibs, gap)
		if math.Abs(nearest-gap)/gap <= tolerance {
			result.MatchedGaps++
		}
	}
	result.Score = float64(result.MatchedGaps) / float64(result.TotalGaps)
	result.Confidence = confidence(len(timestamps))
	return result
}

// GoldenResult reports alignment of successive gap ratios with φ.
type GoldenResult struct {
	Score            float64 `json:"score"`
	Confidence       float64 `json:"confidence"`
	InsufficientData bool    `json:"insufficient_data,omitempty"`
	ValidRatios      int     `json:"valid_ratios"`
}

// GoldenRatioAlignment scores the mean closeness of successive gap
// ratios to the golden ratio.
func GoldenRatioAlignment(timestamps []time.Time) GoldenResult {
	var result GoldenResult
	if len(timestamps) < minEvents {
		result.InsufficientData = true
		return result
	}

	gaps := sortedGaps(timestamps)
	total := 0.0
	for i := 0; i+1 < len(gaps); i++ {
		if gaps[i] <= 0 {
			continue
		}
		ratio := gaps[i+1] / gaps[i]
		if math.IsInf(ratio, 0) || math.IsNaN(ratio) || ratio <= 0 {
			continue
		}
		closeness := 1 - math.Min(math.Abs(ratio-goldenRatio)/goldenRatio, 1)
		total += closeness
		result.ValidRatios++
	}
	if result.ValidRatios == 0 {
		return result
	}
	result.Score = total / float64(result.ValidRatios)
	result.Confidence = confidence(len(timestamps))
	return result
}

// PeriodComponent is one candidate period from the frequency analysis.
type PeriodComponent struct {
	PeriodSeconds float64 `json:"period_seconds"`
	Strength      float64 `json:"strength"`
}

// PeriodicityResult reports the dominant non-DC frequency components of
// the event occurrence signal.
type PeriodicityResult struct {
	Score            float64           `json:"score"`
	Confidence       float64           `json:"confidence"`
	InsufficientData bool              `json:"insufficient_data,omitempty"`
	Components       []PeriodComponent `json:"components"`
	BinSeconds       float64           `json:"bin_seconds"`
}

// maxBins bounds the FFT input size; windows longer than maxBins seconds
// are analyzed at a coarser bin width.
const maxBins = 1 << 16

// Periodicity builds a 1-second-resolution occurrence signal over the
// observation window, applies an FFT, and reports the topN strongest
// non-DC components with strength normalized to [0,1].
func Periodicity(timestamps []time.Time, topN int) PeriodicityResult {
	var result PeriodicityResult
	if len(timestamps) < minEvents {
		result.InsufficientData = true
		return result
	}
	if topN <= 0 {
		topN = 3
	}

	sorted := append([]time.Time(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	span := sorted[len(sorted)-1].Sub(sorted[0]).Seconds()
	binSec := 1.0
	if span+1 > maxBins {
		binSec = math.Ceil((span + 1) / maxBins)
	}
	result.BinSeconds = binSec

	bins := int(span/binSec) + 1
	signal := make([]float64, bins)
	for _, ts := range sorted {
		idx := int(ts.Sub(sorted[0]).Seconds() / binSec)
		if idx >= bins {
			idx = bins - 1
		}
		signal[idx]++
	}

	re, im := fft(signal)
	n := len(re)

	// Magnitudes of the first half, skipping DC.
	type freqMag struct {
		k   int
		mag float64
	}
	mags := make([]freqMag, 0, n/2)
	maxMag := 0.0
	for k := 1; k < n/2; k++ {
		m := math.Hypot(re[k], im[k])
		mags = append(mags, freqMag{k, m})
		if m > maxMag {
			maxMag = m
		}
	}
	if maxMag == 0 || len(mags) == 0 {
		result.Confidence = confidence(len(timestamps))
		return result
	}

	sort.Slice(mags, func(i, j int) bool { return mags[i].mag > mags[j].mag })
	if topN > len(mags) {
		topN = len(mags)
	}
	for _, fm := range mags[:topN] {
		result.Components = append(result.Components, PeriodComponent{
			PeriodSeconds: float64(n) * binSec / float64(fm.k),
			Strength:      fm.mag / maxMag,
		})
	}

	// Score: dominance of the strongest component over the spectrum mean.
	sum := 0.0
	for _, fm := range mags {
		sum += fm.mag
	}
	mean := sum / float64(len(mags))
	if mean > 0 {
		result.Score = math.Min((maxMag/mean-1)/float64(len(mags)), 1)
	}
	if result.Score < 0 {
		result.Score = 0
	}
	result.Confidence = confidence(len(timestamps))
	return result
}

// sortedGaps returns successive time gaps in seconds over the sorted
// timestamps.
func sortedGaps(timestamps []time.Time) []float64 {
	sorted := append([]time.Time(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Seconds())
	}
	return gaps
}

// fibonacciUpTo returns Fibonacci numbers <= limit, always including 1.
func fibonacciUpTo(limit float64) []float64 {
	fibs := []float64{1, 1}
	for {
		next := fibs[len(fibs)-1] + fibs[len(fibs)-2]
		if next > limit {
			break
		}
		fibs = append(fibs, next)
	}
	return fibs
}

func nearestValue(sorted []float64, target float64) float64 {
	best := sorted[0]
	bestDist := math.Abs(target - best)
	for _, v := range sorted[1:] {
		if d := math.Abs(target - v); d < bestDist {
			best = v
			bestDist = d
		}
	}
	return best
}

// fft is an iterative radix-2 Cooley-Tukey transform. The input is
// zero-padded to the next power of two.
func fft(signal []float64) (re, im []float64) {
	n := 1
	for n < len(signal) {
		n <<= 1
	}
	re = make([]float64, n)
	im = make([]float64, n)
	copy(re, signal)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(angle), math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			for k := 0; k < length/2; k++ {
				evenRe, evenIm := re[start+k], im[start+k]
				oddRe := re[start+k+length/2]*curRe - im[start+k+length/2]*curIm
				oddIm := re[start+k+length/2]*curIm + im[start+k+length/2]*curRe
				re[start+k], im[start+k] = evenRe+oddRe, evenIm+oddIm
				re[start+k+length/2], im[start+k+length/2] = evenRe-oddRe, evenIm-oddIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
	return re, im
}
