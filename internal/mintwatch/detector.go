package mintwatch

import (
	"math"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/chainscope/chainscope/internal/record"
)

// ---------------------------------------------------------------------------
// Mint-anomaly detector — flags bot and bulk-mint behavior in a mint
// event batch. Four independent sub-detectors; a weighted composite
// turns their confidences into a 0-100 score.
// ---------------------------------------------------------------------------

// Anomaly types and their composite weights.
const (
	TypeBurst         = "burst_minting"
	TypeSequential    = "sequential_minting"
	TypeConcentration = "wallet_concentration"
	TypeGasOutlier    = "gas_price_outlier"
)

var typeWeights = map[string]float64{
	TypeBurst:         0.7,
	TypeSequential:    0.8,
	TypeConcentration: 0.9,
	TypeGasOutlier:    0.6,
}

// Config configures the detector.
type Config struct {
	MinMintsForAnalysis int     `yaml:"min_mints_for_analysis"` // default 10
	BurstWindowSeconds  int     `yaml:"burst_window_seconds"`   // default 60
	MinRunLength        int     `yaml:"min_run_length"`         // smallest detectable run (5)
	ReportRunLength     int     `yaml:"report_run_length"`      // runs below this are not reported (10)
	GiniThreshold       float64 `yaml:"gini_threshold"`         // default 0.7
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinMintsForAnalysis: 10,
		BurstWindowSeconds:  60,
		MinRunLength:        5,
		ReportRunLength:     10,
		GiniThreshold:       0.7,
	}
}

// Detector is a stateless batch mint analyzer.
type Detector struct {
	config Config
}

func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// Anomaly is one detected mint anomaly.
type Anomaly struct {
	Type        string   `json:"type"`
	Confidence  float64  `json:"confidence"`
	WindowStart int64    `json:"window_start,omitempty"` // burst: epoch seconds
	MintCount   int      `json:"mint_count,omitempty"`   // burst: mints in window
	RunLength   int      `json:"run_length,omitempty"`   // sequential
	FirstToken  string   `json:"first_token,omitempty"`  // sequential
	Gini        float64  `json:"gini,omitempty"`         // concentration
	TopMinters  []string `json:"top_minters,omitempty"`  // concentration
	OutlierCount int     `json:"outlier_count,omitempty"` // gas
	ThresholdGas float64 `json:"threshold_gas,omitempty"` // gas
}

// Report is the mint-anomaly analysis output.
type Report struct {
	Score            float64   `json:"score"`      // 0-100
	Confidence       float64   `json:"confidence"` // 0-1
	Anomalies        []Anomaly `json:"anomalies"`
	AnomalyCount     int       `json:"anomaly_count"`
	TotalMints       int       `json:"total_mints"`
	InsufficientData bool      `json:"insufficient_data,omitempty"`
}

// Analyze runs all sub-detectors over the mint batch. Fewer than
// MinMintsForAnalysis records short-circuits to an insufficient-data
// result, never an error.
func (d *Detector) Analyze(mints []record.Mint) Report {
	report := Report{TotalMints: len(mints)}
	if len(mints) < d.config.MinMintsForAnalysis {
		report.InsufficientData = true
		return report
	}

	var anomalies []Anomaly
	anomalies = append(anomalies, d.detectBursts(mints)...)
	anomalies = append(anomalies, d.detectSequentialRuns(mints)...)
	anomalies = append(anomalies, d.detectConcentration(mints)...)
	anomalies = append(anomalies, d.detectGasOutliers(mints)...)

	report.Anomalies = anomalies
	report.AnomalyCount = len(anomalies)
	report.Score = compositeScore(anomalies)
	report.Confidence = d.reportConfidence(len(mints), anomalies)

	if len(anomalies) > 0 {
		log.Debug().
			Int("anomalies", len(anomalies)).
			Int("mints", len(mints)).
			Float64("score", report.Score).
			Msg("mintwatch: anomalies detected")
	}
	return report
}

// detectBursts groups mints into fixed windows and flags windows whose
// count exceeds mean + 3*stddev of the observed window counts.
func (d *Detector) detectBursts(mints []record.Mint) []Anomaly {
	window := int64(d.config.BurstWindowSeconds)
	buckets := make(map[int64]int)
	for _, m := range mints {
		buckets[m.Timestamp.Unix()/window] += 1
	}
	if len(buckets) < 2 {
		return nil
	}

	counts := make([]float64, 0, len(buckets))
	sum := 0.0
	for _, c := range buckets {
		counts = append(counts, float64(c))
		sum += float64(c)
	}
	mean := sum / float64(len(counts))
	variance := 0.0
	for _, c := range counts {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(counts))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return nil
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	threshold := mean + 3*stddev
	var out []Anomaly
	for _, k := range keys {
		count := float64(buckets[k])
		if count > threshold {
			deviation := (count - mean) / stddev
			out = append(out, Anomaly{
				Type:        TypeBurst,
				Confidence:  math.Min(0.99, deviation/10),
				WindowStart: k * window,
				MintCount:   buckets[k],
			})
		}
	}
	return out
}

// detectSequentialRuns sorts mints by (block, tx index) and looks for
// runs of strictly consecutive numeric token IDs. Runs shorter than
// ReportRunLength are not reported.
func (d *Detector) detectSequentialRuns(mints []record.Mint) []Anomaly {
	ordered := append([]record.Mint(nil), mints...)
	sort.SliceStable(ordered, func(i, j int) bool {
		bi, bj := blockOf(ordered[i]), blockOf(ordered[j])
		if bi != bj {
			return bi < bj
		}
		return txIndexOf(ordered[i]) < txIndexOf(ordered[j])
	})

	ids := make([]int64, 0, len(ordered))
	firstToken := make([]string, 0, len(ordered))
	for _, m := range ordered {
		id, err := strconv.ParseInt(m.TokenID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		firstToken = append(firstToken, m.TokenID)
	}
	if len(ids) < d.config.MinRunLength {
		return nil
	}

	var out []Anomaly
	runStart := 0
	for i := 1; i <= len(ids); i++ {
		if i < len(ids) && ids[i] == ids[i-1]+1 {
			continue
		}
		runLen := i - runStart
		if runLen >= d.config.ReportRunLength {
			out = append(out, Anomaly{
				Type:       TypeSequential,
				Confidence: math.Min(0.95, 0.5+float64(runLen-d.config.ReportRunLength)*0.02),
				RunLength:  runLen,
				FirstToken: firstToken[runStart],
			})
		}
		runStart = i
	}
	return out
}

// detectConcentration computes the Gini coefficient of per-minter mint
// counts and flags distributions above the threshold.
func (d *Detector) detectConcentration(mints []record.Mint) []Anomaly {
	counts := make(map[string]int)
	for _, m := range mints {
		counts[m.Minter]++
	}

	values := make([]float64, 0, len(counts))
	for _, c := range counts {
		values = append(values, float64(c))
	}
	g := Gini(values)
	if g <= d.config.GiniThreshold {
		return nil
	}

	type minterCount struct {
		addr  string
		count int
	}
	ranked := make([]minterCount, 0, len(counts))
	for a, c := range counts {
		ranked = append(ranked, minterCount{a, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].addr < ranked[j].addr
	})
	top := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		top = append(top, ranked[i].addr)
	}

	confidence := math.Min(0.99, (g-d.config.GiniThreshold)/(1-d.config.GiniThreshold))
	return []Anomaly{{
		Type:       TypeConcentration,
		Confidence: confidence,
		Gini:       g,
		TopMinters: top,
	}}
}

// detectGasOutliers flags mints whose gas price exceeds p75 + 3*IQR.
func (d *Detector) detectGasOutliers(mints []record.Mint) []Anomaly {
	prices := make([]float64, len(mints))
	for i, m := range mints {
		prices[i] = m.GasPrice.InexactFloat64()
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	p25 := percentile(sorted, 0.25)
	p75 := percentile(sorted, 0.75)
	iqr := p75 - p25
	if iqr == 0 {
		return nil
	}
	threshold := p75 + 3*iqr

	outliers := 0
	for _, p := range prices {
		if p > threshold {
			outliers++
		}
	}
	if outliers == 0 {
		return nil
	}
	fraction := float64(outliers) / float64(len(prices))
	return []Anomaly{{
		Type:         TypeGasOutlier,
		Confidence:   math.Min(0.9, fraction*3),
		OutlierCount: outliers,
		ThresholdGas: threshold,
	}}
}

// compositeScore is the weight-normalized sum of anomaly confidences
// scaled to 0-100.
func compositeScore(anomalies []Anomaly) float64 {
	if len(anomalies) == 0 {
		return 0
	}
	var weighted, weightSum float64
	for _, a := range anomalies {
		w := typeWeights[a.Type]
		weighted += w * a.Confidence
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	score := weighted / weightSum
	if score > 1 {
		score = 1
	}
	return score * 100
}

// reportConfidence mixes a log-scaled sample-size term with the average
// anomaly confidence; a clean batch yields a confident negative.
func (d *Detector) reportConfidence(mintCount int, anomalies []Anomaly) float64 {
	logScaled := math.Min(1, math.Log10(float64(mintCount)+1)/3)
	if len(anomalies) == 0 {
		return 0.8 * logScaled
	}
	sum := 0.0
	for _, a := range anomalies {
		sum += a.Confidence
	}
	return 0.3*logScaled + 0.7*sum/float64(len(anomalies))
}

// Gini computes the Gini coefficient of a non-negative value list:
// 2*Σ((i+1)*sorted_i)/(n*Σvalues) - (n+1)/n. Empty or zero-total inputs
// return 0.
func Gini(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	total := 0.0
	weighted := 0.0
	for i, v := range sorted {
		total += v
		weighted += float64(i+1) * v
	}
	if total == 0 {
		return 0
	}
	n := float64(len(sorted))
	return 2*weighted/(n*total) - (n+1)/n
}

// percentile interpolates linearly over a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func blockOf(m record.Mint) uint64 {
	if m.BlockNumber != nil {
		return *m.BlockNumber
	}
	return 0
}

func txIndexOf(m record.Mint) uint {
	if m.TransactionIndex != nil {
		return *m.TransactionIndex
	}
	return 0
}
