package washtrade

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/chainscope/chainscope/internal/record"
)

// ---------------------------------------------------------------------------
// Wash-trading detector — pure batch analysis over a trade list. Three
// independent rules run over trades at or above the volume floor and
// their hits are concatenated into one report.
// ---------------------------------------------------------------------------

// Anomaly types.
const (
	TypeCircular      = "circular_trade"
	TypeRapid         = "rapid_turnaround"
	TypeVolumeAnomaly = "volume_anomaly"
)

// Fixed per-rule confidences.
const (
	confidenceCircular = 0.85
	confidenceRapid    = 0.75
	confidenceVolume   = 0.8
)

// Config configures the detector.
type Config struct {
	MinVolumeETH float64       `yaml:"min_volume_eth"` // ignore trades below this
	RapidWindow  time.Duration `yaml:"rapid_window"`   // max gap for rapid/circular rules
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinVolumeETH: 0.1,
		RapidWindow:  time.Hour,
	}
}

// Detector is a stateless batch wash-trading analyzer.
type Detector struct {
	config Config
}

func NewDetector(config Config) *Detector {
	return &Detector{config: config}
}

// SuspiciousTrade is one flagged trade or trade pair.
type SuspiciousTrade struct {
	Type         string          `json:"type"`
	Confidence   float64         `json:"confidence"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	TokenID      string          `json:"token_id"`
	TxHashes     []string        `json:"tx_hashes"`
	ValueETH     decimal.Decimal `json:"value_eth"`
	GapSeconds   float64         `json:"gap_seconds,omitempty"`
	ThresholdETH float64         `json:"threshold_eth,omitempty"`
}

// Report is the wash-trading analysis output.
type Report struct {
	Score               float64           `json:"score"`      // 0-100
	Confidence          float64           `json:"confidence"` // 0-1
	SuspiciousTrades    []SuspiciousTrade `json:"suspicious_trades"`
	TotalTradesAnalyzed int               `json:"total_trades_analyzed"`
	SuspiciousCount     int               `json:"suspicious_count"`
	TotalVolumeETH      decimal.Decimal   `json:"total_volume_eth"`
	SuspiciousVolumeETH decimal.Decimal   `json:"suspicious_volume_eth"`
}

// Analyze runs all three rules over the trade list and composes the
// report score. Empty or all-filtered inputs return a zero report.
func (d *Detector) Analyze(trades []record.Trade) Report {
	filtered := make([]record.Trade, 0, len(trades))
	minVolume := decimal.NewFromFloat(d.config.MinVolumeETH)
	for _, t := range trades {
		if t.ValueETH.Cmp(minVolume) >= 0 {
			filtered = append(filtered, t)
		}
	}

	report := Report{
		TotalTradesAnalyzed: len(filtered),
		TotalVolumeETH:      decimal.Zero,
		SuspiciousVolumeETH: decimal.Zero,
	}
	if len(filtered) == 0 {
		return report
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Time.Before(filtered[j].Timestamp.Time)
	})
	for _, t := range filtered {
		report.TotalVolumeETH = report.TotalVolumeETH.Add(t.ValueETH)
	}

	flagged := make(map[int]struct{}) // indices into filtered
	var hits []SuspiciousTrade

	hits = append(hits, d.detectCircular(filtered, flagged)...)
	hits = append(hits, d.detectRapidTurnaround(filtered, flagged)...)
	hits = append(hits, d.detectVolumeAnomalies(filtered, flagged)...)

	report.SuspiciousTrades = hits
	report.SuspiciousCount = len(hits)
	for idx := range flagged {
		report.SuspiciousVolumeETH = report.SuspiciousVolumeETH.Add(filtered[idx].ValueETH)
	}

	report.Score = d.compositeScore(filtered, report) * 100
	report.Confidence = d.confidence(report)

	if report.SuspiciousCount > 0 {
		log.Debug().
			Int("suspicious", report.SuspiciousCount).
			Int("trades", report.TotalTradesAnalyzed).
			Float64("score", report.Score).
			Msg("washtrade: anomalies detected")
	}
	return report
}

// detectCircular flags (seller→buyer) trades whose reverse edge for the
// same token exists within the rapid window. Each matched pair produces
// exactly one hit.
func (d *Detector) detectCircular(trades []record.Trade, flagged map[int]struct{}) []SuspiciousTrade {
	var hits []SuspiciousTrade
	consumed := make(map[int]struct{})

	for i := 0; i < len(trades); i++ {
		if _, done := consumed[i]; done {
			continue
		}
		a := trades[i]
		for j := i + 1; j < len(trades); j++ {
			if _, done := consumed[j]; done {
				continue
			}
			b := trades[j]
			gap := b.Timestamp.Time.Sub(a.Timestamp.Time)
			if gap > d.config.RapidWindow {
				break // sorted by time, no later trade qualifies
			}
			if b.From == a.To && b.To == a.From && b.TokenID == a.TokenID {
				consumed[i] = struct{}{}
				consumed[j] = struct{}{}
				flagged[i] = struct{}{}
				flagged[j] = struct{}{}
				hits = append(hits, SuspiciousTrade{
					Type:       TypeCircular,
					Confidence: confidenceCircular,
					From:       a.From,
					To:         a.To,
					TokenID:    a.TokenID,
					TxHashes:   []string{a.TransactionHash, b.TransactionHash},
					ValueETH:   a.ValueETH.Add(b.ValueETH),
					GapSeconds: gap.Seconds(),
				})
				break
			}
		}
	}
	return hits
}

// detectRapidTurnaround flags consecutive same-token trades whose gap is
// at most the rapid window.
func (d *Detector) detectRapidTurnaround(trades []record.Trade, flagged map[int]struct{}) []SuspiciousTrade {
	byToken := make(map[string][]int)
	for i, t := range trades {
		byToken[t.TokenID] = append(byToken[t.TokenID], i)
	}

	var hits []SuspiciousTrade
	for token, idxs := range byToken {
		for k := 0; k+1 < len(idxs); k++ {
			a, b := trades[idxs[k]], trades[idxs[k+1]]
			gap := b.Timestamp.Time.Sub(a.Timestamp.Time)
			if gap > d.config.RapidWindow {
				continue
			}
			flagged[idxs[k]] = struct{}{}
			flagged[idxs[k+1]] = struct{}{}
			hits = append(hits, SuspiciousTrade{
				Type:       TypeRapid,
				Confidence: confidenceRapid,
				From:       a.From,
				To:         b.To,
				TokenID:    token,
				TxHashes:   []string{a.TransactionHash, b.TransactionHash},
				ValueETH:   a.ValueETH.Add(b.ValueETH),
				GapSeconds: gap.Seconds(),
			})
		}
	}
	return hits
}

// detectVolumeAnomalies flags trades whose value exceeds mean + 3*stddev
// of all filtered trade values. Zero variance flags nothing.
func (d *Detector) detectVolumeAnomalies(trades []record.Trade, flagged map[int]struct{}) []SuspiciousTrade {
	values := make([]float64, len(trades))
	sum := 0.0
	for i, t := range trades {
		values[i] = t.ValueETH.InexactFloat64()
		sum += values[i]
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return nil
	}

	threshold := mean + 3*stddev
	var hits []SuspiciousTrade
	for i, t := range trades {
		if values[i] > threshold {
			flagged[i] = struct{}{}
			hits = append(hits, SuspiciousTrade{
				Type:         TypeVolumeAnomaly,
				Confidence:   confidenceVolume,
				From:         t.From,
				To:           t.To,
				TokenID:      t.TokenID,
				TxHashes:     []string{t.TransactionHash},
				ValueETH:     t.ValueETH,
				ThresholdETH: threshold,
			})
		}
	}
	return hits
}

// compositeScore is (suspiciousVolume/totalVolume)*2 capped at 1, damped
// by (1 - normalized pattern entropy): repetitive from/to/token patterns
// push the score up.
func (d *Detector) compositeScore(trades []record.Trade, report Report) float64 {
	if !report.TotalVolumeETH.IsPositive() {
		return 0
	}
	ratio, _ := report.SuspiciousVolumeETH.Div(report.TotalVolumeETH).Float64()
	ratio *= 2
	if ratio > 1 {
		ratio = 1
	}
	return ratio * (1 - patternEntropy(trades))
}

// patternEntropy is the Shannon entropy of the trade-pattern string
// distribution (from[:8]_to[:8]_token), normalized to [0,1] by the
// maximum entropy for the trade count so that few patterns repeating
// across many trades read as low entropy.
func patternEntropy(trades []record.Trade) float64 {
	if len(trades) <= 1 {
		return 0
	}
	counts := make(map[string]int)
	for _, t := range trades {
		counts[prefix8(t.From)+"_"+prefix8(t.To)+"_"+t.TokenID]++
	}
	if len(counts) <= 1 {
		return 0
	}
	h := 0.0
	total := float64(len(trades))
	for _, c := range counts {
		p := float64(c) / total
		h -= p * math.Log2(p)
	}
	return h / math.Log2(total)
}

func prefix8(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// confidence is min(1, suspicious/10) scaled by a total-volume factor
// min(1, log10(volume)/5). Sub-unit volumes contribute no confidence.
func (d *Detector) confidence(report Report) float64 {
	count := math.Min(1, float64(report.SuspiciousCount)/10)
	volume := report.TotalVolumeETH.InexactFloat64()
	if volume <= 1 {
		return 0
	}
	factor := math.Min(1, math.Log10(volume)/5)
	return count * factor
}
