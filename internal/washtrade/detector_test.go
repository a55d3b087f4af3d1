package washtrade

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/record"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func trade(from, to, token string, eth float64, at time.Time, hash string) record.Trade {
	return record.Trade{
		From: from, To: to, TokenID: token,
		ValueETH:        decimal.NewFromFloat(eth),
		TransactionHash: hash,
		Timestamp:       record.Timestamp{Time: at},
	}
}

func countType(hits []SuspiciousTrade, typ string) int {
	n := 0
	for _, h := range hits {
		if h.Type == typ {
			n++
		}
	}
	return n
}

func TestAnalyze_Empty(t *testing.T) {
	d := NewDetector(DefaultConfig())
	report := d.Analyze(nil)
	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, 0.0, report.Confidence)
	assert.Equal(t, 0, report.TotalTradesAnalyzed)
}

func TestAnalyze_VolumeFloorFilters(t *testing.T) {
	d := NewDetector(DefaultConfig())
	report := d.Analyze([]record.Trade{
		trade(addrA, addrB, "1", 0.01, t0, "tx1"), // below 0.1 ETH floor
		trade(addrB, addrA, "1", 0.02, t0.Add(time.Minute), "tx2"),
	})
	assert.Equal(t, 0, report.TotalTradesAnalyzed)
	assert.Empty(t, report.SuspiciousTrades)
}

func TestDetectCircular_WithinWindow(t *testing.T) {
	d := NewDetector(DefaultConfig())
	report := d.Analyze([]record.Trade{
		trade(addrA, addrB, "7", 1.0, t0, "tx1"),
		trade(addrB, addrA, "7", 1.0, t0.Add(30*time.Minute), "tx2"),
	})

	require.Equal(t, 1, countType(report.SuspiciousTrades, TypeCircular))
	for _, h := range report.SuspiciousTrades {
		if h.Type == TypeCircular {
			assert.Equal(t, confidenceCircular, h.Confidence)
			assert.Equal(t, []string{"tx1", "tx2"}, h.TxHashes)
			assert.InDelta(t, 1800, h.GapSeconds, 1e-9)
		}
	}
}

func TestDetectCircular_OutsideWindow(t *testing.T) {
	d := NewDetector(DefaultConfig())
	report := d.Analyze([]record.Trade{
		trade(addrA, addrB, "7", 1.0, t0, "tx1"),
		trade(addrB, addrA, "7", 1.0, t0.Add(2*time.Hour), "tx2"),
	})
	assert.Equal(t, 0, countType(report.SuspiciousTrades, TypeCircular))
}

func TestDetectRapidTurnaround(t *testing.T) {
	d := NewDetector(DefaultConfig())
	report := d.Analyze([]record.Trade{
		trade(addrA, addrB, "9", 1.0, t0, "tx1"),
		trade(addrB, addrC, "9", 1.0, t0.Add(10*time.Minute), "tx2"),
		trade(addrC, addrA, "9", 1.0, t0.Add(5*time.Hour), "tx3"), // gap too large
	})

	require.Equal(t, 1, countType(report.SuspiciousTrades, TypeRapid))
	for _, h := range report.SuspiciousTrades {
		if h.Type == TypeRapid {
			assert.Equal(t, confidenceRapid, h.Confidence)
		}
	}
}

func TestDetectVolumeAnomaly(t *testing.T) {
	d := NewDetector(DefaultConfig())
	trades := make([]record.Trade, 0, 21)
	for i := 0; i < 20; i++ {
		trades = append(trades, trade(addrA, addrB, fmt.Sprintf("t%d", i), 1.0, t0.Add(time.Duration(i)*24*time.Hour), fmt.Sprintf("tx%d", i)))
	}
	trades = append(trades, trade(addrA, addrC, "big", 500, t0.Add(600*time.Hour), "txbig"))

	report := d.Analyze(trades)
	require.Equal(t, 1, countType(report.SuspiciousTrades, TypeVolumeAnomaly))
	for _, h := range report.SuspiciousTrades {
		if h.Type == TypeVolumeAnomaly {
			assert.Equal(t, confidenceVolume, h.Confidence)
			assert.Equal(t, []string{"txbig"}, h.TxHashes)
			assert.Greater(t, h.ThresholdETH, 1.0)
		}
	}
}

func TestDetectVolumeAnomaly_ZeroVariance(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var trades []record.Trade
	for i := 0; i < 5; i++ {
		trades = append(trades, trade(addrA, addrB, fmt.Sprintf("t%d", i), 2.0, t0.Add(time.Duration(i)*48*time.Hour), fmt.Sprintf("tx%d", i)))
	}
	report := d.Analyze(trades)
	assert.Equal(t, 0, countType(report.SuspiciousTrades, TypeVolumeAnomaly))
}

func TestAnalyze_ScoreAndConfidenceBounds(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var trades []record.Trade
	// Heavy repetitive wash pattern: same pair ping-ponging one token.
	for i := 0; i < 20; i++ {
		from, to := addrA, addrB
		if i%2 == 1 {
			from, to = addrB, addrA
		}
		trades = append(trades, trade(from, to, "1", 10, t0.Add(time.Duration(i)*time.Minute), fmt.Sprintf("tx%d", i)))
	}

	report := d.Analyze(trades)
	assert.Greater(t, report.Score, 0.0)
	assert.LessOrEqual(t, report.Score, 100.0)
	assert.Greater(t, report.Confidence, 0.0)
	assert.LessOrEqual(t, report.Confidence, 1.0)
	assert.Greater(t, report.SuspiciousCount, 5)
	assert.True(t, report.SuspiciousVolumeETH.LessThanOrEqual(report.TotalVolumeETH))
}

func TestAnalyze_CleanMarketLowScore(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var trades []record.Trade
	for i := 0; i < 10; i++ {
		from := fmt.Sprintf("0x%040d", i)
		to := fmt.Sprintf("0x%040d", i+50)
		trades = append(trades, trade(from, to, fmt.Sprintf("t%d", i), 1.0+float64(i)*0.1, t0.Add(time.Duration(i)*72*time.Hour), fmt.Sprintf("tx%d", i)))
	}
	report := d.Analyze(trades)
	assert.Equal(t, 0, report.SuspiciousCount)
	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, 0.0, report.Confidence)
}

func TestPatternEntropy_SinglePatternIsZero(t *testing.T) {
	trades := []record.Trade{
		trade(addrA, addrB, "1", 1, t0, "tx1"),
		trade(addrA, addrB, "1", 1, t0, "tx2"),
	}
	assert.Equal(t, 0.0, patternEntropy(trades))
}
