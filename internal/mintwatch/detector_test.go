package mintwatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/record"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func mint(minter, token string, at time.Time, gas float64) record.Mint {
	block := uint64(at.Unix() / 12)
	idx := uint(at.Unix() % 12)
	return record.Mint{
		Minter:           minter,
		TokenID:          token,
		TransactionHash:  fmt.Sprintf("tx-%s-%s", minter, token),
		Timestamp:        record.Timestamp{Time: at},
		GasPrice:         decimal.NewFromFloat(gas),
		BlockNumber:      &block,
		TransactionIndex: &idx,
	}
}

func countType(anomalies []Anomaly, typ string) int {
	n := 0
	for _, a := range anomalies {
		if a.Type == typ {
			n++
		}
	}
	return n
}

func TestAnalyze_InsufficientData(t *testing.T) {
	d := NewDetector(DefaultConfig())
	report := d.Analyze([]record.Mint{
		mint("0xa", "1", t0, 20),
		mint("0xb", "2", t0, 20),
	})
	assert.True(t, report.InsufficientData)
	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, 0.0, report.Confidence)
	assert.Equal(t, 2, report.TotalMints)
}

func TestDetectBursts_FiftyInOneMinute(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	// Baseline: ~2 mints per minute for 30 minutes, distinct minters.
	for i := 0; i < 30; i++ {
		for j := 0; j < 2; j++ {
			mints = append(mints, mint(fmt.Sprintf("0xbase%d", i*2+j), fmt.Sprintf("b%d-%d", i, j),
				t0.Add(time.Duration(i)*time.Minute+time.Duration(j*20)*time.Second), 20))
		}
	}
	// Burst: 50 mints in one minute.
	for j := 0; j < 50; j++ {
		mints = append(mints, mint(fmt.Sprintf("0xburst%d", j), fmt.Sprintf("x%d", j),
			t0.Add(45*time.Minute+time.Duration(j)*time.Second), 20))
	}

	report := d.Analyze(mints)
	require.GreaterOrEqual(t, countType(report.Anomalies, TypeBurst), 1)
	for _, a := range report.Anomalies {
		if a.Type == TypeBurst {
			assert.GreaterOrEqual(t, a.MintCount, 50)
			assert.Greater(t, a.Confidence, 0.5)
			assert.LessOrEqual(t, a.Confidence, 0.99)
		}
	}
}

func TestDetectBursts_UniformStreamClean(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	for i := 0; i < 100; i++ {
		mints = append(mints, mint(fmt.Sprintf("0xm%d", i), fmt.Sprintf("u%d", i),
			t0.Add(time.Duration(i)*time.Minute), 20))
	}
	report := d.Analyze(mints)
	assert.Equal(t, 0, countType(report.Anomalies, TypeBurst))
}

func TestDetectSequentialRuns(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	// 15 strictly consecutive token IDs minted in block order.
	for i := 0; i < 15; i++ {
		mints = append(mints, mint("0xbot", fmt.Sprintf("%d", 100+i),
			t0.Add(time.Duration(i*13)*time.Second), 20))
	}
	report := d.Analyze(mints)

	require.Equal(t, 1, countType(report.Anomalies, TypeSequential))
	for _, a := range report.Anomalies {
		if a.Type == TypeSequential {
			assert.Equal(t, 15, a.RunLength)
			assert.Equal(t, "100", a.FirstToken)
			assert.LessOrEqual(t, a.Confidence, 0.95)
		}
	}
}

func TestDetectSequentialRuns_ShortRunNotReported(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	// Run of 7 consecutive IDs (>= min detectable 5, < report threshold 10),
	// padded with non-numeric IDs to clear the analysis minimum.
	for i := 0; i < 7; i++ {
		mints = append(mints, mint("0xbot", fmt.Sprintf("%d", 200+i),
			t0.Add(time.Duration(i*13)*time.Second), 20))
	}
	for i := 0; i < 5; i++ {
		mints = append(mints, mint(fmt.Sprintf("0xm%d", i), fmt.Sprintf("rare-%d", i*50),
			t0.Add(time.Duration(i)*time.Hour), 20))
	}
	report := d.Analyze(mints)
	assert.Equal(t, 0, countType(report.Anomalies, TypeSequential))
}

func TestDetectConcentration_SingleMinter(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	// One minter does 50 mints, nine wallets do one each.
	for i := 0; i < 50; i++ {
		mints = append(mints, mint("0xwhale", fmt.Sprintf("w%d", i),
			t0.Add(time.Duration(i)*2*time.Minute), 20))
	}
	for i := 0; i < 9; i++ {
		mints = append(mints, mint(fmt.Sprintf("0xsolo%d", i), fmt.Sprintf("s%d", i),
			t0.Add(time.Duration(i)*3*time.Hour), 20))
	}
	report := d.Analyze(mints)

	require.Equal(t, 1, countType(report.Anomalies, TypeConcentration))
	for _, a := range report.Anomalies {
		if a.Type == TypeConcentration {
			assert.Greater(t, a.Gini, 0.7)
			assert.Equal(t, "0xwhale", a.TopMinters[0])
			assert.Len(t, a.TopMinters, 3)
		}
	}
}

func TestDetectGasOutliers(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	for i := 0; i < 20; i++ {
		mints = append(mints, mint(fmt.Sprintf("0xm%d", i), fmt.Sprintf("g%d", i),
			t0.Add(time.Duration(i)*10*time.Minute), 20+float64(i%5)))
	}
	mints = append(mints, mint("0xsniper", "gx", t0.Add(4*time.Hour), 500))

	report := d.Analyze(mints)
	require.Equal(t, 1, countType(report.Anomalies, TypeGasOutlier))
	for _, a := range report.Anomalies {
		if a.Type == TypeGasOutlier {
			assert.Equal(t, 1, a.OutlierCount)
			assert.LessOrEqual(t, a.Confidence, 0.9)
			assert.Greater(t, a.ThresholdGas, 24.0)
		}
	}
}

func TestAnalyze_CleanBatchConfidentNegative(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	for i := 0; i < 100; i++ {
		mints = append(mints, mint(fmt.Sprintf("0xm%d", i), fmt.Sprintf("c%d", i*7),
			t0.Add(time.Duration(i)*time.Minute), 20))
	}
	report := d.Analyze(mints)

	assert.Equal(t, 0, report.AnomalyCount)
	assert.Equal(t, 0.0, report.Score)
	// Confident negative: 0.8 * log-scaled(100).
	assert.Greater(t, report.Confidence, 0.4)
	assert.LessOrEqual(t, report.Confidence, 0.8)
}

func TestAnalyze_ScoreBounds(t *testing.T) {
	d := NewDetector(DefaultConfig())
	var mints []record.Mint
	// Bot swarm: one minter, sequential IDs, burst timing, gas spikes.
	for i := 0; i < 60; i++ {
		gas := 20.0
		if i%10 == 0 {
			gas = 900
		}
		mints = append(mints, mint("0xbot", fmt.Sprintf("%d", i),
			t0.Add(time.Duration(i)*time.Second), gas))
	}
	mints = append(mints, mint("0xother", "rare-1", t0.Add(2*time.Hour), 20))

	report := d.Analyze(mints)
	assert.Greater(t, report.Score, 0.0)
	assert.LessOrEqual(t, report.Score, 100.0)
	assert.Greater(t, report.Confidence, 0.0)
	assert.LessOrEqual(t, report.Confidence, 1.0)
}

func TestGini_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, Gini(nil))
	assert.Equal(t, 0.0, Gini([]float64{0, 0, 0}))
	assert.InDelta(t, 0.0, Gini([]float64{5, 5, 5, 5}), 1e-9)

	// Single holder of everything approaches (n-1)/n.
	g := Gini([]float64{0, 0, 0, 0, 100})
	assert.InDelta(t, 0.8, g, 1e-9)
	assert.GreaterOrEqual(t, g, 0.0)
	assert.LessOrEqual(t, g, 1.0)
}
