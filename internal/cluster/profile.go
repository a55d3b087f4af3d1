package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chainscope/chainscope/internal/fingerprint"
	"github.com/chainscope/chainscope/internal/record"
)

// ---------------------------------------------------------------------------
// Wallet behavioral profiles — raw observations accumulate until an
// explicit Finalize, which derives the activity vector and behavior
// fingerprint. The derived views are invalid before Finalize and frozen
// after it.
// ---------------------------------------------------------------------------

var (
	ErrNotFinalized     = errors.New("profile not finalized")
	ErrAlreadyFinalized = errors.New("profile already finalized")
)

// VectorDims is the activity vector length.
const VectorDims = 8

// Saturation caps for min-max normalizing each vector dimension to [0,1].
// A wallet at or beyond a cap scores 1 in that dimension.
var vectorCaps = [VectorDims]float64{
	1000,   // transaction count
	365,    // active days
	500,    // distinct counterparties
	500,    // distinct tokens
	1000,   // mean gas price (gwei)
	100,    // transactions per active day
	86400,  // mean gap between transactions (seconds)
	604800, // observation span (seconds), one week
}

// Profile is the behavioral profile of one wallet.
type Profile struct {
	Address        string
	TxCount        int
	ActiveDays     map[string]struct{}
	Counterparties map[string]struct{}
	Tokens         map[string]struct{}
	GasPrices      []float64
	Timestamps     []time.Time

	finalized bool
	vector    []float64
	fp        fingerprint.Fingerprint
}

// NewProfile creates an empty profile for a normalized address.
func NewProfile(address string) (*Profile, error) {
	normalized, err := record.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Address:        normalized,
		ActiveDays:     make(map[string]struct{}),
		Counterparties: make(map[string]struct{}),
		Tokens:         make(map[string]struct{}),
	}, nil
}

// Observe folds one transfer involving this wallet into the profile.
func (p *Profile) Observe(t record.Transfer) error {
	if p.finalized {
		return ErrAlreadyFinalized
	}
	p.TxCount++
	p.ActiveDays[t.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	if t.From != p.Address && t.From != "" {
		p.Counterparties[t.From] = struct{}{}
	}
	if t.To != p.Address && t.To != "" {
		p.Counterparties[t.To] = struct{}{}
	}
	if t.TokenID != "" {
		p.Tokens[t.TokenID] = struct{}{}
	}
	if t.GasPrice != nil {
		p.GasPrices = append(p.GasPrices, t.GasPrice.InexactFloat64())
	}
	p.Timestamps = append(p.Timestamps, t.Timestamp.Time)
	return nil
}

// Finalize derives the activity vector and behavior fingerprint. It may
// be called exactly once, after all observations are ingested.
func (p *Profile) Finalize() error {
	if p.finalized {
		return ErrAlreadyFinalized
	}

	sort.Slice(p.Timestamps, func(i, j int) bool { return p.Timestamps[i].Before(p.Timestamps[j]) })

	raw := [VectorDims]float64{
		float64(p.TxCount),
		float64(len(p.ActiveDays)),
		float64(len(p.Counterparties)),
		float64(len(p.Tokens)),
		mean(p.GasPrices),
		txPerDay(p.TxCount, len(p.ActiveDays)),
		meanGapSeconds(p.Timestamps),
		spanSeconds(p.Timestamps),
	}

	p.vector = make([]float64, VectorDims)
	for i, v := range raw {
		p.vector[i] = math.Min(1, v/vectorCaps[i])
	}

	fp, err := fingerprint.New(p.summary(raw), fingerprint.Bits64)
	if err != nil {
		return fmt.Errorf("behavior fingerprint: %w", err)
	}
	p.fp = fp
	p.finalized = true
	return nil
}

// Vector returns the activity vector; invalid before Finalize.
func (p *Profile) Vector() ([]float64, error) {
	if !p.finalized {
		return nil, ErrNotFinalized
	}
	return p.vector, nil
}

// Fingerprint returns the behavior fingerprint; invalid before Finalize.
func (p *Profile) Fingerprint() (fingerprint.Fingerprint, error) {
	if !p.finalized {
		return fingerprint.Fingerprint{}, ErrNotFinalized
	}
	return p.fp, nil
}

// Finalized reports whether Finalize has run.
func (p *Profile) Finalized() bool { return p.finalized }

// RecentTxCount counts transactions within the 24 hours before the
// given reference time.
func (p *Profile) RecentTxCount(now time.Time) int {
	cutoff := now.Add(-24 * time.Hour)
	count := 0
	for _, ts := range p.Timestamps {
		if ts.After(cutoff) && !ts.After(now) {
			count++
		}
	}
	return count
}

// activeDayKey is a canonical string of the wallet's active-day set,
// used for the shared-schedule suspicion rule.
func (p *Profile) activeDayKey() string {
	days := make([]string, 0, len(p.ActiveDays))
	for d := range p.ActiveDays {
		days = append(days, d)
	}
	sort.Strings(days)
	return strings.Join(days, ",")
}

// summary serializes bucketed features for fingerprinting. Buckets keep
// near-identical behavior mapping to identical token sets.
func (p *Profile) summary(raw [VectorDims]float64) string {
	var sb strings.Builder
	labels := [VectorDims]string{"tx", "days", "peers", "tokens", "gas", "rate", "gap", "span"}
	for i, v := range raw {
		bucket := int(math.Log2(v + 1))
		fmt.Fprintf(&sb, "%s%d ", labels[i], bucket)
	}
	return sb.String()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func txPerDay(txCount, days int) float64 {
	if days == 0 {
		return 0
	}
	return float64(txCount) / float64(days)
}

func meanGapSeconds(sorted []time.Time) float64 {
	if len(sorted) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(sorted); i++ {
		total += sorted[i].Sub(sorted[i-1]).Seconds()
	}
	return total / float64(len(sorted)-1)
}

func spanSeconds(sorted []time.Time) float64 {
	if len(sorted) < 2 {
		return 0
	}
	return sorted[len(sorted)-1].Sub(sorted[0]).Seconds()
}
