package provenance

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chainscope/chainscope/internal/graph"
	"github.com/chainscope/chainscope/internal/patterns"
	"github.com/chainscope/chainscope/internal/record"
)

// ---------------------------------------------------------------------------
// Provenance verification — per-token ownership chains with composite
// risk scoring. The verifier owns the (contract, token_id) map; the
// result cache is injected so callers control its lifecycle.
// ---------------------------------------------------------------------------

// Verification statuses.
const (
	StatusVerified   = "verified"
	StatusSuspicious = "suspicious"
	StatusNotFound   = "not_found"
)

// Risk factor types and severities.
const (
	FactorWashTrading  = "wash_trading"
	FactorRapidChange  = "rapid_ownership_change"
	FactorBlacklistHit = "blacklist_hit"

	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ErrNotFound is returned by timeline queries for untracked tokens.
var ErrNotFound = errors.New("token provenance not found")

// RiskFactor is one hit from an independent provenance check.
type RiskFactor struct {
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Addresses   []string `json:"addresses,omitempty"`
	TxHashes    []string `json:"tx_hashes,omitempty"`
}

// Report is the outcome of verifying one token's provenance.
type Report struct {
	TokenID            string       `json:"token_id"`
	Contract           string       `json:"contract"`
	Status             string       `json:"verification_status"`
	Creator            string       `json:"creator,omitempty"`
	CreationTx         string       `json:"creation_tx,omitempty"`
	CurrentOwner       string       `json:"current_owner,omitempty"`
	TotalTransfers     int          `json:"total_transfers"`
	UniqueParticipants int          `json:"unique_participants"`
	RiskFactors        []RiskFactor `json:"risk_factors"`
	RiskScore          float64      `json:"risk_score"`
	OwnershipEntropy   float64      `json:"ownership_entropy"`
	EntropySuspicious  bool         `json:"entropy_suspicious"`
	SymmetrySuspicious bool         `json:"symmetry_suspicious"`
	VerifiedAt         time.Time    `json:"verified_at"`
}

// TimelineEntry is one ownership period. TransferIn is nil for the
// first owner (mint origin); TransferOut is nil for the current owner.
type TimelineEntry struct {
	Owner           string    `json:"owner"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"duration_seconds"`
	TransferIn      *string   `json:"transfer_in"`
	TransferOut     *string   `json:"transfer_out"`
}

// TokenProvenance is the per-(contract, token_id) transfer history.
// Transfers keep arrival order; checks re-sort by timestamp.
type TokenProvenance struct {
	Contract   string
	TokenID    string
	Creator    string
	CreationTx string

	transfers []record.Transfer
	seen      map[string]struct{}
}

func (p *TokenProvenance) addTransfer(t record.Transfer) bool {
	id := t.Identity()
	if _, dup := p.seen[id]; dup {
		return false
	}
	if len(p.transfers) == 0 {
		p.Creator = t.From
		p.CreationTx = t.TxHash
	}
	p.seen[id] = struct{}{}
	p.transfers = append(p.transfers, t)
	return true
}

// CurrentOwner is the to-address of the latest transfer by timestamp.
func (p *TokenProvenance) CurrentOwner() string {
	s := p.sortedByTime()
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1].To
}

// Transfers returns a copy of the history in arrival order.
func (p *TokenProvenance) Transfers() []record.Transfer {
	out := make([]record.Transfer, len(p.transfers))
	copy(out, p.transfers)
	return out
}

func (p *TokenProvenance) sortedByTime() []record.Transfer {
	s := p.Transfers()
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Timestamp.Time.Before(s[j].Timestamp.Time)
	})
	return s
}

// Config tunes the independent risk checks.
type Config struct {
	MaxTransfers        int           `yaml:"max_transfers"`
	TimeWindowHours     int           `yaml:"time_window_hours"`
	WashWindow          time.Duration `yaml:"wash_window"`
	EntropyMinTransfers int           `yaml:"entropy_min_transfers"`
	EntropyThreshold    float64       `yaml:"entropy_threshold"`
	SymmetryThreshold   float64       `yaml:"symmetry_threshold"`
}

func DefaultConfig() Config {
	return Config{
		MaxTransfers:        5,
		TimeWindowHours:     24,
		WashWindow:          time.Hour,
		EntropyMinTransfers: 5,
		EntropyThreshold:    1.5,
		SymmetryThreshold:   0.75,
	}
}

// Verifier tracks token provenance and scores ownership histories.
type Verifier struct {
	mu        sync.RWMutex
	config    Config
	tokens    map[string]*TokenProvenance
	blacklist map[string]struct{}
	cache     *ResultCache
	symmetry  *patterns.SymmetryAnalyzer

	transfersAdded atomic.Uint64
	duplicates     atomic.Uint64
	verifications  atomic.Uint64
	notFound       atomic.Uint64
}

// NewVerifier builds a verifier. blacklist addresses are normalized;
// invalid entries are dropped. cache may be nil to disable caching.
func NewVerifier(config Config, blacklist []string, cache *ResultCache) *Verifier {
	bl := make(map[string]struct{}, len(blacklist))
	for _, a := range blacklist {
		norm, err := record.NormalizeAddress(a)
		if err != nil {
			log.Warn().Str("address", a).Msg("dropping invalid blacklist entry")
			continue
		}
		bl[norm] = struct{}{}
	}
	return &Verifier{
		config:    config,
		tokens:    make(map[string]*TokenProvenance),
		blacklist: bl,
		cache:     cache,
		symmetry:  patterns.NewSymmetryAnalyzer(),
	}
}

func cacheKey(contract, tokenID string) string {
	return contract + "|" + tokenID
}

// AddTransfer appends a transfer to the token's history, creating the
// provenance record on first sight. Re-adding an already-seen transfer
// (same tx_hash, token_id, log_index) is a no-op.
func (v *Verifier) AddTransfer(t record.Transfer, contract string) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("add transfer: %w", err)
	}
	norm, err := record.NormalizeAddress(contract)
	if err != nil {
		return fmt.Errorf("add transfer contract: %w", err)
	}

	key := cacheKey(norm, t.TokenID)
	v.mu.Lock()
	tp, ok := v.tokens[key]
	if !ok {
		tp = &TokenProvenance{
			Contract: norm,
			TokenID:  t.TokenID,
			seen:     make(map[string]struct{}),
		}
		v.tokens[key] = tp
	}
	added := tp.addTransfer(t)
	v.mu.Unlock()

	if !added {
		v.duplicates.Add(1)
		return nil
	}
	v.transfersAdded.Add(1)
	if v.cache != nil {
		v.cache.Remove(key)
	}
	return nil
}

// Token returns the tracked provenance for a key, if any.
func (v *Verifier) Token(tokenID, contract string) (*TokenProvenance, bool) {
	norm, err := record.NormalizeAddress(contract)
	if err != nil {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	tp, ok := v.tokens[cacheKey(norm, tokenID)]
	return tp, ok
}

// Verify runs the risk checks over a token's history. Unknown tokens
// get a not_found report rather than an error.
func (v *Verifier) Verify(tokenID, contract string) Report {
	norm, err := record.NormalizeAddress(contract)
	if err != nil {
		norm = contract
	}
	key := cacheKey(norm, tokenID)

	if v.cache != nil {
		if cached, ok := v.cache.Get(key); ok {
			return cached
		}
	}

	v.mu.RLock()
	tp, ok := v.tokens[key]
	v.mu.RUnlock()

	v.verifications.Add(1)
	if !ok {
		v.notFound.Add(1)
		return Report{TokenID: tokenID, Contract: norm, Status: StatusNotFound, VerifiedAt: time.Now().UTC()}
	}

	transfers := tp.sortedByTime()
	factors := v.washFactors(transfers)
	factors = append(factors, v.rapidChangeFactors(transfers)...)
	factors = append(factors, v.blacklistFactors(transfers)...)

	entropy := ownershipEntropy(transfers)
	entropySusp := len(transfers) >= v.config.EntropyMinTransfers && entropy < v.config.EntropyThreshold
	symmetrySusp := v.symmetrySuspicious(transfers)

	score := 20 * float64(len(factors))
	if entropySusp {
		score += 10
	}
	if symmetrySusp {
		score += 15
	}
	if score > 100 {
		score = 100
	}

	status := StatusVerified
	if score >= 30 {
		status = StatusSuspicious
	}

	if len(factors) > 0 {
		log.Debug().
			Str("token_id", tokenID).
			Str("contract", norm).
			Int("risk_factors", len(factors)).
			Float64("risk_score", score).
			Msg("provenance risk factors found")
	}

	report := Report{
		TokenID:            tokenID,
		Contract:           norm,
		Status:             status,
		Creator:            tp.Creator,
		CreationTx:         tp.CreationTx,
		CurrentOwner:       tp.CurrentOwner(),
		TotalTransfers:     len(transfers),
		UniqueParticipants: len(participants(transfers)),
		RiskFactors:        factors,
		RiskScore:          score,
		OwnershipEntropy:   entropy,
		EntropySuspicious:  entropySusp,
		SymmetrySuspicious: symmetrySusp,
		VerifiedAt:         time.Now().UTC(),
	}

	if v.cache != nil {
		v.cache.Put(key, report)
	}
	return report
}

// OwnershipTimeline returns one entry per transfer: the receiving
// address owns the token from that transfer until the next one, or
// until now for the current owner.
func (v *Verifier) OwnershipTimeline(tokenID, contract string, now time.Time) ([]TimelineEntry, error) {
	tp, ok := v.Token(tokenID, contract)
	if !ok {
		return nil, fmt.Errorf("token %s/%s: %w", contract, tokenID, ErrNotFound)
	}

	transfers := tp.sortedByTime()
	entries := make([]TimelineEntry, 0, len(transfers))
	for i, t := range transfers {
		entry := TimelineEntry{
			Owner: t.To,
			Start: t.Timestamp.Time,
		}
		if i > 0 {
			tx := transfers[i].TxHash
			entry.TransferIn = &tx
		}
		if i+1 < len(transfers) {
			next := transfers[i+1]
			entry.End = next.Timestamp.Time
			tx := next.TxHash
			entry.TransferOut = &tx
		} else {
			entry.End = now
		}
		entry.DurationSeconds = entry.End.Sub(entry.Start).Seconds()
		entries = append(entries, entry)
	}
	return entries, nil
}

func (v *Verifier) washFactors(sorted []record.Transfer) []RiskFactor {
	var factors []RiskFactor
	for i := 0; i+1 < len(sorted); i++ {
		a, b := sorted[i], sorted[i+1]
		if a.From != b.To || a.To != b.From {
			continue
		}
		if b.Timestamp.Time.Sub(a.Timestamp.Time) > v.config.WashWindow {
			continue
		}
		factors = append(factors, RiskFactor{
			Type:        FactorWashTrading,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("transfer %s reversed by %s within %s", a.TxHash, b.TxHash, v.config.WashWindow),
			Addresses:   []string{a.From, a.To},
			TxHashes:    []string{a.TxHash, b.TxHash},
		})
	}
	return factors
}

func (v *Verifier) rapidChangeFactors(sorted []record.Transfer) []RiskFactor {
	n := v.config.MaxTransfers
	if n < 2 || len(sorted) < n {
		return nil
	}
	recent := sorted[len(sorted)-n:]
	span := recent[len(recent)-1].Timestamp.Time.Sub(recent[0].Timestamp.Time)
	window := time.Duration(v.config.TimeWindowHours) * time.Hour
	if span > window {
		return nil
	}
	return []RiskFactor{{
		Type:     FactorRapidChange,
		Severity: SeverityMedium,
		Description: fmt.Sprintf("last %d transfers within %s (window %s)",
			n, span.Round(time.Second), window),
	}}
}

func (v *Verifier) blacklistFactors(sorted []record.Transfer) []RiskFactor {
	if len(v.blacklist) == 0 {
		return nil
	}
	hits := make(map[string]struct{})
	for _, t := range sorted {
		if _, bad := v.blacklist[t.From]; bad {
			hits[t.From] = struct{}{}
		}
		if _, bad := v.blacklist[t.To]; bad {
			hits[t.To] = struct{}{}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(hits))
	for a := range hits {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	factors := make([]RiskFactor, 0, len(addrs))
	for _, a := range addrs {
		factors = append(factors, RiskFactor{
			Type:        FactorBlacklistHit,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("participant %s is blacklisted", a),
			Addresses:   []string{a},
		})
	}
	return factors
}

func (v *Verifier) symmetrySuspicious(transfers []record.Transfer) bool {
	for addr := range participants(transfers) {
		report, err := v.symmetry.Analyze(addr, "")
		if err != nil {
			continue
		}
		if report.Palindrome || report.SymmetryScore >= v.config.SymmetryThreshold {
			return true
		}
	}
	return false
}

// ownershipEntropy measures how evenly transfer activity spreads over
// participant addresses. Few addresses recycling a token score low.
func ownershipEntropy(transfers []record.Transfer) float64 {
	counts := make(map[string]int)
	for _, t := range transfers {
		counts[t.From]++
		counts[t.To]++
	}
	vals := make([]int, 0, len(counts))
	for _, c := range counts {
		vals = append(vals, c)
	}
	return graph.EntropyOfCounts(vals)
}

func participants(transfers []record.Transfer) map[string]struct{} {
	set := make(map[string]struct{}, len(transfers)*2)
	for _, t := range transfers {
		set[t.From] = struct{}{}
		set[t.To] = struct{}{}
	}
	return set
}

// Stats is a point-in-time snapshot of verifier activity.
type Stats struct {
	TokensTracked  int    `json:"tokens_tracked"`
	TransfersAdded uint64 `json:"transfers_added"`
	Duplicates     uint64 `json:"duplicates_ignored"`
	Verifications  uint64 `json:"verifications"`
	NotFound       uint64 `json:"not_found"`
}

func (v *Verifier) Stats() Stats {
	v.mu.RLock()
	tracked := len(v.tokens)
	v.mu.RUnlock()
	return Stats{
		TokensTracked:  tracked,
		TransfersAdded: v.transfersAdded.Load(),
		Duplicates:     v.duplicates.Load(),
		Verifications:  v.verifications.Load(),
		NotFound:       v.notFound.Load(),
	}
}
