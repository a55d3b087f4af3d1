package security

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chainscope/chainscope/internal/fingerprint"
	"github.com/chainscope/chainscope/internal/mintwatch"
	"github.com/chainscope/chainscope/internal/patterns"
	"github.com/chainscope/chainscope/internal/record"
	"github.com/chainscope/chainscope/internal/washtrade"
)

// ---------------------------------------------------------------------------
// Security analyzer — orchestrates the independent sub-analyses for a
// contract and composes a single 0-100 score. Sub-analyses run
// concurrently; a failing detector degrades to a zero-signal result
// instead of aborting the assessment.
// ---------------------------------------------------------------------------

// TradeAnalyzer is the wash-trading detection surface the orchestrator
// depends on. Satisfied by *washtrade.Detector.
type TradeAnalyzer interface {
	Analyze(trades []record.Trade) washtrade.Report
}

// MintAnalyzer is the mint-anomaly detection surface. Satisfied by
// *mintwatch.Detector.
type MintAnalyzer interface {
	Analyze(mints []record.Mint) mintwatch.Report
}

// Config tunes the orchestrator and its sub-detectors.
type Config struct {
	// MaliciousSimilarity is the fingerprint similarity above which a
	// contract counts as matching a known-malicious fingerprint.
	MaliciousSimilarity float64 `yaml:"malicious_similarity"`
	// HighFrequencyPerDay marks a wallet as high-frequency above this
	// transactions-per-day rate.
	HighFrequencyPerDay float64 `yaml:"high_frequency_per_day"`
	// NewWalletMaxTx marks a wallet as new at or below this many
	// observed transactions.
	NewWalletMaxTx    int     `yaml:"new_wallet_max_tx"`
	SymmetryThreshold float64 `yaml:"symmetry_threshold"`

	Wash washtrade.Config `yaml:"wash_trading"`
	Mint mintwatch.Config `yaml:"mint_anomalies"`
}

func DefaultConfig() Config {
	return Config{
		MaliciousSimilarity: 0.9,
		HighFrequencyPerDay: 50,
		NewWalletMaxTx:      5,
		SymmetryThreshold:   0.75,
		Wash:                washtrade.DefaultConfig(),
		Mint:                mintwatch.DefaultConfig(),
	}
}

// SecurityScore is the composite assessment for one address.
type SecurityScore struct {
	Address     string    `json:"address"`
	Score       float64   `json:"score"`      // 0-100, higher is safer
	RiskFactors []string  `json:"risk_factors"`
	Confidence  float64   `json:"confidence"` // 0-1
	Timestamp   time.Time `json:"timestamp"`
}

// WashResult is the wash-trading sub-report; Error is set when the
// detector failed and the zero report stands in for its signal.
type WashResult struct {
	washtrade.Report
	Error string `json:"error,omitempty"`
}

// MintResult is the mint-anomaly sub-report, degraded the same way.
type MintResult struct {
	mintwatch.Report
	Error string `json:"error,omitempty"`
}

// ContractReport is the full orchestrated output for a contract.
type ContractReport struct {
	SecurityScore
	SimilarToMalicious  bool                    `json:"similar_to_malicious"`
	Vulnerabilities     []string                `json:"vulnerabilities"`
	SuspiciousFunctions []string                `json:"suspicious_functions"`
	Bytecode            patterns.BytecodeReport `json:"bytecode"`
	WashTrading         WashResult              `json:"wash_trading"`
	MintAnomalies       MintResult              `json:"mint_anomalies"`
}

// ContractInput is one contract analysis request: the bytecode plus the
// trade and mint activity snapshots to assess alongside it.
type ContractInput struct {
	Address  string
	Bytecode []byte
	Trades   []record.Trade
	Mints    []record.Mint
}

// WalletInput is one wallet analysis request. PhishingIndicators are
// caller-supplied labels from external intelligence feeds.
type WalletInput struct {
	Address            string
	Transfers          []record.Transfer
	PhishingIndicators []string
}

// Analyzer coordinates the sub-detectors. The malicious fingerprint set
// is injected so callers control what it contains and when it changes.
type Analyzer struct {
	config    Config
	malicious *FingerprintSet
	symmetry  *patterns.SymmetryAnalyzer
	wash      TradeAnalyzer
	mint      MintAnalyzer
}

func New(config Config, malicious *FingerprintSet) *Analyzer {
	return NewWithDetectors(config, malicious,
		washtrade.NewDetector(config.Wash),
		mintwatch.NewDetector(config.Mint))
}

// NewWithDetectors injects the sub-detectors, for tests.
func NewWithDetectors(config Config, malicious *FingerprintSet, wash TradeAnalyzer, mint MintAnalyzer) *Analyzer {
	if malicious == nil {
		malicious = NewFingerprintSet()
	}
	return &Analyzer{
		config:    config,
		malicious: malicious,
		symmetry:  patterns.NewSymmetryAnalyzer(),
		wash:      wash,
		mint:      mint,
	}
}

// bytecodeResult carries the bytecode branch's outputs across the join.
type bytecodeResult struct {
	report    patterns.BytecodeReport
	similar   bool
	suspFuncs []string
	err       string
}

// AnalyzeContract runs the three independent sub-analyses concurrently
// and joins them into one report. The only hard failure is an invalid
// address.
func (a *Analyzer) AnalyzeContract(ctx context.Context, input ContractInput) (ContractReport, error) {
	address, err := record.NormalizeAddress(input.Address)
	if err != nil {
		return ContractReport{}, fmt.Errorf("analyze contract: %w", err)
	}

	var (
		code bytecodeResult
		wash WashResult
		mint MintResult
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer recoverInto(&code.err, "bytecode")
		if err := ctx.Err(); err != nil {
			code.err = err.Error()
			return nil
		}
		code.report = patterns.AnalyzeBytecode(input.Bytecode)
		code.suspFuncs = code.report.SuspiciousOpcodes()
		code.similar = a.matchesMalicious(input.Bytecode)
		return nil
	})
	g.Go(func() error {
		defer recoverInto(&wash.Error, "wash_trading")
		if err := ctx.Err(); err != nil {
			wash.Error = err.Error()
			return nil
		}
		wash.Report = a.wash.Analyze(input.Trades)
		return nil
	})
	g.Go(func() error {
		defer recoverInto(&mint.Error, "mint_anomalies")
		if err := ctx.Err(); err != nil {
			mint.Error = err.Error()
			return nil
		}
		mint.Report = a.mint.Analyze(input.Mints)
		return nil
	})
	// Sub-analyses never return errors; failures degrade in place.
	_ = g.Wait()

	if wash.Error != "" {
		wash.Report = washtrade.Report{}
	}
	if mint.Error != "" {
		mint.Report = mintwatch.Report{}
	}
	if code.err != "" {
		code = bytecodeResult{err: code.err}
	}

	score := 100.0
	var factors []string
	if code.similar {
		score -= 75
		factors = append(factors, "similar_to_malicious_contract")
	}
	for _, v := range code.report.Vulnerabilities {
		score -= 10
		factors = append(factors, "vulnerability:"+v)
	}
	for _, f := range code.suspFuncs {
		score -= 3
		factors = append(factors, "suspicious_opcode:"+f)
	}
	if wash.Report.Score > 0 {
		score -= 20 * wash.Report.Score / 100
		factors = append(factors, "wash_trading_activity")
	}
	if mint.Report.Score > 0 {
		score -= 15 * mint.Report.Score / 100
		factors = append(factors, "mint_anomalies")
	}
	score = clamp(score, 0, 100)

	confidence := 0.5
	if wash.Error == "" {
		confidence += 0.25 * wash.Report.Confidence
	}
	if mint.Error == "" {
		confidence += 0.25 * mint.Report.Confidence
	}

	report := ContractReport{
		SecurityScore: SecurityScore{
			Address:     address,
			Score:       score,
			RiskFactors: factors,
			Confidence:  clamp(confidence, 0, 1),
			Timestamp:   time.Now().UTC(),
		},
		SimilarToMalicious:  code.similar,
		Vulnerabilities:     code.report.Vulnerabilities,
		SuspiciousFunctions: code.suspFuncs,
		Bytecode:            code.report,
		WashTrading:         wash,
		MintAnomalies:       mint,
	}

	log.Debug().
		Str("address", address).
		Float64("score", score).
		Int("risk_factors", len(factors)).
		Msg("contract analyzed")
	return report, nil
}

// AnalyzeWallet scores a wallet from activity heuristics. Starts at 50
// and applies fixed deductions per indicator.
func (a *Analyzer) AnalyzeWallet(input WalletInput) (SecurityScore, error) {
	address, err := record.NormalizeAddress(input.Address)
	if err != nil {
		return SecurityScore{}, fmt.Errorf("analyze wallet: %w", err)
	}

	score := 50.0
	var factors []string

	n := len(input.Transfers)
	if n <= a.config.NewWalletMaxTx {
		score -= 10
		factors = append(factors, "new_wallet")
	}
	if a.txPerDay(input.Transfers) > a.config.HighFrequencyPerDay {
		score -= 5
		factors = append(factors, "high_frequency_trading")
	}
	if a.addressIsSymmetric(address) {
		score -= 5
		factors = append(factors, "symmetric_address")
	}
	for _, indicator := range input.PhishingIndicators {
		score -= 10
		factors = append(factors, "phishing_indicator:"+indicator)
	}

	return SecurityScore{
		Address:     address,
		Score:       clamp(score, 0, 100),
		RiskFactors: factors,
		Confidence:  clamp(0.3+float64(n)/20, 0, 1),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// matchesMalicious fingerprints the bytecode and probes the known set.
// Empty bytecode never matches.
func (a *Analyzer) matchesMalicious(code []byte) bool {
	if len(code) == 0 || a.malicious.Len() == 0 {
		return false
	}
	fp, err := BytecodeFingerprint(code)
	if err != nil {
		return false
	}
	return a.malicious.Matches(fp, a.config.MaliciousSimilarity)
}

// BytecodeFingerprint hashes bytecode one token per byte, so contracts
// sharing most of their code land near each other.
func BytecodeFingerprint(code []byte) (fingerprint.Fingerprint, error) {
	tokens := make([]string, len(code))
	for i, b := range code {
		tokens[i] = fmt.Sprintf("%02x", b)
	}
	return fingerprint.NewFromTokens(tokens, fingerprint.Bits64)
}

func (a *Analyzer) addressIsSymmetric(address string) bool {
	report, err := a.symmetry.Analyze(address, "")
	if err != nil {
		return false
	}
	return report.Palindrome || report.SymmetryScore >= a.config.SymmetryThreshold
}

func (a *Analyzer) txPerDay(transfers []record.Transfer) float64 {
	if len(transfers) < 2 {
		return 0
	}
	min, max := transfers[0].Timestamp.Time, transfers[0].Timestamp.Time
	for _, t := range transfers[1:] {
		if t.Timestamp.Time.Before(min) {
			min = t.Timestamp.Time
		}
		if t.Timestamp.Time.After(max) {
			max = t.Timestamp.Time
		}
	}
	days := max.Sub(min).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(len(transfers)) / days
}

func recoverInto(dst *string, stage string) {
	if r := recover(); r != nil {
		*dst = fmt.Sprintf("panic: %v", r)
		log.Error().Str("stage", stage).Interface("panic", r).Msg("sub-analysis failed")
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
