package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chainscope/chainscope/internal/audit"
	"github.com/chainscope/chainscope/internal/cluster"
	"github.com/chainscope/chainscope/internal/config"
	"github.com/chainscope/chainscope/internal/graph"
	"github.com/chainscope/chainscope/internal/mintwatch"
	"github.com/chainscope/chainscope/internal/provenance"
	"github.com/chainscope/chainscope/internal/record"
	"github.com/chainscope/chainscope/internal/security"
	"github.com/chainscope/chainscope/internal/temporal"
	"github.com/chainscope/chainscope/internal/washtrade"
)

const whaleStdDevs = 2.0

// output collects whichever analyses ran into one JSON document.
type output struct {
	Contract      *security.ContractReport   `json:"contract,omitempty"`
	Wallet        *security.SecurityScore    `json:"wallet,omitempty"`
	Provenance    *provenance.Report         `json:"provenance,omitempty"`
	Timeline      []timelineOutput           `json:"ownership_timeline,omitempty"`
	WashTrading   *washtrade.Report          `json:"wash_trading,omitempty"`
	MintAnomalies *mintwatch.Report          `json:"mint_anomalies,omitempty"`
	Clusters      *cluster.Report            `json:"clusters,omitempty"`
	Graph         *graphOutput               `json:"graph,omitempty"`
	Temporal      *temporalOutput            `json:"temporal,omitempty"`
}

type timelineOutput struct {
	provenance.TimelineEntry
	Duration string `json:"duration"`
}

type graphOutput struct {
	graph.Analysis
	Whales []graph.Whale `json:"whales,omitempty"`
}

type temporalOutput struct {
	Fibonacci   temporal.FibResult         `json:"fibonacci"`
	GoldenRatio temporal.GoldenResult      `json:"golden_ratio"`
	Periodicity temporal.PeriodicityResult `json:"periodicity"`
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	contractAddr := flag.String("contract", "", "Contract address to analyze")
	bytecodePath := flag.String("bytecode", "", "File with contract bytecode hex")
	maliciousPath := flag.String("malicious", "", "JSON file with known-malicious bytecode hex strings")
	transfersPath := flag.String("transfers", "", "JSON file with transfer records")
	tradesPath := flag.String("trades", "", "JSON file with trade records")
	mintsPath := flag.String("mints", "", "JSON file with mint records")
	tokenID := flag.String("token", "", "Token ID to verify provenance for (requires -contract and -transfers)")
	walletAddr := flag.String("wallet", "", "Wallet address to score")
	runCluster := flag.Bool("cluster", false, "Cluster wallets from -transfers")
	runGraph := flag.Bool("graph", false, "Analyze the ownership graph from -transfers")
	fullGraph := flag.Bool("full-graph", false, "Include centrality metrics in graph analysis")
	runTemporal := flag.Bool("temporal", false, "Temporal pattern analysis over -transfers or -mints timestamps")
	auditPath := flag.String("audit", "", "Append an audit trail entry per analysis to this file")
	pretty := flag.Bool("pretty", false, "Indent JSON output")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	setupLogging(cfg.General)

	transfers := mustLoadRecords[record.Transfer](*transfersPath)
	trades := mustLoadRecords[record.Trade](*tradesPath)
	mints := mustLoadRecords[record.Mint](*mintsPath)

	var out output

	if *contractAddr != "" {
		out.Contract = analyzeContract(cfg, *contractAddr, *bytecodePath, *maliciousPath, trades, mints)
	} else {
		if *tradesPath != "" {
			report := washtrade.NewDetector(cfg.WashTrading.Detector()).Analyze(trades)
			out.WashTrading = &report
		}
		if *mintsPath != "" {
			report := mintwatch.NewDetector(cfg.MintAnomalies).Analyze(mints)
			out.MintAnomalies = &report
		}
	}

	if *walletAddr != "" {
		analyzer := security.New(cfg.Analyzer(), nil)
		score, err := analyzer.AnalyzeWallet(security.WalletInput{
			Address:   *walletAddr,
			Transfers: transfers,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Wallet analysis failed")
		}
		out.Wallet = &score
	}

	if *tokenID != "" {
		if *contractAddr == "" || len(transfers) == 0 {
			log.Fatal().Msg("-token requires -contract and -transfers")
		}
		report, timeline := verifyProvenance(cfg, transfers, *tokenID, *contractAddr)
		out.Provenance = report
		out.Timeline = timeline
	}

	if *runCluster {
		out.Clusters = clusterWallets(cfg, transfers)
	}
	if *runGraph {
		out.Graph = analyzeGraph(transfers, *fullGraph)
	}
	if *runTemporal {
		out.Temporal = analyzeTemporal(cfg, transfers, mints)
	}

	if *auditPath != "" {
		recordAudit(*auditPath, out)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
}

func analyzeContract(cfg *config.Config, address, bytecodePath, maliciousPath string, trades []record.Trade, mints []record.Mint) *security.ContractReport {
	var code []byte
	if bytecodePath != "" {
		code = mustLoadBytecode(bytecodePath)
	}

	malicious := security.NewFingerprintSet()
	if maliciousPath != "" {
		var hexCodes []string
		mustLoadJSON(maliciousPath, &hexCodes)
		for _, h := range hexCodes {
			known, err := decodeHex(h)
			if err != nil {
				log.Fatal().Err(err).Str("path", maliciousPath).Msg("Bad malicious bytecode entry")
			}
			fp, err := security.BytecodeFingerprint(known)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to fingerprint malicious bytecode")
			}
			malicious.Add(fp)
		}
		log.Info().Int("fingerprints", malicious.Len()).Msg("Malicious fingerprint set loaded")
	}

	analyzer := security.New(cfg.Analyzer(), malicious)
	report, err := analyzer.AnalyzeContract(context.Background(), security.ContractInput{
		Address:  address,
		Bytecode: code,
		Trades:   trades,
		Mints:    mints,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Contract analysis failed")
	}
	return &report
}

func verifyProvenance(cfg *config.Config, transfers []record.Transfer, tokenID, contract string) (*provenance.Report, []timelineOutput) {
	cache := provenance.NewResultCache(cfg.Provenance.CacheCapacity)
	verifier := provenance.NewVerifier(cfg.Provenance.Verifier(), cfg.Provenance.Blacklist, cache)
	for _, t := range transfers {
		if err := verifier.AddTransfer(t, contract); err != nil {
			log.Fatal().Err(err).Str("tx_hash", t.TxHash).Msg("Bad transfer record")
		}
	}

	report := verifier.Verify(tokenID, contract)
	timeline, err := verifier.OwnershipTimeline(tokenID, contract, time.Now().UTC())
	if err != nil {
		log.Warn().Err(err).Msg("No ownership timeline")
	}
	entries := make([]timelineOutput, 0, len(timeline))
	for _, e := range timeline {
		entries = append(entries, timelineOutput{
			TimelineEntry: e,
			Duration:      (time.Duration(e.DurationSeconds * float64(time.Second))).String(),
		})
	}
	return &report, entries
}

func clusterWallets(cfg *config.Config, transfers []record.Transfer) *cluster.Report {
	profiles := make(map[string]*cluster.Profile)
	profileFor := func(address string) *cluster.Profile {
		if p, ok := profiles[address]; ok {
			return p
		}
		p, err := cluster.NewProfile(address)
		if err != nil {
			log.Fatal().Err(err).Str("address", address).Msg("Bad wallet address")
		}
		profiles[address] = p
		return p
	}

	for _, t := range transfers {
		if err := t.Validate(); err != nil {
			log.Fatal().Err(err).Str("tx_hash", t.TxHash).Msg("Bad transfer record")
		}
		for _, address := range []string{t.From, t.To} {
			if err := profileFor(address).Observe(t); err != nil {
				log.Fatal().Err(err).Msg("Failed to observe transfer")
			}
		}
	}

	all := make([]*cluster.Profile, 0, len(profiles))
	for _, p := range profiles {
		if err := p.Finalize(); err != nil {
			log.Fatal().Err(err).Msg("Failed to finalize profile")
		}
		all = append(all, p)
	}

	engine := cluster.NewEngine(cfg.Clustering)
	clusters, err := engine.Cluster(all)
	if err != nil {
		log.Fatal().Err(err).Msg("Clustering failed")
	}
	report := engine.BuildReport(clusters)
	return &report
}

func analyzeGraph(transfers []record.Transfer, full bool) *graphOutput {
	g := graph.NewBipartite()
	g.ExcludeExchanges(graph.NewExchangeRegistry())
	for _, t := range transfers {
		g.Add(t.To, t.TokenID)
	}
	return &graphOutput{
		Analysis: g.Analyze(full),
		Whales:   g.DetectWhales(whaleStdDevs),
	}
}

func analyzeTemporal(cfg *config.Config, transfers []record.Transfer, mints []record.Mint) *temporalOutput {
	var times []time.Time
	for _, t := range transfers {
		times = append(times, t.Timestamp.Time)
	}
	for _, m := range mints {
		times = append(times, m.Timestamp.Time)
	}
	return &temporalOutput{
		Fibonacci:   temporal.FibonacciAlignment(times, cfg.Temporal.FibTolerance),
		GoldenRatio: temporal.GoldenRatioAlignment(times),
		Periodicity: temporal.Periodicity(times, cfg.Temporal.TopComponents),
	}
}

func recordAudit(path string, out output) {
	sink, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open audit trail")
	}
	defer sink.Close()

	trail := audit.NewTrail(sink, 0)
	if out.Contract != nil {
		trail.Record(audit.EventContractAnalysis, out.Contract.Address, out.Contract.Score, out.Contract)
	}
	if out.Wallet != nil {
		trail.Record(audit.EventWalletAnalysis, out.Wallet.Address, out.Wallet.Score, out.Wallet)
	}
	if out.Provenance != nil {
		subject := out.Provenance.Contract + "|" + out.Provenance.TokenID
		trail.Record(audit.EventProvenance, subject, out.Provenance.RiskScore, out.Provenance)
	}
	if out.WashTrading != nil {
		trail.Record(audit.EventWashTrading, "", out.WashTrading.Score, out.WashTrading)
	}
	if out.MintAnomalies != nil {
		trail.Record(audit.EventMintAnomalies, "", out.MintAnomalies.Score, out.MintAnomalies)
	}
	if out.Clusters != nil {
		trail.Record(audit.EventClustering, "", float64(out.Clusters.TotalClusters), out.Clusters)
	}
}

func mustLoadRecords[T any](path string) []T {
	if path == "" {
		return nil
	}
	var records []T
	mustLoadJSON(path, &records)
	return records
}

func mustLoadJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse %s: %v\n", path, err)
		os.Exit(1)
	}
}

func mustLoadBytecode(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	code, err := decodeHex(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse %s: %v\n", path, err)
		os.Exit(1)
	}
	return code
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Logs go to stderr; stdout carries the JSON report.
	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Str("service", "chainscope").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stderr).
			With().Timestamp().Str("service", "chainscope").
			Str("instance", general.InstanceID).Logger()
	}
}
