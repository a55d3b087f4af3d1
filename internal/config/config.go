package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chainscope/chainscope/internal/cluster"
	"github.com/chainscope/chainscope/internal/fingerprint"
	"github.com/chainscope/chainscope/internal/mintwatch"
	"github.com/chainscope/chainscope/internal/provenance"
	"github.com/chainscope/chainscope/internal/security"
	"github.com/chainscope/chainscope/internal/similarity"
	"github.com/chainscope/chainscope/internal/washtrade"
)

// Config is the root configuration structure for chainscope.
type Config struct {
	General       GeneralConfig      `yaml:"general"`
	Fingerprint   FingerprintConfig  `yaml:"fingerprint"`
	Similarity    similarity.Weights `yaml:"similarity"`
	Temporal      TemporalConfig     `yaml:"temporal"`
	WashTrading   WashTradingConfig  `yaml:"wash_trading"`
	MintAnomalies mintwatch.Config   `yaml:"mint_anomalies"`
	Clustering    cluster.Config     `yaml:"clustering"`
	Provenance    ProvenanceConfig   `yaml:"provenance"`
	Security      SecurityConfig     `yaml:"security"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // json|text
}

type FingerprintConfig struct {
	Width int `yaml:"width"` // 64|128
}

type TemporalConfig struct {
	FibTolerance  float64 `yaml:"fib_tolerance"`  // relative gap tolerance
	TopComponents int     `yaml:"top_components"` // periodicity components reported
}

// WashTradingConfig mirrors the detector config with the window in
// minutes, since YAML carries plain integers.
type WashTradingConfig struct {
	MinVolumeETH       float64 `yaml:"min_volume_eth"`
	RapidWindowMinutes int     `yaml:"rapid_window_minutes"`
}

// Detector converts to the component config.
func (c WashTradingConfig) Detector() washtrade.Config {
	return washtrade.Config{
		MinVolumeETH: c.MinVolumeETH,
		RapidWindow:  time.Duration(c.RapidWindowMinutes) * time.Minute,
	}
}

type ProvenanceConfig struct {
	MaxTransfers        int      `yaml:"max_transfers"`
	TimeWindowHours     int      `yaml:"time_window_hours"`
	WashWindowMinutes   int      `yaml:"wash_window_minutes"`
	EntropyMinTransfers int      `yaml:"entropy_min_transfers"`
	EntropyThreshold    float64  `yaml:"entropy_threshold"`
	SymmetryThreshold   float64  `yaml:"symmetry_threshold"`
	CacheCapacity       int      `yaml:"cache_capacity"`
	Blacklist           []string `yaml:"blacklist"`
}

// Verifier converts to the component config.
func (c ProvenanceConfig) Verifier() provenance.Config {
	return provenance.Config{
		MaxTransfers:        c.MaxTransfers,
		TimeWindowHours:     c.TimeWindowHours,
		WashWindow:          time.Duration(c.WashWindowMinutes) * time.Minute,
		EntropyMinTransfers: c.EntropyMinTransfers,
		EntropyThreshold:    c.EntropyThreshold,
		SymmetryThreshold:   c.SymmetryThreshold,
	}
}

type SecurityConfig struct {
	MaliciousSimilarity float64 `yaml:"malicious_similarity"`
	HighFrequencyPerDay float64 `yaml:"high_frequency_per_day"`
	NewWalletMaxTx      int     `yaml:"new_wallet_max_tx"`
	SymmetryThreshold   float64 `yaml:"symmetry_threshold"`
}

// Analyzer assembles the orchestrator config from the root config.
func (cfg *Config) Analyzer() security.Config {
	return security.Config{
		MaliciousSimilarity: cfg.Security.MaliciousSimilarity,
		HighFrequencyPerDay: cfg.Security.HighFrequencyPerDay,
		NewWalletMaxTx:      cfg.Security.NewWalletMaxTx,
		SymmetryThreshold:   cfg.Security.SymmetryThreshold,
		Wash:                cfg.WashTrading.Detector(),
		Mint:                cfg.MintAnomalies,
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if cfg.Fingerprint.Width != fingerprint.Bits64 && cfg.Fingerprint.Width != fingerprint.Bits128 {
		return nil, fmt.Errorf("fingerprint width must be 64 or 128, got %d", cfg.Fingerprint.Width)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "chainscope-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Fingerprint.Width == 0 {
		cfg.Fingerprint.Width = fingerprint.Bits64
	}
	zeroWeights := similarity.Weights{}
	if cfg.Similarity == zeroWeights {
		cfg.Similarity = similarity.DefaultWeights()
	}
	if cfg.Temporal.FibTolerance == 0 {
		cfg.Temporal.FibTolerance = 0.1
	}
	if cfg.Temporal.TopComponents == 0 {
		cfg.Temporal.TopComponents = 3
	}
	if cfg.WashTrading.MinVolumeETH == 0 {
		cfg.WashTrading.MinVolumeETH = 0.1
	}
	if cfg.WashTrading.RapidWindowMinutes == 0 {
		cfg.WashTrading.RapidWindowMinutes = 60
	}

	mintDefaults := mintwatch.DefaultConfig()
	if cfg.MintAnomalies.MinMintsForAnalysis == 0 {
		cfg.MintAnomalies.MinMintsForAnalysis = mintDefaults.MinMintsForAnalysis
	}
	if cfg.MintAnomalies.BurstWindowSeconds == 0 {
		cfg.MintAnomalies.BurstWindowSeconds = mintDefaults.BurstWindowSeconds
	}
	if cfg.MintAnomalies.MinRunLength == 0 {
		cfg.MintAnomalies.MinRunLength = mintDefaults.MinRunLength
	}
	if cfg.MintAnomalies.ReportRunLength == 0 {
		cfg.MintAnomalies.ReportRunLength = mintDefaults.ReportRunLength
	}
	if cfg.MintAnomalies.GiniThreshold == 0 {
		cfg.MintAnomalies.GiniThreshold = mintDefaults.GiniThreshold
	}

	clusterDefaults := cluster.DefaultConfig()
	if cfg.Clustering.SimilarityThreshold == 0 {
		cfg.Clustering.SimilarityThreshold = clusterDefaults.SimilarityThreshold
	}
	if cfg.Clustering.MinClusterSize == 0 {
		cfg.Clustering.MinClusterSize = clusterDefaults.MinClusterSize
	}
	if cfg.Clustering.VectorWeight == 0 && cfg.Clustering.FingerprintWeight == 0 && cfg.Clustering.InteractionWeight == 0 {
		cfg.Clustering.VectorWeight = clusterDefaults.VectorWeight
		cfg.Clustering.FingerprintWeight = clusterDefaults.FingerprintWeight
		cfg.Clustering.InteractionWeight = clusterDefaults.InteractionWeight
	}

	provDefaults := provenance.DefaultConfig()
	if cfg.Provenance.MaxTransfers == 0 {
		cfg.Provenance.MaxTransfers = provDefaults.MaxTransfers
	}
	if cfg.Provenance.TimeWindowHours == 0 {
		cfg.Provenance.TimeWindowHours = provDefaults.TimeWindowHours
	}
	if cfg.Provenance.WashWindowMinutes == 0 {
		cfg.Provenance.WashWindowMinutes = int(provDefaults.WashWindow / time.Minute)
	}
	if cfg.Provenance.EntropyMinTransfers == 0 {
		cfg.Provenance.EntropyMinTransfers = provDefaults.EntropyMinTransfers
	}
	if cfg.Provenance.EntropyThreshold == 0 {
		cfg.Provenance.EntropyThreshold = provDefaults.EntropyThreshold
	}
	if cfg.Provenance.SymmetryThreshold == 0 {
		cfg.Provenance.SymmetryThreshold = provDefaults.SymmetryThreshold
	}
	if cfg.Provenance.CacheCapacity == 0 {
		cfg.Provenance.CacheCapacity = 1000
	}

	secDefaults := security.DefaultConfig()
	if cfg.Security.MaliciousSimilarity == 0 {
		cfg.Security.MaliciousSimilarity = secDefaults.MaliciousSimilarity
	}
	if cfg.Security.HighFrequencyPerDay == 0 {
		cfg.Security.HighFrequencyPerDay = secDefaults.HighFrequencyPerDay
	}
	if cfg.Security.NewWalletMaxTx == 0 {
		cfg.Security.NewWalletMaxTx = secDefaults.NewWalletMaxTx
	}
	if cfg.Security.SymmetryThreshold == 0 {
		cfg.Security.SymmetryThreshold = secDefaults.SymmetryThreshold
	}
}
