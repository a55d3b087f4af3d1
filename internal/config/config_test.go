package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "chainscope-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(yaml)
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  log_level: "debug"
  log_format: "text"

fingerprint:
  width: 128

wash_trading:
  min_volume_eth: 0.5
  rapid_window_minutes: 30

clustering:
  similarity_threshold: 0.8
  min_cluster_size: 3

provenance:
  blacklist:
    - "0x1111111111111111111111111111111111111111"
  cache_capacity: 500
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 128, cfg.Fingerprint.Width)
	assert.Equal(t, 0.5, cfg.WashTrading.MinVolumeETH)
	assert.Equal(t, 30*time.Minute, cfg.WashTrading.Detector().RapidWindow)
	assert.Equal(t, 0.8, cfg.Clustering.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Clustering.MinClusterSize)
	assert.Len(t, cfg.Provenance.Blacklist, 1)
	assert.Equal(t, 500, cfg.Provenance.CacheCapacity)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "general:\n  log_level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "chainscope-1", cfg.General.InstanceID)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, 64, cfg.Fingerprint.Width)
	assert.Equal(t, 0.3, cfg.Similarity.Fingerprint)
	assert.Equal(t, 0.1, cfg.Temporal.FibTolerance)
	assert.Equal(t, 10, cfg.MintAnomalies.MinMintsForAnalysis)
	assert.Equal(t, 0.7, cfg.MintAnomalies.GiniThreshold)
	assert.Equal(t, time.Hour, cfg.Provenance.Verifier().WashWindow)
	assert.Equal(t, 1000, cfg.Provenance.CacheCapacity)
	assert.Equal(t, 0.9, cfg.Security.MaliciousSimilarity)

	analyzer := cfg.Analyzer()
	assert.Equal(t, time.Hour, analyzer.Wash.RapidWindow)
	assert.Equal(t, 5, analyzer.NewWalletMaxTx)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("CHAINSCOPE_INSTANCE", "env-node")
	cfg, err := Load(writeConfig(t, "general:\n  instance_id: \"${CHAINSCOPE_INSTANCE}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-node", cfg.General.InstanceID)
}

func TestLoadConfigRejectsBadWidth(t *testing.T) {
	_, err := Load(writeConfig(t, "fingerprint:\n  width: 32\n"))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/chainscope.yaml")
	assert.Error(t, err)
}
