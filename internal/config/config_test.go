package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 0.4, cfg.Search.BM25Weight)
	assert.Equal(t, 0.6, cfg.Search.SemanticWeight)
	assert.Equal(t, 1.5, cfg.Search.FilenameMatchBoost)
	assert.Equal(t, 2.0, cfg.Search.ExactMatchBoost)
	assert.Equal(t, 10.0, cfg.Cloud.MonthlyCostLimit)
	assert.Equal(t, 500, cfg.Cloud.TimeoutMS)
	assert.Equal(t, 4096, cfg.Performance.MaxVRAMMB)
	assert.True(t, cfg.Performance.FastInferenceMode)
	assert.False(t, cfg.Privacy.PrivacyMode)
	assert.Contains(t, cfg.Privacy.SensitiveTags, "financial")
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.Equal(t, 30, cfg.Sessions.TimeoutMinutes)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg-empty"))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search.BM25Weight, cfg.Search.BM25Weight)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg-empty"))

	yamlContent := "search:\n  bm25_weight: 0.3\n  semantic_weight: 0.7\nserver:\n  log_level: warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".neuralfs.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Search.BM25Weight)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg-empty"))
	t.Setenv("NEURALFS_LOG_LEVEL", "error")

	yamlContent := "server:\n  log_level: warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".neuralfs.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Server.LogLevel)
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.BM25Weight = 0.9
	cfg.Search.SemanticWeight = 0.9
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestValidate_CloudEnabledRequiresEndpoint(t *testing.T) {
	cfg := NewConfig()
	cfg.Cloud.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cloud.endpoint")
}

func TestValidate_InvalidTransport(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.Transport = "grpc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}

func TestGetUserConfigPath_XDG(t *testing.T) {
	customConfig := "/tmp/custom-xdg"
	t.Setenv("XDG_CONFIG_HOME", customConfig)
	expected := filepath.Join(customConfig, "neuralfs", "config.yaml")
	assert.Equal(t, expected, GetUserConfigPath())
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := NewConfig()
	cfg.Server.LogLevel = "debug"
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug")
}
