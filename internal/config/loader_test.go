package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, domain.ModeSync, cfg.ScoringMode)
	assert.Equal(t, 500.0, cfg.Engine.DistanceThresholdKm)
	assert.Equal(t, 999, cfg.Engine.Permutations)
	assert.Equal(t, uint64(42), cfg.Engine.Seed)
	assert.Equal(t, domain.AttributeDensity, cfg.Engine.Attribute)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("GEOBEAT_ENGINE_PERMUTATIONS", "199")
	t.Setenv("GEOBEAT_ENGINE_SEED", "7")
	t.Setenv("GEOBEAT_SERVER_PORT", "9090")
	t.Setenv("GEOBEAT_SCORING_DEFAULT_POLICY", "gdi-v0-relative")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 199, cfg.Engine.Permutations)
	assert.Equal(t, uint64(7), cfg.Engine.Seed)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gdi-v0-relative", cfg.Scoring.DefaultPolicy)
}

func TestLoadFromEnv_ProTier(t *testing.T) {
	t.Setenv("GEOBEAT_TIER", "pro")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, domain.ModeAsync, cfg.ScoringMode)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "nats", cfg.EventBus.Type)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geobeat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  distance_threshold_km: 250
  grid_resolution: 4
scoring:
  policy_file: ./policies.yaml
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Engine.DistanceThresholdKm)
	assert.Equal(t, 4, cfg.Engine.GridResolution)
	assert.Equal(t, 999, cfg.Engine.Permutations, "unset keys keep defaults")
	assert.Equal(t, "./policies.yaml", cfg.Scoring.PolicyFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  grid_resolution: 16\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
