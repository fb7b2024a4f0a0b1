// Package config loads geobeat configuration from YAML files and GEOBEAT_*
// environment variables on top of the tier defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// envPrefix is the environment variable prefix of every setting.
const envPrefix = "GEOBEAT"

// newViper maps nested keys like "engine.permutations" to GEOBEAT_ENGINE_PERMUTATIONS.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// Load reads the YAML file at configPath when set, merges GEOBEAT_* overrides
// and validates the result. An empty path loads from the environment only.
func Load(configPath string) (*domain.Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
		}
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from GEOBEAT_* variables and tier defaults.
func LoadFromEnv() (*domain.Config, error) {
	return Load("")
}

func unmarshalAndFinalize(v *viper.Viper) (*domain.Config, error) {
	base := domain.DefaultConfig()
	if strings.EqualFold(v.GetString("tier"), string(domain.TierPro)) {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, c *domain.Config) {
	defaults := map[string]any{
		"tier":         string(c.Tier),
		"scoring_mode": string(c.ScoringMode),

		"server.host":           c.Server.Host,
		"server.port":           c.Server.Port,
		"server.read_timeout":   c.Server.ReadTimeout,
		"server.write_timeout":  c.Server.WriteTimeout,
		"server.max_body_bytes": c.Server.MaxBodyBytes,

		"engine.distance_threshold_km":  c.Engine.DistanceThresholdKm,
		"engine.grid_resolution":        c.Engine.GridResolution,
		"engine.permutations":           c.Engine.Permutations,
		"engine.seed":                   c.Engine.Seed,
		"engine.attribute":              string(c.Engine.Attribute),
		"engine.density_neighbors":      c.Engine.DensityNeighbors,
		"engine.brute_force_limit":      c.Engine.BruteForceLimit,
		"engine.workers":                c.Engine.Workers,
		"engine.concentration_moderate": c.Engine.ConcentrationModerate,
		"engine.concentration_high":     c.Engine.ConcentrationHigh,

		"scoring.policy_file":    c.Scoring.PolicyFile,
		"scoring.default_policy": c.Scoring.DefaultPolicy,
		"scoring.cache_ttl":      c.Scoring.CacheTTL,

		"repository.driver":            c.Repository.Driver,
		"repository.sqlite_path":       c.Repository.SQLitePath,
		"repository.postgres_host":     c.Repository.PostgresHost,
		"repository.postgres_port":     c.Repository.PostgresPort,
		"repository.postgres_user":     c.Repository.PostgresUser,
		"repository.postgres_password": c.Repository.PostgresPassword,
		"repository.postgres_db":       c.Repository.PostgresDB,
		"repository.postgres_sslmode":  c.Repository.PostgresSSLMode,
		"repository.max_open_conns":    c.Repository.MaxOpenConns,
		"repository.max_idle_conns":    c.Repository.MaxIdleConns,
		"repository.conn_max_lifetime": c.Repository.ConnMaxLifetime,

		"cache.type":             c.Cache.Type,
		"cache.local_max_size":   c.Cache.LocalMaxSize,
		"cache.local_ttl":        c.Cache.LocalTTL,
		"cache.redis_addr":       c.Cache.RedisAddr,
		"cache.redis_password":   c.Cache.RedisPassword,
		"cache.redis_db":         c.Cache.RedisDB,
		"cache.enable_two_phase": c.Cache.EnableTwoPhase,

		"event_bus.type":                c.EventBus.Type,
		"event_bus.channel_buffer_size": c.EventBus.ChannelBufferSize,
		"event_bus.nats_url":            c.EventBus.NATSUrl,
		"event_bus.nats_token":          c.EventBus.NATSToken,
		"event_bus.nats_max_reconnects": c.EventBus.NATSMaxReconnects,
		"event_bus.nats_reconnect_wait": c.EventBus.NATSReconnectWait,

		"logging.level":  c.Logging.Level,
		"logging.format": c.Logging.Format,

		"tracing.enabled":      c.Tracing.Enabled,
		"tracing.service_name": c.Tracing.ServiceName,

		"metrics.enabled": c.Metrics.Enabled,
		"metrics.path":    c.Metrics.Path,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate rejects configurations the server cannot start with.
func Validate(c *domain.Config) error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch c.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return &domain.ConfigurationError{Field: "tier", Value: c.Tier, Reason: "must be community or pro"}
	}
	switch c.ScoringMode {
	case domain.ModeSync, domain.ModeAsync:
	default:
		return &domain.ConfigurationError{Field: "scoring_mode", Value: c.ScoringMode, Reason: "must be sync or async"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigurationError{Field: "server.port", Value: c.Server.Port, Reason: "must be in [1, 65535]"}
	}
	switch c.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return &domain.ConfigurationError{Field: "repository.driver", Value: c.Repository.Driver, Reason: "must be sqlite or postgres"}
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return &domain.ConfigurationError{Field: "cache.type", Value: c.Cache.Type, Reason: "must be memory or redis"}
	}
	switch c.EventBus.Type {
	case "channel", "nats":
	default:
		return &domain.ConfigurationError{Field: "event_bus.type", Value: c.EventBus.Type, Reason: "must be channel or nats"}
	}
	if c.Scoring.CacheTTL < 0 {
		return &domain.ConfigurationError{Field: "scoring.cache_ttl", Value: c.Scoring.CacheTTL, Reason: "must be >= 0"}
	}
	return nil
}
