package domain

import (
	"math"
	"runtime"
)

// Config holds the complete geobeat configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" mapstructure:"tier"`

	// ScoringMode determines how snapshots are scored
	// - "sync": POST /scores runs the pipeline in the request
	// - "async": snapshots are published to the bus and scored by the worker
	ScoringMode ScoringMode `json:"scoringMode" mapstructure:"scoring_mode"`

	// Engine parameters shared by every run
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Scoring policy sources
	Scoring ScoringConfig `json:"scoring" mapstructure:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" mapstructure:"repository"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" mapstructure:"event_bus"`

	// Observability
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// ScoringMode determines the scoring strategy of the server.
type ScoringMode string

const (
	// ModeSync scores snapshots inside the HTTP request.
	ModeSync ScoringMode = "sync"

	// ModeAsync hands snapshots to the worker through the event bus.
	ModeAsync ScoringMode = "async"
)

// AttributeMode selects the per-node attribute tested by Moran's I.
type AttributeMode string

const (
	// AttributeDensity uses local density 1/(1 + d_k), d_k the distance in km
	// to the k-th nearest other node.
	AttributeDensity AttributeMode = "density"

	// AttributeUniform assigns 1 to every node. Its variance is zero, so Moran's I
	// is undefined and the module reports a DegenerateInputError.
	AttributeUniform AttributeMode = "uniform"
)

// EngineConfig holds every numeric parameter of the statistical engine.
type EngineConfig struct {
	DistanceThresholdKm float64       `json:"distanceThresholdKm" yaml:"distanceThresholdKm" mapstructure:"distance_threshold_km"`
	GridResolution      int           `json:"gridResolution" yaml:"gridResolution" mapstructure:"grid_resolution"`
	Permutations        int           `json:"permutations" yaml:"permutations" mapstructure:"permutations"`
	Seed                uint64        `json:"seed" yaml:"seed" mapstructure:"seed"`
	Attribute           AttributeMode `json:"attribute" yaml:"attribute" mapstructure:"attribute"`
	DensityNeighbors    int           `json:"densityNeighbors" yaml:"densityNeighbors" mapstructure:"density_neighbors"`

	// BruteForceLimit is the largest input searched pairwise; larger inputs use a kd-tree.
	BruteForceLimit int `json:"bruteForceLimit" yaml:"bruteForceLimit" mapstructure:"brute_force_limit"`

	// Workers bounds permutation parallelism. It never changes results.
	Workers int `json:"-" yaml:"-" mapstructure:"workers"`

	// Spatial HHI interpretation thresholds.
	ConcentrationModerate float64 `json:"concentrationModerate" yaml:"concentrationModerate" mapstructure:"concentration_moderate"`
	ConcentrationHigh     float64 `json:"concentrationHigh" yaml:"concentrationHigh" mapstructure:"concentration_high"`
}

// DefaultEngineConfig returns the documented engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DistanceThresholdKm:   500,
		GridResolution:        5,
		Permutations:          999,
		Seed:                  42,
		Attribute:             AttributeDensity,
		DensityNeighbors:      5,
		BruteForceLimit:       2048,
		Workers:               runtime.GOMAXPROCS(0),
		ConcentrationModerate: 0.15,
		ConcentrationHigh:     0.25,
	}
}

// Validate rejects parameters no module can run with.
func (c *EngineConfig) Validate() error {
	if !(c.DistanceThresholdKm > 0) || math.IsInf(c.DistanceThresholdKm, 0) {
		return &ConfigurationError{Field: "engine.distanceThresholdKm", Value: c.DistanceThresholdKm, Reason: "must be > 0"}
	}
	if c.GridResolution < 0 || c.GridResolution > 15 {
		return &ConfigurationError{Field: "engine.gridResolution", Value: c.GridResolution, Reason: "must be in [0, 15]"}
	}
	if c.Permutations < 0 {
		return &ConfigurationError{Field: "engine.permutations", Value: c.Permutations, Reason: "must be >= 0"}
	}
	switch c.Attribute {
	case AttributeDensity, AttributeUniform:
	default:
		return &ConfigurationError{Field: "engine.attribute", Value: c.Attribute, Reason: "must be density or uniform"}
	}
	if c.DensityNeighbors < 1 {
		return &ConfigurationError{Field: "engine.densityNeighbors", Value: c.DensityNeighbors, Reason: "must be >= 1"}
	}
	if c.BruteForceLimit < 0 {
		return &ConfigurationError{Field: "engine.bruteForceLimit", Value: c.BruteForceLimit, Reason: "must be >= 0"}
	}
	if c.Workers < 0 {
		return &ConfigurationError{Field: "engine.workers", Value: c.Workers, Reason: "must be >= 0"}
	}
	if c.ConcentrationModerate < 0 || c.ConcentrationHigh <= c.ConcentrationModerate || c.ConcentrationHigh > 1 {
		return &ConfigurationError{Field: "engine.concentrationHigh", Value: c.ConcentrationHigh,
			Reason: "thresholds must satisfy 0 <= moderate < high <= 1"}
	}
	return nil
}

// ScoringConfig lists where scoring policies come from.
type ScoringConfig struct {
	// PolicyFile is an optional YAML file of additional policies.
	PolicyFile string `json:"policyFile" mapstructure:"policy_file"`

	// DefaultPolicy is used by requests that name no policy. Empty means
	// the policy must always be named.
	DefaultPolicy string `json:"defaultPolicy" mapstructure:"default_policy"`

	// CacheTTL is how long computed scores stay cached, in seconds.
	CacheTTL int `json:"cacheTtl" mapstructure:"cache_ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	ReadTimeout  int    `json:"readTimeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" mapstructure:"write_timeout"` // seconds
	MaxBodyBytes int64  `json:"maxBodyBytes" mapstructure:"max_body_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"serviceName" mapstructure:"service_name"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
			MaxBodyBytes: 64 << 20,
		},
		Tier:        TierCommunity,
		ScoringMode: ModeSync,
		Engine:      DefaultEngineConfig(),
		Scoring: ScoringConfig{
			CacheTTL: 3600,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./geobeat.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     300,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "geobeat",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.ScoringMode = ModeAsync
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "geobeat",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       300,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
