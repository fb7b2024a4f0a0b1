// Package domain defines the core interfaces and types for geobeat.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Networks play the isolation role: every query is scoped to one network.
type Repository interface {
	// Snapshot operations
	SaveSnapshot(ctx context.Context, snapshot *NetworkSnapshot) (string, error)
	GetSnapshot(ctx context.Context, network string, fingerprint string) (*NetworkSnapshot, error)

	// Score operations
	SaveScore(ctx context.Context, score *CompositeScore) error
	GetScore(ctx context.Context, scoreID string) (*CompositeScore, error)
	ListScores(ctx context.Context, network string, policyID string, since time.Time, limit int) ([]*ScoreSummary, error)

	// Scoring policy operations
	SavePolicy(ctx context.Context, policy *ScoringPolicy) error
	GetPolicy(ctx context.Context, policyID string, version string) (*ScoringPolicy, error)
	ListPolicies(ctx context.Context) ([]*ScoringPolicy, error)
	DeletePolicy(ctx context.Context, policyID string, version string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" mapstructure:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" mapstructure:"postgres_port"`
	PostgresUser     string `json:"postgresUser" mapstructure:"postgres_user"`
	PostgresPassword string `json:"-" mapstructure:"postgres_password"`
	PostgresDB       string `json:"postgresDb" mapstructure:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"conn_max_lifetime"`
}
