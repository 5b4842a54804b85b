// Package domain defines the core interfaces and types for Tamweel.
package domain

import (
	"context"
	"time"
)

// Repository persists operator-authored screening rules.
// Assessments themselves are never stored.
type Repository interface {
	SaveRule(ctx context.Context, rule *RuleConfig) error
	GetRule(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRules(ctx context.Context) ([]*RuleConfig, error)
	DeleteRule(ctx context.Context, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
