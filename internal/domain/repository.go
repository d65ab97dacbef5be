package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Investigation results
	SaveAnalysis(ctx context.Context, result *RiskAnalysisResult) error
	GetAnalysis(ctx context.Context, id string) (*RiskAnalysisResult, error)
	ListAnalysesBySubject(ctx context.Context, npi string) ([]*RiskAnalysisResult, error)

	// Utilization snapshots feeding peer-baseline statistics
	SaveUtilizationSnapshot(ctx context.Context, npi string, metrics *UtilizationMetrics) error
	UtilizationStats(ctx context.Context) (*UtilizationStats, error)

	// Manually entered financial figures
	SaveFinancialEntry(ctx context.Context, entry *FinancialEntry) error
	ListFinancialEntries(ctx context.Context, npi string) ([]*FinancialEntry, error)
	AnnualFinancialTotal(ctx context.Context, year int) (float64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// UtilizationStats holds aggregate peer statistics per metric, computed
// from stored utilization snapshots.
type UtilizationStats struct {
	Samples int                   `json:"samples"`
	Metrics map[string]MetricStat `json:"metrics"`
}

// MetricStat is the mean/standard-deviation pair for one metric.
type MetricStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
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
