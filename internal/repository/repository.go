// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnalysis stores one completed risk analysis.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, result *domain.RiskAnalysisResult) error {
	if result.ID == "" {
		return fmt.Errorf("%w: analysis ID is required", ErrInvalidInput)
	}
	if result.NPI == "" {
		return fmt.Errorf("%w: NPI is required", ErrInvalidInput)
	}

	anomalies, _ := json.Marshal(result.Anomalies)
	evidence, _ := json.Marshal(result.Evidence)
	temporal, _ := json.Marshal(result.Temporal)
	geographic, _ := json.Marshal(result.Geographic)

	query := `
		INSERT INTO investigations (
			id, npi, score, priority, data_quality,
			anomalies, evidence, temporal_patterns, geographic_patterns,
			analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, result.NPI, result.Score, result.Priority, result.DataQuality,
		string(anomalies), string(evidence), string(temporal), string(geographic),
		result.AnalyzedAt,
	)
	return err
}

// GetAnalysis retrieves a risk analysis by ID.
func (r *SQLRepository) GetAnalysis(ctx context.Context, id string) (*domain.RiskAnalysisResult, error) {
	query := `
		SELECT id, npi, score, priority, data_quality,
			   anomalies, evidence, temporal_patterns, geographic_patterns,
			   analyzed_at
		FROM investigations
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), id)
	result, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return result, err
}

// ListAnalysesBySubject returns all analyses for an NPI, newest first.
func (r *SQLRepository) ListAnalysesBySubject(ctx context.Context, npi string) ([]*domain.RiskAnalysisResult, error) {
	query := `
		SELECT id, npi, score, priority, data_quality,
			   anomalies, evidence, temporal_patterns, geographic_patterns,
			   analyzed_at
		FROM investigations
		WHERE npi = ?
		ORDER BY analyzed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), npi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.RiskAnalysisResult
	for rows.Next() {
		result, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.RiskAnalysisResult, error) {
	var (
		result     domain.RiskAnalysisResult
		anomalies  string
		evidence   string
		temporal   string
		geographic string
	)
	err := row.Scan(
		&result.ID, &result.NPI, &result.Score, &result.Priority, &result.DataQuality,
		&anomalies, &evidence, &temporal, &geographic,
		&result.AnalyzedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(anomalies), &result.Anomalies); err != nil {
		return nil, fmt.Errorf("corrupt anomalies payload: %w", err)
	}
	if err := json.Unmarshal([]byte(evidence), &result.Evidence); err != nil {
		return nil, fmt.Errorf("corrupt evidence payload: %w", err)
	}
	if temporal != "" {
		if err := json.Unmarshal([]byte(temporal), &result.Temporal); err != nil {
			return nil, fmt.Errorf("corrupt temporal payload: %w", err)
		}
	}
	if geographic != "" {
		if err := json.Unmarshal([]byte(geographic), &result.Geographic); err != nil {
			return nil, fmt.Errorf("corrupt geographic payload: %w", err)
		}
	}
	return &result, nil
}

// SaveUtilizationSnapshot upserts the latest utilization metrics for an
// NPI. Snapshots feed the empirical peer baseline.
func (r *SQLRepository) SaveUtilizationSnapshot(ctx context.Context, npi string, metrics *domain.UtilizationMetrics) error {
	if npi == "" {
		return fmt.Errorf("%w: NPI is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO utilization_snapshots (
			npi, total_services, unique_beneficiaries,
			total_charges, total_payments, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(npi) DO UPDATE SET
			total_services = excluded.total_services,
			unique_beneficiaries = excluded.unique_beneficiaries,
			total_charges = excluded.total_charges,
			total_payments = excluded.total_payments,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		npi, metrics.TotalServices, metrics.UniqueBeneficiaries,
		metrics.TotalCharges, metrics.TotalPayments, time.Now().UTC(),
	)
	return err
}

// UtilizationStats computes mean and standard deviation per metric over
// all stored snapshots, including the derived ratios.
func (r *SQLRepository) UtilizationStats(ctx context.Context) (*domain.UtilizationStats, error) {
	query := `
		SELECT total_services, unique_beneficiaries, total_charges, total_payments
		FROM utilization_snapshots
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	acc := make(map[string]*statAccumulator)
	samples := 0
	for rows.Next() {
		var m domain.UtilizationMetrics
		if err := rows.Scan(&m.TotalServices, &m.UniqueBeneficiaries, &m.TotalCharges, &m.TotalPayments); err != nil {
			return nil, err
		}
		samples++

		accumulate(acc, "total_services", float64(m.TotalServices))
		accumulate(acc, "unique_beneficiaries", float64(m.UniqueBeneficiaries))
		accumulate(acc, "total_charges", m.TotalCharges)
		accumulate(acc, "services_per_beneficiary", m.ServicesPerBeneficiary())
		accumulate(acc, "charge_to_payment_ratio", m.ChargeToPaymentRatio())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := &domain.UtilizationStats{
		Samples: samples,
		Metrics: make(map[string]domain.MetricStat, len(acc)),
	}
	for name, a := range acc {
		stats.Metrics[name] = a.stat()
	}
	return stats, nil
}

type statAccumulator struct {
	n     int
	sum   float64
	sumSq float64
}

func accumulate(acc map[string]*statAccumulator, name string, value float64) {
	a, ok := acc[name]
	if !ok {
		a = &statAccumulator{}
		acc[name] = a
	}
	a.n++
	a.sum += value
	a.sumSq += value * value
}

func (a *statAccumulator) stat() domain.MetricStat {
	if a.n == 0 {
		return domain.MetricStat{}
	}
	mean := a.sum / float64(a.n)
	variance := a.sumSq/float64(a.n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return domain.MetricStat{Mean: mean, Std: math.Sqrt(variance)}
}

// SaveFinancialEntry upserts the financial figures for one NPI and year.
func (r *SQLRepository) SaveFinancialEntry(ctx context.Context, entry *domain.FinancialEntry) error {
	if entry.NPI == "" {
		return fmt.Errorf("%w: NPI is required", ErrInvalidInput)
	}
	if entry.InvestigationYear == 0 {
		return fmt.Errorf("%w: investigation year is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO financial_entries (
			npi, estimated_fraud, settlement, restitution,
			notes, investigation_year, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(npi, investigation_year) DO UPDATE SET
			estimated_fraud = excluded.estimated_fraud,
			settlement = excluded.settlement,
			restitution = excluded.restitution,
			notes = excluded.notes
	`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.NPI, entry.EstimatedFraud, entry.Settlement, entry.Restitution,
		entry.Notes, entry.InvestigationYear, createdAt,
	)
	return err
}

// ListFinancialEntries returns all financial entries for an NPI, newest
// investigation year first.
func (r *SQLRepository) ListFinancialEntries(ctx context.Context, npi string) ([]*domain.FinancialEntry, error) {
	query := `
		SELECT npi, estimated_fraud, settlement, restitution,
			   notes, investigation_year, created_at
		FROM financial_entries
		WHERE npi = ?
		ORDER BY investigation_year DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), npi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.FinancialEntry
	for rows.Next() {
		var e domain.FinancialEntry
		var notes sql.NullString
		if err := rows.Scan(&e.NPI, &e.EstimatedFraud, &e.Settlement, &e.Restitution,
			&notes, &e.InvestigationYear, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Notes = notes.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// AnnualFinancialTotal sums estimated fraud, settlements and restitution
// recorded for one investigation year.
func (r *SQLRepository) AnnualFinancialTotal(ctx context.Context, year int) (float64, error) {
	query := `
		SELECT COALESCE(SUM(estimated_fraud + settlement + restitution), 0)
		FROM financial_entries
		WHERE investigation_year = ?
	`

	var total float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), year).Scan(&total)
	return total, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
