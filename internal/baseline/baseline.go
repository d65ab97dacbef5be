// Package baseline supplies peer utilization statistics for anomaly
// detection: empirical when enough snapshots exist, static otherwise.
package baseline

import (
	"context"
	"log/slog"

	"github.com/opensource-health/harrier/internal/anomaly"
	"github.com/opensource-health/harrier/internal/domain"
)

// MinSamples is the cohort size below which empirical statistics are
// too noisy to use.
const MinSamples = 30

// StatsSource is the slice of the repository the provider needs.
type StatsSource interface {
	UtilizationStats(ctx context.Context) (*domain.UtilizationStats, error)
}

// Provider resolves the peer baseline for a subject.
type Provider struct {
	source     StatsSource
	minSamples int
}

// NewProvider creates a baseline provider. A nil source always yields
// the static baseline.
func NewProvider(source StatsSource) *Provider {
	return &Provider{source: source, minSamples: MinSamples}
}

// Baseline returns the peer statistics to score against. Falls back to
// the static table when the repository is empty, thin or unavailable;
// baseline resolution never fails an investigation.
func (p *Provider) Baseline(ctx context.Context) domain.UtilizationStats {
	if p.source == nil {
		return anomaly.DefaultBaseline()
	}

	stats, err := p.source.UtilizationStats(ctx)
	if err != nil {
		slog.Warn("baseline query failed, using static baseline", "error", err)
		return anomaly.DefaultBaseline()
	}
	if stats == nil || stats.Samples < p.minSamples || len(stats.Metrics) == 0 {
		return anomaly.DefaultBaseline()
	}

	// Fill gaps from the static table so every scored metric has stats.
	merged := domain.UtilizationStats{
		Samples: stats.Samples,
		Metrics: make(map[string]domain.MetricStat, len(stats.Metrics)),
	}
	for k, v := range anomaly.DefaultBaseline().Metrics {
		merged.Metrics[k] = v
	}
	for k, v := range stats.Metrics {
		if v.Std > 0 {
			merged.Metrics[k] = v
		}
	}
	return merged
}
