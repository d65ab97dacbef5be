// Package anomaly flags utilization metrics that deviate from peer
// baselines using z-scores.
package anomaly

import (
	"math"

	"github.com/opensource-health/harrier/internal/domain"
)

// ZThreshold is the absolute z-score above which a metric is anomalous.
const ZThreshold = 2.5

// Metric keys used in anomaly maps, evidence text and scoring.
const (
	MetricTotalServices          = "total_services"
	MetricUniqueBeneficiaries    = "unique_beneficiaries"
	MetricServicesPerBeneficiary = "services_per_beneficiary"
	MetricTotalCharges           = "total_charges"
	MetricChargeToPaymentRatio   = "charge_to_payment_ratio"
)

// DefaultBaseline is the static peer baseline used when no empirical
// cohort statistics are available.
func DefaultBaseline() domain.UtilizationStats {
	return domain.UtilizationStats{
		Samples: 0,
		Metrics: map[string]domain.MetricStat{
			MetricTotalServices:          {Mean: 1000, Std: 200},
			MetricUniqueBeneficiaries:    {Mean: 300, Std: 50},
			MetricServicesPerBeneficiary: {Mean: 3.3, Std: 1.0},
			MetricTotalCharges:           {Mean: 500000, Std: 100000},
			MetricChargeToPaymentRatio:   {Mean: 1.2, Std: 0.3},
		},
	}
}

// Detector computes per-metric z-scores against a baseline.
type Detector struct {
	threshold float64
}

// NewDetector creates a detector with the standard threshold.
func NewDetector() *Detector {
	return &Detector{threshold: ZThreshold}
}

// Detect returns the anomalous metrics for one subject. Metrics whose
// observed value is zero are skipped: a zero usually means the source
// had no data for that field, not a real observation.
func (d *Detector) Detect(metrics domain.UtilizationMetrics, baseline domain.UtilizationStats) map[string]domain.Anomaly {
	observed := map[string]float64{
		MetricTotalServices:          float64(metrics.TotalServices),
		MetricUniqueBeneficiaries:    float64(metrics.UniqueBeneficiaries),
		MetricServicesPerBeneficiary: metrics.ServicesPerBeneficiary(),
		MetricTotalCharges:           metrics.TotalCharges,
		MetricChargeToPaymentRatio:   metrics.ChargeToPaymentRatio(),
	}

	anomalies := make(map[string]domain.Anomaly)
	for key, value := range observed {
		if value == 0 {
			continue
		}
		stat, ok := baseline.Metrics[key]
		if !ok || stat.Std == 0 {
			continue
		}

		z := (value - stat.Mean) / stat.Std
		if math.Abs(z) <= d.threshold {
			continue
		}

		direction := "high"
		if z < 0 {
			direction = "low"
		}
		anomalies[key] = domain.Anomaly{
			Value:     value,
			Mean:      stat.Mean,
			Std:       stat.Std,
			ZScore:    z,
			Direction: direction,
		}
	}
	return anomalies
}
