// Package risk turns a fused subject profile into an evidence trail and
// a bounded composite risk score.
package risk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-health/harrier/internal/domain"
)

// Evidence type tags.
const (
	EvidenceExclusion   = "oig_exclusion"
	EvidenceAnomaly     = "billing_anomaly" // suffixed with _<metric>
	EvidenceTemporal    = "temporal_clustering"
	EvidenceGeographic  = "geographic_anomaly"
	EvidenceLegalPrefix = "legal" // suffixed with _<case_type>
)

// Regulatory citations attached to evidence items.
const (
	CitationExclusion  = "42 CFR §1001.101"
	CitationEnrollment = "42 CFR §424.516"
)

// Services-per-beneficiary ratio above which billing looks clustered.
const clusteringRatioThreshold = 10

// DetectTemporalPatterns flags billing-rhythm signals derivable from
// aggregate utilization.
func DetectTemporalPatterns(profile *domain.SubjectProfile) domain.TemporalPatterns {
	var patterns domain.TemporalPatterns

	ratio := profile.Utilization.ServicesPerBeneficiary()
	if ratio > clusteringRatioThreshold {
		patterns.EndOfMonthClustering = true
		patterns.Anomalies = append(patterns.Anomalies, fmt.Sprintf(
			"High services per beneficiary (%.1f) may indicate end-of-month billing clustering", ratio))
	}
	return patterns
}

// DetectGeographicPatterns flags service-area signals.
func DetectGeographicPatterns(profile *domain.SubjectProfile) domain.GeographicPatterns {
	patterns := domain.GeographicPatterns{
		ServiceArea: profile.PracticeLocation.State,
	}
	if patterns.ServiceArea == "" {
		patterns.ServiceArea = "Unknown"
		patterns.Anomalies = append(patterns.Anomalies, "Missing practice location information")
	}
	return patterns
}

// CompileEvidence builds the evidence trail in its fixed order:
// exclusion, statistical anomalies, temporal patterns, geographic
// anomalies, legal findings. The order is part of the contract; items
// must not be re-sorted downstream.
func CompileEvidence(profile *domain.SubjectProfile, anomalies map[string]domain.Anomaly,
	temporal domain.TemporalPatterns, geographic domain.GeographicPatterns) []domain.EvidenceItem {

	var evidence []domain.EvidenceItem

	if profile.Exclusion.Excluded {
		evidence = append(evidence, exclusionEvidence(profile.Exclusion))
	}

	// Anomaly keys are sorted so the trail is deterministic.
	metrics := make([]string, 0, len(anomalies))
	for m := range anomalies {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	for _, metric := range metrics {
		evidence = append(evidence, anomalyEvidence(metric, anomalies[metric]))
	}

	if temporal.EndOfMonthClustering {
		evidence = append(evidence, domain.EvidenceItem{
			Type:         EvidenceTemporal,
			Description:  "Potential end-of-month billing clustering detected",
			Significance: 0.7,
			Source:       "CMS",
			Citation:     CitationEnrollment,
			Severity:     domain.SeverityMedium,
		})
	}

	for _, anomaly := range geographic.Anomalies {
		evidence = append(evidence, domain.EvidenceItem{
			Type:         EvidenceGeographic,
			Description:  anomaly,
			Significance: 0.5,
			Source:       "NPPES",
			Severity:     domain.SeverityLow,
		})
	}

	for _, finding := range profile.LegalFindings {
		evidence = append(evidence, legalEvidence(finding))
	}

	return evidence
}

func exclusionEvidence(excl domain.ExclusionRecord) domain.EvidenceItem {
	var severity, description string
	switch {
	case excl.ExclusionType == "1128a3":
		severity = domain.SeverityHigh
		description = "CRITICAL: Provider excluded due to felony conviction - " + excl.Description
	case excl.ExclusionType == "1128a1" || excl.ExclusionType == "1128a2":
		severity = domain.SeverityHigh
		description = "MANDATORY EXCLUSION: " + excl.Description
	case excl.ExclusionType == "1128b1" || excl.ExclusionType == "1128b2" || excl.ExclusionType == "1128b4":
		severity = domain.SeverityMedium
		description = "Permissive exclusion: " + excl.Description
	default:
		severity = domain.SeverityHigh
		description = "Provider excluded from Medicare/Medicaid: " + excl.Description
	}

	return domain.EvidenceItem{
		Type:         EvidenceExclusion,
		Description:  description,
		Significance: 1.0,
		Source:       "OIG",
		Citation:     CitationExclusion,
		Severity:     severity,
	}
}

func anomalyEvidence(metric string, a domain.Anomaly) domain.EvidenceItem {
	severity := domain.SeverityMedium
	if abs(a.ZScore) > 3.0 {
		severity = domain.SeverityHigh
	}

	significance := abs(a.ZScore) / 5.0
	if significance > 1.0 {
		significance = 1.0
	}

	return domain.EvidenceItem{
		Type: EvidenceAnomaly + "_" + metric,
		Description: fmt.Sprintf("%s is %s relative to the peer baseline (Z-score: %.2f, Value: %.1f)",
			titleize(metric), a.Direction, a.ZScore, a.Value),
		Significance: significance,
		Source:       "CMS",
		Citation:     CitationEnrollment,
		Severity:     severity,
	}
}

func legalEvidence(f domain.LegalFinding) domain.EvidenceItem {
	severity := domain.SeverityMedium
	if f.CaseType == domain.CaseConviction {
		severity = domain.SeverityHigh
	}

	citation := "Public records"
	if f.Verified {
		citation = "Public court records"
	}

	return domain.EvidenceItem{
		Type:         EvidenceLegalPrefix + "_" + f.CaseType,
		Description:  fmt.Sprintf("%s (%s): %s", titleize(f.CaseType), f.Status, f.Description),
		Significance: f.Relevance,
		Source:       "Web Search",
		Citation:     citation,
		Severity:     severity,
		URL:          f.SourceURL,
	}
}

func titleize(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
