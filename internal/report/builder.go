// Package report assembles the deterministic investigation report
// handed to rendering and export collaborators.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
	"github.com/opensource-health/harrier/internal/risk"
)

// Version stamped on every generated report.
const Version = "1.0"

// Standard citations present on every report regardless of evidence.
var standardCitations = []string{
	"42 CFR §424.516 - Provider enrollment and screening",
	"42 CFR §1001.101 - OIG exclusion authorities",
}

// Builder produces investigation reports. Output is a pure function of
// its inputs; the clock only stamps GeneratedAt.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a report builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// SetClock replaces the builder's time source. Test use only.
func (b *Builder) SetClock(now func() time.Time) { b.now = now }

// Build assembles the report for one completed analysis.
func (b *Builder) Build(profile *domain.SubjectProfile, analysis *domain.RiskAnalysisResult) *domain.InvestigationReport {
	return &domain.InvestigationReport{
		NPI:                 profile.NPI,
		SubjectName:         profile.Name.Display(),
		RiskScore:           analysis.Score,
		Priority:            analysis.Priority,
		ExecutiveSummary:    b.executiveSummary(profile, analysis),
		Evidence:            analysis.Evidence,
		Recommendations:     recommendations(analysis.Score, analysis.Evidence),
		RegulatoryCitations: citations(analysis.Evidence),
		GeneratedAt:         b.now().UTC(),
		ReportVersion:       Version,
	}
}

func (b *Builder) executiveSummary(profile *domain.SubjectProfile, analysis *domain.RiskAnalysisResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "This investigation report analyzes the fraud risk profile of provider %s (NPI: %s). ",
		profile.Name.Display(), profile.NPI)
	fmt.Fprintf(&sb, "The analysis produced a composite risk score of %d out of 100, placing the subject in the %s priority band. ",
		analysis.Score, analysis.Priority)

	high := highSeverity(analysis.Evidence)
	if len(high) > 0 {
		fmt.Fprintf(&sb, "Key findings include %d high-severity indicators, including: %s. ",
			len(high), high[0].Description)
	}

	sb.WriteString("The provider's billing patterns, regulatory status, and utilization metrics have been evaluated " +
		"against peer baselines and regulatory standards. ")
	fmt.Fprintf(&sb, "Data quality for this analysis was %.2f; %d evidence items were compiled in support of the score.",
		analysis.DataQuality, len(analysis.Evidence))

	return sb.String()
}

func recommendations(score int, evidence []domain.EvidenceItem) []string {
	var recs []string

	switch {
	case score >= 70:
		recs = append(recs,
			"Prioritize for immediate investigation due to high risk score",
			"Review detailed billing records for the past 12 months",
			"Conduct provider interview to address identified anomalies",
		)
	case score >= 30:
		recs = append(recs,
			"Schedule routine review within 30 days",
			"Monitor billing patterns for next quarter",
			"Request clarification on identified anomalies",
		)
	default:
		recs = append(recs,
			"Continue routine monitoring",
			"No immediate action required",
		)
	}

	if high := highSeverity(evidence); len(high) > 0 {
		recs = append(recs, fmt.Sprintf("Address %d high-severity findings", len(high)))
	}
	for _, e := range evidence {
		if e.Type == risk.EvidenceExclusion {
			recs = append(recs, "Verify exclusion status and compliance requirements")
			break
		}
	}
	for _, e := range evidence {
		if strings.HasPrefix(e.Type, risk.EvidenceAnomaly) {
			recs = append(recs, "Request detailed billing documentation for anomaly review")
			break
		}
	}
	return recs
}

// citations collects the unique regulatory citations across the trail,
// plus the standard ones, sorted for stable output.
func citations(evidence []domain.EvidenceItem) []string {
	set := make(map[string]bool)
	for _, e := range evidence {
		if e.Citation != "" {
			set[e.Citation] = true
		}
	}
	for _, c := range standardCitations {
		set[c] = true
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func highSeverity(evidence []domain.EvidenceItem) []domain.EvidenceItem {
	var high []domain.EvidenceItem
	for _, e := range evidence {
		if e.Severity == domain.SeverityHigh {
			high = append(high, e)
		}
	}
	return high
}
