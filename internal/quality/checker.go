// Package quality validates generated investigation reports before they
// are released.
package quality

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-health/harrier/internal/domain"
)

// MinQualityScore is the gate a report must clear to be released.
const MinQualityScore = 0.8

// Section score weights.
const (
	weightCompleteness = 0.4
	weightEvidence     = 0.3
	weightCompliance   = 0.2
	weightStandards    = 0.1
)

// Validation holds the per-dimension outcome of a quality check.
type Validation struct {
	Complete        bool     `json:"complete"`
	MissingSections []string `json:"missingSections,omitempty"`
	EvidenceValid   bool     `json:"evidenceValid"`
	EvidenceIssues  []string `json:"evidenceIssues,omitempty"`
	Compliant       bool     `json:"compliant"`
	MeetsStandards  bool     `json:"meetsStandards"`
	StandardsIssues []string `json:"standardsIssues,omitempty"`
	QualityScore    float64  `json:"qualityScore"`
	Valid           bool     `json:"valid"`
}

// Recommendation phrasings considered too vague to act on.
var vagueWords = []string{"consider", "maybe", "possibly", "perhaps"}

// Checker validates report quality.
type Checker struct {
	minScore float64
}

// NewChecker creates a checker with the standard gate.
func NewChecker() *Checker {
	return &Checker{minScore: MinQualityScore}
}

// Validate scores a report across completeness, evidence accuracy,
// regulatory compliance and professional standards.
func (c *Checker) Validate(report *domain.InvestigationReport) *Validation {
	v := &Validation{}

	c.checkCompleteness(report, v)
	c.checkEvidence(report, v)
	c.checkCompliance(report, v)
	c.checkStandards(report, v)

	v.QualityScore = c.score(v)
	v.Valid = v.QualityScore >= c.minScore

	if !v.Valid {
		slog.Warn("report failed quality gate",
			"npi", report.NPI,
			"quality_score", v.QualityScore,
			"missing_sections", v.MissingSections,
		)
	}
	return v
}

func (c *Checker) checkCompleteness(report *domain.InvestigationReport, v *Validation) {
	if len(strings.TrimSpace(report.ExecutiveSummary)) < 50 {
		v.MissingSections = append(v.MissingSections, "executive_summary")
	}
	if len(report.Evidence) == 0 {
		v.MissingSections = append(v.MissingSections, "evidence_summary")
	}
	if len(report.Recommendations) == 0 {
		v.MissingSections = append(v.MissingSections, "recommendations")
	}
	if len(report.RegulatoryCitations) == 0 {
		v.MissingSections = append(v.MissingSections, "regulatory_citations")
	}
	v.Complete = len(v.MissingSections) == 0
}

func (c *Checker) checkEvidence(report *domain.InvestigationReport, v *Validation) {
	v.EvidenceValid = true
	for i, e := range report.Evidence {
		if len(strings.TrimSpace(e.Description)) < 10 {
			v.EvidenceValid = false
			v.EvidenceIssues = append(v.EvidenceIssues, fmt.Sprintf("evidence %d: description too short or missing", i+1))
		}
		if e.Source == "" {
			v.EvidenceValid = false
			v.EvidenceIssues = append(v.EvidenceIssues, fmt.Sprintf("evidence %d: missing data source", i+1))
		}
		if e.Significance < 0 || e.Significance > 1 {
			v.EvidenceValid = false
			v.EvidenceIssues = append(v.EvidenceIssues, fmt.Sprintf("evidence %d: invalid statistical significance", i+1))
		}
	}
}

func (c *Checker) checkCompliance(report *domain.InvestigationReport, v *Validation) {
	if len(report.RegulatoryCitations) == 0 {
		return
	}
	joined := strings.ToLower(strings.Join(report.RegulatoryCitations, " "))
	v.Compliant = strings.Contains(joined, "cfr")
}

func (c *Checker) checkStandards(report *domain.InvestigationReport, v *Validation) {
	v.MeetsStandards = true

	if len(report.ExecutiveSummary) < 100 {
		v.MeetsStandards = false
		v.StandardsIssues = append(v.StandardsIssues, "executive summary too brief")
	}
	for _, rec := range report.Recommendations {
		lower := strings.ToLower(rec)
		for _, vague := range vagueWords {
			if strings.Contains(lower, vague) {
				v.MeetsStandards = false
				v.StandardsIssues = append(v.StandardsIssues, "recommendations may be too vague")
			}
		}
	}
	if report.RiskScore < 0 || report.RiskScore > 100 {
		v.MeetsStandards = false
		v.StandardsIssues = append(v.StandardsIssues, "invalid risk score")
	}
}

// score combines the dimension outcomes into the gate score. Failed
// dimensions earn partial credit, not zero; a report has to miss on
// several axes to fall below the gate.
func (c *Checker) score(v *Validation) float64 {
	completeness := 0.5
	if v.Complete {
		completeness = 1.0
	}
	evidence := 0.7
	if v.EvidenceValid {
		evidence = 1.0
	}
	compliance := 0.5
	if v.Compliant {
		compliance = 1.0
	}
	standards := 0.7
	if v.MeetsStandards {
		standards = 1.0
	}

	return completeness*weightCompleteness +
		evidence*weightEvidence +
		compliance*weightCompliance +
		standards*weightStandards
}
