package report

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

func fixedBuilder() *Builder {
	b := NewBuilder()
	b.SetClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	return b
}

func sampleAnalysis(score int, evidence []domain.EvidenceItem) *domain.RiskAnalysisResult {
	return &domain.RiskAnalysisResult{
		NPI:         "1234567890",
		Score:       score,
		Priority:    domain.PriorityForScore(score),
		DataQuality: 1.0,
		Evidence:    evidence,
	}
}

func sampleProfile() *domain.SubjectProfile {
	return &domain.SubjectProfile{
		NPI:  "1234567890",
		Name: domain.SubjectName{First: "Jane", Last: "Smith"},
	}
}

func TestBuildHighRiskReport(t *testing.T) {
	evidence := []domain.EvidenceItem{
		{Type: "oig_exclusion", Description: "excluded provider", Severity: domain.SeverityHigh, Citation: "42 CFR §1001.101"},
		{Type: "billing_anomaly_total_services", Description: "anomaly", Severity: domain.SeverityMedium, Citation: "42 CFR §424.516"},
	}
	rep := fixedBuilder().Build(sampleProfile(), sampleAnalysis(90, evidence))

	if rep.Priority != domain.PriorityHigh {
		t.Errorf("expected high priority, got %s", rep.Priority)
	}
	if !strings.Contains(rep.ExecutiveSummary, "Jane Smith") || !strings.Contains(rep.ExecutiveSummary, "1234567890") {
		t.Error("summary must identify the subject")
	}
	if !strings.Contains(rep.ExecutiveSummary, "risk score of 90") {
		t.Errorf("summary must state the score: %s", rep.ExecutiveSummary)
	}

	joined := strings.Join(rep.Recommendations, "|")
	if !strings.Contains(joined, "immediate investigation") {
		t.Errorf("high score must drive immediate-investigation recommendation: %v", rep.Recommendations)
	}
	if !strings.Contains(joined, "Verify exclusion status") {
		t.Errorf("exclusion evidence must drive compliance recommendation: %v", rep.Recommendations)
	}
	if !strings.Contains(joined, "billing documentation") {
		t.Errorf("anomaly evidence must drive documentation recommendation: %v", rep.Recommendations)
	}

	if rep.ReportVersion != Version {
		t.Errorf("expected version %s, got %s", Version, rep.ReportVersion)
	}
	if !rep.GeneratedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected timestamp: %v", rep.GeneratedAt)
	}
}

func TestBuildLowRiskReport(t *testing.T) {
	rep := fixedBuilder().Build(sampleProfile(), sampleAnalysis(10, nil))

	joined := strings.Join(rep.Recommendations, "|")
	if !strings.Contains(joined, "Continue routine monitoring") {
		t.Errorf("low score must drive monitoring recommendation: %v", rep.Recommendations)
	}
	if strings.Contains(joined, "immediate investigation") {
		t.Errorf("low score must not drive escalation: %v", rep.Recommendations)
	}
}

func TestMediumBandRecommendations(t *testing.T) {
	rep := fixedBuilder().Build(sampleProfile(), sampleAnalysis(45, nil))

	joined := strings.Join(rep.Recommendations, "|")
	if !strings.Contains(joined, "routine review within 30 days") {
		t.Errorf("medium score must drive scheduled review: %v", rep.Recommendations)
	}
}

func TestCitationsUniqueAndSorted(t *testing.T) {
	evidence := []domain.EvidenceItem{
		{Citation: "42 CFR §1001.101", Severity: domain.SeverityHigh, Description: "a"},
		{Citation: "42 CFR §1001.101", Severity: domain.SeverityHigh, Description: "b"},
		{Citation: "Public court records", Severity: domain.SeverityMedium, Description: "c"},
	}
	rep := fixedBuilder().Build(sampleProfile(), sampleAnalysis(50, evidence))

	seen := make(map[string]int)
	for _, c := range rep.RegulatoryCitations {
		seen[c]++
		if seen[c] > 1 {
			t.Errorf("duplicate citation: %s", c)
		}
	}
	for i := 1; i < len(rep.RegulatoryCitations); i++ {
		if rep.RegulatoryCitations[i-1] > rep.RegulatoryCitations[i] {
			t.Error("citations must be sorted")
		}
	}

	joined := strings.Join(rep.RegulatoryCitations, "|")
	if !strings.Contains(joined, "424.516") || !strings.Contains(joined, "1001.101") {
		t.Errorf("standard citations must always be present: %v", rep.RegulatoryCitations)
	}
}

func TestBuildDeterministic(t *testing.T) {
	evidence := []domain.EvidenceItem{
		{Type: "legal_conviction", Description: "case", Severity: domain.SeverityHigh, Citation: "Public court records"},
	}
	b := fixedBuilder()

	first := b.Build(sampleProfile(), sampleAnalysis(75, evidence))
	second := b.Build(sampleProfile(), sampleAnalysis(75, evidence))

	if first.ExecutiveSummary != second.ExecutiveSummary {
		t.Error("summary must be deterministic")
	}
	if strings.Join(first.Recommendations, "|") != strings.Join(second.Recommendations, "|") {
		t.Error("recommendations must be deterministic")
	}
	if strings.Join(first.RegulatoryCitations, "|") != strings.Join(second.RegulatoryCitations, "|") {
		t.Error("citations must be deterministic")
	}
}
