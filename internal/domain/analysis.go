package domain

import (
	"time"
)

// Evidence severity levels.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Priority levels derived from the risk score.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// PriorityForScore maps a risk score to its priority tag.
// Thresholds: low < 30 <= medium < 70 <= high.
func PriorityForScore(score int) string {
	switch {
	case score < 30:
		return PriorityLow
	case score < 70:
		return PriorityMedium
	default:
		return PriorityHigh
	}
}

// EvidenceItem is one typed entry in the evidence trail. Items keep
// insertion order; downstream consumers must not re-sort them.
type EvidenceItem struct {
	Type         string  `json:"type"`
	Description  string  `json:"description"`
	Significance float64 `json:"significance"` // statistical significance in [0,1]
	Source       string  `json:"source"`
	Citation     string  `json:"citation,omitempty"`
	Severity     string  `json:"severity"`
	URL          string  `json:"url,omitempty"`
}

// Anomaly describes one utilization metric flagged against the peer baseline.
type Anomaly struct {
	Value     float64 `json:"value"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	ZScore    float64 `json:"zScore"`
	Direction string  `json:"direction"` // "high" or "low" relative to the baseline mean
}

// TemporalPatterns holds temporal billing-pattern flags.
type TemporalPatterns struct {
	EndOfMonthClustering bool     `json:"endOfMonthClustering"`
	VolumeSpikes         bool     `json:"volumeSpikes"`
	Anomalies            []string `json:"anomalies,omitempty"`
}

// GeographicPatterns holds geographic analysis results.
type GeographicPatterns struct {
	ServiceArea string   `json:"serviceArea"`
	Anomalies   []string `json:"anomalies,omitempty"`
}

// RiskAnalysisResult is the core output of an investigation: a bounded
// integer score with its full supporting evidence.
type RiskAnalysisResult struct {
	ID          string             `json:"id"`
	NPI         string             `json:"npi"`
	Score       int                `json:"score"`    // 0-100
	Priority    string             `json:"priority"` // derived from score
	DataQuality float64            `json:"dataQuality"`
	Anomalies   map[string]Anomaly `json:"anomalies"`
	Evidence    []EvidenceItem     `json:"evidence"`
	Temporal    TemporalPatterns   `json:"temporal"`
	Geographic  GeographicPatterns `json:"geographic"`
	AnalyzedAt  time.Time          `json:"analyzedAt"`
}

// InvestigationReport is the deterministic report structure handed to the
// external narrative-generation and rendering collaborators.
type InvestigationReport struct {
	NPI                 string         `json:"npi"`
	SubjectName         string         `json:"subjectName"`
	RiskScore           int            `json:"riskScore"`
	Priority            string         `json:"priority"`
	ExecutiveSummary    string         `json:"executiveSummary"`
	Evidence            []EvidenceItem `json:"evidence"`
	Recommendations     []string       `json:"recommendations"`
	RegulatoryCitations []string       `json:"regulatoryCitations"`
	GeneratedAt         time.Time      `json:"generatedAt"`
	ReportVersion       string         `json:"reportVersion"`
}

// FinancialEntry is a manually entered fraud-impact record for one subject.
type FinancialEntry struct {
	NPI               string    `json:"npi"`
	EstimatedFraud    float64   `json:"estimatedFraud,omitempty"`
	Settlement        float64   `json:"settlement,omitempty"`
	Restitution       float64   `json:"restitution,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	InvestigationYear int       `json:"investigationYear"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TotalImpact sums all recorded amounts for the entry.
func (f FinancialEntry) TotalImpact() float64 {
	return f.EstimatedFraud + f.Settlement + f.Restitution
}
