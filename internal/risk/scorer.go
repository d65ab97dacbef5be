package risk

import (
	"log/slog"

	"github.com/opensource-health/harrier/internal/domain"
)

// Exclusion floor scores by statutory tier. An exclusion both seeds the
// base score and is re-asserted as a floor after every other adjustment.
const (
	floorFelony     = 90 // 1128a3
	floorMandatory  = 80 // 1128a1, 1128a2
	floorPermissive = 70 // 1128b1, 1128b2, 1128b4
	floorUnknown    = 75 // excluded, unrecognized type
)

// Anomaly contribution: grows with distance past the detection
// threshold, bounded so a single metric cannot dominate.
const (
	anomalyThreshold    = 2.5
	anomalyScaleFactor  = 10
	anomalyContribution = 30 // maximum
)

// Legal finding addends.
const (
	addConviction     = 20
	addPendingLawsuit = 15
	addSettledLawsuit = 10
	addOtherLawsuit   = 12
	addAllegation     = 10
	addPendingCase    = 15

	addPerExtraFinding = 5
	maxExtraFindings   = 10
)

// Data-quality multiplier applied to low-confidence profiles. Sparse
// data is treated as elevating, not excusing, risk.
const (
	lowQualityThreshold  = 0.70
	lowQualityMultiplier = 1.2
)

// Scorer computes the composite 0-100 risk score. Scoring is fully
// deterministic: same profile in, same score out.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the composite risk score for one subject. Evidence is
// the compiled trail for the same profile and anomaly set.
func (s *Scorer) Score(profile *domain.SubjectProfile, anomalies map[string]domain.Anomaly,
	evidence []domain.EvidenceItem, dataQuality float64) int {

	base := 0

	if profile.Exclusion.Excluded {
		base = exclusionFloor(profile.Exclusion.ExclusionType)
		slog.Warn("exclusion detected, applying floor score",
			"npi", profile.NPI,
			"exclusion_type", profile.Exclusion.ExclusionType,
			"floor", base,
		)
	} else {
		base += anomalyScore(anomalies)
		base += evidenceScore(evidence)
	}

	// Legal findings raise the score for every subject, excluded or not.
	base += legalScore(profile.LegalFindings)

	if dataQuality < lowQualityThreshold {
		base = int(float64(base) * lowQualityMultiplier)
		slog.Warn("low data quality, applying risk multiplier",
			"npi", profile.NPI,
			"data_quality", dataQuality,
		)
	}

	// Re-assert the exclusion floor: no adjustment may drop an excluded
	// subject below its statutory tier.
	if profile.Exclusion.Excluded {
		if floor := exclusionFloor(profile.Exclusion.ExclusionType); base < floor {
			base = floor
		}
	}

	if base > 100 {
		base = 100
	}
	return base
}

func exclusionFloor(exclusionType string) int {
	switch exclusionType {
	case "1128a3":
		return floorFelony
	case "1128a1", "1128a2":
		return floorMandatory
	case "1128b1", "1128b2", "1128b4":
		return floorPermissive
	default:
		return floorUnknown
	}
}

// anomalyScore takes the single strongest anomaly's contribution.
func anomalyScore(anomalies map[string]domain.Anomaly) int {
	best := 0.0
	for _, a := range anomalies {
		z := abs(a.ZScore)
		if z <= anomalyThreshold {
			continue
		}
		score := (z - anomalyThreshold) * anomalyScaleFactor
		if score > anomalyContribution {
			score = anomalyContribution
		}
		if score > best {
			best = score
		}
	}
	return int(best)
}

func evidenceScore(evidence []domain.EvidenceItem) int {
	score := 0
	for _, e := range evidence {
		switch e.Severity {
		case domain.SeverityHigh:
			score += 10
		case domain.SeverityMedium:
			score += 5
		}
	}
	return score
}

// legalScore adds the strongest finding's addend plus a bounded bonus
// for each additional finding.
func legalScore(findings []domain.LegalFinding) int {
	if len(findings) == 0 {
		return 0
	}

	best := 0
	for _, f := range findings {
		if add := legalAddend(f); add > best {
			best = add
		}
	}

	extra := (len(findings) - 1) * addPerExtraFinding
	if extra > maxExtraFindings {
		extra = maxExtraFindings
	}
	return best + extra
}

func legalAddend(f domain.LegalFinding) int {
	switch f.CaseType {
	case domain.CaseConviction:
		return addConviction
	case domain.CaseLawsuit:
		switch f.Status {
		case domain.StatusPending:
			return addPendingLawsuit
		case domain.StatusSettled:
			return addSettledLawsuit
		default:
			return addOtherLawsuit
		}
	case domain.CaseAllegation:
		return addAllegation
	case domain.CasePending:
		return addPendingCase
	}
	return 0
}
