// Package investigation runs the full pipeline for one subject: source
// fusion, legal classification, risk factors, anomaly detection, evidence
// compilation, scoring, reporting, and persistence.
package investigation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-health/harrier/internal/anomaly"
	"github.com/opensource-health/harrier/internal/baseline"
	"github.com/opensource-health/harrier/internal/domain"
	"github.com/opensource-health/harrier/internal/fusion"
	"github.com/opensource-health/harrier/internal/legal"
	"github.com/opensource-health/harrier/internal/quality"
	"github.com/opensource-health/harrier/internal/report"
	"github.com/opensource-health/harrier/internal/risk"
	"github.com/opensource-health/harrier/internal/rules"
)

// ErrNoSubjectData is returned when every source failed and the profile
// holds nothing beyond the NPI itself.
var ErrNoSubjectData = errors.New("no source returned data for subject")

// Collector abstracts the fusion aggregator so the pipeline can be
// driven by stub sources in tests.
type Collector interface {
	Collect(ctx context.Context, npi string) (*fusion.Result, error)
}

// Engine orchestrates one investigation end to end.
type Engine struct {
	collector  Collector
	rules      *rules.Engine
	baselines  *baseline.Provider
	detector   *anomaly.Detector
	classifier *legal.Classifier
	scorer     *risk.Scorer
	reporter   *report.Builder
	checker    *quality.Checker
	repo       domain.Repository
	now        func() time.Time
}

// NewEngine wires the pipeline. The repository may be nil; results are
// then returned but not persisted.
func NewEngine(collector Collector, ruleEngine *rules.Engine, baselines *baseline.Provider, repo domain.Repository) *Engine {
	return &Engine{
		collector:  collector,
		rules:      ruleEngine,
		baselines:  baselines,
		detector:   anomaly.NewDetector(),
		classifier: legal.NewClassifier(),
		scorer:     risk.NewScorer(),
		reporter:   report.NewBuilder(),
		checker:    quality.NewChecker(),
		repo:       repo,
		now:        time.Now,
	}
}

// SetClock replaces the engine's time source. Test use only.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.classifier.SetClock(now)
	e.reporter.SetClock(now)
}

// Outcome is the full result of one investigation.
type Outcome struct {
	Profile  *domain.SubjectProfile      `json:"profile"`
	Analysis *domain.RiskAnalysisResult  `json:"analysis"`
	Report   *domain.InvestigationReport `json:"report"`
	Quality  *quality.Validation         `json:"quality"`
}

// Run executes the pipeline for one NPI. A malformed NPI is the only
// input error; source failures degrade data quality instead of failing,
// except when every source is down and there is nothing to analyze.
func (e *Engine) Run(ctx context.Context, npi string) (*Outcome, error) {
	start := e.now()

	collected, err := e.collector.Collect(ctx, npi)
	if err != nil {
		return nil, err
	}

	profile := collected.Profile
	if allSourcesFailed(profile) {
		return nil, ErrNoSubjectData
	}

	// Legal classification before rule evaluation: the rule activation
	// exposes the finding count.
	subject := legal.Subject{
		Name:      profile.Name.Display(),
		NPI:       profile.NPI,
		Specialty: profile.Specialty,
		City:      profile.PracticeLocation.City,
		State:     profile.PracticeLocation.State,
	}
	profile.LegalFindings = e.classifier.Classify(collected.RawHits, subject)

	if e.rules != nil {
		profile.RiskFactors = e.rules.Evaluate(ctx, profile, len(collected.MissingSources()))
	}

	base := e.baselines.Baseline(ctx)
	anomalies := e.detector.Detect(profile.Utilization, base)

	temporal := risk.DetectTemporalPatterns(profile)
	geographic := risk.DetectGeographicPatterns(profile)
	evidence := risk.CompileEvidence(profile, anomalies, temporal, geographic)

	score := e.scorer.Score(profile, anomalies, evidence, collected.DataQuality)

	analysis := &domain.RiskAnalysisResult{
		ID:          uuid.New().String(),
		NPI:         profile.NPI,
		Score:       score,
		Priority:    domain.PriorityForScore(score),
		DataQuality: collected.DataQuality,
		Anomalies:   anomalies,
		Evidence:    evidence,
		Temporal:    temporal,
		Geographic:  geographic,
		AnalyzedAt:  e.now().UTC(),
	}

	rpt := e.reporter.Build(profile, analysis)
	validation := e.checker.Validate(rpt)

	e.persist(ctx, profile, analysis)

	slog.Info("investigation completed",
		"npi", profile.NPI,
		"analysis_id", analysis.ID,
		"score", analysis.Score,
		"priority", analysis.Priority,
		"data_quality", analysis.DataQuality,
		"evidence_count", len(evidence),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Outcome{
		Profile:  profile,
		Analysis: analysis,
		Report:   rpt,
		Quality:  validation,
	}, nil
}

// persist stores the analysis and, when utilization data was available,
// feeds the snapshot into the peer-baseline pool. Storage failures are
// logged, not fatal: the caller still gets the result.
func (e *Engine) persist(ctx context.Context, profile *domain.SubjectProfile, analysis *domain.RiskAnalysisResult) {
	if e.repo == nil {
		return
	}

	if err := e.repo.SaveAnalysis(ctx, analysis); err != nil {
		slog.Error("failed to save analysis",
			"analysis_id", analysis.ID,
			"npi", analysis.NPI,
			"error", err,
		)
	}

	if profile.SourceAvailability[domain.SourceUtilization] {
		metrics := profile.Utilization
		if err := e.repo.SaveUtilizationSnapshot(ctx, profile.NPI, &metrics); err != nil {
			slog.Error("failed to save utilization snapshot",
				"npi", profile.NPI,
				"error", err,
			)
		}
	}
}

func allSourcesFailed(profile *domain.SubjectProfile) bool {
	for _, ok := range profile.SourceAvailability {
		if ok {
			return false
		}
	}
	return true
}
