package investigation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-health/harrier/internal/baseline"
	"github.com/opensource-health/harrier/internal/domain"
	"github.com/opensource-health/harrier/internal/fusion"
	"github.com/opensource-health/harrier/internal/rules"
)

// Stub sources for the fusion aggregator.

type stubRegistry struct {
	rec *domain.RegistryRecord
	err error
}

func (s *stubRegistry) Fetch(ctx context.Context, npi string) (*domain.RegistryRecord, error) {
	return s.rec, s.err
}

type stubUtilization struct {
	rec *domain.UtilizationRecord
	err error
}

func (s *stubUtilization) Fetch(ctx context.Context, npi string) (*domain.UtilizationRecord, error) {
	return s.rec, s.err
}

type stubExclusion struct {
	rec *domain.ExclusionRecord
	err error
}

func (s *stubExclusion) Fetch(ctx context.Context, npi string) (*domain.ExclusionRecord, error) {
	return s.rec, s.err
}

type stubLegal struct {
	res *domain.LegalSearchResult
	err error
}

func (s *stubLegal) Search(ctx context.Context, name, npi, specialty, location string) (*domain.LegalSearchResult, error) {
	return s.res, s.err
}

// memRepo is an in-memory Repository capturing writes.
type memRepo struct {
	analyses  map[string]*domain.RiskAnalysisResult
	snapshots map[string]*domain.UtilizationMetrics
}

func newMemRepo() *memRepo {
	return &memRepo{
		analyses:  make(map[string]*domain.RiskAnalysisResult),
		snapshots: make(map[string]*domain.UtilizationMetrics),
	}
}

func (m *memRepo) SaveAnalysis(ctx context.Context, r *domain.RiskAnalysisResult) error {
	m.analyses[r.ID] = r
	return nil
}

func (m *memRepo) GetAnalysis(ctx context.Context, id string) (*domain.RiskAnalysisResult, error) {
	r, ok := m.analyses[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (m *memRepo) ListAnalysesBySubject(ctx context.Context, npi string) ([]*domain.RiskAnalysisResult, error) {
	var out []*domain.RiskAnalysisResult
	for _, r := range m.analyses {
		if r.NPI == npi {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) SaveUtilizationSnapshot(ctx context.Context, npi string, metrics *domain.UtilizationMetrics) error {
	m.snapshots[npi] = metrics
	return nil
}

func (m *memRepo) UtilizationStats(ctx context.Context) (*domain.UtilizationStats, error) {
	return &domain.UtilizationStats{}, nil
}

func (m *memRepo) SaveFinancialEntry(ctx context.Context, entry *domain.FinancialEntry) error {
	return nil
}

func (m *memRepo) ListFinancialEntries(ctx context.Context, npi string) ([]*domain.FinancialEntry, error) {
	return nil, nil
}

func (m *memRepo) AnnualFinancialTotal(ctx context.Context, year int) (float64, error) {
	return 0, nil
}

func (m *memRepo) Ping(ctx context.Context) error { return nil }
func (m *memRepo) Close() error                   { return nil }

func cleanRegistry() *stubRegistry {
	return &stubRegistry{rec: &domain.RegistryRecord{
		NPI:       "1234567890",
		Name:      domain.SubjectName{First: "Jane", Last: "Smith"},
		Specialty: "Cardiology",
		PracticeLocation: domain.PracticeLocation{
			City:  "Houston",
			State: "TX",
		},
	}}
}

func cleanUtilization() *stubUtilization {
	return &stubUtilization{rec: &domain.UtilizationRecord{
		NPI: "1234567890",
		Metrics: domain.UtilizationMetrics{
			TotalServices:       1000,
			UniqueBeneficiaries: 300,
			TotalCharges:        500000,
			TotalPayments:       416000,
		},
	}}
}

func newTestEngine(t *testing.T, reg fusion.RegistrySource, util fusion.UtilizationSource,
	excl fusion.ExclusionSource, lg fusion.LegalSource, repo domain.Repository) *Engine {
	t.Helper()

	ruleEngine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("rule engine: %v", err)
	}
	if err := ruleEngine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("builtin rules: %v", err)
	}

	agg := fusion.NewAggregator(reg, util, excl, lg)
	engine := NewEngine(agg, ruleEngine, baseline.NewProvider(nil), repo)
	engine.SetClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	return engine
}

func TestRunCleanProvider(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t,
		cleanRegistry(),
		cleanUtilization(),
		&stubExclusion{rec: &domain.ExclusionRecord{Excluded: false}},
		&stubLegal{res: &domain.LegalSearchResult{}},
		repo,
	)

	out, err := engine.Run(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if out.Analysis.Score != 0 {
		t.Errorf("expected score 0 for clean provider, got %d", out.Analysis.Score)
	}
	if out.Analysis.Priority != domain.PriorityLow {
		t.Errorf("expected low priority, got %s", out.Analysis.Priority)
	}
	if out.Analysis.DataQuality != 1.0 {
		t.Errorf("expected data quality 1.0, got %f", out.Analysis.DataQuality)
	}
	if len(out.Profile.RiskFactors) != 0 {
		t.Errorf("expected no risk factors, got %v", out.Profile.RiskFactors)
	}
	if out.Report == nil || out.Report.SubjectName != "Jane Smith" {
		t.Errorf("report not built for subject: %+v", out.Report)
	}
	if out.Quality == nil || out.Quality.QualityScore < 0.7 {
		t.Errorf("unexpected quality outcome: %+v", out.Quality)
	}
}

func TestRunExcludedProvider(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t,
		cleanRegistry(),
		cleanUtilization(),
		&stubExclusion{rec: &domain.ExclusionRecord{
			Excluded:      true,
			ExclusionType: "1128a3",
			Description:   domain.ExclusionTypes["1128a3"],
		}},
		&stubLegal{res: &domain.LegalSearchResult{}},
		repo,
	)

	out, err := engine.Run(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if out.Analysis.Score != 90 {
		t.Errorf("expected floor score 90 for 1128a3, got %d", out.Analysis.Score)
	}
	if out.Analysis.Priority != domain.PriorityHigh {
		t.Errorf("expected high priority, got %s", out.Analysis.Priority)
	}
	if len(out.Analysis.Evidence) == 0 || out.Analysis.Evidence[0].Type != "oig_exclusion" {
		t.Fatalf("exclusion evidence must lead the trail: %+v", out.Analysis.Evidence)
	}

	var found bool
	for _, f := range out.Profile.RiskFactors {
		if strings.HasPrefix(f, "OIG Exclusion:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected OIG exclusion risk factor, got %v", out.Profile.RiskFactors)
	}
	if !out.Quality.Valid {
		t.Errorf("report with evidence should pass the quality gate: %+v", out.Quality)
	}
}

func TestRunAnomalousUtilization(t *testing.T) {
	util := &stubUtilization{rec: &domain.UtilizationRecord{
		NPI: "1234567890",
		Metrics: domain.UtilizationMetrics{
			TotalServices:       20000,
			UniqueBeneficiaries: 100,
			TotalCharges:        500000,
			TotalPayments:       416000,
		},
	}}
	engine := newTestEngine(t,
		cleanRegistry(),
		util,
		&stubExclusion{rec: &domain.ExclusionRecord{Excluded: false}},
		&stubLegal{res: &domain.LegalSearchResult{}},
		newMemRepo(),
	)

	out, err := engine.Run(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(out.Analysis.Anomalies) == 0 {
		t.Fatal("expected anomalies for extreme utilization")
	}
	if _, ok := out.Analysis.Anomalies["services_per_beneficiary"]; !ok {
		t.Errorf("services_per_beneficiary should be flagged: %v", out.Analysis.Anomalies)
	}
	if !out.Analysis.Temporal.EndOfMonthClustering {
		t.Error("high services-per-beneficiary should flag temporal clustering")
	}
	if out.Analysis.Score < 30 {
		t.Errorf("expected at least medium band, got %d", out.Analysis.Score)
	}

	var found bool
	for _, f := range out.Profile.RiskFactors {
		if strings.HasPrefix(f, "High services per beneficiary:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected services-per-beneficiary risk factor, got %v", out.Profile.RiskFactors)
	}
}

func TestRunInvalidNPI(t *testing.T) {
	engine := newTestEngine(t,
		cleanRegistry(),
		cleanUtilization(),
		&stubExclusion{rec: &domain.ExclusionRecord{Excluded: false}},
		&stubLegal{res: &domain.LegalSearchResult{}},
		newMemRepo(),
	)

	_, err := engine.Run(context.Background(), "12345")
	if !errors.Is(err, domain.ErrInvalidNPI) {
		t.Errorf("expected ErrInvalidNPI, got %v", err)
	}
}

func TestRunAllSourcesDown(t *testing.T) {
	down := &domain.SourceError{Reason: domain.ReasonUnavailable}
	engine := newTestEngine(t,
		&stubRegistry{err: down},
		&stubUtilization{err: down},
		&stubExclusion{err: down},
		&stubLegal{err: down},
		newMemRepo(),
	)

	_, err := engine.Run(context.Background(), "1234567890")
	if !errors.Is(err, ErrNoSubjectData) {
		t.Errorf("expected ErrNoSubjectData, got %v", err)
	}
}

func TestRunPersistsAnalysisAndSnapshot(t *testing.T) {
	repo := newMemRepo()
	engine := newTestEngine(t,
		cleanRegistry(),
		cleanUtilization(),
		&stubExclusion{rec: &domain.ExclusionRecord{Excluded: false}},
		&stubLegal{res: &domain.LegalSearchResult{}},
		repo,
	)

	out, err := engine.Run(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := repo.analyses[out.Analysis.ID]; !ok {
		t.Error("analysis not persisted")
	}
	if snap, ok := repo.snapshots["1234567890"]; !ok || snap.TotalServices != 1000 {
		t.Errorf("utilization snapshot not persisted: %+v", repo.snapshots)
	}
}

func TestRunDegradedSourcesStillScore(t *testing.T) {
	down := &domain.SourceError{Source: domain.SourceUtilization, Reason: domain.ReasonTimeout}
	engine := newTestEngine(t,
		cleanRegistry(),
		&stubUtilization{err: down},
		&stubExclusion{rec: &domain.ExclusionRecord{Excluded: false}},
		&stubLegal{res: &domain.LegalSearchResult{}},
		newMemRepo(),
	)

	out, err := engine.Run(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// registry 0.3 + exclusion 0.3 + legal 0.1
	if out.Analysis.DataQuality < 0.69 || out.Analysis.DataQuality > 0.71 {
		t.Errorf("expected data quality 0.70, got %f", out.Analysis.DataQuality)
	}

	var found bool
	for _, f := range out.Profile.RiskFactors {
		if f == "Incomplete data: 1 source(s) unavailable" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected incomplete-data risk factor, got %v", out.Profile.RiskFactors)
	}
}
