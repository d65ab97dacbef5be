// Package fusion collects all external sources for one subject and
// merges them into a canonical profile with a data-quality score.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

// Source interfaces are declared here, narrow, so the aggregator can be
// tested with stubs.

type RegistrySource interface {
	Fetch(ctx context.Context, npi string) (*domain.RegistryRecord, error)
}

type UtilizationSource interface {
	Fetch(ctx context.Context, npi string) (*domain.UtilizationRecord, error)
}

type ExclusionSource interface {
	Fetch(ctx context.Context, npi string) (*domain.ExclusionRecord, error)
}

type LegalSource interface {
	Search(ctx context.Context, name, npi, specialty, location string) (*domain.LegalSearchResult, error)
}

// Data-quality weights per source. no_data earns half credit because
// the source answered; any other failure earns none.
var qualityWeights = map[string]float64{
	domain.SourceUtilization: 0.3,
	domain.SourceExclusion:   0.3,
	domain.SourceRegistry:    0.3,
	domain.SourceLegal:       0.1,
}

// Result is the outcome of one collection pass.
type Result struct {
	Profile     *domain.SubjectProfile
	DataQuality float64

	// SourceErrors holds the soft error per failed source, keyed by
	// source name. Successful sources are absent.
	SourceErrors map[string]*domain.SourceError

	// RawHits carries the unclassified legal search hits for the
	// downstream classifier.
	RawHits []domain.SearchHit
}

// Aggregator owns the fan-out across connectors. The identity registry
// is fetched first because its name seeds the legal search; the
// remaining sources run concurrently with per-source error isolation.
type Aggregator struct {
	registry    RegistrySource
	utilization UtilizationSource
	exclusion   ExclusionSource
	legal       LegalSource
	now         func() time.Time
}

// NewAggregator wires the aggregator over its four sources.
func NewAggregator(reg RegistrySource, util UtilizationSource, excl ExclusionSource, legal LegalSource) *Aggregator {
	return &Aggregator{
		registry:    reg,
		utilization: util,
		exclusion:   excl,
		legal:       legal,
		now:         time.Now,
	}
}

// SetClock replaces the aggregator's time source. Test use only.
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Collect fetches and fuses all sources for one NPI. The only hard
// failure is a malformed NPI; every source failure degrades the
// data-quality score instead of aborting.
func (a *Aggregator) Collect(ctx context.Context, npi string) (*Result, error) {
	if err := domain.ValidateNPI(npi); err != nil {
		return nil, err
	}

	res := &Result{
		Profile: &domain.SubjectProfile{
			NPI:                npi,
			SourceAvailability: make(map[string]bool),
			CollectedAt:        a.now().UTC(),
		},
		SourceErrors: make(map[string]*domain.SourceError),
	}

	// Identity first: its name seeds the legal search.
	reg, err := a.registry.Fetch(ctx, npi)
	if err != nil {
		a.recordFailure(res, domain.SourceRegistry, err)
	} else {
		res.Profile.SourceAvailability[domain.SourceRegistry] = true
		res.Profile.Name = reg.Name
		res.Profile.Credentials = reg.Credentials
		res.Profile.Specialty = reg.Specialty
		res.Profile.PracticeLocation = reg.PracticeLocation
		res.Profile.Taxonomies = reg.Taxonomies
		res.Profile.EnumerationDate = reg.EnumerationDate
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex

		utilRec  *domain.UtilizationRecord
		utilErr  error
		exclRec  *domain.ExclusionRecord
		exclErr  error
		legalRes *domain.LegalSearchResult
		legalErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := a.utilization.Fetch(ctx, npi)
		mu.Lock()
		utilRec, utilErr = r, err
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := a.exclusion.Fetch(ctx, npi)
		mu.Lock()
		exclRec, exclErr = r, err
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		name := ""
		if reg != nil {
			name = reg.Name.Display()
		}
		if name == "" || name == "Unknown" {
			mu.Lock()
			legalErr = &domain.SourceError{
				Source: domain.SourceLegal,
				Reason: domain.ReasonNoData,
				Detail: "no subject name available for search",
			}
			mu.Unlock()
			return
		}
		state := ""
		specialty := ""
		if reg != nil {
			state = reg.PracticeLocation.State
			specialty = reg.Specialty
		}
		r, err := a.legal.Search(ctx, name, npi, specialty, state)
		mu.Lock()
		legalRes, legalErr = r, err
		mu.Unlock()
	}()

	wg.Wait()

	if utilErr != nil {
		a.recordFailure(res, domain.SourceUtilization, utilErr)
	} else {
		res.Profile.SourceAvailability[domain.SourceUtilization] = true
		res.Profile.Utilization = utilRec.Metrics
	}

	if exclErr != nil {
		a.recordFailure(res, domain.SourceExclusion, exclErr)
	} else {
		res.Profile.SourceAvailability[domain.SourceExclusion] = true
		res.Profile.Exclusion = *exclRec
	}

	if legalErr != nil {
		a.recordFailure(res, domain.SourceLegal, legalErr)
	} else {
		res.Profile.SourceAvailability[domain.SourceLegal] = true
		res.RawHits = legalRes.Hits
	}

	res.DataQuality = dataQuality(res)

	slog.Info("subject collection complete",
		"npi", npi,
		"data_quality", res.DataQuality,
		"sources_failed", len(res.SourceErrors),
	)
	return res, nil
}

func (a *Aggregator) recordFailure(res *Result, source string, err error) {
	se, ok := domain.AsSourceError(err)
	if !ok {
		se = &domain.SourceError{Source: source, Reason: domain.ReasonUnavailable, Detail: err.Error()}
	}
	res.Profile.SourceAvailability[source] = false
	res.SourceErrors[source] = se
	slog.Warn("source fetch degraded",
		"npi", res.Profile.NPI,
		"source", source,
		"reason", se.Reason,
		"detail", se.Detail,
	)
}

// dataQuality sums per-source weights: full weight when available, half
// when the source answered with no record, zero otherwise.
func dataQuality(res *Result) float64 {
	var q float64
	for source, weight := range qualityWeights {
		if res.Profile.SourceAvailability[source] {
			q += weight
			continue
		}
		if se, ok := res.SourceErrors[source]; ok && se.NoData() {
			q += weight / 2
		}
	}
	// Clamp float drift.
	if q > 1.0 {
		q = 1.0
	}
	return q
}

// MissingSources lists the sources that did not contribute data, in a
// stable order for evidence and risk-factor text.
func (r *Result) MissingSources() []string {
	ordered := []string{domain.SourceRegistry, domain.SourceUtilization, domain.SourceExclusion, domain.SourceLegal}
	var missing []string
	for _, s := range ordered {
		if !r.Profile.SourceAvailability[s] {
			missing = append(missing, s)
		}
	}
	return missing
}

// String implements a compact debug form.
func (r *Result) String() string {
	return fmt.Sprintf("fusion{npi=%s quality=%.2f failed=%d}", r.Profile.NPI, r.DataQuality, len(r.SourceErrors))
}
