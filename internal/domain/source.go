package domain

import (
	"errors"
	"fmt"
)

// Source names used in availability maps and data-quality weighting.
const (
	SourceRegistry    = "registry"
	SourceUtilization = "utilization"
	SourceExclusion   = "exclusion"
	SourceLegal       = "legal"
)

// Soft-failure reason codes. "no_data" means the source answered but had
// no record for the subject; it earns partial data-quality credit.
const (
	ReasonUnavailable = "unavailable"
	ReasonTimeout     = "timeout"
	ReasonNoData      = "no_data"
	ReasonParse       = "parse"
)

// SourceError is the soft-error sentinel for connector failures. Ordinary
// unavailability is always reported this way, never as a raised fault;
// the aggregator converts it into a degraded data-quality score.
type SourceError struct {
	Source string
	Reason string
	Detail string
}

func (e *SourceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Reason, e.Detail)
}

// AsSourceError unwraps err into a *SourceError if it is one.
func AsSourceError(err error) (*SourceError, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// NoData reports whether err is a soft failure with the no_data reason.
func (e *SourceError) NoData() bool {
	return e.Reason == ReasonNoData
}

// RegistryRecord is the normalized identity-registry response.
type RegistryRecord struct {
	NPI              string           `json:"npi"`
	Name             SubjectName      `json:"name"`
	Credentials      string           `json:"credentials,omitempty"`
	Gender           string           `json:"gender,omitempty"`
	EnumerationDate  string           `json:"enumerationDate,omitempty"`
	PracticeLocation PracticeLocation `json:"practiceLocation"`
	Specialty        string           `json:"specialty,omitempty"`
	Taxonomies       []Taxonomy       `json:"taxonomies,omitempty"`
}

// UtilizationRecord is the normalized utilization-source response.
// Multiple matching rows are summed per numeric field by the connector.
type UtilizationRecord struct {
	NPI     string             `json:"npi"`
	Metrics UtilizationMetrics `json:"metrics"`
}

// LegalSearchResult is the raw output of the legal-search connector.
type LegalSearchResult struct {
	Hits             []SearchHit `json:"hits"`
	QueriesPerformed int         `json:"queriesPerformed"`
	SubjectName      string      `json:"subjectName"`
	NPI              string      `json:"npi"`
}
