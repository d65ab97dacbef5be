// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidNPI is returned when a subject identifier is not exactly
// ten ASCII digits. Validation happens before any fetch is attempted.
var ErrInvalidNPI = errors.New("invalid NPI: must be exactly 10 digits")

// ValidateNPI checks that the identifier is a well-formed NPI.
func ValidateNPI(npi string) error {
	if len(npi) != 10 {
		return fmt.Errorf("%w: got %d characters", ErrInvalidNPI, len(npi))
	}
	for _, c := range npi {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: contains non-digit character", ErrInvalidNPI)
		}
	}
	return nil
}

// SubjectName holds individual or organization naming. The two forms are
// mutually exclusive: an organization name, when present, wins.
type SubjectName struct {
	First        string `json:"first,omitempty"`
	Last         string `json:"last,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// Display returns the human-readable name used to seed legal searches.
func (n SubjectName) Display() string {
	if n.Organization != "" {
		return n.Organization
	}
	switch {
	case n.First != "" && n.Last != "":
		return n.First + " " + n.Last
	case n.Last != "":
		return n.Last
	case n.First != "":
		return n.First
	}
	return "Unknown"
}

// PracticeLocation is the subject's practice address.
type PracticeLocation struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Taxonomy is a specialty/taxonomy entry from the identity registry.
type Taxonomy struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	License     string `json:"license,omitempty"`
	State       string `json:"state,omitempty"`
}

// UtilizationMetrics holds billing/utilization counts for one subject.
// Derived ratios are computed, never stored.
type UtilizationMetrics struct {
	TotalServices       int64   `json:"totalServices"`
	UniqueBeneficiaries int64   `json:"uniqueBeneficiaries"`
	TotalCharges        float64 `json:"totalCharges"`
	TotalPayments       float64 `json:"totalPayments"`
	ProviderType        string  `json:"providerType,omitempty"`
	Participation       string  `json:"participation,omitempty"`
}

// ServicesPerBeneficiary returns the service-to-beneficiary ratio,
// zero when there are no beneficiaries.
func (u UtilizationMetrics) ServicesPerBeneficiary() float64 {
	if u.UniqueBeneficiaries == 0 {
		return 0
	}
	return float64(u.TotalServices) / float64(u.UniqueBeneficiaries)
}

// ChargeToPaymentRatio returns submitted charges over payments,
// zero when nothing was paid.
func (u UtilizationMetrics) ChargeToPaymentRatio() float64 {
	if u.TotalPayments == 0 {
		return 0
	}
	return u.TotalCharges / u.TotalPayments
}

// ExclusionRecord holds the subject's regulatory exclusion status.
// When Excluded is false all other fields are ignored by scoring.
type ExclusionRecord struct {
	Excluded          bool   `json:"excluded"`
	ExclusionType     string `json:"exclusionType,omitempty"`
	ExclusionDate     string `json:"exclusionDate,omitempty"`
	ReinstatementDate string `json:"reinstatementDate,omitempty"`
	Description       string `json:"description,omitempty"`
	State             string `json:"state,omitempty"`
}

// ExclusionTypes maps 1128* exclusion codes to their statutory meaning.
var ExclusionTypes = map[string]string{
	"1128a1": "Mandatory - Medicare/Medicaid conviction",
	"1128a2": "Mandatory - Patient abuse conviction",
	"1128a3": "Mandatory - Felony conviction",
	"1128b1": "Permissive - Misdemeanor conviction",
	"1128b2": "Permissive - License revocation",
	"1128b4": "Permissive - Default on health education loan",
}

// SubjectProfile is the canonical fused view of one subject across all
// sources. Owned by the aggregator; handed read-only downstream.
type SubjectProfile struct {
	NPI              string             `json:"npi"`
	Name             SubjectName        `json:"name"`
	Credentials      string             `json:"credentials,omitempty"`
	Specialty        string             `json:"specialty,omitempty"`
	PracticeLocation PracticeLocation   `json:"practiceLocation"`
	Taxonomies       []Taxonomy         `json:"taxonomies,omitempty"`
	Utilization      UtilizationMetrics `json:"utilization"`
	Exclusion        ExclusionRecord    `json:"exclusion"`
	LegalFindings    []LegalFinding     `json:"legalFindings,omitempty"`
	EnumerationDate  string             `json:"enumerationDate,omitempty"`
	RiskFactors      []string           `json:"riskFactors,omitempty"`

	// SourceAvailability records which connectors contributed valid data.
	SourceAvailability map[string]bool `json:"sourceAvailability"`

	CollectedAt time.Time `json:"collectedAt"`
}
