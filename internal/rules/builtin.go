package rules

import "github.com/opensource-health/harrier/internal/domain"

// BuiltinRules returns the default risk-factor rule set loaded at
// startup. Operators can replace or extend these at runtime.
func BuiltinRules() []*domain.RiskFactorRule {
	return []*domain.RiskFactorRule{
		{
			ID:          "excluded-provider",
			Name:        "OIG Exclusion",
			Description: "Subject appears on the federal exclusion list",
			Expression:  `excluded`,
			Label:       `"OIG Exclusion: " + exclusion_description`,
			Enabled:     true,
		},
		{
			ID:          "high-services-per-beneficiary",
			Name:        "High services per beneficiary",
			Description: "Service volume per patient far above plausible practice patterns",
			Expression:  `total_services > 0 && unique_beneficiaries > 0 && services_per_beneficiary > 50.0`,
			Label:       `"High services per beneficiary: " + string(services_per_beneficiary)`,
			Enabled:     true,
		},
		{
			ID:          "high-charge-ratio",
			Name:        "High charge-to-payment ratio",
			Description: "Submitted charges far exceed payments, a possible upcoding signal",
			Expression:  `charge_to_payment_ratio > 2.0`,
			Label:       `"High charge-to-payment ratio: " + string(charge_to_payment_ratio)`,
			Enabled:     true,
		},
		{
			ID:          "incomplete-sources",
			Name:        "Incomplete data",
			Description: "One or more sources did not contribute data",
			Expression:  `missing_sources > 0`,
			Label:       `"Incomplete data: " + string(missing_sources) + " source(s) unavailable"`,
			Enabled:     true,
		},
	}
}
