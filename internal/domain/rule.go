package domain

// RiskFactorRule is a CEL-based predicate over a subject profile. When
// Expression evaluates true, the rule contributes one risk-factor label
// to the profile. Label is an optional CEL string expression evaluated
// against the same variables; when empty the rule's Name is used.
type RiskFactorRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Label       string `json:"label,omitempty"`
	Enabled     bool   `json:"enabled"`
}
