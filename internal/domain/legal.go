package domain

// Case types produced by the legal-evidence classifier.
const (
	CaseConviction = "conviction"
	CaseLawsuit    = "lawsuit"
	CaseAllegation = "allegation"
	CasePending    = "pending"
)

// Case statuses.
const (
	StatusConvicted = "convicted"
	StatusPending   = "pending"
	StatusSettled   = "settled"
	StatusDismissed = "dismissed"
	StatusUnknown   = "unknown"
)

// SearchHit is one raw result from the legal-search connector.
type SearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Query   string `json:"query,omitempty"`
}

// CaseAmounts holds dollar figures extracted from a search hit,
// attributed by surrounding keyword context.
type CaseAmounts struct {
	EstimatedFraud float64 `json:"estimatedFraud,omitempty"`
	Settlement     float64 `json:"settlement,omitempty"`
	Restitution    float64 `json:"restitution,omitempty"`
}

// LegalFinding is one structured, scored legal-evidence item.
// Relevance is always clamped to [0,1].
type LegalFinding struct {
	CaseType    string      `json:"caseType"`
	Status      string      `json:"status"`
	Date        string      `json:"date,omitempty"`
	Description string      `json:"description"`
	SourceURL   string      `json:"sourceUrl"`
	Relevance   float64     `json:"relevance"`
	Verified    bool        `json:"verified"`
	Amounts     CaseAmounts `json:"amounts,omitempty"`
}
