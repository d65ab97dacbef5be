// Package legal classifies raw web-search hits into structured legal
// findings: typed, statused, relevance-scored and deduplicated.
package legal

import (
	"sort"
	"strings"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

// Keyword tables. Classification is first-match-wins over these, in the
// order conviction > settlement > pending > generic lawsuit.
var (
	convictionKeywords = []string{
		"convicted", "sentenced", "pleaded guilty", "plea deal", "found guilty",
		"criminal conviction", "felony", "misdemeanor", "prison", "jail",
	}
	lawsuitKeywords = []string{
		"lawsuit", "sued", "settlement", "litigation", "civil suit",
		"malpractice", "negligence", "damages", "plaintiff", "defendant",
	}
	pendingKeywords = []string{
		"pending", "alleged", "accused", "charges", "indictment",
		"under investigation", "facing charges", "charged with",
	}
	settlementKeywords = []string{
		"settled", "settlement", "agreed to pay", "reached settlement",
		"settled out of court",
	}
)

// officialDomains mark sources trusted enough to count as verified.
var officialDomains = []string{
	"court", "gov", "uscourts", "justice", "doj", "fbi",
	"state", "county", "district", "supreme",
}

// Relevance scoring constants.
const (
	relevanceRetentionFloor = 0.3  // minimum to keep a non-conviction finding
	convictionFloorScore    = 0.25 // assigned to weakly-attributed convictions
	maxDescriptionLen       = 497
	dedupSignatureLen       = 50
	recencyWindowYears      = 2
)

// Subject carries the identity attributes a finding is scored against.
type Subject struct {
	Name      string
	NPI       string
	Specialty string
	City      string
	State     string
}

// Classifier turns search hits into legal findings.
type Classifier struct {
	now func() time.Time
}

// NewClassifier creates a classifier using the wall clock for recency.
func NewClassifier() *Classifier {
	return &Classifier{now: time.Now}
}

// SetClock replaces the classifier's time source. Test use only.
func (c *Classifier) SetClock(now func() time.Time) { c.now = now }

// Classify processes every hit and returns retained findings sorted by
// descending relevance, deduplicated by case signature.
func (c *Classifier) Classify(hits []domain.SearchHit, subject Subject) []domain.LegalFinding {
	var findings []domain.LegalFinding
	for _, hit := range hits {
		if f, ok := c.classifyHit(hit, subject); ok {
			findings = append(findings, f)
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Relevance > findings[j].Relevance
	})
	return dedup(findings)
}

// classifyHit types one hit and decides whether it is retained.
// Conviction findings survive weak attribution at a floor relevance;
// everything else must clear the retention threshold.
func (c *Classifier) classifyHit(hit domain.SearchHit, subject Subject) (domain.LegalFinding, bool) {
	text := strings.ToLower(hit.Title + " " + hit.Snippet)

	caseType, status, ok := classifyText(text)
	if !ok {
		return domain.LegalFinding{}, false
	}

	base := c.subjectRelevance(text, hit.URL, subject)
	// The conviction-keyword bonus applies to every hit, whatever its
	// classification: a conviction keyword in the URL of a hit typed as
	// a settlement still strengthens its attribution.
	bonus := convictionBonus(text, hit.URL)

	var relevance float64
	if caseType == domain.CaseConviction {
		if base < relevanceRetentionFloor {
			// Weakly attributed conviction: kept, but pinned low so it
			// cannot dominate a well-attributed finding.
			relevance = convictionFloorScore
		} else {
			relevance = clamp01(base + bonus)
		}
	} else {
		relevance = clamp01(base + bonus)
		if relevance < relevanceRetentionFloor {
			return domain.LegalFinding{}, false
		}
	}

	fraud, settlement, restitution := AttributeAmounts(hit.Title+" "+hit.Snippet, caseType, status)

	return domain.LegalFinding{
		CaseType:    caseType,
		Status:      status,
		Date:        ExtractDate(hit.Title + " " + hit.Snippet),
		Description: truncateDescription(hit.Title + ". " + hit.Snippet),
		SourceURL:   hit.URL,
		Relevance:   relevance,
		Verified:    isOfficialDomain(hit.URL),
		Amounts: domain.CaseAmounts{
			EstimatedFraud: fraud,
			Settlement:     settlement,
			Restitution:    restitution,
		},
	}, true
}

// classifyText applies the keyword tables in priority order. Text with
// no legal signal at all is discarded.
func classifyText(text string) (caseType, status string, ok bool) {
	switch {
	case containsAny(text, convictionKeywords):
		return domain.CaseConviction, domain.StatusConvicted, true

	case containsAny(text, settlementKeywords):
		return domain.CaseLawsuit, domain.StatusSettled, true

	case containsAny(text, pendingKeywords):
		if strings.Contains(text, "lawsuit") || strings.Contains(text, "sued") {
			return domain.CaseLawsuit, domain.StatusPending, true
		}
		return domain.CaseAllegation, domain.StatusPending, true

	case containsAny(text, lawsuitKeywords):
		if strings.Contains(text, "dismissed") {
			return domain.CaseLawsuit, domain.StatusDismissed, true
		}
		return domain.CaseLawsuit, domain.StatusPending, true
	}
	return "", "", false
}

// subjectRelevance scores how strongly a hit is tied to the subject,
// before any conviction bonus.
func (c *Classifier) subjectRelevance(text, url string, subject Subject) float64 {
	var score float64
	lowerURL := strings.ToLower(url)

	if subject.Name != "" && strings.Contains(text, strings.ToLower(subject.Name)) {
		score += 0.3
	}
	if subject.NPI != "" && (strings.Contains(text, subject.NPI) || strings.Contains(lowerURL, subject.NPI)) {
		score += 0.5
	}
	if subject.Specialty != "" && strings.Contains(text, strings.ToLower(subject.Specialty)) {
		score += 0.2
	}
	if locationMentioned(text, subject) {
		score += 0.2
	}
	if isOfficialDomain(url) {
		score += 0.5
	}
	if year := ExtractYear(text); year > 0 && c.now().Year()-year <= recencyWindowYears {
		score += 0.3
	}
	return score
}

func convictionBonus(text, url string) float64 {
	if containsAny(text, convictionKeywords) {
		return 0.3
	}
	if containsAny(strings.ToLower(url), convictionKeywords) {
		return 0.2
	}
	return 0
}

func locationMentioned(text string, subject Subject) bool {
	if subject.City != "" && strings.Contains(text, strings.ToLower(subject.City)) {
		return true
	}
	if subject.State != "" && strings.Contains(text, strings.ToLower(subject.State)) {
		return true
	}
	return false
}

func isOfficialDomain(url string) bool {
	host := hostOf(strings.ToLower(url))
	for _, part := range strings.Split(host, ".") {
		for _, official := range officialDomains {
			if part == official {
				return true
			}
		}
	}
	return false
}

func hostOf(url string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

// dedup collapses findings sharing a case signature. Input is sorted by
// descending relevance, so the strongest representative survives.
func dedup(findings []domain.LegalFinding) []domain.LegalFinding {
	seen := make(map[string]bool, len(findings))
	out := findings[:0]
	for _, f := range findings {
		sig := signature(f)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, f)
	}
	return out
}

func signature(f domain.LegalFinding) string {
	desc := f.Description
	if len(desc) > dedupSignatureLen {
		desc = desc[:dedupSignatureLen]
	}
	return f.CaseType + "_" + f.Status + "_" + desc
}

func truncateDescription(s string) string {
	if len(s) <= maxDescriptionLen {
		return s
	}
	return s[:maxDescriptionLen] + "..."
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}
