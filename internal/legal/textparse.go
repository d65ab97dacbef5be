package legal

import (
	"regexp"
	"strconv"
	"strings"
)

// Date extraction patterns, tried in order of specificity.
var (
	monthNameDateRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2}),?\s+(\d{4})\b`)
	numericDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b|\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	bareYearRe      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// ExtractDate finds the most specific date mentioned in free text.
// Returns an empty string when nothing date-like appears.
func ExtractDate(text string) string {
	if m := monthNameDateRe.FindString(text); m != "" {
		return m
	}
	if m := numericDateRe.FindString(text); m != "" {
		return m
	}
	if m := bareYearRe.FindString(text); m != "" {
		return m
	}
	return ""
}

// ExtractYear returns the four-digit year of the extracted date, or 0.
func ExtractYear(text string) int {
	date := ExtractDate(text)
	if date == "" {
		return 0
	}
	if m := bareYearRe.FindString(date); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}

// Monetary amount pattern: $1,234,567.89, $2.5 million, $3B, $500k.
var amountRe = regexp.MustCompile(`(?i)\$\s?([\d,]+(?:\.\d+)?)\s*(million|billion|thousand|[mbk])?\b`)

type extractedAmount struct {
	value float64
	// offset of the match start, for context-window attribution
	offset int
}

// extractAmounts finds all dollar figures in text, normalized to plain
// dollars.
func extractAmounts(text string) []extractedAmount {
	var out []extractedAmount
	for _, loc := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		numStr := strings.ReplaceAll(text[loc[2]:loc[3]], ",", "")
		value, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			continue
		}

		if loc[4] >= 0 {
			switch strings.ToLower(text[loc[4]:loc[5]]) {
			case "billion", "b":
				value *= 1e9
			case "million", "m":
				value *= 1e6
			case "thousand", "k":
				value *= 1e3
			}
		}
		out = append(out, extractedAmount{value: value, offset: loc[0]})
	}
	return out
}

// Attribution keywords examined in a window around each dollar figure.
var (
	settlementContext  = []string{"settle", "settlement", "agreed to pay", "resolve"}
	restitutionContext = []string{"restitution", "repay", "pay back", "forfeit"}
	fraudContext       = []string{"fraud", "scheme", "billed", "false claims", "overbilled", "stole"}
)

const attributionWindow = 100

// AttributeAmounts buckets every dollar figure in text into fraud,
// settlement or restitution using nearby context. Figures with no
// contextual signal fall into the default bucket for the case type.
func AttributeAmounts(text, caseType, status string) (fraud, settlement, restitution float64) {
	lower := strings.ToLower(text)

	for _, amt := range extractAmounts(lower) {
		start := amt.offset - attributionWindow
		if start < 0 {
			start = 0
		}
		end := amt.offset + attributionWindow
		if end > len(lower) {
			end = len(lower)
		}
		window := lower[start:end]

		switch {
		case containsAny(window, restitutionContext):
			restitution += amt.value
		case containsAny(window, settlementContext):
			settlement += amt.value
		case containsAny(window, fraudContext):
			fraud += amt.value
		default:
			// No nearby signal: convictions imply a fraud figure,
			// settled cases imply a settlement figure.
			if caseType == "conviction" {
				fraud += amt.value
			} else if status == "settled" {
				settlement += amt.value
			} else {
				fraud += amt.value
			}
		}
	}
	return fraud, settlement, restitution
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
