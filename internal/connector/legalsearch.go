package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/opensource-health/harrier/internal/domain"
)

// LegalSearchConnector runs public-web searches for legal proceedings
// involving a subject. Queries fan out concurrently; a failed query is
// dropped, not fatal, as long as at least one query succeeds.
type LegalSearchConnector struct {
	base

	// maxQueries bounds how many of the built query strategies run.
	maxQueries int
}

// NewLegalSearchConnector creates a legal search connector from configuration.
func NewLegalSearchConnector(cfg domain.ConnectorConfig, cache domain.Cache) *LegalSearchConnector {
	return &LegalSearchConnector{
		base:       newBase(domain.SourceLegal, cfg.LegalSearchURL, cache, cfg.LegalSearchTTL, cfg.LegalSearchTimeout),
		maxQueries: 5,
	}
}

// BuildQueries generates the search strategies for a subject, most
// specific first. Callers run the first maxQueries of them.
func BuildQueries(name, npi, specialty, location string) []string {
	if name == "" {
		return nil
	}
	q := []string{
		fmt.Sprintf(`"%s" healthcare fraud`, name),
		fmt.Sprintf(`"%s" medicare fraud conviction`, name),
		fmt.Sprintf(`"%s" lawsuit settlement`, name),
		fmt.Sprintf(`"%s" indicted OR convicted OR pleaded`, name),
		fmt.Sprintf(`"%s" NPI %s`, name, npi),
	}
	if specialty != "" {
		q = append(q,
			fmt.Sprintf(`"%s" %s malpractice`, name, specialty),
			fmt.Sprintf(`"%s" %s fraud investigation`, name, specialty),
		)
	}
	if location != "" {
		q = append(q,
			fmt.Sprintf(`"%s" %s fraud`, name, location),
			fmt.Sprintf(`"%s" %s department of justice`, name, location),
		)
	}
	q = append(q,
		fmt.Sprintf(`"%s" false claims act`, name),
		fmt.Sprintf(`"%s" kickback scheme`, name),
		fmt.Sprintf(`"%s" billing fraud charges`, name),
		fmt.Sprintf(`"%s" OIG exclusion`, name),
	)
	return q
}

// Search runs the query strategies for a subject and returns deduplicated
// hits. An empty hit list with successful queries is a valid clean result,
// not an error.
func (c *LegalSearchConnector) Search(ctx context.Context, name, npi, specialty, location string) (*domain.LegalSearchResult, error) {
	if name == "" {
		return nil, c.softErr(domain.ReasonNoData, "no subject name to search")
	}

	cacheKey := searchCacheKey(name, npi)
	if cached := c.readCache(ctx, cacheKey); cached != nil {
		var res domain.LegalSearchResult
		if err := json.Unmarshal(cached, &res); err == nil {
			return &res, nil
		}
	}

	queries := BuildQueries(name, npi, specialty, location)
	if len(queries) > c.maxQueries {
		queries = queries[:c.maxQueries]
	}

	type queryResult struct {
		hits []domain.SearchHit
		err  error
	}
	results := make([]queryResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			hits, err := c.runQuery(q)
			results[i] = queryResult{hits: hits, err: err}
		}(i, q)
	}
	wg.Wait()

	var (
		hits      []domain.SearchHit
		succeeded int
		seen      = make(map[string]bool)
	)
	for _, r := range results {
		if r.err != nil {
			continue
		}
		succeeded++
		for _, h := range r.hits {
			if h.URL == "" || seen[h.URL] {
				continue
			}
			seen[h.URL] = true
			hits = append(hits, h)
		}
	}

	if succeeded == 0 {
		return nil, c.softErr(domain.ReasonUnavailable, "all legal search queries failed")
	}

	res := &domain.LegalSearchResult{
		Hits:             hits,
		QueriesPerformed: succeeded,
		SubjectName:      name,
		NPI:              npi,
	}

	if payload, err := json.Marshal(res); err == nil {
		c.writeCache(ctx, cacheKey, payload)
	}
	return res, nil
}

func (c *LegalSearchConnector) runQuery(query string) ([]domain.SearchHit, error) {
	reqCtx, cancel := c.fetchCtx()
	defer cancel()

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; harrier/1.0)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	hits := parseSearchHTML(body)
	for i := range hits {
		hits[i].Query = query
	}
	return hits, nil
}

func searchCacheKey(name, npi string) string {
	s := strings.ToLower(name + ":" + npi)
	return strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}
		return r
	}, s)
}

// parseSearchHTML extracts result title, URL and snippet from the search
// engine's HTML response. Anchors classed result__a carry the link and
// title; result__snippet elements carry the snippet.
func parseSearchHTML(body []byte) []domain.SearchHit {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var hits []domain.SearchHit
	var walkResult func(n *html.Node, hit *domain.SearchHit)
	walkResult = func(n *html.Node, hit *domain.SearchHit) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				hit.Title = strings.TrimSpace(textContent(n))
				hit.URL = cleanResultURL(attr(n, "href"))
			case hasClass(n, "result__snippet"):
				hit.Snippet = strings.TrimSpace(textContent(n))
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walkResult(ch, hit)
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			var hit domain.SearchHit
			walkResult(n, &hit)
			if hit.Title != "" || hit.Snippet != "" {
				hits = append(hits, hit)
			}
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return hits
}

// cleanResultURL unwraps redirect-style hrefs where the target is
// carried in a uddg query parameter.
func cleanResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return sb.String()
}
