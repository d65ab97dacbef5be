package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-health/harrier/internal/cache"
	"github.com/opensource-health/harrier/internal/domain"
)

func testConfig(serverURL string) domain.ConnectorConfig {
	return domain.ConnectorConfig{
		RegistryURL:    serverURL,
		UtilizationURL: serverURL,
		ExclusionURL:   serverURL,
		LegalSearchURL: serverURL,

		RegistryTTL:    time.Hour,
		UtilizationTTL: time.Hour,
		ExclusionTTL:   time.Hour,
		LegalSearchTTL: time.Hour,

		RegistryTimeout:    5 * time.Second,
		UtilizationTimeout: 5 * time.Second,
		ExclusionTimeout:   5 * time.Second,
		LegalSearchTimeout: 5 * time.Second,
	}
}

const registryJSON = `{
	"result_count": 1,
	"results": [{
		"number": "1234567890",
		"basic": {
			"first_name": "JANE",
			"last_name": "SMITH",
			"credential": "MD",
			"gender": "F",
			"enumeration_date": "2005-06-15"
		},
		"addresses": [
			{"address_purpose": "MAILING", "address_1": "PO BOX 1", "city": "DALLAS", "state": "TX", "postal_code": "75201", "country_code": "US"},
			{"address_purpose": "LOCATION", "address_1": "100 MAIN ST", "city": "HOUSTON", "state": "TX", "postal_code": "77002", "country_code": "US"}
		],
		"taxonomies": [
			{"code": "207RC0000X", "desc": "Cardiovascular Disease", "primary": true, "license": "X123", "state": "TX"}
		]
	}]
}`

func TestRegistryFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("number"); got != "1234567890" {
			t.Errorf("unexpected number param: %s", got)
		}
		w.Write([]byte(registryJSON))
	}))
	defer srv.Close()

	c := NewRegistryConnector(testConfig(srv.URL), cache.NewLRUCache(10))
	rec, err := c.Fetch(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if rec.Name.Display() != "JANE SMITH" {
		t.Errorf("expected JANE SMITH, got %s", rec.Name.Display())
	}
	if rec.Specialty != "Cardiovascular Disease" {
		t.Errorf("expected primary taxonomy as specialty, got %s", rec.Specialty)
	}
	if rec.PracticeLocation.City != "HOUSTON" {
		t.Errorf("expected LOCATION address, got %s", rec.PracticeLocation.City)
	}
	if rec.EnumerationDate != "2005-06-15" {
		t.Errorf("unexpected enumeration date: %s", rec.EnumerationDate)
	}
}

func TestRegistryNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result_count": 0, "results": []}`))
	}))
	defer srv.Close()

	c := NewRegistryConnector(testConfig(srv.URL), nil)
	_, err := c.Fetch(context.Background(), "9999999999")
	se, ok := domain.AsSourceError(err)
	if !ok {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if !se.NoData() {
		t.Errorf("expected no_data reason, got %s", se.Reason)
	}
	if se.Source != domain.SourceRegistry {
		t.Errorf("expected registry source, got %s", se.Source)
	}
}

func TestRegistryServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRegistryConnector(testConfig(srv.URL), nil)
	_, err := c.Fetch(context.Background(), "1234567890")
	se, ok := domain.AsSourceError(err)
	if !ok {
		t.Fatalf("expected SourceError, got %v", err)
	}
	if se.Reason != domain.ReasonUnavailable {
		t.Errorf("expected unavailable reason, got %s", se.Reason)
	}
}

func TestRegistryCacheHit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(registryJSON))
	}))
	defer srv.Close()

	c := NewRegistryConnector(testConfig(srv.URL), cache.NewLRUCache(10))
	ctx := context.Background()

	if _, err := c.Fetch(ctx, "1234567890"); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if _, err := c.Fetch(ctx, "1234567890"); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls)
	}
}

func TestUtilizationSumsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"line_srvc_cnt": "1200", "bene_unique_cnt": 150, "total_submitted_chrg_amt": "250000.50", "total_medicare_payment_amt": 100000, "provider_type": "Cardiology"},
			{"line_srvc_cnt": 800, "bene_unique_cnt": "50", "total_submitted_chrg_amt": 149999.50, "total_medicare_payment_amt": "50000"}
		]`))
	}))
	defer srv.Close()

	c := NewUtilizationConnector(testConfig(srv.URL), nil)
	rec, err := c.Fetch(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	m := rec.Metrics
	if m.TotalServices != 2000 {
		t.Errorf("expected 2000 services, got %d", m.TotalServices)
	}
	if m.UniqueBeneficiaries != 200 {
		t.Errorf("expected 200 beneficiaries, got %d", m.UniqueBeneficiaries)
	}
	if m.TotalCharges != 400000 {
		t.Errorf("expected 400000 charges, got %f", m.TotalCharges)
	}
	if m.TotalPayments != 150000 {
		t.Errorf("expected 150000 payments, got %f", m.TotalPayments)
	}
	if m.ProviderType != "Cardiology" {
		t.Errorf("expected Cardiology, got %s", m.ProviderType)
	}
	if got := m.ServicesPerBeneficiary(); got != 10.0 {
		t.Errorf("expected ratio 10.0, got %f", got)
	}
}

func TestUtilizationWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"total_services": 500, "unique_beneficiaries": 100}]}`))
	}))
	defer srv.Close()

	c := NewUtilizationConnector(testConfig(srv.URL), nil)
	rec, err := c.Fetch(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if rec.Metrics.TotalServices != 500 {
		t.Errorf("fallback field names not honored: got %d", rec.Metrics.TotalServices)
	}
}

func TestUtilizationNoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewUtilizationConnector(testConfig(srv.URL), nil)
	_, err := c.Fetch(context.Background(), "1234567890")
	se, ok := domain.AsSourceError(err)
	if !ok || !se.NoData() {
		t.Fatalf("expected no_data SourceError, got %v", err)
	}
}

const exclusionCSV = `LASTNAME,FIRSTNAME,NPI,EXCLTYPE,EXCLDATE,REINDATE,STATE
DOE,JOHN,1112223334,1128a3,20230115,,TX
ROE,RICHARD,5556667778,1128b2,20200601,20230601,CA
`

func TestExclusionMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exclusionCSV))
	}))
	defer srv.Close()

	c := NewExclusionConnector(testConfig(srv.URL), cache.NewLRUCache(10))
	rec, err := c.Fetch(context.Background(), "1112223334")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !rec.Excluded {
		t.Fatal("expected excluded subject")
	}
	if rec.ExclusionType != "1128a3" {
		t.Errorf("expected 1128a3, got %s", rec.ExclusionType)
	}
	if !strings.Contains(rec.Description, "Felony") {
		t.Errorf("expected catalog description, got %s", rec.Description)
	}
}

func TestExclusionCleanSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(exclusionCSV))
	}))
	defer srv.Close()

	c := NewExclusionConnector(testConfig(srv.URL), nil)
	rec, err := c.Fetch(context.Background(), "9998887776")
	if err != nil {
		t.Fatalf("absence from the list must not be an error: %v", err)
	}
	if rec.Excluded {
		t.Error("expected clean subject")
	}
}

func TestExclusionSnapshotDownloadedOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(exclusionCSV))
	}))
	defer srv.Close()

	c := NewExclusionConnector(testConfig(srv.URL), cache.NewLRUCache(10))
	ctx := context.Background()
	c.Fetch(ctx, "1112223334")
	c.Fetch(ctx, "5556667778")
	c.Fetch(ctx, "9998887776")
	if calls != 1 {
		t.Errorf("expected a single snapshot download, got %d", calls)
	}
}

func TestExclusionSnapshotExpiry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(exclusionCSV))
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewExclusionConnector(testConfig(srv.URL), nil)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Fetch(ctx, "1112223334")
	now = now.Add(30 * time.Minute)
	c.Fetch(ctx, "5556667778")
	if calls != 1 {
		t.Fatalf("index must be reused inside the TTL, got %d downloads", calls)
	}

	now = now.Add(time.Hour)
	rec, err := c.Fetch(ctx, "1112223334")
	if err != nil {
		t.Fatalf("fetch after expiry failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a re-download after the TTL lapsed, got %d downloads", calls)
	}
	if !rec.Excluded {
		t.Error("rebuilt index lost the exclusion record")
	}
}

const searchHTML = `<html><body>
<div class="result results_links">
	<a class="result__a" href="/l/?uddg=https%3A%2F%2Fwww.justice.gov%2Fcase-press-release">Doctor Convicted of Health Care Fraud</a>
	<a class="result__snippet" href="#">Dr. Jane Smith was convicted of billing for services never rendered.</a>
</div>
<div class="result results_links">
	<a class="result__a" href="https://example.com/news">Local clinic news</a>
	<div class="result__snippet">General article about clinics.</div>
</div>
</body></html>`

func TestLegalSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchHTML))
	}))
	defer srv.Close()

	c := NewLegalSearchConnector(testConfig(srv.URL), nil)
	c.maxQueries = 1

	res, err := c.Search(context.Background(), "Jane Smith", "1234567890", "Cardiology", "Houston")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(res.Hits))
	}

	first := res.Hits[0]
	if first.Title != "Doctor Convicted of Health Care Fraud" {
		t.Errorf("unexpected title: %s", first.Title)
	}
	if first.URL != "https://www.justice.gov/case-press-release" {
		t.Errorf("redirect URL not unwrapped: %s", first.URL)
	}
	if !strings.Contains(first.Snippet, "convicted") {
		t.Errorf("unexpected snippet: %s", first.Snippet)
	}
	if res.QueriesPerformed != 1 {
		t.Errorf("expected 1 query performed, got %d", res.QueriesPerformed)
	}
}

func TestLegalSearchDeduplicatesByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchHTML)) // same results for every query
	}))
	defer srv.Close()

	c := NewLegalSearchConnector(testConfig(srv.URL), nil)
	c.maxQueries = 3

	res, err := c.Search(context.Background(), "Jane Smith", "1234567890", "", "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Errorf("expected duplicates collapsed to 2, got %d", len(res.Hits))
	}
	if res.QueriesPerformed != 3 {
		t.Errorf("expected 3 queries performed, got %d", res.QueriesPerformed)
	}
}

func TestLegalSearchRequiresName(t *testing.T) {
	c := NewLegalSearchConnector(testConfig("http://unused"), nil)
	_, err := c.Search(context.Background(), "", "1234567890", "", "")
	se, ok := domain.AsSourceError(err)
	if !ok || !se.NoData() {
		t.Fatalf("expected no_data SourceError, got %v", err)
	}
}

func TestBuildQueries(t *testing.T) {
	queries := BuildQueries("Jane Smith", "1234567890", "Cardiology", "Houston")
	if len(queries) < 5 {
		t.Fatalf("expected at least 5 strategies, got %d", len(queries))
	}
	for _, q := range queries {
		if !strings.Contains(q, "Jane Smith") {
			t.Errorf("query missing subject name: %s", q)
		}
	}

	if got := BuildQueries("", "1234567890", "", ""); got != nil {
		t.Errorf("expected nil for empty name, got %v", got)
	}
}
