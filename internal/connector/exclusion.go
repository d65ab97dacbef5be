package connector

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

// ExclusionConnector checks a subject against the regulatory exclusion
// list. The list is distributed as a bulk CSV snapshot; the connector
// downloads it at most once per TTL, caches the raw bytes, and answers
// per-NPI lookups from an in-memory index.
type ExclusionConnector struct {
	base

	mu       sync.RWMutex
	index    map[string]domain.ExclusionRecord
	loadedAt time.Time
}

// NewExclusionConnector creates an exclusion connector from configuration.
func NewExclusionConnector(cfg domain.ConnectorConfig, cache domain.Cache) *ExclusionConnector {
	return &ExclusionConnector{
		base:  newBase(domain.SourceExclusion, cfg.ExclusionURL, cache, cfg.ExclusionTTL, cfg.ExclusionTimeout),
		index: nil,
	}
}

const snapshotKey = "snapshot"

// Snapshot column fallbacks. Header names vary between list releases.
var (
	npiColumns      = []string{"NPI", "NATIONAL_PROVIDER_IDENTIFIER"}
	exclTypeColumns = []string{"EXCLTYPE", "EXCLUSION_TYPE", "TYPE"}
	exclDateColumns = []string{"EXCLDATE", "EXCLUSION_DATE", "DATE"}
	reinstColumns   = []string{"REINDATE", "REINSTDATE", "REINSTATEMENT_DATE"}
	stateColumns    = []string{"STATE", "PROVIDER_STATE"}
)

// Fetch returns the exclusion status for an NPI. Absence from the list
// is a successful negative check, not an error; only snapshot download
// or parse failures produce a soft error.
func (c *ExclusionConnector) Fetch(ctx context.Context, npi string) (*domain.ExclusionRecord, error) {
	if err := c.ensureIndex(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	rec, ok := c.index[npi]
	c.mu.RUnlock()

	if !ok {
		return &domain.ExclusionRecord{Excluded: false}, nil
	}
	return &rec, nil
}

// ensureIndex rebuilds the in-memory index when it has never been built
// or the snapshot TTL has lapsed. Rebuilds prefer the cached raw bytes
// and fall back to a fresh download.
func (c *ExclusionConnector) ensureIndex(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.index != nil && c.now().Sub(c.loadedAt) <= c.ttl
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	raw := c.readCache(ctx, snapshotKey)
	if raw == nil {
		var err error
		raw, err = c.download()
		if err != nil {
			return err
		}
		c.writeCache(ctx, snapshotKey, raw)
	}

	index, err := parseSnapshot(raw)
	if err != nil {
		return c.softErr(domain.ReasonParse, err.Error())
	}

	c.mu.Lock()
	c.index = index
	c.loadedAt = c.now()
	c.mu.Unlock()
	return nil
}

func (c *ExclusionConnector) download() ([]byte, error) {
	reqCtx, cancel := c.fetchCtx()
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, c.softErr(domain.ReasonTimeout, "exclusion snapshot download timed out")
		}
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.softErr(domain.ReasonUnavailable, fmt.Sprintf("exclusion source returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}
	return body, nil
}

func parseSnapshot(raw []byte) (map[string]domain.ExclusionRecord, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("snapshot missing header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToUpper(strings.TrimSpace(h))] = i
	}

	npiCol := findColumn(cols, npiColumns)
	if npiCol < 0 {
		return nil, fmt.Errorf("snapshot has no NPI column")
	}
	typeCol := findColumn(cols, exclTypeColumns)
	dateCol := findColumn(cols, exclDateColumns)
	reinCol := findColumn(cols, reinstColumns)
	stateCol := findColumn(cols, stateColumns)

	index := make(map[string]domain.ExclusionRecord)
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Tolerate malformed rows; the snapshot is third-party data.
			continue
		}
		npi := strings.TrimSpace(field(row, npiCol))
		if npi == "" || npi == "0000000000" {
			continue
		}

		exclType := strings.ToLower(strings.TrimSpace(field(row, typeCol)))
		rec := domain.ExclusionRecord{
			Excluded:          true,
			ExclusionType:     exclType,
			ExclusionDate:     strings.TrimSpace(field(row, dateCol)),
			ReinstatementDate: strings.TrimSpace(field(row, reinCol)),
			State:             strings.TrimSpace(field(row, stateCol)),
		}
		if desc, ok := domain.ExclusionTypes[exclType]; ok {
			rec.Description = desc
		}
		index[npi] = rec
	}
	return index, nil
}

func findColumn(cols map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i
		}
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
