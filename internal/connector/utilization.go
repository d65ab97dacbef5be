package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/opensource-health/harrier/internal/domain"
)

// UtilizationConnector fetches billing/utilization rows for a subject
// and sums them into a single metrics record. The upstream dataset is
// row-per-service-line, so one NPI typically matches many rows.
type UtilizationConnector struct {
	base
}

// NewUtilizationConnector creates a utilization connector from configuration.
func NewUtilizationConnector(cfg domain.ConnectorConfig, cache domain.Cache) *UtilizationConnector {
	return &UtilizationConnector{
		base: newBase(domain.SourceUtilization, cfg.UtilizationURL, cache, cfg.UtilizationTTL, cfg.UtilizationTimeout),
	}
}

// Column name fallbacks, tried in order. Upstream schemas drift between
// dataset vintages.
var (
	serviceCountFields = []string{"line_srvc_cnt", "total_services", "tot_srvcs"}
	beneficiaryFields  = []string{"bene_unique_cnt", "unique_beneficiaries", "tot_benes"}
	chargeFields       = []string{"total_submitted_chrg_amt", "total_sbmtd_chrg", "total_charges"}
	paymentFields      = []string{"total_medicare_payment_amt", "total_mdcr_pymt_amt", "total_payments"}
	providerTypeFields = []string{"provider_type", "rndrng_prvdr_type", "entity_type"}
	participateFields  = []string{"medicare_participation_indicator", "participation"}
)

// Fetch returns summed utilization metrics for an NPI. An empty result
// set is a no_data soft error.
func (c *UtilizationConnector) Fetch(ctx context.Context, npi string) (*domain.UtilizationRecord, error) {
	if cached := c.readCache(ctx, npi); cached != nil {
		var rec domain.UtilizationRecord
		if err := json.Unmarshal(cached, &rec); err == nil {
			return &rec, nil
		}
	}

	reqCtx, cancel := c.fetchCtx()
	defer cancel()

	endpoint := fmt.Sprintf("%s?npi=%s&$limit=1000", c.baseURL, url.QueryEscape(npi))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, c.softErr(domain.ReasonTimeout, "utilization request timed out")
		}
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.softErr(domain.ReasonUnavailable, fmt.Sprintf("utilization source returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, c.softErr(domain.ReasonParse, err.Error())
	}
	if len(rows) == 0 {
		return nil, c.softErr(domain.ReasonNoData, "no utilization rows for NPI")
	}

	rec := &domain.UtilizationRecord{NPI: npi, Metrics: sumRows(rows)}

	if payload, err := json.Marshal(rec); err == nil {
		c.writeCache(ctx, npi, payload)
	}
	return rec, nil
}

// decodeRows accepts either a bare JSON array or an object with a
// "data" or "results" array.
func decodeRows(body []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}

	var wrapped struct {
		Data    []map[string]any `json:"data"`
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Data) > 0 {
		return wrapped.Data, nil
	}
	return wrapped.Results, nil
}

func sumRows(rows []map[string]any) domain.UtilizationMetrics {
	var m domain.UtilizationMetrics
	for _, row := range rows {
		m.TotalServices += int64(rowFloat(row, serviceCountFields))
		m.UniqueBeneficiaries += int64(rowFloat(row, beneficiaryFields))
		m.TotalCharges += rowFloat(row, chargeFields)
		m.TotalPayments += rowFloat(row, paymentFields)

		if m.ProviderType == "" {
			m.ProviderType = rowString(row, providerTypeFields)
		}
		if m.Participation == "" {
			m.Participation = rowString(row, participateFields)
		}
	}
	return m
}

// rowFloat reads the first present field, coercing JSON numbers and
// numeric strings. Unparseable values count as zero.
func rowFloat(row map[string]any, fields []string) float64 {
	for _, f := range fields {
		v, ok := row[f]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val
		case string:
			s := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
			if n, err := strconv.ParseFloat(s, 64); err == nil {
				return n
			}
		}
		return 0
	}
	return 0
}

func rowString(row map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := row[f]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
