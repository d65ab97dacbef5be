package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/opensource-health/harrier/internal/domain"
)

// RegistryConnector fetches subject identity from the NPI registry.
type RegistryConnector struct {
	base
}

// NewRegistryConnector creates a registry connector from configuration.
func NewRegistryConnector(cfg domain.ConnectorConfig, cache domain.Cache) *RegistryConnector {
	return &RegistryConnector{
		base: newBase(domain.SourceRegistry, cfg.RegistryURL, cache, cfg.RegistryTTL, cfg.RegistryTimeout),
	}
}

// registryResponse mirrors the registry's wire format. Only the fields
// the profile needs are decoded.
type registryResponse struct {
	ResultCount int `json:"result_count"`
	Results     []struct {
		Number string `json:"number"`
		Basic  struct {
			FirstName        string `json:"first_name"`
			LastName         string `json:"last_name"`
			OrganizationName string `json:"organization_name"`
			Credential       string `json:"credential"`
			Gender           string `json:"gender"`
			EnumerationDate  string `json:"enumeration_date"`
		} `json:"basic"`
		Addresses []struct {
			AddressPurpose string `json:"address_purpose"`
			Address1       string `json:"address_1"`
			City           string `json:"city"`
			State          string `json:"state"`
			PostalCode     string `json:"postal_code"`
			CountryCode    string `json:"country_code"`
		} `json:"addresses"`
		Taxonomies []struct {
			Code    string `json:"code"`
			Desc    string `json:"desc"`
			Primary bool   `json:"primary"`
			License string `json:"license"`
			State   string `json:"state"`
		} `json:"taxonomies"`
	} `json:"results"`
}

// Fetch returns the normalized registry record for an NPI. Absence of a
// record is a no_data soft error; the registry is authoritative for
// identity, so callers usually treat that as fatal for the subject.
func (c *RegistryConnector) Fetch(ctx context.Context, npi string) (*domain.RegistryRecord, error) {
	if cached := c.readCache(ctx, npi); cached != nil {
		var rec domain.RegistryRecord
		if err := json.Unmarshal(cached, &rec); err == nil {
			return &rec, nil
		}
	}

	reqCtx, cancel := c.fetchCtx()
	defer cancel()

	endpoint := fmt.Sprintf("%s?number=%s&version=2.1", c.baseURL, url.QueryEscape(npi))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, c.softErr(domain.ReasonTimeout, "registry request timed out")
		}
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.softErr(domain.ReasonUnavailable, fmt.Sprintf("registry returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.softErr(domain.ReasonUnavailable, err.Error())
	}

	var wire registryResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, c.softErr(domain.ReasonParse, err.Error())
	}

	if wire.ResultCount == 0 || len(wire.Results) == 0 {
		return nil, c.softErr(domain.ReasonNoData, "no registry record for NPI")
	}

	rec := c.normalize(npi, &wire)

	if payload, err := json.Marshal(rec); err == nil {
		c.writeCache(ctx, npi, payload)
	}
	return rec, nil
}

func (c *RegistryConnector) normalize(npi string, wire *registryResponse) *domain.RegistryRecord {
	r := wire.Results[0]

	rec := &domain.RegistryRecord{
		NPI: npi,
		Name: domain.SubjectName{
			First:        r.Basic.FirstName,
			Last:         r.Basic.LastName,
			Organization: r.Basic.OrganizationName,
		},
		Credentials:     r.Basic.Credential,
		Gender:          r.Basic.Gender,
		EnumerationDate: r.Basic.EnumerationDate,
	}

	// Prefer the practice location; fall back to the first address.
	for _, addr := range r.Addresses {
		if addr.AddressPurpose == "LOCATION" {
			rec.PracticeLocation = domain.PracticeLocation{
				Address:    addr.Address1,
				City:       addr.City,
				State:      addr.State,
				PostalCode: addr.PostalCode,
				Country:    addr.CountryCode,
			}
			break
		}
	}
	if rec.PracticeLocation == (domain.PracticeLocation{}) && len(r.Addresses) > 0 {
		addr := r.Addresses[0]
		rec.PracticeLocation = domain.PracticeLocation{
			Address:    addr.Address1,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.CountryCode,
		}
	}

	for _, t := range r.Taxonomies {
		rec.Taxonomies = append(rec.Taxonomies, domain.Taxonomy{
			Code:        t.Code,
			Description: t.Desc,
			License:     t.License,
			State:       t.State,
		})
		if t.Primary && rec.Specialty == "" {
			rec.Specialty = t.Desc
		}
	}
	if rec.Specialty == "" && len(r.Taxonomies) > 0 {
		rec.Specialty = r.Taxonomies[0].Desc
	}

	return rec
}
