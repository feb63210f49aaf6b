// Package fmp adapts Financial Modeling Prep to the standard endpoints.
package fmp

import (
	"encoding/json"
	"time"

	"dataplatform/internal/provider"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

const (
	Name          = "fmp"
	CredentialKey = "fmp_api_key"
)

func init() { provider.RegisterPlugin(Name, New) }

// New builds the provider bundle.
func New(deps provider.Deps) provider.Provider {
	client := NewFMPAPIClient(WithBaseURL(deps.URL(Name, baseURL)), WithHTTPClient(deps.Doer(Name)))
	limit := deps.Limit(Name)
	return provider.Provider{
		Name:        Name,
		Description: "Financial Modeling Prep: equities, crypto, fundamentals and news.",
		Website:     "https://financialmodelingprep.com",
		Credentials: []string{CredentialKey},
		Fetchers: []provider.Entry{
			provider.Erase[HistoricalQuery, HistoricalData](NewHistoricalFetcher(standard.EquityHistorical, client, limit)),
			provider.Erase[HistoricalQuery, HistoricalData](NewHistoricalFetcher(standard.CryptoHistorical, client, limit)),
			provider.Erase[QuoteQuery, []map[string]any](NewQuoteFetcher(client)),
			provider.Erase[BalanceSheetQuery, []map[string]any](NewBalanceSheetFetcher(client)),
			provider.Erase[NewsQuery, []map[string]any](NewNewsFetcher(client)),
		},
	}
}

func dataModel(info provider.Info) schema.Model {
	m, err := info.DataModel(standard.Data(info.Endpoint))
	if err != nil {
		panic(err)
	}
	return m
}

// percent turns an FMP percentage such as 1.25 into the normalized 0.0125.
func percent(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f / 100
		}
	case float64:
		return x / 100
	}
	return v
}

var now = time.Now

func today() time.Time {
	t := now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
