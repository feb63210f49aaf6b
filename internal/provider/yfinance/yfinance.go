// Package yfinance adapts the public Yahoo Finance chart API. It needs no
// credentials.
package yfinance

import (
	"dataplatform/internal/provider"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

const Name = "yfinance"

func init() { provider.RegisterPlugin(Name, New) }

func New(deps provider.Deps) provider.Provider {
	client := NewClient(deps.Doer(Name), deps.URL(Name, baseURL))
	limit := deps.Limit(Name)
	return provider.Provider{
		Name:        Name,
		Description: "Yahoo Finance public chart data.",
		Website:     "https://finance.yahoo.com",
		Fetchers: []provider.Entry{
			provider.Erase[HistoricalQuery, []SymbolChart](NewHistoricalFetcher(standard.EquityHistorical, client, limit)),
			provider.Erase[HistoricalQuery, []SymbolChart](NewHistoricalFetcher(standard.CryptoHistorical, client, limit)),
			provider.Erase[QuoteQuery, []SymbolChart](NewQuoteFetcher(client, limit)),
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
