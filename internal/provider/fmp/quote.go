package fmp

import (
	"context"
	"strings"

	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/result"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

type QuoteQuery struct {
	Symbols []string `param:"symbol"`
}

// QuoteFetcher batches every symbol into one /quote request.
type QuoteFetcher struct {
	info   provider.Info
	data   schema.Model
	client *FMPAPIClient
}

func NewQuoteFetcher(client *FMPAPIClient) *QuoteFetcher {
	info := provider.Info{
		Provider:           Name,
		Endpoint:           standard.EquityQuote,
		Description:        "Latest quotes from /quote.",
		RequireCredentials: true,
		DataExtra: []schema.Field{
			{Name: "exchange", Type: schema.String, Optional: true, Description: "Exchange the symbol is listed on."},
			{Name: "open", Type: schema.Float, Optional: true, Description: "Open price of the current trading day.", Unit: "currency"},
			{Name: "previous_close", Type: schema.Float, Optional: true, Description: "Close price of the previous trading day.", Unit: "currency"},
			{Name: "day_low", Type: schema.Float, Optional: true, Description: "Low price of the current trading day.", Unit: "currency"},
			{Name: "day_high", Type: schema.Float, Optional: true, Description: "High price of the current trading day.", Unit: "currency"},
			{Name: "market_cap", Type: schema.Float, Optional: true, Description: "Market capitalization.", Unit: "currency"},
		},
		Multiple: []string{"symbol"},
		DataAliases: schema.Aliases{
			"last_price":     "price",
			"change_percent": "changesPercentage",
			"previous_close": "previousClose",
			"day_low":        "dayLow",
			"day_high":       "dayHigh",
			"market_cap":     "marketCap",
		},
	}
	return &QuoteFetcher{info: info, data: dataModel(info), client: client}
}

func (f *QuoteFetcher) Info() provider.Info { return f.info }

func (f *QuoteFetcher) TransformQuery(p provider.Params) (QuoteQuery, error) {
	var q QuoteQuery
	if err := p.Decode(&q); err != nil {
		return q, fault.Wrap(fault.InvalidParams, err, "decoding query").WithProvider(Name)
	}
	for i, s := range q.Symbols {
		q.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if len(q.Symbols) == 0 {
		return q, fault.Field(fault.InvalidParams, "symbol", "missing required parameter")
	}
	return q, nil
}

func (f *QuoteFetcher) ExtractData(ctx context.Context, q QuoteQuery, creds credentials.Set) ([]map[string]any, error) {
	return f.client.Quote(ctx, creds[CredentialKey], q.Symbols)
}

// TransformData orders quotes as the symbols were requested.
func (f *QuoteFetcher) TransformData(q QuoteQuery, raw []map[string]any) (*provider.AnnotatedResult, error) {
	bySymbol := make(map[string]map[string]any, len(raw))
	for _, r := range raw {
		sym, _ := r["symbol"].(string)
		c := make(map[string]any, len(r))
		for k, v := range r {
			c[k] = v
		}
		if v, ok := c["changesPercentage"]; ok {
			c["changesPercentage"] = percent(v)
		}
		bySymbol[strings.ToUpper(sym)] = c
	}
	res := &provider.AnnotatedResult{}
	var recs []map[string]any
	for _, s := range q.Symbols {
		r, ok := bySymbol[s]
		if !ok {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: "no quote found for symbol " + s})
			continue
		}
		recs = append(recs, r)
	}
	rows, err := provider.Rows(f.data, f.info.DataAliases, recs, "quote")
	if err != nil {
		return nil, fault.As(err).WithProvider(Name)
	}
	if err := provider.EmptyIfNone(Name, rows, "no quotes found for %s", strings.Join(q.Symbols, ",")); err != nil {
		return nil, err
	}
	res.Rows = rows
	return res, nil
}
