package yfinance

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// QuoteFetcher reads the quote off the chart meta of the current session.
type QuoteFetcher struct {
	info   provider.Info
	data   schema.Model
	client *Client
	limit  int
}

func NewQuoteFetcher(client *Client, limit int) *QuoteFetcher {
	info := provider.Info{
		Provider:    Name,
		Endpoint:    standard.EquityQuote,
		Description: "Latest quote from the chart API meta block.",
		DataExtra: []schema.Field{
			{Name: "currency", Type: schema.String, Optional: true, Description: "Currency of the price."},
			{Name: "exchange", Type: schema.String, Optional: true, Description: "Exchange the symbol is listed on."},
			{Name: "previous_close", Type: schema.Float, Optional: true, Description: "Close price of the previous trading day.", Unit: "currency"},
		},
		Multiple: []string{"symbol"},
	}
	return &QuoteFetcher{info: info, data: dataModel(info), client: client, limit: limit}
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

func (f *QuoteFetcher) ExtractData(ctx context.Context, q QuoteQuery, _ credentials.Set) ([]SymbolChart, error) {
	charts, errs, err := provider.FanOut(ctx, q.Symbols, f.limit, f.client.ChartLatest)
	if err != nil {
		return nil, err
	}
	return collect(q.Symbols, charts, errs)
}

func (f *QuoteFetcher) TransformData(q QuoteQuery, raw []SymbolChart) (*provider.AnnotatedResult, error) {
	res := &provider.AnnotatedResult{}
	var recs []map[string]any
	for _, sc := range raw {
		if sc.Err != nil {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: fmt.Sprintf("%s: %v", sc.Symbol, sc.Err)})
			continue
		}
		if sc.Result == nil || sc.Result.Meta.RegularMarketPrice == nil {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: "no quote found for symbol " + sc.Symbol})
			continue
		}
		m := sc.Result.Meta
		name := m.LongName
		if name == "" {
			name = m.ShortName
		}
		rec := map[string]any{
			"symbol":     sc.Symbol,
			"name":       name,
			"last_price": *m.RegularMarketPrice,
			"currency":   m.Currency,
			"exchange":   m.ExchangeName,
		}
		if m.RegularMarketTime > 0 {
			rec["timestamp"] = time.Unix(m.RegularMarketTime, 0).UTC()
		}
		if m.RegularMarketVol != nil {
			rec["volume"] = *m.RegularMarketVol
		}
		if pc := m.PreviousClose; pc != nil && *pc != 0 {
			rec["previous_close"] = *pc
			rec["change"] = *m.RegularMarketPrice - *pc
			rec["change_percent"] = (*m.RegularMarketPrice - *pc) / *pc
		}
		recs = append(recs, rec)
	}
	rows, err := provider.Rows(f.data, nil, recs, "quote")
	if err != nil {
		return nil, fault.As(err).WithProvider(Name)
	}
	if err := provider.EmptyIfNone(Name, rows, "no quotes found for %s", strings.Join(q.Symbols, ",")); err != nil {
		return nil, err
	}
	res.Rows = rows
	return res, nil
}
