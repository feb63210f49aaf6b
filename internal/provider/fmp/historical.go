package fmp

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/provider/tradingdays"
	"dataplatform/internal/result"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

// HistoricalQuery is the FMP query of the equity and crypto price endpoints.
type HistoricalQuery struct {
	Symbols    []string  `param:"symbol"`
	StartDate  time.Time `param:"start_date"`
	EndDate    time.Time `param:"end_date"`
	Timeseries int       `param:"timeseries"`
}

// SymbolBars is the outcome of one per-symbol request.
type SymbolBars struct {
	Symbol  string
	Records []map[string]any
	Err     error
}

type HistoricalData struct {
	Symbols []SymbolBars
}

// HistoricalFetcher serves daily bars. Equity ranges without a session day
// on the symbol's exchange calendar are answered without I/O.
type HistoricalFetcher struct {
	info     provider.Info
	data     schema.Model
	client   *FMPAPIClient
	limit    int
	calendar bool
}

func NewHistoricalFetcher(endpoint string, client *FMPAPIClient, limit int) *HistoricalFetcher {
	info := provider.Info{
		Provider:           Name,
		Endpoint:           endpoint,
		Description:        "Daily OHLCV bars from /historical-price-full.",
		RequireCredentials: true,
		QueryExtra: []schema.Field{
			{Name: "timeseries", Type: schema.Int, Optional: true, Description: "Number of most recent records to return."},
		},
		DataExtra: []schema.Field{
			{Name: "adj_close", Type: schema.Float, Optional: true, Description: "The adjusted close price.", Unit: "currency"},
			{Name: "unadjusted_volume", Type: schema.Float, Optional: true, Description: "Unadjusted volume of the symbol."},
			{Name: "change", Type: schema.Float, Optional: true, Description: "Change in the price from the previous close.", Unit: "currency"},
			{Name: "change_percent", Type: schema.Float, Optional: true, Description: "Change in the price from the previous close, as a normalized percent.", Unit: "percent", FrontendMultiply: 100},
		},
		Multiple:     []string{"symbol"},
		QueryAliases: schema.Aliases{"start_date": "from", "end_date": "to"},
		DataAliases:  schema.Aliases{"adj_close": "adjClose", "unadjusted_volume": "unadjustedVolume", "change_percent": "changePercent"},
	}
	return &HistoricalFetcher{
		info:     info,
		data:     dataModel(info),
		client:   client,
		limit:    limit,
		calendar: endpoint == standard.EquityHistorical,
	}
}

func (f *HistoricalFetcher) Info() provider.Info { return f.info }

func (f *HistoricalFetcher) TransformQuery(p provider.Params) (HistoricalQuery, error) {
	var q HistoricalQuery
	if err := p.Decode(&q); err != nil {
		return q, fault.Wrap(fault.InvalidParams, err, "decoding query").WithProvider(Name)
	}
	for i, s := range q.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if !f.calendar {
			s = strings.NewReplacer("-", "", "/", "").Replace(s)
		}
		q.Symbols[i] = s
	}
	if len(q.Symbols) == 0 {
		return q, fault.Field(fault.InvalidParams, "symbol", "missing required parameter")
	}
	if q.EndDate.IsZero() {
		q.EndDate = today()
	}
	if q.StartDate.IsZero() {
		q.StartDate = q.EndDate.AddDate(-1, 0, 0)
	}
	if q.StartDate.After(q.EndDate) {
		return q, fault.Field(fault.InvalidParams, "start_date", "start_date %s is after end_date %s",
			q.StartDate.Format(schema.DateLayout), q.EndDate.Format(schema.DateLayout))
	}
	return q, nil
}

func (f *HistoricalFetcher) ExtractData(ctx context.Context, q HistoricalQuery, creds credentials.Set) (HistoricalData, error) {
	key := creds[CredentialKey]
	recs, errs, err := provider.FanOut(ctx, q.Symbols, f.limit, func(ctx context.Context, sym string) ([]map[string]any, error) {
		if f.calendar && !tradingdays.For(tradingdays.MIC(sym)).HasBusinessDay(q.StartDate, q.EndDate) {
			return nil, nil
		}
		return f.client.HistoricalPriceFull(ctx, key, sym, q.StartDate, q.EndDate, q.Timeseries)
	})
	if err != nil {
		return HistoricalData{}, err
	}
	out := HistoricalData{Symbols: make([]SymbolBars, len(q.Symbols))}
	var firstErr error
	succeeded := false
	for i, sym := range q.Symbols {
		out.Symbols[i] = SymbolBars{Symbol: sym, Records: recs[i], Err: errs[i]}
		if errs[i] == nil {
			succeeded = true
		} else if firstErr == nil {
			firstErr = errs[i]
		}
	}
	// With nothing to show, surface the failure so the retry policy applies.
	if !succeeded {
		return HistoricalData{}, firstErr
	}
	return out, nil
}

func (f *HistoricalFetcher) TransformData(q HistoricalQuery, raw HistoricalData) (*provider.AnnotatedResult, error) {
	res := &provider.AnnotatedResult{Metadata: map[string]any{}}
	for _, s := range raw.Symbols {
		if s.Err != nil {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: fmt.Sprintf("%s: %v", s.Symbol, s.Err)})
			continue
		}
		if len(s.Records) == 0 {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: "no data found for symbol " + s.Symbol})
			continue
		}
		recs := slices.Clone(s.Records)
		slices.SortStableFunc(recs, func(a, b map[string]any) int {
			return strings.Compare(fmt.Sprint(a["date"]), fmt.Sprint(b["date"]))
		})
		for i, r := range recs {
			c := make(map[string]any, len(r)+1)
			for k, v := range r {
				c[k] = v
			}
			c["symbol"] = s.Symbol
			if v, ok := c["changePercent"]; ok {
				c["changePercent"] = percent(v)
			}
			recs[i] = c
		}
		rows, err := provider.Rows(f.data, f.info.DataAliases, recs, "historical."+s.Symbol)
		if err != nil {
			return nil, fault.As(err).WithProvider(Name)
		}
		res.Rows = append(res.Rows, rows...)
		res.Metadata[s.Symbol] = map[string]any{"records": len(rows)}
	}
	if err := provider.EmptyIfNone(Name, res.Rows, "no data found for %s between %s and %s",
		strings.Join(q.Symbols, ","), q.StartDate.Format(schema.DateLayout), q.EndDate.Format(schema.DateLayout)); err != nil {
		return nil, err
	}
	return res, nil
}
