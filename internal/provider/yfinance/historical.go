package yfinance

import (
	"context"
	"fmt"
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

type HistoricalQuery struct {
	Symbols   []string  `param:"symbol"`
	StartDate time.Time `param:"start_date"`
	EndDate   time.Time `param:"end_date"`
	Interval  string    `param:"interval"`
}

// SymbolChart is the outcome of one per-symbol request.
type SymbolChart struct {
	Symbol string
	Result *ChartResult
	Err    error
}

type HistoricalFetcher struct {
	info     provider.Info
	data     schema.Model
	client   *Client
	limit    int
	calendar bool
	now      func() time.Time
}

func NewHistoricalFetcher(endpoint string, client *Client, limit int) *HistoricalFetcher {
	info := provider.Info{
		Provider:    Name,
		Endpoint:    endpoint,
		Description: "OHLCV bars from the chart API.",
		QueryExtra: []schema.Field{
			{Name: "interval", Type: schema.String, Optional: true, Default: "1d", Description: "Time interval of the data to return."},
		},
		DataExtra: []schema.Field{
			{Name: "adj_close", Type: schema.Float, Optional: true, Description: "The adjusted close price.", Unit: "currency"},
		},
		Multiple: []string{"symbol"},
		Choices:  map[string][]string{"interval": {"1d", "1wk", "1mo"}},
	}
	return &HistoricalFetcher{
		info:     info,
		data:     dataModel(info),
		client:   client,
		limit:    limit,
		calendar: endpoint == standard.EquityHistorical,
		now:      time.Now,
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
		if !f.calendar && !strings.Contains(s, "-") && len(s) > 3 {
			// BTCUSD -> BTC-USD
			s = s[:len(s)-3] + "-" + s[len(s)-3:]
		}
		q.Symbols[i] = s
	}
	if len(q.Symbols) == 0 {
		return q, fault.Field(fault.InvalidParams, "symbol", "missing required parameter")
	}
	if q.Interval == "" {
		q.Interval = "1d"
	}
	if q.EndDate.IsZero() {
		t := f.now().UTC()
		q.EndDate = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	if q.StartDate.IsZero() {
		q.StartDate = q.EndDate.AddDate(-1, 0, 0)
	}
	if q.StartDate.After(q.EndDate) {
		return q, fault.Field(fault.InvalidParams, "start_date", "start_date is after end_date")
	}
	return q, nil
}

func (f *HistoricalFetcher) ExtractData(ctx context.Context, q HistoricalQuery, _ credentials.Set) ([]SymbolChart, error) {
	charts, errs, err := provider.FanOut(ctx, q.Symbols, f.limit, func(ctx context.Context, sym string) (*ChartResult, error) {
		if f.calendar && !tradingdays.For(tradingdays.MIC(sym)).HasBusinessDay(q.StartDate, q.EndDate) {
			return nil, nil
		}
		return f.client.ChartRange(ctx, sym, q.StartDate, q.EndDate, q.Interval)
	})
	if err != nil {
		return nil, err
	}
	return collect(q.Symbols, charts, errs)
}

// collect zips per-symbol outcomes. With no success at all the first error
// is returned so the retry policy sees it.
func collect(symbols []string, charts []*ChartResult, errs []error) ([]SymbolChart, error) {
	out := make([]SymbolChart, len(symbols))
	var firstErr error
	ok := false
	for i, s := range symbols {
		out[i] = SymbolChart{Symbol: s, Result: charts[i], Err: errs[i]}
		if errs[i] == nil {
			ok = true
		} else if firstErr == nil {
			firstErr = errs[i]
		}
	}
	if !ok {
		return nil, firstErr
	}
	return out, nil
}

func (f *HistoricalFetcher) TransformData(q HistoricalQuery, raw []SymbolChart) (*provider.AnnotatedResult, error) {
	res := &provider.AnnotatedResult{Metadata: map[string]any{}}
	for _, sc := range raw {
		if sc.Err != nil {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: fmt.Sprintf("%s: %v", sc.Symbol, sc.Err)})
			continue
		}
		recs := bars(sc)
		if len(recs) == 0 {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: "no data found for symbol " + sc.Symbol})
			continue
		}
		rows, err := provider.Rows(f.data, nil, recs, "chart."+sc.Symbol)
		if err != nil {
			return nil, fault.As(err).WithProvider(Name)
		}
		res.Rows = append(res.Rows, rows...)
		m := sc.Result.Meta
		res.Metadata[sc.Symbol] = map[string]any{"currency": m.Currency, "exchange": m.ExchangeName, "timezone": m.Timezone}
	}
	if err := provider.EmptyIfNone(Name, res.Rows, "no data found for %s", strings.Join(q.Symbols, ",")); err != nil {
		return nil, err
	}
	return res, nil
}

// bars turns the column-oriented chart into records, skipping bars whose
// prices are null (halted or holiday sessions). Timestamps are shifted to
// the exchange's local day.
func bars(sc SymbolChart) []map[string]any {
	if sc.Result == nil || len(sc.Result.Indicators.Quote) == 0 {
		return nil
	}
	r := sc.Result
	qt := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}
	at := func(s []*float64, i int) *float64 {
		if i < len(s) {
			return s[i]
		}
		return nil
	}
	var out []map[string]any
	for i, ts := range r.Timestamp {
		o, h, l, c := at(qt.Open, i), at(qt.High, i), at(qt.Low, i), at(qt.Close, i)
		if o == nil || h == nil || l == nil || c == nil {
			continue
		}
		day := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		rec := map[string]any{
			"date":   day.Format(schema.DateLayout),
			"symbol": sc.Symbol,
			"open":   *o,
			"high":   *h,
			"low":    *l,
			"close":  *c,
		}
		if v := at(qt.Volume, i); v != nil {
			rec["volume"] = *v
		}
		if v := at(adj, i); v != nil {
			rec["adj_close"] = *v
		}
		out = append(out, rec)
	}
	return out
}
