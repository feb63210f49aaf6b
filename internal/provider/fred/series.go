package fred

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/result"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

type SeriesQuery struct {
	Symbols   []string  `param:"symbol"`
	StartDate time.Time `param:"start_date"`
	EndDate   time.Time `param:"end_date"`
	Limit     int       `param:"limit"`
	Frequency string    `param:"frequency"`
	Transform string    `param:"transform"`
}

// SeriesData is what one series id produced.
type SeriesData struct {
	ID           string
	Series       *Series
	Observations []Observation
	Err          error
}

type SeriesFetcher struct {
	info   provider.Info
	data   schema.Model
	client *Client
	limit  int
}

func NewSeriesFetcher(client *Client, limit int) *SeriesFetcher {
	info := provider.Info{
		Provider:           Name,
		Endpoint:           standard.FredSeries,
		Description:        "Observations of one or more FRED series with their metadata.",
		RequireCredentials: true,
		QueryExtra: []schema.Field{
			{Name: "frequency", Type: schema.String, Optional: true, Description: "Aggregate observations to a lower frequency."},
			{Name: "transform", Type: schema.String, Optional: true, Description: "Transformation applied to the values, such as pch for percent change."},
		},
		Multiple: []string{"symbol"},
		Choices: map[string][]string{
			"frequency": {"d", "w", "bw", "m", "q", "sa", "a"},
			"transform": {"lin", "chg", "ch1", "pch", "pc1", "pca", "cch", "cca", "log"},
		},
	}
	m, err := info.DataModel(standard.Data(info.Endpoint))
	if err != nil {
		panic(err)
	}
	return &SeriesFetcher{info: info, data: m, client: client, limit: limit}
}

func (f *SeriesFetcher) Info() provider.Info { return f.info }

func (f *SeriesFetcher) TransformQuery(p provider.Params) (SeriesQuery, error) {
	var q SeriesQuery
	if err := p.Decode(&q); err != nil {
		return q, fault.Wrap(fault.InvalidParams, err, "decoding query").WithProvider(Name)
	}
	for i, s := range q.Symbols {
		q.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if len(q.Symbols) == 0 {
		return q, fault.Field(fault.InvalidParams, "symbol", "missing required parameter")
	}
	if q.Limit < 0 {
		return q, fault.Field(fault.InvalidParams, "limit", "must not be negative")
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.StartDate.After(q.EndDate) {
		return q, fault.Field(fault.InvalidParams, "start_date", "start_date is after end_date")
	}
	return q, nil
}

func (f *SeriesFetcher) ExtractData(ctx context.Context, q SeriesQuery, creds credentials.Set) ([]SeriesData, error) {
	key := creds[CredentialKey]
	opts := ObservationOptions{Start: q.StartDate, End: q.EndDate, Limit: q.Limit, Frequency: q.Frequency, Transform: q.Transform}
	got, errs, err := provider.FanOut(ctx, q.Symbols, f.limit, func(ctx context.Context, id string) (SeriesData, error) {
		obs, err := f.client.Observations(ctx, key, id, opts)
		if err != nil || obs == nil {
			return SeriesData{ID: id}, err
		}
		s, err := f.client.Series(ctx, key, id)
		return SeriesData{ID: id, Series: s, Observations: obs}, err
	})
	if err != nil {
		return nil, err
	}
	var firstErr error
	ok := false
	for i := range got {
		got[i].ID = q.Symbols[i]
		got[i].Err = errs[i]
		if errs[i] == nil {
			ok = true
		} else if firstErr == nil {
			firstErr = errs[i]
		}
	}
	if !ok {
		return nil, firstErr
	}
	return got, nil
}

func (f *SeriesFetcher) TransformData(q SeriesQuery, raw []SeriesData) (*provider.AnnotatedResult, error) {
	res := &provider.AnnotatedResult{Metadata: map[string]any{}}
	for _, sd := range raw {
		if sd.Err != nil {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: fmt.Sprintf("%s: %v", sd.ID, sd.Err)})
			continue
		}
		if len(sd.Observations) == 0 {
			res.Warnings = append(res.Warnings, result.Warning{Category: result.Partial, Message: "no observations found for series " + sd.ID})
			continue
		}
		recs := make([]map[string]any, 0, len(sd.Observations))
		for _, o := range sd.Observations {
			rec := map[string]any{"date": o.Date, "symbol": sd.ID}
			if o.Value != "." && o.Value != "" {
				rec["value"] = o.Value
			}
			recs = append(recs, rec)
		}
		rows, err := provider.Rows(f.data, nil, recs, "observations."+sd.ID)
		if err != nil {
			return nil, fault.As(err).WithProvider(Name)
		}
		slices.SortStableFunc(rows, func(a, b schema.Row) int {
			ta, _ := a.Time("date")
			tb, _ := b.Time("date")
			return ta.Compare(tb)
		})
		res.Rows = append(res.Rows, rows...)
		if s := sd.Series; s != nil {
			res.Metadata[sd.ID] = map[string]any{
				"title":               s.Title,
				"units":               s.Units,
				"frequency":           s.Frequency,
				"seasonal_adjustment": s.SeasonalAdjustment,
				"last_updated":        s.LastUpdated,
			}
		}
	}
	if err := provider.EmptyIfNone(Name, res.Rows, "no observations found for %s", strings.Join(q.Symbols, ",")); err != nil {
		return nil, err
	}
	return res, nil
}
