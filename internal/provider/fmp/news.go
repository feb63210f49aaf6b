package fmp

import (
	"context"
	"strings"

	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

type NewsQuery struct {
	Symbols []string `param:"symbol"`
	Limit   int      `param:"limit"`
}

type NewsFetcher struct {
	info   provider.Info
	data   schema.Model
	client *FMPAPIClient
}

func NewNewsFetcher(client *FMPAPIClient) *NewsFetcher {
	info := provider.Info{
		Provider:           Name,
		Endpoint:           standard.CompanyNews,
		Description:        "Company news from /stock_news.",
		RequireCredentials: true,
		DataExtra: []schema.Field{
			{Name: "image", Type: schema.String, Optional: true, Description: "URL of the article image."},
		},
		Multiple:    []string{"symbol"},
		DataAliases: schema.Aliases{"date": "publishedDate", "source": "site", "symbols": "symbol"},
	}
	return &NewsFetcher{info: info, data: dataModel(info), client: client}
}

func (f *NewsFetcher) Info() provider.Info { return f.info }

func (f *NewsFetcher) TransformQuery(p provider.Params) (NewsQuery, error) {
	var q NewsQuery
	if err := p.Decode(&q); err != nil {
		return q, fault.Wrap(fault.InvalidParams, err, "decoding query").WithProvider(Name)
	}
	for i, s := range q.Symbols {
		q.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q, nil
}

func (f *NewsFetcher) ExtractData(ctx context.Context, q NewsQuery, creds credentials.Set) ([]map[string]any, error) {
	return f.client.StockNews(ctx, creds[CredentialKey], q.Symbols, q.Limit)
}

func (f *NewsFetcher) TransformData(q NewsQuery, raw []map[string]any) (*provider.AnnotatedResult, error) {
	rows, err := provider.Rows(f.data, f.info.DataAliases, raw, "news")
	if err != nil {
		return nil, fault.As(err).WithProvider(Name)
	}
	if err := provider.EmptyIfNone(Name, rows, "no news found for %s", strings.Join(q.Symbols, ",")); err != nil {
		return nil, err
	}
	return &provider.AnnotatedResult{Rows: rows}, nil
}
