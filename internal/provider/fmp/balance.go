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

type BalanceSheetQuery struct {
	Symbol string `param:"symbol"`
	Period string `param:"period"`
	Limit  int    `param:"limit"`
}

type BalanceSheetFetcher struct {
	info   provider.Info
	data   schema.Model
	client *FMPAPIClient
}

func NewBalanceSheetFetcher(client *FMPAPIClient) *BalanceSheetFetcher {
	info := provider.Info{
		Provider:           Name,
		Endpoint:           standard.BalanceSheet,
		Description:        "Balance sheet statements from /balance-sheet-statement.",
		RequireCredentials: true,
		DataExtra: []schema.Field{
			{Name: "filing_date", Type: schema.DateType, Optional: true, Description: "The date the statement was filed."},
			{Name: "total_current_assets", Type: schema.Decimal, Optional: true, Description: "Total current assets.", Unit: "currency"},
			{Name: "total_current_liabilities", Type: schema.Decimal, Optional: true, Description: "Total current liabilities.", Unit: "currency"},
			{Name: "long_term_debt", Type: schema.Decimal, Optional: true, Description: "Long term debt.", Unit: "currency"},
		},
		DataAliases: schema.Aliases{
			"period_ending":             "date",
			"fiscal_period":             "period",
			"fiscal_year":               "calendarYear",
			"currency":                  "reportedCurrency",
			"filing_date":               "fillingDate",
			"cash_and_equivalents":      "cashAndCashEquivalents",
			"total_assets":              "totalAssets",
			"total_liabilities":         "totalLiabilities",
			"total_equity":              "totalStockholdersEquity",
			"total_current_assets":      "totalCurrentAssets",
			"total_current_liabilities": "totalCurrentLiabilities",
			"long_term_debt":            "longTermDebt",
		},
	}
	return &BalanceSheetFetcher{info: info, data: dataModel(info), client: client}
}

func (f *BalanceSheetFetcher) Info() provider.Info { return f.info }

func (f *BalanceSheetFetcher) TransformQuery(p provider.Params) (BalanceSheetQuery, error) {
	var q BalanceSheetQuery
	if err := p.Decode(&q); err != nil {
		return q, fault.Wrap(fault.InvalidParams, err, "decoding query").WithProvider(Name)
	}
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	if q.Symbol == "" {
		return q, fault.Field(fault.InvalidParams, "symbol", "missing required parameter")
	}
	if q.Period == "" {
		q.Period = "annual"
	}
	if q.Limit < 0 {
		return q, fault.Field(fault.InvalidParams, "limit", "limit must not be negative")
	}
	return q, nil
}

func (f *BalanceSheetFetcher) ExtractData(ctx context.Context, q BalanceSheetQuery, creds credentials.Set) ([]map[string]any, error) {
	return f.client.BalanceSheet(ctx, creds[CredentialKey], q.Symbol, q.Period, q.Limit)
}

// TransformData keeps the upstream newest-first order and marks the
// reporting period as the row index.
func (f *BalanceSheetFetcher) TransformData(q BalanceSheetQuery, raw []map[string]any) (*provider.AnnotatedResult, error) {
	rows, err := provider.Rows(f.data, f.info.DataAliases, raw, "balance")
	if err != nil {
		return nil, fault.As(err).WithProvider(Name)
	}
	if err := provider.EmptyIfNone(Name, rows, "no balance sheet found for %s", q.Symbol); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Index = []string{"period_ending"}
	}
	return &provider.AnnotatedResult{Rows: rows}, nil
}
