// Package standard authors the standard endpoint catalog.
package standard

import (
	"sync"

	"dataplatform/internal/schema"
)

const (
	EquityHistorical = "EquityHistorical"
	CryptoHistorical = "CryptoHistorical"
	EquityQuote      = "EquityQuote"
	CompanyNews      = "CompanyNews"
	BalanceSheet     = "BalanceSheet"
	FredSeries       = "FredSeries"
)

var (
	symbol = schema.Field{Name: "symbol", Type: schema.String, Description: "Symbol to get data for."}

	startDate = schema.Field{Name: "start_date", Type: schema.DateType, Optional: true, Description: "Start date of the data, in YYYY-MM-DD format."}
	endDate   = schema.Field{Name: "end_date", Type: schema.DateType, Optional: true, Description: "End date of the data, in YYYY-MM-DD format."}

	rowSymbol = schema.Field{Name: "symbol", Type: schema.String, Optional: true, Description: "Symbol representing the entity requested in the data."}
)

func priceBars() []schema.Field {
	return []schema.Field{
		{Name: "date", Type: schema.DateType, Description: "The date of the data."},
		rowSymbol,
		{Name: "open", Type: schema.Float, Description: "The open price.", Unit: "currency"},
		{Name: "high", Type: schema.Float, Description: "The high price.", Unit: "currency"},
		{Name: "low", Type: schema.Float, Description: "The low price.", Unit: "currency"},
		{Name: "close", Type: schema.Float, Description: "The close price.", Unit: "currency"},
		{Name: "volume", Type: schema.Float, Optional: true, Description: "The trading volume."},
		{Name: "vwap", Type: schema.Float, Optional: true, Description: "Volume Weighted Average Price over the period.", Unit: "currency"},
	}
}

// Endpoints returns the authored catalog.
func Endpoints() []schema.Endpoint {
	return []schema.Endpoint{
		{
			Name:        EquityHistorical,
			Description: "Historical OHLCV bars for equities.",
			Query:       schema.Model{Fields: []schema.Field{symbol, startDate, endDate}},
			Data:        schema.Model{Fields: priceBars()},
		},
		{
			Name:        CryptoHistorical,
			Description: "Historical OHLCV bars for crypto pairs.",
			Query: schema.Model{Fields: []schema.Field{
				{Name: "symbol", Type: schema.String, Description: "Symbol to get data for. Can use CURR1-CURR2 or CURR1CURR2 format."},
				startDate, endDate,
			}},
			Data: schema.Model{Fields: priceBars()},
		},
		{
			Name:        EquityQuote,
			Description: "Latest quote for one or more equities.",
			Query:       schema.Model{Fields: []schema.Field{symbol}},
			Data: schema.Model{Fields: []schema.Field{
				{Name: "symbol", Type: schema.String, Description: "Symbol representing the entity requested in the data."},
				{Name: "name", Type: schema.String, Optional: true, Description: "Name of the company or asset."},
				{Name: "last_price", Type: schema.Float, Description: "Price of the last trade.", Unit: "currency"},
				{Name: "change", Type: schema.Float, Optional: true, Description: "Change in price from previous close.", Unit: "currency"},
				{Name: "change_percent", Type: schema.Float, Optional: true, Description: "Change in price as a normalized percentage.", Unit: "percent", FrontendMultiply: 100},
				{Name: "volume", Type: schema.Float, Optional: true, Description: "Volume of the current trading day."},
				{Name: "timestamp", Type: schema.DateTime, Optional: true, Description: "Time of the quote."},
			}},
		},
		{
			Name:        CompanyNews,
			Description: "News articles about one or more companies.",
			Query: schema.Model{Fields: []schema.Field{
				{Name: "symbol", Type: schema.String, Optional: true, Description: "Symbol to get data for."},
				{Name: "limit", Type: schema.Int, Optional: true, Default: int64(20), Description: "Number of articles to return."},
			}},
			Data: schema.Model{Fields: []schema.Field{
				{Name: "date", Type: schema.DateTime, Description: "The published date of the article."},
				{Name: "title", Type: schema.String, Description: "Title of the article."},
				{Name: "text", Type: schema.String, Optional: true, Description: "Text or summary of the article."},
				{Name: "url", Type: schema.String, Description: "URL to the article."},
				{Name: "symbols", Type: schema.String, Optional: true, Description: "Symbols associated with the article."},
				{Name: "source", Type: schema.String, Optional: true, Description: "Publisher of the article."},
			}},
		},
		{
			Name:        BalanceSheet,
			Description: "Balance sheet statements.",
			Query: schema.Model{Fields: []schema.Field{
				symbol,
				{Name: "period", Type: schema.Enum, Optional: true, Default: "annual", Choices: []string{"annual", "quarter"}, Description: "Time period of the data to return."},
				{Name: "limit", Type: schema.Int, Optional: true, Default: int64(5), Description: "The number of data entries to return."},
			}},
			Data: schema.Model{Fields: []schema.Field{
				{Name: "period_ending", Type: schema.DateType, Description: "The end date of the reporting period."},
				rowSymbol,
				{Name: "fiscal_period", Type: schema.String, Optional: true, Description: "The fiscal period of the report."},
				{Name: "fiscal_year", Type: schema.Int, Optional: true, Description: "The fiscal year of the fiscal period."},
				{Name: "currency", Type: schema.String, Optional: true, Description: "Reporting currency."},
				{Name: "cash_and_equivalents", Type: schema.Decimal, Optional: true, Description: "Cash and cash equivalents.", Unit: "currency"},
				{Name: "total_assets", Type: schema.Decimal, Optional: true, Description: "Total assets.", Unit: "currency"},
				{Name: "total_liabilities", Type: schema.Decimal, Optional: true, Description: "Total liabilities.", Unit: "currency"},
				{Name: "total_equity", Type: schema.Decimal, Optional: true, Description: "Total shareholders equity.", Unit: "currency"},
			}},
		},
		{
			Name:        FredSeries,
			Description: "Observations of FRED economic series.",
			Query: schema.Model{Fields: []schema.Field{
				{Name: "symbol", Type: schema.String, Description: "FRED series ID."},
				startDate, endDate,
				{Name: "limit", Type: schema.Int, Optional: true, Description: "The number of data entries to return."},
			}},
			Data: schema.Model{Fields: []schema.Field{
				{Name: "date", Type: schema.DateType, Description: "The date of the data."},
				{Name: "symbol", Type: schema.String, Description: "FRED series ID of the observation."},
				{Name: "value", Type: schema.Float, Optional: true, Description: "Value of the observation."},
			}},
		},
	}
}

// Registry returns a fresh registry holding the catalog.
func Registry() *schema.Registry {
	return schema.NewRegistry().MustRegister(Endpoints()...)
}

var catalog = sync.OnceValue(Registry)

// Default is the shared read-only catalog.
func Default() *schema.Registry { return catalog() }

// Data returns the standard data model of endpoint from the shared catalog.
// It panics on an unknown endpoint, which is a programming error.
func Data(endpoint string) schema.Model {
	m, err := Default().Data(endpoint)
	if err != nil {
		panic(err)
	}
	return m
}

// Query returns the standard query model of endpoint from the shared catalog.
func Query(endpoint string) schema.Model {
	m, err := Default().Query(endpoint)
	if err != nil {
		panic(err)
	}
	return m
}
