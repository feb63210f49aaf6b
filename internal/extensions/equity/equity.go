// Package equity binds the equity commands.
package equity

import (
	"context"
	"strings"

	"dataplatform/internal/result"
	"dataplatform/internal/router"
	"dataplatform/internal/schema/standard"
)

func Commands() []router.Command {
	return []router.Command{
		{
			Path:        "equity/price/historical",
			Endpoint:    standard.EquityHistorical,
			Description: "Historical daily OHLCV bars for one or more equities.",
			Examples: []router.Example{
				{Params: map[string]any{"symbol": "AAPL", "provider": "fmp"}},
				{Description: "Several symbols over a fixed range.", Params: map[string]any{"symbol": "AAPL,MSFT", "start_date": "2024-01-02", "end_date": "2024-01-05"}},
			},
			Widget:  map[string]any{"type": "chart", "x": "date", "y": "close"},
			Handler: upperSymbols,
		},
		{
			Path:        "equity/price/quote",
			Endpoint:    standard.EquityQuote,
			Description: "Latest quote for one or more equities.",
			Examples:    []router.Example{{Params: map[string]any{"symbol": "AAPL,MSFT"}}},
			Widget:      map[string]any{"type": "table"},
			Handler:     upperSymbols,
		},
		{
			Path:        "equity/fundamental/balance",
			Endpoint:    standard.BalanceSheet,
			Description: "Balance sheet statements of a company.",
			Examples:    []router.Example{{Params: map[string]any{"symbol": "AAPL", "period": "quarter", "limit": 4}}},
			Widget:      map[string]any{"type": "table"},
			Handler:     upperSymbols,
		},
	}
}

// upperSymbols normalizes a string symbol parameter before dispatch.
func upperSymbols(ctx context.Context, q router.Query, exec router.Executor) (*result.Envelope, error) {
	if s, ok := q.Params["symbol"].(string); ok {
		params := make(map[string]any, len(q.Params))
		for k, v := range q.Params {
			params[k] = v
		}
		params["symbol"] = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
		q.Params = params
	}
	return exec(ctx, q)
}
