// Package crypto binds the crypto commands.
package crypto

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
			Path:        "crypto/price/historical",
			Endpoint:    standard.CryptoHistorical,
			Description: "Historical daily OHLCV bars for crypto pairs.",
			Examples: []router.Example{
				{Params: map[string]any{"symbol": "BTCUSD"}},
				{Description: "Pairs may be written with a separator.", Params: map[string]any{"symbol": "BTC/USD,ETH-USD", "provider": "yfinance"}},
			},
			Widget:  map[string]any{"type": "chart", "x": "date", "y": "close"},
			Handler: pairs,
		},
	}
}

// pairs rewrites BTC/USD as BTC-USD; providers pick their own form from
// there.
func pairs(ctx context.Context, q router.Query, exec router.Executor) (*result.Envelope, error) {
	if s, ok := q.Params["symbol"].(string); ok {
		params := make(map[string]any, len(q.Params))
		for k, v := range q.Params {
			params[k] = v
		}
		params["symbol"] = strings.ToUpper(strings.ReplaceAll(s, "/", "-"))
		q.Params = params
	}
	return exec(ctx, q)
}
