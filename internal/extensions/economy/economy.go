// Package economy binds the economy commands.
package economy

import (
	"dataplatform/internal/router"
	"dataplatform/internal/schema/standard"
)

func Commands() []router.Command {
	return []router.Command{
		{
			Path:        "economy/fred_series",
			Endpoint:    standard.FredSeries,
			Description: "Observations of one or more FRED series.",
			Examples: []router.Example{
				{Params: map[string]any{"symbol": "UNRATE"}},
				{Description: "Monthly percent change of CPI.", Params: map[string]any{"symbol": "CPIAUCSL", "transform": "pch", "frequency": "m"}},
			},
			Widget: map[string]any{"type": "chart", "x": "date", "y": "value"},
		},
	}
}
