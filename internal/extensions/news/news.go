// Package news binds the news commands.
package news

import (
	"dataplatform/internal/router"
	"dataplatform/internal/schema/standard"
)

func Commands() []router.Command {
	return []router.Command{
		{
			Path:        "news/company",
			Endpoint:    standard.CompanyNews,
			Description: "News articles about one or more companies.",
			Examples:    []router.Example{{Params: map[string]any{"symbol": "AAPL,MSFT", "limit": 10}}},
			Widget:      map[string]any{"type": "newsfeed"},
		},
	}
}
