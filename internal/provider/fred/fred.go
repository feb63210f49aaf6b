// Package fred adapts the St. Louis Fed FRED API.
package fred

import "dataplatform/internal/provider"

const (
	Name          = "fred"
	CredentialKey = "fred_api_key"
)

func init() { provider.RegisterPlugin(Name, New) }

func New(deps provider.Deps) provider.Provider {
	client := NewClient(deps.Doer(Name), deps.URL(Name, baseURL))
	return provider.Provider{
		Name:        Name,
		Description: "Federal Reserve Economic Data.",
		Website:     "https://fred.stlouisfed.org",
		Credentials: []string{CredentialKey},
		Fetchers: []provider.Entry{
			provider.Erase[SeriesQuery, []SeriesData](NewSeriesFetcher(client, deps.Limit(Name))),
		},
	}
}
