package provider_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

type barsQuery struct {
	Symbols  []string  `param:"symbol"`
	Start    time.Time `param:"start_date"`
	Interval string    `param:"interval"`
}

type stubFetcher struct {
	info  provider.Info
	calls *atomic.Int32
}

func (s stubFetcher) Info() provider.Info { return s.info }

func (s stubFetcher) TransformQuery(p provider.Params) (barsQuery, error) {
	var q barsQuery
	return q, p.Decode(&q)
}

func (s stubFetcher) ExtractData(_ context.Context, q barsQuery, _ credentials.Set) ([]map[string]any, error) {
	if s.calls != nil {
		s.calls.Add(1)
	}
	var out []map[string]any
	for _, sym := range q.Symbols {
		out = append(out, map[string]any{"d": "2024-01-02", "symbol": sym, "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5})
	}
	return out, nil
}

func (s stubFetcher) TransformData(_ barsQuery, raw []map[string]any) (*provider.AnnotatedResult, error) {
	return &provider.AnnotatedResult{}, nil
}

func barsInfo(name string) provider.Info {
	return provider.Info{
		Provider: name,
		Endpoint: standard.EquityHistorical,
		QueryExtra: []schema.Field{
			{Name: "interval", Type: schema.String, Optional: true, Default: "1d", Description: "Bar interval."},
		},
		Multiple:    []string{"symbol"},
		Choices:     map[string][]string{"interval": {"1d", "1h"}},
		DataAliases: schema.Aliases{"date": "d"},
	}
}

func TestInfo_QueryModelMergesExtension(t *testing.T) {
	t.Parallel()

	std, err := standard.Registry().Query(standard.EquityHistorical)
	require.NoError(t, err)

	q, err := barsInfo("demo").QueryModel(std)
	require.NoError(t, err)

	sym, _ := q.Field("symbol")
	require.True(t, sym.Multiple)
	iv, _ := q.Field("interval")
	require.Equal(t, schema.Enum, iv.Type)
	require.Equal(t, []string{"1d", "1h"}, iv.Choices)
	require.Equal(t, "DemoEquityHistoricalQueryParams", q.Name)

	// standard fields are never narrowed away
	for _, n := range std.Required() {
		_, ok := q.Field(n)
		require.True(t, ok, n)
	}
}

func TestErase_RoundTrip(t *testing.T) {
	t.Parallel()

	// Arrange
	entry := provider.Erase[barsQuery, []map[string]any](stubFetcher{info: barsInfo("demo")})
	params := provider.Params{"symbol": []string{"AAPL", "MSFT"}, "start_date": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "interval": "1h"}

	// Act
	q, err := entry.TransformQuery(params)
	require.NoError(t, err)
	raw, err := entry.ExtractData(t.Context(), q, nil)
	require.NoError(t, err)

	// Assert
	require.Equal(t, []string{"AAPL", "MSFT"}, q.(barsQuery).Symbols)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), q.(barsQuery).Start)
	require.Equal(t, "1h", q.(barsQuery).Interval)
	require.Len(t, raw.([]map[string]any), 2)
}

func TestRows_AppliesAliasesAndReportsPath(t *testing.T) {
	t.Parallel()

	reg, err := provider.NewRegistry(standard.Registry(), provider.Provider{
		Name:     "demo",
		Fetchers: []provider.Entry{provider.Erase[barsQuery, []map[string]any](stubFetcher{info: barsInfo("demo")})},
	})
	require.NoError(t, err)
	h, err := reg.Fetcher(standard.EquityHistorical, "DEMO")
	require.NoError(t, err)

	rows, err := provider.Rows(h.Data, h.Info().DataAliases, []map[string]any{
		{"d": "2024-01-02", "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5},
	}, "results")
	require.NoError(t, err)
	require.Equal(t, schema.NewDate(2024, 1, 2), mustGet(t, rows[0], "date"))

	_, err = provider.Rows(h.Data, h.Info().DataAliases, []map[string]any{
		{"d": "2024-01-02", "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5},
		{"d": "2024-01-03", "open": 1.0, "high": 2.0, "low": 0.5},
	}, "results")
	require.Equal(t, fault.Schema, fault.KindOf(err))
	require.Equal(t, "results[1].close", fault.As(err).Field)
}

func mustGet(t *testing.T, r schema.Row, k string) any {
	t.Helper()
	v, ok := r.Get(k)
	require.True(t, ok)
	return v
}

func TestNewRegistry_ContractViolations(t *testing.T) {
	t.Parallel()

	std := standard.Registry()
	entry := func(info provider.Info) provider.Entry {
		return provider.Erase[barsQuery, []map[string]any](stubFetcher{info: info})
	}
	tests := []struct {
		name string
		p    provider.Provider
		want error
	}{
		{
			name: "duplicate fetcher",
			p:    provider.Provider{Name: "demo", Fetchers: []provider.Entry{entry(barsInfo("demo")), entry(barsInfo("demo"))}},
			want: provider.ErrDuplicateFetcher,
		},
		{
			name: "unknown endpoint",
			p:    provider.Provider{Name: "demo", Fetchers: []provider.Entry{entry(provider.Info{Provider: "demo", Endpoint: "Nope"})}},
			want: provider.ErrMissingContract,
		},
		{
			name: "extension redefines a standard field",
			p: provider.Provider{Name: "demo", Fetchers: []provider.Entry{entry(provider.Info{
				Provider: "demo", Endpoint: standard.EquityHistorical,
				QueryExtra: []schema.Field{{Name: "symbol", Type: schema.Int, Description: "x"}},
			})}},
			want: provider.ErrMissingContract,
		},
		{
			name: "alias collision",
			p: provider.Provider{Name: "demo", Fetchers: []provider.Entry{entry(provider.Info{
				Provider: "demo", Endpoint: standard.EquityHistorical,
				QueryAliases: schema.Aliases{"start_date": "d", "end_date": "d"},
			})}},
			want: schema.ErrAliasCollision,
		},
		{
			name: "credentials required but undeclared",
			p: provider.Provider{Name: "demo", Fetchers: []provider.Entry{entry(provider.Info{
				Provider: "demo", Endpoint: standard.EquityHistorical, RequireCredentials: true,
			})}},
			want: provider.ErrMissingContract,
		},
		{
			name: "provider name mismatch",
			p:    provider.Provider{Name: "demo", Fetchers: []provider.Entry{entry(barsInfo("other"))}},
			want: provider.ErrMissingContract,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := provider.NewRegistry(std, tt.p)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := provider.NewRegistry(std, provider.Provider{Name: "demo"}, provider.Provider{Name: "Demo"})
	require.ErrorIs(t, err, provider.ErrDuplicateFetcher)
}

func TestRegistry_ChoicesAndCredentials(t *testing.T) {
	t.Parallel()

	// Arrange
	keyed := barsInfo("alpha")
	keyed.RequireCredentials = true
	reg, err := provider.NewRegistry(standard.Registry(),
		provider.Provider{Name: "beta", Fetchers: []provider.Entry{provider.Erase[barsQuery, []map[string]any](stubFetcher{info: barsInfo("beta")})}},
		provider.Provider{Name: "alpha", Credentials: []string{"alpha_api_key"}, Fetchers: []provider.Entry{provider.Erase[barsQuery, []map[string]any](stubFetcher{info: keyed})}},
	)
	require.NoError(t, err)

	// Act
	c := reg.Choices(standard.EquityHistorical, []string{"gamma", "BETA", "alpha"})

	// Assert
	require.Equal(t, []string{"alpha", "beta"}, c.Providers)
	require.Equal(t, []string{"beta", "alpha"}, c.Priority)
	require.Equal(t, "beta", c.Default)
	require.Equal(t, "alpha", reg.Choices(standard.EquityHistorical, nil).Default)
	require.Equal(t, []string{"alpha_api_key"}, reg.Credentials())

	h, err := reg.Fetcher(standard.EquityHistorical, "alpha")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha_api_key"}, h.Credentials)
	require.True(t, h.Multiple("symbol"))

	_, err = reg.Fetcher(standard.CompanyNews, "alpha")
	require.ErrorIs(t, err, provider.ErrNoFetcher)
}

func TestFanOut_OrderAndPartialFailure(t *testing.T) {
	t.Parallel()

	// Arrange: later items finish first
	items := []string{"A", "B", "C", "D"}
	delay := map[string]time.Duration{"A": 30 * time.Millisecond, "B": 20 * time.Millisecond, "C": 10 * time.Millisecond}

	// Act
	res, errs, err := provider.FanOut(t.Context(), items, 4, func(ctx context.Context, s string) (string, error) {
		time.Sleep(delay[s])
		if s == "D" {
			return "", errors.New("unknown symbol")
		}
		return s + "!", nil
	})

	// Assert
	require.NoError(t, err)
	require.Equal(t, []string{"A!", "B!", "C!", ""}, res)
	require.NoError(t, errs[0])
	require.Error(t, errs[3])
}

func TestFanOut_CancelDiscardsResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	var done atomic.Int32
	items := make([]int, 50)

	start := time.Now()
	res, errs, err := provider.FanOut(ctx, items, 5, func(ctx context.Context, _ int) (int, error) {
		if done.Add(1) == 5 {
			cancel()
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return 1, nil
		}
	})

	require.Equal(t, fault.Cancelled, fault.KindOf(err))
	require.Nil(t, res)
	require.Nil(t, errs)
	require.Less(t, time.Since(start), time.Second)
}
