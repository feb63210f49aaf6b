package fmp_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/provider/fmp"
	"dataplatform/internal/result"
	"dataplatform/internal/schema"
	"dataplatform/internal/schema/standard"
)

var creds = credentials.Set{fmp.CredentialKey: "test-key"}

func fixture(t *testing.T, name string) *http.Response {
	t.Helper()
	b, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(b))}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(body))}
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestNewFMPAPIClient_WithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.True(t, strings.HasPrefix(req.URL.String(), "http://localhost:8080/api/v3/quote/AAPL"), req.URL.String())
			require.Equal(t, "test-key", req.URL.Query().Get("apikey"))
			require.Equal(t, "yes", req.Header.Get("X-Test"))
			return jsonResponse(http.StatusOK, `[]`), nil
		}).
		Times(1)

	// Arrange: setup a client with a custom base URL and header
	client := fmp.NewFMPAPIClient(
		fmp.WithHTTPClient(httpClient),
		fmp.WithBaseURL("http://localhost:8080/"),
		fmp.WithHeader(http.Header{"X-Test": []string{"yes"}}),
	)

	// Act
	recs, err := client.Quote(t.Context(), "test-key", []string{"AAPL"})

	// Assert
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestFMPAPIClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  *http.Response
		err  error
		want fault.Kind
	}{
		{name: "401", res: jsonResponse(http.StatusUnauthorized, `{"Error Message":"Invalid API KEY."}`), want: fault.Unauthorized},
		{name: "200 with key error", res: jsonResponse(http.StatusOK, `{"Error Message":"Invalid API KEY. Please retry."}`), want: fault.Unauthorized},
		{name: "429", res: jsonResponse(http.StatusTooManyRequests, `Limit Reach`), want: fault.RateLimited},
		{name: "502", res: jsonResponse(http.StatusBadGateway, ``), want: fault.Upstream},
		{name: "bad json", res: jsonResponse(http.StatusOK, `{"symbol":`), want: fault.Schema},
		{name: "transport", err: errors.New("connection reset by peer"), want: fault.Network},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(tt.res, tt.err).Times(1)
			client := fmp.NewFMPAPIClient(fmp.WithHTTPClient(httpClient))

			// Act
			_, err := client.HistoricalPriceFull(t.Context(), "k", "AAPL", date(2024, 1, 2), date(2024, 1, 5), 0)

			// Assert
			require.Equal(t, tt.want, fault.KindOf(err))
			require.Equal(t, fmp.Name, fault.ProviderOf(err))
		})
	}
}

func historical(t *testing.T, endpoint string, httpClient fmp.HTTPClient) provider.Entry {
	t.Helper()
	client := fmp.NewFMPAPIClient(fmp.WithHTTPClient(httpClient))
	return provider.Erase[fmp.HistoricalQuery, fmp.HistoricalData](fmp.NewHistoricalFetcher(endpoint, client, 4))
}

func run(t *testing.T, e provider.Entry, p provider.Params) (*provider.AnnotatedResult, error) {
	t.Helper()
	q, err := e.TransformQuery(p)
	if err != nil {
		return nil, err
	}
	raw, err := e.ExtractData(t.Context(), q, creds)
	if err != nil {
		return nil, err
	}
	return e.TransformData(q, raw)
}

func TestHistoricalFetcher_SingleSymbolFixture(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/historical-price-full/AAPL", req.URL.Path)
			require.Equal(t, "2024-01-02", req.URL.Query().Get("from"))
			require.Equal(t, "2024-01-05", req.URL.Query().Get("to"))
			return fixture(t, "historical_aapl.json"), nil
		}).
		Times(1)
	e := historical(t, standard.EquityHistorical, httpClient)

	// Act
	res, err := run(t, e, provider.Params{"symbol": []string{"aapl"}, "start_date": date(2024, 1, 2), "end_date": date(2024, 1, 5)})

	// Assert: ascending, every standard field present
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
	first, last := res.Rows[0], res.Rows[3]
	require.Equal(t, schema.NewDate(2024, 1, 2), mustGet(t, first, "date"))
	require.Equal(t, schema.NewDate(2024, 1, 5), mustGet(t, last, "date"))
	require.Equal(t, "AAPL", first.Text("symbol"))
	require.InDelta(t, -0.0080684, mustGet(t, first, "change_percent"), 1e-9)
	for _, r := range res.Rows {
		require.NoError(t, schema.ValidateRow(standard.Data(standard.EquityHistorical), r, ""))
		open, high, low := mustGet(t, r, "open").(float64), mustGet(t, r, "high").(float64), mustGet(t, r, "low").(float64)
		require.Positive(t, open)
		require.GreaterOrEqual(t, high, open)
		require.LessOrEqual(t, low, open)
	}
	_, hasLabel := first.Get("label")
	require.False(t, hasLabel)
}

func mustGet(t *testing.T, r schema.Row, k string) any {
	t.Helper()
	v, ok := r.Get(k)
	require.True(t, ok, k)
	return v
}

func TestHistoricalFetcher_CryptoPartialFailure(t *testing.T) {
	t.Parallel()

	// Arrange: the unknown pair answers with an empty object
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			if strings.HasSuffix(req.URL.Path, "/BTCUSD") {
				return fixture(t, "historical_btcusd.json"), nil
			}
			return jsonResponse(http.StatusOK, `{}`), nil
		}).
		Times(2)
	e := historical(t, standard.CryptoHistorical, httpClient)

	// Act
	res, err := run(t, e, provider.Params{"symbol": []string{"BTC-USD", "UNKNOWN"}, "start_date": date(2024, 1, 2), "end_date": date(2024, 1, 3)})

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	for _, r := range res.Rows {
		require.Equal(t, "BTCUSD", r.Text("symbol"))
	}
	require.Len(t, res.Warnings, 1)
	require.Equal(t, result.Partial, res.Warnings[0].Category)
	require.Contains(t, res.Warnings[0].Message, "UNKNOWN")
}

func TestHistoricalFetcher_HolidaySkipsIO(t *testing.T) {
	t.Parallel()

	// Arrange: no upstream call is expected
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)
	e := historical(t, standard.EquityHistorical, httpClient)

	// Act
	_, err := run(t, e, provider.Params{"symbol": []string{"AAPL"}, "start_date": date(2024, 1, 1), "end_date": date(2024, 1, 1)})

	// Assert
	require.Equal(t, fault.Empty, fault.KindOf(err))
}

func TestHistoricalFetcher_AllFailedSurfacesError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusTooManyRequests, `Limit Reach`), nil
		}).
		Times(2)
	e := historical(t, standard.EquityHistorical, httpClient)

	_, err := run(t, e, provider.Params{"symbol": []string{"AAPL", "MSFT"}, "start_date": date(2024, 1, 2), "end_date": date(2024, 1, 5)})
	require.Equal(t, fault.RateLimited, fault.KindOf(err))
}

func TestHistoricalFetcher_TransformQuery(t *testing.T) {
	t.Parallel()

	e := historical(t, standard.EquityHistorical, nil)

	q, err := e.TransformQuery(provider.Params{"symbol": []string{"AAPL"}, "end_date": date(2024, 6, 30)})
	require.NoError(t, err)
	require.Equal(t, date(2023, 6, 30), q.(fmp.HistoricalQuery).StartDate)

	_, err = e.TransformQuery(provider.Params{"symbol": []string{"AAPL"}, "start_date": date(2024, 2, 1), "end_date": date(2024, 1, 1)})
	require.Equal(t, fault.InvalidParams, fault.KindOf(err))

	_, err = e.TransformQuery(provider.Params{})
	require.Equal(t, fault.InvalidParams, fault.KindOf(err))
}

func TestHistoricalFetcher_FanOutKeepsInputOrder(t *testing.T) {
	t.Parallel()

	// Arrange: AAPL answers last
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	var mu sync.Mutex
	var seen []string
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			sym := req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:]
			if sym == "AAPL" {
				time.Sleep(20 * time.Millisecond)
			}
			mu.Lock()
			seen = append(seen, sym)
			mu.Unlock()
			body := strings.ReplaceAll(`{"symbol":"S","historical":[{"date":"2024-01-02","open":1,"high":2,"low":0.5,"close":1.5}]}`, `"S"`, `"`+sym+`"`)
			return jsonResponse(http.StatusOK, body), nil
		}).
		Times(2)
	e := historical(t, standard.EquityHistorical, httpClient)

	// Act
	res, err := run(t, e, provider.Params{"symbol": []string{"AAPL", "MSFT"}, "start_date": date(2024, 1, 2), "end_date": date(2024, 1, 2)})

	// Assert
	require.NoError(t, err)
	require.Equal(t, []string{"MSFT", "AAPL"}, seen)
	require.Equal(t, "AAPL", res.Rows[0].Text("symbol"))
	require.Equal(t, "MSFT", res.Rows[1].Text("symbol"))
}

func TestQuoteFetcher_OrdersAndNormalizesPercent(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/v3/quote/AAPL,MSFT,NOPE", req.URL.Path)
			return fixture(t, "quote.json"), nil
		}).
		Times(1)
	client := fmp.NewFMPAPIClient(fmp.WithHTTPClient(httpClient))
	e := provider.Erase[fmp.QuoteQuery, []map[string]any](fmp.NewQuoteFetcher(client))

	// Act
	res, err := run(t, e, provider.Params{"symbol": []string{"AAPL", "MSFT", "NOPE"}})

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "AAPL", res.Rows[0].Text("symbol"))
	require.InDelta(t, 181.18, mustGet(t, res.Rows[0], "last_price"), 1e-9)
	require.InDelta(t, -0.004013, mustGet(t, res.Rows[0], "change_percent"), 1e-9)
	ts, ok := res.Rows[0].Time("timestamp")
	require.True(t, ok)
	require.Equal(t, int64(1704488401), ts.Unix())
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0].Message, "NOPE")
}

func TestBalanceSheetFetcher_Decimals(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "quarter", req.URL.Query().Get("period"))
			require.Equal(t, "2", req.URL.Query().Get("limit"))
			return fixture(t, "balance_sheet.json"), nil
		}).
		Times(1)
	client := fmp.NewFMPAPIClient(fmp.WithHTTPClient(httpClient))
	e := provider.Erase[fmp.BalanceSheetQuery, []map[string]any](fmp.NewBalanceSheetFetcher(client))

	// Act
	res, err := run(t, e, provider.Params{"symbol": "aapl", "period": "quarter", "limit": int64(2)})

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	r := res.Rows[0]
	require.True(t, decimal.RequireFromString("352583000000").Equal(mustGet(t, r, "total_assets").(decimal.Decimal)))
	require.Equal(t, int64(2023), mustGet(t, r, "fiscal_year"))
	require.Equal(t, "FY", mustGet(t, r, "fiscal_period"))
	require.Equal(t, []string{"period_ending"}, r.Index)
}

func TestNewsFetcher_EmptyPayload(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).Return(fixture(t, "stock_news.json"), nil),
		httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `[]`), nil),
	)
	client := fmp.NewFMPAPIClient(fmp.WithHTTPClient(httpClient))
	e := provider.Erase[fmp.NewsQuery, []map[string]any](fmp.NewNewsFetcher(client))

	res, err := run(t, e, provider.Params{"symbol": []string{"AAPL"}})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, "Reuters", res.Rows[0].Text("source"))
	require.Equal(t, "AAPL", res.Rows[0].Text("symbols"))

	_, err = run(t, e, provider.Params{"symbol": []string{"AAPL"}})
	require.Equal(t, fault.Empty, fault.KindOf(err))
}

func TestNew_RegistersEveryFetcher(t *testing.T) {
	t.Parallel()

	p := fmp.New(provider.Deps{})
	reg, err := provider.NewRegistry(standard.Registry(), p)
	require.NoError(t, err)
	for _, ep := range []string{standard.EquityHistorical, standard.CryptoHistorical, standard.EquityQuote, standard.BalanceSheet, standard.CompanyNews} {
		h, err := reg.Fetcher(ep, fmp.Name)
		require.NoError(t, err, ep)
		require.Equal(t, []string{fmp.CredentialKey}, h.Credentials)
	}
	require.Contains(t, provider.Plugins(), fmp.Name)
}
