package fmp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dataplatform/internal/fault"
	"dataplatform/internal/httpx"
	"dataplatform/internal/schema"
)

const baseURL = "https://financialmodelingprep.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=fmp_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FMPAPIClient is a client for the Financial Modeling Prep API. The API key
// is passed per call so it never outlives a dispatch.
type FMPAPIClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
}

// FMPAPIClientOption is a configuration option for the FMP API client.
type FMPAPIClientOption func(*FMPAPIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) FMPAPIClientOption {
	return func(c *FMPAPIClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) FMPAPIClientOption {
	return func(c *FMPAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) FMPAPIClientOption {
	return func(c *FMPAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewFMPAPIClient creates a new FMP API client.
func NewFMPAPIClient(options ...FMPAPIClientOption) *FMPAPIClient {
	var c = &FMPAPIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// get performs a GET and decodes the JSON body into out with numbers kept
// as json.Number.
func (c *FMPAPIClient) get(ctx context.Context, key, path string, query url.Values, out any) error {
	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	if key != "" {
		// FMP authenticates with a query parameter.
		// https://site.financialmodelingprep.com/developer/docs
		q.Set("apikey", key)
	}

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fault.Wrap(fault.Unknown, err, "creating request").WithProvider(Name)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return httpx.Classify(ctx, Name, err)
	}
	if err := httpx.Check(Name, res); err != nil {
		return err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return httpx.Classify(ctx, Name, err)
	}
	if trimmed := bytes.TrimSpace(b); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) {
		return nil
	}
	// FMP reports a bad key with a 200 and an error object.
	var apiErr struct {
		Message string `json:"Error Message"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) && json.Unmarshal(b, &apiErr) == nil && apiErr.Message != "" {
		if strings.Contains(strings.ToLower(apiErr.Message), "api key") {
			return &fault.Error{Kind: fault.Unauthorized, Provider: Name, Status: res.StatusCode, Message: apiErr.Message}
		}
		return &fault.Error{Kind: fault.Upstream, Provider: Name, Status: res.StatusCode, Message: apiErr.Message}
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &fault.Error{Kind: fault.Schema, Provider: Name, Field: path, Message: "decoding response", Err: err}
	}
	return nil
}

// HistoricalPriceFull returns daily bars of symbol, newest first. An unknown
// symbol yields no records and no error.
func (c *FMPAPIClient) HistoricalPriceFull(ctx context.Context, key, symbol string, from, to time.Time, timeseries int) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("from", from.Format(schema.DateLayout))
	query.Set("to", to.Format(schema.DateLayout))
	if timeseries > 0 {
		query.Set("timeseries", strconv.Itoa(timeseries))
	}
	var body struct {
		Symbol     string           `json:"symbol"`
		Historical []map[string]any `json:"historical"`
	}
	if err := c.get(ctx, key, "/api/v3/historical-price-full/"+url.PathEscape(symbol), query, &body); err != nil {
		return nil, err
	}
	return body.Historical, nil
}

// Quote returns the latest quotes of symbols in one batch request.
func (c *FMPAPIClient) Quote(ctx context.Context, key string, symbols []string) ([]map[string]any, error) {
	escaped := make([]string, len(symbols))
	for i, s := range symbols {
		escaped[i] = url.PathEscape(s)
	}
	var body []map[string]any
	if err := c.get(ctx, key, "/api/v3/quote/"+strings.Join(escaped, ","), nil, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// BalanceSheet returns balance sheet statements, newest first.
func (c *FMPAPIClient) BalanceSheet(ctx context.Context, key, symbol, period string, limit int) ([]map[string]any, error) {
	query := url.Values{}
	query.Set("period", period)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var body []map[string]any
	if err := c.get(ctx, key, "/api/v3/balance-sheet-statement/"+url.PathEscape(symbol), query, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// StockNews returns news articles, newest first. No tickers means general
// market news.
func (c *FMPAPIClient) StockNews(ctx context.Context, key string, tickers []string, limit int) ([]map[string]any, error) {
	query := url.Values{}
	if len(tickers) > 0 {
		query.Set("tickers", strings.Join(tickers, ","))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var body []map[string]any
	if err := c.get(ctx, key, "/api/v3/stock_news", query, &body); err != nil {
		return nil, err
	}
	return body, nil
}
