package yfinance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dataplatform/internal/fault"
	"dataplatform/internal/httpx"
)

const baseURL = "https://query1.finance.yahoo.com"

// Chart is the /v8/finance/chart payload.
type Chart struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *ChartError   `json:"error"`
	} `json:"chart"`
}

type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ChartResult struct {
	Meta       ChartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type ChartMeta struct {
	Currency           string   `json:"currency"`
	Symbol             string   `json:"symbol"`
	ExchangeName       string   `json:"exchangeName"`
	LongName           string   `json:"longName"`
	ShortName          string   `json:"shortName"`
	InstrumentType     string   `json:"instrumentType"`
	GMTOffset          int64    `json:"gmtoffset"`
	Timezone           string   `json:"exchangeTimezoneName"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64    `json:"regularMarketTime"`
	RegularMarketVol   *float64 `json:"regularMarketVolume"`
	PreviousClose      *float64 `json:"chartPreviousClose"`
	DayHigh            *float64 `json:"regularMarketDayHigh"`
	DayLow             *float64 `json:"regularMarketDayLow"`
}

// Client talks to the Yahoo chart API through resty, sending every request
// through the shared Doer chain.
type Client struct {
	client *resty.Client
}

func NewClient(doer httpx.Doer, base string) *Client {
	c := resty.New().
		SetTransport(httpx.RoundTripper{Doer: doer}).
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": httpx.DefaultUserAgent,
		})
	return &Client{client: c}
}

// ChartRange fetches bars of symbol in [from, to] at interval. An unknown
// symbol yields a nil result and no error.
func (c *Client) ChartRange(ctx context.Context, symbol string, from, to time.Time, interval string) (*ChartResult, error) {
	return c.chart(ctx, symbol, map[string]string{
		"period1":  strconv.FormatInt(from.Unix(), 10),
		"period2":  strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10),
		"interval": interval,
		"events":   "div,splits",
	})
}

// ChartLatest fetches the current session, whose meta carries the quote.
func (c *Client) ChartLatest(ctx context.Context, symbol string) (*ChartResult, error) {
	return c.chart(ctx, symbol, map[string]string{"range": "1d", "interval": "1d"})
}

func (c *Client) chart(ctx context.Context, symbol string, query map[string]string) (*ChartResult, error) {
	var body, errBody Chart
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		ForceContentType("application/json").
		SetResult(&body).
		SetError(&errBody).
		Get("/v8/finance/chart/" + url.PathEscape(symbol))
	if resp == nil || resp.RawResponse == nil {
		return nil, httpx.Classify(ctx, Name, err)
	}
	if !resp.IsSuccess() {
		if resp.StatusCode() == http.StatusNotFound && errBody.Chart.Error != nil {
			return nil, nil
		}
		return nil, fault.FromStatus(Name, resp.StatusCode(), string(resp.Body()))
	}
	if err != nil {
		return nil, fault.Wrap(fault.Schema, err, "decoding chart for %s", symbol).WithProvider(Name)
	}
	if e := body.Chart.Error; e != nil {
		return nil, &fault.Error{Kind: fault.Upstream, Provider: Name, Status: resp.StatusCode(), Message: e.Code + ": " + e.Description}
	}
	if len(body.Chart.Result) == 0 {
		return nil, nil
	}
	return &body.Chart.Result[0], nil
}
