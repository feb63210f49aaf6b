package fred

import (
	"context"
	"iter"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dataplatform/internal/fault"
	"dataplatform/internal/httpx"
	"dataplatform/internal/provider"
	"dataplatform/internal/schema"
)

const (
	baseURL = "https://api.stlouisfed.org"
	// maxPage is the largest limit FRED accepts on observations.
	maxPage = 100000
)

// Observation is one dated value. FRED sends "." for a missing value.
type Observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type observations struct {
	Count        int           `json:"count"`
	Offset       int           `json:"offset"`
	Observations []Observation `json:"observations"`
}

// Series is the metadata FRED keeps per series.
type Series struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	Units              string `json:"units"`
	Frequency          string `json:"frequency"`
	SeasonalAdjustment string `json:"seasonal_adjustment"`
	LastUpdated        string `json:"last_updated"`
	ObservationStart   string `json:"observation_start"`
	ObservationEnd     string `json:"observation_end"`
}

type seriess struct {
	Seriess []Series `json:"seriess"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

// ObservationOptions narrows an observations request.
type ObservationOptions struct {
	Start, End time.Time
	Limit      int
	Frequency  string
	Transform  string
}

// Client talks to the FRED REST API.
type Client struct {
	client   *resty.Client
	pageSize int
}

func NewClient(doer httpx.Doer, base string) *Client {
	c := resty.New().
		SetTransport(httpx.RoundTripper{Doer: doer}).
		SetBaseURL(strings.TrimRight(base, "/")).
		SetHeader("User-Agent", httpx.DefaultUserAgent).
		SetQueryParam("file_type", "json")
	return &Client{client: c, pageSize: maxPage}
}

// WithPageSize sets how many observations one request asks for.
func (c *Client) WithPageSize(n int) *Client {
	if n > 0 && n <= maxPage {
		c.pageSize = n
	}
	return c
}

// Observations returns the observations of id, following FRED's offset
// paging until the series or opts.Limit is exhausted. An unknown series
// yields nil and no error.
func (c *Client) Observations(ctx context.Context, key, id string, opts ObservationOptions) ([]Observation, error) {
	return provider.Collect(c.ObservationPages(ctx, key, id, opts), opts.Limit)
}

// ObservationPages lazily walks the observation pages of id.
func (c *Client) ObservationPages(ctx context.Context, key, id string, opts ObservationOptions) iter.Seq2[[]Observation, error] {
	q := map[string]string{"series_id": id}
	if !opts.Start.IsZero() {
		q["observation_start"] = opts.Start.Format(schema.DateLayout)
	}
	if !opts.End.IsZero() {
		q["observation_end"] = opts.End.Format(schema.DateLayout)
	}
	if opts.Limit > 0 {
		q["sort_order"] = "desc"
	}
	if opts.Frequency != "" {
		q["frequency"] = opts.Frequency
	}
	if opts.Transform != "" {
		q["units"] = opts.Transform
	}
	size := c.pageSize
	if opts.Limit > 0 && opts.Limit < size {
		size = opts.Limit
	}
	seen := 0
	return provider.Pages(ctx, func(ctx context.Context, cursor string) (provider.Page[Observation], error) {
		offset, _ := strconv.Atoi(cursor)
		page := maps.Clone(q)
		page["limit"] = strconv.Itoa(size)
		page["offset"] = strconv.Itoa(offset)
		var out observations
		found, err := c.get(ctx, key, "/fred/series/observations", page, &out)
		if err != nil || !found {
			return provider.Page[Observation]{}, err
		}
		seen += len(out.Observations)
		next := offset + len(out.Observations)
		p := provider.Page[Observation]{Items: out.Observations}
		if len(out.Observations) > 0 && next < out.Count && (opts.Limit <= 0 || seen < opts.Limit) {
			p.Next = strconv.Itoa(next)
		}
		return p, nil
	})
}

// Series returns the metadata of id, or nil when FRED does not know it.
func (c *Client) Series(ctx context.Context, key, id string) (*Series, error) {
	var out seriess
	found, err := c.get(ctx, key, "/fred/series", map[string]string{"series_id": id}, &out)
	if err != nil || !found || len(out.Seriess) == 0 {
		return nil, err
	}
	return &out.Seriess[0], nil
}

func (c *Client) get(ctx context.Context, key, path string, query map[string]string, out any) (bool, error) {
	var apiErr apiError
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetQueryParam("api_key", key).
		ForceContentType("application/json").
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if resp == nil || resp.RawResponse == nil {
		return false, httpx.Classify(ctx, Name, err)
	}
	if !resp.IsSuccess() {
		msg := apiErr.Message
		switch {
		case strings.Contains(msg, "api_key"):
			return false, &fault.Error{Kind: fault.Unauthorized, Provider: Name, Status: resp.StatusCode(), Message: msg}
		case resp.StatusCode() == http.StatusBadRequest && strings.Contains(msg, "does not exist"):
			return false, nil
		case msg != "":
			return false, fault.FromStatus(Name, resp.StatusCode(), msg)
		}
		return false, fault.FromStatus(Name, resp.StatusCode(), string(resp.Body()))
	}
	if err != nil {
		return false, fault.Wrap(fault.Schema, err, "decoding %s", path).WithProvider(Name)
	}
	return true, nil
}
