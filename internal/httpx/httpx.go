package httpx

import (
    "compress/gzip"
    "io"
    "net"
    "net/http"
    "strings"
    "time"

    "github.com/andybalholm/brotli"
)

// Doer is the upstream transport every fetcher talks to. Context travels on
// the request.
//
//go:generate mockgen -package=mock_httpx -destination=mock_httpx/mock_httpx.go -source=httpx.go Doer
type Doer interface {
    Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

const DefaultUserAgent = "dataplatform/1.0"

// Client is the process-wide pooled HTTP client. It sets the user agent and
// default headers, advertises gzip and brotli, and decodes either.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
}

// New builds a pooled client. timeout bounds a whole request including
// redirects, which are followed.
func New(timeout time.Duration) *Client {
    return &Client{HTTP: &http.Client{Timeout: timeout, Transport: NewTransport()}, UserAgent: DefaultUserAgent}
}

// NewTransport returns the shared transport settings. Connection limits are
// per host.
func NewTransport() *http.Transport {
    return &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          200,
        MaxIdleConnsPerHost:   100,
        MaxConnsPerHost:       100,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: 10 * time.Second,
    }
}

// WithTimeout returns a client sharing c's transport with a different
// per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
    hc := *c.HTTP
    hc.Timeout = timeout
    return &Client{HTTP: &hc, UserAgent: c.UserAgent, Headers: c.Headers}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    if req.Header.Get("Accept-Encoding") == "" {
        req.Header.Set("Accept-Encoding", "gzip, br")
    }
    res, err := c.HTTP.Do(req)
    if err != nil {
        return nil, err
    }
    if err := decodeBody(res); err != nil {
        res.Body.Close()
        return nil, err
    }
    return res, nil
}

type decodedBody struct {
    io.Reader
    closers []io.Closer
}

func (d *decodedBody) Close() error {
    var first error
    for _, c := range d.closers {
        if err := c.Close(); err != nil && first == nil { first = err }
    }
    return first
}

// decodeBody swaps a compressed body for a decoding reader.
func decodeBody(res *http.Response) error {
    switch strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding"))) {
    case "br":
        res.Body = &decodedBody{Reader: brotli.NewReader(res.Body), closers: []io.Closer{res.Body}}
    case "gzip":
        zr, err := gzip.NewReader(res.Body)
        if err != nil {
            if err == io.EOF { return nil }
            return err
        }
        res.Body = &decodedBody{Reader: zr, closers: []io.Closer{zr, res.Body}}
    default:
        return nil
    }
    res.Header.Del("Content-Encoding")
    res.Header.Del("Content-Length")
    res.ContentLength = -1
    res.Uncompressed = true
    return nil
}
