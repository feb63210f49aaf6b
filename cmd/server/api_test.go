package main

import (
    "bytes"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "os"
    "strings"
    "testing"

    "dataplatform/internal/config"
    "dataplatform/internal/fault"
    "dataplatform/internal/httpx"
    "dataplatform/internal/platform"
)

const testKey = "server-test-key"

// upstream answers every provider from the recorded fixtures.
func upstream(t *testing.T) func(name string) httpx.Doer {
    t.Helper()
    read := func(name string) []byte {
        b, err := os.ReadFile("../../internal/runner/testdata/" + name)
        if err != nil { t.Fatalf("fixture %s: %v", name, err) }
        return b
    }
    fmpBars := read("fmp_historical_aapl.json")
    yfChart := read("yfinance_chart_aapl.json")
    return func(name string) httpx.Doer {
        return httpx.DoerFunc(func(req *http.Request) (*http.Response, error) {
            body, status := []byte(`{}`), http.StatusOK
            switch {
            case name == "fmp" && strings.HasSuffix(req.URL.Path, "/AAPL"):
                body = fmpBars
            case name == "fmp" && strings.Contains(req.URL.Path, "/LIMIT"):
                body, status = []byte("Limit Reach"), http.StatusTooManyRequests
            case name == "yfinance" && strings.HasSuffix(req.URL.Path, "/AAPL"):
                body = yfChart
            }
            return &http.Response{
                StatusCode: status,
                Header:     http.Header{"Content-Type": []string{"application/json"}},
                Body:       io.NopCloser(bytes.NewReader(body)),
                Request:    req,
            }, nil
        })
    }
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
    t.Helper()
    cfg := config.Default()
    cfg.DotEnv = nil
    cfg.Cache.Backend = "none"
    cfg.Retry.MaxAttempts = 1
    cfg.Server.RateLimitPerSec = 0
    cfg.Credentials = map[string]string{"fmp_api_key": testKey}
    if mutate != nil { mutate(&cfg) }
    p, err := platform.Build(t.Context(), cfg, platform.WithLogOutput(io.Discard), platform.WithHTTP(upstream(t)))
    if err != nil { t.Fatalf("build: %v", err) }
    t.Cleanup(func() { _ = p.Close() })
    srv := httptest.NewServer(newHandler(p, cfg.Server))
    t.Cleanup(srv.Close)
    return srv
}

type envelope struct {
    Results  []map[string]any `json:"results"`
    Provider string           `json:"provider"`
    Warnings []struct {
        Category string `json:"category"`
        Message  string `json:"message"`
    } `json:"warnings"`
}

func TestRun_GetQueryParams(t *testing.T) {
    srv := newTestServer(t, nil)

    res, err := http.Get(srv.URL + "/api/v1/run/equity/price/historical?symbol=aapl&start_date=2024-01-02&end_date=2024-01-05&provider=fmp")
    if err != nil { t.Fatalf("get: %v", err) }
    defer res.Body.Close()
    if res.StatusCode != 200 {
        b, _ := io.ReadAll(res.Body)
        t.Fatalf("status=%d body=%s", res.StatusCode, b)
    }
    var env envelope
    if err := json.NewDecoder(res.Body).Decode(&env); err != nil { t.Fatalf("decode: %v", err) }
    if env.Provider != "fmp" || len(env.Results) != 4 { t.Fatalf("unexpected: %+v", env) }
    if env.Results[0]["date"] != "2024-01-02" || env.Results[0]["symbol"] != "AAPL" {
        t.Fatalf("unexpected first row: %+v", env.Results[0])
    }
    if res.Header.Get("X-Request-ID") == "" { t.Fatalf("missing request id") }
}

func TestRun_CSV(t *testing.T) {
    srv := newTestServer(t, nil)

    res, err := http.Get(srv.URL + "/api/v1/run/equity.price.historical?symbol=AAPL&start_date=2024-01-02&end_date=2024-01-05&format=csv")
    if err != nil { t.Fatalf("get: %v", err) }
    defer res.Body.Close()
    b, _ := io.ReadAll(res.Body)
    if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/csv") { t.Fatalf("content type %q", res.Header.Get("Content-Type")) }
    lines := strings.Split(strings.TrimSpace(string(b)), "\n")
    if len(lines) != 5 || !strings.Contains(lines[0], "close") { t.Fatalf("unexpected csv:\n%s", b) }
}

func TestRun_ErrorsUseWireShape(t *testing.T) {
    srv := newTestServer(t, nil)

    cases := []struct {
        url    string
        status int
        kind   fault.Kind
    }{
        {"/api/v1/run/equity/nope", http.StatusBadRequest, fault.InvalidParams},
        {"/api/v1/run/economy/fred_series?symbol=UNRATE", http.StatusUnauthorized, fault.Unauthorized},
        {"/api/v1/run/equity/price/historical?symbol=LIMIT&start_date=2024-01-02&end_date=2024-01-05&provider=fmp", http.StatusTooManyRequests, fault.RateLimited},
    }
    for _, c := range cases {
        res, err := http.Get(srv.URL + c.url)
        if err != nil { t.Fatalf("get %s: %v", c.url, err) }
        var body fault.Body
        err = json.NewDecoder(res.Body).Decode(&body)
        res.Body.Close()
        if err != nil { t.Fatalf("decode %s: %v", c.url, err) }
        if res.StatusCode != c.status || body.Error.Kind != c.kind {
            t.Fatalf("%s: status=%d kind=%s message=%s", c.url, res.StatusCode, body.Error.Kind, body.Error.Message)
        }
        if strings.Contains(body.Error.Message, testKey) { t.Fatalf("%s leaked the key: %s", c.url, body.Error.Message) }
    }
}

func TestRun_PostBody(t *testing.T) {
    srv := newTestServer(t, nil)

    body := `{"symbol":"AAPL","start_date":"2024-01-02","end_date":"2024-01-05","provider":"yfinance","interval":"1d"}`
    res, err := http.Post(srv.URL+"/api/v1/run/equity/price/historical", "application/json", strings.NewReader(body))
    if err != nil { t.Fatalf("post: %v", err) }
    defer res.Body.Close()
    var env envelope
    if err := json.NewDecoder(res.Body).Decode(&env); err != nil { t.Fatalf("decode: %v", err) }
    if res.StatusCode != 200 || env.Provider != "yfinance" || len(env.Results) != 4 { t.Fatalf("status=%d env=%+v", res.StatusCode, env) }

    res, err = http.Post(srv.URL+"/api/v1/run/equity/price/historical", "application/json", strings.NewReader("{"))
    if err != nil { t.Fatalf("post: %v", err) }
    res.Body.Close()
    if res.StatusCode != http.StatusBadRequest { t.Fatalf("status=%d", res.StatusCode) }
}

func TestFuse_NewestAcrossProviders(t *testing.T) {
    srv := newTestServer(t, nil)

    body := `{"path":"equity/price/historical","params":{"symbol":"AAPL","start_date":"2024-01-02","end_date":"2024-01-05"},"providers":["fmp","yfinance"]}`
    res, err := http.Post(srv.URL+"/api/v1/fuse", "application/json", strings.NewReader(body))
    if err != nil { t.Fatalf("post: %v", err) }
    defer res.Body.Close()
    var env envelope
    if err := json.NewDecoder(res.Body).Decode(&env); err != nil { t.Fatalf("decode: %v", err) }
    if res.StatusCode != 200 { t.Fatalf("status=%d env=%+v", res.StatusCode, env) }
    if len(env.Results) != 1 { t.Fatalf("want 1 row, got %d: %+v", len(env.Results), env.Results) }
    got := env.Results[0]
    // Both providers end on 2024-01-05; the later input wins the tie.
    if got["date"] != "2024-01-05" || got["provider"] != "yfinance" { t.Fatalf("unexpected: %+v", got) }
    if env.Provider != "fmp,yfinance" { t.Fatalf("provider=%q", env.Provider) }
}

func TestFuse_PartialFailureIsAWarning(t *testing.T) {
    srv := newTestServer(t, func(c *config.Config) { c.Credentials = nil })

    // Without an fmp key only yfinance answers.
    body := `{"path":"equity/price/historical","params":{"symbol":"AAPL","start_date":"2024-01-02","end_date":"2024-01-05"},"providers":["fmp","yfinance"]}`
    res, err := http.Post(srv.URL+"/api/v1/fuse", "application/json", strings.NewReader(body))
    if err != nil { t.Fatalf("post: %v", err) }
    defer res.Body.Close()
    var env envelope
    if err := json.NewDecoder(res.Body).Decode(&env); err != nil { t.Fatalf("decode: %v", err) }
    if res.StatusCode != 200 || len(env.Results) != 1 || env.Provider != "yfinance" { t.Fatalf("status=%d env=%+v", res.StatusCode, env) }
    if len(env.Warnings) != 1 || env.Warnings[0].Category != "partial" || !strings.Contains(env.Warnings[0].Message, "fmp") {
        t.Fatalf("warnings: %+v", env.Warnings)
    }

    // Nobody answers: the first failure is the response.
    body = `{"path":"equity/price/quote","params":{"symbol":"AAPL"},"providers":["fmp"]}`
    res2, err := http.Post(srv.URL+"/api/v1/fuse", "application/json", strings.NewReader(body))
    if err != nil { t.Fatalf("post: %v", err) }
    res2.Body.Close()
    if res2.StatusCode != http.StatusUnauthorized { t.Fatalf("status=%d", res2.StatusCode) }
}

func TestIntrospection(t *testing.T) {
    srv := newTestServer(t, nil)

    var routes struct {
        Routes []struct {
            Path      string   `json:"path"`
            Model     string   `json:"model"`
            Providers []string `json:"providers"`
        } `json:"routes"`
    }
    getJSON(t, srv.URL+"/api/v1/routes?prefix=equity", &routes)
    if len(routes.Routes) != 3 { t.Fatalf("routes: %+v", routes.Routes) }
    for _, r := range routes.Routes {
        if !strings.HasPrefix(r.Path, "/equity/") || r.Model == "" || len(r.Providers) == 0 { t.Fatalf("route: %+v", r) }
    }

    var providers struct {
        Providers []struct {
            Name        string   `json:"name"`
            Credentials []string `json:"credentials"`
            Endpoints   []string `json:"endpoints"`
        } `json:"providers"`
    }
    getJSON(t, srv.URL+"/api/v1/providers", &providers)
    if len(providers.Providers) != 3 { t.Fatalf("providers: %+v", providers.Providers) }

    var schema []struct {
        Name   string           `json:"name"`
        Params []map[string]any `json:"params"`
    }
    getJSON(t, srv.URL+"/api/v1/schema", &schema)
    if len(schema) != 6 || schema[0].Params[0]["name"] != "provider" { t.Fatalf("schema: %+v", schema) }

    res, err := http.Get(srv.URL + "/healthz")
    if err != nil || res.StatusCode != 200 { t.Fatalf("healthz: %v %v", res, err) }
    res.Body.Close()
}

func TestRateLimit(t *testing.T) {
    srv := newTestServer(t, func(c *config.Config) {
        c.Server.RateLimitPerSec = 0.001
        c.Server.RateLimitBurst = 1
    })

    first, err := http.Get(srv.URL + "/healthz")
    if err != nil { t.Fatalf("get: %v", err) }
    first.Body.Close()
    second, err := http.Get(srv.URL + "/healthz")
    if err != nil { t.Fatalf("get: %v", err) }
    second.Body.Close()
    if first.StatusCode != 200 || second.StatusCode != http.StatusTooManyRequests {
        t.Fatalf("statuses %d, %d", first.StatusCode, second.StatusCode)
    }

    // another client has its own budget
    req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
    req.Header.Set("X-Forwarded-For", "203.0.113.7")
    other, err := http.DefaultClient.Do(req)
    if err != nil { t.Fatalf("get: %v", err) }
    other.Body.Close()
    if other.StatusCode != 200 { t.Fatalf("other client status %d", other.StatusCode) }
}

func getJSON(t *testing.T, url string, out any) {
    t.Helper()
    res, err := http.Get(url)
    if err != nil { t.Fatalf("get %s: %v", url, err) }
    defer res.Body.Close()
    if res.StatusCode != 200 { t.Fatalf("get %s: status %d", url, res.StatusCode) }
    if err := json.NewDecoder(res.Body).Decode(out); err != nil { t.Fatalf("decode %s: %v", url, err) }
}
