package platform_test

import (
    "bytes"
    "io"
    "net/http"
    "os"
    "strings"
    "sync/atomic"
    "testing"

    "github.com/stretchr/testify/require"

    "dataplatform/internal/config"
    "dataplatform/internal/httpx"
    "dataplatform/internal/platform"
)

const secret = "fmp-secret-value"

func TestBuild_CachesUpstreamAndScrubsLogs(t *testing.T) {
    // Arrange
    body, err := os.ReadFile("../runner/testdata/fmp_historical_aapl.json")
    require.NoError(t, err)
    var calls atomic.Int32
    upstream := httpx.DoerFunc(func(req *http.Request) (*http.Response, error) {
        calls.Add(1)
        return &http.Response{
            StatusCode: http.StatusOK,
            Header:     http.Header{"Content-Type": []string{"application/json"}},
            Body:       io.NopCloser(bytes.NewReader(body)),
            Request:    req,
        }, nil
    })
    cfg := config.Default()
    cfg.DotEnv = nil
    cfg.Credentials = map[string]string{"fmp_api_key": secret}
    cfg.Log.Level = "debug"
    logs := &bytes.Buffer{}

    p, err := platform.Build(t.Context(), cfg,
        platform.WithLogOutput(logs),
        platform.WithHTTP(func(string) httpx.Doer { return upstream }))
    require.NoError(t, err)
    t.Cleanup(func() { _ = p.Close() })
    params := map[string]any{"symbol": "AAPL", "start_date": "2024-01-02", "end_date": "2024-01-05", "provider": "fmp"}

    // Act
    first, err := p.Runner.Run(t.Context(), "equity/price/historical", params)
    require.NoError(t, err)
    second, err := p.Runner.Run(t.Context(), "equity/price/historical", params)
    require.NoError(t, err)

    // Assert
    require.Equal(t, int32(1), calls.Load())
    require.Len(t, first.Results, 4)
    require.Equal(t, first.Results, second.Results)
    require.Nil(t, first.Chart)
    require.ElementsMatch(t, []string{"fmp", "fred", "yfinance"}, p.Registry.Names())
    require.NotEmpty(t, logs.String())
    require.False(t, strings.Contains(logs.String(), secret))
}

func TestBuild_DefaultChartFromSettings(t *testing.T) {
    // Arrange
    body, err := os.ReadFile("../runner/testdata/fmp_historical_aapl.json")
    require.NoError(t, err)
    upstream := httpx.DoerFunc(func(req *http.Request) (*http.Response, error) {
        return &http.Response{
            StatusCode: http.StatusOK,
            Header:     http.Header{"Content-Type": []string{"application/json"}},
            Body:       io.NopCloser(bytes.NewReader(body)),
            Request:    req,
        }, nil
    })
    cfg := config.Default()
    cfg.DotEnv = nil
    cfg.Cache.Backend = "none"
    cfg.Credentials = map[string]string{"fmp_api_key": secret}
    cfg.Defaults.Chart = true
    p, err := platform.Build(t.Context(), cfg,
        platform.WithLogOutput(io.Discard),
        platform.WithHTTP(func(string) httpx.Doer { return upstream }))
    require.NoError(t, err)
    t.Cleanup(func() { _ = p.Close() })
    params := map[string]any{"symbol": "AAPL", "start_date": "2024-01-02", "end_date": "2024-01-05", "provider": "fmp"}

    // Act
    charted, err := p.Runner.Run(t.Context(), "equity/price/historical", params)
    require.NoError(t, err)
    params["chart"] = "false"
    plain, err := p.Runner.Run(t.Context(), "equity/price/historical", params)
    require.NoError(t, err)

    // Assert
    require.NotNil(t, charted.Chart)
    require.Nil(t, plain.Chart)
}

func TestBuild_RejectsBadCache(t *testing.T) {
    cfg := config.Default()
    cfg.DotEnv = nil
    cfg.Cache.Backend = "etcd"

    _, err := platform.Build(t.Context(), cfg, platform.WithLogOutput(io.Discard))

    require.Error(t, err)
}
