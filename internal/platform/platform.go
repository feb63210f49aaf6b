// Package platform assembles a runnable platform from settings: the logger,
// credential store, per-provider HTTP stacks, provider registry, command tree
// and runner. Both binaries start here.
package platform

import (
    "context"
    "fmt"
    "io"
    "time"

    "github.com/rs/zerolog"

    "dataplatform/internal/chart"
    "dataplatform/internal/config"
    "dataplatform/internal/credentials"
    "dataplatform/internal/extensions"
    "dataplatform/internal/httpx"
    "dataplatform/internal/logging"
    "dataplatform/internal/provider"
    "dataplatform/internal/provider/cache"
    "dataplatform/internal/provider/ratelimit"
    "dataplatform/internal/runner"
    "dataplatform/internal/schema/standard"

    // Providers register themselves.
    _ "dataplatform/internal/provider/fmp"
    _ "dataplatform/internal/provider/fred"
    _ "dataplatform/internal/provider/yfinance"
)

// ChartColumns is the column charted per endpoint.
var ChartColumns = map[string]string{
    standard.EquityHistorical: "close",
    standard.CryptoHistorical: "close",
    standard.FredSeries:       "value",
}

// Platform is a built runtime. Close releases the cache backend.
type Platform struct {
    Config   config.Config
    Log      zerolog.Logger
    Scrub    *logging.ScrubWriter
    Store    *credentials.Store
    Registry *provider.Registry
    Runner   *runner.Runner

    cache cache.Store
}

// Option tweaks Build.
type Option func(*options)

type options struct {
    logOut io.Writer
    http   func(name string) httpx.Doer
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option { return func(o *options) { o.logOut = w } }

// WithHTTP replaces the upstream client of every provider. The cache and
// rate limiter still wrap it.
func WithHTTP(fn func(name string) httpx.Doer) Option { return func(o *options) { o.http = fn } }

// Build wires a platform from cfg.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*Platform, error) {
    o := &options{}
    for _, opt := range opts { opt(o) }

    store, err := credentials.NewStore(cfg.Credentials, cfg.DotEnv...)
    if err != nil { return nil, fmt.Errorf("credentials: %w", err) }

    log, sw := logging.New(cfg.Log, o.logOut)

    backend, err := cache.Open(ctx, cfg.Cache)
    if err != nil { return nil, err }
    ttl := time.Duration(cfg.Cache.TTLSec) * time.Second

    base := httpx.New(30 * time.Second)
    doers := map[string]httpx.Doer{}
    doer := func(name string) httpx.Doer {
        if d, ok := doers[name]; ok { return d }
        pc := cfg.Provider(name)
        var next httpx.Doer = base.WithTimeout(time.Duration(pc.TimeoutSec) * time.Second)
        if o.http != nil {
            if d := o.http(name); d != nil { next = d }
        }
        // Limit before caching so hits never spend a token.
        next = ratelimit.Wrap(next, pc.MaxRequestsPerMinute, pc.Burst, time.Duration(pc.MinRequestIntervalSec)*time.Second)
        if backend != nil {
            next = &httpx.Cached{Next: next, Store: backend, TTL: ttl, Log: log.With().Str("provider", name).Logger()}
        }
        doers[name] = next
        return next
    }
    deps := provider.Deps{
        HTTP:        doer,
        BaseURL:     func(name string) string { return cfg.Provider(name).BaseURL },
        Concurrency: func(name string) int { return cfg.Provider(name).MaxConcurrency },
        Log:         log,
    }
    reg, err := provider.NewRegistry(standard.Registry(), provider.Discover(deps)...)
    if err != nil {
        closeStore(backend)
        return nil, fmt.Errorf("providers: %w", err)
    }
    sw.Add(store.Secrets(reg.Credentials())...)

    rt, err := extensions.Build()
    if err != nil {
        closeStore(backend)
        return nil, fmt.Errorf("commands: %w", err)
    }

    r := runner.New(rt, reg,
        runner.WithCredentials(store),
        runner.WithCharts(chart.Defaults(ChartColumns)),
        runner.WithPriority(cfg.Priority),
        runner.WithRetry(runner.RetryFrom(cfg.Retry)),
        runner.WithTimeout(time.Duration(cfg.Server.RequestTimeoutSec)*time.Second),
        runner.WithStrict(cfg.Defaults.Strict),
        runner.WithChart(cfg.Defaults.Chart),
        runner.WithLogger(log),
        runner.WithSecrets(store.Secrets(reg.Credentials())...),
    )
    log.Info().
        Strs("providers", reg.Names()).
        Int("commands", len(rt.Commands(""))).
        Str("cache", cfg.Cache.Backend).
        Msg("platform ready")
    return &Platform{Config: cfg, Log: log, Scrub: sw, Store: store, Registry: reg, Runner: r, cache: backend}, nil
}

func closeStore(s cache.Store) {
    if s != nil { _ = s.Close() }
}

// Close releases the cache backend.
func (p *Platform) Close() error {
    if p.cache == nil { return nil }
    err := p.cache.Close()
    p.cache = nil
    return err
}
