package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog"

    "dataplatform/internal/config"
    "dataplatform/internal/platform"
)

func main() {
    boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil {
        boot.Fatal().Err(err).Msg("config")
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    p, err := platform.Build(ctx, cfg)
    if err != nil {
        boot.Fatal().Err(err).Msg("platform")
    }
    defer p.Close()
    for _, name := range p.Registry.Names() {
        prov, _ := p.Registry.Provider(name)
        if missing := p.Store.Resolve(prov.Credentials).Missing(prov.Credentials); len(missing) > 0 {
            p.Log.Warn().Str("provider", name).Strs("missing", missing).Msg("credentials not set; requests to this provider will fail")
        }
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           newHandler(p, cfg.Server),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      time.Duration(cfg.Server.RequestTimeoutSec+10) * time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        p.Log.Info().Str("addr", srv.Addr).Msg("server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            p.Log.Fatal().Err(err).Msg("server")
        }
    }()

    // graceful shutdown
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    _ = srv.Shutdown(shutdownCtx)
}

func newHandler(p *platform.Platform, sc config.Server) http.Handler {
    a := &api{run: p.Runner, log: p.Log}
    mux := http.NewServeMux()
    a.routes(mux)
    var h http.Handler = limitBody(mux)
    h = limitRate(sc.RateLimitPerSec, sc.RateLimitBurst, h)
    h = recoverPanic(p.Log, h)
    h = withCompression(h)
    h = withCORS(sc.CORSOrigins, h)
    return logRequests(p.Log, h)
}
