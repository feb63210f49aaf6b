package main

import (
    "compress/gzip"
    "io"
    "net"
    "net/http"
    "slices"
    "strings"
    "sync"
    "time"

    "github.com/andybalholm/brotli"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    "dataplatform/internal/fault"
    "dataplatform/internal/logging"
)

// withCORS answers browsers from the configured origins. "*" allows any
// origin; otherwise a matching Origin is echoed back.
func withCORS(origins []string, next http.Handler) http.Handler {
    wildcard := slices.Contains(origins, "*")
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        origin := r.Header.Get("Origin")
        switch {
        case wildcard:
            w.Header().Set("Access-Control-Allow-Origin", "*")
        case origin != "" && slices.Contains(origins, origin):
            w.Header().Set("Access-Control-Allow-Origin", origin)
            w.Header().Add("Vary", "Origin")
        default:
            next.ServeHTTP(w, r)
            return
        }
        w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
        w.Header().Set("Access-Control-Allow-Headers", "Content-Type,X-Request-ID")
        w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID,Retry-After")
        if r.Method == http.MethodOptions {
            w.WriteHeader(http.StatusNoContent)
            return
        }
        next.ServeHTTP(w, r)
    })
}

type encoder interface {
    io.WriteCloser
    Reset(io.Writer)
}

// withCompression encodes responses as br or gzip, whichever the client
// lists first. Encoders are pooled per encoding.
func withCompression(next http.Handler) http.Handler {
    pools := map[string]*sync.Pool{
        "br": {New: func() any { return brotli.NewWriterLevel(io.Discard, brotli.BestSpeed) }},
        "gzip": {New: func() any {
            w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
            return w
        }},
    }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        enc := negotiate(r.Header.Get("Accept-Encoding"))
        if enc == "" {
            next.ServeHTTP(w, r)
            return
        }
        ew := pools[enc].Get().(encoder)
        ew.Reset(w)
        defer func() {
            _ = ew.Close()
            ew.Reset(io.Discard)
            pools[enc].Put(ew)
        }()
        w.Header().Set("Content-Encoding", enc)
        w.Header().Add("Vary", "Accept-Encoding")
        w.Header().Del("Content-Length")
        next.ServeHTTP(encodedWriter{ResponseWriter: w, Writer: ew}, r)
    })
}

// negotiate picks the first of br and gzip the client accepts.
func negotiate(accept string) string {
    for _, part := range strings.Split(accept, ",") {
        name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
        if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" { continue }
        switch name = strings.ToLower(strings.TrimSpace(name)); name {
        case "br", "gzip":
            return name
        }
    }
    return ""
}

type encodedWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (e encodedWriter) Write(b []byte) (int, error) {
    return e.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
    const maxBody = 1 << 20 // 1MB
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method == http.MethodPost && r.Body != nil {
            r.Body = http.MaxBytesReader(w, r.Body, maxBody)
        }
        next.ServeHTTP(w, r)
    })
}

// recoverPanic protects handlers from panics.
func recoverPanic(log zerolog.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        defer func() {
            if rec := recover(); rec != nil {
                log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
                writeError(w, fault.New(fault.Unknown, "internal server error"))
            }
        }()
        next.ServeHTTP(w, r)
    })
}

// limitRate sheds load beyond perSec requests per second from one client
// with a 429. A non-positive rate disables it.
func limitRate(perSec float64, burst int, next http.Handler) http.Handler {
    if perSec <= 0 { return next }
    if burst <= 0 { burst = 1 }
    const maxClients = 10000
    var (
        mu      sync.Mutex
        clients = map[string]*rate.Limiter{}
    )
    limiter := func(key string) *rate.Limiter {
        mu.Lock()
        defer mu.Unlock()
        lim, ok := clients[key]
        if !ok {
            // forget everyone rather than grow without bound
            if len(clients) >= maxClients { clear(clients) }
            lim = rate.NewLimiter(rate.Limit(perSec), burst)
            clients[key] = lim
        }
        return lim
    }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !limiter(clientKey(r)).Allow() {
            w.Header().Set("Retry-After", "1")
            writeError(w, fault.New(fault.RateLimited, "too many requests"))
            return
        }
        next.ServeHTTP(w, r)
    })
}

func clientKey(r *http.Request) string {
    if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
        first, _, _ := strings.Cut(fwd, ",")
        return strings.TrimSpace(first)
    }
    host, _, err := net.SplitHostPort(r.RemoteAddr)
    if err != nil { return r.RemoteAddr }
    return host
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (s *statusRecorder) WriteHeader(code int) {
    s.status = code
    s.ResponseWriter.WriteHeader(code)
}

// logRequests writes one access line per request. Sensitive query
// parameters are masked.
func logRequests(log zerolog.Logger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        id := r.Header.Get("X-Request-ID")
        if id == "" { id = uuid.NewString() }
        w.Header().Set("X-Request-ID", id)
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)

        query := map[string]any{}
        for k, v := range r.URL.Query() { query[k] = strings.Join(v, ",") }
        log.Info().
            Str("http_request_id", id).
            Str("method", r.Method).
            Str("path", r.URL.Path).
            Interface("query", logging.Redact(query)).
            Int("status", rec.status).
            Dur("duration", time.Since(start)).
            Msg("request")
    })
}
