package ratelimit

import (
    "net/http"
    "time"

    "golang.org/x/time/rate"

    "dataplatform/internal/fault"
    "dataplatform/internal/httpx"
)

// Limited gates upstream calls of one provider behind a limiter. Waiting
// honours the request context, so a cancelled dispatch stops queueing.
type Limited struct {
    Next    httpx.Doer
    Limiter *rate.Limiter
}

func (l *Limited) Do(req *http.Request) (*http.Response, error) {
    if l.Limiter != nil {
        if err := l.Limiter.Wait(req.Context()); err != nil {
            if ctxErr := req.Context().Err(); ctxErr != nil { return nil, ctxErr }
            // the wait would outlast the deadline; the dispatch is out of time either way
            return nil, fault.Wrap(fault.Cancelled, err, "rate limit wait exceeds the request deadline")
        }
    }
    return l.Next.Do(req)
}

// TokenBucket allows rpm requests per minute with bursts of burst.
func TokenBucket(rpm, burst int) *rate.Limiter {
    if burst <= 0 { burst = 1 }
    return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// MinInterval allows one request per interval.
func MinInterval(interval time.Duration) *rate.Limiter {
    return rate.NewLimiter(rate.Every(interval), 1)
}

// Wrap picks a token bucket when rpm is set, otherwise a minimum interval,
// otherwise no limit.
func Wrap(next httpx.Doer, rpm, burst int, minInterval time.Duration) httpx.Doer {
    switch {
    case rpm > 0:
        return &Limited{Next: next, Limiter: TokenBucket(rpm, burst)}
    case minInterval > 0:
        return &Limited{Next: next, Limiter: MinInterval(minInterval)}
    }
    return next
}
