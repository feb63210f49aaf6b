package cache

import (
    "context"
    "fmt"
    "time"

    gocache "github.com/patrickmn/go-cache"

    "dataplatform/internal/config"
)

// Store is a byte-oriented response cache. It satisfies httpx.Store.
type Store interface {
    Get(ctx context.Context, key string) ([]byte, bool, error)
    Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
    Close() error
}

// Memory keeps responses in process for their TTL.
// MaxItems caps the entry count best-effort: expired entries go first, then
// arbitrary ones.
type Memory struct {
    MaxItems int
    c        *gocache.Cache
}

func NewMemory(ttl time.Duration, maxItems int) *Memory {
    cleanup := ttl
    if cleanup <= 0 || cleanup > 10*time.Minute { cleanup = 10 * time.Minute }
    return &Memory{MaxItems: maxItems, c: gocache.New(ttl, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
    v, ok := m.c.Get(key)
    if !ok { return nil, false, nil }
    b, ok := v.([]byte)
    return b, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
    if ttl <= 0 { ttl = gocache.DefaultExpiration }
    m.c.Set(key, val, ttl)
    if m.MaxItems > 0 && m.c.ItemCount() > m.MaxItems {
        m.c.DeleteExpired()
        if over := m.c.ItemCount() - m.MaxItems; over > 0 {
            for k := range m.c.Items() {
                if over <= 0 { break }
                if k == key { continue }
                m.c.Delete(k)
                over--
            }
        }
    }
    return nil
}

func (m *Memory) Len() int { return m.c.ItemCount() }

func (m *Memory) Close() error {
    m.c.Flush()
    return nil
}

// Open builds the backend named by settings. A nil store means caching is
// disabled.
func Open(ctx context.Context, cfg config.Cache) (Store, error) {
    ttl := time.Duration(cfg.TTLSec) * time.Second
    switch cfg.Backend {
    case "", "none":
        return nil, nil
    case "memory":
        return NewMemory(ttl, cfg.MaxItems), nil
    case "redis":
        r, err := NewRedis(ctx, cfg.RedisURL, "dataplatform:")
        if err != nil { return nil, err }
        return r, nil
    case "sqlite":
        s, err := NewSQLite(cfg.SQLitePath)
        if err != nil { return nil, err }
        return s, nil
    }
    return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
}
