package cache

import (
    "context"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "dataplatform/internal/config"
    "dataplatform/internal/httpx"
)

var (
    _ httpx.Store = (*Memory)(nil)
    _ httpx.Store = (*Redis)(nil)
    _ httpx.Store = (*SQLite)(nil)
)

func TestMemory_GetSetAndCap(t *testing.T) {
    t.Parallel()

    // Arrange
    m := NewMemory(time.Hour, 2)
    ctx := t.Context()

    // Act
    require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
    require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
    require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

    // Assert
    require.Equal(t, 2, m.Len())
    b, ok, err := m.Get(ctx, "c")
    require.NoError(t, err)
    require.True(t, ok)
    require.Equal(t, []byte("3"), b)

    _, ok, err = m.Get(ctx, "missing")
    require.NoError(t, err)
    require.False(t, ok)
}

func TestMemory_Expires(t *testing.T) {
    t.Parallel()

    m := NewMemory(time.Hour, 0)
    require.NoError(t, m.Set(t.Context(), "k", []byte("v"), time.Millisecond))
    time.Sleep(5 * time.Millisecond)
    _, ok, err := m.Get(t.Context(), "k")
    require.NoError(t, err)
    require.False(t, ok)
}

func TestSQLite_RoundTripAndExpiry(t *testing.T) {
    t.Parallel()

    // Arrange
    s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
    require.NoError(t, err)
    t.Cleanup(func() { _ = s.Close() })
    now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
    s.now = func() time.Time { return now }
    ctx := t.Context()

    // Act
    require.NoError(t, s.Set(ctx, "k", []byte(`{"a":1}`), time.Hour))
    require.NoError(t, s.Set(ctx, "k", []byte(`{"a":2}`), time.Hour))
    b, ok, err := s.Get(ctx, "k")

    // Assert
    require.NoError(t, err)
    require.True(t, ok)
    require.Equal(t, `{"a":2}`, string(b))

    now = now.Add(2 * time.Hour)
    _, ok, err = s.Get(ctx, "k")
    require.NoError(t, err)
    require.False(t, ok)
    n, err := s.Purge(ctx)
    require.NoError(t, err)
    require.Equal(t, int64(1), n)
}

func TestRedis_RoundTrip(t *testing.T) {
    url := os.Getenv("REDIS_URL")
    if url == "" {
        t.Skip("REDIS_URL not set")
    }
    r, err := NewRedis(context.Background(), url, "test:")
    require.NoError(t, err)
    t.Cleanup(func() { _ = r.Close() })

    require.NoError(t, r.Set(t.Context(), "k", []byte("v"), time.Minute))
    b, ok, err := r.Get(t.Context(), "k")
    require.NoError(t, err)
    require.True(t, ok)
    require.Equal(t, "v", string(b))
    _, ok, err = r.Get(t.Context(), "missing")
    require.NoError(t, err)
    require.False(t, ok)
}

func TestOpen(t *testing.T) {
    t.Parallel()

    s, err := Open(t.Context(), config.Cache{Backend: "none"})
    require.NoError(t, err)
    require.Nil(t, s)

    s, err = Open(t.Context(), config.Cache{Backend: "memory", TTLSec: 60})
    require.NoError(t, err)
    require.IsType(t, &Memory{}, s)

    s, err = Open(t.Context(), config.Cache{Backend: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "c.db")})
    require.NoError(t, err)
    require.NoError(t, s.Close())

    _, err = Open(t.Context(), config.Cache{Backend: "etcd"})
    require.Error(t, err)
}
