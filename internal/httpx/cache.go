package httpx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Store is a byte-oriented response cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Close() error
}

type fingerprintKey struct{}

// WithFingerprint scopes cache entries to a credential fingerprint.
func WithFingerprint(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, fingerprintKey{}, fp)
}

func fingerprint(ctx context.Context) string {
	fp, _ := ctx.Value(fingerprintKey{}).(string)
	return fp
}

// CacheKey derives the key of a request: full URL, credential fingerprint and
// body hash.
func CacheKey(method, url, fp string, body []byte) string {
	bh := sha256.Sum256(body)
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{' '})
	h.Write([]byte(url))
	h.Write([]byte{'\n'})
	h.Write([]byte(fp))
	h.Write([]byte{'\n'})
	h.Write([]byte(hex.EncodeToString(bh[:])))
	return hex.EncodeToString(h.Sum(nil))
}

// Cached is a read-through response cache in front of a Doer. Only 2xx
// responses to GET and POST are stored; identical concurrent misses share one
// upstream call.
type Cached struct {
	Next  Doer
	Store Store
	TTL   time.Duration
	Log   zerolog.Logger

	group singleflight.Group
}

const CacheHeader = "X-Cache"

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

func (s *snapshot) response(req *http.Request) *http.Response {
	h := s.header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{
		Status:        strconv.Itoa(s.status) + " " + http.StatusText(s.status),
		StatusCode:    s.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
		Request:       req,
	}
}

func (c *Cached) Do(req *http.Request) (*http.Response, error) {
	if c.Store == nil || (req.Method != http.MethodGet && req.Method != http.MethodPost) {
		return c.Next.Do(req)
	}
	ctx := req.Context()
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		body = b
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
	}
	key := CacheKey(req.Method, req.URL.String(), fingerprint(ctx), body)

	if b, ok, err := c.Store.Get(ctx, key); err != nil {
		c.Log.Warn().Err(err).Msg("response cache read failed")
	} else if ok {
		snap := &snapshot{status: http.StatusOK, header: http.Header{CacheHeader: []string{"HIT"}}, body: b}
		return snap.response(req), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := c.Next.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		snap := &snapshot{status: res.StatusCode, header: res.Header.Clone(), body: b}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			if err := c.Store.Set(ctx, key, b, c.TTL); err != nil {
				c.Log.Warn().Err(err).Msg("response cache write failed")
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot).response(req), nil
}
