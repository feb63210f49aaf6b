// Package logging builds the process logger. Every sink is wrapped so that
// known secret values never reach it, and structured argument maps are
// redacted by key.
package logging

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dataplatform/internal/config"
	"dataplatform/internal/credentials"
)

var sensitive = []string{"key", "token", "password", "auth", "secret"}

// Sensitive reports whether a field name must be redacted.
func Sensitive(name string) bool {
	n := strings.ToLower(name)
	for _, s := range sensitive {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// Redact returns a copy of m with sensitive keys masked, recursing into
// nested maps and slices.
func Redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if Sensitive(k) {
			out[k] = credentials.Mask
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Redact(x)
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return Redact(out)
	case []map[string]any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Redact(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = redactValue(e)
		}
		return out
	}
	return v
}

// ScrubWriter masks secret values in every write.
type ScrubWriter struct {
	w       io.Writer
	mu      sync.RWMutex
	secrets [][]byte
}

func NewScrubWriter(w io.Writer, secrets ...string) *ScrubWriter {
	s := &ScrubWriter{w: w}
	s.Add(secrets...)
	return s
}

// Add registers more secrets. Longer secrets are matched first.
func (s *ScrubWriter) Add(secrets ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range secrets {
		if v != "" {
			s.secrets = append(s.secrets, []byte(v))
		}
	}
	sort.Slice(s.secrets, func(i, j int) bool { return len(s.secrets[i]) > len(s.secrets[j]) })
}

func (s *ScrubWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	out := p
	for _, sec := range s.secrets {
		if len(sec) > 0 && bytes.Contains(out, sec) {
			out = bytes.ReplaceAll(out, sec, []byte(credentials.Mask))
		}
	}
	s.mu.RUnlock()
	if _, err := s.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// New builds a logger from settings. w defaults to stderr.
func New(cfg config.Log, w io.Writer, secrets ...string) (zerolog.Logger, *ScrubWriter) {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	sw := NewScrubWriter(w, secrets...)
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(sw).Level(level).With().Timestamp().Logger(), sw
}
