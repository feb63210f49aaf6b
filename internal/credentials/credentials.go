// Package credentials scopes provider secrets to a single dispatch.
package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Mask replaces secret values in scrubbed text.
const Mask = "***"

// Set is a flat mapping from credential key (e.g. fmp_api_key) to secret.
type Set map[string]string

// Subset returns the entries named by keys.
func (s Set) Subset(keys []string) Set {
	out := make(Set, len(keys))
	for _, k := range keys {
		if v, ok := s[k]; ok && v != "" {
			out[k] = v
		}
	}
	return out
}

// Missing returns the keys with no non-empty value, in input order.
func (s Set) Missing(keys []string) []string {
	var out []string
	for _, k := range keys {
		if s[k] == "" {
			out = append(out, k)
		}
	}
	return out
}

// Merge returns a copy of s overlaid with o.
func (s Set) Merge(o Set) Set {
	out := make(Set, len(s)+len(o))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range o {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Values returns the non-empty secrets, longest first.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Fingerprint identifies the set without revealing it. An empty set has an
// empty fingerprint.
func (s Set) Fingerprint() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(s[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Scrub masks every secret value of s found in text.
func (s Set) Scrub(text string) string {
	return ScrubValues(text, s.Values())
}

// ScrubValues masks every value in secrets found in text. Longer secrets must
// come first so a secret containing another is masked whole.
func ScrubValues(text string, secrets []string) string {
	for _, v := range secrets {
		if v == "" {
			continue
		}
		text = strings.ReplaceAll(text, v, Mask)
	}
	return text
}

// EnvKey returns the environment variable that may carry key, e.g.
// fmp_api_key -> FMP_API_KEY.
func EnvKey(key string) string { return strings.ToUpper(key) }

// Store resolves credentials from persisted settings with an environment
// fallback. It is read-only after construction.
type Store struct {
	settings Set
	lookup   func(string) (string, bool)
	dotenv   map[string]string
}

// NewStore builds a store from the settings map. Values in dotenv files act as
// environment variables but never override the real environment.
func NewStore(settings map[string]string, dotenvFiles ...string) (*Store, error) {
	s := &Store{settings: Set{}, lookup: os.LookupEnv, dotenv: map[string]string{}}
	for k, v := range settings {
		s.settings[strings.ToLower(k)] = v
	}
	for _, f := range dotenvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		m, err := godotenv.Read(f)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			if _, ok := s.dotenv[k]; !ok {
				s.dotenv[k] = v
			}
		}
	}
	return s, nil
}

// WithLookup replaces the environment lookup.
func (s *Store) WithLookup(fn func(string) (string, bool)) *Store {
	s.lookup = fn
	return s
}

func (s *Store) env(key string) string {
	name := EnvKey(key)
	if v, ok := s.lookup(name); ok && v != "" {
		return v
	}
	return s.dotenv[name]
}

// Get returns a credential. The environment is consulted only when the
// setting is unset.
func (s *Store) Get(key string) string {
	if v := s.settings[key]; v != "" {
		return v
	}
	return s.env(key)
}

// Resolve returns the subset of credentials named by keys.
func (s *Store) Resolve(keys []string) Set {
	out := make(Set, len(keys))
	for _, k := range keys {
		if v := s.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// Secrets returns every known secret value for log scrubbing.
func (s *Store) Secrets(keys []string) []string {
	all := s.Resolve(keys)
	for k, v := range s.settings {
		if v != "" {
			all[k] = v
		}
	}
	return all.Values()
}
