package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "maps"
    "os"
    "path/filepath"
    "sort"
    "strings"

    "github.com/bmatcuk/doublestar/v4"
    "gopkg.in/yaml.v3"
)

type Server struct {
    Port              string   `json:"port" yaml:"port"`
    RequestTimeoutSec int      `json:"request_timeout_sec" yaml:"request_timeout_sec"`
    RateLimitPerSec   float64  `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
    RateLimitBurst    int      `json:"rate_limit_burst" yaml:"rate_limit_burst"`
    CORSOrigins       []string `json:"cors_origins" yaml:"cors_origins"`
}

// Defaults holds user defaults. ProviderPriority is keyed by endpoint name,
// router path, a doublestar glob over router paths, or "*".
type Defaults struct {
    ProviderPriority map[string][]string `json:"provider_priority" yaml:"provider_priority"`
    Strict           bool                `json:"strict" yaml:"strict"`
    Chart            bool                `json:"chart" yaml:"chart"`
}

type Cache struct {
    Backend    string `json:"backend" yaml:"backend"` // none|memory|redis|sqlite
    TTLSec     int    `json:"ttl_sec" yaml:"ttl_sec"`
    MaxItems   int    `json:"max_items" yaml:"max_items"`
    RedisURL   string `json:"redis_url" yaml:"redis_url"`
    SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

type Retry struct {
    MaxAttempts int     `json:"max_attempts" yaml:"max_attempts"`
    BaseDelayMs int     `json:"base_delay_ms" yaml:"base_delay_ms"`
    Factor      float64 `json:"factor" yaml:"factor"`
    Jitter      bool    `json:"jitter" yaml:"jitter"`
}

type Provider struct {
    BaseURL               string `json:"base_url" yaml:"base_url"`
    TimeoutSec            int    `json:"timeout_sec" yaml:"timeout_sec"`
    MaxRequestsPerMinute  int    `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
    MinRequestIntervalSec int    `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
    Burst                 int    `json:"burst" yaml:"burst"`
    MaxConcurrency        int    `json:"max_concurrency" yaml:"max_concurrency"`
}

type Log struct {
    Level  string `json:"level" yaml:"level"`
    Pretty bool   `json:"pretty" yaml:"pretty"`
}

type Config struct {
    Server      Server              `json:"server" yaml:"server"`
    Credentials map[string]string   `json:"credentials" yaml:"credentials"`
    Defaults    Defaults            `json:"defaults" yaml:"defaults"`
    Cache       Cache               `json:"cache" yaml:"cache"`
    Retry       Retry               `json:"retry" yaml:"retry"`
    Providers   map[string]Provider `json:"providers" yaml:"providers"`
    Log         Log                 `json:"log" yaml:"log"`
    DotEnv      []string            `json:"dotenv" yaml:"dotenv"`
}

func Default() Config {
    return Config{
        Server:      Server{Port: "8080", RequestTimeoutSec: 30, RateLimitPerSec: 5, RateLimitBurst: 15, CORSOrigins: []string{"*"}},
        Credentials: map[string]string{},
        Defaults: Defaults{
            ProviderPriority: map[string][]string{
                "*": {"fmp", "yfinance", "fred"},
            },
        },
        Cache: Cache{Backend: "memory", TTLSec: 86400, MaxItems: 10000, SQLitePath: "cache.db"},
        Retry: Retry{MaxAttempts: 3, BaseDelayMs: 250, Factor: 2, Jitter: true},
        Providers: map[string]Provider{
            "fmp":      {MaxRequestsPerMinute: 300, Burst: 10, MaxConcurrency: 8},
            "yfinance": {MaxRequestsPerMinute: 60, Burst: 5, MaxConcurrency: 4},
            "fred":     {MaxRequestsPerMinute: 120, Burst: 5, MaxConcurrency: 4},
        },
        Log:    Log{Level: "info"},
        DotEnv: []string{".env"},
    }
}

// Load reads JSON or YAML settings from path. If path is empty it looks for
// settings.json then settings.yaml in the working directory; a missing file
// means defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        for _, p := range []string{"settings.json", "settings.yaml", "settings.yml"} {
            if _, err := os.Stat(p); err == nil { path = p; break }
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := decode(path, b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    if err := cfg.Validate(); err != nil {
        return cfg, err
    }
    return cfg, nil
}

// decode overlays the file on cfg. Provider entries are merged field by
// field, so overriding one setting keeps that provider's other defaults.
func decode(path string, b []byte, cfg *Config) error {
    base := maps.Clone(cfg.Providers)
    merged := map[string]Provider{}
    switch strings.ToLower(filepath.Ext(path)) {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, cfg); err != nil { return err }
        var raw struct {
            Providers map[string]yaml.Node `yaml:"providers"`
        }
        if err := yaml.Unmarshal(b, &raw); err != nil { return err }
        for name, node := range raw.Providers {
            p := base[name]
            if err := node.Decode(&p); err != nil { return fmt.Errorf("providers.%s: %w", name, err) }
            merged[name] = p
        }
    default:
        if err := json.Unmarshal(b, cfg); err != nil { return err }
        var raw struct {
            Providers map[string]json.RawMessage `json:"providers"`
        }
        if err := json.Unmarshal(b, &raw); err != nil { return err }
        for name, msg := range raw.Providers {
            p := base[name]
            if err := json.Unmarshal(msg, &p); err != nil { return fmt.Errorf("providers.%s: %w", name, err) }
            merged[name] = p
        }
    }
    if cfg.Providers == nil { cfg.Providers = map[string]Provider{} }
    maps.Copy(cfg.Providers, merged)
    return nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }
    if v := os.Getenv("CORS_ORIGINS"); v != "" { cfg.Server.CORSOrigins = splitCSV(v) }
    if v := os.Getenv("LOG_LEVEL"); v != "" { cfg.Log.Level = v }
    if v := os.Getenv("LOG_PRETTY"); v != "" { cfg.Log.Pretty = parseBool(v, cfg.Log.Pretty) }
    if v := os.Getenv("CACHE_BACKEND"); v != "" { cfg.Cache.Backend = strings.ToLower(v) }
    if v := os.Getenv("CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Cache.TTLSec = x }
    }
    if v := os.Getenv("REDIS_URL"); v != "" { cfg.Cache.RedisURL = v }
    if v := os.Getenv("CACHE_SQLITE_PATH"); v != "" { cfg.Cache.SQLitePath = v }
    if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Retry.MaxAttempts = x }
    }
    if v := os.Getenv("STRICT"); v != "" { cfg.Defaults.Strict = parseBool(v, cfg.Defaults.Strict) }
    if v := os.Getenv("PROVIDER_PRIORITY"); v != "" {
        if cfg.Defaults.ProviderPriority == nil { cfg.Defaults.ProviderPriority = map[string][]string{} }
        cfg.Defaults.ProviderPriority["*"] = splitCSV(v)
    }
    for name, p := range cfg.Providers {
        prefix := strings.ToUpper(name) + "_"
        if v := os.Getenv(prefix + "BASE_URL"); v != "" { p.BaseURL = v }
        if v := os.Getenv(prefix + "MAX_RPM"); v != "" {
            var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { p.MaxRequestsPerMinute = x }
        }
        if v := os.Getenv(prefix + "MIN_INTERVAL_SEC"); v != "" {
            var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { p.MinRequestIntervalSec = x }
        }
        if v := os.Getenv(prefix + "BURST"); v != "" {
            var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { p.Burst = x }
        }
        if v := os.Getenv(prefix + "TIMEOUT_SEC"); v != "" {
            var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { p.TimeoutSec = x }
        }
        cfg.Providers[name] = p
    }
}

// Validate rejects settings the runtime cannot honor.
func (c Config) Validate() error {
    switch c.Cache.Backend {
    case "", "none", "memory", "sqlite":
    case "redis":
        if c.Cache.RedisURL == "" { return errors.New("config: cache.backend=redis requires cache.redis_url") }
    default:
        return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
    }
    if c.Retry.MaxAttempts < 1 { return errors.New("config: retry.max_attempts must be >= 1") }
    if c.Retry.Factor < 1 { return errors.New("config: retry.factor must be >= 1") }
    for pattern := range c.Defaults.ProviderPriority {
        if !doublestar.ValidatePattern(pattern) {
            return fmt.Errorf("config: invalid provider_priority pattern %q", pattern)
        }
    }
    return nil
}

// Priority returns the ordered provider list for an endpoint. Lookup order:
// endpoint name, exact router path, the most specific matching glob, "*".
func (c Config) Priority(endpoint, path string) []string {
    pp := c.Defaults.ProviderPriority
    if v, ok := pp[endpoint]; ok { return v }
    path = strings.Trim(path, "/")
    if v, ok := pp[path]; ok { return v }
    var globs []string
    for k := range pp {
        if k == "*" || k == endpoint || k == path { continue }
        if ok, _ := doublestar.Match(k, path); ok { globs = append(globs, k) }
    }
    if len(globs) > 0 {
        // longer literal prefixes are more specific
        sort.Slice(globs, func(i, j int) bool {
            if len(globs[i]) != len(globs[j]) { return len(globs[i]) > len(globs[j]) }
            return globs[i] < globs[j]
        })
        return pp[globs[0]]
    }
    return pp["*"]
}

// Provider returns the settings of a provider with defaults filled in.
func (c Config) Provider(name string) Provider {
    p := c.Providers[name]
    if p.TimeoutSec <= 0 { p.TimeoutSec = 10 }
    if p.MaxConcurrency <= 0 { p.MaxConcurrency = 4 }
    return p
}

func parseBool(v string, def bool) bool {
    switch strings.ToLower(v) {
    case "1", "true", "yes", "y": return true
    case "0", "false", "no", "n": return false
    }
    return def
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}
