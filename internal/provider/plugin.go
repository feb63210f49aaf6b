package provider

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"dataplatform/internal/httpx"
	"dataplatform/internal/schema"
)

// Deps are the shared resources handed to plugin factories.
type Deps struct {
	// HTTP returns the (cached, rate limited) client of a provider.
	HTTP func(provider string) httpx.Doer
	// BaseURL overrides the upstream base URL of a provider when non-empty.
	BaseURL func(provider string) string
	// Concurrency caps parallel sub-requests of a provider.
	Concurrency func(provider string) int
	Log         zerolog.Logger
}

var sharedClient = sync.OnceValue(func() *httpx.Client { return httpx.New(0) })

// Doer returns the client for provider, falling back to the shared pool.
func (d Deps) Doer(provider string) httpx.Doer {
	if d.HTTP != nil {
		if c := d.HTTP(provider); c != nil {
			return c
		}
	}
	return sharedClient()
}

// URL returns the configured base URL of provider or def.
func (d Deps) URL(provider, def string) string {
	if d.BaseURL != nil {
		if u := d.BaseURL(provider); u != "" {
			return u
		}
	}
	return def
}

// Limit returns the fan-out limit of provider.
func (d Deps) Limit(provider string) int {
	if d.Concurrency != nil {
		if n := d.Concurrency(provider); n > 0 {
			return n
		}
	}
	return 4
}

// Factory builds a provider bundle from shared deps.
type Factory func(Deps) Provider

var plugins = struct {
	mu sync.Mutex
	m  map[string]Factory
}{m: map[string]Factory{}}

// RegisterPlugin makes a provider discoverable. Adapters call it from init;
// registering a name twice panics.
func RegisterPlugin(name string, f Factory) {
	plugins.mu.Lock()
	defer plugins.mu.Unlock()
	name = Normalize(name)
	if _, dup := plugins.m[name]; dup {
		panic(fmt.Sprintf("provider: plugin %s registered twice", name))
	}
	plugins.m[name] = f
}

// Plugins lists registered plugin names, sorted.
func Plugins() []string {
	plugins.mu.Lock()
	defer plugins.mu.Unlock()
	names := make([]string, 0, len(plugins.m))
	for n := range plugins.m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Discover instantiates every registered plugin in name order.
func Discover(deps Deps) []Provider {
	names := Plugins()
	out := make([]Provider, 0, len(names))
	plugins.mu.Lock()
	defer plugins.mu.Unlock()
	for _, n := range names {
		p := plugins.m[n](deps)
		if p.Name == "" {
			p.Name = n
		}
		out = append(out, p)
	}
	return out
}

var defaultRegistry struct {
	once sync.Once
	reg  *Registry
	err  error
}

// Default discovers plugins and builds the process registry exactly once.
// Later calls return the first result whatever their arguments.
func Default(std *schema.Registry, deps Deps) (*Registry, error) {
	defaultRegistry.once.Do(func() {
		defaultRegistry.reg, defaultRegistry.err = NewRegistry(std, Discover(deps)...)
	})
	return defaultRegistry.reg, defaultRegistry.err
}
