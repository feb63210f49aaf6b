package provider

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"dataplatform/internal/schema"
)

var (
	ErrDuplicateFetcher = errors.New("duplicate fetcher")
	ErrMissingContract  = errors.New("fetcher does not satisfy its contract")
	ErrNoFetcher        = errors.New("no fetcher")
)

// Handle is a registered fetcher bound to its merged models.
type Handle struct {
	Entry
	// Query is the standard query model merged with the provider extension.
	Query schema.Model
	// Data is the standard data model merged with the provider extension.
	Data schema.Model
	// Standard is the unextended data model every row must satisfy.
	Standard schema.Model
	// Credentials are the keys the fetcher needs, empty when none.
	Credentials []string
}

// Multiple reports whether this fetcher accepts several values for field.
func (h *Handle) Multiple(field string) bool {
	f, ok := h.Query.Field(field)
	return ok && f.Multiple
}

type key struct{ endpoint, provider string }

// Registry indexes fetchers by (endpoint, provider). It is built once at
// startup and only read afterwards.
type Registry struct {
	std        *schema.Registry
	providers  map[string]Provider
	names      []string
	fetchers   map[key]*Handle
	byEndpoint map[string][]string
	creds      []string
}

// NewRegistry validates every fetcher against the standard catalog and
// indexes it.
func NewRegistry(std *schema.Registry, providers ...Provider) (*Registry, error) {
	r := &Registry{
		std:        std,
		providers:  map[string]Provider{},
		fetchers:   map[key]*Handle{},
		byEndpoint: map[string][]string{},
	}
	for _, p := range providers {
		if err := r.add(p); err != nil {
			return nil, err
		}
	}
	slices.Sort(r.names)
	for e := range r.byEndpoint {
		slices.Sort(r.byEndpoint[e])
	}
	slices.Sort(r.creds)
	r.creds = slices.Compact(r.creds)
	return r, nil
}

func (r *Registry) add(p Provider) error {
	name := Normalize(p.Name)
	if name == "" {
		return fmt.Errorf("%w: provider without a name", ErrMissingContract)
	}
	if _, dup := r.providers[name]; dup {
		return fmt.Errorf("%w: provider %s registered twice", ErrDuplicateFetcher, name)
	}
	p.Name = name
	for _, e := range p.Fetchers {
		h, err := r.bind(p, e)
		if err != nil {
			return err
		}
		k := key{h.Info().Endpoint, name}
		if _, dup := r.fetchers[k]; dup {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateFetcher, k.endpoint, name)
		}
		r.fetchers[k] = h
		r.byEndpoint[k.endpoint] = append(r.byEndpoint[k.endpoint], name)
	}
	r.providers[name] = p
	r.names = append(r.names, name)
	r.creds = append(r.creds, p.Credentials...)
	return nil
}

func (r *Registry) bind(p Provider, e Entry) (*Handle, error) {
	info := e.Info()
	where := fmt.Sprintf("%s/%s", info.Endpoint, p.Name)
	if e.transform == nil {
		return nil, fmt.Errorf("%w: %s is not an erased fetcher", ErrMissingContract, where)
	}
	if Normalize(info.Provider) != p.Name {
		return nil, fmt.Errorf("%w: %s declares provider %q", ErrMissingContract, where, info.Provider)
	}
	ep, err := r.std.Endpoint(info.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingContract, where, err)
	}
	q, err := info.QueryModel(ep.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingContract, where, err)
	}
	d, err := info.DataModel(ep.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingContract, where, err)
	}
	if err := info.QueryAliases.ValidateFor(q); err != nil {
		return nil, fmt.Errorf("%s: %w", where, err)
	}
	if err := info.DataAliases.ValidateFor(d); err != nil {
		return nil, fmt.Errorf("%s: %w", where, err)
	}
	h := &Handle{Entry: e, Query: q, Data: d, Standard: ep.Data}
	if info.RequireCredentials {
		if len(p.Credentials) == 0 {
			return nil, fmt.Errorf("%w: %s requires credentials but %s declares none", ErrMissingContract, where, p.Name)
		}
		h.Credentials = slices.Clone(p.Credentials)
	}
	return h, nil
}

// Normalize is the canonical form of a provider name.
func Normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Standard returns the catalog the registry was validated against.
func (r *Registry) Standard() *schema.Registry { return r.std }

// Fetcher returns the fetcher of provider for endpoint.
func (r *Registry) Fetcher(endpoint, provider string) (*Handle, error) {
	h, ok := r.fetchers[key{endpoint, Normalize(provider)}]
	if !ok {
		return nil, fmt.Errorf("%w for %s from provider %q", ErrNoFetcher, endpoint, provider)
	}
	return h, nil
}

// Providers lists, sorted, the providers that serve endpoint.
func (r *Registry) Providers(endpoint string) []string {
	return slices.Clone(r.byEndpoint[endpoint])
}

// Provider returns a registered provider bundle.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[Normalize(name)]
	return p, ok
}

// Names lists every registered provider, sorted.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Credentials is the union of credential keys over all providers.
func (r *Registry) Credentials() []string { return slices.Clone(r.creds) }

// Choices are the provider choices of one endpoint.
type Choices struct {
	Providers []string `json:"providers"`
	Default   string   `json:"default,omitempty"`
	Priority  []string `json:"priority"`
}

// Choices filters priority to providers that serve endpoint. The default is
// the first of those, or the first provider alphabetically.
func (r *Registry) Choices(endpoint string, priority []string) Choices {
	c := Choices{Providers: r.Providers(endpoint), Priority: []string{}}
	for _, p := range priority {
		p = Normalize(p)
		if slices.Contains(c.Providers, p) && !slices.Contains(c.Priority, p) {
			c.Priority = append(c.Priority, p)
		}
	}
	switch {
	case len(c.Priority) > 0:
		c.Default = c.Priority[0]
	case len(c.Providers) > 0:
		c.Default = c.Providers[0]
	}
	return c
}
