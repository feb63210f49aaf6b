// Package signature merges the standard parameters of every endpoint with
// the extensions of the providers serving it into one parameter model per
// endpoint, keeping per-field provenance. The router shapes requests with it
// and client generators document from it.
package signature

import (
	"encoding/json"
	"io"
	"slices"
	"sort"

	"dataplatform/internal/provider"
	"dataplatform/internal/schema"
)

// ProviderParam is the name of the parameter that selects the provider.
const ProviderParam = "provider"

// Param is one merged query field.
//
// Standard fields are accepted by every provider. Providers lists who accepts
// the field. Choices on the embedded field is the union over
// providers; ChoicesBy keeps each provider's own list.
type Param struct {
	schema.Field
	Standard   bool                `json:"standard"`
	Providers  []string            `json:"providers"`
	ChoicesBy  map[string][]string `json:"choices_by_provider,omitempty"`
	MultipleBy []string            `json:"multiple_items_allowed_by,omitempty"`
}

// AcceptedBy reports whether prov accepts the parameter.
func (p Param) AcceptedBy(prov string) bool {
	return p.Standard || slices.Contains(p.Providers, prov)
}

// Endpoint is the merged signature of one standard endpoint.
type Endpoint struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Params      []Param             `json:"params"`
	Data        []Param             `json:"data"`
	Providers   provider.Choices    `json:"provider_choices"`
	Credentials map[string][]string `json:"credentials"`
}

// Param looks a parameter up by name.
func (e *Endpoint) Param(name string) (Param, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Choices returns the union of enum choices of a parameter, or nil.
func (e *Endpoint) Choices(name string) []string {
	p, ok := e.Param(name)
	if !ok {
		return nil
	}
	return p.Choices
}

// Split sorts raw into the standard parameters, the extension parameters the
// provider accepts, and the names it does not accept. The provider selector
// itself is neither. Unsupported names come back sorted.
func (e *Endpoint) Split(prov string, raw map[string]any) (standard, extra map[string]any, unsupported []string) {
	standard, extra = map[string]any{}, map[string]any{}
	prov = provider.Normalize(prov)
	for k, v := range raw {
		if k == ProviderParam {
			continue
		}
		p, ok := e.Param(k)
		switch {
		case ok && p.Standard:
			standard[k] = v
		case ok && p.AcceptedBy(prov):
			extra[k] = v
		default:
			unsupported = append(unsupported, k)
		}
	}
	sort.Strings(unsupported)
	return standard, extra, unsupported
}

// Signature holds the merged endpoints. It is built once and read-only.
type Signature struct {
	endpoints map[string]*Endpoint
	order     []string
}

// New merges every endpoint of reg. priority gives the user's provider order
// of an endpoint; it may be nil.
func New(reg *provider.Registry, priority func(endpoint string) []string) *Signature {
	s := &Signature{endpoints: map[string]*Endpoint{}}
	for _, ep := range reg.Standard().Endpoints() {
		var prio []string
		if priority != nil {
			prio = priority(ep.Name)
		}
		e := &Endpoint{
			Name:        ep.Name,
			Description: ep.Description,
			Providers:   reg.Choices(ep.Name, prio),
			Credentials: map[string][]string{},
		}
		var handles []*provider.Handle
		for _, name := range e.Providers.Providers {
			h, err := reg.Fetcher(ep.Name, name)
			if err != nil {
				continue
			}
			handles = append(handles, h)
			if len(h.Credentials) > 0 {
				e.Credentials[name] = slices.Clone(h.Credentials)
			}
		}
		e.Params = merge(ep.Query, handles, func(h *provider.Handle) schema.Model { return h.Query })
		e.Data = merge(ep.Data, handles, func(h *provider.Handle) schema.Model { return h.Data })
		if len(e.Providers.Providers) > 0 {
			e.Params = append([]Param{selector(e.Providers)}, e.Params...)
		}
		s.endpoints[ep.Name] = e
		s.order = append(s.order, ep.Name)
	}
	return s
}

func selector(c provider.Choices) Param {
	return Param{
		Field: schema.Field{
			Name:        ProviderParam,
			Type:        schema.Enum,
			Description: "The provider to use, by default the first of the user's priority list that serves the endpoint.",
			Optional:    true,
			Choices:     slices.Clone(c.Providers),
			Default:     c.Default,
		},
		Standard: true,
	}
}

// merge walks the standard fields then every provider's extension in
// provider order. The first provider to declare an extension field defines
// its type and description.
func merge(std schema.Model, handles []*provider.Handle, model func(*provider.Handle) schema.Model) []Param {
	out := make([]Param, 0, len(std.Fields))
	index := map[string]int{}
	for _, f := range std.Fields {
		index[f.Name] = len(out)
		out = append(out, Param{Field: f, Standard: true})
	}
	for _, h := range handles {
		name := h.Info().Provider
		for _, f := range model(h).Fields {
			i, seen := index[f.Name]
			if !seen {
				base := f
				base.Choices, base.Multiple = nil, false
				i = len(out)
				index[f.Name] = i
				out = append(out, Param{Field: base})
			}
			p := &out[i]
			p.Providers = append(p.Providers, name)
			if f.Multiple {
				p.MultipleBy = append(p.MultipleBy, name)
				p.Multiple = true
			}
			if len(f.Choices) > 0 {
				if p.ChoicesBy == nil {
					p.ChoicesBy = map[string][]string{}
				}
				p.ChoicesBy[name] = slices.Clone(f.Choices)
				for _, c := range f.Choices {
					if !slices.Contains(p.Choices, c) {
						p.Choices = append(p.Choices, c)
					}
				}
				if p.Type == schema.String {
					p.Type = schema.Enum
				}
			}
		}
	}
	return out
}

// Endpoint returns the merged signature of an endpoint.
func (s *Signature) Endpoint(name string) (*Endpoint, bool) {
	e, ok := s.endpoints[name]
	return e, ok
}

// Endpoints returns every endpoint in catalog order.
func (s *Signature) Endpoints() []*Endpoint {
	out := make([]*Endpoint, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.endpoints[n])
	}
	return out
}

// Dump writes the merged signatures as indented JSON for client generators.
func (s *Signature) Dump(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Endpoints())
}
