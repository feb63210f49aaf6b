package schema

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEndpoint  = errors.New("duplicate endpoint")
	ErrMissingDescription = errors.New("missing description")
	ErrInvalidField       = errors.New("invalid field")
	ErrUnknownEndpoint    = errors.New("unknown endpoint")
)

// Endpoint pairs the standard query and data models of one logical operation.
type Endpoint struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Query       Model  `json:"query"`
	Data        Model  `json:"data"`
}

// Registry is the catalog of standard endpoints. It is filled at startup and
// read-only afterwards.
type Registry struct {
	endpoints map[string]Endpoint
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{endpoints: map[string]Endpoint{}}
}

// Register adds an endpoint after checking every field carries a description
// and that multi-value fields are scalar.
func (r *Registry) Register(e Endpoint) error {
	if e.Name == "" {
		return fmt.Errorf("%w: endpoint without a name", ErrInvalidField)
	}
	if _, ok := r.endpoints[e.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, e.Name)
	}
	if e.Description == "" {
		return fmt.Errorf("%w: endpoint %s", ErrMissingDescription, e.Name)
	}
	if e.Query.Name == "" {
		e.Query.Name = e.Name + "QueryParams"
	}
	if e.Data.Name == "" {
		e.Data.Name = e.Name + "Data"
	}
	if err := e.Query.validate(); err != nil {
		return err
	}
	if err := e.Data.validate(); err != nil {
		return err
	}
	r.endpoints[e.Name] = e
	r.order = append(r.order, e.Name)
	return nil
}

// MustRegister is Register for authored catalogs.
func (r *Registry) MustRegister(es ...Endpoint) *Registry {
	for _, e := range es {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Endpoint(name string) (Endpoint, error) {
	e, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return e, nil
}

// Query returns the standard query model of an endpoint.
func (r *Registry) Query(name string) (Model, error) {
	e, err := r.Endpoint(name)
	return e.Query, err
}

// Data returns the standard data model of an endpoint.
func (r *Registry) Data(name string) (Model, error) {
	e, err := r.Endpoint(name)
	return e.Data, err
}

// Endpoints returns endpoints in registration order.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.endpoints[n])
	}
	return out
}
