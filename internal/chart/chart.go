// Package chart plugs figure renderers into dispatches. Renderers are keyed
// by standard endpoint; a dispatch with chart=true asks the matching one for
// a figure bundle.
package chart

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dataplatform/internal/schema"
)

var ErrNoRenderer = errors.New("no chart renderer")

// Figure is a rendered chart. Content marshals as base64.
type Figure struct {
	Content []byte `json:"content"`
	Format  string `json:"format"`
}

func (f *Figure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Content string `json:"content"`
		Format  string `json:"format"`
	}{base64.StdEncoding.EncodeToString(f.Content), f.Format})
}

func (f *Figure) UnmarshalJSON(b []byte) error {
	var w struct {
		Content string `json:"content"`
		Format  string `json:"format"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	c, err := base64.StdEncoding.DecodeString(w.Content)
	if err != nil {
		return err
	}
	f.Content, f.Format = c, w.Format
	return nil
}

// Request is what a renderer sees: the endpoint, its data model and the rows.
type Request struct {
	Endpoint string
	Model    schema.Model
	Rows     []schema.Row
	Title    string
}

type Renderer interface {
	Render(ctx context.Context, req Request) (*Figure, error)
}

type RendererFunc func(ctx context.Context, req Request) (*Figure, error)

func (f RendererFunc) Render(ctx context.Context, req Request) (*Figure, error) { return f(ctx, req) }

// Registry maps endpoints to renderers.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Renderer
}

func NewRegistry() *Registry { return &Registry{m: map[string]Renderer{}} }

func (r *Registry) Register(endpoint string, rr Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[endpoint] = rr
}

func (r *Registry) Lookup(endpoint string) (Renderer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rr, ok := r.m[endpoint]
	return rr, ok
}

// Render runs the renderer registered for req.Endpoint.
func (r *Registry) Render(ctx context.Context, req Request) (*Figure, error) {
	rr, ok := r.Lookup(req.Endpoint)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoRenderer, req.Endpoint)
	}
	return rr.Render(ctx, req)
}
