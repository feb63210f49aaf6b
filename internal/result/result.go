// Package result holds the envelope returned by every dispatch and its
// tabular coercions. Coercions never mutate Results.
package result

import (
	"context"
	"encoding/json"

	"dataplatform/internal/chart"
	"dataplatform/internal/schema"
)

// Warning categories.
const (
	Empty     = "empty"
	Parameter = "parameter"
	Partial   = "partial"
	Chart     = "chart"
	Fallback  = "fallback"
)

type Warning struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Envelope is the caller-visible result of one dispatch.
type Envelope struct {
	Results  []schema.Row   `json:"results"`
	Provider string         `json:"provider"`
	Warnings []Warning      `json:"warnings"`
	Chart    *chart.Figure  `json:"chart"`
	Extra    map[string]any `json:"extra"`
}

func (e *Envelope) Warn(category, format string, args ...any) {
	e.Warnings = append(e.Warnings, Warning{Category: category, Message: sprintf(format, args...)})
}

// HasWarning reports whether any warning of category was recorded.
func (e *Envelope) HasWarning(category string) bool {
	for _, w := range e.Warnings {
		if w.Category == category {
			return true
		}
	}
	return false
}

// MarshalJSON keeps results and warnings as arrays when empty.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	c := plain(*e)
	if c.Results == nil {
		c.Results = []schema.Row{}
	}
	if c.Warnings == nil {
		c.Warnings = []Warning{}
	}
	if c.Extra == nil {
		c.Extra = map[string]any{}
	}
	return json.Marshal(c)
}

// ToChart returns the attached figure, rendering one with r when absent.
func (e *Envelope) ToChart(ctx context.Context, r chart.Renderer, title string) (*chart.Figure, error) {
	if e.Chart != nil {
		return e.Chart, nil
	}
	return r.Render(ctx, chart.Request{Rows: e.Results, Title: title})
}
