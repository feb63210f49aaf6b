// Package schema holds the standard query and data models of every endpoint
// and the data-driven coercion that keeps fetchers honest about them.
package schema

import (
	"fmt"
	"slices"
)

// Type is the semantic type of a field.
type Type string

const (
	String   Type = "string"
	Int      Type = "int"
	Float    Type = "float"
	Bool     Type = "bool"
	DateType Type = "date"
	DateTime Type = "datetime"
	Enum     Type = "enum"
	Decimal  Type = "decimal"
	Object   Type = "object"
)

// Scalar reports whether values of t can be listed in a comma-separated
// parameter.
func (t Type) Scalar() bool {
	switch t {
	case String, Int, Float, Bool, DateType, DateTime, Enum, Decimal:
		return true
	}
	return false
}

// Field describes one query parameter or data column.
//
// FrontendMultiply is a presentation hint only: a value of 100 tells a client
// to render a stored 0.0125 as 1.25%. Stored values are never rescaled.
type Field struct {
	Name             string   `json:"name"`
	Type             Type     `json:"type"`
	Description      string   `json:"description"`
	Unit             string   `json:"unit,omitempty"`
	Optional         bool     `json:"optional"`
	Multiple         bool     `json:"multiple_items_allowed,omitempty"`
	Choices          []string `json:"choices,omitempty"`
	Default          any      `json:"default,omitempty"`
	FrontendMultiply float64  `json:"frontend_multiply,omitempty"`
}

// Model is an ordered set of fields.
type Model struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field looks up a field by name.
func (m Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns field names in declaration order.
func (m Model) Names() []string {
	out := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		out[i] = f.Name
	}
	return out
}

// Required returns the names of non-optional fields.
func (m Model) Required() []string {
	var out []string
	for _, f := range m.Fields {
		if !f.Optional {
			out = append(out, f.Name)
		}
	}
	return out
}

// Extend returns a copy of m named name with extra fields appended. Extensions
// may only add fields; redefining a standard field is rejected.
func (m Model) Extend(name string, extra ...Field) (Model, error) {
	out := Model{Name: name, Fields: slices.Clone(m.Fields)}
	for _, f := range extra {
		if _, ok := out.Field(f.Name); ok {
			return Model{}, fmt.Errorf("%s: field %q redefines an existing field", name, f.Name)
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// With returns a copy of m with fn applied to each field.
func (m Model) With(fn func(Field) Field) Model {
	out := Model{Name: m.Name, Fields: make([]Field, len(m.Fields))}
	for i, f := range m.Fields {
		out.Fields[i] = fn(f)
	}
	return out
}

func (m Model) validate() error {
	seen := make(map[string]struct{}, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed field", ErrInvalidField, m.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidField, m.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Description == "" {
			return fmt.Errorf("%w: %s.%s", ErrMissingDescription, m.Name, f.Name)
		}
		if f.Multiple && !f.Type.Scalar() {
			return fmt.Errorf("%w: %s.%s is %s and cannot take multiple values", ErrInvalidField, m.Name, f.Name, f.Type)
		}
		if f.Type == Enum && len(f.Choices) == 0 {
			return fmt.Errorf("%w: %s.%s is an enum without choices", ErrInvalidField, m.Name, f.Name)
		}
	}
	return nil
}
