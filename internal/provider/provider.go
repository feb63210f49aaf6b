// Package provider defines the fetcher contract every upstream adapter
// implements and the registry that indexes adapters by endpoint.
package provider

import (
    "context"
    "fmt"
    "strings"
    "unicode"

    "github.com/mitchellh/mapstructure"

    "dataplatform/internal/credentials"
    "dataplatform/internal/result"
    "dataplatform/internal/schema"
)

// Info is what a fetcher declares about itself.
//
// QueryExtra and DataExtra extend the standard models; they may add fields but
// never redefine standard ones. Multiple names query fields that accept
// comma-separated values with this provider. Choices narrows or sets enum
// choices per field for this provider.
type Info struct {
    Provider           string
    Endpoint           string
    Description        string
    RequireCredentials bool
    QueryExtra         []schema.Field
    DataExtra          []schema.Field
    Multiple           []string
    Choices            map[string][]string
    QueryAliases       schema.Aliases
    DataAliases        schema.Aliases
}

// QueryModel merges the standard query model with the provider extension.
func (i Info) QueryModel(std schema.Model) (schema.Model, error) {
    m, err := std.Extend(exported(i.Provider)+std.Name, i.QueryExtra...)
    if err != nil { return schema.Model{}, err }
    multi := make(map[string]bool, len(i.Multiple))
    for _, n := range i.Multiple {
        f, ok := m.Field(n)
        if !ok { return schema.Model{}, fmt.Errorf("multiple-value field %q is not a query field", n) }
        if !f.Type.Scalar() { return schema.Model{}, fmt.Errorf("field %q of type %s cannot take multiple values", n, f.Type) }
        multi[n] = true
    }
    for n := range i.Choices {
        if _, ok := m.Field(n); !ok { return schema.Model{}, fmt.Errorf("choices for unknown field %q", n) }
    }
    return m.With(func(f schema.Field) schema.Field {
        f.Multiple = multi[f.Name]
        if c, ok := i.Choices[f.Name]; ok {
            f.Choices = c
            if f.Type == schema.String { f.Type = schema.Enum }
        }
        return f
    }), nil
}

// DataModel merges the standard data model with the provider extension.
func (i Info) DataModel(std schema.Model) (schema.Model, error) {
    return std.Extend(exported(i.Provider)+std.Name, i.DataExtra...)
}

func exported(name string) string {
    var b strings.Builder
    upper := true
    for _, r := range name {
        if r == '_' || r == '-' { upper = true; continue }
        if upper { r = unicode.ToUpper(r); upper = false }
        b.WriteRune(r)
    }
    return b.String()
}

// Params are caller parameters already coerced against the provider query
// model, keyed by standard name.
type Params map[string]any

// Decode fills a provider query struct. Fields bind by their `param` tag.
func (p Params) Decode(out any) error {
    dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
        TagName:          "param",
        WeaklyTypedInput: true,
        Result:           out,
    })
    if err != nil { return err }
    return dec.Decode(map[string]any(p))
}

// AnnotatedResult carries transformed rows plus metadata keyed by row group
// (symbol or series id) and non-fatal warnings such as per-symbol misses.
type AnnotatedResult struct {
    Rows     []schema.Row
    Metadata map[string]any
    Warnings []result.Warning
}

// Fetcher is the four-step adapter for one (endpoint, provider) pair. Q is
// the provider query, R the raw upstream payload.
//
// TransformQuery must not do I/O. ExtractData is the only blocking step and
// must honour ctx. TransformData returns a fault.Empty error for an empty
// payload and a fault.Schema error on a shape mismatch.
type Fetcher[Q, R any] interface {
    Info() Info
    TransformQuery(p Params) (Q, error)
    ExtractData(ctx context.Context, q Q, creds credentials.Set) (R, error)
    TransformData(q Q, raw R) (*AnnotatedResult, error)
}

// Entry is a fetcher with its type parameters erased, so fetchers of
// different shapes can share one registry.
type Entry struct {
    info      Info
    transform func(Params) (any, error)
    extract   func(context.Context, any, credentials.Set) (any, error)
    annotate  func(any, any) (*AnnotatedResult, error)
}

// Erase wraps a typed fetcher.
func Erase[Q, R any](f Fetcher[Q, R]) Entry {
    return Entry{
        info: f.Info(),
        transform: func(p Params) (any, error) { return f.TransformQuery(p) },
        extract: func(ctx context.Context, q any, creds credentials.Set) (any, error) {
            return f.ExtractData(ctx, q.(Q), creds)
        },
        annotate: func(q, raw any) (*AnnotatedResult, error) { return f.TransformData(q.(Q), raw.(R)) },
    }
}

func (e Entry) Info() Info { return e.info }

func (e Entry) TransformQuery(p Params) (any, error) { return e.transform(p) }

func (e Entry) ExtractData(ctx context.Context, q any, creds credentials.Set) (any, error) {
    return e.extract(ctx, q, creds)
}

func (e Entry) TransformData(q, raw any) (*AnnotatedResult, error) { return e.annotate(q, raw) }

// Provider is a named upstream service with its bundled fetchers.
// Credentials lists the keys its fetchers may require, e.g. "fmp_api_key".
type Provider struct {
    Name        string
    Description string
    Website     string
    Credentials []string
    Fetchers    []Entry
}
