package schema

import (
	"errors"
	"fmt"
	"sort"
)

var ErrAliasCollision = errors.New("alias collision")

// Aliases maps standard field names to provider wire names.
type Aliases map[string]string

// Validate checks the map is bijective.
func (a Aliases) Validate() error {
	seen := make(map[string]string, len(a))
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, std := range keys {
		wire := a[std]
		if wire == "" {
			return fmt.Errorf("%w: %s aliases to an empty name", ErrAliasCollision, std)
		}
		if other, ok := seen[wire]; ok {
			return fmt.Errorf("%w: %s and %s both alias to %s", ErrAliasCollision, other, std, wire)
		}
		seen[wire] = std
	}
	return nil
}

// ValidateFor checks that no two fields of m end up with the same wire name,
// counting unaliased fields under their standard name.
func (a Aliases) ValidateFor(m Model) error {
	if err := a.Validate(); err != nil {
		return err
	}
	for std := range a {
		if _, ok := m.Field(std); !ok {
			return fmt.Errorf("%w: alias for unknown field %s of %s", ErrAliasCollision, std, m.Name)
		}
	}
	seen := make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		wire := a.ToProvider(f.Name)
		if other, ok := seen[wire]; ok {
			return fmt.Errorf("%w: %s and %s both map to %s in %s", ErrAliasCollision, other, f.Name, wire, m.Name)
		}
		seen[wire] = f.Name
	}
	return nil
}

// ToProvider returns the wire name of a standard field.
func (a Aliases) ToProvider(name string) string {
	if w, ok := a[name]; ok {
		return w
	}
	return name
}

// FromProvider returns the standard name of a wire field.
func (a Aliases) FromProvider(wire string) string {
	for std, w := range a {
		if w == wire {
			return std
		}
	}
	return wire
}

// Outbound renames keys of a standard-named map to wire names.
func (a Aliases) Outbound(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[a.ToProvider(k)] = v
	}
	return out
}

// Inbound renames keys of a wire-named map to standard names.
func (a Aliases) Inbound(in map[string]any) map[string]any {
	rev := make(map[string]string, len(a))
	for std, w := range a {
		rev[w] = std
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if std, ok := rev[k]; ok {
			out[std] = v
			continue
		}
		if _, shadowed := a[k]; shadowed {
			// the standard name is produced by another wire key
			continue
		}
		out[k] = v
	}
	return out
}
