// Package router binds command paths to standard endpoints. Extensions add
// their commands at startup; after Freeze the tree is read-only.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"dataplatform/internal/fault"
	"dataplatform/internal/result"
)

var (
	ErrDuplicateRoute = errors.New("duplicate route")
	ErrUnknownRoute   = errors.New("unknown route")
	ErrInvalidRoute   = errors.New("invalid route")
	ErrFrozen         = errors.New("router is frozen")
)

var segment = regexp.MustCompile(`^[a-z0-9_]+$`)

// Canonical lowercases path and joins its segments with "/". Dots and
// slashes both separate segments, so "Equity.Price.Historical" and
// "/equity/price/historical/" name the same command.
func Canonical(path string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(path))
	p = strings.ReplaceAll(p, ".", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRoute)
	}
	parts := strings.Split(p, "/")
	for _, s := range parts {
		if !segment.MatchString(s) {
			return "", fmt.Errorf("%w: %q has an invalid segment %q", ErrInvalidRoute, path, s)
		}
	}
	return strings.Join(parts, "/"), nil
}

// Example is a documented call of a command.
type Example struct {
	Description string         `json:"description,omitempty"`
	Params      map[string]any `json:"params"`
}

// Query is one call of a command as it reaches the runner.
type Query struct {
	Command  *Command
	Provider string
	Params   map[string]any
}

// Executor runs a query against the chosen provider.
type Executor func(ctx context.Context, q Query) (*result.Envelope, error)

// Handler shapes a query and hands it to exec. Handlers hold no state.
type Handler func(ctx context.Context, q Query, exec Executor) (*result.Envelope, error)

// Delegate is the handler of commands that need no shaping.
func Delegate(ctx context.Context, q Query, exec Executor) (*result.Envelope, error) {
	return exec(ctx, q)
}

// Command is a leaf of the tree.
type Command struct {
	Path        string         `json:"path"`
	Endpoint    string         `json:"model"`
	Description string         `json:"description"`
	Examples    []Example      `json:"examples,omitempty"`
	Widget      map[string]any `json:"widget,omitempty"`
	Handler     Handler        `json:"-"`
}

type node struct {
	children map[string]*node
	cmd      *Command
}

// Router is a tree of commands keyed by path segments.
type Router struct {
	mu     sync.RWMutex
	root   *node
	frozen bool
}

func New() *Router { return &Router{root: &node{children: map[string]*node{}}} }

// Add binds cmd at its canonical path. A nil handler means Delegate.
func (r *Router) Add(cmd Command) error {
	p, err := Canonical(cmd.Path)
	if err != nil {
		return err
	}
	if cmd.Endpoint == "" {
		return fmt.Errorf("%w: %s has no model", ErrInvalidRoute, p)
	}
	cmd.Path = "/" + p
	if cmd.Handler == nil {
		cmd.Handler = Delegate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: cannot add %s", ErrFrozen, cmd.Path)
	}
	n := r.root
	for _, s := range strings.Split(p, "/") {
		if n.cmd != nil {
			return fmt.Errorf("%w: %s is nested under command %s", ErrDuplicateRoute, cmd.Path, n.cmd.Path)
		}
		child, ok := n.children[s]
		if !ok {
			child = &node{children: map[string]*node{}}
			n.children[s] = child
		}
		n = child
	}
	if n.cmd != nil || len(n.children) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, cmd.Path)
	}
	n.cmd = &cmd
	return nil
}

// MustAdd is Add for extension bindings, where a bad route is a programming
// error.
func (r *Router) MustAdd(cmds ...Command) {
	for _, c := range cmds {
		if err := r.Add(c); err != nil {
			panic(err)
		}
	}
}

// Freeze makes the tree read-only.
func (r *Router) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve finds the command at path. Misses are InvalidParams faults that
// wrap ErrUnknownRoute.
func (r *Router) Resolve(path string) (*Command, error) {
	p, err := Canonical(path)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidParams, fmt.Errorf("%w: %v", ErrUnknownRoute, err), "unknown route %q", path)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.root
	for _, s := range strings.Split(p, "/") {
		if n = n.children[s]; n == nil {
			break
		}
	}
	if n == nil || n.cmd == nil {
		return nil, fault.Wrap(fault.InvalidParams, ErrUnknownRoute, "unknown route /%s", p)
	}
	return n.cmd, nil
}

// Commands lists commands under prefix (all when empty), sorted by path.
func (r *Router) Commands(prefix string) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.root
	if prefix != "" {
		p, err := Canonical(prefix)
		if err != nil {
			return nil
		}
		for _, s := range strings.Split(p, "/") {
			if n = n.children[s]; n == nil {
				return nil
			}
		}
	}
	var out []*Command
	var walk func(*node)
	walk = func(n *node) {
		if n.cmd != nil {
			out = append(out, n.cmd)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(n)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Children lists the segment names directly under prefix, sorted.
func (r *Router) Children(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := r.root
	if p, err := Canonical(prefix); err == nil {
		for _, s := range strings.Split(p, "/") {
			if n = n.children[s]; n == nil {
				return nil
			}
		}
	}
	out := make([]string, 0, len(n.children))
	for k := range n.children {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
