// Package runner is the public entry point of the platform: it resolves a
// command path, picks a provider, scopes credentials, drives the fetcher
// through its four steps with retries and assembles the result envelope.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dataplatform/internal/chart"
	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/provider"
	"dataplatform/internal/result"
	"dataplatform/internal/router"
	"dataplatform/internal/signature"
)

var ErrNoProvider = errors.New("no provider")

// Framework parameters are read by the runner and never reach a fetcher.
const (
	ChartParam  = "chart"
	StrictParam = "strict"
)

// Runner dispatches commands. It is safe for concurrent use; nothing it
// holds changes after New.
type Runner struct {
	router   *router.Router
	reg      *provider.Registry
	sig      *signature.Signature
	creds    *credentials.Store
	charts   *chart.Registry
	priority func(endpoint, path string) []string
	retry    Retry
	log      zerolog.Logger
	timeout  time.Duration
	strict   bool
	chart    bool
	observe  Observer
	secrets  []string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(rt *router.Router, reg *provider.Registry, opts ...Option) *Runner {
	r := &Runner{
		router: rt,
		reg:    reg,
		retry:  DefaultRetry,
		log:    zerolog.Nop(),
		sleep:  sleep,
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.priority == nil {
		names := reg.Names()
		r.priority = func(string, string) []string { return names }
	}
	if r.sig == nil {
		r.sig = signature.New(reg, func(endpoint string) []string { return r.priority(endpoint, "") })
	}
	return r
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Signature is the merged parameter model the runner validates against.
func (r *Runner) Signature() *signature.Signature { return r.sig }

// Router returns the command tree.
func (r *Runner) Router() *router.Router { return r.router }

// Registry returns the provider registry.
func (r *Runner) Registry() *provider.Registry { return r.reg }

// Func is the callable bound to one command path.
type Func func(ctx context.Context, params map[string]any, opts ...CallOption) (*result.Envelope, error)

// Command returns the callable of path.
func (r *Runner) Command(path string) (Func, error) {
	if _, err := r.router.Resolve(path); err != nil {
		return nil, err
	}
	return func(ctx context.Context, params map[string]any, opts ...CallOption) (*result.Envelope, error) {
		return r.Run(ctx, path, params, opts...)
	}, nil
}

// Run dispatches the command at path. Parameters are keyed by standard or
// provider field name; "provider", "chart" and "strict" are also read from
// params when the matching CallOption is not given. Errors are *fault.Error
// values scrubbed of secrets.
func (r *Runner) Run(ctx context.Context, path string, params map[string]any, opts ...CallOption) (*result.Envelope, error) {
	cmd, err := r.router.Resolve(path)
	if err != nil {
		return nil, err
	}
	c := &call{}
	for _, o := range opts {
		o(c)
	}
	args := make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case signature.ProviderParam:
			if c.provider == "" {
				c.provider, _ = v.(string)
			}
		case ChartParam:
			if b, ok := flag(v); ok && c.chart == nil {
				c.chart = &b
			}
		case StrictParam:
			if b, ok := flag(v); ok && c.strict == nil {
				c.strict = &b
			}
		default:
			args[k] = v
		}
	}
	q := router.Query{Command: cmd, Provider: c.provider, Params: args}
	return cmd.Handler(ctx, q, func(ctx context.Context, q router.Query) (*result.Envelope, error) {
		return r.execute(ctx, q, c)
	})
}

func flag(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	return false, false
}

// execute picks the provider and, when the caller opted in, walks the rest
// of the priority list after a retryable failure.
func (r *Runner) execute(ctx context.Context, q router.Query, c *call) (*result.Envelope, error) {
	candidates, err := r.candidates(q.Command, q.Provider)
	if err != nil {
		return nil, err
	}
	var failures []string
	for i, prov := range candidates {
		env, err := r.dispatch(ctx, q, prov, c)
		if err == nil {
			for _, f := range failures {
				env.Warn(result.Fallback, "%s", f)
			}
			return env, nil
		}
		last := i == len(candidates)-1
		if !c.fallback || last || !fault.Retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		failures = append(failures, fmt.Sprintf("%s failed (%s), fell back to %s", prov, fault.KindOf(err), candidates[i+1]))
		r.log.Warn().Str("route", q.Command.Path).Str("provider", prov).Str("next", candidates[i+1]).Msg("falling back")
	}
	return nil, fault.Wrap(fault.InvalidParams, ErrNoProvider, "no provider serves %s", q.Command.Path)
}

// candidates returns the chosen provider first, then the rest of the
// priority list that serves the endpoint.
func (r *Runner) candidates(cmd *router.Command, explicit string) ([]string, error) {
	choices := r.reg.Choices(cmd.Endpoint, r.priority(cmd.Endpoint, cmd.Path))
	if explicit != "" {
		name := provider.Normalize(explicit)
		if !slices.Contains(choices.Providers, name) {
			return nil, fault.Field(fault.InvalidParams, signature.ProviderParam,
				"provider %q does not serve %s, choose one of: %s", explicit, cmd.Path, strings.Join(choices.Providers, ", "))
		}
		rest := slices.DeleteFunc(slices.Clone(choices.Priority), func(p string) bool { return p == name })
		return append([]string{name}, rest...), nil
	}
	if len(choices.Priority) == 0 {
		return nil, fault.Wrap(fault.InvalidParams, ErrNoProvider, "no provider of the priority list serves %s", cmd.Path)
	}
	return choices.Priority, nil
}
