package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dataplatform/internal/chart"
	"dataplatform/internal/credentials"
	"dataplatform/internal/fault"
	"dataplatform/internal/httpx"
	"dataplatform/internal/logging"
	"dataplatform/internal/provider"
	"dataplatform/internal/result"
	"dataplatform/internal/router"
	"dataplatform/internal/schema"
)

// dispatch is one attempt against one provider: a single pass of the state
// machine Resolved, Validated, Extracting (Retrying), Transforming, Done.
func (r *Runner) dispatch(ctx context.Context, q router.Query, prov string, c *call) (*result.Envelope, error) {
	start := r.now()
	d := &run{
		r:     r,
		id:    uuid.NewString(),
		route: q.Command.Path,
		prov:  prov,
	}
	d.log = r.log.With().Str("request_id", d.id).Str("route", d.route).Str("provider", prov).Logger()

	h, err := r.reg.Fetcher(q.Command.Endpoint, prov)
	if err != nil {
		return nil, d.fail(fault.Wrap(fault.InvalidParams, err, "no fetcher for %s", d.route))
	}
	d.enter(Resolved, 0, nil)

	// Credentials are scoped to this dispatch and only the declared keys
	// reach the fetcher.
	var stored credentials.Set
	if r.creds != nil {
		stored = r.creds.Resolve(h.Credentials)
	}
	creds := stored.Merge(c.creds.Subset(h.Credentials))
	d.secrets = append(append(slices.Clone(r.secrets), creds.Values()...), c.creds.Values()...)
	if missing := creds.Missing(h.Credentials); len(missing) > 0 {
		return nil, d.fail(&fault.Error{Kind: fault.Unauthorized, Provider: prov,
			Message: fmt.Sprintf("missing credentials: %s", strings.Join(missing, ", "))})
	}

	env := &result.Envelope{Provider: prov}
	p, err := d.validate(h, q, env)
	if err != nil {
		return nil, d.fail(err)
	}
	pq, err := h.TransformQuery(p)
	if err != nil {
		return nil, d.fail(fault.As(err).WithProvider(prov))
	}
	d.enter(Validated, 0, nil)

	timeout := c.timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx = httpx.WithFingerprint(ctx, creds.Fingerprint())

	strict := r.strict
	if c.strict != nil {
		strict = *c.strict
	}
	var ar *provider.AnnotatedResult
	raw, err := d.extract(ctx, h, pq, creds)
	if err == nil {
		d.enter(Transforming, 0, nil)
		ar, err = h.TransformData(pq, raw)
	}
	switch {
	case fault.Is(err, fault.Empty) && !strict:
		env.Warn(result.Empty, "%s", fault.As(err).Message)
		ar = &provider.AnnotatedResult{}
	case err != nil:
		return nil, d.fail(err)
	case ar == nil:
		ar = &provider.AnnotatedResult{}
	}
	if err := checkRows(h, p, ar.Rows); err != nil {
		return nil, d.fail(fault.As(err).WithProvider(prov))
	}
	env.Results = ar.Rows
	env.Warnings = append(env.Warnings, ar.Warnings...)

	charted := r.chart
	if c.chart != nil {
		charted = *c.chart
	}
	if charted {
		d.chart(ctx, h, q.Command, env)
	}

	for i := range env.Warnings {
		env.Warnings[i].Message = credentials.ScrubValues(env.Warnings[i].Message, d.secrets)
	}
	env.Extra = map[string]any{
		"metadata": map[string]any{
			"route":       d.route,
			"arguments":   logging.Redact(q.Params),
			"duration_ms": r.now().Sub(start).Milliseconds(),
			"timestamp":   start.UTC(),
			"request_id":  d.id,
		},
	}
	if len(ar.Metadata) > 0 {
		env.Extra["results_metadata"] = ar.Metadata
	}
	d.enter(Done, 0, nil)
	d.log.Info().
		Interface("arguments", logging.Redact(q.Params)).
		Int("rows", len(env.Results)).
		Int("warnings", len(env.Warnings)).
		Dur("duration", r.now().Sub(start)).
		Msg("dispatch done")
	return env, nil
}

// run carries the per-dispatch state used for logging and scrubbing.
type run struct {
	r       *Runner
	id      string
	route   string
	prov    string
	log     zerolog.Logger
	secrets []string
}

func (d *run) enter(s State, attempt int, err error) {
	ev := d.log.Debug().Str("state", string(s))
	if attempt > 0 {
		ev = ev.Int("attempt", attempt)
	}
	if err != nil {
		ev = ev.Str("kind", string(fault.KindOf(err)))
	}
	ev.Msg("dispatch")
	if d.r.observe != nil {
		d.r.observe(Event{RequestID: d.id, Route: d.route, Provider: d.prov, State: s, Attempt: attempt, Err: err, At: d.r.now()})
	}
}

// fail scrubs err, attributes it to the provider unless already attributed
// and records the transition.
func (d *run) fail(err error) error {
	fe := scrub(fault.As(err), d.secrets).WithProvider(d.prov)
	d.enter(Failed, 0, fe)
	d.log.Warn().Str("kind", string(fe.Kind)).Str("error", fe.Error()).Msg("dispatch failed")
	return fe
}

// validate splits the caller parameters, warns about the ones the provider
// does not take and coerces the rest against the provider query model.
func (d *run) validate(h *provider.Handle, q router.Query, env *result.Envelope) (provider.Params, error) {
	merged := map[string]any{}
	if sig, ok := d.r.sig.Endpoint(q.Command.Endpoint); ok {
		std, extra, unsupported := sig.Split(d.prov, q.Params)
		for k, v := range std {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		for _, name := range unsupported {
			if p, known := sig.Param(name); known {
				env.Warn(result.Parameter, "parameter %q is not supported by %s and was ignored; supported by: %s",
					name, d.prov, strings.Join(p.Providers, ", "))
				continue
			}
			env.Warn(result.Parameter, "unknown parameter %q was ignored", name)
		}
	} else {
		for k, v := range q.Params {
			merged[k] = v
		}
	}
	for k, v := range merged {
		f, ok := h.Query.Field(k)
		if ok && !f.Multiple && multiValued(v) {
			return nil, &fault.Error{Kind: fault.InvalidParams, Provider: d.prov, Field: k,
				Message: fmt.Sprintf("%s does not accept multiple values for %s", d.prov, k)}
		}
	}
	p, err := schema.CoerceParams(h.Query, merged)
	if err != nil {
		return nil, fault.As(err).WithProvider(d.prov)
	}
	return p, nil
}

func multiValued(v any) bool {
	switch x := v.(type) {
	case string:
		return strings.Contains(x, ",")
	case []string:
		return len(x) > 1
	case []any:
		return len(x) > 1
	}
	return false
}

// extract runs ExtractData under the retry policy. Anything produced is
// dropped when ctx ends.
func (d *run) extract(ctx context.Context, h *provider.Handle, q any, creds credentials.Set) (any, error) {
	attempts := max(d.r.retry.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		d.enter(Extracting, attempt, nil)
		raw, err := h.ExtractData(ctx, q, creds)
		if ctx.Err() != nil {
			return nil, fault.Wrap(fault.Cancelled, ctx.Err(), "cancelled during extraction")
		}
		if err == nil {
			return raw, nil
		}
		if !fault.Retryable(err) || attempt >= attempts {
			return nil, err
		}
		d.enter(Retrying, attempt, err)
		if err := d.r.sleep(ctx, d.r.retry.Delay(attempt)); err != nil {
			return nil, fault.Wrap(fault.Cancelled, err, "cancelled while retrying")
		}
	}
}

// checkRows holds every row to the standard model, and requires a symbol on
// each row when several symbols were requested.
func checkRows(h *provider.Handle, p provider.Params, rows []schema.Row) error {
	multi := false
	if syms, ok := p["symbol"].([]string); ok && len(syms) > 1 {
		multi = true
	}
	for i, row := range rows {
		path := fmt.Sprintf("results[%d]", i)
		if err := schema.ValidateRow(h.Standard, row, path); err != nil {
			return err
		}
		if multi && !row.Has(schema.HasSymbol) {
			return fault.Field(fault.Schema, path+".symbol", "multi-symbol result row carries no symbol")
		}
	}
	return nil
}

// chart attaches a figure when a renderer serves the endpoint. Failing to
// chart is a warning.
func (d *run) chart(ctx context.Context, h *provider.Handle, cmd *router.Command, env *result.Envelope) {
	rr, ok := d.r.charts.Lookup(cmd.Endpoint)
	if !ok {
		return
	}
	fig, err := rr.Render(ctx, chart.Request{
		Endpoint: cmd.Endpoint,
		Model:    h.Data,
		Rows:     env.Results,
		Title:    cmd.Path,
	})
	if err != nil {
		env.Warn(result.Chart, "chart unavailable: %v", err)
		return
	}
	env.Chart = fig
}

// scrub returns fe with secret values masked in its message and cause.
func scrub(fe *fault.Error, secrets []string) *fault.Error {
	if len(secrets) == 0 {
		return fe
	}
	full := fe.Error()
	if credentials.ScrubValues(full, secrets) == full {
		return fe
	}
	c := *fe
	c.Message = credentials.ScrubValues(c.Message, secrets)
	if c.Err != nil {
		c.Err = &scrubbed{err: c.Err, msg: credentials.ScrubValues(c.Err.Error(), secrets)}
	}
	return &c
}

// scrubbed keeps the cause reachable through errors.Is while masking its
// text.
type scrubbed struct {
	err error
	msg string
}

func (s *scrubbed) Error() string { return s.msg }
func (s *scrubbed) Unwrap() error { return s.err }

