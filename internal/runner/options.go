package runner

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"dataplatform/internal/chart"
	"dataplatform/internal/config"
	"dataplatform/internal/credentials"
	"dataplatform/internal/signature"
)

// Retry is the backoff policy of the extraction loop.
type Retry struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	Jitter      bool
}

// DefaultRetry waits 250ms, 500ms between three attempts, with jitter.
var DefaultRetry = Retry{MaxAttempts: 3, Base: 250 * time.Millisecond, Factor: 2, Jitter: true}

// RetryFrom converts settings into a policy.
func RetryFrom(c config.Retry) Retry {
	r := Retry{MaxAttempts: c.MaxAttempts, Base: time.Duration(c.BaseDelayMs) * time.Millisecond, Factor: c.Factor, Jitter: c.Jitter}
	if r.MaxAttempts < 1 {
		r.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if r.Factor < 1 {
		r.Factor = DefaultRetry.Factor
	}
	return r
}

// Delay is the wait before attempt n+1 after attempt n failed. Jitter spreads
// it over [d/2, 3d/2).
func (r Retry) Delay(n int) time.Duration {
	d := float64(r.Base) * math.Pow(r.Factor, float64(n-1))
	if r.Jitter && d > 0 {
		d = d/2 + rand.Float64()*d
	}
	return time.Duration(d)
}

type Option func(*Runner)

// WithCredentials sets the store credentials are resolved from.
func WithCredentials(s *credentials.Store) Option { return func(r *Runner) { r.creds = s } }

// WithCharts sets the chart collaborators.
func WithCharts(c *chart.Registry) Option { return func(r *Runner) { r.charts = c } }

// WithPriority sets the user's provider order per endpoint and command path.
func WithPriority(fn func(endpoint, path string) []string) Option {
	return func(r *Runner) { r.priority = fn }
}

func WithRetry(p Retry) Option { return func(r *Runner) { r.retry = p } }

func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.log = l } }

// WithTimeout bounds every dispatch that does not set its own timeout.
func WithTimeout(d time.Duration) Option { return func(r *Runner) { r.timeout = d } }

// WithObserver receives every state transition.
func WithObserver(o Observer) Option { return func(r *Runner) { r.observe = o } }

// WithSignature reuses a merged signature instead of building one.
func WithSignature(s *signature.Signature) Option { return func(r *Runner) { r.sig = s } }

// WithChart attaches charts by default.
func WithChart(on bool) Option { return func(r *Runner) { r.chart = on } }

// WithStrict turns empty results into errors by default.
func WithStrict(strict bool) Option { return func(r *Runner) { r.strict = strict } }

// WithSecrets adds values to scrub from errors and warnings beyond the
// credentials of the dispatch.
func WithSecrets(values ...string) Option {
	return func(r *Runner) { r.secrets = append(r.secrets, values...) }
}

// CallOption tunes one dispatch.
type CallOption func(*call)

type call struct {
	provider string
	creds    credentials.Set
	chart    *bool
	strict   *bool
	timeout  time.Duration
	fallback bool
}

// Provider selects the provider explicitly.
func Provider(name string) CallOption { return func(c *call) { c.provider = name } }

// Credentials supplies credentials that take precedence over the store.
func Credentials(s credentials.Set) CallOption { return func(c *call) { c.creds = s } }

// Chart asks for a figure when a renderer is registered.
func Chart(on bool) CallOption { return func(c *call) { c.chart = &on } }

// Strict makes an empty result an error for this dispatch.
func Strict(on bool) CallOption { return func(c *call) { c.strict = &on } }

func Timeout(d time.Duration) CallOption { return func(c *call) { c.timeout = d } }

// Fallback lets the runner try the next provider of the priority list when
// the chosen one fails with a retryable error after exhausting its attempts.
func Fallback() CallOption { return func(c *call) { c.fallback = true } }
