// Package fault defines the error taxonomy shared by fetchers, the runner and
// the transports.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Kind is a stable error enumerant exposed on the wire.
type Kind string

const (
	InvalidParams Kind = "InvalidParams"
	Unauthorized  Kind = "Unauthorized"
	RateLimited   Kind = "RateLimited"
	Empty         Kind = "Empty"
	Upstream      Kind = "Upstream"
	Network       Kind = "Network"
	Schema        Kind = "Schema"
	Cancelled     Kind = "Cancelled"
	Unknown       Kind = "Unknown"
)

// Error is a classified failure. Provider is set when the failure is
// attributable to a single adapter; Status carries the upstream HTTP status
// when there was one; Field carries the offending parameter or payload path.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Status   int
	Field    string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		b.WriteString(" [")
		b.WriteString(e.Provider)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Field != "" {
		b.WriteString(" (field ")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind, keeping it reachable through errors.Is/As.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Field builds an error pointing at a parameter or payload field.
func Field(kind Kind, field string, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WithProvider returns a copy attributed to provider unless one is already set.
func (e *Error) WithProvider(provider string) *Error {
	c := *e
	if c.Provider == "" {
		c.Provider = provider
	}
	return &c
}

// FromStatus maps an upstream HTTP status to a kind. The body excerpt is kept
// verbatim as the message; callers scrub secrets before it leaves the process.
func FromStatus(provider string, status int, body string) *Error {
	e := &Error{Provider: provider, Status: status, Message: strings.TrimSpace(body)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = Unauthorized
	case status == http.StatusTooManyRequests:
		e.Kind = RateLimited
	case status >= 400:
		e.Kind = Upstream
	default:
		e.Kind = Unknown
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("upstream returned %d %s", status, http.StatusText(status))
	}
	return e
}

// KindOf classifies any error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Network
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return Network
	}
	return Unknown
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// ProviderOf returns the provider an error is attributed to, if any.
func ProviderOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Provider
	}
	return ""
}

// Retryable reports whether the retry loop may try again after err:
// transport failures, rate limits and upstream 5xx.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Network, RateLimited:
		return true
	case Upstream:
		var fe *Error
		if errors.As(err, &fe) {
			return fe.Status >= 500
		}
	}
	return false
}

// As normalizes err into an *Error. Context errors become Cancelled, transport
// errors Network, anything else Unknown.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindOf(err), Message: err.Error(), Err: err}
}

// Body is the error wire shape.
type Body struct {
	Error WireError `json:"error"`
}

type WireError struct {
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

// Wire renders err in its wire shape.
func Wire(err error) Body {
	fe := As(err)
	msg := fe.Message
	if msg == "" && fe.Err != nil {
		msg = fe.Err.Error()
	}
	if fe.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, fe.Field)
	}
	return Body{Error: WireError{Kind: fe.Kind, Message: msg, Provider: fe.Provider}}
}

// HTTPStatus picks the status an API surface reports for err.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidParams:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case Empty:
		return http.StatusNotFound
	case Upstream, Network, Schema:
		return http.StatusBadGateway
	case Cancelled:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
