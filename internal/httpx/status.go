package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"dataplatform/internal/fault"
)

const maxErrorBody = 2 << 10

// Check classifies a response. A 2xx yields nil and leaves the body alone;
// anything else reads a bounded excerpt of the body, closes it and returns a
// *fault.Error.
func Check(provider string, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return fault.FromStatus(provider, res.StatusCode, string(b))
}

// Classify turns a transport error into a *fault.Error. It is Cancelled only
// when ctx itself is done; an upstream timeout is a Network failure.
func Classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.WithProvider(provider)
	}
	if ctx.Err() != nil {
		return &fault.Error{Kind: fault.Cancelled, Provider: provider, Message: "request cancelled", Err: ctx.Err()}
	}
	return &fault.Error{Kind: fault.Network, Provider: provider, Message: err.Error(), Err: err}
}
