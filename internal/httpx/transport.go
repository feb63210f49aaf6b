package httpx

import "net/http"

// RoundTripper lets clients that want an http.RoundTripper, such as resty,
// send through a Doer chain.
type RoundTripper struct{ Doer Doer }

func (rt RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := rt.Doer.Do(req)
	if res != nil && res.Request == nil {
		res.Request = req
	}
	return res, err
}
