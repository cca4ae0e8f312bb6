package authn

import "net/http"

// Namespaced returns a transport that only moves request paths into the API
// namespace. It is used for calls that must not carry or recover the primary
// credential, such as the refresh call itself.
func Namespaced(prefix string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	prefix = normalizePrefix(prefix)

	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if hasPrefix(prefix, req.URL.Path) {
			return base.RoundTrip(req)
		}

		out := req.Clone(req.Context())
		out.URL.Path = prefix + out.URL.Path
		if out.URL.RawPath != "" {
			out.URL.RawPath = prefix + out.URL.RawPath
		}
		return base.RoundTrip(out)
	})
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
