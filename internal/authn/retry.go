package authn

import (
	"context"
	"net/http"
)

type retriedKey struct{}

// MarkRetried returns a copy of req flagged as already replayed. The flag
// travels with the request, so each request has its own retry budget.
func MarkRetried(req *http.Request) *http.Request {
	return req.Clone(context.WithValue(req.Context(), retriedKey{}, true))
}

// IsRetried reports whether req has already been replayed after a refresh.
func IsRetried(req *http.Request) bool {
	retried, _ := req.Context().Value(retriedKey{}).(bool)
	return retried
}
