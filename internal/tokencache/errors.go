package tokencache

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chinmina/ocpi-console/internal/api"
	"github.com/chinmina/ocpi-console/internal/role"
)

// Error classes for a failed token fetch. Every error returned by Cache.Get
// wraps exactly one of these.
var (
	ErrNotConfigured = errors.New("role token not configured")
	ErrPermission    = errors.New("not permitted to obtain role token")
	ErrServer        = errors.New("server failed to provide role token")
	ErrUnknown       = errors.New("role token unavailable")
)

// Error is a classified token fetch failure. The underlying transport or
// HTTP error is kept for logging but is not exposed through Unwrap.
type Error struct {
	Class      error
	Role       role.Role
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	switch e.Class {
	case ErrNotConfigured:
		if e.Role == "" {
			return "role token not configured: no active role selected"
		}
		return fmt.Sprintf("role token not configured for %s: create your party first", e.Role)
	default:
		if e.Role == "" {
			return e.Class.Error()
		}
		return fmt.Sprintf("%s (%s)", e.Class.Error(), e.Role)
	}
}

func (e *Error) Unwrap() error {
	return e.Class
}

// Cause returns the unclassified error, for diagnostics only.
func (e *Error) Cause() error {
	return e.cause
}

// Actionable reports whether the user can resolve the failure themselves.
func (e *Error) Actionable() bool {
	return e.Class == ErrNotConfigured
}

// Status reports an HTTP-like status for presentation.
func (e *Error) Status() (int, string) {
	switch e.Class {
	case ErrNotConfigured:
		return http.StatusNotFound, e.Error()
	case ErrPermission:
		return http.StatusForbidden, e.Error()
	case ErrServer:
		return http.StatusBadGateway, e.Error()
	default:
		return http.StatusInternalServerError, e.Error()
	}
}

// classify maps a fetch failure onto the error taxonomy: 404 is
// NotConfigured, 401/403 is Permission, 5xx is Server and anything else,
// including failures with no response, is Unknown.
func classify(r role.Role, err error) *Error {
	status := api.StatusCode(err)

	var class error
	switch {
	case status == http.StatusNotFound:
		class = ErrNotConfigured
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		class = ErrPermission
	case status >= 500 && status <= 599:
		class = ErrServer
	default:
		class = ErrUnknown
	}

	return &Error{
		Class:      class,
		Role:       r,
		StatusCode: status,
		cause:      err,
	}
}
