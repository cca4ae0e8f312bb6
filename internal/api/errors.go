package api

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Status reports the HTTP status and a message suitable for display.
func (e *StatusError) Status() (int, string) {
	return e.StatusCode, http.StatusText(e.StatusCode)
}

// StatusCode returns the HTTP status carried by err, or 0 if err did not
// come from a backend response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsStatus reports whether err is a backend response with one of the given
// status codes.
func IsStatus(err error, codes ...int) bool {
	code := StatusCode(err)
	return code != 0 && slices.Contains(codes, code)
}

// IsAuthFailure reports whether err is a 401 or 403 response.
func IsAuthFailure(err error) bool {
	return IsStatus(err, http.StatusUnauthorized, http.StatusForbidden)
}
