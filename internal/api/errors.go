package api

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError indicates that the backend rejected the bearer credential.
// It is returned for 401 and 403 responses and invalidates the session.
type AuthError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%d) on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Body)
}

// ErrMissingCredentials is returned when an authenticated call is made
// without a user id or token.
var ErrMissingCredentials = errors.New("missing user id or token")

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
