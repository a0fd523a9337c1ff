package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredentials is returned when a login lacks a user id or token.
	ErrInvalidCredentials = errors.New("user id and token are required")

	// ErrTokenExpired is returned when a JWT's exp claim is in the past.
	ErrTokenExpired = errors.New("token expired")
)

// tokenExpiry returns the exp claim of a JWT. ok is false for opaque
// tokens and for JWTs without an exp claim. The signature is not
// verified; only the backend can do that.
func tokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// checkToken reports whether token is usable at now.
func checkToken(token string, now time.Time) error {
	if token == "" {
		return ErrInvalidCredentials
	}
	if exp, ok := tokenExpiry(token); ok && !now.Before(exp) {
		return ErrTokenExpired
	}
	return nil
}
