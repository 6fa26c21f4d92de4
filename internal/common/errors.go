package common

import "errors"

var (
	// ErrInvalidToken is returned when a bearer token cannot be inspected.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a bearer token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)
