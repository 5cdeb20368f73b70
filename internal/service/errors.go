package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password. Callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated means no usable bearer token was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken means a token was presented but failed verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden means the caller's role is not allowed on the route.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
