// Package apierr defines the error taxonomy shared by the gateways and the
// todo cache.
package apierr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when login is rejected with 401.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when register is rejected with 409.
	ErrUserExists = errors.New("user already exists")
	// ErrUnauthorized is returned when a bearer token is rejected with 401.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError is a client-side rejection. It never involves the network.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Validation builds a ValidationError.
func Validation(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ServerError is any response with an unexpected status, or a successful
// status whose body could not be used.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server error (%d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server error (%d)", e.Status)
}

// NetworkError means no response reached the client.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network: " + e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

// Status returns the HTTP status carried by a ServerError, or 0.
func Status(err error) int {
	var s *ServerError
	if errors.As(err, &s) {
		return s.Status
	}
	return 0
}
