package errors

import (
	"errors"
	"fmt"
)

// Common error types for the gateway
var (
	// Session errors
	ErrNoSession       = errors.New("no session")
	ErrNoRefreshToken  = errors.New("no refresh token")
	ErrUnsupportedRole = errors.New("unsupported role")

	// Token errors
	ErrMalformedToken       = errors.New("malformed token")
	ErrRefreshRejected      = errors.New("refresh token rejected")
	ErrMissingAuthorization = errors.New("missing authorization")

	// Upstream errors
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedResponse   = errors.New("malformed upstream response")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines errors, see errors.Join
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// New returns an error that formats as the given text
func New(text string) error {
	return errors.New(text)
}
