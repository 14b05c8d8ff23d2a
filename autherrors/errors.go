package autherrors

import (
	"errors"
	"fmt"
)

// Common error types for the session core
var (
	// Authentication errors
	ErrCredentialsRejected = errors.New("credentials rejected")
	ErrNotAuthenticated    = errors.New("not authenticated")

	// Token errors
	ErrRefreshFailed = errors.New("refresh failed")
	ErrUnauthorized  = errors.New("unauthorized")

	// Transport errors
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Session errors
	ErrSessionEnded   = errors.New("session ended")
	ErrInvalidSession = errors.New("invalid session")
	ErrInvalidState   = errors.New("invalid state for operation")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Storage errors
	ErrNotFound = errors.New("not found")
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

// IsTransient reports whether err is a failure that a later attempt may overcome.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}
