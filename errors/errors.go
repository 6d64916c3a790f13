// Package errors provides error handling for the materialize client.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Add hints for users
//	return errors.WithHint(err, "set datastack_name in the config file")
//
//	// Check errors
//	if errors.Is(err, errors.ErrNoDatastack) {
//	    // handle missing configuration
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection and marking
var (
	Is         = crdb.Is
	IsAny      = crdb.IsAny
	As         = crdb.As
	Unwrap     = crdb.Unwrap
	UnwrapOnce = crdb.UnwrapOnce
	UnwrapAll  = crdb.UnwrapAll
	Mark       = crdb.Mark
)

// Common sentinel errors for the materialization client.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNoDatastack indicates that neither the call nor the client
	// configuration supplied a datastack name
	ErrNoDatastack = New("no datastack name configured")

	// ErrNoVersion indicates that no materialization version could be
	// resolved for the request
	ErrNoVersion = New("no materialization version resolved")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidQuery indicates the query specification was malformed
	ErrInvalidQuery = New("invalid query specification")

	// ErrUnauthorized indicates the request lacks proper authentication
	ErrUnauthorized = New("unauthorized")
)

// IsNoDatastackError checks if an error is or wraps ErrNoDatastack
func IsNoDatastackError(err error) bool {
	return err != nil && Is(err, ErrNoDatastack)
}

// IsInvalidQueryError checks if an error is or wraps ErrInvalidQuery
func IsInvalidQueryError(err error) bool {
	return err != nil && Is(err, ErrInvalidQuery)
}

// NewInvalidQueryError creates an invalid-query error with a formatted message
func NewInvalidQueryError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidQuery, Newf(format, args...).Error())
}
