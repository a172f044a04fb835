package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/medsync/internal/ir"
)

// ItemError is a per-item failure detected while applying a sync item.
//
// The Code and Args are what the sending node sees in the import item, so
// Args are positional and fixed per code:
//   - MALFORMED_PAYLOAD: [reason]
//   - UNKNOWN_TYPE: [type]
//   - UNSETTABLE_PROPERTY: [field, type]
//   - NOT_COMMITTED: [type]
//   - GENERIC_FAILURE: [message]
//
// Err carries the underlying cause for logs; it never reaches the wire.
type ItemError struct {
	Code ir.ErrorCode
	Args []string
	Err  error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %v: %v", e.Code, e.Args, e.Err)
	}
	return fmt.Sprintf("%s %v", e.Code, e.Args)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *ItemError) Unwrap() error {
	return e.Err
}

// Conflict reports whether the failure is a data problem with the item
// (CONFLICT) rather than a fault on this node (ERROR).
func (e *ItemError) Conflict() bool {
	return e.Code != ir.ErrGenericFailure
}

// IsItemError returns true if err wraps an ItemError with the given code.
// Uses errors.As to handle wrapped errors.
func IsItemError(err error, code ir.ErrorCode) bool {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}

// AsItemError returns the ItemError in err's chain. Errors that are not
// ItemErrors are classified as GENERIC_FAILURE.
func AsItemError(err error) *ItemError {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie
	}
	return NewGenericFailure(err)
}

// NewMalformedPayloadError creates an ItemError for an undecodable payload.
func NewMalformedPayloadError(err error) *ItemError {
	return &ItemError{Code: ir.ErrMalformedPayload, Args: []string{err.Error()}, Err: err}
}

// NewUnknownTypeError creates an ItemError for a type missing from the catalog.
func NewUnknownTypeError(typeName string, err error) *ItemError {
	return &ItemError{Code: ir.ErrUnknownType, Args: []string{typeName}, Err: err}
}

// NewUnsettablePropertyError creates an ItemError for a field that cannot be
// assigned on typeName.
func NewUnsettablePropertyError(field, typeName string, err error) *ItemError {
	return &ItemError{Code: ir.ErrUnsettableProperty, Args: []string{field, typeName}, Err: err}
}

// NewNotCommittedError creates an ItemError for a write the store refused.
func NewNotCommittedError(typeName string, err error) *ItemError {
	return &ItemError{Code: ir.ErrNotCommitted, Args: []string{typeName}, Err: err}
}

// NewGenericFailure creates an ItemError for an unexpected fault.
func NewGenericFailure(err error) *ItemError {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return &ItemError{Code: ir.ErrGenericFailure, Args: []string{msg}, Err: err}
}
