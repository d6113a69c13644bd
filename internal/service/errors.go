package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for the conversion pipeline taxonomy. Everything raised
// inside a transaction rolls the whole unit of work back before surfacing.
var (
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrNotFound            = errors.New("not found")
)

// AuthorizationError carries the governance denial detail the caller must
// surface to the requester verbatim.
type AuthorizationError struct {
	Reason       string
	RequiredRole string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

func (e *AuthorizationError) Unwrap() error {
	return ErrAuthorizationDenied
}

// InvalidTransitionError reports an illegal status transition with a
// user-facing reason. No mutation is performed when it is returned.
type InvalidTransitionError struct {
	DocType string
	From    string
	To      string
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s transition from %q to %q", e.DocType, e.From, e.To)
}

// DuplicateConversionError is returned when the authoritative in-transaction
// uniqueness check finds an existing derived document. It carries the id of
// the pre-existing document so the caller can reference it.
type DuplicateConversionError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateConversionError) Error() string {
	return fmt.Sprintf("a derived document already exists: %s", e.ExistingID)
}
