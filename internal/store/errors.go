package store

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when a run id has no row.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidID rejects records without a usable run id.
	ErrInvalidID = errors.New("invalid entity ID")

	// ErrInvalidFilter rejects Where conditions on unknown columns.
	ErrInvalidFilter = errors.New("invalid filter")
)

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError returns a NotFoundError for entity id.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
