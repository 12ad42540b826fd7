// Package store defines the contract between the sync engine and the
// per-table persistence layer.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexiflow/lexisync/internal/schema"
)

var (
	// ErrNotFound is returned when no record (live or deleted) has the id.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by Insert when the id is taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrDeleted is returned when a write targets a soft-deleted record.
	ErrDeleted = errors.New("record is deleted")

	// ErrVersionConflict is matched by VersionMismatchError.
	ErrVersionConflict = errors.New("row version conflict")
)

// VersionMismatchError reports a failed compare-and-swap on the row version.
type VersionMismatchError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("row version mismatch for %s: expected %q, actual %q", e.ID, e.Expected, e.Actual)
}

// Is reports whether target is ErrVersionConflict.
func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionConflict
}

// Collection is one entity table.
//
// Implementations own the Meta fields: they stamp timestamps, actors and a
// fresh RowVersion on every successful write and copy them back into the
// record passed in.
type Collection[T any, P schema.Record[T]] interface {
	// Get returns the record with id, including soft-deleted ones.
	Get(ctx context.Context, id string) (P, error)

	// List returns every live record.
	List(ctx context.Context) ([]P, error)

	// ChangedSince returns records created, modified or deleted at or after since.
	ChangedSince(ctx context.Context, since time.Time) ([]P, error)

	// Insert stores a new record. Returns ErrAlreadyExists if the id is taken.
	Insert(ctx context.Context, rec P, actor string) error

	// Update replaces the domain fields of a live record. A non-empty
	// expectedVersion makes the write conditional on the stored row version.
	Update(ctx context.Context, rec P, actor, expectedVersion string) error

	// SoftDelete marks a live record deleted, with the same version rule as Update.
	SoftDelete(ctx context.Context, id, actor, expectedVersion string) error
}
