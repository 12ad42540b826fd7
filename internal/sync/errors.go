package sync

import "errors"

// Request-level errors. Engine wraps these; callers classify with errors.Is.
var (
	// ErrUnsupportedTable is returned when no table is registered under the name.
	ErrUnsupportedTable = errors.New("unsupported table")

	// ErrForbidden is returned when the principal lacks the table's required role.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated is returned when no principal is supplied.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrDuplicateTable is returned by Register for a name already in use.
	ErrDuplicateTable = errors.New("table already registered")
)

// ErrorKind classifies a per-item failure in an ApplyResult.
type ErrorKind string

const (
	// KindConflict means the concurrency token did not match the stored row
	// version, or the record was deleted or created concurrently.
	KindConflict ErrorKind = "Conflict"

	// KindInvalidPayload means the envelope or its payload could not be used.
	KindInvalidPayload ErrorKind = "InvalidPayload"

	// KindNotFound means a delete targeted a record that does not exist.
	KindNotFound ErrorKind = "NotFound"

	// KindStoreError covers every other failure, including recovered panics.
	KindStoreError ErrorKind = "StoreError"
)
