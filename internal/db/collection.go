package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lexiflow/lexisync/internal/schema"
	"github.com/lexiflow/lexisync/internal/store"
)

var _ store.Collection[schema.Category, *schema.Category] = (*Collection[schema.Category, *schema.Category])(nil)

// Collection stores one entity type in one table.
type Collection[T any, P schema.Record[T]] struct {
	db    *DB
	table string
}

// NewCollection returns a collection over table. The table must already exist
// (see InitSchema).
//
// Example:
//
//	categories, err := db.NewCollection[schema.Category](database, "categories")
func NewCollection[T any, P schema.Record[T]](database *DB, table string) (*Collection[T, P], error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if err := validTable(table); err != nil {
		return nil, err
	}
	return &Collection[T, P]{db: database, table: table}, nil
}

// Table returns the SQL table name.
func (c *Collection[T, P]) Table() string {
	return c.table
}

const selectColumns = `id, data, row_version, created_at, created_by,
	       modified_at, modified_by, is_deleted, deleted_at, deleted_by`

// Get returns the record with id, including soft-deleted ones.
// Returns store.ErrNotFound if no row has the id.
func (c *Collection[T, P]) Get(ctx context.Context, id string) (P, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + c.table + ` WHERE id = ?`

	rec, err := c.scan(c.db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", c.table, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s %s: %w", c.table, id, err)
	}
	return rec, nil
}

// List returns every live record ordered by id.
func (c *Collection[T, P]) List(ctx context.Context) ([]P, error) {
	query := `SELECT ` + selectColumns + ` FROM ` + c.table + `
	WHERE is_deleted = 0
	ORDER BY id`

	return c.query(ctx, query)
}

// ChangedSince returns records whose creation, modification or deletion time
// is at or after since. The boundary is inclusive.
func (c *Collection[T, P]) ChangedSince(ctx context.Context, since time.Time) ([]P, error) {
	ts := formatTime(since)
	query := `SELECT ` + selectColumns + ` FROM ` + c.table + `
	WHERE created_at >= ?
	   OR (modified_at IS NOT NULL AND modified_at >= ?)
	   OR (deleted_at IS NOT NULL AND deleted_at >= ?)
	ORDER BY id`

	return c.query(ctx, query, ts, ts, ts)
}

// Insert stores a new record and stamps its Meta.
// Returns store.ErrAlreadyExists if the id is taken, even by a deleted record.
func (c *Collection[T, P]) Insert(ctx context.Context, rec P, actor string) error {
	meta := rec.Metadata()
	if meta.ID == "" {
		return fmt.Errorf("failed to insert into %s: id is required", c.table)
	}

	data, err := encodeData[T, P](rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", c.table, meta.ID, err)
	}

	now, done := c.db.stamp()
	defer done()
	version := ulid.Make().String()

	query := `
	INSERT INTO ` + c.table + ` (id, data, row_version, created_at, created_by)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`
	res, err := c.db.conn.ExecContext(ctx, query, meta.ID, data, version, formatTime(now), actor)
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", c.table, meta.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", c.table, meta.ID, err)
	} else if n == 0 {
		return fmt.Errorf("%s %s: %w", c.table, meta.ID, store.ErrAlreadyExists)
	}

	*meta = schema.Meta{
		ID:         meta.ID,
		CreatedAt:  now,
		CreatedBy:  actor,
		RowVersion: version,
	}
	return nil
}

// Update replaces the domain fields of a live record.
//
// A non-empty expectedVersion turns the write into a compare-and-swap: the
// row is only changed if its stored row_version still equals expectedVersion.
// Creation columns are never touched.
func (c *Collection[T, P]) Update(ctx context.Context, rec P, actor, expectedVersion string) error {
	meta := rec.Metadata()

	data, err := encodeData[T, P](rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", c.table, meta.ID, err)
	}

	now, done := c.db.stamp()
	defer done()
	version := ulid.Make().String()

	query := `
	UPDATE ` + c.table + `
	SET data = ?, row_version = ?, modified_at = ?, modified_by = ?
	WHERE id = ? AND is_deleted = 0`
	args := []interface{}{data, version, formatTime(now), actor, meta.ID}
	if expectedVersion != "" {
		query += ` AND row_version = ?`
		args = append(args, expectedVersion)
	}

	if err := c.execConditional(ctx, query, args, meta.ID, expectedVersion); err != nil {
		return err
	}

	meta.ModifiedAt = &now
	meta.ModifiedBy = actor
	meta.RowVersion = version
	return nil
}

// SoftDelete marks a live record deleted. The row stays as a tombstone so the
// change feed can report it.
func (c *Collection[T, P]) SoftDelete(ctx context.Context, id, actor, expectedVersion string) error {
	now, done := c.db.stamp()
	defer done()

	query := `
	UPDATE ` + c.table + `
	SET is_deleted = 1, deleted_at = ?, deleted_by = ?, row_version = ?
	WHERE id = ? AND is_deleted = 0`
	args := []interface{}{formatTime(now), actor, ulid.Make().String(), id}
	if expectedVersion != "" {
		query += ` AND row_version = ?`
		args = append(args, expectedVersion)
	}

	return c.execConditional(ctx, query, args, id, expectedVersion)
}

// execConditional runs a guarded UPDATE and, when it matches no row, works out
// which guard failed.
func (c *Collection[T, P]) execConditional(ctx context.Context, query string, args []interface{}, id, expectedVersion string) error {
	res, err := c.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", c.table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", c.table, id, err)
	}
	if n > 0 {
		return nil
	}

	current, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Metadata().IsDeleted {
		return fmt.Errorf("%s %s: %w", c.table, id, store.ErrDeleted)
	}
	return &store.VersionMismatchError{
		ID:       id,
		Expected: expectedVersion,
		Actual:   current.Metadata().RowVersion,
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (c *Collection[T, P]) scan(row rowScanner) (P, error) {
	var (
		id, data, version     string
		createdAt, createdBy  string
		modifiedAt, deletedAt sql.NullString
		modifiedBy, deletedBy string
		isDeleted             int
	)

	err := row.Scan(&id, &data, &version, &createdAt, &createdBy,
		&modifiedAt, &modifiedBy, &isDeleted, &deletedAt, &deletedBy)
	if err != nil {
		return nil, err
	}

	rec := P(new(T))
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %s: %w", c.table, id, err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at of %s %s: %w", c.table, id, err)
	}

	*rec.Metadata() = schema.Meta{
		ID:         id,
		CreatedAt:  created,
		CreatedBy:  createdBy,
		ModifiedAt: nullStringToTime(modifiedAt),
		ModifiedBy: modifiedBy,
		IsDeleted:  isDeleted != 0,
		DeletedAt:  nullStringToTime(deletedAt),
		DeletedBy:  deletedBy,
		RowVersion: version,
	}
	return rec, nil
}

func (c *Collection[T, P]) query(ctx context.Context, query string, args ...interface{}) ([]P, error) {
	rows, err := c.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.table, err)
	}
	defer rows.Close()

	var recs []P
	for rows.Next() {
		rec, err := c.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.table, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", c.table, err)
	}
	return recs, nil
}

// encodeData serializes the domain fields only; Meta lives in its own columns.
func encodeData[T any, P schema.Record[T]](rec P) (string, error) {
	cp := *rec
	*P(&cp).Metadata() = schema.Meta{}
	data, err := json.Marshal(P(&cp))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
