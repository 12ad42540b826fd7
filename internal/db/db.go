// Package db provides the SQLite backing store for lexisync.
//
// Each synchronized entity type lives in its own table with the same shape:
//
//   - id, data (JSON of the typed entity)
//   - row_version: ULID regenerated on every write
//   - created_at/by, modified_at/by: audit columns
//   - is_deleted, deleted_at/by: soft-delete tombstone
//
// Timestamps are stored as fixed-width UTC text so that string comparison in
// SQL matches time order. The database runs in WAL mode so pulls can read
// while pushes write.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Clock supplies the timestamps stamped on records.
type Clock interface {
	Now() time.Time
}

// WriteClock is a Clock that also tracks writes in flight. BeginWrite returns
// the stamp for one write and a func the store calls after the write has
// committed or failed.
type WriteClock interface {
	Clock
	BeginWrite() (time.Time, func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DB wraps the SQLite connection pool.
type DB struct {
	conn  *sql.DB
	path  string
	clock Clock
}

// Open creates a new database connection at the specified path.
//
// The database is opened with WAL for concurrent reads. If the file doesn't
// exist it is created; call InitSchema to create the entity tables.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	database, err := db.Open("data/lexisync.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:  conn,
		path:  path,
		clock: systemClock{},
	}

	return db, nil
}

// SetClock replaces the clock used to stamp records. Pass the checkpoint
// authority here so record timestamps and checkpoints share one timeline.
func (db *DB) SetClock(c Clock) {
	if c == nil {
		c = systemClock{}
	}
	db.clock = c
}

// stamp returns the timestamp for a record write and the func to call when
// the write is finished.
func (db *DB) stamp() (time.Time, func()) {
	if wc, ok := db.clock.(WriteClock); ok {
		return wc.BeginWrite()
	}
	return db.clock.Now(), func() {}
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

var identifierRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// validTable reports whether name is safe to splice into SQL.
func validTable(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// InitSchema creates the given entity tables if they don't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema(tables ...string) error {
	return db.InitSchemaContext(context.Background(), tables...)
}

// InitSchemaContext creates the entity tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if err := validTable(table); err != nil {
			return err
		}
		if _, err := db.conn.ExecContext(ctx, tableDDL(table)); err != nil {
			return fmt.Errorf("failed to initialize table %s: %w", table, err)
		}
	}
	return nil
}

func tableDDL(table string) string {
	return `
	CREATE TABLE IF NOT EXISTS ` + table + ` (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		row_version TEXT NOT NULL,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		modified_at TEXT,
		modified_by TEXT NOT NULL DEFAULT '',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TEXT,
		deleted_by TEXT NOT NULL DEFAULT ''
	);

	-- Change feed lookups
	CREATE INDEX IF NOT EXISTS idx_` + table + `_created ON ` + table + `(created_at);
	CREATE INDEX IF NOT EXISTS idx_` + table + `_modified ON ` + table + `(modified_at);
	CREATE INDEX IF NOT EXISTS idx_` + table + `_deleted ON ` + table + `(deleted_at);
	`
}

// LatestChange returns the newest created, modified or deleted timestamp
// across tables, or the zero time if they are all empty.
func (db *DB) LatestChange(tables ...string) (time.Time, error) {
	return db.LatestChangeContext(context.Background(), tables...)
}

// LatestChangeContext is LatestChange with context support.
func (db *DB) LatestChangeContext(ctx context.Context, tables ...string) (time.Time, error) {
	var latest time.Time
	for _, table := range tables {
		if err := validTable(table); err != nil {
			return time.Time{}, err
		}

		var ts sql.NullString
		query := `SELECT MAX(
			MAX(created_at),
			COALESCE(MAX(modified_at), ''),
			COALESCE(MAX(deleted_at), '')
		) FROM ` + table
		if err := db.conn.QueryRowContext(ctx, query).Scan(&ts); err != nil {
			return time.Time{}, fmt.Errorf("failed to read latest change of %s: %w", table, err)
		}
		if t := nullStringToTime(ts); t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest, nil
}

// TableStats holds row counts for one table.
type TableStats struct {
	Table   string
	Live    int
	Deleted int
}

// Stats returns row counts for a table.
func (db *DB) Stats(table string) (*TableStats, error) {
	return db.StatsContext(context.Background(), table)
}

// StatsContext returns row counts for a table with context support.
func (db *DB) StatsContext(ctx context.Context, table string) (*TableStats, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	stats := &TableStats{Table: table}
	query := `SELECT
		COALESCE(SUM(CASE WHEN is_deleted = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_deleted = 1 THEN 1 ELSE 0 END), 0)
	FROM ` + table
	if err := db.conn.QueryRowContext(ctx, query).Scan(&stats.Live, &stats.Deleted); err != nil {
		return nil, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return stats, nil
}
