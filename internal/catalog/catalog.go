// Package catalog registers the LexiFlow entity tables with the sync engine.
//
// Adding an entity type means adding one line to Register; neither the engine
// nor the HTTP layer changes.
package catalog

import (
	"fmt"

	"github.com/lexiflow/lexisync/internal/auth"
	"github.com/lexiflow/lexisync/internal/db"
	"github.com/lexiflow/lexisync/internal/schema"
	"github.com/lexiflow/lexisync/internal/sync"
)

// Entry describes one registered table.
type Entry struct {
	Name         string
	SQLTable     string
	RequiredRole string
}

// Entries lists the built-in tables with their default role gates.
var Entries = []Entry{
	{Name: schema.TableUsers, SQLTable: "users", RequiredRole: auth.RoleAdmin},
	{Name: schema.TableRoles, SQLTable: "roles", RequiredRole: auth.RoleAdmin},
	{Name: schema.TableCategories, SQLTable: "categories"},
	{Name: schema.TableVocabularyItems, SQLTable: "vocabulary_items"},
	{Name: schema.TableCourses, SQLTable: "courses"},
	{Name: schema.TableLessons, SQLTable: "lessons"},
	{Name: schema.TableExercises, SQLTable: "exercises"},
}

// SQLTables returns the SQL table names of every entry.
func SQLTables() []string {
	tables := make([]string, len(Entries))
	for i, e := range Entries {
		tables[i] = e.SQLTable
	}
	return tables
}

// Register creates the entity tables in database and registers a Reader and
// Applier for each with registry. opts applies to every table; its
// RequiredRole is ignored in favour of the per-entry default.
func Register(registry *sync.Registry, database *db.DB, opts sync.TableOptions) error {
	if err := database.InitSchema(SQLTables()...); err != nil {
		return fmt.Errorf("failed to initialize entity tables: %w", err)
	}
	if opts.Locks == nil {
		opts.Locks = sync.NewKeyedMutex()
	}

	registrations := []func() error{
		func() error { return register[schema.User](registry, database, Entries[0], opts) },
		func() error { return register[schema.Role](registry, database, Entries[1], opts) },
		func() error { return register[schema.Category](registry, database, Entries[2], opts) },
		func() error { return register[schema.VocabularyItem](registry, database, Entries[3], opts) },
		func() error { return register[schema.Course](registry, database, Entries[4], opts) },
		func() error { return register[schema.Lesson](registry, database, Entries[5], opts) },
		func() error { return register[schema.Exercise](registry, database, Entries[6], opts) },
	}
	for _, reg := range registrations {
		if err := reg(); err != nil {
			return err
		}
	}
	return nil
}

func register[T any, P schema.Record[T]](registry *sync.Registry, database *db.DB, e Entry, opts sync.TableOptions) error {
	coll, err := db.NewCollection[T, P](database, e.SQLTable)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.Name, err)
	}
	opts.RequiredRole = e.RequiredRole
	if err := registry.Register(sync.NewTable[T, P](e.Name, coll, opts)); err != nil {
		return fmt.Errorf("failed to register %s: %w", e.Name, err)
	}
	return nil
}

// ApplyRoles sets role gates from configuration in one step. Keys are table
// names (any case); an empty value opens the table to any authenticated
// principal. Tables not named get their default role back. An unknown name
// fails the whole call and leaves every gate as it was.
func ApplyRoles(registry *sync.Registry, roles map[string]string) error {
	return registry.SetRoles(roles)
}

// ResetRoles restores the default role gates.
func ResetRoles(registry *sync.Registry) {
	_ = registry.SetRoles(nil)
}
