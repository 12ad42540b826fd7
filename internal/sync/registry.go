package sync

import (
	"fmt"
	"sort"
	"strings"
	stdsync "sync"
)

// Table binds a table name to its reader, applier and required role.
type Table struct {
	Name    string
	Reader  ChangeReader
	Applier ChangeApplier

	// RequiredRole gates both pull and push. Empty means any authenticated
	// principal.
	RequiredRole string
}

// Registry maps table names to Tables. Lookups ignore case.
// It is safe for concurrent use; roles may be changed while serving.
type Registry struct {
	mu       stdsync.RWMutex
	tables   map[string]*Table
	defaults map[string]string // RequiredRole at registration
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tables:   make(map[string]*Table),
		defaults: make(map[string]string),
	}
}

// Register adds a table. Names must be unique ignoring case.
func (r *Registry) Register(t Table) error {
	if t.Name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if t.Reader == nil || t.Applier == nil {
		return fmt.Errorf("table %s: reader and applier are required", t.Name)
	}

	key := strings.ToLower(t.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTable, t.Name)
	}
	r.tables[key] = &t
	r.defaults[key] = t.RequiredRole
	r.order = append(r.order, key)
	return nil
}

// Resolve returns the table registered under name.
func (r *Registry) Resolve(name string) (Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[strings.ToLower(name)]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnsupportedTable, name)
	}
	return *t, nil
}

// SetRequiredRole changes the role gate of a registered table.
func (r *Registry) SetRequiredRole(name, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTable, name)
	}
	t.RequiredRole = role
	return nil
}

// SetRoles replaces every role gate at once: tables named in overrides get
// that role, all others go back to the role they were registered with. Keys
// ignore case. If any key is not a registered table nothing changes.
func (r *Registry) SetRoles(overrides map[string]string) error {
	roles := make(map[string]string, len(overrides))
	for name, role := range overrides {
		roles[strings.ToLower(name)] = role
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var unknown []string
	for key := range roles {
		if _, ok := r.tables[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnsupportedTable, strings.Join(unknown, ", "))
	}

	for key, t := range r.tables {
		if role, ok := roles[key]; ok {
			t.RequiredRole = role
		} else {
			t.RequiredRole = r.defaults[key]
		}
	}
	return nil
}

// Tables returns every table in registration order.
func (r *Registry) Tables() []Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Table, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.tables[key])
	}
	return out
}

// Names returns the registered table names in registration order.
func (r *Registry) Names() []string {
	tables := r.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}
