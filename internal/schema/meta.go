package schema

import "time"

// Meta carries the identity, audit and concurrency fields shared by every entity.
type Meta struct {
	ID string `json:"Id,omitempty"`

	CreatedAt  time.Time  `json:"CreatedAt,omitzero"`
	CreatedBy  string     `json:"CreatedBy,omitempty"`
	ModifiedAt *time.Time `json:"ModifiedAt,omitempty"`
	ModifiedBy string     `json:"ModifiedBy,omitempty"`

	// Soft delete. A deleted record stays in its table as a tombstone so the
	// change feed can report the deletion.
	IsDeleted bool       `json:"IsDeleted,omitempty"`
	DeletedAt *time.Time `json:"DeletedAt,omitempty"`
	DeletedBy string     `json:"DeletedBy,omitempty"`

	// RowVersion is regenerated by the store on every write.
	RowVersion string `json:"RowVersion,omitempty"`
}

// Metadata returns the receiver so embedding structs satisfy Entity.
func (m *Meta) Metadata() *Meta {
	return m
}

// LastChanged returns the latest of the creation, modification and deletion times.
func (m *Meta) LastChanged() time.Time {
	last := m.CreatedAt
	if m.ModifiedAt != nil && m.ModifiedAt.After(last) {
		last = *m.ModifiedAt
	}
	if m.DeletedAt != nil && m.DeletedAt.After(last) {
		last = *m.DeletedAt
	}
	return last
}

// Entity is implemented by every synchronized type.
type Entity interface {
	Metadata() *Meta
	Validate() error
}

// Record constrains a pointer to an entity struct. Generic code uses it to
// allocate fresh values of T while still calling the Entity methods.
type Record[T any] interface {
	*T
	Entity
}
