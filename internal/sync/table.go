package sync

import (
	"log"

	"github.com/lexiflow/lexisync/internal/schema"
	"github.com/lexiflow/lexisync/internal/store"
)

// TableOptions configures NewTable.
type TableOptions struct {
	RequiredRole string
	Policy       ConflictPolicy
	Workers      int
	Locks        *KeyedMutex
	Logger       *log.Logger
}

// NewTable builds the Reader/Applier pair for one entity type.
//
// Example:
//
//	t := sync.NewTable[schema.User, *schema.User]("Users", users, sync.TableOptions{RequiredRole: auth.RoleAdmin})
func NewTable[T any, P schema.Record[T]](name string, coll store.Collection[T, P], opts TableOptions) Table {
	return Table{
		Name:   name,
		Reader: NewReader[T, P](name, coll),
		Applier: NewApplier[T, P](name, coll, ApplierOptions{
			Policy:  opts.Policy,
			Workers: opts.Workers,
			Locks:   opts.Locks,
			Logger:  opts.Logger,
		}),
		RequiredRole: opts.RequiredRole,
	}
}
