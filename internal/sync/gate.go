package sync

import (
	"fmt"

	"github.com/lexiflow/lexisync/internal/auth"
)

// Authorize checks the principal against the table's RequiredRole.
// It never touches the store.
func Authorize(p *auth.Principal, t Table) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if t.RequiredRole == "" || p.HasRole(t.RequiredRole) {
		return nil
	}
	return fmt.Errorf("%w: table %s requires role %s", ErrForbidden, t.Name, t.RequiredRole)
}
