// Package auth resolves bearer tokens to the principal acting on a request.
//
// Tokens are HS256 JWTs carrying the user id as subject plus a roles claim.
// Issuing tokens to end users is the job of the identity service; Sign exists
// for tooling (CLI, load tests) and tests.
package auth

import (
	"context"
	"strings"
)

// RoleAdmin is the elevated role required by privileged tables.
const RoleAdmin = "Admin"

// Principal is the authenticated caller.
type Principal struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the principal holds role. Comparison ignores case.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds RoleAdmin.
func (p *Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// Actor returns the identifier stamped into audit columns.
func (p *Principal) Actor() string {
	if p == nil {
		return ""
	}
	if p.ID != "" {
		return p.ID
	}
	return p.Name
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
