// Package assignments manages scoped role bindings. A binding grants a
// user one role inside one scope; uniqueness over (user, role, scope)
// is enforced by the store. Scope ownership is strict: tenant actors
// only touch bindings of their own tenant, and SYSTEM roles are never
// bound into a tenant scope.
package assignments

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
)

// Assignment binds a user to a role within a scope, optionally bounded
// by a validity window.
type Assignment struct {
	ID         uuid.UUID
	UserID     int64
	RoleID     uuid.UUID
	ScopeType  catalog.Scope
	ScopeID    uuid.UUID
	AssignedBy int64
	AssignedAt time.Time
	ValidFrom  *time.Time
	ValidTo    *time.Time
}

// ActiveAt reports whether the binding is inside its validity window.
func (a Assignment) ActiveAt(now time.Time) bool {
	if a.ValidFrom != nil && now.Before(*a.ValidFrom) {
		return false
	}
	if a.ValidTo != nil && !now.Before(*a.ValidTo) {
		return false
	}
	return true
}
