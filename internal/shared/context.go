package shared

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
)

// Actor identifies the authenticated caller and the scope context it
// operates in. Identity resolution itself happens outside the core; the
// transport layer fills this in before invoking any operation.
type Actor struct {
	UserID   int64
	Scope    catalog.Scope
	TenantID uuid.UUID
}

// IsSystem reports whether the actor operates in the SYSTEM context.
func (a Actor) IsSystem() bool {
	return a.Scope == catalog.ScopeSystem
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
