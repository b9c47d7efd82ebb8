// Package effective computes the resolved permission set a user holds
// in a scope: the union of every explicitly assigned role's permissions
// with everything inherited through the composite-role graph.
package effective

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository defines the reads the engine needs.
type Repository interface {
	// ListAssignedRoleIDs returns the roles bound to the user in the
	// scope whose validity window contains now.
	ListAssignedRoleIDs(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID, now time.Time) ([]uuid.UUID, error)
	ListEdges(ctx context.Context) ([]rolegraph.Edge, error)
	// ListPermissionSlugs returns the distinct permission slugs owned by
	// the given roles, restricted to ACTIVE roles.
	ListPermissionSlugs(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
}

// Engine is a pure read-side computation; it holds no mutable state.
type Engine struct {
	repo Repository
}

// NewEngine builds an Engine.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// ComputeEffectivePermissions resolves the deduplicated, sorted slug set
// for (user, scopeType, scopeId). Scope separation is strict: only roles
// explicitly assigned in the requested scope are honored — a SYSTEM role
// is never auto-granted inside a tenant. A user without assignments
// yields an empty set, not an error.
func (e *Engine) ComputeEffectivePermissions(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]string, error) {
	if !scopeType.Valid() {
		return nil, fmt.Errorf("%w: invalid scope type %q", shared.ErrBadRequest, scopeType)
	}
	assigned, err := e.repo.ListAssignedRoleIDs(ctx, userID, scopeType, scopeID, time.Now())
	if err != nil {
		return nil, err
	}
	if len(assigned) == 0 {
		return []string{}, nil
	}

	edges, err := e.repo.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	graph := rolegraph.New(edges)

	roleSet := make(map[uuid.UUID]struct{}, len(assigned))
	for _, id := range assigned {
		roleSet[id] = struct{}{}
		for descID := range graph.Descendants(id) {
			roleSet[descID] = struct{}{}
		}
	}
	roleIDs := make([]uuid.UUID, 0, len(roleSet))
	for id := range roleSet {
		roleIDs = append(roleIDs, id)
	}

	slugs, err := e.repo.ListPermissionSlugs(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	return dedupSorted(slugs), nil
}

func dedupSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
