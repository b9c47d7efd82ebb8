package effective

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// pgRepository provides the PostgreSQL read side of the engine.
type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) ListAssignedRoleIDs(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	var scope *uuid.UUID
	if scopeID != uuid.Nil {
		scope = &scopeID
	}
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM authz_assignments
WHERE user_id=$1 AND scope_type=$2 AND scope_id IS NOT DISTINCT FROM $3
AND (valid_from IS NULL OR valid_from <= $4)
AND (valid_to IS NULL OR valid_to > $4)`,
		userID, scopeType, scope, now)
	if err != nil {
		return nil, fmt.Errorf("%w: list assigned roles: %v", shared.ErrUnavailable, err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan role id: %v", shared.ErrUnavailable, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list assigned roles: %v", shared.ErrUnavailable, err)
	}
	return out, nil
}

func (r *pgRepository) ListEdges(ctx context.Context) ([]rolegraph.Edge, error) {
	rows, err := r.pool.Query(ctx, `SELECT parent_id, child_id FROM authz_role_children`)
	if err != nil {
		return nil, fmt.Errorf("%w: list edges: %v", shared.ErrUnavailable, err)
	}
	defer rows.Close()
	var edges []rolegraph.Edge
	for rows.Next() {
		var e rolegraph.Edge
		if err := rows.Scan(&e.ParentID, &e.ChildID); err != nil {
			return nil, fmt.Errorf("%w: scan edge: %v", shared.ErrUnavailable, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list edges: %v", shared.ErrUnavailable, err)
	}
	return edges, nil
}

func (r *pgRepository) ListPermissionSlugs(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT p.slug
FROM authz_role_permissions p
JOIN authz_roles r ON r.id = p.role_id
WHERE p.role_id = ANY($1) AND r.status = 'ACTIVE'
ORDER BY p.slug`, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: list permission slugs: %v", shared.ErrUnavailable, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("%w: scan slug: %v", shared.ErrUnavailable, err)
		}
		out = append(out, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list permission slugs: %v", shared.ErrUnavailable, err)
	}
	return out, nil
}
