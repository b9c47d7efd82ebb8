package permcache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// pgResolver resolves invalidation targets from PostgreSQL.
type pgResolver struct {
	pool *pgxpool.Pool
}

// NewResolver constructs an AssigneeResolver.
func NewResolver(pool *pgxpool.Pool) AssigneeResolver {
	return &pgResolver{pool: pool}
}

func (r *pgResolver) ListEdges(ctx context.Context) ([]rolegraph.Edge, error) {
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

func (r *pgResolver) ListAssigneesForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM authz_assignments WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: list assignees: %v", shared.ErrUnavailable, err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan assignee: %v", shared.ErrUnavailable, err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list assignees: %v", shared.ErrUnavailable, err)
	}
	return out, nil
}
