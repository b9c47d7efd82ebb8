package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository defines data access for role bindings.
type Repository interface {
	Insert(ctx context.Context, assignment *Assignment) error
	Delete(ctx context.Context, userID int64, roleID uuid.UUID, scopeType catalog.Scope, scopeID uuid.UUID) error
	ListByUser(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]Assignment, error)
}

// pgRepository provides PostgreSQL backed persistence for assignments.
type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// Insert stores a binding. The unique index over (user_id, role_id,
// scope_type, scope_id) turns duplicates into Conflict.
func (r *pgRepository) Insert(ctx context.Context, a *Assignment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO authz_assignments (id, user_id, role_id, scope_type, scope_id, assigned_by, assigned_at, valid_from, valid_to)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.UserID, a.RoleID, a.ScopeType, nullableUUID(a.ScopeID), a.AssignedBy, a.AssignedAt, a.ValidFrom, a.ValidTo)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: user %d already holds role %s in scope", shared.ErrConflict, a.UserID, a.RoleID)
		}
		return fmt.Errorf("%w: insert assignment: %v", shared.ErrUnavailable, err)
	}
	return nil
}

// Delete removes a binding, NotFound when absent.
func (r *pgRepository) Delete(ctx context.Context, userID int64, roleID uuid.UUID, scopeType catalog.Scope, scopeID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM authz_assignments
WHERE user_id=$1 AND role_id=$2 AND scope_type=$3 AND scope_id IS NOT DISTINCT FROM $4`,
		userID, roleID, scopeType, nullableUUID(scopeID))
	if err != nil {
		return fmt.Errorf("%w: delete assignment: %v", shared.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no binding of role %s for user %d in scope", shared.ErrNotFound, roleID, userID)
	}
	return nil
}

// ListByUser returns all bindings of a user in the given scope.
func (r *pgRepository) ListByUser(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, role_id, scope_type, scope_id, assigned_by, assigned_at, valid_from, valid_to
FROM authz_assignments WHERE user_id=$1 AND scope_type=$2 AND scope_id IS NOT DISTINCT FROM $3 ORDER BY assigned_at`,
		userID, scopeType, nullableUUID(scopeID))
	if err != nil {
		return nil, fmt.Errorf("%w: list assignments: %v", shared.ErrUnavailable, err)
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		var scope *uuid.UUID
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.ScopeType, &scope, &a.AssignedBy, &a.AssignedAt, &a.ValidFrom, &a.ValidTo); err != nil {
			return nil, fmt.Errorf("%w: scan assignment: %v", shared.ErrUnavailable, err)
		}
		if scope != nil {
			a.ScopeID = *scope
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list assignments: %v", shared.ErrUnavailable, err)
	}
	return out, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
