package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const uniqueViolation = "23505"

// pgRepository provides PostgreSQL backed persistence for role aggregates.
type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxRepository struct {
	q querier
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
	if err != nil && db.IsInfra(err) {
		return infraErr("tx", err)
	}
	return err
}

// GetRole fetches a role aggregate including permissions and children.
func (r *pgRepository) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	return (&pgTxRepository{q: r.pool}).GetRole(ctx, id)
}

// ListRoles returns all roles in the given scope ordered by name. For
// TENANT scope only roles of the given tenant are returned; SYSTEM rows
// are never unioned in (strict scope separation, see DESIGN.md).
func (r *pgRepository) ListRoles(ctx context.Context, scope catalog.Scope, tenantID uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, scope, tenant_id, status, is_locked, is_system, version,
created_by, submitted_by, approver_id, approval_note, created_at, updated_at
FROM authz_roles WHERE scope=$1 AND tenant_id IS NOT DISTINCT FROM $2 ORDER BY name`,
		scope, nullableUUID(tenantID))
	if err != nil {
		return nil, infraErr("list roles", err)
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, infraErr("scan role", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("list roles", err)
	}
	return out, nil
}

// ListChangeRequests returns the approval history for a role, newest first.
func (r *pgRepository) ListChangeRequests(ctx context.Context, roleID uuid.UUID) ([]ChangeRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role_id, requested_by, approved_by, status, diff, reason, created_at, decided_at
FROM authz_change_requests WHERE role_id=$1 ORDER BY created_at DESC`, roleID)
	if err != nil {
		return nil, infraErr("list change requests", err)
	}
	defer rows.Close()
	var out []ChangeRequest
	for rows.Next() {
		req, err := scanChangeRequest(rows)
		if err != nil {
			return nil, infraErr("scan change request", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("list change requests", err)
	}
	return out, nil
}

func (t *pgTxRepository) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	row := t.q.QueryRow(ctx, `SELECT id, name, scope, tenant_id, status, is_locked, is_system, version,
created_by, submitted_by, approver_id, approval_note, created_at, updated_at
FROM authz_roles WHERE id=$1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
		}
		return nil, infraErr("get role", err)
	}
	if err := t.loadSets(ctx, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (t *pgTxRepository) GetRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.q.Query(ctx, `SELECT id, name, scope, tenant_id, status, is_locked, is_system, version,
created_by, submitted_by, approver_id, approval_note, created_at, updated_at
FROM authz_roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, infraErr("get roles by ids", err)
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, infraErr("scan role", err)
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("get roles by ids", err)
	}
	return out, nil
}

func (t *pgTxRepository) FindRoleIDByName(ctx context.Context, scope catalog.Scope, tenantID uuid.UUID, nameFolded string) (uuid.UUID, error) {
	var id uuid.UUID
	err := t.q.QueryRow(ctx, `SELECT id FROM authz_roles WHERE scope=$1 AND tenant_id IS NOT DISTINCT FROM $2 AND name_folded=$3`,
		scope, nullableUUID(tenantID), nameFolded).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, shared.ErrNotFound
		}
		return uuid.Nil, infraErr("find role by name", err)
	}
	return id, nil
}

func (t *pgTxRepository) InsertRole(ctx context.Context, role *Role) error {
	_, err := t.q.Exec(ctx, `INSERT INTO authz_roles (id, name, name_folded, scope, tenant_id, status, is_locked, is_system, version, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		role.ID, role.Name, foldName(role.Name), role.Scope, nullableUUID(role.TenantID),
		role.Status, role.IsLocked, role.IsSystem, role.Version, role.CreatedByID, role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: role name %q already exists in scope", shared.ErrBadRequest, role.Name)
		}
		return infraErr("insert role", err)
	}
	return nil
}

// UpdateRole persists the aggregate guarded by its version token. The
// row version is bumped atomically; zero affected rows means another
// writer won the race and the caller receives Conflict.
func (t *pgTxRepository) UpdateRole(ctx context.Context, role *Role) error {
	tag, err := t.q.Exec(ctx, `UPDATE authz_roles SET status=$2, submitted_by=$3, approver_id=$4, approval_note=$5,
version=version+1, updated_at=NOW() WHERE id=$1 AND version=$6`,
		role.ID, role.Status, nullableID(role.SubmittedByID), nullableID(role.ApproverID),
		role.ApprovalNote, role.Version)
	if err != nil {
		return infraErr("update role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %s version %d is stale", shared.ErrConflict, role.ID, role.Version)
	}
	role.Version++
	return nil
}

func (t *pgTxRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM authz_roles WHERE id=$1`, id)
	if err != nil {
		return infraErr("delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	return nil
}

func (t *pgTxRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM authz_role_permissions WHERE role_id=$1`, roleID); err != nil {
		return infraErr("clear role permissions", err)
	}
	for _, slug := range slugs {
		if _, err := t.q.Exec(ctx, `INSERT INTO authz_role_permissions (role_id, slug) VALUES ($1, $2)`, roleID, slug); err != nil {
			return infraErr("insert role permission", err)
		}
	}
	return nil
}

func (t *pgTxRepository) ReplaceChildren(ctx context.Context, roleID uuid.UUID, childIDs []uuid.UUID) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM authz_role_children WHERE parent_id=$1`, roleID); err != nil {
		return infraErr("clear role children", err)
	}
	for _, childID := range childIDs {
		if _, err := t.q.Exec(ctx, `INSERT INTO authz_role_children (parent_id, child_id) VALUES ($1, $2)`, roleID, childID); err != nil {
			return infraErr("insert role child", err)
		}
	}
	return nil
}

func (t *pgTxRepository) ListEdges(ctx context.Context) ([]rolegraph.Edge, error) {
	rows, err := t.q.Query(ctx, `SELECT parent_id, child_id FROM authz_role_children`)
	if err != nil {
		return nil, infraErr("list edges", err)
	}
	defer rows.Close()
	var edges []rolegraph.Edge
	for rows.Next() {
		var e rolegraph.Edge
		if err := rows.Scan(&e.ParentID, &e.ChildID); err != nil {
			return nil, infraErr("scan edge", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("list edges", err)
	}
	return edges, nil
}

func (t *pgTxRepository) CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var n int64
	if err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM authz_assignments WHERE role_id=$1`, roleID).Scan(&n); err != nil {
		return 0, infraErr("count assignments", err)
	}
	return n, nil
}

func (t *pgTxRepository) InsertChangeRequest(ctx context.Context, req *ChangeRequest) error {
	diffJSON, err := json.Marshal(req.Diff)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}
	_, err = t.q.Exec(ctx, `INSERT INTO authz_change_requests (id, role_id, requested_by, status, diff, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.RoleID, req.RequestedBy, req.Status, diffJSON, req.Reason, req.CreatedAt)
	if err != nil {
		return infraErr("insert change request", err)
	}
	return nil
}

func (t *pgTxRepository) LatestPendingChangeRequest(ctx context.Context, roleID uuid.UUID) (*ChangeRequest, error) {
	row := t.q.QueryRow(ctx, `SELECT id, role_id, requested_by, approved_by, status, diff, reason, created_at, decided_at
FROM authz_change_requests WHERE role_id=$1 AND status='PENDING' ORDER BY created_at DESC LIMIT 1`, roleID)
	req, err := scanChangeRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no pending change request for role %s", shared.ErrNotFound, roleID)
		}
		return nil, infraErr("get pending change request", err)
	}
	return &req, nil
}

func (t *pgTxRepository) UpdateChangeRequest(ctx context.Context, req *ChangeRequest) error {
	_, err := t.q.Exec(ctx, `UPDATE authz_change_requests SET status=$2, approved_by=$3, reason=$4, decided_at=NOW() WHERE id=$1`,
		req.ID, req.Status, nullableID(req.ApprovedBy), req.Reason)
	if err != nil {
		return infraErr("update change request", err)
	}
	return nil
}

func (t *pgTxRepository) loadSets(ctx context.Context, role *Role) error {
	permRows, err := t.q.Query(ctx, `SELECT slug FROM authz_role_permissions WHERE role_id=$1 ORDER BY slug`, role.ID)
	if err != nil {
		return infraErr("load role permissions", err)
	}
	defer permRows.Close()
	for permRows.Next() {
		var slug string
		if err := permRows.Scan(&slug); err != nil {
			return infraErr("scan permission", err)
		}
		role.Permissions = append(role.Permissions, slug)
	}
	if err := permRows.Err(); err != nil {
		return infraErr("load role permissions", err)
	}

	childRows, err := t.q.Query(ctx, `SELECT child_id FROM authz_role_children WHERE parent_id=$1`, role.ID)
	if err != nil {
		return infraErr("load role children", err)
	}
	defer childRows.Close()
	for childRows.Next() {
		var childID uuid.UUID
		if err := childRows.Scan(&childID); err != nil {
			return infraErr("scan child", err)
		}
		role.ChildRoleIDs = append(role.ChildRoleIDs, childID)
	}
	if err := childRows.Err(); err != nil {
		return infraErr("load role children", err)
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var tenantID, submittedBy, approverID = new(uuid.UUID), new(int64), new(int64)
	var approvalNote *string
	err := row.Scan(&role.ID, &role.Name, &role.Scope, &tenantID, &role.Status, &role.IsLocked,
		&role.IsSystem, &role.Version, &role.CreatedByID, &submittedBy, &approverID,
		&approvalNote, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	if tenantID != nil {
		role.TenantID = *tenantID
	}
	if submittedBy != nil {
		role.SubmittedByID = *submittedBy
	}
	if approverID != nil {
		role.ApproverID = *approverID
	}
	if approvalNote != nil {
		role.ApprovalNote = *approvalNote
	}
	return role, nil
}

func scanChangeRequest(row pgx.Row) (ChangeRequest, error) {
	var req ChangeRequest
	var approvedBy *int64
	var reason *string
	var diffJSON []byte
	var decidedAt *time.Time
	err := row.Scan(&req.ID, &req.RoleID, &req.RequestedBy, &approvedBy, &req.Status,
		&diffJSON, &reason, &req.CreatedAt, &decidedAt)
	if err != nil {
		return ChangeRequest{}, err
	}
	if approvedBy != nil {
		req.ApprovedBy = *approvedBy
	}
	if reason != nil {
		req.Reason = *reason
	}
	if decidedAt != nil {
		req.DecidedAt = *decidedAt
	}
	if len(diffJSON) > 0 {
		if err := json.Unmarshal(diffJSON, &req.Diff); err != nil {
			return ChangeRequest{}, err
		}
	}
	return req, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func infraErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", shared.ErrUnavailable, op, err)
}
