package roles

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
)

// Repository defines data access for role aggregates.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)
	ListRoles(ctx context.Context, scope catalog.Scope, tenantID uuid.UUID) ([]Role, error)
	ListChangeRequests(ctx context.Context, roleID uuid.UUID) ([]ChangeRequest, error)
}

// TxRepository exposes the writes that must share one transaction.
// Cycle validation reads the edge snapshot through the same transaction
// that writes the new edges, so two concurrent inserts cannot jointly
// close a cycle that each one individually misses.
type TxRepository interface {
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)
	GetRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error)
	FindRoleIDByName(ctx context.Context, scope catalog.Scope, tenantID uuid.UUID, nameFolded string) (uuid.UUID, error)
	InsertRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id uuid.UUID) error
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error
	ReplaceChildren(ctx context.Context, roleID uuid.UUID, childIDs []uuid.UUID) error
	ListEdges(ctx context.Context) ([]rolegraph.Edge, error)
	CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error)
	InsertChangeRequest(ctx context.Context, req *ChangeRequest) error
	LatestPendingChangeRequest(ctx context.Context, roleID uuid.UUID) (*ChangeRequest, error)
	UpdateChangeRequest(ctx context.Context, req *ChangeRequest) error
}
