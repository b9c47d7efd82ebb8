package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Invalidator clears cached permission decisions after a mutation. The
// mutation is durable before any of these run; failures inside the
// implementation are logged there, never surfaced here.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
	InvalidateUsersForRole(ctx context.Context, roleID uuid.UUID)
}

// Service orchestrates the role lifecycle.
type Service struct {
	repo        Repository
	catalog     *catalog.Catalog
	audit       shared.AuditSink
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, cat *catalog.Catalog, audit shared.AuditSink, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: cat, audit: audit, invalidator: invalidator, logger: logger}
}

// CreateRoleInput carries the fields needed to create a draft role.
type CreateRoleInput struct {
	Name     string
	Scope    catalog.Scope
	TenantID uuid.UUID
}

// Create inserts a new DRAFT role. Names are unique case-insensitively
// within scope and tenant; the scope is immutable afterwards.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateRoleInput) (*Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name required", shared.ErrBadRequest)
	}
	if !input.Scope.Valid() {
		return nil, fmt.Errorf("%w: invalid scope %q", shared.ErrBadRequest, input.Scope)
	}
	if input.Scope == catalog.ScopeSystem && input.TenantID != uuid.Nil {
		return nil, fmt.Errorf("%w: system roles cannot belong to a tenant", shared.ErrBadRequest)
	}
	if input.Scope == catalog.ScopeTenant && input.TenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant roles require a tenant", shared.ErrBadRequest)
	}
	if !actor.IsSystem() && (input.Scope != catalog.ScopeTenant || input.TenantID != actor.TenantID) {
		return nil, fmt.Errorf("%w: tenant actors may only create roles in their own tenant", shared.ErrForbidden)
	}

	role := &Role{
		ID:          uuid.New(),
		Name:        name,
		Scope:       input.Scope,
		TenantID:    input.TenantID,
		Status:      StatusDraft,
		Version:     1,
		CreatedByID: actor.UserID,
		CreatedAt:   time.Now(),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.FindRoleIDByName(ctx, input.Scope, input.TenantID, foldName(name))
		if err == nil {
			return fmt.Errorf("%w: role name %q already exists in scope", shared.ErrBadRequest, name)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return tx.InsertRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	role.UpdatedAt = role.CreatedAt
	s.dispatch(ctx, role, Event{Action: EventRoleCreated, RoleID: role.ID, ActorID: actor.UserID})
	return role, nil
}

// Get returns a role aggregate visible to the actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, roleID uuid.UUID) (*Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := s.guardScope(actor, role); err != nil {
		return nil, err
	}
	return role, nil
}

// List returns roles in a scope. Tenant actors only see their own
// tenant's TENANT roles; SYSTEM rows are never unioned into a tenant
// listing.
func (s *Service) List(ctx context.Context, actor shared.Actor, scope catalog.Scope, tenantID uuid.UUID) ([]Role, error) {
	if !actor.IsSystem() && (scope != catalog.ScopeTenant || tenantID != actor.TenantID) {
		return nil, fmt.Errorf("%w: tenant actors may only list their own tenant's roles", shared.ErrForbidden)
	}
	return s.repo.ListRoles(ctx, scope, tenantID)
}

// ListHistory returns the approval history of a role, newest first.
func (s *Service) ListHistory(ctx context.Context, actor shared.Actor, roleID uuid.UUID) ([]ChangeRequest, error) {
	if _, err := s.Get(ctx, actor, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListChangeRequests(ctx, roleID)
}

// Submit moves a role into PENDING_APPROVAL and opens a change request
// snapshotting the proposed permission and child sets.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, roleID uuid.UUID) (*Role, error) {
	var role *Role
	var ev Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := s.guardScope(actor, role); err != nil {
			return err
		}
		if ev, err = role.Submit(actor.UserID); err != nil {
			return err
		}
		if err := tx.UpdateRole(ctx, role); err != nil {
			return err
		}
		return tx.InsertChangeRequest(ctx, &ChangeRequest{
			ID:          uuid.New(),
			RoleID:      role.ID,
			RequestedBy: actor.UserID,
			Status:      ChangePending,
			Diff:        role.ProposedDiff(),
			CreatedAt:   time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, role, ev)
	return role, nil
}

// Approve activates a pending role. 4-eyes: the approver must differ
// from both submitter and creator. Activation changes what assignees
// may do, so their cached permissions are invalidated afterwards.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, roleID uuid.UUID) (*Role, error) {
	var role *Role
	var ev Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := s.guardScope(actor, role); err != nil {
			return err
		}
		if ev, err = role.Approve(actor.UserID); err != nil {
			return err
		}
		if err := tx.UpdateRole(ctx, role); err != nil {
			return err
		}
		return s.decidePending(ctx, tx, role.ID, ChangeApproved, actor.UserID, "")
	})
	if err != nil {
		return nil, err
	}
	s.invalidator.InvalidateUsersForRole(ctx, role.ID)
	s.dispatch(ctx, role, ev)
	return role, nil
}

// Reject turns down a pending role with a mandatory reason.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, roleID uuid.UUID, reason string) (*Role, error) {
	var role *Role
	var ev Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := s.guardScope(actor, role); err != nil {
			return err
		}
		if ev, err = role.Reject(reason, actor.UserID); err != nil {
			return err
		}
		if err := tx.UpdateRole(ctx, role); err != nil {
			return err
		}
		return s.decidePending(ctx, tx, role.ID, ChangeRejected, actor.UserID, role.ApprovalNote)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, role, ev)
	return role, nil
}

// UpdatePermissions replaces a role's own permission set under the
// caller-supplied version token. An active role is demoted to DRAFT.
func (s *Service) UpdatePermissions(ctx context.Context, actor shared.Actor, roleID uuid.UUID, slugs []string, expectedVersion int64) (*Role, error) {
	var role *Role
	var ev Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := s.guardScope(actor, role); err != nil {
			return err
		}
		if role.IsLocked {
			return fmt.Errorf("%w: role %q is locked", shared.ErrForbidden, role.Name)
		}
		if role.Version != expectedVersion {
			return fmt.Errorf("%w: role version is %d, expected %d", shared.ErrConflict, role.Version, expectedVersion)
		}
		if ev, err = role.SetPermissions(slugs, s.catalog, actor.UserID); err != nil {
			return err
		}
		if err := tx.ReplacePermissions(ctx, role.ID, role.Permissions); err != nil {
			return err
		}
		return tx.UpdateRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	s.invalidator.InvalidateUsersForRole(ctx, role.ID)
	s.dispatch(ctx, role, ev)
	return role, nil
}

// UpdateChildRoles replaces the composite child set. Children must share
// the role's scope (and tenant, for TENANT roles) and must not close a
// cycle. The cycle check runs against the edge snapshot of the same
// transaction that writes the edges.
func (s *Service) UpdateChildRoles(ctx context.Context, actor shared.Actor, roleID uuid.UUID, childIDs []uuid.UUID) (*Role, error) {
	var role *Role
	var ev Event
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := s.guardScope(actor, role); err != nil {
			return err
		}
		if role.IsLocked {
			return fmt.Errorf("%w: role %q is locked", shared.ErrForbidden, role.Name)
		}
		if err := s.validateChildren(ctx, tx, role, childIDs); err != nil {
			return err
		}
		if ev, err = role.SetChildRoles(childIDs, actor.UserID); err != nil {
			return err
		}
		if err := tx.ReplaceChildren(ctx, role.ID, role.ChildRoleIDs); err != nil {
			return err
		}
		return tx.UpdateRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	s.invalidator.InvalidateUsersForRole(ctx, role.ID)
	s.dispatch(ctx, role, ev)
	return role, nil
}

// Delete removes a role that is unlocked and has no assignments. Users
// holding ancestor composite roles lose the inherited permissions, so
// each former parent is invalidated after the delete commits.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, roleID uuid.UUID) error {
	var role *Role
	var parents []uuid.UUID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		role, err = tx.GetRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := s.guardScope(actor, role); err != nil {
			return err
		}
		if role.IsLocked {
			return fmt.Errorf("%w: role %q is locked", shared.ErrForbidden, role.Name)
		}
		count, err := tx.CountAssignments(ctx, role.ID)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: role %q has %d active assignments", shared.ErrConflict, role.Name, count)
		}
		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		for parentID := range rolegraph.New(edges).Ancestors(role.ID) {
			parents = append(parents, parentID)
		}
		return tx.DeleteRole(ctx, role.ID)
	})
	if err != nil {
		return err
	}
	for _, parentID := range parents {
		s.invalidator.InvalidateUsersForRole(ctx, parentID)
	}
	s.dispatch(ctx, role, Event{Action: EventRoleDeleted, RoleID: role.ID, ActorID: actor.UserID})
	return nil
}

func (s *Service) validateChildren(ctx context.Context, tx TxRepository, role *Role, childIDs []uuid.UUID) error {
	candidates := dedupIDs(childIDs)
	if len(candidates) == 0 {
		return nil
	}
	children, err := tx.GetRolesByIDs(ctx, candidates)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]Role, len(children))
	for _, c := range children {
		byID[c.ID] = c
	}
	for _, id := range candidates {
		child, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown child role %s", shared.ErrBadRequest, id)
		}
		if child.Scope != role.Scope {
			return fmt.Errorf("%w: child role %q scope mismatch for %s role", shared.ErrBadRequest, child.Name, role.Scope)
		}
		if role.Scope == catalog.ScopeTenant && child.TenantID != role.TenantID {
			return fmt.Errorf("%w: child role %q belongs to a different tenant", shared.ErrBadRequest, child.Name)
		}
	}

	edges, err := tx.ListEdges(ctx)
	if err != nil {
		return err
	}
	// Existing edges of this parent are being replaced; exclude them
	// from the snapshot so a re-submitted child set does not trip over
	// itself.
	kept := edges[:0]
	for _, e := range edges {
		if e.ParentID != role.ID {
			kept = append(kept, e)
		}
	}
	graph := rolegraph.New(kept)
	for _, id := range candidates {
		if graph.WouldCreateCycle(id, role.ID) {
			return fmt.Errorf("%w: adding child %s to role %q would create a cycle", shared.ErrBadRequest, id, role.Name)
		}
	}
	return nil
}

func (s *Service) decidePending(ctx context.Context, tx TxRepository, roleID uuid.UUID, status ChangeRequestStatus, actorID int64, reason string) error {
	req, err := tx.LatestPendingChangeRequest(ctx, roleID)
	if err != nil {
		// A pending role without an open change request can only come
		// from seeded data; decide the role anyway.
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	req.Status = status
	req.ApprovedBy = actorID
	if reason != "" {
		req.Reason = reason
	}
	return tx.UpdateChangeRequest(ctx, req)
}

func (s *Service) guardScope(actor shared.Actor, role *Role) error {
	if actor.IsSystem() {
		return nil
	}
	if role.Scope != catalog.ScopeTenant || role.TenantID != actor.TenantID {
		return fmt.Errorf("%w: role %q is outside the actor's tenant scope", shared.ErrForbidden, role.Name)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, role *Role, events ...Event) {
	for _, ev := range events {
		entry := shared.AuditEntry{
			ActorID:  ev.ActorID,
			Action:   ev.Action,
			Entity:   "role",
			EntityID: ev.RoleID.String(),
			Details:  ev.Details,
		}
		if role.TenantID != uuid.Nil {
			entry.TenantID = role.TenantID.String()
		}
		s.audit.Record(ctx, entry)
	}
}
