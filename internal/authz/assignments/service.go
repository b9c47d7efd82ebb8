package assignments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/roles"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RoleSource resolves role aggregates for scope validation.
type RoleSource interface {
	GetRole(ctx context.Context, id uuid.UUID) (*roles.Role, error)
}

// Invalidator clears cached permissions for a user after a binding
// mutation commits.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service implements the scoped role-assignment registry.
type Service struct {
	repo        Repository
	roleSource  RoleSource
	audit       shared.AuditSink
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, roleSource RoleSource, audit shared.AuditSink, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, roleSource: roleSource, audit: audit, invalidator: invalidator, logger: logger}
}

// AssignInput carries the fields of a new binding.
type AssignInput struct {
	UserID    int64
	RoleID    uuid.UUID
	ScopeType catalog.Scope
	ScopeID   uuid.UUID
	ValidFrom *time.Time
	ValidTo   *time.Time
}

// Assign binds a role to a user inside a scope. Only ACTIVE roles grant
// permissions, so only those may be bound. The role's own scope must
// match the target scope exactly; SYSTEM roles never enter a tenant
// scope and tenant roles never leave their tenant.
func (s *Service) Assign(ctx context.Context, actor shared.Actor, input AssignInput) (*Assignment, error) {
	if err := validateScopeRef(input.ScopeType, input.ScopeID); err != nil {
		return nil, err
	}
	if err := s.guardScope(actor, input.ScopeType, input.ScopeID); err != nil {
		return nil, err
	}
	if input.ValidFrom != nil && input.ValidTo != nil && !input.ValidFrom.Before(*input.ValidTo) {
		return nil, fmt.Errorf("%w: validity window is empty", shared.ErrBadRequest)
	}

	role, err := s.roleSource.GetRole(ctx, input.RoleID)
	if err != nil {
		return nil, err
	}
	if role.Scope != input.ScopeType {
		return nil, fmt.Errorf("%w: %s role %q cannot be assigned in %s scope", shared.ErrForbidden, role.Scope, role.Name, input.ScopeType)
	}
	if role.Scope == catalog.ScopeTenant && role.TenantID != input.ScopeID {
		return nil, fmt.Errorf("%w: role %q belongs to a different tenant", shared.ErrForbidden, role.Name)
	}
	if role.Status != roles.StatusActive {
		return nil, fmt.Errorf("%w: role %q is not active", shared.ErrBadRequest, role.Name)
	}

	assignment := &Assignment{
		ID:         uuid.New(),
		UserID:     input.UserID,
		RoleID:     input.RoleID,
		ScopeType:  input.ScopeType,
		ScopeID:    input.ScopeID,
		AssignedBy: actor.UserID,
		AssignedAt: time.Now(),
		ValidFrom:  input.ValidFrom,
		ValidTo:    input.ValidTo,
	}
	if err := s.repo.Insert(ctx, assignment); err != nil {
		return nil, err
	}
	s.invalidator.InvalidateUser(ctx, input.UserID)
	s.record(ctx, actor, "ROLE_ASSIGNED", assignment)
	return assignment, nil
}

// Revoke removes a binding. Scope guards mirror Assign.
func (s *Service) Revoke(ctx context.Context, actor shared.Actor, userID int64, roleID uuid.UUID, scopeType catalog.Scope, scopeID uuid.UUID) error {
	if err := validateScopeRef(scopeType, scopeID); err != nil {
		return err
	}
	if err := s.guardScope(actor, scopeType, scopeID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, roleID, scopeType, scopeID); err != nil {
		return err
	}
	s.invalidator.InvalidateUser(ctx, userID)
	s.record(ctx, actor, "ROLE_REVOKED", &Assignment{
		UserID: userID, RoleID: roleID, ScopeType: scopeType, ScopeID: scopeID,
	})
	return nil
}

// ListByUser returns the bindings of a user in a scope, guarded the
// same way as Revoke.
func (s *Service) ListByUser(ctx context.Context, actor shared.Actor, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]Assignment, error) {
	if err := validateScopeRef(scopeType, scopeID); err != nil {
		return nil, err
	}
	if err := s.guardScope(actor, scopeType, scopeID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID, scopeType, scopeID)
}

func validateScopeRef(scopeType catalog.Scope, scopeID uuid.UUID) error {
	if !scopeType.Valid() {
		return fmt.Errorf("%w: invalid scope type %q", shared.ErrBadRequest, scopeType)
	}
	if scopeType == catalog.ScopeSystem && scopeID != uuid.Nil {
		return fmt.Errorf("%w: system scope carries no scope id", shared.ErrBadRequest)
	}
	if scopeType == catalog.ScopeTenant && scopeID == uuid.Nil {
		return fmt.Errorf("%w: tenant scope requires a scope id", shared.ErrBadRequest)
	}
	return nil
}

func (s *Service) guardScope(actor shared.Actor, scopeType catalog.Scope, scopeID uuid.UUID) error {
	if actor.IsSystem() {
		return nil
	}
	if scopeType != catalog.ScopeTenant {
		return fmt.Errorf("%w: tenant actors cannot touch SYSTEM scope bindings", shared.ErrForbidden)
	}
	if scopeID != actor.TenantID {
		return fmt.Errorf("%w: binding is outside the actor's tenant", shared.ErrForbidden)
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, a *Assignment) {
	entry := shared.AuditEntry{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   "role_assignment",
		EntityID: a.RoleID.String(),
		Details: map[string]any{
			"userId":    a.UserID,
			"scopeType": string(a.ScopeType),
		},
	}
	if a.ScopeID != uuid.Nil {
		entry.TenantID = a.ScopeID.String()
		entry.Details["scopeId"] = a.ScopeID.String()
	}
	s.audit.Record(ctx, entry)
}
