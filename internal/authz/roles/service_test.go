package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	roles          map[uuid.UUID]*Role
	edges          []rolegraph.Edge
	changeRequests []*ChangeRequest
	assignments    map[uuid.UUID]int64

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:       make(map[uuid.UUID]*Role),
		assignments: make(map[uuid.UUID]int64),
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	return (&mockTxRepo{mock: m}).GetRole(ctx, id)
}

func (m *mockRepository) ListRoles(ctx context.Context, scope catalog.Scope, tenantID uuid.UUID) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.Scope == scope && role.TenantID == tenantID {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (m *mockRepository) ListChangeRequests(ctx context.Context, roleID uuid.UUID) ([]ChangeRequest, error) {
	var out []ChangeRequest
	for _, req := range m.changeRequests {
		if req.RoleID == roleID {
			out = append(out, *req)
		}
	}
	return out, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, ok := t.mock.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	copied := *role
	copied.Permissions = append([]string(nil), role.Permissions...)
	copied.ChildRoleIDs = append([]uuid.UUID(nil), role.ChildRoleIDs...)
	return &copied, nil
}

func (t *mockTxRepo) GetRolesByIDs(ctx context.Context, ids []uuid.UUID) ([]Role, error) {
	var out []Role
	for _, id := range ids {
		if role, ok := t.mock.roles[id]; ok {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (t *mockTxRepo) FindRoleIDByName(ctx context.Context, scope catalog.Scope, tenantID uuid.UUID, nameFolded string) (uuid.UUID, error) {
	for _, role := range t.mock.roles {
		if role.Scope == scope && role.TenantID == tenantID && foldName(role.Name) == nameFolded {
			return role.ID, nil
		}
	}
	return uuid.Nil, shared.ErrNotFound
}

func (t *mockTxRepo) InsertRole(ctx context.Context, role *Role) error {
	copied := *role
	t.mock.roles[role.ID] = &copied
	return nil
}

func (t *mockTxRepo) UpdateRole(ctx context.Context, role *Role) error {
	stored, ok := t.mock.roles[role.ID]
	if !ok {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, role.ID)
	}
	if stored.Version != role.Version {
		return fmt.Errorf("%w: role %s version %d is stale", shared.ErrConflict, role.ID, role.Version)
	}
	copied := *role
	copied.Version++
	copied.Permissions = append([]string(nil), role.Permissions...)
	copied.ChildRoleIDs = append([]uuid.UUID(nil), role.ChildRoleIDs...)
	t.mock.roles[role.ID] = &copied
	role.Version++
	return nil
}

func (t *mockTxRepo) DeleteRole(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.mock.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, id)
	}
	delete(t.mock.roles, id)
	kept := t.mock.edges[:0]
	for _, e := range t.mock.edges {
		if e.ParentID != id && e.ChildID != id {
			kept = append(kept, e)
		}
	}
	t.mock.edges = kept
	return nil
}

func (t *mockTxRepo) ReplacePermissions(ctx context.Context, roleID uuid.UUID, slugs []string) error {
	if role, ok := t.mock.roles[roleID]; ok {
		role.Permissions = append([]string(nil), slugs...)
	}
	return nil
}

func (t *mockTxRepo) ReplaceChildren(ctx context.Context, roleID uuid.UUID, childIDs []uuid.UUID) error {
	kept := t.mock.edges[:0]
	for _, e := range t.mock.edges {
		if e.ParentID != roleID {
			kept = append(kept, e)
		}
	}
	t.mock.edges = kept
	for _, childID := range childIDs {
		t.mock.edges = append(t.mock.edges, rolegraph.Edge{ParentID: roleID, ChildID: childID})
	}
	if role, ok := t.mock.roles[roleID]; ok {
		role.ChildRoleIDs = append([]uuid.UUID(nil), childIDs...)
	}
	return nil
}

func (t *mockTxRepo) ListEdges(ctx context.Context) ([]rolegraph.Edge, error) {
	return append([]rolegraph.Edge(nil), t.mock.edges...), nil
}

func (t *mockTxRepo) CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	return t.mock.assignments[roleID], nil
}

func (t *mockTxRepo) InsertChangeRequest(ctx context.Context, req *ChangeRequest) error {
	copied := *req
	t.mock.changeRequests = append(t.mock.changeRequests, &copied)
	return nil
}

func (t *mockTxRepo) LatestPendingChangeRequest(ctx context.Context, roleID uuid.UUID) (*ChangeRequest, error) {
	for i := len(t.mock.changeRequests) - 1; i >= 0; i-- {
		req := t.mock.changeRequests[i]
		if req.RoleID == roleID && req.Status == ChangePending {
			copied := *req
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: no pending change request", shared.ErrNotFound)
}

func (t *mockTxRepo) UpdateChangeRequest(ctx context.Context, req *ChangeRequest) error {
	for i, stored := range t.mock.changeRequests {
		if stored.ID == req.ID {
			copied := *req
			copied.DecidedAt = time.Now()
			t.mock.changeRequests[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("%w: change request %s", shared.ErrNotFound, req.ID)
}

// ============================================================================
// MOCK INVALIDATOR
// ============================================================================

type mockInvalidator struct {
	users []int64
	roles []uuid.UUID
}

func (m *mockInvalidator) InvalidateUser(_ context.Context, userID int64) {
	m.users = append(m.users, userID)
}

func (m *mockInvalidator) InvalidateUsersForRole(_ context.Context, roleID uuid.UUID) {
	m.roles = append(m.roles, roleID)
}

// ============================================================================
// FIXTURES
// ============================================================================

var (
	systemActor = shared.Actor{UserID: 1, Scope: catalog.ScopeSystem}
	tenantA     = uuid.New()
	tenantB     = uuid.New()
)

func tenantActor(userID int64, tenantID uuid.UUID) shared.Actor {
	return shared.Actor{UserID: userID, Scope: catalog.ScopeTenant, TenantID: tenantID}
}

func newTestService(t *testing.T) (*Service, *mockRepository, *mockInvalidator) {
	t.Helper()
	repo := newMockRepository()
	invalidator := &mockInvalidator{}
	svc := NewService(repo, testCatalog(t), shared.NopAuditSink{}, invalidator, slog.Default())
	return svc, repo, invalidator
}

func mustCreate(t *testing.T, svc *Service, actor shared.Actor, name string, scope catalog.Scope, tenantID uuid.UUID) *Role {
	t.Helper()
	role, err := svc.Create(context.Background(), actor, CreateRoleInput{Name: name, Scope: scope, TenantID: tenantID})
	require.NoError(t, err)
	return role
}

func activateRole(t *testing.T, svc *Service, roleID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Submit(ctx, tenantActor(10, tenantA), roleID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, tenantActor(11, tenantA), roleID)
	require.NoError(t, err)
}

// ============================================================================
// CREATE / LIST
// ============================================================================

func TestCreateRole(t *testing.T) {
	svc, repo, _ := newTestService(t)

	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)
	assert.Equal(t, StatusDraft, role.Status)
	assert.Equal(t, int64(1), role.Version)
	assert.Equal(t, int64(10), role.CreatedByID)
	assert.Contains(t, repo.roles, role.ID)
}

func TestCreateRoleDuplicateNameCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(t)
	actor := tenantActor(10, tenantA)

	mustCreate(t, svc, actor, "Billing Clerk", catalog.ScopeTenant, tenantA)
	_, err := svc.Create(context.Background(), actor, CreateRoleInput{Name: "BILLING CLERK", Scope: catalog.ScopeTenant, TenantID: tenantA})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))

	// Same name in another tenant is fine.
	mustCreate(t, svc, systemActor, "Billing Clerk", catalog.ScopeTenant, tenantB)
}

func TestCreateRoleScopeValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, systemActor, CreateRoleInput{Name: "X", Scope: catalog.ScopeTenant})
	assert.True(t, errors.Is(err, shared.ErrBadRequest))

	_, err = svc.Create(ctx, systemActor, CreateRoleInput{Name: "X", Scope: catalog.ScopeSystem, TenantID: tenantA})
	assert.True(t, errors.Is(err, shared.ErrBadRequest))

	// Tenant actors cannot create roles outside their own tenant.
	_, err = svc.Create(ctx, tenantActor(10, tenantA), CreateRoleInput{Name: "X", Scope: catalog.ScopeTenant, TenantID: tenantB})
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	_, err = svc.Create(ctx, tenantActor(10, tenantA), CreateRoleInput{Name: "X", Scope: catalog.ScopeSystem})
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestListRolesStrictScopeSeparation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, systemActor, "Platform Admin", catalog.ScopeSystem, uuid.Nil)
	mustCreate(t, svc, systemActor, "Tenant Admin", catalog.ScopeTenant, tenantA)

	// A tenant listing never unions SYSTEM rows in.
	list, err := svc.List(ctx, tenantActor(10, tenantA), catalog.ScopeTenant, tenantA)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tenant Admin", list[0].Name)

	_, err = svc.List(ctx, tenantActor(10, tenantA), catalog.ScopeTenant, tenantB)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	_, err = svc.List(ctx, tenantActor(10, tenantA), catalog.ScopeSystem, uuid.Nil)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestSubmitOpensChangeRequest(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)
	_, err := svc.UpdatePermissions(ctx, tenantActor(10, tenantA), role.ID, []string{"billing.invoices.read"}, 1)
	require.NoError(t, err)

	updated, err := svc.Submit(ctx, tenantActor(10, tenantA), role.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, updated.Status)

	require.Len(t, repo.changeRequests, 1)
	req := repo.changeRequests[0]
	assert.Equal(t, ChangePending, req.Status)
	assert.Equal(t, int64(10), req.RequestedBy)
	assert.Equal(t, []string{"billing.invoices.read"}, req.Diff.Permissions)
}

func TestApproveFourEyesViaService(t *testing.T) {
	svc, repo, invalidator := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)

	_, err := svc.Submit(ctx, tenantActor(10, tenantA), role.ID)
	require.NoError(t, err)

	// Submitter (who is also creator here) cannot approve.
	_, err = svc.Approve(ctx, tenantActor(10, tenantA), role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))

	approved, err := svc.Approve(ctx, tenantActor(11, tenantA), role.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, approved.Status)

	require.Len(t, repo.changeRequests, 1)
	assert.Equal(t, ChangeApproved, repo.changeRequests[0].Status)
	assert.Equal(t, int64(11), repo.changeRequests[0].ApprovedBy)

	// Activation fans out to everyone holding the role.
	assert.Equal(t, []uuid.UUID{role.ID}, invalidator.roles)
}

func TestRejectRecordsReason(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)

	_, err := svc.Submit(ctx, tenantActor(10, tenantA), role.ID)
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, tenantActor(11, tenantA), role.ID, "too broad")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "too broad", rejected.ApprovalNote)

	require.Len(t, repo.changeRequests, 1)
	assert.Equal(t, ChangeRejected, repo.changeRequests[0].Status)
	assert.Equal(t, "too broad", repo.changeRequests[0].Reason)

	// Rejected roles can be resubmitted.
	_, err = svc.Submit(ctx, tenantActor(10, tenantA), role.ID)
	require.NoError(t, err)
}

// ============================================================================
// PERMISSION / CHILD UPDATES
// ============================================================================

func TestUpdatePermissionsVersionConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)

	_, err := svc.UpdatePermissions(ctx, tenantActor(10, tenantA), role.ID, []string{"billing.invoices.read"}, 1)
	require.NoError(t, err)

	// Stale token: the first update bumped the version to 2.
	_, err = svc.UpdatePermissions(ctx, tenantActor(10, tenantA), role.ID, []string{"reports.view"}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestUpdatePermissionsDemotesActiveRole(t *testing.T) {
	svc, repo, invalidator := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)
	activateRole(t, svc, role.ID)

	current, err := svc.Get(ctx, systemActor, role.ID)
	require.NoError(t, err)

	updated, err := svc.UpdatePermissions(ctx, tenantActor(10, tenantA), role.ID, []string{"reports.view"}, current.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, updated.Status)
	assert.Equal(t, []string{"reports.view"}, repo.roles[role.ID].Permissions)
	assert.Contains(t, invalidator.roles, role.ID)
}

func TestUpdatePermissionsLockedRole(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, systemActor, "Root", catalog.ScopeSystem, uuid.Nil)
	repo.roles[role.ID].IsLocked = true

	_, err := svc.UpdatePermissions(ctx, systemActor, role.ID, []string{"platform.roles.edit"}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestUpdateChildRolesRejectsCycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	actor := tenantActor(10, tenantA)

	parent := mustCreate(t, svc, actor, "Parent", catalog.ScopeTenant, tenantA)
	child := mustCreate(t, svc, actor, "Child", catalog.ScopeTenant, tenantA)
	grandchild := mustCreate(t, svc, actor, "Grandchild", catalog.ScopeTenant, tenantA)

	_, err := svc.UpdateChildRoles(ctx, actor, parent.ID, []uuid.UUID{child.ID})
	require.NoError(t, err)
	_, err = svc.UpdateChildRoles(ctx, actor, child.ID, []uuid.UUID{grandchild.ID})
	require.NoError(t, err)

	// Closing the loop grandchild → parent must fail.
	_, err = svc.UpdateChildRoles(ctx, actor, grandchild.ID, []uuid.UUID{parent.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))

	// Self containment is a cycle too.
	_, err = svc.UpdateChildRoles(ctx, actor, parent.ID, []uuid.UUID{parent.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))
}

func TestUpdateChildRolesResubmitSameSet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	actor := tenantActor(10, tenantA)

	parent := mustCreate(t, svc, actor, "Parent", catalog.ScopeTenant, tenantA)
	child := mustCreate(t, svc, actor, "Child", catalog.ScopeTenant, tenantA)

	_, err := svc.UpdateChildRoles(ctx, actor, parent.ID, []uuid.UUID{child.ID})
	require.NoError(t, err)

	// Replacing the set with itself must not trip over the edges being
	// replaced.
	_, err = svc.UpdateChildRoles(ctx, actor, parent.ID, []uuid.UUID{child.ID})
	require.NoError(t, err)
}

func TestUpdateChildRolesScopeAndTenantGuards(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	parent := mustCreate(t, svc, tenantActor(10, tenantA), "Parent", catalog.ScopeTenant, tenantA)
	foreign := mustCreate(t, svc, systemActor, "Foreign", catalog.ScopeTenant, tenantB)
	system := mustCreate(t, svc, systemActor, "System", catalog.ScopeSystem, uuid.Nil)

	_, err := svc.UpdateChildRoles(ctx, systemActor, parent.ID, []uuid.UUID{foreign.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))

	_, err = svc.UpdateChildRoles(ctx, systemActor, parent.ID, []uuid.UUID{system.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))

	_, err = svc.UpdateChildRoles(ctx, systemActor, parent.ID, []uuid.UUID{uuid.New()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))
}

// ============================================================================
// DELETE
// ============================================================================

func TestDeleteRoleWithAssignments(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role := mustCreate(t, svc, tenantActor(10, tenantA), "Billing Clerk", catalog.ScopeTenant, tenantA)
	repo.assignments[role.ID] = 2

	err := svc.Delete(ctx, tenantActor(10, tenantA), role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Contains(t, repo.roles, role.ID)
}

func TestDeleteRoleInvalidatesAncestors(t *testing.T) {
	svc, repo, invalidator := newTestService(t)
	ctx := context.Background()
	actor := tenantActor(10, tenantA)

	parent := mustCreate(t, svc, actor, "Parent", catalog.ScopeTenant, tenantA)
	child := mustCreate(t, svc, actor, "Child", catalog.ScopeTenant, tenantA)
	_, err := svc.UpdateChildRoles(ctx, actor, parent.ID, []uuid.UUID{child.ID})
	require.NoError(t, err)

	invalidator.roles = nil
	require.NoError(t, svc.Delete(ctx, actor, child.ID))

	assert.NotContains(t, repo.roles, child.ID)
	assert.Contains(t, invalidator.roles, parent.ID)
}

func TestDeleteLockedRole(t *testing.T) {
	svc, repo, _ := newTestService(t)
	role := mustCreate(t, svc, systemActor, "Root", catalog.ScopeSystem, uuid.Nil)
	repo.roles[role.ID].IsLocked = true

	err := svc.Delete(context.Background(), systemActor, role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

// ============================================================================
// SCOPE GUARD
// ============================================================================

func TestTenantActorCannotTouchForeignRoles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	system := mustCreate(t, svc, systemActor, "Platform Admin", catalog.ScopeSystem, uuid.Nil)
	foreign := mustCreate(t, svc, systemActor, "Other Tenant", catalog.ScopeTenant, tenantB)

	for _, roleID := range []uuid.UUID{system.ID, foreign.ID} {
		_, err := svc.Get(ctx, tenantActor(10, tenantA), roleID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrForbidden))

		_, err = svc.Submit(ctx, tenantActor(10, tenantA), roleID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrForbidden))
	}
}

func TestListHistory(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	actor := tenantActor(10, tenantA)
	role := mustCreate(t, svc, actor, "Billing Clerk", catalog.ScopeTenant, tenantA)

	_, err := svc.Submit(ctx, actor, role.ID)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, tenantActor(11, tenantA), role.ID, "not yet")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, actor, role.ID)
	require.NoError(t, err)

	history, err := svc.ListHistory(ctx, actor, role.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
