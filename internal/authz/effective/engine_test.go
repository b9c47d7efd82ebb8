package effective

import (
	"context"
	"errors"
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
// MOCKS
// ============================================================================

type mockRepository struct {
	assigned map[int64][]uuid.UUID
	edges    []rolegraph.Edge
	slugs    map[uuid.UUID][]string
	listErr  error
}

func (m *mockRepository) ListAssignedRoleIDs(_ context.Context, userID int64, _ catalog.Scope, _ uuid.UUID, _ time.Time) ([]uuid.UUID, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.assigned[userID], nil
}

func (m *mockRepository) ListEdges(_ context.Context) ([]rolegraph.Edge, error) {
	return m.edges, nil
}

func (m *mockRepository) ListPermissionSlugs(_ context.Context, roleIDs []uuid.UUID) ([]string, error) {
	var out []string
	for _, id := range roleIDs {
		out = append(out, m.slugs[id]...)
	}
	return out, nil
}

// ============================================================================
// TESTS
// ============================================================================

func TestComputeUnionWithInheritance(t *testing.T) {
	parent, child := uuid.New(), uuid.New()
	repo := &mockRepository{
		assigned: map[int64][]uuid.UUID{42: {parent}},
		edges:    []rolegraph.Edge{{ParentID: parent, ChildID: child}},
		slugs: map[uuid.UUID][]string{
			parent: {"reports.view"},
			child:  {"billing.invoices.read"},
		},
	}
	engine := NewEngine(repo)

	perms, err := engine.ComputeEffectivePermissions(context.Background(), 42, catalog.ScopeTenant, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.invoices.read", "reports.view"}, perms)
}

func TestComputeDiamondGraphDedups(t *testing.T) {
	top, left, right, bottom := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	repo := &mockRepository{
		assigned: map[int64][]uuid.UUID{42: {top}},
		edges: []rolegraph.Edge{
			{ParentID: top, ChildID: left},
			{ParentID: top, ChildID: right},
			{ParentID: left, ChildID: bottom},
			{ParentID: right, ChildID: bottom},
		},
		slugs: map[uuid.UUID][]string{
			left:   {"billing.invoices.read"},
			right:  {"billing.invoices.read"},
			bottom: {"billing.invoices.pay"},
		},
	}
	engine := NewEngine(repo)

	perms, err := engine.ComputeEffectivePermissions(context.Background(), 42, catalog.ScopeTenant, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"billing.invoices.pay", "billing.invoices.read"}, perms)
}

func TestComputeNoAssignmentsYieldsEmptySet(t *testing.T) {
	engine := NewEngine(&mockRepository{})

	perms, err := engine.ComputeEffectivePermissions(context.Background(), 42, catalog.ScopeTenant, uuid.New())
	require.NoError(t, err)
	require.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestComputeInvalidScope(t *testing.T) {
	engine := NewEngine(&mockRepository{})

	_, err := engine.ComputeEffectivePermissions(context.Background(), 42, "GALAXY", uuid.Nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrBadRequest))
}

func TestComputePropagatesRepositoryErrors(t *testing.T) {
	repo := &mockRepository{listErr: shared.ErrUnavailable}
	engine := NewEngine(repo)

	_, err := engine.ComputeEffectivePermissions(context.Background(), 42, catalog.ScopeSystem, uuid.Nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnavailable))
}
