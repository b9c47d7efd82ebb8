package permcache

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/authz/rolegraph"
)

const fanOutConcurrency = 8

// AssigneeResolver finds the users whose cached permissions a role
// mutation can affect.
type AssigneeResolver interface {
	ListEdges(ctx context.Context) ([]rolegraph.Edge, error)
	ListAssigneesForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]int64, error)
}

// UserInvalidator clears one user's cached state. Both the permission
// cache and the derived decision cache implement it.
type UserInvalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Coordinator fans cache invalidation out after role or assignment
// mutations. It is fire and forget: the triggering mutation is already
// durable when it runs, and failures only extend staleness up to the
// cache TTL, so they are logged and swallowed.
type Coordinator struct {
	resolver AssigneeResolver
	targets  []UserInvalidator
	logger   *slog.Logger
}

// NewCoordinator builds a Coordinator clearing the given targets.
func NewCoordinator(resolver AssigneeResolver, logger *slog.Logger, targets ...UserInvalidator) *Coordinator {
	return &Coordinator{resolver: resolver, targets: targets, logger: logger}
}

// InvalidateUser clears every target for one user.
func (co *Coordinator) InvalidateUser(ctx context.Context, userID int64) {
	for _, target := range co.targets {
		if err := target.InvalidateUser(ctx, userID); err != nil {
			co.logger.Warn("cache invalidation failed",
				slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
}

// InvalidateUsersForRole clears every direct assignee of the role plus
// the assignees of every ancestor composite role.
func (co *Coordinator) InvalidateUsersForRole(ctx context.Context, roleID uuid.UUID) {
	edges, err := co.resolver.ListEdges(ctx)
	if err != nil {
		co.logger.Warn("invalidation fan-out: list edges failed", slog.Any("error", err))
		return
	}
	roleIDs := []uuid.UUID{roleID}
	for ancestorID := range rolegraph.New(edges).Ancestors(roleID) {
		roleIDs = append(roleIDs, ancestorID)
	}
	userIDs, err := co.resolver.ListAssigneesForRoles(ctx, roleIDs)
	if err != nil {
		co.logger.Warn("invalidation fan-out: list assignees failed", slog.Any("error", err))
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			co.InvalidateUser(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()
}
