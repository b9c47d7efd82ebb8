package jobs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer satisfies the services' Invalidator ports by deferring the
// fan-out to the worker. Enqueue failures are logged, never surfaced:
// the triggering mutation already committed and the cache TTL bounds
// the staleness window.
type Enqueuer struct {
	client *Client
	logger *slog.Logger
}

// NewEnqueuer builds an Enqueuer over the asynq client.
func NewEnqueuer(client *Client, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// InvalidateUser enqueues a per-user invalidation.
func (e *Enqueuer) InvalidateUser(ctx context.Context, userID int64) {
	task, err := NewInvalidateUserTask(InvalidateUserPayload{UserID: userID})
	if err != nil {
		e.logger.Warn("build invalidate-user task", slog.Any("error", err))
		return
	}
	if _, err := e.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		e.logger.Warn("enqueue invalidate-user task", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// InvalidateUsersForRole enqueues a per-role fan-out.
func (e *Enqueuer) InvalidateUsersForRole(ctx context.Context, roleID uuid.UUID) {
	task, err := NewInvalidateRoleTask(InvalidateRolePayload{RoleID: roleID})
	if err != nil {
		e.logger.Warn("build invalidate-role task", slog.Any("error", err))
		return
	}
	if _, err := e.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		e.logger.Warn("enqueue invalidate-role task", slog.String("role_id", roleID.String()), slog.Any("error", err))
	}
}
