// Package jobs carries the asynq task definitions and worker plumbing.
// The only background work the core needs is cache-invalidation
// fan-out: mutations commit first, then enqueue, so the queue only ever
// sees durable state. A lost task merely extends staleness up to the
// cache TTL.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvalidateUser clears one user's cached permissions.
	TaskInvalidateUser = "authz:invalidate_user"
	// TaskInvalidateRole clears cached permissions of everyone holding
	// the role directly or through an ancestor composite role.
	TaskInvalidateRole = "authz:invalidate_role"
)

// InvalidateUserPayload identifies the user to clear.
type InvalidateUserPayload struct {
	UserID int64 `json:"userId"`
}

// InvalidateRolePayload identifies the mutated role.
type InvalidateRolePayload struct {
	RoleID uuid.UUID `json:"roleId"`
}

// NewInvalidateUserTask constructs the per-user invalidation task.
func NewInvalidateUserTask(payload InvalidateUserPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvalidateUser, data), nil
}

// NewInvalidateRoleTask constructs the per-role fan-out task.
func NewInvalidateRoleTask(payload InvalidateRolePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvalidateRole, data), nil
}

// Coordinator is the invalidation fan-out the worker drives.
type Coordinator interface {
	InvalidateUser(ctx context.Context, userID int64)
	InvalidateUsersForRole(ctx context.Context, roleID uuid.UUID)
}

// InvalidationHandlers builds the asynq handlers bound to a coordinator.
func InvalidationHandlers(co Coordinator, metrics *jobmetrics.Metrics) []TaskHandler {
	return []TaskHandler{
		{Type: TaskInvalidateUser, Handler: func(ctx context.Context, t *asynq.Task) error {
			tracker := metrics.Track(TaskInvalidateUser)
			var payload InvalidateUserPayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				_ = tracker.End(err)
				return asynq.SkipRetry
			}
			co.InvalidateUser(ctx, payload.UserID)
			return tracker.End(nil)
		}},
		{Type: TaskInvalidateRole, Handler: func(ctx context.Context, t *asynq.Task) error {
			tracker := metrics.Track(TaskInvalidateRole)
			var payload InvalidateRolePayload
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				_ = tracker.End(err)
				return asynq.SkipRetry
			}
			co.InvalidateUsersForRole(ctx, payload.RoleID)
			return tracker.End(nil)
		}},
	}
}
