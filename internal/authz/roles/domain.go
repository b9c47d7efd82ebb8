// Package roles implements the role aggregate and its approval
// lifecycle. A role moves DRAFT → PENDING_APPROVAL → ACTIVE, may be
// rejected back out of the pending state, and is demoted to DRAFT
// whenever its permission or child sets change while active, forcing a
// fresh approval. Approval follows the 4-eyes rule: the approver must
// differ from both the submitter and the creator.
package roles

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Status enumerates role lifecycle states.
type Status string

const (
	// StatusDraft marks a role under construction.
	StatusDraft Status = "DRAFT"
	// StatusPendingApproval marks a role waiting for a second pair of eyes.
	StatusPendingApproval Status = "PENDING_APPROVAL"
	// StatusActive marks an approved role that grants permissions.
	StatusActive Status = "ACTIVE"
	// StatusRejected marks a role whose submission was turned down.
	StatusRejected Status = "REJECTED"
)

// Role is the aggregate governing a named permission grouping.
type Role struct {
	ID            uuid.UUID
	Name          string
	Scope         catalog.Scope
	TenantID      uuid.UUID
	Status        Status
	IsLocked      bool
	IsSystem      bool
	Version       int64
	CreatedByID   int64
	SubmittedByID int64
	ApproverID    int64
	ApprovalNote  string
	Permissions   []string
	ChildRoleIDs  []uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Event is an explicit domain event emitted by a mutating operation.
// The service dispatches collected events to the audit sink after the
// mutation is durable; nothing is queued on the aggregate itself.
type Event struct {
	Action  string
	RoleID  uuid.UUID
	ActorID int64
	Details map[string]any
}

// Event actions.
const (
	EventRoleCreated            = "ROLE_CREATED"
	EventRoleSubmitted          = "ROLE_SUBMITTED"
	EventRoleApproved           = "ROLE_APPROVED"
	EventRoleRejected           = "ROLE_REJECTED"
	EventRolePermissionsUpdated = "ROLE_PERMISSIONS_UPDATED"
	EventRoleChildrenUpdated    = "ROLE_CHILDREN_UPDATED"
	EventRoleDeleted            = "ROLE_DELETED"
)

// ChangeRequestStatus enumerates approval request states.
type ChangeRequestStatus string

const (
	// ChangePending awaits a decision.
	ChangePending ChangeRequestStatus = "PENDING"
	// ChangeApproved is terminal.
	ChangeApproved ChangeRequestStatus = "APPROVED"
	// ChangeRejected is terminal.
	ChangeRejected ChangeRequestStatus = "REJECTED"
)

// Diff snapshots the permission and child sets proposed by a submission.
type Diff struct {
	Permissions  []string    `json:"permissions"`
	ChildRoleIDs []uuid.UUID `json:"childRoleIds"`
}

// ChangeRequest records one submit/approve/reject round for a role.
type ChangeRequest struct {
	ID          uuid.UUID
	RoleID      uuid.UUID
	RequestedBy int64
	ApprovedBy  int64
	Status      ChangeRequestStatus
	Diff        Diff
	Reason      string
	CreatedAt   time.Time
	DecidedAt   time.Time
}

// Submit moves the role into PENDING_APPROVAL. Allowed from DRAFT and
// REJECTED only; locked roles cannot be resubmitted.
func (r *Role) Submit(actorID int64) (Event, error) {
	if r.IsLocked {
		return Event{}, fmt.Errorf("%w: role %q is locked", shared.ErrForbidden, r.Name)
	}
	if r.Status != StatusDraft && r.Status != StatusRejected {
		return Event{}, fmt.Errorf("%w: role %q cannot be submitted from %s", shared.ErrConflict, r.Name, r.Status)
	}
	r.Status = StatusPendingApproval
	r.SubmittedByID = actorID
	return Event{Action: EventRoleSubmitted, RoleID: r.ID, ActorID: actorID}, nil
}

// Approve activates a pending role. The approver must differ from both
// the submitter and the creator (4-eyes).
func (r *Role) Approve(approverID int64) (Event, error) {
	if r.Status != StatusPendingApproval {
		return Event{}, fmt.Errorf("%w: role %q is not pending approval", shared.ErrConflict, r.Name)
	}
	if approverID == r.SubmittedByID || approverID == r.CreatedByID {
		return Event{}, fmt.Errorf("%w: approver must differ from submitter and creator", shared.ErrForbidden)
	}
	r.Status = StatusActive
	r.ApproverID = approverID
	r.ApprovalNote = ""
	return Event{Action: EventRoleApproved, RoleID: r.ID, ActorID: approverID}, nil
}

// Reject turns down a pending role with a mandatory reason.
func (r *Role) Reject(reason string, actorID int64) (Event, error) {
	if r.Status != StatusPendingApproval {
		return Event{}, fmt.Errorf("%w: role %q is not pending approval", shared.ErrConflict, r.Name)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Event{}, fmt.Errorf("%w: rejection reason required", shared.ErrBadRequest)
	}
	r.Status = StatusRejected
	r.ApprovalNote = reason
	return Event{
		Action:  EventRoleRejected,
		RoleID:  r.ID,
		ActorID: actorID,
		Details: map[string]any{"reason": reason},
	}, nil
}

// SetPermissions replaces the role's own permission set. Every slug must
// exist in the catalog and carry the role's scope. An active role is
// demoted to DRAFT because the change requires re-approval.
func (r *Role) SetPermissions(slugs []string, cat *catalog.Catalog, actorID int64) (Event, error) {
	next := dedupSorted(slugs)
	for _, slug := range next {
		perm, ok := cat.Lookup(slug)
		if !ok {
			return Event{}, fmt.Errorf("%w: unknown permission %q", shared.ErrBadRequest, slug)
		}
		if perm.Scope != r.Scope {
			return Event{}, fmt.Errorf("%w: permission %q scope mismatch for %s role", shared.ErrBadRequest, slug, r.Scope)
		}
	}
	added, removed := diffStrings(r.Permissions, next)
	r.Permissions = next
	demoted := r.demoteIfActive()
	return Event{
		Action:  EventRolePermissionsUpdated,
		RoleID:  r.ID,
		ActorID: actorID,
		Details: map[string]any{"added": added, "removed": removed, "demoted": demoted},
	}, nil
}

// SetChildRoles replaces the composite child set. Scope and tenant
// checks against the candidate children happen in the service, which
// holds the sibling aggregates; this method records the change and
// demotes an active role.
func (r *Role) SetChildRoles(childIDs []uuid.UUID, actorID int64) (Event, error) {
	next := dedupIDs(childIDs)
	added, removed := diffIDs(r.ChildRoleIDs, next)
	r.ChildRoleIDs = next
	demoted := r.demoteIfActive()
	return Event{
		Action:  EventRoleChildrenUpdated,
		RoleID:  r.ID,
		ActorID: actorID,
		Details: map[string]any{"added": idStrings(added), "removed": idStrings(removed), "demoted": demoted},
	}, nil
}

// demoteIfActive drops an active role back to DRAFT so the change goes
// through approval again.
func (r *Role) demoteIfActive() bool {
	if r.Status != StatusActive {
		return false
	}
	r.Status = StatusDraft
	r.SubmittedByID = 0
	r.ApproverID = 0
	return true
}

// ProposedDiff snapshots the state a submission asks approval for.
func (r *Role) ProposedDiff() Diff {
	perms := make([]string, len(r.Permissions))
	copy(perms, r.Permissions)
	children := make([]uuid.UUID, len(r.ChildRoleIDs))
	copy(children, r.ChildRoleIDs)
	return Diff{Permissions: perms, ChildRoleIDs: children}
}

func dedupSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func dedupIDs(in []uuid.UUID) []uuid.UUID {
	set := make(map[uuid.UUID]struct{}, len(in))
	out := make([]uuid.UUID, 0, len(in))
	for _, id := range in {
		if id == uuid.Nil {
			continue
		}
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func diffStrings(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, s := range prev {
		prevSet[s] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, s := range next {
		nextSet[s] = struct{}{}
		if _, ok := prevSet[s]; !ok {
			added = append(added, s)
		}
	}
	for _, s := range prev {
		if _, ok := nextSet[s]; !ok {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func diffIDs(prev, next []uuid.UUID) (added, removed []uuid.UUID) {
	prevSet := make(map[uuid.UUID]struct{}, len(prev))
	for _, id := range prev {
		prevSet[id] = struct{}{}
	}
	nextSet := make(map[uuid.UUID]struct{}, len(next))
	for _, id := range next {
		nextSet[id] = struct{}{}
		if _, ok := prevSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if _, ok := nextSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
