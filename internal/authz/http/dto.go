package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/assignments"
	"github.com/meridian-erp/meridian-erp/internal/authz/roles"
)

type createRoleRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Scope    string `json:"scope" validate:"required,oneof=SYSTEM TENANT"`
	TenantID string `json:"tenantId" validate:"omitempty,uuid4"`
}

type rejectRoleRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

type updatePermissionsRequest struct {
	Permissions     []string `json:"permissions" validate:"required,dive,min=3"`
	ExpectedVersion int64    `json:"expectedVersion" validate:"required,gt=0"`
}

type updateChildrenRequest struct {
	ChildRoleIDs []string `json:"childRoleIds" validate:"dive,uuid4"`
}

type assignRequest struct {
	UserID    int64      `json:"userId" validate:"required,gt=0"`
	RoleID    string     `json:"roleId" validate:"required,uuid4"`
	ScopeType string     `json:"scopeType" validate:"required,oneof=SYSTEM TENANT"`
	ScopeID   string     `json:"scopeId" validate:"omitempty,uuid4"`
	ValidFrom *time.Time `json:"validFrom"`
	ValidTo   *time.Time `json:"validTo"`
}

type roleResponse struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Scope         string      `json:"scope"`
	TenantID      string      `json:"tenantId,omitempty"`
	Status        string      `json:"status"`
	IsLocked      bool        `json:"isLocked"`
	IsSystem      bool        `json:"isSystem"`
	Version       int64       `json:"version"`
	CreatedByID   int64       `json:"createdById,omitempty"`
	SubmittedByID int64       `json:"submittedById,omitempty"`
	ApproverID    int64       `json:"approverId,omitempty"`
	ApprovalNote  string      `json:"approvalNote,omitempty"`
	Permissions   []string    `json:"permissions"`
	ChildRoleIDs  []uuid.UUID `json:"childRoleIds"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func toRoleResponse(role *roles.Role) roleResponse {
	resp := roleResponse{
		ID:            role.ID,
		Name:          role.Name,
		Scope:         string(role.Scope),
		Status:        string(role.Status),
		IsLocked:      role.IsLocked,
		IsSystem:      role.IsSystem,
		Version:       role.Version,
		CreatedByID:   role.CreatedByID,
		SubmittedByID: role.SubmittedByID,
		ApproverID:    role.ApproverID,
		ApprovalNote:  role.ApprovalNote,
		Permissions:   role.Permissions,
		ChildRoleIDs:  role.ChildRoleIDs,
		CreatedAt:     role.CreatedAt,
		UpdatedAt:     role.UpdatedAt,
	}
	if role.TenantID != uuid.Nil {
		resp.TenantID = role.TenantID.String()
	}
	if resp.Permissions == nil {
		resp.Permissions = []string{}
	}
	if resp.ChildRoleIDs == nil {
		resp.ChildRoleIDs = []uuid.UUID{}
	}
	return resp
}

type changeRequestResponse struct {
	ID          uuid.UUID  `json:"id"`
	RoleID      uuid.UUID  `json:"roleId"`
	RequestedBy int64      `json:"requestedBy"`
	ApprovedBy  int64      `json:"approvedBy,omitempty"`
	Status      string     `json:"status"`
	Diff        roles.Diff `json:"diff"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
}

func toChangeRequestResponse(req roles.ChangeRequest) changeRequestResponse {
	resp := changeRequestResponse{
		ID:          req.ID,
		RoleID:      req.RoleID,
		RequestedBy: req.RequestedBy,
		ApprovedBy:  req.ApprovedBy,
		Status:      string(req.Status),
		Diff:        req.Diff,
		Reason:      req.Reason,
		CreatedAt:   req.CreatedAt,
	}
	if !req.DecidedAt.IsZero() {
		decided := req.DecidedAt
		resp.DecidedAt = &decided
	}
	return resp
}

type assignmentResponse struct {
	ID         uuid.UUID  `json:"id"`
	UserID     int64      `json:"userId"`
	RoleID     uuid.UUID  `json:"roleId"`
	ScopeType  string     `json:"scopeType"`
	ScopeID    string     `json:"scopeId,omitempty"`
	AssignedBy int64      `json:"assignedBy"`
	AssignedAt time.Time  `json:"assignedAt"`
	ValidFrom  *time.Time `json:"validFrom,omitempty"`
	ValidTo    *time.Time `json:"validTo,omitempty"`
}

func toAssignmentResponse(a assignments.Assignment) assignmentResponse {
	resp := assignmentResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		RoleID:     a.RoleID,
		ScopeType:  string(a.ScopeType),
		AssignedBy: a.AssignedBy,
		AssignedAt: a.AssignedAt,
		ValidFrom:  a.ValidFrom,
		ValidTo:    a.ValidTo,
	}
	if a.ScopeID != uuid.Nil {
		resp.ScopeID = a.ScopeID.String()
	}
	return resp
}
