package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/assignments"
	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/decision"
	"github.com/meridian-erp/meridian-erp/internal/authz/permcache"
	"github.com/meridian-erp/meridian-erp/internal/authz/roles"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes role lifecycle, assignment and decision endpoints.
type Handler struct {
	logger      *slog.Logger
	roles       *roles.Service
	assignments *assignments.Service
	cache       *permcache.Cache
	center      *decision.Center
	cat         *catalog.Catalog
	guard       Guard
	validate    *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, roleSvc *roles.Service, assignSvc *assignments.Service, cache *permcache.Cache, center *decision.Center, cat *catalog.Catalog, guard Guard) *Handler {
	return &Handler{
		logger:      logger,
		roles:       roleSvc,
		assignments: assignSvc,
		cache:       cache,
		center:      center,
		cat:         cat,
		guard:       guard,
		validate:    validator.New(),
	}
}

// MountRoutes registers the authz routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("roles.view", "platform.roles.view"))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
		r.Get("/roles/{roleID}/history", h.listHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("roles.edit", "platform.roles.edit"))
		r.Post("/roles", h.createRole)
		r.Post("/roles/{roleID}/submit", h.submitRole)
		r.Put("/roles/{roleID}/permissions", h.updatePermissions)
		r.Put("/roles/{roleID}/children", h.updateChildren)
		r.Delete("/roles/{roleID}", h.deleteRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("roles.approve", "platform.roles.approve"))
		r.Post("/roles/{roleID}/approve", h.approveRole)
		r.Post("/roles/{roleID}/reject", h.rejectRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("roles.assign", "platform.users.edit"))
		r.Post("/assignments", h.assign)
		r.Delete("/assignments", h.revoke)
		r.Get("/users/{userID}/assignments", h.listAssignments)
	})

	r.Get("/permissions", h.listPermissions)
	r.Get("/me/permissions", h.myPermissions)
	r.Get("/me/decisions", h.myDecisions)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	scope := catalog.Scope(strings.ToUpper(r.URL.Query().Get("scope")))
	if scope == "" {
		scope = actor.Scope
	}
	tenantID := actor.TenantID
	if raw := r.URL.Query().Get("tenantId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid tenantId", shared.ErrBadRequest))
			return
		}
		tenantID = parsed
	}
	if scope == catalog.ScopeSystem {
		tenantID = uuid.Nil
	}
	list, err := h.roles.List(r.Context(), actor, scope, tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, len(list))
	for i := range list {
		out[i] = toRoleResponse(&list[i])
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	roleID, err := parseRoleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.roles.Get(r.Context(), actor, roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req createRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := roles.CreateRoleInput{Name: req.Name, Scope: catalog.Scope(req.Scope)}
	if req.TenantID != "" {
		tenantID, err := uuid.Parse(req.TenantID)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid tenantId", shared.ErrBadRequest))
			return
		}
		input.TenantID = tenantID
	}
	role, err := h.roles.Create(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) submitRole(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(actor shared.Actor, roleID uuid.UUID) (*roles.Role, error) {
		return h.roles.Submit(r.Context(), actor, roleID)
	})
}

func (h *Handler) approveRole(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(actor shared.Actor, roleID uuid.UUID) (*roles.Role, error) {
		return h.roles.Approve(r.Context(), actor, roleID)
	})
}

func (h *Handler) rejectRole(w http.ResponseWriter, r *http.Request) {
	var req rejectRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.lifecycle(w, r, func(actor shared.Actor, roleID uuid.UUID) (*roles.Role, error) {
		return h.roles.Reject(r.Context(), actor, roleID, req.Reason)
	})
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionsRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.lifecycle(w, r, func(actor shared.Actor, roleID uuid.UUID) (*roles.Role, error) {
		return h.roles.UpdatePermissions(r.Context(), actor, roleID, req.Permissions, req.ExpectedVersion)
	})
}

func (h *Handler) updateChildren(w http.ResponseWriter, r *http.Request) {
	var req updateChildrenRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	childIDs := make([]uuid.UUID, 0, len(req.ChildRoleIDs))
	for _, raw := range req.ChildRoleIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid child role id %q", shared.ErrBadRequest, raw))
			return
		}
		childIDs = append(childIDs, id)
	}
	h.lifecycle(w, r, func(actor shared.Actor, roleID uuid.UUID) (*roles.Role, error) {
		return h.roles.UpdateChildRoles(r.Context(), actor, roleID, childIDs)
	})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	roleID, err := parseRoleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.roles.Delete(r.Context(), actor, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	roleID, err := parseRoleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	history, err := h.roles.ListHistory(r.Context(), actor, roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]changeRequestResponse, len(history))
	for i, req := range history {
		out[i] = toChangeRequestResponse(req)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req assignRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := uuid.Parse(req.RoleID)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid roleId", shared.ErrBadRequest))
		return
	}
	input := assignments.AssignInput{
		UserID:    req.UserID,
		RoleID:    roleID,
		ScopeType: catalog.Scope(req.ScopeType),
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
	}
	if req.ScopeID != "" {
		scopeID, err := uuid.Parse(req.ScopeID)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid scopeId", shared.ErrBadRequest))
			return
		}
		input.ScopeID = scopeID
	}
	assignment, err := h.assignments.Assign(r.Context(), actor, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssignmentResponse(*assignment))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	userID, err := strconv.ParseInt(q.Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid userId", shared.ErrBadRequest))
		return
	}
	roleID, err := uuid.Parse(q.Get("roleId"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid roleId", shared.ErrBadRequest))
		return
	}
	scopeType, scopeID, err := parseScopeQuery(q.Get("scopeType"), q.Get("scopeId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.assignments.Revoke(r.Context(), actor, userID, roleID, scopeType, scopeID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", shared.ErrBadRequest))
		return
	}
	q := r.URL.Query()
	scopeType, scopeID, err := parseScopeQuery(q.Get("scopeType"), q.Get("scopeId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.assignments.ListByUser(r.Context(), actor, userID, scopeType, scopeID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]assignmentResponse, len(list))
	for i, a := range list {
		out[i] = toAssignmentResponse(a)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	scope := actor.Scope
	if raw := r.URL.Query().Get("scope"); raw != "" && actor.IsSystem() {
		scope = catalog.Scope(strings.ToUpper(raw))
		if !scope.Valid() {
			httpx.RespondError(w, fmt.Errorf("%w: invalid scope", shared.ErrBadRequest))
			return
		}
	}
	httpx.JSON(w, http.StatusOK, h.cat.ByScope(scope))
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	perms, err := h.cache.EffectivePermissions(r.Context(), actor.UserID, actor.Scope, actor.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) myDecisions(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	view, err := h.center.ViewFor(r.Context(), actor.UserID, actor.Scope, actor.TenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(shared.Actor, uuid.UUID) (*roles.Role, error)) {
	actor, _ := shared.ActorFromContext(r.Context())
	roleID, err := parseRoleID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := op(actor, roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: invalid request body", shared.ErrBadRequest)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrBadRequest, err)
	}
	return nil
}

func parseRoleID(r *http.Request) (uuid.UUID, error) {
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid role id", shared.ErrBadRequest)
	}
	return roleID, nil
}

func parseScopeQuery(rawScope, rawScopeID string) (catalog.Scope, uuid.UUID, error) {
	scopeType := catalog.Scope(strings.ToUpper(rawScope))
	if !scopeType.Valid() {
		return "", uuid.Nil, fmt.Errorf("%w: invalid scopeType", shared.ErrBadRequest)
	}
	if rawScopeID == "" {
		return scopeType, uuid.Nil, nil
	}
	scopeID, err := uuid.Parse(rawScopeID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("%w: invalid scopeId", shared.ErrBadRequest)
	}
	return scopeType, scopeID, nil
}
