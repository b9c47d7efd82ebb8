// Package http exposes the access-control core over HTTP. Transport
// stays thin: identity arrives from the upstream gateway as headers,
// every decision is delegated to the core services.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/permcache"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Identity headers filled in by the upstream gateway after
// authentication. Token mechanics live outside this service.
const (
	HeaderUserID = "X-User-Id"
	HeaderScope  = "X-Scope"
	HeaderTenant = "X-Tenant-Id"
)

// ActorMiddleware extracts the actor from the identity headers and
// stores it in the request context. Requests without an identity are
// rejected up front.
func ActorMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromHeaders(r)
			if err != nil {
				logger.Warn("reject unidentified request", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid identity headers")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func actorFromHeaders(r *http.Request) (shared.Actor, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderUserID)), 10, 64)
	if err != nil || userID <= 0 {
		return shared.Actor{}, errInvalidIdentity
	}
	scope := catalog.Scope(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderScope))))
	if !scope.Valid() {
		return shared.Actor{}, errInvalidIdentity
	}
	actor := shared.Actor{UserID: userID, Scope: scope}
	if scope == catalog.ScopeTenant {
		tenantID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(HeaderTenant)))
		if err != nil {
			return shared.Actor{}, errInvalidIdentity
		}
		actor.TenantID = tenantID
	}
	return actor, nil
}

var errInvalidIdentity = &invalidIdentityError{}

type invalidIdentityError struct{}

func (*invalidIdentityError) Error() string { return "invalid identity headers" }

// Guard enforces permissions on routes using the permission cache.
type Guard struct {
	Cache  *permcache.Cache
	Logger *slog.Logger
}

// RequireAny ensures the actor holds at least one of the permissions in
// its own scope context.
func (g Guard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			granted, err := g.Cache.EffectivePermissions(r.Context(), actor.UserID, actor.Scope, actor.TenantID)
			if err != nil {
				g.Logger.Error("guard require any", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			set := make(map[string]struct{}, len(granted))
			for _, p := range granted {
				set[p] = struct{}{}
			}
			for _, p := range perms {
				if _, ok := set[p]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
		})
	}
}
