package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/permcache"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) DelByPrefix(_ context.Context, _ string) error { return nil }

type staticEngine struct {
	perms map[int64][]string
}

func (e staticEngine) ComputeEffectivePermissions(_ context.Context, userID int64, _ catalog.Scope, _ uuid.UUID) ([]string, error) {
	return e.perms[userID], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// ============================================================================
// ACTOR MIDDLEWARE
// ============================================================================

func TestActorMiddlewareTenantIdentity(t *testing.T) {
	tenant := uuid.New()
	var seen shared.Actor
	handler := ActorMiddleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		require.True(t, ok)
		seen = actor
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/authz/roles", nil)
	req.Header.Set(HeaderUserID, "42")
	req.Header.Set(HeaderScope, "tenant")
	req.Header.Set(HeaderTenant, tenant.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), seen.UserID)
	assert.Equal(t, catalog.ScopeTenant, seen.Scope)
	assert.Equal(t, tenant, seen.TenantID)
}

func TestActorMiddlewareSystemIdentity(t *testing.T) {
	handler := ActorMiddleware(slog.Default())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/authz/roles", nil)
	req.Header.Set(HeaderUserID, "1")
	req.Header.Set(HeaderScope, "SYSTEM")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestActorMiddlewareRejectsBadHeaders(t *testing.T) {
	handler := ActorMiddleware(slog.Default())(okHandler())

	cases := map[string]map[string]string{
		"no headers":           {},
		"bad user id":          {HeaderUserID: "zero", HeaderScope: "SYSTEM"},
		"negative user id":     {HeaderUserID: "-4", HeaderScope: "SYSTEM"},
		"bad scope":            {HeaderUserID: "42", HeaderScope: "GALAXY"},
		"tenant without id":    {HeaderUserID: "42", HeaderScope: "TENANT"},
		"tenant with bad uuid": {HeaderUserID: "42", HeaderScope: "TENANT", HeaderTenant: "not-a-uuid"},
	}
	for name, headers := range cases {
		req := httptest.NewRequest(http.MethodGet, "/authz/roles", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

// ============================================================================
// GUARD
// ============================================================================

func testGuard(perms map[int64][]string) Guard {
	cache := permcache.NewCache(newMemStore(), staticEngine{perms: perms}, time.Minute, slog.Default(), nil)
	return Guard{Cache: cache, Logger: slog.Default()}
}

func guardedRequest(t *testing.T, guard Guard, actor shared.Actor, required ...string) *httptest.ResponseRecorder {
	t.Helper()
	handler := guard.RequireAny(required...)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/authz/roles", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGuardRequireAny(t *testing.T) {
	guard := testGuard(map[int64][]string{42: {"roles.view"}})
	actor := shared.Actor{UserID: 42, Scope: catalog.ScopeTenant, TenantID: uuid.New()}

	rec := guardedRequest(t, guard, actor, "roles.view", "platform.roles.view")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = guardedRequest(t, guard, actor, "roles.approve")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardWithoutActor(t *testing.T) {
	guard := testGuard(nil)
	handler := guard.RequireAny("roles.view")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/authz/roles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardNoPermissionsPassesThrough(t *testing.T) {
	guard := testGuard(nil)
	actor := shared.Actor{UserID: 42, Scope: catalog.ScopeSystem}

	rec := guardedRequest(t, guard, actor)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
