package permcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
)

// DefaultTTL bounds the staleness window when invalidation misfires.
const DefaultTTL = 300 * time.Second

const keyPrefix = "authz:perm:"

// Key builds the cache key for a (user, scope) pair.
func Key(userID int64, scopeType catalog.Scope, scopeID uuid.UUID) string {
	scope := "SYSTEM"
	if scopeID != uuid.Nil {
		scope = scopeID.String()
	}
	return fmt.Sprintf("%s%d:%s:%s", keyPrefix, userID, scopeType, scope)
}

// UserPrefix matches every cache entry of a user across all scopes.
func UserPrefix(userID int64) string {
	return fmt.Sprintf("%s%d:", keyPrefix, userID)
}

// Engine is the miss-path computation.
type Engine interface {
	ComputeEffectivePermissions(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]string, error)
}

// Cache is a TTL read-through in front of the engine. Store failures
// fail open: the permission set is recomputed and the caller never sees
// a cache error. Concurrent misses for one key are coalesced.
type Cache struct {
	store   Store
	engine  Engine
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *Metrics
}

// NewCache builds a Cache. A non-positive ttl falls back to DefaultTTL.
func NewCache(store Store, engine Engine, ttl time.Duration, logger *slog.Logger, metrics *Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, engine: engine, ttl: ttl, logger: logger, metrics: metrics}
}

// EffectivePermissions returns the cached permission set or computes and
// stores it.
func (c *Cache) EffectivePermissions(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]string, error) {
	key := Key(userID, scopeType, scopeID)
	if val, ok, err := c.store.Get(ctx, key); err != nil {
		c.metrics.storeError()
		c.logger.Warn("permission cache read failed, failing open", slog.Any("error", err))
	} else if ok {
		var perms []string
		if err := json.Unmarshal([]byte(val), &perms); err == nil {
			c.metrics.hit()
			return perms, nil
		}
		c.logger.Warn("permission cache entry corrupt, recomputing", slog.String("key", key))
	}

	c.metrics.miss()
	resultChan := c.group.DoChan(key, func() (any, error) {
		perms, err := c.engine.ComputeEffectivePermissions(ctx, userID, scopeType, scopeID)
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, perms)
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// InvalidateUser removes every cached scope of the user.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	c.metrics.invalidation()
	return c.store.DelByPrefix(ctx, UserPrefix(userID))
}

func (c *Cache) put(ctx context.Context, key string, perms []string) {
	data, err := json.Marshal(perms)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		c.metrics.storeError()
		c.logger.Warn("permission cache write failed", slog.Any("error", err))
	}
}
