package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/meridian-erp/meridian-erp/internal/authz/catalog"
	"github.com/meridian-erp/meridian-erp/internal/authz/permcache"
)

const viewCacheSize = 4096

// PermissionSource yields the resolved permission set for a user+scope.
// In production this is the permission cache.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) ([]string, error)
}

// View is the fully derived decision-center output for one user+scope.
type View struct {
	Navigation    []NavigationNode `json:"navigation"`
	Actions       map[string]bool  `json:"actions"`
	CanonicalPath string           `json:"canonicalPath,omitempty"`
	Permissions   []string         `json:"permissions"`
}

// Center resolves navigation and action views from permission sets.
// Resolved views are cached in-process with the same TTL as the
// permission cache and cleared by the same per-user invalidation path.
type Center struct {
	nav     []NavigationNode
	actions map[string][]ActionBinding
	source  PermissionSource
	views   *lru.LRU[string, View]
}

// NewCenter builds a Center over the given tree and action registry.
func NewCenter(nav []NavigationNode, actions map[string][]ActionBinding, source PermissionSource, ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = permcache.DefaultTTL
	}
	return &Center{
		nav:     nav,
		actions: actions,
		source:  source,
		views:   lru.NewLRU[string, View](viewCacheSize, nil, ttl),
	}
}

// ViewFor returns the cached or freshly derived view for a user+scope.
func (c *Center) ViewFor(ctx context.Context, userID int64, scopeType catalog.Scope, scopeID uuid.UUID) (View, error) {
	key := permcache.Key(userID, scopeType, scopeID)
	if view, ok := c.views.Get(key); ok {
		return view, nil
	}
	perms, err := c.source.EffectivePermissions(ctx, userID, scopeType, scopeID)
	if err != nil {
		return View{}, err
	}
	tree := c.ResolveNavigationTree(perms)
	view := View{
		Navigation:    tree,
		Actions:       c.ResolveActions(perms),
		CanonicalPath: CanonicalPath(tree),
		Permissions:   perms,
	}
	c.views.Add(key, view)
	return view, nil
}

// InvalidateUser drops every cached view of the user. Implements the
// coordinator's UserInvalidator.
func (c *Center) InvalidateUser(_ context.Context, userID int64) error {
	prefix := permcache.UserPrefix(userID)
	for _, key := range c.views.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.views.Remove(key)
		}
	}
	return nil
}

// ResolveNavigationTree filters the static tree against a permission
// set. A node stays visible when its own permission is satisfied or at
// least one descendant is visible; branches without a self permission
// and without visible children are pruned, bottom-up.
func (c *Center) ResolveNavigationTree(perms []string) []NavigationNode {
	set := permSet(perms)
	return filterNodes(c.nav, set)
}

// ResolveActions maps every configured entity action to a
// GS_<ENTITY>_<ACTION> flag reflecting permission membership.
func (c *Center) ResolveActions(perms []string) map[string]bool {
	set := permSet(perms)
	out := make(map[string]bool)
	for entity, bindings := range c.actions {
		for _, b := range bindings {
			key := fmt.Sprintf("GS_%s_%s", strings.ToUpper(entity), strings.ToUpper(b.Action))
			_, ok := set[b.Permission]
			out[key] = ok
		}
	}
	return out
}

// CanonicalPath returns the first navigable leaf path in tree order, or
// empty when the tree is empty (zero-permission lockout).
func CanonicalPath(tree []NavigationNode) string {
	for _, node := range tree {
		if len(node.Children) == 0 && node.Path != "" {
			return node.Path
		}
		if path := CanonicalPath(node.Children); path != "" {
			return path
		}
	}
	return ""
}

func filterNodes(nodes []NavigationNode, set map[string]struct{}) []NavigationNode {
	var out []NavigationNode
	for _, node := range nodes {
		children := filterNodes(node.Children, set)
		selfOK := false
		if node.Permission != "" {
			_, selfOK = set[node.Permission]
		}
		switch {
		case selfOK, len(children) > 0:
			node.Children = children
			out = append(out, node)
		case node.Permission == "" && len(node.Children) == 0 && node.Path != "":
			// Unrestricted leaf, e.g. a public landing entry.
			out = append(out, node)
		}
	}
	return out
}

func permSet(perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
