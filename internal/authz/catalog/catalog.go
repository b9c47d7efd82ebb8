// Package catalog holds the static permission registry used to validate
// role permission sets. Permissions are seeded by migration and never
// mutated at runtime; the catalog is built once at process start and
// passed by reference to every consumer.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Scope marks the organizational boundary a permission or role applies to.
type Scope string

const (
	// ScopeSystem applies platform-wide, outside any tenant.
	ScopeSystem Scope = "SYSTEM"
	// ScopeTenant applies within a single tenant.
	ScopeTenant Scope = "TENANT"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeSystem || s == ScopeTenant
}

// Permission is an immutable capability identified by a dotted slug.
type Permission struct {
	Slug   string
	Scope  Scope
	Module string
}

// Catalog indexes permissions by slug.
type Catalog struct {
	bySlug map[string]Permission
	slugs  []string
}

// New builds a catalog from the given permissions. Slugs must be unique,
// non-empty and dotted; the module is derived from the first slug segment.
func New(perms []Permission) (*Catalog, error) {
	c := &Catalog{bySlug: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		slug := strings.TrimSpace(p.Slug)
		if slug == "" {
			return nil, fmt.Errorf("catalog: empty permission slug")
		}
		if !strings.Contains(slug, ".") {
			return nil, fmt.Errorf("catalog: slug %q is not dotted", slug)
		}
		if !p.Scope.Valid() {
			return nil, fmt.Errorf("catalog: slug %q has invalid scope %q", slug, p.Scope)
		}
		if _, ok := c.bySlug[slug]; ok {
			return nil, fmt.Errorf("catalog: duplicate slug %q", slug)
		}
		p.Slug = slug
		p.Module = slug[:strings.Index(slug, ".")]
		c.bySlug[slug] = p
		c.slugs = append(c.slugs, slug)
	}
	sort.Strings(c.slugs)
	return c, nil
}

// Lookup returns the permission for slug.
func (c *Catalog) Lookup(slug string) (Permission, bool) {
	p, ok := c.bySlug[slug]
	return p, ok
}

// Has reports whether slug is registered.
func (c *Catalog) Has(slug string) bool {
	_, ok := c.bySlug[slug]
	return ok
}

// Slugs returns all registered slugs in sorted order.
func (c *Catalog) Slugs() []string {
	out := make([]string, len(c.slugs))
	copy(out, c.slugs)
	return out
}

// ByModule returns all permissions belonging to module, sorted by slug.
func (c *Catalog) ByModule(module string) []Permission {
	var out []Permission
	for _, slug := range c.slugs {
		if p := c.bySlug[slug]; p.Module == module {
			out = append(out, p)
		}
	}
	return out
}

// ByScope returns all permissions with the given scope, sorted by slug.
func (c *Catalog) ByScope(scope Scope) []Permission {
	var out []Permission
	for _, slug := range c.slugs {
		if p := c.bySlug[slug]; p.Scope == scope {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered permissions.
func (c *Catalog) Len() int {
	return len(c.slugs)
}
