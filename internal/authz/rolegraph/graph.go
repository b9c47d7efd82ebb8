// Package rolegraph models composite-role containment as a directed
// acyclic graph. A parent role contains the permissions of its children.
// Traversals are iterative with an explicit worklist so that degenerate
// hierarchies cannot exhaust the stack; a visited set bounds every walk
// at O(V+E).
package rolegraph

import "github.com/google/uuid"

// Edge is a single composite link: the parent role contains the child.
type Edge struct {
	ParentID uuid.UUID
	ChildID  uuid.UUID
}

// Graph is an immutable adjacency snapshot built from a set of edges.
// Callers that validate a new edge must build the snapshot inside the
// same transaction that writes the edge, otherwise two concurrent
// inserts can jointly form a cycle that each one individually misses.
type Graph struct {
	children map[uuid.UUID][]uuid.UUID
	parents  map[uuid.UUID][]uuid.UUID
}

// New builds a graph snapshot from edges. Duplicate edges are collapsed.
func New(edges []Edge) *Graph {
	g := &Graph{
		children: make(map[uuid.UUID][]uuid.UUID),
		parents:  make(map[uuid.UUID][]uuid.UUID),
	}
	seen := make(map[Edge]struct{}, len(edges))
	for _, e := range edges {
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		g.children[e.ParentID] = append(g.children[e.ParentID], e.ChildID)
		g.parents[e.ChildID] = append(g.parents[e.ChildID], e.ParentID)
	}
	return g
}

// WouldCreateCycle reports whether adding parent→child would make the
// parent reachable from the child, i.e. close a cycle. A self edge is
// always a cycle.
func (g *Graph) WouldCreateCycle(childID, parentID uuid.UUID) bool {
	if childID == parentID {
		return true
	}
	visited := map[uuid.UUID]struct{}{childID: {}}
	work := []uuid.UUID{childID}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		for _, next := range g.children[cur] {
			if next == parentID {
				return true
			}
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			work = append(work, next)
		}
	}
	return false
}

// Ancestors returns every role that transitively contains roleID. The
// role itself is not included.
func (g *Graph) Ancestors(roleID uuid.UUID) map[uuid.UUID]struct{} {
	return g.walk(roleID, g.parents)
}

// Descendants returns every role transitively contained by roleID, used
// to flatten inherited permissions. The role itself is not included.
func (g *Graph) Descendants(roleID uuid.UUID) map[uuid.UUID]struct{} {
	return g.walk(roleID, g.children)
}

func (g *Graph) walk(start uuid.UUID, adj map[uuid.UUID][]uuid.UUID) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	visited := map[uuid.UUID]struct{}{start: {}}
	work := []uuid.UUID{start}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		for _, next := range adj[cur] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			out[next] = struct{}{}
			work = append(work, next)
		}
	}
	return out
}

// Children returns the direct children of roleID.
func (g *Graph) Children(roleID uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(g.children[roleID]))
	copy(out, g.children[roleID])
	return out
}
