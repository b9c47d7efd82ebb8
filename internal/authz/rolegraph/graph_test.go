package rolegraph

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestWouldCreateCycleSelfEdge(t *testing.T) {
	id := uuid.New()
	g := New(nil)
	assert.True(t, g.WouldCreateCycle(id, id))
}

func TestWouldCreateCycleDirect(t *testing.T) {
	r := ids(2)
	g := New([]Edge{{ParentID: r[0], ChildID: r[1]}})

	// r1 already contains r2; adding r2 → contains r1 closes a cycle.
	assert.True(t, g.WouldCreateCycle(r[0], r[1]))
	// The existing direction stays legal.
	assert.False(t, g.WouldCreateCycle(r[1], r[0]))
}

func TestWouldCreateCycleTransitive(t *testing.T) {
	r := ids(4)
	g := New([]Edge{
		{ParentID: r[0], ChildID: r[1]},
		{ParentID: r[1], ChildID: r[2]},
		{ParentID: r[2], ChildID: r[3]},
	})

	assert.True(t, g.WouldCreateCycle(r[0], r[3]))
	assert.True(t, g.WouldCreateCycle(r[1], r[3]))
	assert.False(t, g.WouldCreateCycle(r[3], r[0]))
}

func TestWouldCreateCycleDiamondIsFine(t *testing.T) {
	r := ids(4)
	// r0 → r1, r0 → r2, r1 → r3, r2 → r3. Diamonds are legal in a DAG.
	g := New([]Edge{
		{ParentID: r[0], ChildID: r[1]},
		{ParentID: r[0], ChildID: r[2]},
		{ParentID: r[1], ChildID: r[3]},
	})
	assert.False(t, g.WouldCreateCycle(r[3], r[2]))
}

func TestAncestorsAndDescendants(t *testing.T) {
	r := ids(5)
	g := New([]Edge{
		{ParentID: r[0], ChildID: r[1]},
		{ParentID: r[1], ChildID: r[2]},
		{ParentID: r[1], ChildID: r[3]},
		{ParentID: r[4], ChildID: r[1]},
	})

	desc := g.Descendants(r[0])
	require.Len(t, desc, 3)
	assert.Contains(t, desc, r[1])
	assert.Contains(t, desc, r[2])
	assert.Contains(t, desc, r[3])

	anc := g.Ancestors(r[2])
	require.Len(t, anc, 3)
	assert.Contains(t, anc, r[1])
	assert.Contains(t, anc, r[0])
	assert.Contains(t, anc, r[4])

	// The role itself is never part of its own closure.
	assert.NotContains(t, g.Descendants(r[0]), r[0])
	assert.NotContains(t, g.Ancestors(r[2]), r[2])
}

func TestDuplicateEdgesCollapse(t *testing.T) {
	r := ids(2)
	e := Edge{ParentID: r[0], ChildID: r[1]}
	g := New([]Edge{e, e, e})
	assert.Len(t, g.Children(r[0]), 1)
}

// TestRandomizedAcyclicInvariant builds random DAGs by only inserting
// edges the cycle check clears, then verifies no node is its own
// ancestor.
func TestRandomizedAcyclicInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		nodes := ids(10)
		var edges []Edge
		for attempt := 0; attempt < 60; attempt++ {
			parent := nodes[rng.Intn(len(nodes))]
			child := nodes[rng.Intn(len(nodes))]
			if New(edges).WouldCreateCycle(child, parent) {
				continue
			}
			edges = append(edges, Edge{ParentID: parent, ChildID: child})
		}
		g := New(edges)
		for _, n := range nodes {
			if _, ok := g.Ancestors(n)[n]; ok {
				t.Fatalf("trial %d: node %s is its own ancestor", trial, n)
			}
		}
	}
}
