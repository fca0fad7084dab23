package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeString(t *testing.T) {
	assert.Equal(t, "1-2", Edge{From: 1, To: 2}.String())
	assert.Equal(t, "0-0", Edge{}.String())
}

func TestEdgeIsNone(t *testing.T) {
	assert.True(t, NoEdge.IsNone())
	assert.True(t, Edge{From: 3, To: NoNode}.IsNone())
	assert.False(t, Edge{From: 0, To: 0}.IsNone())
}

func TestSolutionOrdering(t *testing.T) {
	best := EmptyBest()
	assert.True(t, best.Infinite())

	three := NewSolution([]Edge{{1, 2}, {2, 3}, {3, 1}})
	one := NewSolution([]Edge{{3, 1}})

	assert.True(t, three.BetterThan(best))
	assert.True(t, one.BetterThan(three))
	assert.False(t, three.BetterThan(one))
	assert.False(t, one.BetterThan(one), "equal counts are not an improvement")

	assert.True(t, NewSolution(nil).Acyclic())
	assert.False(t, one.Acyclic())
}

func TestSolutionClone(t *testing.T) {
	orig := NewSolution([]Edge{{1, 2}})
	clone := orig.Clone()
	clone.Edges[0] = Edge{From: 9, To: 9}

	assert.Equal(t, Edge{From: 1, To: 2}, orig.Edges[0])
	assert.Equal(t, orig.Count, clone.Count)
}

func TestFormatting(t *testing.T) {
	sol := NewSolution([]Edge{{1, 2}, {3, 4}})

	assert.Equal(t, "1-2 3-4 ", FormatEdges(sol.Edges))
	assert.Equal(t, "2 edges: { 1-2 3-4 }", FormatCandidate(sol))
	assert.Equal(t, "[arcset] Solution with 2 edges: 1-2 3-4 ", FormatImprovement("arcset", sol))
	assert.Equal(t, "[arcset] The graph is acyclic!", FormatAcyclic("arcset"))
	assert.Equal(t, "0 edges: { }", FormatCandidate(NewSolution(nil)))
}

func TestFormatEdgesStopsAtPadding(t *testing.T) {
	edges := []Edge{{1, 2}, NoEdge, {5, 6}}
	assert.Equal(t, "1-2 ", FormatEdges(edges))
}
