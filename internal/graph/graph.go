// Package graph holds the directed input graph of a generator and the
// randomized search for feedback arc sets over it.
package graph

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/bebsworthy/arcset/internal/protocol"
)

// Graph is an immutable directed graph. Self-loops are tracked beside the
// gonum graph, which does not allow them.
type Graph struct {
	nodes     []int32
	index     map[int32]int
	edges     []protocol.Edge
	directed  *simple.DirectedGraph
	selfLoops map[int32]bool
	succ      [][]int
}

// New builds a graph from edges. Duplicate edges are kept once; nodes keep
// the order of first appearance.
func New(edges []protocol.Edge) *Graph {
	g := &Graph{
		index:     make(map[int32]int),
		directed:  simple.NewDirectedGraph(),
		selfLoops: make(map[int32]bool),
	}

	seen := make(map[protocol.Edge]bool, len(edges))
	for _, e := range edges {
		g.addNode(e.From)
		g.addNode(e.To)
		if seen[e] {
			continue
		}
		seen[e] = true
		g.edges = append(g.edges, e)

		if e.From == e.To {
			g.selfLoops[e.From] = true
			continue
		}
		g.directed.SetEdge(g.directed.NewEdge(simple.Node(e.From), simple.Node(e.To)))
	}

	g.succ = make([][]int, len(g.nodes))
	for i, id := range g.nodes {
		if g.selfLoops[id] {
			g.succ[i] = append(g.succ[i], i)
		}
		to := g.directed.From(int64(id))
		for to.Next() {
			g.succ[i] = append(g.succ[i], g.index[int32(to.Node().ID())])
		}
	}

	return g
}

func (g *Graph) addNode(id int32) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, id)
	if g.directed.Node(int64(id)) == nil {
		g.directed.AddNode(simple.Node(id))
	}
}

// Nodes returns the distinct node ids in order of first appearance
func (g *Graph) Nodes() []int32 {
	out := make([]int32, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns the distinct edges in input order
func (g *Graph) Edges() []protocol.Edge {
	out := make([]protocol.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// NodeCount returns the number of distinct nodes
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct edges
func (g *Graph) EdgeCount() int { return len(g.edges) }

// HasEdge reports whether from -> to is an edge
func (g *Graph) HasEdge(from, to int32) bool {
	if from == to {
		return g.selfLoops[from]
	}
	return g.directed.HasEdgeFromTo(int64(from), int64(to))
}

// Acyclic reports whether the graph has no directed cycle
func (g *Graph) Acyclic() bool {
	if len(g.selfLoops) > 0 {
		return false
	}
	_, err := topo.Sort(g.directed)
	return err == nil
}

// IsFeedbackArcSet reports whether removing arcs leaves the graph acyclic
func (g *Graph) IsFeedbackArcSet(arcs []protocol.Edge) bool {
	removed := make(map[protocol.Edge]bool, len(arcs))
	for _, a := range arcs {
		removed[a] = true
	}

	residual := simple.NewDirectedGraph()
	for _, e := range g.edges {
		if removed[e] {
			continue
		}
		if e.From == e.To {
			return false
		}
		residual.SetEdge(residual.NewEdge(simple.Node(e.From), simple.Node(e.To)))
	}

	_, err := topo.Sort(residual)
	return err == nil
}
