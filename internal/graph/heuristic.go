package graph

import (
	"math/rand/v2"
	"slices"

	"github.com/bebsworthy/arcset/internal/protocol"
)

// Heuristic produces random feedback arc sets of one graph.
//
// Each round shuffles the nodes into a random order and takes every edge
// that does not point forward in that order (including self-loops). What
// remains is consistent with the order and therefore acyclic.
type Heuristic struct {
	graph *Graph
	rng   *rand.Rand
	order []int // node indices, shuffled in place
	pos   []int // pos[node index] = position in order
}

// NewHeuristic creates a heuristic over g. A zero seed draws a random one.
func NewHeuristic(g *Graph, seed uint64) *Heuristic {
	if seed == 0 {
		seed = rand.Uint64()
	}

	order := make([]int, g.NodeCount())
	for i := range order {
		order[i] = i
	}

	return &Heuristic{
		graph: g,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		order: order,
		pos:   make([]int, len(order)),
	}
}

// Next returns a new candidate. Arcs are listed by descending source
// position, then descending destination position.
func (h *Heuristic) Next() []protocol.Edge {
	h.rng.Shuffle(len(h.order), func(i, j int) {
		h.order[i], h.order[j] = h.order[j], h.order[i]
	})
	for p, n := range h.order {
		h.pos[n] = p
	}

	var arcs []protocol.Edge
	var back []int
	for i := len(h.order) - 1; i >= 0; i-- {
		from := h.order[i]

		back = back[:0]
		for _, to := range h.graph.succ[from] {
			if h.pos[to] <= i {
				back = append(back, to)
			}
		}
		slices.SortFunc(back, func(a, b int) int {
			return h.pos[b] - h.pos[a]
		})

		for _, to := range back {
			arcs = append(arcs, protocol.Edge{From: h.graph.nodes[from], To: h.graph.nodes[to]})
		}
	}

	return arcs
}

// Order returns the node ids in the order used by the last call to Next
func (h *Heuristic) Order() []int32 {
	out := make([]int32, len(h.order))
	for i, n := range h.order {
		out[i] = h.graph.nodes[n]
	}
	return out
}
