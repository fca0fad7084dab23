// Package protocol defines the values exchanged between generator and supervisor
// processes through the shared channel, and how they are printed on the console.
package protocol

import (
	"fmt"
	"math"
	"strings"
)

const (
	// NoNode marks an unused edge position in a slot. Parsed node ids are
	// always nonnegative, so it can never be mistaken for a real node.
	NoNode int32 = -1

	// InfiniteCount is the edge count of a slot that was never written and the
	// initial value of the supervisor's best record.
	InfiniteCount uint32 = math.MaxUint32

	// DefaultChannelCapacity is the number of solution slots in the channel.
	DefaultChannelCapacity = 10

	// DefaultSlotCapacity is the number of edges a single slot can hold.
	DefaultSlotCapacity = 50

	// MaxNodeID is the largest node id representable in a slot.
	MaxNodeID = math.MaxInt32
)

// Edge is a directed edge From -> To.
type Edge struct {
	From int32
	To   int32
}

// NoEdge is the padding value written into unused slot positions.
var NoEdge = Edge{From: NoNode, To: NoNode}

// String renders the edge in the "source-destination" form used on the command line.
func (e Edge) String() string {
	return fmt.Sprintf("%d-%d", e.From, e.To)
}

// IsNone reports whether e is the padding sentinel.
func (e Edge) IsNone() bool {
	return e.From == NoNode || e.To == NoNode
}

// Solution is a candidate feedback arc set together with its edge count.
type Solution struct {
	Count uint32
	Edges []Edge
}

// NewSolution builds a solution from a list of edges.
func NewSolution(edges []Edge) Solution {
	return Solution{Count: uint32(len(edges)), Edges: edges}
}

// EmptyBest returns the initial best record: no edges and an infinite count.
func EmptyBest() Solution {
	return Solution{Count: InfiniteCount}
}

// Infinite reports whether the solution is the "nothing seen yet" record.
func (s Solution) Infinite() bool {
	return s.Count == InfiniteCount
}

// Acyclic reports whether the solution proves the graph has no cycles.
func (s Solution) Acyclic() bool {
	return s.Count == 0
}

// BetterThan reports whether s has strictly fewer edges than other.
func (s Solution) BetterThan(other Solution) bool {
	return s.Count < other.Count
}

// Clone returns a copy that does not share the edge slice.
func (s Solution) Clone() Solution {
	edges := make([]Edge, len(s.Edges))
	copy(edges, s.Edges)
	return Solution{Count: s.Count, Edges: edges}
}

// FormatEdges renders edges as "a-b c-d " (each edge followed by a space).
func FormatEdges(edges []Edge) string {
	var b strings.Builder
	for _, e := range edges {
		if e.IsNone() {
			break
		}
		b.WriteString(e.String())
		b.WriteByte(' ')
	}
	return b.String()
}

// FormatCandidate renders a generator candidate: "3 edges: { 1-2 2-3 3-1 }".
func FormatCandidate(s Solution) string {
	return fmt.Sprintf("%d edges: { %s}", s.Count, FormatEdges(s.Edges))
}

// FormatImprovement renders a supervisor improvement line for program prog.
func FormatImprovement(prog string, s Solution) string {
	return fmt.Sprintf("[%s] Solution with %d edges: %s", prog, s.Count, FormatEdges(s.Edges))
}

// FormatAcyclic renders the final message printed when the graph has no cycles.
func FormatAcyclic(prog string) string {
	return fmt.Sprintf("[%s] The graph is acyclic!", prog)
}
