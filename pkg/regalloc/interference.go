package regalloc

import (
	"errors"
	"fmt"

	"github.com/raymyers/ralph-ssa/pkg/mach"
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

// InterferenceGraph records which intervals are live at the same time.
// Only intervals of the same register class interfere.
type InterferenceGraph struct {
	Nodes []*Interval
	Edges map[*Interval]sets.Set[*Interval]
}

// NewInterferenceGraph creates an empty interference graph
func NewInterferenceGraph() *InterferenceGraph {
	return &InterferenceGraph{Edges: make(map[*Interval]sets.Set[*Interval])}
}

// AddNode adds an interval to the graph
func (g *InterferenceGraph) AddNode(iv *Interval) {
	if _, ok := g.Edges[iv]; ok {
		return
	}
	g.Nodes = append(g.Nodes, iv)
	g.Edges[iv] = sets.New[*Interval]()
}

// AddEdge adds an interference edge between two intervals
func (g *InterferenceGraph) AddEdge(a, b *Interval) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.Edges[a].Add(b)
	g.Edges[b].Add(a)
}

// HasEdge returns true if there is an interference edge
func (g *InterferenceGraph) HasEdge(a, b *Interval) bool {
	return g.Edges[a].Contains(b)
}

// Degree returns the number of neighbors of an interval
func (g *InterferenceGraph) Degree(iv *Interval) int {
	return g.Edges[iv].Len()
}

// BuildInterferenceGraph connects every pair of overlapping intervals of
// the same class
func BuildInterferenceGraph(intervals []*Interval) *InterferenceGraph {
	g := NewInterferenceGraph()
	for i, a := range intervals {
		g.AddNode(a)
		for _, b := range intervals[i+1:] {
			if a.Float == b.Float && a.Overlaps(b) {
				g.AddEdge(a, b)
			}
		}
	}
	return g
}

// Verify checks an allocation: every interval has a register, no two
// interfering intervals share one and no virtual register is left in fn
func Verify(fn *mach.Function, intervals []*Interval) error {
	var errs []error
	g := BuildInterferenceGraph(intervals)
	for i, a := range g.Nodes {
		if a.Phys < 0 {
			errs = append(errs, fmt.Errorf("%s: %s has no register", fn.Name, a))
			continue
		}
		for _, b := range g.Nodes[i+1:] {
			if a.Phys == b.Phys && g.HasEdge(a, b) {
				errs = append(errs, fmt.Errorf("%s: %s and %s share %s", fn.Name, a, b, mach.RegName(a.Phys, a.Float)))
			}
		}
	}
	for _, v := range virtualOperands(fn) {
		errs = append(errs, fmt.Errorf("%s: %s left in %s", fn.Name, v, mach.FormatInstruction(v.Parent())))
	}
	return errors.Join(errs...)
}
