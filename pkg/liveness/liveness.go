// Package liveness computes live-in and live-out sets by backward dataflow.
//
// The analysis is generic over the block type B, the value occurrence type V
// and the value identity K. Sets hold occurrences, so a set can tell apart
// two uses of the same value; a definition kills every occurrence of its key:
//
//	LiveOut(b) = union over successors s of LiveIn(s) and the PHI uses on b->s
//	LiveIn(b)  = Use(b) + (LiveOut(b) - occurrences of keys defined in b)
//
// Use(b) holds the occurrences read before any definition of their key in b.
package liveness

import (
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

// Graph is the view of a CFG the analysis needs
type Graph[B, V, K comparable] interface {
	// Blocks returns every block, the entry first
	Blocks() []B
	Succs(b B) []B
	Preds(b B) []B
	// Scan reports the operands of b in execution order: for each
	// instruction its uses, then the keys it definitely defines
	Scan(b B, use func(V), def func(K))
	// EdgeUses returns the values read on the edge from -> to
	EdgeUses(from, to B) []V
	Key(v V) K
}

// Result holds the fixed point
type Result[B, V comparable] struct {
	LiveIn  map[B]sets.Set[V]
	LiveOut map[B]sets.Set[V]
	// Visits counts block evaluations; on an acyclic CFG it equals the
	// number of blocks
	Visits int
}

type local[V, K comparable] struct {
	use sets.Set[V]
	def sets.Set[K]
}

// Analyze runs the worklist to a fixed point. The worklist is seeded in
// postorder so that on an acyclic CFG every block is evaluated once.
func Analyze[B, V, K comparable](g Graph[B, V, K]) *Result[B, V] {
	s := newSolver(g)
	for s.step() {
	}
	return s.res
}

// solver is the worklist state between block visits
type solver[B, V, K comparable] struct {
	g      Graph[B, V, K]
	res    *Result[B, V]
	locals map[B]local[V, K]
	queue  []B
	queued sets.Set[B]
}

func newSolver[B, V, K comparable](g Graph[B, V, K]) *solver[B, V, K] {
	res := &Result[B, V]{
		LiveIn:  make(map[B]sets.Set[V]),
		LiveOut: make(map[B]sets.Set[V]),
	}
	blocks := g.Blocks()
	locals := make(map[B]local[V, K], len(blocks))
	for _, b := range blocks {
		l := local[V, K]{use: sets.New[V](), def: sets.New[K]()}
		g.Scan(b,
			func(v V) {
				if !l.def.Contains(g.Key(v)) {
					l.use.Add(v)
				}
			},
			func(k K) { l.def.Add(k) })
		locals[b] = l
		res.LiveIn[b] = sets.New[V]()
		res.LiveOut[b] = sets.New[V]()
	}
	queue := postorder(g, blocks)
	return &solver[B, V, K]{g: g, res: res, locals: locals, queue: queue, queued: sets.Of(queue...)}
}

// step evaluates the next queued block and reports whether one was left
func (s *solver[B, V, K]) step() bool {
	if len(s.queue) == 0 {
		return false
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	s.queued.Remove(b)
	s.res.Visits++

	out := sets.New[V]()
	for _, succ := range s.g.Succs(b) {
		out.AddAll(s.res.LiveIn[succ])
		for _, v := range s.g.EdgeUses(b, succ) {
			out.Add(v)
		}
	}
	s.res.LiveOut[b] = out

	l := s.locals[b]
	in := l.use.Copy()
	for v := range out {
		if !l.def.Contains(s.g.Key(v)) {
			in.Add(v)
		}
	}
	if in.Equal(s.res.LiveIn[b]) {
		return true
	}
	s.res.LiveIn[b] = in
	for _, p := range s.g.Preds(b) {
		if s.queued.Add(p) {
			s.queue = append(s.queue, p)
		}
	}
	return true
}

// postorder lists the blocks reachable from the entry in postorder,
// followed by the unreachable ones
func postorder[B, V, K comparable](g Graph[B, V, K], blocks []B) []B {
	var order []B
	if len(blocks) == 0 {
		return order
	}
	seen := sets.New[B]()
	var walk func(b B)
	walk = func(b B) {
		seen.Add(b)
		for _, s := range g.Succs(b) {
			if !seen.Contains(s) {
				walk(s)
			}
		}
		order = append(order, b)
	}
	walk(blocks[0])
	for _, b := range blocks {
		if !seen.Contains(b) {
			order = append(order, b)
		}
	}
	return order
}
