// Package dom computes dominance information for an IR function:
// strict dominators, immediate dominators and dominance frontiers.
//
// Strict dominators use the vertex-removal formulation: d strictly dominates
// b iff b != d and b cannot be reached from the entry once d is removed.
// Blocks unreachable from the entry are not part of the result. The analysis
// is a snapshot; recompute it after any change to the CFG.
package dom

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

const passName = "dominance"

// Info holds the dominance relations of one function
type Info struct {
	fn       *ir.Function
	order    []*ir.BasicBlock // reachable blocks in reverse postorder
	sdom     map[*ir.BasicBlock]sets.Set[*ir.BasicBlock]
	idom     map[*ir.BasicBlock]*ir.BasicBlock
	df       map[*ir.BasicBlock]sets.Set[*ir.BasicBlock]
	children map[*ir.BasicBlock][]*ir.BasicBlock
}

// Compute builds the dominance information for fn
func Compute(fn *ir.Function) *Info {
	d := &Info{
		fn:       fn,
		sdom:     make(map[*ir.BasicBlock]sets.Set[*ir.BasicBlock]),
		idom:     make(map[*ir.BasicBlock]*ir.BasicBlock),
		df:       make(map[*ir.BasicBlock]sets.Set[*ir.BasicBlock]),
		children: make(map[*ir.BasicBlock][]*ir.BasicBlock),
	}
	d.order = reversePostorder(fn.Entry)
	d.computeStrictDominators()
	d.computeIDom()
	d.computeFrontiers()
	return d
}

// reversePostorder lists the blocks reachable from entry
func reversePostorder(entry *ir.BasicBlock) []*ir.BasicBlock {
	var post []*ir.BasicBlock
	seen := sets.New[*ir.BasicBlock]()
	var walk func(b *ir.BasicBlock)
	walk = func(b *ir.BasicBlock) {
		seen.Add(b)
		for _, s := range b.Succs() {
			if !seen.Contains(s) {
				walk(s)
			}
		}
		post = append(post, b)
	}
	walk(entry)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// reachWithout returns the blocks reachable from the entry when removed is
// taken out of the graph
func (d *Info) reachWithout(removed *ir.BasicBlock) sets.Set[*ir.BasicBlock] {
	seen := sets.New[*ir.BasicBlock]()
	if removed == d.fn.Entry {
		return seen
	}
	queue := []*ir.BasicBlock{d.fn.Entry}
	seen.Add(d.fn.Entry)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range b.Succs() {
			if s != removed && seen.Add(s) {
				queue = append(queue, s)
			}
		}
	}
	return seen
}

func (d *Info) computeStrictDominators() {
	for _, b := range d.order {
		d.sdom[b] = sets.New[*ir.BasicBlock]()
	}
	for _, removed := range d.order {
		reached := d.reachWithout(removed)
		for _, b := range d.order {
			if b != removed && !reached.Contains(b) {
				d.sdom[b].Add(removed)
			}
		}
	}
}

// computeIDom keeps, for each block, the strict dominator that is not a
// strict dominator of any other strict dominator of the block
func (d *Info) computeIDom() {
	for _, b := range d.order {
		candidates := d.sdom[b].Copy()
		for s := range d.sdom[b] {
			for x := range d.sdom[s] {
				candidates.Remove(x)
			}
		}
		switch {
		case b == d.fn.Entry && candidates.Len() == 0:
		case b != d.fn.Entry && candidates.Len() == 1:
			for x := range candidates {
				d.idom[b] = x
				d.children[x] = append(d.children[x], b)
			}
		default:
			ir.FailBlock(passName, b, "block has %d immediate dominators", candidates.Len())
		}
	}
}

func (d *Info) computeFrontiers() {
	for _, b := range d.order {
		d.df[b] = sets.New[*ir.BasicBlock]()
	}
	for _, a := range d.order {
		for _, b := range a.Succs() {
			x := a
			for x != nil && !d.StrictlyDominates(x, b) {
				d.df[x].Add(b)
				x = d.idom[x]
			}
		}
	}
}

// Blocks returns the reachable blocks in reverse postorder
func (d *Info) Blocks() []*ir.BasicBlock {
	return append([]*ir.BasicBlock(nil), d.order...)
}

// Reachable reports whether b is reachable from the entry
func (d *Info) Reachable(b *ir.BasicBlock) bool {
	_, ok := d.sdom[b]
	return ok
}

// StrictDominators returns the strict dominators of b
func (d *Info) StrictDominators(b *ir.BasicBlock) sets.Set[*ir.BasicBlock] {
	return d.sdom[b].Copy()
}

// StrictlyDominates reports whether a strictly dominates b
func (d *Info) StrictlyDominates(a, b *ir.BasicBlock) bool {
	return d.sdom[b].Contains(a)
}

// Dominates reports whether a dominates b; every reachable block dominates itself
func (d *Info) Dominates(a, b *ir.BasicBlock) bool {
	return (a == b && d.Reachable(a)) || d.StrictlyDominates(a, b)
}

// IDom returns the immediate dominator of b, nil for the entry
func (d *Info) IDom(b *ir.BasicBlock) *ir.BasicBlock {
	return d.idom[b]
}

// Frontier returns the dominance frontier of b
func (d *Info) Frontier(b *ir.BasicBlock) sets.Set[*ir.BasicBlock] {
	return d.df[b].Copy()
}

// Children returns the blocks immediately dominated by b
func (d *Info) Children(b *ir.BasicBlock) []*ir.BasicBlock {
	return append([]*ir.BasicBlock(nil), d.children[b]...)
}

// Verify checks that every reachable block but the entry has one immediate
// dominator, that it strictly dominates the block, and that every other
// strict dominator of the block dominates it. It panics with an
// InternalError on the first violation.
func (d *Info) Verify() {
	for _, b := range d.order {
		idom := d.idom[b]
		if b == d.fn.Entry {
			if idom != nil {
				ir.FailBlock(passName, b, "entry has immediate dominator %s", idom.Label())
			}
			continue
		}
		if idom == nil {
			ir.FailBlock(passName, b, "block has no immediate dominator")
		}
		if !d.StrictlyDominates(idom, b) {
			ir.FailBlock(passName, b, "immediate dominator %s does not dominate the block", idom.Label())
		}
		for s := range d.sdom[b] {
			if !d.Dominates(s, idom) {
				ir.FailBlock(passName, b, "strict dominator %s does not dominate %s", s.Label(), idom.Label())
			}
		}
	}
}
