// Package elimphi takes a function out of SSA form.
//
// Every PHI becomes a set of copies placed at the end of each predecessor,
// before its terminator. An edge from a block with several successors is
// split first so that the copies run only on that edge. Sources equal to
// their destination are dropped; an edge left without copies is not split. The copies for one
// edge form a parallel copy and are sequentialized, breaking cycles with a
// fresh temporary.
package elimphi

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
)

const passName = "elimphi"

// Stats summarises one run
type Stats struct {
	Phis        int
	SplitEdges  int
	Copies      int
	Temporaries int
}

// parallelCopy is one pending dst <- src
type parallelCopy struct {
	dst, src *ir.Operand
}

// Run removes every PHI of fn. The dominator tree and liveness of fn are
// invalid afterwards.
func Run(fn *ir.Function) Stats {
	var stats Stats
	for _, b := range fn.Blocks() {
		phis := b.Phis()
		if len(phis) == 0 {
			continue
		}
		stats.Phis += len(phis)
		for _, pred := range b.Preds() {
			copies := make([]parallelCopy, 0, len(phis))
			for _, phi := range phis {
				src := phi.RemoveEdge(pred)
				if src == nil {
					ir.Fail(passName, phi, "no source for predecessor %s", pred.Label())
				}
				if src != phi.Dst() {
					copies = append(copies, parallelCopy{phi.Dst(), src})
				}
			}
			// an edge carrying only identities needs neither copies nor a split
			if len(copies) == 0 {
				continue
			}
			at := pred
			if pred.NumSuccs() > 1 {
				at = splitEdge(fn, pred, b)
				stats.SplitEdges++
			}
			sequentialize(fn, at, copies, &stats)
		}
		for _, phi := range phis {
			if phi.NumSources() != 0 {
				ir.Fail(passName, phi, "source from a block that is not a predecessor")
			}
			b.Remove(phi)
		}
	}
	return stats
}

// splitEdge inserts an empty block on the edge pred -> succ and returns it
func splitEdge(fn *ir.Function, pred, succ *ir.BasicBlock) *ir.BasicBlock {
	br, ok := pred.Terminator().(*ir.CondBr)
	if !ok {
		ir.FailBlock(passName, pred, "%d successors without a conditional branch", pred.NumSuccs())
	}
	mid := fn.NewBlock()
	br.Retarget(succ, mid)
	ir.Unlink(pred, succ)
	ir.Link(pred, mid)
	mid.InsertBack(ir.NewBr(succ))
	ir.Link(mid, succ)
	return mid
}

// sequentialize emits copies so that together they behave as if every
// source were read before any destination is written
func sequentialize(fn *ir.Function, at *ir.BasicBlock, copies []parallelCopy, stats *Stats) {
	term := at.Terminator()
	if term == nil {
		ir.FailBlock(passName, at, "block has no terminator")
	}
	emit := func(dst, src *ir.Operand) {
		ir.InsertBefore(ir.NewMove(dst, src), term)
		stats.Copies++
	}

	pending := make([]parallelCopy, 0, len(copies))
	for _, c := range copies {
		if c.dst != c.src {
			pending = append(pending, c)
		}
	}
	for len(pending) > 0 {
		ready := -1
		for i := range pending {
			if !readByOther(pending, i) {
				ready = i
				break
			}
		}
		if ready >= 0 {
			c := pending[ready]
			emit(c.dst, c.src)
			pending = append(pending[:ready], pending[ready+1:]...)
			continue
		}

		// every destination is still read: a cycle
		src := pending[0].src
		tmp := fn.NewTemp(src.Type())
		emit(tmp, src)
		stats.Temporaries++
		for i := range pending {
			if pending[i].src == src {
				pending[i].src = tmp
			}
		}
	}
}

func readByOther(pending []parallelCopy, i int) bool {
	for j, c := range pending {
		if j != i && c.src == pending[i].dst {
			return true
		}
	}
	return false
}
