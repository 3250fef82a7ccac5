// Package cfgopt holds the control-flow cleanups run around SSA construction.
// Unreachable blocks are removed before dominance is computed, and after PHI
// elimination empty jump blocks are tunneled away.
package cfgopt

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

// Reachable returns the blocks reachable from the entry, found by DFS
func Reachable(fn *ir.Function) sets.Set[*ir.BasicBlock] {
	seen := sets.New[*ir.BasicBlock]()
	stack := []*ir.BasicBlock{fn.Entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !seen.Add(b) {
			continue
		}
		stack = append(stack, b.Succs()...)
	}
	return seen
}

// RemoveUnreachable deletes every block not reachable from the entry and
// drops PHI entries that referred to them. It returns the number removed.
func RemoveUnreachable(fn *ir.Function) int {
	live := Reachable(fn)
	removed := 0
	for _, b := range fn.Blocks() {
		if live.Contains(b) {
			continue
		}
		for _, s := range b.Succs() {
			for _, phi := range s.Phis() {
				phi.RemoveEdge(b)
			}
		}
		fn.RemoveBlock(b)
		removed++
	}
	return removed
}
