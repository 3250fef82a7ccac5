// Branch tunneling for post-SSA code.
// A block holding nothing but "br X" is bypassed: branches into it go to X.
package cfgopt

import "github.com/raymyers/ralph-ssa/pkg/ir"

// Tunnel shortcuts chains of empty jump blocks and removes the blocks that
// became unreachable. It must run after PHI elimination. It returns the
// number of branch targets rewritten.
func Tunnel(fn *ir.Function) int {
	jumpTargets := buildJumpTargetMap(fn)
	if len(jumpTargets) == 0 {
		return 0
	}
	resolved := resolveChains(jumpTargets)

	rewritten := 0
	for _, b := range fn.Blocks() {
		if _, bypassed := jumpTargets[b]; bypassed {
			continue
		}
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, target := range ir.Targets(term) {
			final, ok := resolved[target]
			if !ok || final == target || !b.HasSucc(target) {
				continue
			}
			ir.Retarget(term, target, final)
			ir.Unlink(b, target)
			ir.Link(b, final)
			rewritten++
		}
	}
	RemoveUnreachable(fn)
	return rewritten
}

// buildJumpTargetMap finds non-entry blocks whose only instruction is a jump
func buildJumpTargetMap(fn *ir.Function) map[*ir.BasicBlock]*ir.BasicBlock {
	result := make(map[*ir.BasicBlock]*ir.BasicBlock)
	for _, b := range fn.Blocks() {
		if b == fn.Entry || b.Len() != 1 {
			continue
		}
		br, ok := b.First().(*ir.Br)
		if !ok || br.Target == b || len(br.Target.Phis()) > 0 {
			continue
		}
		result[b] = br.Target
	}
	return result
}

// resolveChains follows jump chains to their ultimate target
func resolveChains(jumpTargets map[*ir.BasicBlock]*ir.BasicBlock) map[*ir.BasicBlock]*ir.BasicBlock {
	result := make(map[*ir.BasicBlock]*ir.BasicBlock)
	for b := range jumpTargets {
		result[b] = resolveBlock(b, jumpTargets)
	}
	return result
}

// resolveBlock follows a jump chain; on a cycle it stops where the cycle closes
func resolveBlock(b *ir.BasicBlock, jumpTargets map[*ir.BasicBlock]*ir.BasicBlock) *ir.BasicBlock {
	visited := make(map[*ir.BasicBlock]bool)
	current := b
	for {
		if visited[current] {
			return current
		}
		visited[current] = true
		target, ok := jumpTargets[current]
		if !ok {
			return current
		}
		current = target
	}
}
