package regalloc

import (
	"fmt"
	"slices"

	"github.com/raymyers/ralph-ssa/pkg/mach"
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

// Interval is the live range of one web of definitions and uses of a
// virtual register, over instruction numbers. Both ends are inclusive.
type Interval struct {
	N       int  // virtual register
	Float   bool // register class
	Start   int
	End     int
	Defs    []*mach.Operand
	Uses    sets.Set[*mach.Operand]
	Phys    int // assigned register, -1 when none
	Spilled bool
}

func (iv *Interval) String() string {
	loc := "-"
	switch {
	case iv.Spilled:
		loc = "spilled"
	case iv.Phys >= 0:
		loc = mach.RegName(iv.Phys, iv.Float)
	}
	return fmt.Sprintf("v%d[%d,%d] %s", iv.N, iv.Start, iv.End, loc)
}

// Overlaps reports whether two intervals share an instruction
func (iv *Interval) Overlaps(o *Interval) bool {
	return iv.Start <= o.End && o.Start <= iv.End
}

// number assigns function-wide instruction numbers in block order
func number(fn *mach.Function) {
	n := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			inst.No = n
			n++
		}
	}
}

// buildIntervals derives the intervals of fn from the liveness stored in
// its blocks. Instructions must be numbered.
func buildIntervals(fn *mach.Function) []*Interval {
	var chains []*Interval
	for _, b := range fn.Blocks {
		chains = append(chains, defUseChains(b)...)
	}
	for _, iv := range chains {
		widen(fn, iv)
	}
	return merge(chains)
}

// defUseChains walks b backwards from its live-out uses. Every def collects
// the uses it reaches; a predicated def passes them on to the defs above.
func defUseChains(b *mach.Block) []*Interval {
	live := make(map[int][]*mach.Operand)
	for u := range b.LiveOut {
		live[u.N] = append(live[u.N], u)
	}
	var chains []*Interval
	for i := len(b.Insts) - 1; i >= 0; i-- {
		inst := b.Insts[i]
		for _, d := range inst.Defs {
			if !d.IsVReg() {
				continue
			}
			c := &Interval{
				N:     d.N,
				Float: d.Float,
				Defs:  []*mach.Operand{d},
				Uses:  sets.Of(live[d.N]...),
				Phys:  -1,
			}
			chains = append(chains, c)
			if !inst.Predicated() {
				delete(live, d.N)
				continue
			}
			// the kept value must sit in the same register
			for _, u := range inst.Uses {
				if u.IsVReg() && u.N == d.N {
					c.Uses.Add(u)
				}
			}
		}
		for _, u := range inst.Uses {
			if u.IsVReg() {
				live[u.N] = append(live[u.N], u)
			}
		}
	}
	return chains
}

// widen sets the bounds of a fresh chain: from the def to its furthest use,
// stretched over every block the value is live through
func widen(fn *mach.Function, iv *Interval) {
	def := iv.Defs[0].Parent()
	iv.Start, iv.End = def.No, def.No
	for u := range iv.Uses {
		iv.End = max(iv.End, u.Parent().No)
	}
	for _, b := range fn.Blocks {
		if len(b.Insts) == 0 {
			continue
		}
		in := b.LiveIn.Intersects(iv.Uses)
		out := b.LiveOut.Intersects(iv.Uses)
		first, last := b.Insts[0].No, b.Insts[len(b.Insts)-1].No
		switch {
		case in && out:
			iv.Start = min(iv.Start, first)
			iv.End = max(iv.End, last)
		case out:
			iv.End = max(iv.End, last)
		case in:
			iv.Start = min(iv.Start, first)
			for u := range iv.Uses {
				if u.Parent().Parent() == b {
					iv.End = max(iv.End, u.Parent().No)
				}
			}
		}
	}
}

// merge unites chains of the same register whose use sets intersect,
// until no pair is left. The result is ordered by start.
func merge(chains []*Interval) []*Interval {
	byReg := make(map[int][]*Interval)
	var regs []int
	for _, c := range chains {
		if _, ok := byReg[c.N]; !ok {
			regs = append(regs, c.N)
		}
		byReg[c.N] = append(byReg[c.N], c)
	}

	var result []*Interval
	for _, n := range regs {
		group := byReg[n]
		for changed := true; changed; {
			changed = false
		search:
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					if group[i].Uses.Intersects(group[j].Uses) {
						absorb(group[i], group[j])
						group = slices.Delete(group, j, j+1)
						changed = true
						break search
					}
				}
			}
		}
		result = append(result, group...)
	}
	slices.SortStableFunc(result, func(a, b *Interval) int { return a.Start - b.Start })
	return result
}

func absorb(into, from *Interval) {
	into.Defs = append(into.Defs, from.Defs...)
	into.Uses.AddAll(from.Uses)
	into.Start = min(into.Start, from.Start)
	into.End = max(into.End, from.End)
}
