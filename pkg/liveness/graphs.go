package liveness

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

// IRResult is the liveness of an IR function
type IRResult = Result[*ir.BasicBlock, *ir.Operand]

// irGraph tracks temporaries and parameters; an IR operand object is its
// own identity. PHI uses are read on the incoming edge and PHI defs happen
// on block entry.
type irGraph struct{ fn *ir.Function }

func tracked(op *ir.Operand) bool { return op.IsTemp() || op.IsParam() }

func (g irGraph) Blocks() []*ir.BasicBlock                { return g.fn.Blocks() }
func (g irGraph) Succs(b *ir.BasicBlock) []*ir.BasicBlock { return b.Succs() }
func (g irGraph) Preds(b *ir.BasicBlock) []*ir.BasicBlock { return b.Preds() }
func (g irGraph) Key(v *ir.Operand) *ir.Operand           { return v }
func (g irGraph) EdgeUses(from, to *ir.BasicBlock) []*ir.Operand {
	var uses []*ir.Operand
	for _, phi := range to.Phis() {
		if v := phi.Source(from); v != nil && tracked(v) {
			uses = append(uses, v)
		}
	}
	return uses
}

func (g irGraph) Scan(b *ir.BasicBlock, use func(*ir.Operand), def func(*ir.Operand)) {
	for _, inst := range b.Instructions() {
		if _, ok := inst.(*ir.Phi); !ok {
			for _, u := range inst.Uses() {
				if tracked(u) {
					use(u)
				}
			}
		}
		for _, d := range inst.Defs() {
			if tracked(d) {
				def(d)
			}
		}
	}
}

// IR computes the liveness of an IR function
func IR(fn *ir.Function) *IRResult {
	return Analyze[*ir.BasicBlock, *ir.Operand, *ir.Operand](irGraph{fn})
}

// MachineResult is the liveness of a machine function
type MachineResult = Result[*mach.Block, *mach.Operand]

// machGraph tracks virtual registers by number; sets hold the individual
// use occurrences. A predicated def does not kill.
type machGraph struct{ fn *mach.Function }

func (g machGraph) Blocks() []*mach.Block                         { return g.fn.Blocks }
func (g machGraph) Succs(b *mach.Block) []*mach.Block             { return b.Succs }
func (g machGraph) Preds(b *mach.Block) []*mach.Block             { return b.Preds }
func (g machGraph) Key(v *mach.Operand) mach.Key                  { return v.Key() }
func (g machGraph) EdgeUses(from, to *mach.Block) []*mach.Operand { return nil }

func (g machGraph) Scan(b *mach.Block, use func(*mach.Operand), def func(mach.Key)) {
	for _, inst := range b.Insts {
		for _, u := range inst.Uses {
			if u.IsVReg() {
				use(u)
			}
		}
		if inst.Predicated() {
			continue
		}
		for _, d := range inst.Defs {
			if d.IsVReg() {
				def(d.Key())
			}
		}
	}
}

// Machine computes the liveness of a machine function and stores the sets
// in its blocks
func Machine(fn *mach.Function) *MachineResult {
	res := Analyze[*mach.Block, *mach.Operand, mach.Key](machGraph{fn})
	for _, b := range fn.Blocks {
		b.LiveIn = res.LiveIn[b]
		b.LiveOut = res.LiveOut[b]
	}
	return res
}
