package regalloc

import (
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

// rewrite replaces the operands of every interval with its register and
// records the registers the function writes
func rewrite(fn *mach.Function, intervals []*Interval) {
	for _, iv := range intervals {
		for _, d := range iv.Defs {
			d.SetReg(iv.Phys)
		}
		for u := range iv.Uses {
			u.SetReg(iv.Phys)
		}
		fn.AddUsedReg(iv.Phys, iv.Float)
	}
}

// virtualOperands returns the operands of fn still naming a virtual register
func virtualOperands(fn *mach.Function) []*mach.Operand {
	var vs []*mach.Operand
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			for _, op := range inst.Defs {
				if op.IsVReg() {
					vs = append(vs, op)
				}
			}
			for _, op := range inst.Uses {
				if op.IsVReg() {
					vs = append(vs, op)
				}
			}
		}
	}
	return vs
}
