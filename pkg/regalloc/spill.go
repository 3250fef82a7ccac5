package regalloc

import (
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

// insertSpillCode gives every spilled interval a frame slot, reloads it
// before each use and stores it after each def. The reloads keep the
// register number, so the next round sees short intervals in its place.
func insertSpillCode(fn *mach.Function, spilled []*Interval) {
	for _, iv := range spilled {
		disp := int64(fn.Frame.AllocSlot(4))
		for u := range iv.Uses {
			inst := u.Parent()
			b := inst.Parent()
			for _, pre := range slotAccess(fn, mach.OpLoad, u.Copy(), -disp) {
				b.InsertBefore(inst, pre)
			}
		}
		for _, d := range iv.Defs {
			pos := d.Parent()
			b := pos.Parent()
			for _, post := range slotAccess(fn, mach.OpStore, d.Copy(), -disp) {
				b.InsertAfter(pos, post)
				pos = post
			}
		}
	}
}

// slotAccess returns the instructions that load or store reg at fp+off.
// An offset the access cannot encode is first loaded into a register.
func slotAccess(fn *mach.Function, op mach.Op, reg *mach.Operand, off int64) []*mach.Instruction {
	fp := mach.NewReg(mach.FP, false)
	var code []*mach.Instruction
	var addr []*mach.Operand
	switch {
	case mach.IsLegalOffset(off, reg.Float):
		addr = []*mach.Operand{fp, mach.NewImm(off)}
	case !reg.Float:
		t := fn.NewVReg(false)
		code = append(code, mach.NewInstruction(mach.OpLoad, mach.Always, []*mach.Operand{t}, []*mach.Operand{mach.NewImm(off)}))
		addr = []*mach.Operand{fp, t.Copy()}
	default:
		// VFP loads take no register offset
		t := fn.NewVReg(false)
		code = append(code, mach.NewInstruction(mach.OpLoad, mach.Always, []*mach.Operand{t}, []*mach.Operand{mach.NewImm(off)}))
		a := fn.NewVReg(false)
		code = append(code, mach.NewInstruction(mach.OpAdd, mach.Always, []*mach.Operand{a}, []*mach.Operand{fp, t.Copy()}))
		addr = []*mach.Operand{a.Copy()}
	}
	if op == mach.OpLoad {
		return append(code, mach.NewInstruction(mach.OpLoad, mach.Always, []*mach.Operand{reg}, addr))
	}
	return append(code, mach.NewInstruction(mach.OpStore, mach.Always, nil, append([]*mach.Operand{reg}, addr...)))
}
