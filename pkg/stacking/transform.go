package stacking

import (
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

const passName = "stacking"

// Finalize lays out the frame of an allocated function, inserts its
// prologue and epilogues and resolves incoming argument offsets
func Finalize(fn *mach.Function) *FrameLayout {
	t := &transformer{fn: fn, layout: ComputeLayout(fn)}
	t.transform()
	return t.layout
}

// FinalizeUnit finalizes every function of u
func FinalizeUnit(u *mach.Unit) {
	for _, fn := range u.Functions {
		Finalize(fn)
	}
}

// transformer holds state while one function is finalized
type transformer struct {
	fn     *mach.Function
	layout *FrameLayout
}

func (t *transformer) transform() {
	if len(t.fn.Blocks) == 0 || len(t.fn.Entry().Insts) == 0 {
		mach.Fail(passName, t.fn, "function has no entry code")
	}
	t.fn.Frame.Size = t.layout.LocalSize
	t.fn.SavedRegs = FindUsedCalleeSaveRegs(t.fn)

	for _, b := range t.fn.Blocks {
		for _, inst := range b.Insts {
			t.relocate(inst)
		}
	}
	var rets []*mach.Instruction
	for _, b := range t.fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == mach.OpRet {
				rets = append(rets, inst)
			}
		}
	}
	for _, ret := range rets {
		for _, e := range GenerateEpilogue(t.layout) {
			ret.Parent().InsertBefore(ret, e)
		}
	}
	entry := t.fn.Entry()
	first := entry.Insts[0]
	for _, inst := range GeneratePrologue(t.layout) {
		entry.InsertBefore(first, inst)
	}
}

// relocate moves the incoming argument offsets past the save area
func (t *transformer) relocate(inst *mach.Instruction) {
	for _, u := range inst.Uses {
		if u.IsImm() && u.Incoming {
			u.Val = t.layout.IncomingSlotOffset(u.Val)
			u.Incoming = false
		}
	}
}
