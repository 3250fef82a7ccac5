package stacking

import (
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

// scratch holds frame sizes that make no immediate. It is never allocated.
const scratch = 12

// GeneratePrologue generates the function prologue:
//  1. push the saved core registers with fp and lr
//  2. vpush the saved float registers
//  3. set up fp
//  4. allocate the frame
func GeneratePrologue(layout *FrameLayout) []*mach.Instruction {
	var prologue []*mach.Instruction
	prologue = append(prologue, mach.NewInstruction(mach.OpPush, mach.Always, nil, regList(layout.SavedCore, false)))
	if len(layout.SavedFloat) > 0 {
		prologue = append(prologue, mach.NewInstruction(mach.OpPush, mach.Always, nil, regList(layout.SavedFloat, true)))
	}
	prologue = append(prologue, mov(mach.FP, mach.SP))
	if layout.FrameSize > 0 {
		prologue = append(prologue, adjustSP(mach.OpSub, int64(layout.FrameSize))...)
	}
	return prologue
}

// GenerateEpilogue generates the code placed before each return. The
// frame is released through fp, then the registers are popped in reverse.
func GenerateEpilogue(layout *FrameLayout) []*mach.Instruction {
	epilogue := []*mach.Instruction{mov(mach.SP, mach.FP)}
	if len(layout.SavedFloat) > 0 {
		epilogue = append(epilogue, mach.NewInstruction(mach.OpPop, mach.Always, nil, regList(layout.SavedFloat, true)))
	}
	return append(epilogue, mach.NewInstruction(mach.OpPop, mach.Always, nil, regList(layout.SavedCore, false)))
}

// IsLeafFunction returns true if the function doesn't call other functions.
// Leaf functions keep lr in place and do not save it.
func IsLeafFunction(fn *mach.Function) bool {
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Op == mach.OpCall {
				return false
			}
		}
	}
	return true
}

func regList(regs []int, float bool) []*mach.Operand {
	ops := make([]*mach.Operand, len(regs))
	for i, r := range regs {
		ops[i] = mach.NewReg(r, float)
	}
	return ops
}

func mov(dst, src int) *mach.Instruction {
	return mach.NewInstruction(mach.OpMov, mach.Always,
		[]*mach.Operand{mach.NewReg(dst, false)}, []*mach.Operand{mach.NewReg(src, false)})
}

func adjustSP(op mach.Op, n int64) []*mach.Instruction {
	sp := func() *mach.Operand { return mach.NewReg(mach.SP, false) }
	if mach.IsLegalImm(n) {
		return []*mach.Instruction{mach.NewInstruction(op, mach.Always, []*mach.Operand{sp()}, []*mach.Operand{sp(), mach.NewImm(n)})}
	}
	ip := mach.NewReg(scratch, false)
	return []*mach.Instruction{
		mach.NewInstruction(mach.OpLoad, mach.Always, []*mach.Operand{ip}, []*mach.Operand{mach.NewImm(n)}),
		mach.NewInstruction(op, mach.Always, []*mach.Operand{sp()}, []*mach.Operand{sp(), ip.Copy()}),
	}
}
