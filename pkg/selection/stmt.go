package selection

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

func (ctx *SelectionContext) branch(cond mach.Cond, target *ir.BasicBlock) {
	ctx.emitCond(mach.OpBranch, cond, nil, uses(mach.NewLabel(ctx.blocks[target].Label())))
}

// selectCondBr compares again when the condition comes from a Cmp of the
// same block, and tests the boolean against zero otherwise
func (ctx *SelectionContext) selectCondBr(br *ir.CondBr) {
	var cond mach.Cond
	if c, ok := br.Cond().Def().(*ir.Cmp); ok && c.Parent() == br.Parent() {
		cond = ctx.compare(c)
	} else {
		ctx.emit(mach.OpCmp, nil, uses(ctx.reg(br.Cond()), mach.NewImm(0)))
		cond = mach.NE
	}
	ctx.branch(cond, br.True)
	ctx.branch(mach.Always, br.False)
}

func (ctx *SelectionContext) selectRet(r *ir.Ret) {
	if v := r.Value(); v != nil {
		float := v.Type().IsFloat()
		var src *mach.Operand
		if float {
			src = ctx.reg(v)
		} else {
			src = ctx.operand2(v)
		}
		ctx.emit(mach.OpMov, defs(mach.NewReg(0, float)), uses(src))
	}
	ctx.emit(mach.OpRet, nil, nil)
}

// selectCall follows the AAPCS-VFP split: the first four arguments of each
// class go in r0-r3 and s0-s3, the rest in an 8-byte aligned area at sp.
func (ctx *SelectionContext) selectCall(c *ir.Call) {
	type regArg struct {
		reg *mach.Operand
		val *mach.Operand
	}
	var inRegs []regArg
	var onStack []*mach.Operand
	core, float := 0, 0
	for _, a := range c.Args() {
		v := ctx.reg(a)
		switch {
		case v.Float && float < numArgRegs:
			inRegs = append(inRegs, regArg{mach.NewReg(float, true), v})
			float++
		case !v.Float && core < numArgRegs:
			inRegs = append(inRegs, regArg{mach.NewReg(core, false), v})
			core++
		default:
			onStack = append(onStack, v)
		}
	}

	area := int64((4*len(onStack) + 7) &^ 7)
	if area > 0 {
		ctx.adjustSP(mach.OpSub, area)
		for k, v := range onStack {
			ctx.emit(mach.OpStore, nil, uses(v, mach.NewReg(mach.SP, false), mach.NewImm(int64(4*k))))
		}
	}
	for _, a := range inRegs {
		ctx.emit(mach.OpMov, defs(a.reg), uses(a.val))
	}
	ctx.emit(mach.OpCall, nil, uses(mach.NewLabel(c.Callee)))
	if area > 0 {
		ctx.adjustSP(mach.OpAdd, area)
	}
	if d := c.Dst(); d != nil {
		dst := ctx.def(d)
		ctx.emit(mach.OpMov, defs(dst), uses(mach.NewReg(0, dst.Float)))
	}
}

func (ctx *SelectionContext) adjustSP(op mach.Op, n int64) {
	var amount *mach.Operand
	if mach.IsLegalImm(n) {
		amount = mach.NewImm(n)
	} else {
		amount = ctx.intConst(n)
	}
	ctx.emit(op, defs(mach.NewReg(mach.SP, false)), uses(mach.NewReg(mach.SP, false), amount))
}
