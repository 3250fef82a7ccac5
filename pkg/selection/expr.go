package selection

import (
	"math"

	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

func floatBits(v float64) uint32 { return math.Float32bits(float32(v)) }

// def returns a fresh occurrence of the register an IR value is defined in
func (ctx *SelectionContext) def(op *ir.Operand) *mach.Operand {
	if !op.IsTemp() {
		ir.FailFunc(passName, ctx.src, "definition of non-temporary %s", op)
	}
	return mach.NewVReg(op.Sym.Label, op.Type().IsFloat())
}

// reg returns an occurrence of a register holding the value of op,
// emitting the code that materializes constants and addresses
func (ctx *SelectionContext) reg(op *ir.Operand) *mach.Operand {
	switch {
	case op.IsConst():
		if op.Type().IsFloat() {
			return ctx.floatConst(op.FloatBits())
		}
		return ctx.intConst(op.IntValue())
	case op.IsParam():
		return ctx.params[op].Copy()
	case op.IsGlobal():
		v := ctx.fn.NewVReg(false)
		ctx.emit(mach.OpLoad, defs(v), uses(mach.NewLabel(op.Sym.Name)))
		return v.Copy()
	}
	if disp, ok := ctx.slots[op]; ok {
		return ctx.frameAddress(disp)
	}
	return mach.NewVReg(op.Sym.Label, op.Type().IsFloat())
}

// operand2 returns an immediate when op is an encodable integer constant
// and a register otherwise
func (ctx *SelectionContext) operand2(op *ir.Operand) *mach.Operand {
	if op.IsConst() && !op.Type().IsFloat() && mach.IsLegalImm(op.IntValue()) {
		return mach.NewImm(op.IntValue())
	}
	return ctx.reg(op)
}

func (ctx *SelectionContext) intConst(v int64) *mach.Operand {
	r := ctx.fn.NewVReg(false)
	ctx.emit(mach.OpLoad, defs(r), uses(mach.NewImm(v)))
	return r.Copy()
}

// floatConst goes through a core register: VFP has no general immediate move
func (ctx *SelectionContext) floatConst(bits uint32) *mach.Operand {
	c := ctx.intConst(int64(bits))
	f := ctx.fn.NewVReg(true)
	ctx.emit(mach.OpMov, defs(f), uses(c))
	return f.Copy()
}

// frameAddress computes fp - disp
func (ctx *SelectionContext) frameAddress(disp int) *mach.Operand {
	v := ctx.fn.NewVReg(false)
	var off *mach.Operand
	if mach.IsLegalImm(int64(disp)) {
		off = mach.NewImm(int64(disp))
	} else {
		off = ctx.intConst(int64(disp))
	}
	ctx.emit(mach.OpSub, defs(v), uses(mach.NewReg(mach.FP, false), off))
	return v.Copy()
}

var arithOps = map[ir.BinOp]mach.Op{
	ir.Add: mach.OpAdd,
	ir.Sub: mach.OpSub,
	ir.Mul: mach.OpMul,
	ir.Div: mach.OpDiv,
}

func (ctx *SelectionContext) selectBinary(b *ir.Binary) {
	d := ctx.def(b.Dst())
	x := ctx.reg(b.X())
	switch {
	case d.Float:
		if b.Op == ir.Mod {
			ir.Fail(passName, b, "float remainder")
		}
		ctx.emit(arithOps[b.Op], defs(d), uses(x, ctx.reg(b.Y())))
	case b.Op == ir.Add || b.Op == ir.Sub:
		ctx.emit(arithOps[b.Op], defs(d), uses(x, ctx.operand2(b.Y())))
	case b.Op == ir.Mod:
		// x - (x / y) * y
		y := ctx.reg(b.Y())
		q := ctx.fn.NewVReg(false)
		ctx.emit(mach.OpDiv, defs(q), uses(x, y))
		p := ctx.fn.NewVReg(false)
		ctx.emit(mach.OpMul, defs(p), uses(q.Copy(), y.Copy()))
		ctx.emit(mach.OpSub, defs(d), uses(x.Copy(), p.Copy()))
	default:
		ctx.emit(arithOps[b.Op], defs(d), uses(x, ctx.reg(b.Y())))
	}
}

var conds = [...]mach.Cond{
	ir.EQ: mach.EQ,
	ir.NE: mach.NE,
	ir.LT: mach.LT,
	ir.LE: mach.LE,
	ir.GT: mach.GT,
	ir.GE: mach.GE,
}

// compare sets the flags for c
func (ctx *SelectionContext) compare(c *ir.Cmp) mach.Cond {
	x := ctx.reg(c.X())
	var y *mach.Operand
	if x.Float {
		y = ctx.reg(c.Y())
	} else {
		y = ctx.operand2(c.Y())
	}
	ctx.emit(mach.OpCmp, nil, uses(x, y))
	return conds[c.Cond]
}

// selectCmp materializes 0 or 1 only when some use is not the conditional
// branch of the same block; that branch compares again itself.
func (ctx *SelectionContext) selectCmp(c *ir.Cmp) {
	if !needsValue(c) {
		return
	}
	cond := ctx.compare(c)
	d := ctx.def(c.Dst())
	ctx.emit(mach.OpMov, defs(d), uses(mach.NewImm(0)))
	ctx.emitCond(mach.OpMov, cond, defs(d.Copy()), uses(mach.NewImm(1), d.Copy()))
}

func needsValue(c *ir.Cmp) bool {
	for _, u := range c.Dst().Uses() {
		if br, ok := u.(*ir.CondBr); !ok || br.Parent() != c.Parent() {
			return true
		}
	}
	return false
}

func (ctx *SelectionContext) selectCast(c *ir.Cast) {
	d := ctx.def(c.Dst())
	x := ctx.reg(c.Src())
	t := ctx.fn.NewVReg(true)
	switch c.Op {
	case ir.IntToFloat:
		ctx.emit(mach.OpMov, defs(t), uses(x))
		ctx.emit(mach.OpCvtIF, defs(d), uses(t.Copy()))
	case ir.FloatToInt:
		ctx.emit(mach.OpCvtFI, defs(t), uses(x))
		ctx.emit(mach.OpMov, defs(d), uses(t.Copy()))
	}
}

func (ctx *SelectionContext) selectMove(m *ir.Move) {
	d := ctx.def(m.Dst())
	if d.Float {
		ctx.emit(mach.OpMov, defs(d), uses(ctx.reg(m.Src())))
		return
	}
	ctx.emit(mach.OpMov, defs(d), uses(ctx.operand2(m.Src())))
}
