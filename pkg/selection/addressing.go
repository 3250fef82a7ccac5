package selection

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

// address selects the addressing operands for a memory access through addr.
// A frame slot whose displacement is encodable is accessed as [fp, #-disp];
// everything else goes through a base register.
func (ctx *SelectionContext) address(addr *ir.Operand, float bool) []*mach.Operand {
	if disp, ok := ctx.slots[addr]; ok && mach.IsLegalOffset(int64(-disp), float) {
		return uses(mach.NewReg(mach.FP, false), mach.NewImm(int64(-disp)))
	}
	return uses(ctx.reg(addr))
}

func (ctx *SelectionContext) selectLoad(l *ir.Load) {
	d := ctx.def(l.Dst())
	ctx.emit(mach.OpLoad, defs(d), ctx.address(l.Addr(), d.Float))
}

func (ctx *SelectionContext) selectStore(s *ir.Store) {
	v := ctx.reg(s.Value())
	ctx.emit(mach.OpStore, nil, append(uses(v), ctx.address(s.Addr(), v.Float)...))
}

// selectGep adds the scaled indices to the base address. Constant indices
// fold into one offset added last.
func (ctx *SelectionContext) selectGep(g *ir.Gep) {
	d := ctx.def(g.Dst())
	addr := ctx.reg(g.Base())
	t := g.Base().Type().Elem
	var offset int64
	for i, idx := range g.Indices() {
		if i > 0 {
			t = t.Elem
		}
		size := int64(t.Size())
		if idx.IsConst() {
			offset += idx.IntValue() * size
			continue
		}
		scaled := ctx.fn.NewVReg(false)
		ctx.emit(mach.OpMul, defs(scaled), uses(ctx.reg(idx), ctx.intConst(size)))
		next := ctx.fn.NewVReg(false)
		ctx.emit(mach.OpAdd, defs(next), uses(addr, scaled.Copy()))
		addr = next.Copy()
	}
	switch {
	case offset == 0:
		ctx.emit(mach.OpMov, defs(d), uses(addr))
	case mach.IsLegalImm(offset):
		ctx.emit(mach.OpAdd, defs(d), uses(addr, mach.NewImm(offset)))
	case mach.IsLegalImm(-offset):
		ctx.emit(mach.OpSub, defs(d), uses(addr, mach.NewImm(-offset)))
	default:
		ctx.emit(mach.OpAdd, defs(d), uses(addr, ctx.intConst(offset)))
	}
}
