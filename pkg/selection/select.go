// Package selection implements instruction selection: IR → mach.
//
// Each IR block becomes one machine block with the same number and the same
// edges. IR temporaries keep their number as virtual registers, so a value
// copied by PHI elimination stays one register across blocks. Fresh virtual
// registers issued during selection are numbered after every IR label.
// The input must be free of PHI nodes.
package selection

import (
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

const passName = "selection"

// Argument registers per class
const numArgRegs = 4

// SelectionContext holds the state for selecting one function
type SelectionContext struct {
	fn     *mach.Function
	src    *ir.Function
	block  *mach.Block
	blocks map[*ir.BasicBlock]*mach.Block
	params map[*ir.Operand]*mach.Operand
	slots  map[*ir.Operand]int // alloca address -> displacement below fp
}

// NewSelectionContext creates a context that fills fn from src
func NewSelectionContext(fn *mach.Function, src *ir.Function) *SelectionContext {
	return &SelectionContext{
		fn:     fn,
		src:    src,
		blocks: make(map[*ir.BasicBlock]*mach.Block),
		params: make(map[*ir.Operand]*mach.Operand),
		slots:  make(map[*ir.Operand]int),
	}
}

// SelectUnit lowers every defined function and global of u
func SelectUnit(u *ir.Unit) *mach.Unit {
	mu := mach.NewUnit(u.NextLabel())
	for _, g := range u.Globals {
		mu.Globals = append(mu.Globals, selectGlobal(g))
	}
	for _, fn := range u.Functions {
		if fn.Entry.Empty() {
			continue
		}
		SelectFunction(mu, fn)
	}
	return mu
}

func selectGlobal(g *ir.Symbol) mach.Global {
	t := g.Type.Elem
	elem := t
	for elem.IsArray() {
		elem = elem.Elem
	}
	mg := mach.Global{Name: g.Name, Size: t.Size(), Float: elem.IsFloat()}
	for _, v := range g.Init {
		if mg.Float {
			mg.Init = append(mg.Init, int64(floatBits(v)))
		} else {
			mg.Init = append(mg.Init, int64(v))
		}
	}
	return mg
}

// SelectFunction lowers fn into a new function of mu
func SelectFunction(mu *mach.Unit, fn *ir.Function) *mach.Function {
	ctx := NewSelectionContext(mu.NewFunction(fn.Name), fn)
	blocks := fn.Blocks()
	for _, b := range blocks {
		ctx.blocks[b] = ctx.fn.NewBlock(b.No)
	}
	for _, b := range blocks {
		for _, s := range b.Succs() {
			mach.Link(ctx.blocks[b], ctx.blocks[s])
		}
	}

	ctx.block = ctx.blocks[fn.Entry]
	ctx.copyParams()
	for _, b := range blocks {
		ctx.block = ctx.blocks[b]
		for _, inst := range b.Instructions() {
			ctx.SelectInstruction(inst)
		}
	}
	return ctx.fn
}

// copyParams moves every parameter into a virtual register at the start
// of the entry block. The first four of each class arrive in r0-r3 and
// s0-s3; the rest are read from the caller's argument area.
func (ctx *SelectionContext) copyParams() {
	core, float, stack := 0, 0, 0
	for _, p := range ctx.src.Params {
		isFloat := p.Type().IsFloat()
		v := ctx.fn.NewVReg(isFloat)
		ctx.params[p] = v
		switch {
		case isFloat && float < numArgRegs:
			ctx.emit(mach.OpMov, defs(v.Copy()), uses(mach.NewReg(float, true)))
			float++
		case !isFloat && core < numArgRegs:
			ctx.emit(mach.OpMov, defs(v.Copy()), uses(mach.NewReg(core, false)))
			core++
		default:
			off := mach.NewImm(int64(4 * stack))
			off.Incoming = true
			ctx.emit(mach.OpLoad, defs(v.Copy()), uses(mach.NewReg(mach.FP, false), off))
			stack++
		}
	}
}

// SelectInstruction lowers one IR instruction at the end of the current block
func (ctx *SelectionContext) SelectInstruction(inst ir.Instruction) {
	switch i := inst.(type) {
	case *ir.Alloca:
		ctx.slots[i.Addr()] = ctx.fn.Frame.AllocSlot(i.Allocated().Size())
	case *ir.Load:
		ctx.selectLoad(i)
	case *ir.Store:
		ctx.selectStore(i)
	case *ir.Gep:
		ctx.selectGep(i)
	case *ir.Binary:
		ctx.selectBinary(i)
	case *ir.Cmp:
		ctx.selectCmp(i)
	case *ir.Zext:
		ctx.emit(mach.OpZext, defs(ctx.def(i.Dst())), uses(ctx.reg(i.Src())))
	case *ir.Cast:
		ctx.selectCast(i)
	case *ir.Move:
		ctx.selectMove(i)
	case *ir.Call:
		ctx.selectCall(i)
	case *ir.Br:
		ctx.branch(mach.Always, i.Target)
	case *ir.CondBr:
		ctx.selectCondBr(i)
	case *ir.Ret:
		ctx.selectRet(i)
	case *ir.Phi:
		ir.Fail(passName, inst, "phi reaches instruction selection")
	default:
		ir.Fail(passName, inst, "unexpected instruction %T", inst)
	}
}

func (ctx *SelectionContext) emit(op mach.Op, d, u []*mach.Operand) *mach.Instruction {
	return ctx.emitCond(op, mach.Always, d, u)
}

func (ctx *SelectionContext) emitCond(op mach.Op, cond mach.Cond, d, u []*mach.Operand) *mach.Instruction {
	inst := mach.NewInstruction(op, cond, d, u)
	ctx.block.Append(inst)
	return inst
}

func defs(ops ...*mach.Operand) []*mach.Operand { return ops }
func uses(ops ...*mach.Operand) []*mach.Operand { return ops }
