package ir

// Builder appends instructions at an insertion point. It is the API a front
// end uses to construct functions; branches keep the CFG edges in sync.
type Builder struct {
	fn    *Function
	block *BasicBlock
}

// NewBuilder creates a builder positioned at the end of fn's entry block
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn, block: fn.Entry}
}

// Func returns the function being built
func (b *Builder) Func() *Function { return b.fn }

// Block returns the current insertion block
func (b *Builder) Block() *BasicBlock { return b.block }

// SetBlock moves the insertion point to the end of blk
func (b *Builder) SetBlock(blk *BasicBlock) { b.block = blk }

// NewBlock creates a block without moving the insertion point
func (b *Builder) NewBlock() *BasicBlock { return b.fn.NewBlock() }

func (b *Builder) emit(inst Instruction) {
	b.block.InsertBack(inst)
}

// Alloca reserves a slot for a local of type t in the entry block,
// after any allocas already there, and returns its address.
func (b *Builder) Alloca(name string, t *Type) *Operand {
	addr := b.fn.NewTemp(PointerTo(t))
	a := NewAlloca(addr, name)
	entry := b.fn.Entry
	var last Instruction
	for _, inst := range entry.Instructions() {
		if _, ok := inst.(*Alloca); !ok {
			break
		}
		last = inst
	}
	if last != nil {
		InsertAfter(a, last)
	} else {
		entry.InsertFront(a)
	}
	return addr
}

// Load reads from addr
func (b *Builder) Load(addr *Operand) *Operand {
	dst := b.fn.NewTemp(addr.Type().Elem)
	b.emit(NewLoad(dst, addr))
	return dst
}

// Store writes val to addr
func (b *Builder) Store(addr, val *Operand) {
	b.emit(NewStore(addr, val))
}

// Binary emits x op y
func (b *Builder) Binary(op BinOp, x, y *Operand) *Operand {
	dst := b.fn.NewTemp(x.Type())
	b.emit(NewBinary(op, dst, x, y))
	return dst
}

// Cmp emits the comparison x cond y
func (b *Builder) Cmp(cond Cond, x, y *Operand) *Operand {
	dst := b.fn.NewTemp(Bool)
	b.emit(NewCmp(cond, dst, x, y))
	return dst
}

// Zext widens a boolean to int
func (b *Builder) Zext(x *Operand) *Operand {
	dst := b.fn.NewTemp(Int)
	b.emit(NewZext(dst, x))
	return dst
}

// Cast converts between int and float
func (b *Builder) Cast(op CastOp, x *Operand) *Operand {
	t := Float
	if op == FloatToInt {
		t = Int
	}
	dst := b.fn.NewTemp(t)
	b.emit(NewCast(op, dst, x))
	return dst
}

// Call emits a call; it returns nil when ret is void
func (b *Builder) Call(callee string, ret *Type, args ...*Operand) *Operand {
	var dst *Operand
	if ret != nil && ret.Kind != KVoid {
		dst = b.fn.NewTemp(ret)
	}
	b.emit(NewCall(callee, ret, dst, args...))
	return dst
}

// Gep computes an element address. The first index steps over the base
// pointer, each further index descends one array level.
func (b *Builder) Gep(base *Operand, indices ...*Operand) *Operand {
	t := base.Type().Elem
	for i := 1; i < len(indices); i++ {
		t = t.Elem
	}
	dst := b.fn.NewTemp(PointerTo(t))
	b.emit(NewGep(dst, base, indices...))
	return dst
}

// Br emits an unconditional branch and links the edge
func (b *Builder) Br(target *BasicBlock) {
	b.emit(NewBr(target))
	Link(b.block, target)
}

// CondBr emits a conditional branch and links both edges
func (b *Builder) CondBr(cond *Operand, t, f *BasicBlock) {
	b.emit(NewCondBr(cond, t, f))
	Link(b.block, t)
	Link(b.block, f)
}

// Ret emits a return; val is nil for void
func (b *Builder) Ret(val *Operand) {
	b.emit(NewRet(val))
}
