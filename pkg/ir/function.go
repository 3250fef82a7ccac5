package ir

import (
	"container/list"
	"slices"
)

// Unit is a whole compiled module
type Unit struct {
	Functions []*Function
	Globals   []*Symbol
	label     int
}

// NewUnit creates an empty unit
func NewUnit() *Unit {
	return &Unit{}
}

// NextLabel issues the next number shared by temporaries and blocks
func (u *Unit) NextLabel() int {
	u.label++
	return u.label
}

// AddGlobal declares a global variable of type t
func (u *Unit) AddGlobal(name string, t *Type, init []float64) *Symbol {
	sym := &Symbol{Kind: Variable, Type: PointerTo(t), Name: name, Scope: Global, Init: init}
	u.Globals = append(u.Globals, sym)
	return sym
}

// Global looks up a global variable by name
func (u *Unit) Global(name string) *Symbol {
	for _, g := range u.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Function looks up a function by name
func (u *Unit) Function(name string) *Function {
	for _, f := range u.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Function is an IR function: a CFG of blocks rooted at Entry.
// The function owns its blocks and an arena of every operand it created.
type Function struct {
	Name     string
	RetType  *Type
	Params   []*Operand
	Entry    *BasicBlock
	blocks   []*BasicBlock
	unit     *Unit
	operands []*Operand
	nextID   int
}

// NewFunction adds a function with an empty entry block to the unit
func (u *Unit) NewFunction(name string, ret *Type) *Function {
	fn := &Function{Name: name, RetType: ret, unit: u}
	fn.Entry = fn.NewBlock()
	u.Functions = append(u.Functions, fn)
	return fn
}

// Unit returns the owning unit
func (f *Function) Unit() *Unit { return f.unit }

// NewBlock appends a new empty block
func (f *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{No: f.unit.NextLabel(), fn: f, insts: list.New()}
	f.blocks = append(f.blocks, b)
	return b
}

// Blocks returns the blocks in creation order
func (f *Function) Blocks() []*BasicBlock { return slices.Clone(f.blocks) }

// NumBlocks returns the number of blocks
func (f *Function) NumBlocks() int { return len(f.blocks) }

// RemoveBlock deletes b, its instructions and its CFG edges
func (f *Function) RemoveBlock(b *BasicBlock) {
	for _, s := range b.Succs() {
		Unlink(b, s)
	}
	for _, p := range b.Preds() {
		Unlink(p, b)
	}
	for _, inst := range b.Instructions() {
		b.Remove(inst)
	}
	f.blocks = slices.DeleteFunc(f.blocks, func(x *BasicBlock) bool { return x == b })
}

func (f *Function) newOperand(sym *Symbol) *Operand {
	f.nextID++
	op := &Operand{id: f.nextID, Sym: sym}
	f.operands = append(f.operands, op)
	return op
}

// NewTemp creates a fresh temporary of type t
func (f *Function) NewTemp(t *Type) *Operand {
	return f.newOperand(&Symbol{Kind: Temporary, Type: t, Label: f.unit.NextLabel()})
}

// Const creates a constant operand
func (f *Function) Const(t *Type, v float64) *Operand {
	return f.newOperand(&Symbol{Kind: Constant, Type: t, Value: v})
}

// Zero creates the zero constant of t
func (f *Function) Zero(t *Type) *Operand { return f.Const(t, 0) }

// AddParam appends a parameter
func (f *Function) AddParam(name string, t *Type) *Operand {
	op := f.newOperand(&Symbol{Kind: Variable, Type: t, Name: name, Scope: Param, ParamNo: len(f.Params)})
	f.Params = append(f.Params, op)
	return op
}

// GlobalRef creates an operand naming the address of a global
func (f *Function) GlobalRef(sym *Symbol) *Operand {
	return f.newOperand(sym)
}

// Operands returns the live contents of the operand arena
func (f *Function) Operands() []*Operand { return slices.Clone(f.operands) }

// Sweep drops every arena operand that no instruction or parameter
// references any more and returns how many were collected.
func (f *Function) Sweep() int {
	live := make(map[*Operand]bool)
	for _, p := range f.Params {
		live[p] = true
	}
	for _, b := range f.blocks {
		for e := b.insts.Front(); e != nil; e = e.Next() {
			inst := e.Value.(Instruction)
			for _, d := range inst.Defs() {
				live[d] = true
			}
			for _, u := range inst.Uses() {
				live[u] = true
			}
			if phi, ok := inst.(*Phi); ok {
				live[phi.addr] = true
			}
		}
	}
	before := len(f.operands)
	f.operands = slices.DeleteFunc(f.operands, func(op *Operand) bool {
		if live[op] {
			return false
		}
		op.def = nil
		op.uses = nil
		return true
	})
	return before - len(f.operands)
}

// NumInstructions counts the instructions in all blocks
func (f *Function) NumInstructions() int {
	n := 0
	for _, b := range f.blocks {
		n += b.Len()
	}
	return n
}
