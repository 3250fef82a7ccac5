// Package mach defines the machine-level representation produced by
// instruction selection and consumed by register allocation.
// Instructions carry explicit def and use operand lists; operands are
// immediates, virtual registers, physical registers or labels. After
// allocation no virtual register remains.
package mach

import (
	"fmt"
	"slices"

	"github.com/raymyers/ralph-ssa/pkg/sets"
)

// Register numbers with a fixed role
const (
	FP = 11
	SP = 13
	LR = 14
	PC = 15
)

// OperandKind distinguishes the operand forms
type OperandKind int

const (
	Imm OperandKind = iota
	VReg
	Reg
	Label
)

// Operand is one operand occurrence. Each occurrence is a distinct object
// owned by one instruction, so liveness and allocation can track
// individual uses.
type Operand struct {
	Kind  OperandKind
	Float bool
	Val   int64  // immediate value; the raw IEEE bits for a float immediate
	N     int    // register number
	Name  string // label
	// Incoming marks an immediate that is an offset into the caller's
	// argument area; stacking adds the size of the saved register area.
	Incoming bool
	parent   *Instruction
}

// NewImm creates an integer immediate
func NewImm(v int64) *Operand { return &Operand{Kind: Imm, Val: v} }

// NewVReg creates a virtual register
func NewVReg(n int, float bool) *Operand { return &Operand{Kind: VReg, N: n, Float: float} }

// NewReg creates a physical register
func NewReg(n int, float bool) *Operand { return &Operand{Kind: Reg, N: n, Float: float} }

// NewLabel creates a symbolic address
func NewLabel(name string) *Operand { return &Operand{Kind: Label, Name: name} }

func (o *Operand) IsImm() bool   { return o.Kind == Imm }
func (o *Operand) IsVReg() bool  { return o.Kind == VReg }
func (o *Operand) IsReg() bool   { return o.Kind == Reg }
func (o *Operand) IsLabel() bool { return o.Kind == Label }

// Parent returns the instruction holding this occurrence
func (o *Operand) Parent() *Instruction { return o.parent }

// Copy returns a new occurrence of the same value
func (o *Operand) Copy() *Operand {
	c := *o
	c.parent = nil
	return &c
}

// SetReg turns the operand into physical register n
func (o *Operand) SetReg(n int) {
	o.Kind = Reg
	o.N = n
}

// Key identifies the value an operand names
type Key struct {
	Kind  OperandKind
	Float bool
	Val   int64
	N     int
	Name  string
}

// Key returns the identity of the value; occurrences of the same value
// have equal keys
func (o *Operand) Key() Key {
	switch o.Kind {
	case Imm:
		return Key{Kind: Imm, Val: o.Val}
	case Label:
		return Key{Kind: Label, Name: o.Name}
	case VReg:
		return Key{Kind: VReg, N: o.N}
	}
	return Key{Kind: Reg, N: o.N, Float: o.Float}
}

// Equal reports whether two operands name the same value
func (o *Operand) Equal(x *Operand) bool { return o.Key() == x.Key() }

func (o *Operand) String() string {
	switch o.Kind {
	case Imm:
		return fmt.Sprintf("#%d", o.Val)
	case VReg:
		return fmt.Sprintf("v%d", o.N)
	case Reg:
		return RegName(o.N, o.Float)
	case Label:
		return o.Name
	}
	return "?"
}

// RegName returns the assembler name of a physical register
func RegName(n int, float bool) string {
	if float {
		return fmt.Sprintf("s%d", n)
	}
	switch n {
	case FP:
		return "fp"
	case SP:
		return "sp"
	case LR:
		return "lr"
	case PC:
		return "pc"
	}
	return fmt.Sprintf("r%d", n)
}

// Op is a machine opcode. The assembler mnemonic also depends on the
// float flag of the operands.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMov
	OpLoad
	OpStore
	OpCmp
	OpZext
	OpCvtIF // int to float, both operands in float registers
	OpCvtFI // float to int, both operands in float registers
	OpBranch
	OpCall
	OpRet
	OpPush
	OpPop
)

// Cond is an execution condition
type Cond int

const (
	Always Cond = iota
	EQ
	NE
	LT
	LE
	GT
	GE
)

var condNames = [...]string{"", "eq", "ne", "lt", "le", "gt", "ge"}

func (c Cond) String() string { return condNames[c] }

// Negate returns the opposite condition
func (c Cond) Negate() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	case GE:
		return LT
	}
	return c
}

// Instruction is one machine instruction
type Instruction struct {
	Op     Op
	Cond   Cond
	Defs   []*Operand
	Uses   []*Operand
	No     int // position, assigned by the register allocator
	parent *Block
}

// NewInstruction creates an instruction and takes ownership of its operands
func NewInstruction(op Op, cond Cond, defs, uses []*Operand) *Instruction {
	inst := &Instruction{Op: op, Cond: cond, Defs: defs, Uses: uses}
	for _, d := range defs {
		d.parent = inst
	}
	for _, u := range uses {
		u.parent = inst
	}
	return inst
}

// Parent returns the block holding the instruction
func (i *Instruction) Parent() *Block { return i.parent }

// SetUse replaces the k-th use
func (i *Instruction) SetUse(k int, op *Operand) {
	op.parent = i
	i.Uses[k] = op
}

// Predicated reports whether the instruction's defs only happen when its
// condition holds. Such a def does not end the previous value.
func (i *Instruction) Predicated() bool {
	return i.Cond != Always && i.Op != OpBranch
}

// IsTerminator reports whether the instruction ends a block
func (i *Instruction) IsTerminator() bool {
	return i.Op == OpBranch || i.Op == OpRet
}

// Block is a machine basic block. It corresponds one-to-one with an IR block
// and keeps its number.
type Block struct {
	No      int
	Insts   []*Instruction
	Preds   []*Block
	Succs   []*Block
	LiveIn  sets.Set[*Operand]
	LiveOut sets.Set[*Operand]
	fn      *Function
}

// Label returns the assembler label of the block
func (b *Block) Label() string { return fmt.Sprintf(".L%d", b.No) }

// Func returns the owning function
func (b *Block) Func() *Function { return b.fn }

// Append adds inst at the end of the block
func (b *Block) Append(inst *Instruction) {
	inst.parent = b
	b.Insts = append(b.Insts, inst)
}

// Index returns the position of inst in the block, or -1
func (b *Block) Index(inst *Instruction) int {
	return slices.Index(b.Insts, inst)
}

// InsertBefore places inst immediately before pos
func (b *Block) InsertBefore(pos, inst *Instruction) {
	k := b.Index(pos)
	if k < 0 {
		panic("mach: InsertBefore position not in block")
	}
	inst.parent = b
	b.Insts = slices.Insert(b.Insts, k, inst)
}

// InsertAfter places inst immediately after pos
func (b *Block) InsertAfter(pos, inst *Instruction) {
	k := b.Index(pos)
	if k < 0 {
		panic("mach: InsertAfter position not in block")
	}
	inst.parent = b
	b.Insts = slices.Insert(b.Insts, k+1, inst)
}

// Link adds the CFG edge from -> to
func Link(from, to *Block) {
	if !slices.Contains(from.Succs, to) {
		from.Succs = append(from.Succs, to)
	}
	if !slices.Contains(to.Preds, from) {
		to.Preds = append(to.Preds, from)
	}
}

// Frame tracks the local and spill area below the frame pointer
type Frame struct {
	Size int
}

// AllocSlot reserves size bytes, rounded up to a word, and returns the
// displacement of the slot below the frame pointer
func (f *Frame) AllocSlot(size int) int {
	f.Size += (size + 3) &^ 3
	return f.Size
}

// SavedReg is a callee-saved register the function writes
type SavedReg struct {
	N     int
	Float bool
}

// Function is a machine function
type Function struct {
	Name      string
	Blocks    []*Block
	Frame     Frame
	SavedRegs []SavedReg // sorted, set by stacking
	used      sets.Set[SavedReg]
	unit      *Unit
}

// NewBlock appends a block with the given number
func (f *Function) NewBlock(no int) *Block {
	b := &Block{No: no, fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the first block
func (f *Function) Entry() *Block { return f.Blocks[0] }

// Unit returns the owning unit
func (f *Function) Unit() *Unit { return f.unit }

// NewVReg issues a fresh virtual register
func (f *Function) NewVReg(float bool) *Operand {
	return NewVReg(f.unit.NextLabel(), float)
}

// AddUsedReg records that the allocator assigned register n
func (f *Function) AddUsedReg(n int, float bool) {
	if f.used == nil {
		f.used = sets.New[SavedReg]()
	}
	f.used.Add(SavedReg{n, float})
}

// UsedRegs returns the registers recorded by AddUsedReg, core registers
// first, each class in ascending order
func (f *Function) UsedRegs() []SavedReg {
	return f.used.Sorted(compareRegs)
}

func compareRegs(a, b SavedReg) int {
	if a.Float != b.Float {
		if !a.Float {
			return -1
		}
		return 1
	}
	return a.N - b.N
}

// NumInstructions counts the instructions of all blocks
func (f *Function) NumInstructions() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Insts)
	}
	return n
}

// Global is a global variable's storage: one word per initializer
type Global struct {
	Name  string
	Size  int
	Float bool
	Init  []int64 // word values; float initializers hold IEEE bits
}

// Unit is a whole machine program
type Unit struct {
	Functions []*Function
	Globals   []Global
	label     int
}

// NewUnit creates a unit whose virtual register numbers start after first
func NewUnit(first int) *Unit {
	return &Unit{label: first}
}

// NextLabel issues the next virtual register number
func (u *Unit) NextLabel() int {
	u.label++
	return u.label
}

// NewFunction adds an empty function
func (u *Unit) NewFunction(name string) *Function {
	f := &Function{Name: name, unit: u}
	u.Functions = append(u.Functions, f)
	return f
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
