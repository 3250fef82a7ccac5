package ir

import (
	"container/list"
	"slices"
)

// Instruction is the interface for IR instructions.
// The variants are the pointer types defined in this file.
type Instruction interface {
	Parent() *BasicBlock
	Defs() []*Operand
	Uses() []*Operand
	node() *instrNode
}

// instrNode is the state shared by every instruction variant
type instrNode struct {
	parent *BasicBlock
	elem   *list.Element
	defs   []*Operand
	uses   []*Operand
}

func (n *instrNode) node() *instrNode    { return n }
func (n *instrNode) Parent() *BasicBlock { return n.parent }
func (n *instrNode) Defs() []*Operand    { return n.defs }
func (n *instrNode) Uses() []*Operand    { return n.uses }

// init wires the def/use back-references for a new instruction
func (n *instrNode) init(self Instruction, defs []*Operand, uses []*Operand) {
	n.defs = defs
	n.uses = uses
	for _, d := range defs {
		d.SetDef(self)
	}
	for _, u := range uses {
		u.addUse(self)
	}
}

// setUse replaces the i-th use operand
func setUse(inst Instruction, i int, op *Operand) {
	n := inst.node()
	n.uses[i].removeUse(inst)
	n.uses[i] = op
	op.addUse(inst)
}

// Def returns the single defined operand of inst, or nil
func Def(inst Instruction) *Operand {
	if d := inst.Defs(); len(d) > 0 {
		return d[0]
	}
	return nil
}

// IsTerminator returns true for branches and returns
func IsTerminator(inst Instruction) bool {
	switch inst.(type) {
	case *Br, *CondBr, *Ret:
		return true
	}
	return false
}

// --- Memory ---

// Alloca reserves a frame slot; its def is the slot address
type Alloca struct {
	instrNode
	Var string // source-level variable name, for dumps
}

func NewAlloca(addr *Operand, name string) *Alloca {
	a := &Alloca{Var: name}
	a.init(a, []*Operand{addr}, nil)
	return a
}

func (a *Alloca) Addr() *Operand { return a.defs[0] }

// Allocated returns the type of the reserved storage
func (a *Alloca) Allocated() *Type { return a.defs[0].Type().Elem }

// Load reads the value at Addr
type Load struct{ instrNode }

func NewLoad(dst, addr *Operand) *Load {
	l := &Load{}
	l.init(l, []*Operand{dst}, []*Operand{addr})
	return l
}

func (l *Load) Dst() *Operand  { return l.defs[0] }
func (l *Load) Addr() *Operand { return l.uses[0] }

// Store writes Value to Addr
type Store struct{ instrNode }

func NewStore(addr, val *Operand) *Store {
	s := &Store{}
	s.init(s, nil, []*Operand{addr, val})
	return s
}

func (s *Store) Addr() *Operand  { return s.uses[0] }
func (s *Store) Value() *Operand { return s.uses[1] }

// Gep computes an element address from a base pointer and indices
type Gep struct{ instrNode }

func NewGep(dst, base *Operand, indices ...*Operand) *Gep {
	g := &Gep{}
	g.init(g, []*Operand{dst}, append([]*Operand{base}, indices...))
	return g
}

func (g *Gep) Dst() *Operand       { return g.defs[0] }
func (g *Gep) Base() *Operand      { return g.uses[0] }
func (g *Gep) Indices() []*Operand { return g.uses[1:] }

// --- Arithmetic ---

// BinOp is an arithmetic operator
type BinOp int

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
)

var binOpNames = [...]string{"add", "sub", "mul", "div", "mod"}

func (op BinOp) String() string { return binOpNames[op] }

// Binary computes Dst = X op Y
type Binary struct {
	instrNode
	Op BinOp
}

func NewBinary(op BinOp, dst, x, y *Operand) *Binary {
	b := &Binary{Op: op}
	b.init(b, []*Operand{dst}, []*Operand{x, y})
	return b
}

func (b *Binary) Dst() *Operand { return b.defs[0] }
func (b *Binary) X() *Operand   { return b.uses[0] }
func (b *Binary) Y() *Operand   { return b.uses[1] }

// Cond is a comparison predicate
type Cond int

const (
	EQ Cond = iota
	NE
	LT
	LE
	GT
	GE
)

var condNames = [...]string{"eq", "ne", "lt", "le", "gt", "ge"}

func (c Cond) String() string { return condNames[c] }

// Negate returns the complementary predicate
func (c Cond) Negate() Cond {
	return [...]Cond{NE, EQ, GE, GT, LE, LT}[c]
}

// Cmp computes the boolean Dst = X cond Y
type Cmp struct {
	instrNode
	Cond Cond
}

func NewCmp(cond Cond, dst, x, y *Operand) *Cmp {
	c := &Cmp{Cond: cond}
	c.init(c, []*Operand{dst}, []*Operand{x, y})
	return c
}

func (c *Cmp) Dst() *Operand { return c.defs[0] }
func (c *Cmp) X() *Operand   { return c.uses[0] }
func (c *Cmp) Y() *Operand   { return c.uses[1] }

// Zext widens a boolean to an integer
type Zext struct{ instrNode }

func NewZext(dst, src *Operand) *Zext {
	z := &Zext{}
	z.init(z, []*Operand{dst}, []*Operand{src})
	return z
}

func (z *Zext) Dst() *Operand { return z.defs[0] }
func (z *Zext) Src() *Operand { return z.uses[0] }

// CastOp selects an int/float conversion
type CastOp int

const (
	IntToFloat CastOp = iota
	FloatToInt
)

// Cast converts between int and float
type Cast struct {
	instrNode
	Op CastOp
}

func NewCast(op CastOp, dst, src *Operand) *Cast {
	c := &Cast{Op: op}
	c.init(c, []*Operand{dst}, []*Operand{src})
	return c
}

func (c *Cast) Dst() *Operand { return c.defs[0] }
func (c *Cast) Src() *Operand { return c.uses[0] }

// Move copies Src into Dst. It only appears after PHI elimination.
type Move struct{ instrNode }

func NewMove(dst, src *Operand) *Move {
	m := &Move{}
	m.init(m, []*Operand{dst}, []*Operand{src})
	return m
}

func (m *Move) Dst() *Operand { return m.defs[0] }
func (m *Move) Src() *Operand { return m.uses[0] }

// SetSrc replaces the copied operand
func (m *Move) SetSrc(op *Operand) { setUse(m, 0, op) }

// --- Calls ---

// Call invokes Callee; Dst is nil for void calls
type Call struct {
	instrNode
	Callee string
	Ret    *Type
}

func NewCall(callee string, ret *Type, dst *Operand, args ...*Operand) *Call {
	c := &Call{Callee: callee, Ret: ret}
	var defs []*Operand
	if dst != nil {
		defs = []*Operand{dst}
	}
	c.init(c, defs, args)
	return c
}

func (c *Call) Dst() *Operand    { return Def(c) }
func (c *Call) Args() []*Operand { return c.uses }

// --- Control flow ---

// Br jumps unconditionally to Target
type Br struct {
	instrNode
	Target *BasicBlock
}

func NewBr(target *BasicBlock) *Br {
	b := &Br{Target: target}
	b.init(b, nil, nil)
	return b
}

// CondBr jumps to True if Cond holds, else to False
type CondBr struct {
	instrNode
	True, False *BasicBlock
}

func NewCondBr(cond *Operand, t, f *BasicBlock) *CondBr {
	c := &CondBr{True: t, False: f}
	c.init(c, nil, []*Operand{cond})
	return c
}

func (c *CondBr) Cond() *Operand { return c.uses[0] }

// Retarget redirects every edge to old towards repl
func (c *CondBr) Retarget(old, repl *BasicBlock) {
	if c.True == old {
		c.True = repl
	}
	if c.False == old {
		c.False = repl
	}
}

// Ret returns from the function, with an optional value
type Ret struct{ instrNode }

func NewRet(val *Operand) *Ret {
	r := &Ret{}
	var uses []*Operand
	if val != nil {
		uses = []*Operand{val}
	}
	r.init(r, nil, uses)
	return r
}

// Value returns the returned operand, or nil
func (r *Ret) Value() *Operand {
	if len(r.uses) == 0 {
		return nil
	}
	return r.uses[0]
}

// Targets returns the branch destinations of a terminator
func Targets(inst Instruction) []*BasicBlock {
	switch t := inst.(type) {
	case *Br:
		return []*BasicBlock{t.Target}
	case *CondBr:
		return []*BasicBlock{t.True, t.False}
	}
	return nil
}

// Retarget rewrites the branch destinations of a terminator from old to repl
func Retarget(inst Instruction, old, repl *BasicBlock) {
	switch t := inst.(type) {
	case *Br:
		if t.Target == old {
			t.Target = repl
		}
	case *CondBr:
		t.Retarget(old, repl)
	}
}

// --- SSA ---

// Phi selects a value by incoming edge. Addr is the promoted slot the
// node stands for; the destination starts out as that address and is
// replaced with a fresh value of the pointee type during renaming.
type Phi struct {
	instrNode
	addr *Operand
	srcs map[*BasicBlock]*Operand
}

func NewPhi(addr *Operand) *Phi {
	p := &Phi{addr: addr, srcs: make(map[*BasicBlock]*Operand)}
	p.defs = []*Operand{addr}
	return p
}

func (p *Phi) Dst() *Operand  { return p.defs[0] }
func (p *Phi) Addr() *Operand { return p.addr }

// SetDst installs the real destination of the node
func (p *Phi) SetDst(dst *Operand) {
	p.defs[0] = dst
	dst.SetDef(p)
}

// Source returns the incoming value from pred, or nil
func (p *Phi) Source(pred *BasicBlock) *Operand { return p.srcs[pred] }

// NumSources returns the number of incoming edges
func (p *Phi) NumSources() int { return len(p.srcs) }

// AddEdge sets the value flowing in from pred
func (p *Phi) AddEdge(pred *BasicBlock, val *Operand) {
	if old, ok := p.srcs[pred]; ok {
		old.removeUse(p)
	}
	p.srcs[pred] = val
	val.addUse(p)
	p.syncUses()
}

// RemoveEdge drops the entry for pred and returns its value
func (p *Phi) RemoveEdge(pred *BasicBlock) *Operand {
	val, ok := p.srcs[pred]
	if !ok {
		return nil
	}
	delete(p.srcs, pred)
	val.removeUse(p)
	p.syncUses()
	return val
}

// Incoming is one PHI source
type Incoming struct {
	Block *BasicBlock
	Value *Operand
}

// Incoming returns the sources ordered by block number
func (p *Phi) Incoming() []Incoming {
	result := make([]Incoming, 0, len(p.srcs))
	for b, v := range p.srcs {
		result = append(result, Incoming{b, v})
	}
	slices.SortFunc(result, func(a, b Incoming) int { return a.Block.No - b.Block.No })
	return result
}

// syncUses rebuilds the ordered use list from the source map
func (p *Phi) syncUses() {
	p.uses = p.uses[:0]
	for _, in := range p.Incoming() {
		p.uses = append(p.uses, in.Value)
	}
}
