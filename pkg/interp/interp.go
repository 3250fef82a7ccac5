// Package interp executes IR directly. It is the reference semantics the
// transformation passes are checked against: a program must produce the
// same return value and external-call trace before and after each pass.
package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/raymyers/ralph-ssa/pkg/ir"
)

// DefaultStepLimit bounds the number of executed instructions
const DefaultStepLimit = 1_000_000

// ErrStepLimit is returned when execution exceeds the step limit
var ErrStepLimit = errors.New("step limit exceeded")

// Value is a runtime value. Ints, booleans and addresses live in I,
// floats in F.
type Value struct {
	I int64
	F float64
}

func (v Value) String() string {
	if v.F != 0 {
		return fmt.Sprintf("%g", v.F)
	}
	return fmt.Sprintf("%d", v.I)
}

// ExternalCall records a call to a function the unit does not define
type ExternalCall struct {
	Callee string
	Args   []Value
}

// Result is the observable outcome of a run
type Result struct {
	Value Value
	Trace []ExternalCall
	Steps int
}

// Machine interprets one unit. Memory is word addressed; address 0 is
// never handed out.
type Machine struct {
	unit    *ir.Unit
	mem     []Value
	globals map[*ir.Symbol]int64
	trace   []ExternalCall
	steps   int
	limit   int
}

// New creates a machine with the unit's globals laid out and initialized
func New(u *ir.Unit) *Machine {
	m := &Machine{
		unit:    u,
		mem:     make([]Value, 1),
		globals: make(map[*ir.Symbol]int64),
		limit:   DefaultStepLimit,
	}
	for _, g := range u.Globals {
		addr := m.alloc(g.Type.Elem.Size())
		m.globals[g] = addr
		for i, v := range g.Init {
			m.mem[addr/4+int64(i)] = constValue(scalarOf(g.Type.Elem), v)
		}
	}
	return m
}

// SetStepLimit changes the execution bound
func (m *Machine) SetStepLimit(n int) { m.limit = n }

// Run calls the named function with integer arguments
func (m *Machine) Run(name string, args ...int64) (Result, error) {
	fn := m.unit.Function(name)
	if fn == nil {
		return Result{}, fmt.Errorf("no function %q", name)
	}
	if len(args) != len(fn.Params) {
		return Result{}, fmt.Errorf("%s takes %d arguments, got %d", name, len(fn.Params), len(args))
	}
	vals := make([]Value, len(args))
	for i, a := range args {
		if fn.Params[i].Type().IsFloat() {
			vals[i] = Value{F: float64(a)}
		} else {
			vals[i] = Value{I: a}
		}
	}
	m.trace = nil
	m.steps = 0
	v, err := m.call(fn, vals)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v, Trace: m.trace, Steps: m.steps}, nil
}

func scalarOf(t *ir.Type) *ir.Type {
	for t.IsArray() {
		t = t.Elem
	}
	return t
}

func constValue(t *ir.Type, v float64) Value {
	if t.IsFloat() {
		return Value{F: float64(float32(v))}
	}
	return Value{I: int64(v)}
}

// alloc reserves size bytes (rounded up to words) and returns the address
func (m *Machine) alloc(size int) int64 {
	words := (size + 3) / 4
	if words == 0 {
		words = 1
	}
	addr := int64(len(m.mem)) * 4
	m.mem = append(m.mem, make([]Value, words)...)
	return addr
}

func (m *Machine) word(addr int64) (*Value, error) {
	if addr <= 0 || addr%4 != 0 || addr/4 >= int64(len(m.mem)) {
		return nil, fmt.Errorf("bad address %d", addr)
	}
	return &m.mem[addr/4], nil
}

type frame struct {
	fn   *ir.Function
	vals map[*ir.Operand]Value
}

func (f *frame) get(m *Machine, op *ir.Operand) (Value, error) {
	switch {
	case op.IsConst():
		return constValue(op.Type(), op.Sym.Value), nil
	case op.IsGlobal():
		addr, ok := m.globals[op.Sym]
		if !ok {
			return Value{}, fmt.Errorf("unknown global %s", op)
		}
		return Value{I: addr}, nil
	}
	v, ok := f.vals[op]
	if !ok {
		return Value{}, fmt.Errorf("%s: read of undefined %s", f.fn.Name, op)
	}
	return v, nil
}

func (m *Machine) call(fn *ir.Function, args []Value) (Value, error) {
	f := &frame{fn: fn, vals: make(map[*ir.Operand]Value)}
	for i, p := range fn.Params {
		f.vals[p] = args[i]
	}
	var prev *ir.BasicBlock
	block := fn.Entry
	for {
		next, ret, done, err := m.execBlock(f, prev, block)
		if err != nil {
			return Value{}, err
		}
		if done {
			return ret, nil
		}
		prev, block = block, next
	}
}

// execBlock runs one block and returns the successor, or the return value
func (m *Machine) execBlock(f *frame, prev, b *ir.BasicBlock) (*ir.BasicBlock, Value, bool, error) {
	phis := b.Phis()
	if len(phis) > 0 {
		incoming := make([]Value, len(phis))
		for i, phi := range phis {
			src := phi.Source(prev)
			if src == nil {
				return nil, Value{}, false, fmt.Errorf("%s: phi %s has no value for %v", f.fn.Name, phi.Dst(), prevLabel(prev))
			}
			v, err := f.get(m, src)
			if err != nil {
				return nil, Value{}, false, err
			}
			incoming[i] = v
		}
		for i, phi := range phis {
			f.vals[phi.Dst()] = incoming[i]
		}
	}

	for _, inst := range b.Instructions() {
		if _, ok := inst.(*ir.Phi); ok {
			continue
		}
		m.steps++
		if m.steps > m.limit {
			return nil, Value{}, false, ErrStepLimit
		}
		switch i := inst.(type) {
		case *ir.Br:
			return i.Target, Value{}, false, nil
		case *ir.CondBr:
			c, err := f.get(m, i.Cond())
			if err != nil {
				return nil, Value{}, false, err
			}
			if c.I != 0 {
				return i.True, Value{}, false, nil
			}
			return i.False, Value{}, false, nil
		case *ir.Ret:
			if i.Value() == nil {
				return nil, Value{}, true, nil
			}
			v, err := f.get(m, i.Value())
			return nil, v, true, err
		default:
			if err := m.exec(f, inst); err != nil {
				return nil, Value{}, false, err
			}
		}
	}
	return nil, Value{}, false, fmt.Errorf("%s: block %s has no terminator", f.fn.Name, b.Label())
}

func prevLabel(b *ir.BasicBlock) string {
	if b == nil {
		return "entry"
	}
	return b.Label()
}

// exec runs one non-terminator instruction
func (m *Machine) exec(f *frame, inst ir.Instruction) error {
	uses := make([]Value, len(inst.Uses()))
	for k, op := range inst.Uses() {
		v, err := f.get(m, op)
		if err != nil {
			return err
		}
		uses[k] = v
	}
	set := func(v Value) { f.vals[ir.Def(inst)] = v }

	switch i := inst.(type) {
	case *ir.Alloca:
		set(Value{I: m.alloc(i.Allocated().Size())})
	case *ir.Load:
		w, err := m.word(uses[0].I)
		if err != nil {
			return err
		}
		set(*w)
	case *ir.Store:
		w, err := m.word(uses[0].I)
		if err != nil {
			return err
		}
		*w = uses[1]
	case *ir.Gep:
		addr := uses[0].I
		t := i.Base().Type().Elem
		for k, idx := range uses[1:] {
			if k > 0 {
				t = t.Elem
			}
			addr += idx.I * int64(t.Size())
		}
		set(Value{I: addr})
	case *ir.Binary:
		v, err := binary(i.Op, i.X().Type().IsFloat(), uses[0], uses[1])
		if err != nil {
			return err
		}
		set(v)
	case *ir.Cmp:
		set(Value{I: compare(i.Cond, i.X().Type().IsFloat(), uses[0], uses[1])})
	case *ir.Zext, *ir.Move:
		set(uses[0])
	case *ir.Cast:
		if i.Op == ir.IntToFloat {
			set(Value{F: float64(float32(uses[0].I))})
		} else {
			set(Value{I: int64(int32(uses[0].F))})
		}
	case *ir.Call:
		v, err := m.invoke(i, uses)
		if err != nil {
			return err
		}
		if i.Dst() != nil {
			set(v)
		}
	default:
		return fmt.Errorf("cannot execute %s", ir.FormatInstruction(inst))
	}
	return nil
}

func (m *Machine) invoke(c *ir.Call, args []Value) (Value, error) {
	if callee := m.unit.Function(c.Callee); callee != nil && callee.Entry != nil && !callee.Entry.Empty() {
		return m.call(callee, args)
	}
	m.trace = append(m.trace, ExternalCall{Callee: c.Callee, Args: args})
	return Value{}, nil
}

func wrap(x int64) int64 { return int64(int32(x)) }

func binary(op ir.BinOp, isFloat bool, x, y Value) (Value, error) {
	if isFloat {
		var r float64
		switch op {
		case ir.Add:
			r = x.F + y.F
		case ir.Sub:
			r = x.F - y.F
		case ir.Mul:
			r = x.F * y.F
		case ir.Div:
			r = x.F / y.F
		case ir.Mod:
			r = math.Mod(x.F, y.F)
		}
		return Value{F: float64(float32(r))}, nil
	}
	switch op {
	case ir.Add:
		return Value{I: wrap(x.I + y.I)}, nil
	case ir.Sub:
		return Value{I: wrap(x.I - y.I)}, nil
	case ir.Mul:
		return Value{I: wrap(x.I * y.I)}, nil
	}
	if y.I == 0 {
		return Value{}, errors.New("division by zero")
	}
	if op == ir.Div {
		return Value{I: wrap(x.I / y.I)}, nil
	}
	return Value{I: wrap(x.I % y.I)}, nil
}

func compare(c ir.Cond, isFloat bool, x, y Value) int64 {
	var lt, eq bool
	if isFloat {
		lt, eq = x.F < y.F, x.F == y.F
	} else {
		lt, eq = x.I < y.I, x.I == y.I
	}
	var r bool
	switch c {
	case ir.EQ:
		r = eq
	case ir.NE:
		r = !eq
	case ir.LT:
		r = lt
	case ir.LE:
		r = lt || eq
	case ir.GT:
		r = !lt && !eq
	case ir.GE:
		r = !lt
	}
	if r {
		return 1
	}
	return 0
}
