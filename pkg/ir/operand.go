package ir

import (
	"fmt"
	"math"
	"strconv"
)

// SymbolKind distinguishes what an operand names
type SymbolKind int

const (
	Constant SymbolKind = iota
	Temporary
	Variable
)

// Scope of a Variable symbol
type Scope int

const (
	Global Scope = iota
	Param
	Local
)

// Symbol is the identity behind an operand.
// Constants carry Value, temporaries carry Label, variables carry Name and Scope.
// A global variable's symbol has the pointer type of its storage.
type Symbol struct {
	Kind    SymbolKind
	Type    *Type
	Value   float64
	Label   int
	Name    string
	Scope   Scope
	ParamNo int
	Init    []float64 // global initializer, nil means zero-initialized
}

func (s *Symbol) String() string {
	switch s.Kind {
	case Constant:
		if s.Type.IsFloat() {
			return strconv.FormatFloat(s.Value, 'g', -1, 32)
		}
		return strconv.FormatInt(int64(s.Value), 10)
	case Temporary:
		return fmt.Sprintf("%%t%d", s.Label)
	default:
		if s.Scope == Global {
			return "@" + s.Name
		}
		return "%" + s.Name
	}
}

// Operand is a value reference in the IR graph. The defining instruction
// and the use list are back-references maintained by the instruction
// constructors and by BasicBlock.Remove.
type Operand struct {
	id   int
	Sym  *Symbol
	def  Instruction
	uses []Instruction
}

// ID returns the operand's stable arena identifier
func (o *Operand) ID() int { return o.id }

// Type returns the operand's value type
func (o *Operand) Type() *Type { return o.Sym.Type }

// Def returns the defining instruction, or nil
func (o *Operand) Def() Instruction { return o.def }

// SetDef records inst as the defining instruction
func (o *Operand) SetDef(inst Instruction) { o.def = inst }

// Uses returns a snapshot of the using instructions
func (o *Operand) Uses() []Instruction {
	return append([]Instruction(nil), o.uses...)
}

// NumUses returns the number of recorded uses
func (o *Operand) NumUses() int { return len(o.uses) }

func (o *Operand) IsConst() bool { return o.Sym.Kind == Constant }
func (o *Operand) IsTemp() bool  { return o.Sym.Kind == Temporary }
func (o *Operand) IsParam() bool { return o.Sym.Kind == Variable && o.Sym.Scope == Param }
func (o *Operand) IsGlobal() bool {
	return o.Sym.Kind == Variable && o.Sym.Scope == Global
}

// IntValue returns a constant's value as an integer
func (o *Operand) IntValue() int64 { return int64(o.Sym.Value) }

// FloatBits returns a float constant's single-precision bit pattern
func (o *Operand) FloatBits() uint32 { return math.Float32bits(float32(o.Sym.Value)) }

func (o *Operand) String() string { return o.Sym.String() }

func (o *Operand) addUse(inst Instruction) {
	o.uses = append(o.uses, inst)
}

// removeUse drops one occurrence of inst from the use list
func (o *Operand) removeUse(inst Instruction) {
	for i, u := range o.uses {
		if u == inst {
			o.uses = append(o.uses[:i], o.uses[i+1:]...)
			return
		}
	}
}

// SameValue reports whether two operands denote the same value:
// the same operand, or constants of equal type and value.
func SameValue(a, b *Operand) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Sym == b.Sym {
		return true
	}
	return a.IsConst() && b.IsConst() && a.Type().Equal(b.Type()) && a.Sym.Value == b.Sym.Value
}

// ReplaceAllUsesWith rewrites every use of old to refer to repl,
// including PHI source entries. old is left without uses.
func ReplaceAllUsesWith(old, repl *Operand) {
	if old == repl {
		return
	}
	for _, user := range old.uses {
		n := user.node()
		for i, u := range n.uses {
			if u == old {
				n.uses[i] = repl
				repl.addUse(user)
			}
		}
		if phi, ok := user.(*Phi); ok {
			for b, src := range phi.srcs {
				if src == old {
					phi.srcs[b] = repl
				}
			}
		}
	}
	old.uses = nil
}
