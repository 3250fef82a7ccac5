// Package ir defines the mutable SSA-capable intermediate representation
// that the middle-end passes operate on: typed operands, instruction variants,
// basic blocks linked into a control-flow graph, functions and units.
package ir

import "fmt"

// Kind classifies a Type
type Kind int

const (
	KVoid Kind = iota
	KBool
	KInt
	KFloat
	KPtr
	KArray
	KFunc
)

// Type is an IR value type. Basic types are shared singletons; derived
// types compare structurally with Equal.
type Type struct {
	Kind Kind
	Elem *Type // pointee or array element
	Len  int   // array length
}

// Basic types
var (
	Void  = &Type{Kind: KVoid}
	Bool  = &Type{Kind: KBool}
	Int   = &Type{Kind: KInt}
	Float = &Type{Kind: KFloat}
	Func  = &Type{Kind: KFunc}
)

const wordSize = 4

// PointerTo returns the pointer type to t
func PointerTo(t *Type) *Type {
	return &Type{Kind: KPtr, Elem: t}
}

// ArrayOf returns the array type [n x t]
func ArrayOf(t *Type, n int) *Type {
	return &Type{Kind: KArray, Elem: t, Len: n}
}

// Equal reports structural type equality
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KPtr:
		return t.Elem.Equal(o.Elem)
	case KArray:
		return t.Len == o.Len && t.Elem.Equal(o.Elem)
	}
	return true
}

// Size returns the storage size in bytes
func (t *Type) Size() int {
	switch t.Kind {
	case KVoid, KFunc:
		return 0
	case KArray:
		return t.Len * t.Elem.Size()
	default:
		return wordSize
	}
}

func (t *Type) IsFloat() bool { return t.Kind == KFloat }
func (t *Type) IsPtr() bool   { return t.Kind == KPtr }
func (t *Type) IsArray() bool { return t.Kind == KArray }

func (t *Type) String() string {
	switch t.Kind {
	case KVoid:
		return "void"
	case KBool:
		return "i1"
	case KInt:
		return "i32"
	case KFloat:
		return "float"
	case KPtr:
		return t.Elem.String() + "*"
	case KArray:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case KFunc:
		return "func"
	}
	return "?"
}
