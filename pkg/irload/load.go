// Package irload builds an IR unit from a YAML description.
//
// A unit lists globals and functions; each function lists its blocks in
// order and each block holds one instruction per line:
//
//	functions:
//	  - name: max
//	    ret: i32
//	    params: [{name: a, type: i32}, {name: b, type: i32}]
//	    blocks:
//	      - label: entry
//	        insts:
//	          - "%r = alloca i32"
//	          - "%c = cmp gt %a, %b"
//	          - "condbr %c, then, else"
//
// Operands are %name (a parameter or an earlier result), @name (a global),
// integer and float literals, true and false. Instructions: alloca T,
// load P, store P, V, add/sub/mul/div/mod X, Y, cmp COND X, Y, zext X,
// itof X, ftoi X, gep P, I..., call T f(ARGS), br L, condbr C, L1, L2,
// ret [V].
package irload

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-ssa/pkg/ir"
	"gopkg.in/yaml.v3"
)

// UnitSpec is the YAML document layout
type UnitSpec struct {
	Globals   []GlobalSpec   `yaml:"globals"`
	Functions []FunctionSpec `yaml:"functions"`
}

// GlobalSpec declares a global variable
type GlobalSpec struct {
	Name string    `yaml:"name"`
	Type string    `yaml:"type"`
	Init []float64 `yaml:"init,omitempty"`
}

// FunctionSpec declares a function
type FunctionSpec struct {
	Name   string      `yaml:"name"`
	Ret    string      `yaml:"ret"`
	Params []ParamSpec `yaml:"params"`
	Blocks []BlockSpec `yaml:"blocks"`
}

// ParamSpec declares a parameter
type ParamSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// BlockSpec is a labelled instruction list
type BlockSpec struct {
	Label string   `yaml:"label"`
	Insts []string `yaml:"insts"`
}

// LoadFile reads and builds a unit from a YAML file
func LoadFile(path string) (*ir.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	u, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return u, nil
}

// Load builds a unit from YAML source
func Load(data []byte) (*ir.Unit, error) {
	var spec UnitSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing unit: %w", err)
	}
	return Build(&spec)
}

// Build turns a parsed description into IR
func Build(spec *UnitSpec) (*ir.Unit, error) {
	u := ir.NewUnit()
	for _, g := range spec.Globals {
		t, err := ParseType(g.Type)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", g.Name, err)
		}
		u.AddGlobal(g.Name, t, g.Init)
	}
	for i := range spec.Functions {
		if err := buildFunction(u, &spec.Functions[i]); err != nil {
			return nil, fmt.Errorf("function %s: %w", spec.Functions[i].Name, err)
		}
	}
	return u, nil
}

// ParseType parses i1, i32, float, void, T* and [N x T]
func ParseType(s string) (*ir.Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "i1", "bool":
		return ir.Bool, nil
	case "i32", "int":
		return ir.Int, nil
	case "float":
		return ir.Float, nil
	case "void", "":
		return ir.Void, nil
	}
	if strings.HasSuffix(s, "*") {
		elem, err := ParseType(strings.TrimSuffix(s, "*"))
		if err != nil {
			return nil, err
		}
		return ir.PointerTo(elem), nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		n, elemStr, ok := strings.Cut(s[1:len(s)-1], "x")
		if !ok {
			return nil, fmt.Errorf("bad array type %q", s)
		}
		count, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("bad array length in %q", s)
		}
		elem, err := ParseType(elemStr)
		if err != nil {
			return nil, err
		}
		return ir.ArrayOf(elem, count), nil
	}
	return nil, fmt.Errorf("unknown type %q", s)
}

// funcBuilder holds name resolution state while building one function
type funcBuilder struct {
	unit   *ir.Unit
	fn     *ir.Function
	b      *ir.Builder
	values map[string]*ir.Operand
	blocks map[string]*ir.BasicBlock
}

func buildFunction(u *ir.Unit, spec *FunctionSpec) error {
	ret, err := ParseType(spec.Ret)
	if err != nil {
		return err
	}
	if len(spec.Blocks) == 0 {
		return fmt.Errorf("no blocks")
	}
	fn := u.NewFunction(spec.Name, ret)
	fb := &funcBuilder{
		unit:   u,
		fn:     fn,
		b:      ir.NewBuilder(fn),
		values: make(map[string]*ir.Operand),
		blocks: make(map[string]*ir.BasicBlock),
	}
	for _, p := range spec.Params {
		t, err := ParseType(p.Type)
		if err != nil {
			return fmt.Errorf("param %s: %w", p.Name, err)
		}
		fb.values[p.Name] = fn.AddParam(p.Name, t)
	}
	for i, blk := range spec.Blocks {
		if _, dup := fb.blocks[blk.Label]; dup {
			return fmt.Errorf("duplicate block label %q", blk.Label)
		}
		if i == 0 {
			fb.blocks[blk.Label] = fn.Entry
		} else {
			fb.blocks[blk.Label] = fn.NewBlock()
		}
	}
	for _, blk := range spec.Blocks {
		fb.b.SetBlock(fb.blocks[blk.Label])
		for _, line := range blk.Insts {
			if err := fb.instruction(line); err != nil {
				return fmt.Errorf("%s: %q: %w", blk.Label, line, err)
			}
		}
	}
	return nil
}

func splitArgs(s string) []string {
	s = strings.NewReplacer("(", " ", ")", " ", ",", " ").Replace(s)
	return strings.Fields(s)
}

var binOps = map[string]ir.BinOp{"add": ir.Add, "sub": ir.Sub, "mul": ir.Mul, "div": ir.Div, "mod": ir.Mod}

var conds = map[string]ir.Cond{"eq": ir.EQ, "ne": ir.NE, "lt": ir.LT, "le": ir.LE, "gt": ir.GT, "ge": ir.GE}

// instruction parses and emits one instruction line
func (fb *funcBuilder) instruction(line string) error {
	var dst string
	if lhs, rhs, ok := strings.Cut(line, "="); ok {
		dst = strings.TrimPrefix(strings.TrimSpace(lhs), "%")
		line = rhs
	}
	line = strings.TrimSpace(line)
	op, rest, _ := strings.Cut(line, " ")
	args := splitArgs(rest)

	result, err := fb.emit(op, rest, args)
	if err != nil {
		return err
	}
	if dst != "" {
		if result == nil {
			return fmt.Errorf("%s produces no value", op)
		}
		if _, dup := fb.values[dst]; dup {
			return fmt.Errorf("%%%s redefined", dst)
		}
		fb.values[dst] = result
	}
	return nil
}

func (fb *funcBuilder) emit(op, rest string, args []string) (*ir.Operand, error) {
	b := fb.b
	if bop, ok := binOps[op]; ok {
		ops, err := fb.operands(args, 2)
		if err != nil {
			return nil, err
		}
		return b.Binary(bop, ops[0], ops[1]), nil
	}
	switch op {
	case "alloca":
		t, err := ParseType(rest)
		if err != nil {
			return nil, err
		}
		return b.Alloca("", t), nil
	case "load":
		ops, err := fb.operands(args, 1)
		if err != nil {
			return nil, err
		}
		if !ops[0].Type().IsPtr() {
			return nil, fmt.Errorf("load from non-pointer %s", ops[0])
		}
		return b.Load(ops[0]), nil
	case "store":
		ops, err := fb.operands(args, 2)
		if err != nil {
			return nil, err
		}
		b.Store(ops[0], ops[1])
		return nil, nil
	case "cmp":
		if len(args) != 3 {
			return nil, fmt.Errorf("cmp wants a predicate and 2 operands")
		}
		c, ok := conds[args[0]]
		if !ok {
			return nil, fmt.Errorf("unknown predicate %q", args[0])
		}
		ops, err := fb.operands(args[1:], 2)
		if err != nil {
			return nil, err
		}
		return b.Cmp(c, ops[0], ops[1]), nil
	case "zext":
		ops, err := fb.operands(args, 1)
		if err != nil {
			return nil, err
		}
		return b.Zext(ops[0]), nil
	case "itof", "ftoi":
		ops, err := fb.operands(args, 1)
		if err != nil {
			return nil, err
		}
		cop := ir.IntToFloat
		if op == "ftoi" {
			cop = ir.FloatToInt
		}
		return b.Cast(cop, ops[0]), nil
	case "gep":
		if len(args) < 2 {
			return nil, fmt.Errorf("gep wants a base and indices")
		}
		ops, err := fb.operands(args, len(args))
		if err != nil {
			return nil, err
		}
		return b.Gep(ops[0], ops[1:]...), nil
	case "call":
		if len(args) < 2 {
			return nil, fmt.Errorf("call wants a return type and callee")
		}
		ret, err := ParseType(args[0])
		if err != nil {
			return nil, err
		}
		ops, err := fb.operands(args[2:], len(args)-2)
		if err != nil {
			return nil, err
		}
		return b.Call(args[1], ret, ops...), nil
	case "br":
		if len(args) != 1 {
			return nil, fmt.Errorf("br wants one label")
		}
		target, err := fb.block(args[0])
		if err != nil {
			return nil, err
		}
		b.Br(target)
		return nil, nil
	case "condbr":
		if len(args) != 3 {
			return nil, fmt.Errorf("condbr wants a condition and two labels")
		}
		ops, err := fb.operands(args[:1], 1)
		if err != nil {
			return nil, err
		}
		t, err := fb.block(args[1])
		if err != nil {
			return nil, err
		}
		f, err := fb.block(args[2])
		if err != nil {
			return nil, err
		}
		b.CondBr(ops[0], t, f)
		return nil, nil
	case "ret":
		if len(args) == 0 {
			b.Ret(nil)
			return nil, nil
		}
		ops, err := fb.operands(args, 1)
		if err != nil {
			return nil, err
		}
		b.Ret(ops[0])
		return nil, nil
	}
	return nil, fmt.Errorf("unknown instruction %q", op)
}

func (fb *funcBuilder) block(label string) (*ir.BasicBlock, error) {
	b, ok := fb.blocks[label]
	if !ok {
		return nil, fmt.Errorf("unknown block %q", label)
	}
	if b == fb.fn.Entry {
		return nil, fmt.Errorf("cannot branch to the entry block")
	}
	return b, nil
}

func (fb *funcBuilder) operands(args []string, n int) ([]*ir.Operand, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d operands, got %d", n, len(args))
	}
	ops := make([]*ir.Operand, n)
	for i, a := range args {
		op, err := fb.operand(a)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

func (fb *funcBuilder) operand(tok string) (*ir.Operand, error) {
	switch {
	case strings.HasPrefix(tok, "%"):
		if v, ok := fb.values[tok[1:]]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("undefined value %s", tok)
	case strings.HasPrefix(tok, "@"):
		if g := fb.unit.Global(tok[1:]); g != nil {
			return fb.fn.GlobalRef(g), nil
		}
		return nil, fmt.Errorf("undefined global %s", tok)
	case tok == "true":
		return fb.fn.Const(ir.Bool, 1), nil
	case tok == "false":
		return fb.fn.Const(ir.Bool, 0), nil
	case strings.ContainsAny(tok, ".eE") && !strings.HasPrefix(tok, "0x"):
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, fmt.Errorf("bad float literal %q", tok)
		}
		return fb.fn.Const(ir.Float, f), nil
	default:
		n, err := strconv.ParseInt(tok, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad operand %q", tok)
		}
		return fb.fn.Const(ir.Int, float64(n)), nil
	}
}
