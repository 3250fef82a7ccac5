package ir

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs IR in an LLVM-like text form
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintUnit outputs globals followed by every function
func (p *Printer) PrintUnit(u *Unit) {
	for _, g := range u.Globals {
		p.printGlobal(g)
	}
	for i, fn := range u.Functions {
		if i > 0 || len(u.Globals) > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(fn)
	}
}

func (p *Printer) printGlobal(g *Symbol) {
	t := g.Type.Elem
	fmt.Fprintf(p.w, "@%s = global %s ", g.Name, t)
	switch {
	case g.Init == nil && t.IsArray():
		fmt.Fprint(p.w, "zeroinitializer")
	case t.IsArray():
		parts := make([]string, len(g.Init))
		for i, v := range g.Init {
			parts[i] = fmt.Sprintf("%s %s", t.Elem, formatNumber(t.Elem, v))
		}
		fmt.Fprintf(p.w, "[%s]", strings.Join(parts, ", "))
	case g.Init == nil:
		fmt.Fprint(p.w, formatNumber(t, 0))
	default:
		fmt.Fprint(p.w, formatNumber(t, g.Init[0]))
	}
	fmt.Fprintf(p.w, ", align %d\n", wordSize)
}

func formatNumber(t *Type, v float64) string {
	return (&Symbol{Kind: Constant, Type: t, Value: v}).String()
}

// PrintFunction outputs one function, blocks in layout order
func (p *Printer) PrintFunction(fn *Function) {
	params := make([]string, len(fn.Params))
	for i, prm := range fn.Params {
		params[i] = fmt.Sprintf("%s %s", prm.Type(), prm)
	}
	fmt.Fprintf(p.w, "define %s @%s(%s) {\n", fn.RetType, fn.Name, strings.Join(params, ", "))
	for _, b := range fn.blocks {
		p.printBlock(b)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printBlock(b *BasicBlock) {
	fmt.Fprintf(p.w, "%s:", b.Label())
	if len(b.preds) > 0 {
		labels := make([]string, len(b.preds))
		for i, pred := range b.preds {
			labels[i] = "%" + pred.Label()
		}
		fmt.Fprintf(p.w, "%*s; preds = %s", 32-len(b.Label())-1, "", strings.Join(labels, ", "))
	}
	fmt.Fprintln(p.w)
	for _, inst := range b.Instructions() {
		fmt.Fprintf(p.w, "  %s\n", FormatInstruction(inst))
	}
}

// FormatInstruction renders a single instruction
func FormatInstruction(inst Instruction) string {
	switch i := inst.(type) {
	case *Alloca:
		return fmt.Sprintf("%s = alloca %s, align %d", i.Addr(), i.Allocated(), wordSize)
	case *Load:
		return fmt.Sprintf("%s = load %s, %s %s, align %d", i.Dst(), i.Dst().Type(), i.Addr().Type(), i.Addr(), wordSize)
	case *Store:
		return fmt.Sprintf("store %s, %s, align %d", typed(i.Value()), typed(i.Addr()), wordSize)
	case *Binary:
		return fmt.Sprintf("%s = %s %s %s, %s", i.Dst(), binaryMnemonic(i), i.X().Type(), i.X(), i.Y())
	case *Cmp:
		return fmt.Sprintf("%s = %s %s %s, %s", i.Dst(), cmpMnemonic(i), i.X().Type(), i.X(), i.Y())
	case *Zext:
		return fmt.Sprintf("%s = zext %s to %s", i.Dst(), typed(i.Src()), i.Dst().Type())
	case *Cast:
		op := "sitofp"
		if i.Op == FloatToInt {
			op = "fptosi"
		}
		return fmt.Sprintf("%s = %s %s to %s", i.Dst(), op, typed(i.Src()), i.Dst().Type())
	case *Move:
		return fmt.Sprintf("%s = move %s", i.Dst(), typed(i.Src()))
	case *Gep:
		idx := make([]string, len(i.Indices()))
		for j, x := range i.Indices() {
			idx[j] = typed(x)
		}
		return fmt.Sprintf("%s = getelementptr inbounds %s, %s, %s", i.Dst(), i.Base().Type().Elem, typed(i.Base()), strings.Join(idx, ", "))
	case *Call:
		args := make([]string, len(i.Args()))
		for j, a := range i.Args() {
			args[j] = typed(a)
		}
		call := fmt.Sprintf("call %s @%s(%s)", retType(i.Ret), i.Callee, strings.Join(args, ", "))
		if dst := i.Dst(); dst != nil {
			return fmt.Sprintf("%s = %s", dst, call)
		}
		return call
	case *Phi:
		srcs := make([]string, 0, i.NumSources())
		for _, in := range i.Incoming() {
			srcs = append(srcs, fmt.Sprintf("[ %s, %%%s ]", in.Value, in.Block.Label()))
		}
		return fmt.Sprintf("%s = phi %s %s", i.Dst(), i.Dst().Type(), strings.Join(srcs, ", "))
	case *Br:
		return fmt.Sprintf("br label %%%s", i.Target.Label())
	case *CondBr:
		return fmt.Sprintf("br %s, label %%%s, label %%%s", typed(i.Cond()), i.True.Label(), i.False.Label())
	case *Ret:
		if v := i.Value(); v != nil {
			return "ret " + typed(v)
		}
		return "ret void"
	}
	return "???"
}

func typed(op *Operand) string {
	return fmt.Sprintf("%s %s", op.Type(), op)
}

func retType(t *Type) *Type {
	if t == nil {
		return Void
	}
	return t
}

func binaryMnemonic(i *Binary) string {
	if i.X().Type().IsFloat() {
		return [...]string{"fadd", "fsub", "fmul", "fdiv", "frem"}[i.Op]
	}
	return [...]string{"add", "sub", "mul", "sdiv", "srem"}[i.Op]
}

func cmpMnemonic(i *Cmp) string {
	if i.X().Type().IsFloat() {
		return "fcmp " + [...]string{"oeq", "one", "olt", "ole", "ogt", "oge"}[i.Cond]
	}
	return "icmp " + [...]string{"eq", "ne", "slt", "sle", "sgt", "sge"}[i.Cond]
}
