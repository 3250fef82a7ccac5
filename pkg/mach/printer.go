package mach

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs ARM assembly in GNU as syntax
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintUnit outputs an entire unit
func (p *Printer) PrintUnit(u *Unit) {
	fmt.Fprintf(p.w, "\t.arch armv8-a\n")
	fmt.Fprintf(p.w, "\t.fpu vfpv3-d16\n")
	fmt.Fprintf(p.w, "\t.arm\n")
	if len(u.Globals) > 0 {
		fmt.Fprintf(p.w, "\t.data\n")
		for _, g := range u.Globals {
			p.printGlobal(g)
		}
	}
	fmt.Fprintf(p.w, "\t.text\n")
	for _, f := range u.Functions {
		p.PrintFunction(f)
	}
}

func (p *Printer) printGlobal(g Global) {
	fmt.Fprintf(p.w, "\t.global %s\n", g.Name)
	fmt.Fprintf(p.w, "\t.align 4\n")
	fmt.Fprintf(p.w, "\t.size %s, %d\n", g.Name, g.Size)
	fmt.Fprintf(p.w, "%s:\n", g.Name)
	for _, v := range g.Init {
		fmt.Fprintf(p.w, "\t.word %d\n", v)
	}
	if rest := g.Size - 4*len(g.Init); rest > 0 {
		fmt.Fprintf(p.w, "\t.zero %d\n", rest)
	}
}

// PrintFunction outputs one function
func (p *Printer) PrintFunction(f *Function) {
	fmt.Fprintf(p.w, "\t.global %s\n", f.Name)
	fmt.Fprintf(p.w, "\t.type %s, %%function\n", f.Name)
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	for _, b := range f.Blocks {
		fmt.Fprintf(p.w, "%s:\n", b.Label())
		for _, inst := range b.Insts {
			fmt.Fprintf(p.w, "\t%s\n", FormatInstruction(inst))
		}
	}
}

// FormatInstruction returns the assembler text of one instruction
func FormatInstruction(inst *Instruction) string {
	c := inst.Cond.String()
	switch inst.Op {
	case OpAdd, OpSub, OpMul, OpDiv:
		d := inst.Defs[0]
		return fmt.Sprintf("%s%s %s, %s, %s", arithMnemonic(inst.Op, d.Float), c, d, inst.Uses[0], inst.Uses[1])
	case OpMov:
		d, s := inst.Defs[0], inst.Uses[0]
		m := "mov"
		switch {
		case d.Float && s.Float:
			m = "vmov.f32"
		case d.Float || s.Float:
			m = "vmov"
		}
		return fmt.Sprintf("%s%s %s, %s", m, c, d, s)
	case OpLoad:
		return formatLoad(inst)
	case OpStore:
		m := "str"
		if inst.Uses[0].Float {
			m = "vstr.32"
		}
		return fmt.Sprintf("%s %s, %s", m, inst.Uses[0], address(inst.Uses[1:]))
	case OpCmp:
		if inst.Uses[0].Float {
			return fmt.Sprintf("vcmp.f32 %s, %s\n\tvmrs APSR_nzcv, FPSCR", inst.Uses[0], inst.Uses[1])
		}
		return fmt.Sprintf("cmp %s, %s", inst.Uses[0], inst.Uses[1])
	case OpZext:
		return fmt.Sprintf("uxtb %s, %s", inst.Defs[0], inst.Uses[0])
	case OpCvtIF:
		return fmt.Sprintf("vcvt.f32.s32 %s, %s", inst.Defs[0], inst.Uses[0])
	case OpCvtFI:
		return fmt.Sprintf("vcvt.s32.f32 %s, %s", inst.Defs[0], inst.Uses[0])
	case OpBranch:
		return fmt.Sprintf("b%s %s", c, inst.Uses[0])
	case OpCall:
		return fmt.Sprintf("bl %s", inst.Uses[0])
	case OpRet:
		return "bx lr"
	case OpPush, OpPop:
		m := "push"
		if inst.Op == OpPop {
			m = "pop"
		}
		if len(inst.Uses) > 0 && inst.Uses[0].Float {
			m = "v" + m
		}
		return fmt.Sprintf("%s {%s}", m, joinOperands(inst.Uses))
	}
	return fmt.Sprintf("?op%d", inst.Op)
}

func arithMnemonic(op Op, float bool) string {
	if float {
		return [...]string{"vadd.f32", "vsub.f32", "vmul.f32", "vdiv.f32"}[op]
	}
	return [...]string{"add", "sub", "mul", "sdiv"}[op]
}

// formatLoad prints the three load forms: an immediate, a label address
// and a memory access
func formatLoad(inst *Instruction) string {
	d, src := inst.Defs[0], inst.Uses[0]
	switch {
	case src.IsImm() && IsLegalImm(src.Val):
		return fmt.Sprintf("mov %s, #%d", d, src.Val)
	case src.IsImm():
		return fmt.Sprintf("ldr %s, =%d", d, src.Val)
	case src.IsLabel():
		return fmt.Sprintf("ldr %s, =%s", d, src.Name)
	}
	m := "ldr"
	if d.Float {
		m = "vldr.32"
	}
	return fmt.Sprintf("%s %s, %s", m, d, address(inst.Uses))
}

func address(ops []*Operand) string {
	return "[" + joinOperands(ops) + "]"
}

func joinOperands(ops []*Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}
