package mach

import (
	"bytes"
	"strings"
	"testing"
)

func TestIsLegalImm(t *testing.T) {
	tests := []struct {
		v    int64
		want bool
	}{
		{0, true},
		{255, true},
		{256, true},
		{257, false},
		{0xFF000000, true},
		{0xF000000F, true},
		{0x101, false},
		{-1, false},
		{-4, false},
		{1020, true},
		{4096, true},
		{4097, false},
	}
	for _, tt := range tests {
		if got := IsLegalImm(tt.v); got != tt.want {
			t.Errorf("IsLegalImm(%#x) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestIsLegalOffset(t *testing.T) {
	tests := []struct {
		off   int64
		float bool
		want  bool
	}{
		{-4, false, true},
		{-4095, false, true},
		{-4096, false, false},
		{-1020, true, true},
		{-1024, true, false},
		{-6, true, false},
	}
	for _, tt := range tests {
		if got := IsLegalOffset(tt.off, tt.float); got != tt.want {
			t.Errorf("IsLegalOffset(%d, %v) = %v, want %v", tt.off, tt.float, got, tt.want)
		}
	}
}

func TestOperandEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b *Operand
		want bool
	}{
		{"same vreg", NewVReg(3, false), NewVReg(3, false), true},
		{"different vreg", NewVReg(3, false), NewVReg(4, false), false},
		{"same imm", NewImm(7), NewImm(7), true},
		{"imm vs vreg", NewImm(3), NewVReg(3, false), false},
		{"core vs float reg", NewReg(4, false), NewReg(4, true), false},
		{"labels", NewLabel("g"), NewLabel("g"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Errorf("%s.Equal(%s) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestOperandParentAndCopy(t *testing.T) {
	d := NewVReg(1, false)
	s := NewVReg(2, false)
	inst := NewInstruction(OpMov, Always, []*Operand{d}, []*Operand{s})
	if d.Parent() != inst || s.Parent() != inst {
		t.Fatal("operands should belong to the instruction")
	}
	c := s.Copy()
	if c.Parent() != nil || !c.Equal(s) || c == s {
		t.Error("Copy should be a new unowned occurrence of the same value")
	}
	s.SetReg(5)
	if !s.IsReg() || s.String() != "r5" {
		t.Errorf("after SetReg = %s, want r5", s)
	}
}

func TestBlockInsertion(t *testing.T) {
	u := NewUnit(100)
	f := u.NewFunction("f")
	b := f.NewBlock(1)
	ret := NewInstruction(OpRet, Always, nil, nil)
	b.Append(ret)
	mov := NewInstruction(OpMov, Always, []*Operand{NewReg(0, false)}, []*Operand{NewImm(1)})
	b.InsertBefore(ret, mov)
	cmp := NewInstruction(OpCmp, Always, nil, []*Operand{NewReg(0, false), NewImm(0)})
	b.InsertAfter(mov, cmp)

	want := []*Instruction{mov, cmp, ret}
	for i, inst := range want {
		if b.Insts[i] != inst {
			t.Errorf("Insts[%d] = %s, want %s", i, FormatInstruction(b.Insts[i]), FormatInstruction(inst))
		}
		if inst.Parent() != b {
			t.Errorf("%s has wrong parent", FormatInstruction(inst))
		}
	}
	if v := f.NewVReg(false); v.N != 101 {
		t.Errorf("first vreg = v%d, want v101", v.N)
	}
}

func TestFrameAllocSlot(t *testing.T) {
	var fr Frame
	if got := fr.AllocSlot(4); got != 4 {
		t.Errorf("AllocSlot(4) = %d, want 4", got)
	}
	if got := fr.AllocSlot(16); got != 20 {
		t.Errorf("AllocSlot(16) = %d, want 20", got)
	}
	if got := fr.AllocSlot(1); got != 24 {
		t.Errorf("AllocSlot(1) = %d, want 24", got)
	}
}

func TestUsedRegsSorted(t *testing.T) {
	f := NewUnit(0).NewFunction("f")
	f.AddUsedReg(10, false)
	f.AddUsedReg(17, true)
	f.AddUsedReg(4, false)
	f.AddUsedReg(16, true)
	f.AddUsedReg(4, false)
	got := f.UsedRegs()
	want := []SavedReg{{4, false}, {10, false}, {16, true}, {17, true}}
	if len(got) != len(want) {
		t.Fatalf("UsedRegs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UsedRegs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFormatInstruction(t *testing.T) {
	v := func(n int) *Operand { return NewVReg(n, false) }
	s := func(n int) *Operand { return NewVReg(n, true) }
	tests := []struct {
		name string
		inst *Instruction
		want string
	}{
		{"add", NewInstruction(OpAdd, Always, []*Operand{v(1)}, []*Operand{v(2), NewImm(4)}), "add v1, v2, #4"},
		{"sdiv", NewInstruction(OpDiv, Always, []*Operand{v(1)}, []*Operand{v(2), v(3)}), "sdiv v1, v2, v3"},
		{"vadd", NewInstruction(OpAdd, Always, []*Operand{s(1)}, []*Operand{s(2), s(3)}), "vadd.f32 v1, v2, v3"},
		{"small constant", NewInstruction(OpLoad, Always, []*Operand{v(1)}, []*Operand{NewImm(255)}), "mov v1, #255"},
		{"large constant", NewInstruction(OpLoad, Always, []*Operand{v(1)}, []*Operand{NewImm(257)}), "ldr v1, =257"},
		{"global address", NewInstruction(OpLoad, Always, []*Operand{v(1)}, []*Operand{NewLabel("g")}), "ldr v1, =g"},
		{"spill load", NewInstruction(OpLoad, Always, []*Operand{v(1)}, []*Operand{NewReg(FP, false), NewImm(-8)}), "ldr v1, [fp, #-8]"},
		{"float store", NewInstruction(OpStore, Always, nil, []*Operand{s(1), v(2)}), "vstr.32 v1, [v2]"},
		{"conditional move", NewInstruction(OpMov, GT, []*Operand{v(1)}, []*Operand{NewImm(1), v(1)}), "movgt v1, #1"},
		{"core to float", NewInstruction(OpMov, Always, []*Operand{s(1)}, []*Operand{v(2)}), "vmov v1, v2"},
		{"branch", NewInstruction(OpBranch, LE, nil, []*Operand{NewLabel(".L3")}), "ble .L3"},
		{"push", NewInstruction(OpPush, Always, nil, []*Operand{NewReg(4, false), NewReg(FP, false), NewReg(LR, false)}), "push {r4, fp, lr}"},
		{"vpop", NewInstruction(OpPop, Always, nil, []*Operand{NewReg(16, true)}), "vpop {s16}"},
		{"ret", NewInstruction(OpRet, Always, nil, nil), "bx lr"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatInstruction(tc.inst); got != tc.want {
				t.Errorf("FormatInstruction() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrintUnit(t *testing.T) {
	u := NewUnit(0)
	u.Globals = []Global{{Name: "g", Size: 8, Init: []int64{5}}}
	f := u.NewFunction("main")
	b := f.NewBlock(1)
	b.Append(NewInstruction(OpRet, Always, nil, nil))

	var buf bytes.Buffer
	NewPrinter(&buf).PrintUnit(u)
	out := buf.String()
	for _, want := range []string{".data", "g:\n\t.word 5\n\t.zero 4", ".type main, %function", "main:\n.L1:\n\tbx lr"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}
