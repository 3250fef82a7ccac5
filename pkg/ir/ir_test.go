package ir

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func instKinds(b *BasicBlock) []string {
	var kinds []string
	for _, inst := range b.Instructions() {
		kinds = append(kinds, strings.Fields(FormatInstruction(inst))[0])
	}
	return kinds
}

func TestBlockInsertion(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Int)
	b := fn.Entry

	x := fn.NewTemp(Int)
	y := fn.NewTemp(Int)
	one := fn.Const(Int, 1)

	first := NewMove(x, one)
	b.InsertBack(first)
	ret := NewRet(y)
	b.InsertBack(ret)
	mid := NewBinary(Add, y, x, one)
	InsertBefore(mid, ret)

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	if Next(first) != mid || Prev(ret) != mid {
		t.Error("instruction order should be move, add, ret")
	}
	if Index(ret) != 2 {
		t.Errorf("Index(ret) = %d, want 2", Index(ret))
	}
	if b.Terminator() != ret {
		t.Error("ret should be the terminator")
	}

	z := fn.NewTemp(Int)
	front := NewMove(z, one)
	b.InsertFront(front)
	after := NewMove(fn.NewTemp(Int), z)
	InsertAfter(after, front)
	if b.First() != front || Next(front) != after {
		t.Error("InsertFront/InsertAfter placed instructions incorrectly")
	}
	if mid.Parent() != b {
		t.Error("parent pointer should match the owning block")
	}
}

func TestRemoveDetachesUses(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Int)
	x := fn.NewTemp(Int)
	y := fn.NewTemp(Int)
	def := NewMove(x, fn.Const(Int, 3))
	use := NewBinary(Mul, y, x, x)
	fn.Entry.InsertBack(def)
	fn.Entry.InsertBack(use)

	if x.NumUses() != 2 {
		t.Fatalf("x.NumUses() = %d, want 2", x.NumUses())
	}
	fn.Entry.Remove(use)
	if x.NumUses() != 0 {
		t.Errorf("after Remove, x.NumUses() = %d, want 0", x.NumUses())
	}
	if use.Parent() != nil {
		t.Error("removed instruction should have no parent")
	}
	if y.Def() != nil {
		t.Error("removed instruction should no longer define y")
	}
}

func TestReplaceAllUsesWithRewritesPhi(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Int)
	bld := NewBuilder(fn)
	left := bld.NewBlock()
	join := bld.NewBlock()
	bld.CondBr(fn.Const(Bool, 1), left, join)

	bld.SetBlock(left)
	old := bld.Binary(Add, fn.Const(Int, 1), fn.Const(Int, 2))
	bld.Br(join)

	bld.SetBlock(join)
	addr := fn.NewTemp(PointerTo(Int))
	phi := NewPhi(addr)
	join.InsertFront(phi)
	phi.SetDst(fn.NewTemp(Int))
	phi.AddEdge(left, old)
	phi.AddEdge(fn.Entry, fn.Const(Int, 0))
	bld.Ret(phi.Dst())

	repl := fn.Const(Int, 7)
	ReplaceAllUsesWith(old, repl)

	if phi.Source(left) != repl {
		t.Errorf("phi source from %s = %v, want %v", left.Label(), phi.Source(left), repl)
	}
	if old.NumUses() != 0 {
		t.Errorf("old.NumUses() = %d, want 0", old.NumUses())
	}
	found := false
	for _, op := range phi.Uses() {
		if op == repl {
			found = true
		}
	}
	if !found {
		t.Error("phi use list should contain the replacement")
	}
	if repl.NumUses() != 1 {
		t.Errorf("repl.NumUses() = %d, want 1", repl.NumUses())
	}
}

func TestBuilderBranchesLinkCFG(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Void)
	bld := NewBuilder(fn)
	a := bld.NewBlock()
	b := bld.NewBlock()
	bld.CondBr(fn.Const(Bool, 0), a, b)
	bld.SetBlock(a)
	bld.Br(b)
	bld.SetBlock(b)
	bld.Ret(nil)

	if fn.Entry.NumSuccs() != 2 || !fn.Entry.HasSucc(a) || !fn.Entry.HasSucc(b) {
		t.Errorf("entry succs = %v, want [a b]", fn.Entry.Succs())
	}
	if b.NumPreds() != 2 || !b.HasPred(fn.Entry) || !b.HasPred(a) {
		t.Errorf("b preds = %v, want [entry a]", b.Preds())
	}
}

func TestBuilderAllocasStayAtEntryHead(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Int)
	bld := NewBuilder(fn)
	x := bld.Alloca("x", Int)
	bld.Store(x, fn.Const(Int, 1))
	y := bld.Alloca("y", Float)
	bld.Ret(bld.Load(x))

	got := instKinds(fn.Entry)
	if len(got) != 5 {
		t.Fatalf("instructions = %v, want 5", got)
	}
	want := map[int]string{0: x.String(), 1: y.String(), 2: "store", 4: "ret"}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("instruction %d = %s, want %s", i, got[i], w)
		}
	}
	if !y.Type().Equal(PointerTo(Float)) {
		t.Errorf("alloca type = %s, want float*", y.Type())
	}
}

func TestSweepCollectsDeadOperands(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Int)
	bld := NewBuilder(fn)
	p := fn.AddParam("a", Int)
	v := bld.Binary(Add, p, fn.Const(Int, 1))
	fn.NewTemp(Int) // never referenced
	bld.Ret(v)

	if n := fn.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if n := fn.Sweep(); n != 0 {
		t.Errorf("second Sweep() = %d, want 0", n)
	}
	if len(fn.Operands()) != 3 {
		t.Errorf("arena size = %d, want 3", len(fn.Operands()))
	}
}

func TestSameValue(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("f", Int)
	tests := []struct {
		name string
		a, b *Operand
		want bool
	}{
		{"equal int constants", fn.Const(Int, 3), fn.Const(Int, 3), true},
		{"different values", fn.Const(Int, 3), fn.Const(Int, 4), false},
		{"int vs float", fn.Const(Int, 1), fn.Const(Float, 1), false},
		{"distinct temps", fn.NewTemp(Int), fn.NewTemp(Int), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SameValue(tc.a, tc.b); got != tc.want {
				t.Errorf("SameValue(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestPrintFunction(t *testing.T) {
	u := NewUnit()
	u.AddGlobal("g", Int, []float64{5})
	fn := u.NewFunction("inc", Int)
	a := fn.AddParam("a", Int)
	bld := NewBuilder(fn)
	g := fn.GlobalRef(u.Global("g"))
	v := bld.Binary(Add, a, bld.Load(g))
	bld.Ret(v)

	var buf bytes.Buffer
	NewPrinter(&buf).PrintUnit(u)
	output := buf.String()

	for _, want := range []string{
		"@g = global i32 5, align 4",
		"define i32 @inc(i32 %a) {",
		"load i32, i32* @g, align 4",
		"= add i32 %a, ",
		"ret i32 " + v.String(),
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFailRaisesInternalError(t *testing.T) {
	u := NewUnit()
	fn := u.NewFunction("broken", Void)
	ret := NewRet(nil)
	fn.Entry.InsertBack(ret)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("recover() = %v, want an error", r)
		}
		var ie *InternalError
		if !errors.As(err, &ie) {
			t.Fatalf("expected *InternalError, got %T", r)
		}
		if ie.Func != "broken" || ie.Block != fn.Entry.No || ie.Index != 0 {
			t.Errorf("location = %s B%d #%d", ie.Func, ie.Block, ie.Index)
		}
		if !strings.Contains(ie.Error(), "internal error in test") {
			t.Errorf("Error() = %q", ie.Error())
		}
	}()
	Fail("test", ret, "bad %s", "thing")
}
