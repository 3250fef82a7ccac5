package liveness

import (
	"path/filepath"
	"testing"

	"github.com/raymyers/ralph-ssa/pkg/dom"
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/irload"
	"github.com/raymyers/ralph-ssa/pkg/mach"
	"github.com/raymyers/ralph-ssa/pkg/mem2reg"
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

func TestStraightLine(t *testing.T) {
	// entry: x = a + 1; br next
	// next:  y = x * a; ret y
	u := ir.NewUnit()
	fn := u.NewFunction("f", ir.Int)
	a := fn.AddParam("a", ir.Int)
	b := ir.NewBuilder(fn)
	x := b.Binary(ir.Add, a, fn.Const(ir.Int, 1))
	next := b.NewBlock()
	b.Br(next)
	b.SetBlock(next)
	y := b.Binary(ir.Mul, x, a)
	b.Ret(y)

	res := IR(fn)
	if res.Visits != 2 {
		t.Errorf("Visits = %d, want 2", res.Visits)
	}
	tests := []struct {
		name  string
		set   map[*ir.Operand]bool
		block *ir.BasicBlock
		in    bool
	}{
		{"entry", map[*ir.Operand]bool{a: true, x: false, y: false}, fn.Entry, true},
		{"entry", map[*ir.Operand]bool{a: true, x: true, y: false}, fn.Entry, false},
		{"next", map[*ir.Operand]bool{a: true, x: true, y: false}, next, true},
		{"next", map[*ir.Operand]bool{a: false, x: false, y: false}, next, false},
	}
	for _, tc := range tests {
		set := res.LiveOut[tc.block]
		which := "LiveOut"
		if tc.in {
			set = res.LiveIn[tc.block]
			which = "LiveIn"
		}
		for op, want := range tc.set {
			if set.Contains(op) != want {
				t.Errorf("%s(%s) contains %s = %v, want %v", which, tc.name, op, !want, want)
			}
		}
	}
}

func TestLoopKeepsValueLive(t *testing.T) {
	u, err := irload.LoadFile("../../testdata/programs/fib.yaml")
	if err != nil {
		t.Fatal(err)
	}
	fn := u.Function("fib")
	mem2reg.Promote(fn, dom.Compute(fn), mem2reg.Options{})
	res := IR(fn)

	blocks := fn.Blocks()
	head, body := blocks[1], blocks[2]
	n := fn.Params[0]
	for _, b := range []*ir.BasicBlock{head, body} {
		if !res.LiveIn[b].Contains(n) {
			t.Errorf("n should be live into %s", b.Label())
		}
	}
	// every phi source flowing from body is live out of body
	for _, phi := range head.Phis() {
		src := phi.Source(body)
		if src.IsTemp() && !res.LiveOut[body].Contains(src) {
			t.Errorf("%s should be live out of the loop body", src)
		}
		if res.LiveIn[head].Contains(phi.Dst()) {
			t.Errorf("phi %s must not be live into its own block", phi.Dst())
		}
	}
	if res.Visits <= fn.NumBlocks() {
		t.Errorf("Visits = %d, a loop needs more than one pass", res.Visits)
	}
}

// checkEquations verifies the dataflow equations at the fixed point
func checkEquations(t *testing.T, fn *ir.Function, res *IRResult) {
	t.Helper()
	g := irGraph{fn}
	for _, b := range fn.Blocks() {
		out := map[*ir.Operand]bool{}
		for _, s := range b.Succs() {
			for v := range res.LiveIn[s] {
				out[v] = true
			}
			for _, v := range g.EdgeUses(b, s) {
				out[v] = true
			}
		}
		if len(out) != res.LiveOut[b].Len() {
			t.Errorf("%s: LiveOut has %d values, equations give %d", b.Label(), res.LiveOut[b].Len(), len(out))
		}
		for v := range out {
			if !res.LiveOut[b].Contains(v) {
				t.Errorf("%s: %s missing from LiveOut", b.Label(), v)
			}
		}
		defined := map[*ir.Operand]bool{}
		want := map[*ir.Operand]bool{}
		g.Scan(b, func(v *ir.Operand) {
			if !defined[v] {
				want[v] = true
			}
		}, func(k *ir.Operand) { defined[k] = true })
		for v := range out {
			if !defined[v] {
				want[v] = true
			}
		}
		if len(want) != res.LiveIn[b].Len() {
			t.Errorf("%s: LiveIn has %d values, equations give %d", b.Label(), res.LiveIn[b].Len(), len(want))
		}
	}
}

func TestEquationsHoldOnPrograms(t *testing.T) {
	files, err := filepath.Glob("../../testdata/programs/*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Skip("no sample programs found")
	}
	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			u, err := irload.LoadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			for _, fn := range u.Functions {
				mem2reg.Promote(fn, dom.Compute(fn), mem2reg.Options{})
				checkEquations(t, fn, IR(fn))
			}
		})
	}
}

func TestLiveSetsOnlyGrow(t *testing.T) {
	for _, name := range []string{"fib.yaml", "nested.yaml", "swap.yaml"} {
		t.Run(name, func(t *testing.T) {
			u, err := irload.LoadFile(filepath.Join("../../testdata/programs", name))
			if err != nil {
				t.Fatal(err)
			}
			for _, fn := range u.Functions {
				if fn.Entry.Empty() {
					continue
				}
				mem2reg.Promote(fn, dom.Compute(fn), mem2reg.Options{})
				s := newSolver[*ir.BasicBlock, *ir.Operand, *ir.Operand](irGraph{fn})
				in := make(map[*ir.BasicBlock]sets.Set[*ir.Operand])
				out := make(map[*ir.BasicBlock]sets.Set[*ir.Operand])
				for s.step() {
					for _, b := range fn.Blocks() {
						if lost := in[b].Minus(s.res.LiveIn[b]); lost.Len() > 0 {
							t.Errorf("%s: LiveIn(%s) lost %d values at visit %d", fn.Name, b.Label(), lost.Len(), s.res.Visits)
						}
						if lost := out[b].Minus(s.res.LiveOut[b]); lost.Len() > 0 {
							t.Errorf("%s: LiveOut(%s) lost %d values at visit %d", fn.Name, b.Label(), lost.Len(), s.res.Visits)
						}
						in[b] = s.res.LiveIn[b].Copy()
						out[b] = s.res.LiveOut[b].Copy()
					}
				}
				checkEquations(t, fn, s.res)
			}
		})
	}
}

func TestAcyclicVisitsEachBlockOnce(t *testing.T) {
	for _, name := range []string{"max.yaml", "clamp.yaml", "float.yaml"} {
		t.Run(name, func(t *testing.T) {
			u, err := irload.LoadFile(filepath.Join("../../testdata/programs", name))
			if err != nil {
				t.Fatal(err)
			}
			for _, fn := range u.Functions {
				mem2reg.Promote(fn, dom.Compute(fn), mem2reg.Options{PromoteParams: true})
				if res := IR(fn); res.Visits != fn.NumBlocks() {
					t.Errorf("%s: Visits = %d, want %d", fn.Name, res.Visits, fn.NumBlocks())
				}
			}
		})
	}
}

func TestMachineLiveness(t *testing.T) {
	// B1: v1 = #1; mov v2, #0; cmp v1, #0; movgt v2, #1; b .L2
	// B2: add v3, v2, v1; bx lr
	u := mach.NewUnit(10)
	f := u.NewFunction("f")
	b1, b2 := f.NewBlock(1), f.NewBlock(2)
	mach.Link(b1, b2)
	v := func(n int) *mach.Operand { return mach.NewVReg(n, false) }
	b1.Append(mach.NewInstruction(mach.OpLoad, mach.Always, []*mach.Operand{v(1)}, []*mach.Operand{mach.NewImm(1)}))
	b1.Append(mach.NewInstruction(mach.OpMov, mach.Always, []*mach.Operand{v(2)}, []*mach.Operand{mach.NewImm(0)}))
	b1.Append(mach.NewInstruction(mach.OpCmp, mach.Always, nil, []*mach.Operand{v(1), mach.NewImm(0)}))
	movgt := mach.NewInstruction(mach.OpMov, mach.GT, []*mach.Operand{v(2)}, []*mach.Operand{mach.NewImm(1), v(2)})
	b1.Append(movgt)
	b1.Append(mach.NewInstruction(mach.OpBranch, mach.Always, nil, []*mach.Operand{mach.NewLabel(b2.Label())}))
	add := mach.NewInstruction(mach.OpAdd, mach.Always, []*mach.Operand{v(3)}, []*mach.Operand{v(2), v(1)})
	b2.Append(add)
	b2.Append(mach.NewInstruction(mach.OpRet, mach.Always, nil, nil))

	res := Machine(f)
	if res.Visits != 2 {
		t.Errorf("Visits = %d, want 2", res.Visits)
	}
	if b1.LiveIn.Len() != 0 {
		t.Errorf("LiveIn(B1) has %d values, want none", b1.LiveIn.Len())
	}
	if b1.LiveOut.Len() != 2 || !b1.LiveOut.Contains(add.Uses[0]) || !b1.LiveOut.Contains(add.Uses[1]) {
		t.Errorf("LiveOut(B1) should hold the two use occurrences in B2")
	}
	if !b2.LiveIn.Equal(b1.LiveOut) {
		t.Error("LiveIn(B2) should equal LiveOut(B1)")
	}
	if b2.LiveOut.Len() != 0 {
		t.Errorf("LiveOut(B2) has %d values, want none", b2.LiveOut.Len())
	}
}

func TestPredicatedDefDoesNotKill(t *testing.T) {
	// B1: b .L2 ; B2: movgt v1, #1 ; bx lr   (v1 comes in from outside)
	u := mach.NewUnit(10)
	f := u.NewFunction("f")
	b1, b2 := f.NewBlock(1), f.NewBlock(2)
	mach.Link(b1, b2)
	b1.Append(mach.NewInstruction(mach.OpBranch, mach.Always, nil, []*mach.Operand{mach.NewLabel(b2.Label())}))
	use := mach.NewVReg(1, false)
	b2.Append(mach.NewInstruction(mach.OpMov, mach.GT, []*mach.Operand{mach.NewVReg(1, false)}, []*mach.Operand{mach.NewImm(1), use}))
	b2.Append(mach.NewInstruction(mach.OpRet, mach.Always, nil, []*mach.Operand{mach.NewVReg(1, false)}))

	Machine(f)
	if b2.LiveIn.Len() != 2 {
		t.Errorf("LiveIn(B2) has %d occurrences, want both uses of v1", b2.LiveIn.Len())
	}
	if !b1.LiveOut.Contains(use) {
		t.Error("the predicated move's own use should be live out of B1")
	}
}
