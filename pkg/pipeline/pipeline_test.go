package pipeline

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/raymyers/ralph-ssa/pkg/interp"
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/irload"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

func programs(t *testing.T) []string {
	t.Helper()
	files, err := filepath.Glob("../../testdata/programs/*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Skip("no sample programs found")
	}
	return files
}

func hasPhi(u *ir.Unit) bool {
	for _, fn := range u.Functions {
		for _, b := range fn.Blocks() {
			if len(b.Phis()) > 0 {
				return true
			}
		}
	}
	return false
}

func TestRunSamplePrograms(t *testing.T) {
	for _, path := range programs(t) {
		t.Run(filepath.Base(path), func(t *testing.T) {
			u, err := irload.LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			cases, err := interp.LoadCases(path)
			if err != nil {
				t.Fatal(err)
			}
			var logs bytes.Buffer
			cfg := DefaultConfig()
			cfg.Logger = NewLogger(&logs, slog.LevelDebug)

			var seen []Stage
			hooks := Hooks{
				IR: func(s Stage, u *ir.Unit) error {
					seen = append(seen, s)
					if s == StageCSSA && hasPhi(u) {
						t.Error("phi left after cssa")
					}
					return nil
				},
				Mach: func(s Stage, mu *mach.Unit) error {
					seen = append(seen, s)
					return nil
				},
			}
			res, err := Run(u, cfg, hooks)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !slices.Equal(seen, Stages) {
				t.Errorf("hooks saw %v, want %v", seen, Stages)
			}
			if res.Last != StageAlloc || res.Mach == nil {
				t.Fatalf("Run() stopped at %v", res.Last)
			}
			if err := interp.Check(res.IR, cases); err != nil {
				t.Errorf("after cssa: %v", err)
			}
			for _, f := range res.Mach.Functions {
				for _, b := range f.Blocks {
					for _, inst := range b.Insts {
						for _, op := range slices.Concat(inst.Defs, inst.Uses) {
							if op.IsVReg() || op.Incoming {
								t.Errorf("%s: %s left unresolved", f.Name, mach.FormatInstruction(inst))
							}
						}
					}
				}
				if f.Entry().Insts[0].Op != mach.OpPush {
					t.Errorf("%s does not start with its prologue", f.Name)
				}
			}
			if !strings.Contains(logs.String(), "msg=regalloc") {
				t.Errorf("no debug log from the allocator in:\n%s", logs.String())
			}
		})
	}
}

func TestStopAfter(t *testing.T) {
	for _, stop := range Stages {
		t.Run(stop.String(), func(t *testing.T) {
			u, err := irload.LoadFile("../../testdata/programs/fib.yaml")
			if err != nil {
				t.Fatal(err)
			}
			cfg := DefaultConfig()
			cfg.StopAfter = stop
			var seen []Stage
			record := func(s Stage) error { seen = append(seen, s); return nil }
			res, err := Run(u, cfg, Hooks{
				IR:   func(s Stage, _ *ir.Unit) error { return record(s) },
				Mach: func(s Stage, _ *mach.Unit) error { return record(s) },
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Last != stop {
				t.Errorf("Last = %v, want %v", res.Last, stop)
			}
			if want := Stages[:stop+1]; !slices.Equal(seen, want) {
				t.Errorf("hooks saw %v, want %v", seen, want)
			}
			if (res.Mach != nil) != (stop >= StageMach) {
				t.Errorf("Mach = %v at %v", res.Mach, stop)
			}
		})
	}
}

const pressure = `
functions:
  - name: ok
    ret: i32
    params: [{name: a, type: i32}]
    blocks:
      - label: entry
        insts: ["ret %a"]
  - name: f
    ret: i32
    params:
      - {name: a, type: i32}
      - {name: b, type: i32}
      - {name: c, type: i32}
      - {name: d, type: i32}
    blocks:
      - label: entry
        insts:
          - "%s1 = add %a, %b"
          - "%s2 = add %c, %d"
          - "%s3 = mul %a, %c"
          - "%s4 = mul %b, %d"
          - "%t1 = add %s1, %s2"
          - "%t2 = add %s3, %s4"
          - "%t3 = add %t1, %t2"
          - "%r = sub %t3, %a"
          - "ret %r"
`

func TestInternalErrorRecovered(t *testing.T) {
	u, err := irload.Load([]byte(pressure))
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.IntRegs = []int{4, 5, 6}
	cfg.MaxRounds = 1
	res, err := Run(u, cfg, Hooks{})
	var ie *ir.InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("Run() error = %v, want an internal error", err)
	}
	if ie.Pass != "regalloc" || ie.Func != "f" {
		t.Errorf("error from %s (%s), want regalloc (f)", ie.Pass, ie.Func)
	}
	if !strings.HasPrefix(err.Error(), "internal error in regalloc (f)") {
		t.Errorf("error = %q", err)
	}
	if res.Last != StageMach {
		t.Errorf("Last = %v, want mach", res.Last)
	}
	for _, s := range res.Stats {
		if s.Name == "ok" && s.Rounds != 1 {
			t.Errorf("ok: Rounds = %d, want the other function allocated", s.Rounds)
		}
	}
}

func TestHookErrorStopsRun(t *testing.T) {
	u, err := irload.LoadFile("../../testdata/programs/max.yaml")
	if err != nil {
		t.Fatal(err)
	}
	stop := errors.New("stop")
	res, err := Run(u, DefaultConfig(), Hooks{
		IR: func(s Stage, _ *ir.Unit) error {
			if s == StageSSA {
				return stop
			}
			return nil
		},
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Run() error = %v, want the hook error", err)
	}
	if res.Mach != nil {
		t.Error("Run() went on after the hook failed")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	u := ir.NewUnit()
	cfg := DefaultConfig()
	cfg.IntRegs = []int{1}
	if _, err := Run(u, cfg, Hooks{}); err == nil {
		t.Error("Run() accepted r1 as allocatable")
	}
}

func TestStats(t *testing.T) {
	u, err := irload.LoadFile("../../testdata/programs/max.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.PromoteParams = true
	res, err := Run(u, cfg, Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Stats) != 1 {
		t.Fatalf("%d stats, want 1", len(res.Stats))
	}
	s := res.Stats[0]
	if s.Mem2Reg.Promoted != 1 || s.ElimPHI.Phis != 1 || s.ElimPHI.Copies != 2 {
		t.Errorf("stats = %+v, want one promoted alloca lowered to two copies", s)
	}
	if s.Rounds != 1 || s.Spilled != 0 {
		t.Errorf("Rounds, Spilled = %d, %d, want 1, 0", s.Rounds, s.Spilled)
	}
}

func TestArenaSweptAfterEachStage(t *testing.T) {
	for _, path := range programs(t) {
		for _, stop := range []Stage{StageSSA, StageCSSA} {
			t.Run(filepath.Base(path)+"/"+stop.String(), func(t *testing.T) {
				u, err := irload.LoadFile(path)
				if err != nil {
					t.Fatal(err)
				}
				cfg := DefaultConfig()
				cfg.StopAfter = stop
				if _, err := Run(u, cfg, Hooks{}); err != nil {
					t.Fatalf("Run() error = %v", err)
				}
				for _, fn := range u.Functions {
					if n := fn.Sweep(); n != 0 {
						t.Errorf("%s: Sweep() = %d after %s, want 0", fn.Name, n, stop)
					}
				}
			})
		}
	}
}

func TestSweptOperandsCounted(t *testing.T) {
	u, err := irload.LoadFile("../../testdata/programs/swap.yaml")
	if err != nil {
		t.Fatal(err)
	}
	res, err := Run(u, DefaultConfig(), Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range res.Stats {
		if s.Name == "swap" && s.Swept == 0 {
			t.Errorf("swap: Swept = 0, want the promoted loads and slots collected")
		}
	}
}
