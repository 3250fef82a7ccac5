// Package pipeline runs the back-end passes in order:
//
//	ir → ssa   unreachable block removal, dominance, Mem2Reg
//	ssa → cssa PHI elimination, branch tunneling
//	cssa → mach instruction selection
//	mach → alloc register allocation, frame layout
//
// Passes report broken invariants by panicking with *ir.InternalError.
// Run recovers them per function and returns them as errors.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/raymyers/ralph-ssa/pkg/cfgopt"
	"github.com/raymyers/ralph-ssa/pkg/dom"
	"github.com/raymyers/ralph-ssa/pkg/elimphi"
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/mach"
	"github.com/raymyers/ralph-ssa/pkg/mem2reg"
	"github.com/raymyers/ralph-ssa/pkg/regalloc"
	"github.com/raymyers/ralph-ssa/pkg/selection"
	"github.com/raymyers/ralph-ssa/pkg/stacking"
)

// Hooks observe the program between stages. A hook error stops the run.
type Hooks struct {
	// IR is called after the ir, ssa and cssa stages
	IR func(Stage, *ir.Unit) error
	// Mach is called after the mach and alloc stages
	Mach func(Stage, *mach.Unit) error
}

// FunctionStats collects what the passes did to one function
type FunctionStats struct {
	Name        string
	Unreachable int
	Mem2Reg     mem2reg.Stats
	ElimPHI     elimphi.Stats
	Tunneled    int
	Swept       int // dead operands collected after the ssa and cssa stages
	Rounds      int
	Spilled     int
	FrameSize   int
}

// Result is the outcome of a run. Mach is nil when the run stopped before
// instruction selection.
type Result struct {
	IR    *ir.Unit
	Mach  *mach.Unit
	Stats []*FunctionStats
	Last  Stage // last stage completed
}

// Run transforms u in place up to cfg.StopAfter
func Run(u *ir.Unit, cfg Config, hooks Hooks) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &runner{unit: u, cfg: cfg, hooks: hooks, log: cfg.logger(), stats: make(map[string]*FunctionStats)}
	res := &Result{IR: u}
	for _, fn := range u.Functions {
		s := &FunctionStats{Name: fn.Name}
		r.stats[fn.Name] = s
		res.Stats = append(res.Stats, s)
	}

	if err := r.dump(StageIR); err != nil || cfg.StopAfter == StageIR {
		return res, err
	}
	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageSSA, r.ssa},
		{StageCSSA, r.cssa},
		{StageMach, r.selection},
		{StageAlloc, r.alloc},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return res, err
		}
		res.Last = step.stage
		res.Mach = r.mach
		if err := r.dump(step.stage); err != nil {
			return res, err
		}
		if step.stage == cfg.StopAfter {
			break
		}
	}
	return res, nil
}

type runner struct {
	unit  *ir.Unit
	mach  *mach.Unit
	cfg   Config
	hooks Hooks
	log   *slog.Logger
	stats map[string]*FunctionStats
}

func (r *runner) dump(stage Stage) error {
	var err error
	switch {
	case stage <= StageCSSA && r.hooks.IR != nil:
		err = r.hooks.IR(stage, r.unit)
	case stage > StageCSSA && r.hooks.Mach != nil:
		err = r.hooks.Mach(stage, r.mach)
	}
	if err != nil {
		return fmt.Errorf("dump after %s: %w", stage, err)
	}
	return nil
}

// eachFunction runs f on every defined function, recovering internal
// errors per function
func (r *runner) eachFunction(f func(fn *ir.Function, s *FunctionStats)) error {
	var errs []error
	for _, fn := range r.unit.Functions {
		if fn.Entry == nil || fn.Entry.Empty() {
			continue
		}
		s := r.stats[fn.Name]
		errs = append(errs, guard(func() { f(fn, s) }))
	}
	return errors.Join(errs...)
}

func (r *runner) ssa() error {
	return r.eachFunction(func(fn *ir.Function, s *FunctionStats) {
		s.Unreachable = cfgopt.RemoveUnreachable(fn)
		d := dom.Compute(fn)
		if r.cfg.Verify {
			d.Verify()
		}
		s.Mem2Reg = mem2reg.Promote(fn, d, mem2reg.Options{PromoteParams: r.cfg.PromoteParams})
		swept := fn.Sweep()
		s.Swept += swept
		r.log.Debug("mem2reg", "func", fn.Name,
			"unreachable", s.Unreachable,
			"promoted", s.Mem2Reg.Promoted,
			"skipped", s.Mem2Reg.Skipped,
			"phis", s.Mem2Reg.PhisInserted-s.Mem2Reg.PhisRemoved,
			"swept", swept)
	})
}

func (r *runner) cssa() error {
	return r.eachFunction(func(fn *ir.Function, s *FunctionStats) {
		s.ElimPHI = elimphi.Run(fn)
		s.Tunneled = cfgopt.Tunnel(fn)
		swept := fn.Sweep()
		s.Swept += swept
		r.log.Debug("elimphi", "func", fn.Name,
			"phis", s.ElimPHI.Phis,
			"split", s.ElimPHI.SplitEdges,
			"copies", s.ElimPHI.Copies,
			"temps", s.ElimPHI.Temporaries,
			"tunneled", s.Tunneled,
			"swept", swept)
	})
}

func (r *runner) selection() error {
	return guard(func() { r.mach = selection.SelectUnit(r.unit) })
}

func (r *runner) alloc() error {
	var errs []error
	for _, f := range r.mach.Functions {
		s := r.stats[f.Name]
		errs = append(errs, guard(func() {
			res := regalloc.Allocate(f, r.cfg.RegAlloc())
			s.Rounds, s.Spilled = res.Rounds, res.Spilled
			if r.cfg.Verify {
				if err := regalloc.Verify(f, res.Intervals); err != nil {
					mach.Fail("regalloc", f, "bad allocation: %v", err)
				}
			}
			s.FrameSize = stacking.Finalize(f).FrameSize
			r.log.Debug("regalloc", "func", f.Name,
				"rounds", s.Rounds,
				"spilled", s.Spilled,
				"frame", s.FrameSize)
		}))
	}
	return errors.Join(errs...)
}

// guard runs f and turns an InternalError panic into an error. Other
// panics propagate.
func guard(f func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			ie, ok := v.(*ir.InternalError)
			if !ok {
				panic(v)
			}
			err = ie
		}
	}()
	f()
	return nil
}
