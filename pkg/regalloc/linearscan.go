// Package regalloc implements linear scan register allocation over the
// machine representation.
//
// Each round computes liveness, builds live intervals from def-use chains
// and scans them in start order. If any interval is spilled, spill code is
// inserted and the round repeats on the rewritten function. On success
// every virtual register is replaced by its physical register.
package regalloc

import (
	"slices"

	"github.com/raymyers/ralph-ssa/pkg/liveness"
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

const passName = "regalloc"

// MinRegs is the smallest bank the allocator accepts: an instruction may
// read two values and write a third, all live at its position.
const MinRegs = 3

// Config selects the allocatable registers
type Config struct {
	IntRegs   []int
	FloatRegs []int
	// MaxRounds bounds the spill loop
	MaxRounds int
}

// DefaultConfig allocates the callee-saved banks r4-r10 and s16-s31
func DefaultConfig() Config {
	cfg := Config{MaxRounds: 32}
	for r := 4; r <= 10; r++ {
		cfg.IntRegs = append(cfg.IntRegs, r)
	}
	for s := 16; s <= 31; s++ {
		cfg.FloatRegs = append(cfg.FloatRegs, s)
	}
	return cfg
}

// Result describes a successful allocation
type Result struct {
	Rounds  int
	Spilled int // intervals spilled over all rounds
	// Intervals of the final round, with their registers
	Intervals []*Interval
}

// Allocate assigns physical registers to every virtual register of fn
func Allocate(fn *mach.Function, cfg Config) Result {
	if len(cfg.IntRegs) < MinRegs || len(cfg.FloatRegs) < MinRegs {
		mach.Fail(passName, fn, "need %d registers per class, have %d core and %d float",
			MinRegs, len(cfg.IntRegs), len(cfg.FloatRegs))
	}
	var res Result
	for round := 1; round <= cfg.MaxRounds; round++ {
		liveness.Machine(fn)
		number(fn)
		intervals := buildIntervals(fn)
		spilled := scan(intervals, cfg)
		if len(spilled) == 0 {
			rewrite(fn, intervals)
			res.Rounds = round
			res.Intervals = intervals
			return res
		}
		res.Spilled += len(spilled)
		insertSpillCode(fn, spilled)
	}
	mach.Fail(passName, fn, "no allocation after %d rounds", cfg.MaxRounds)
	return res
}

// scanner is the state of one linear scan
type scanner struct {
	free   map[bool][]int // by class, sorted ascending
	active []*Interval    // sorted by end
}

// scan assigns registers in start order and returns the spilled intervals
func scan(intervals []*Interval, cfg Config) []*Interval {
	s := &scanner{free: map[bool][]int{
		false: slices.Sorted(slices.Values(cfg.IntRegs)),
		true:  slices.Sorted(slices.Values(cfg.FloatRegs)),
	}}
	var spilled []*Interval
	for _, cur := range intervals {
		s.expire(cur)
		if regs := s.free[cur.Float]; len(regs) > 0 {
			cur.Phys = regs[len(regs)-1]
			s.free[cur.Float] = regs[:len(regs)-1]
			s.activate(cur)
			continue
		}
		victim := s.furthest(cur.Float)
		if victim != nil && victim.End > cur.End {
			cur.Phys = victim.Phys
			victim.Phys = -1
			victim.Spilled = true
			s.active = slices.DeleteFunc(s.active, func(iv *Interval) bool { return iv == victim })
			s.activate(cur)
			spilled = append(spilled, victim)
		} else {
			cur.Spilled = true
			spilled = append(spilled, cur)
		}
	}
	return spilled
}

// expire frees the registers of active intervals that end before cur starts
func (s *scanner) expire(cur *Interval) {
	kept := s.active[:0]
	for _, iv := range s.active {
		if iv.End >= cur.Start {
			kept = append(kept, iv)
			continue
		}
		regs := append(s.free[iv.Float], iv.Phys)
		slices.Sort(regs)
		s.free[iv.Float] = regs
	}
	s.active = kept
}

func (s *scanner) activate(iv *Interval) {
	i, _ := slices.BinarySearchFunc(s.active, iv.End, func(a *Interval, end int) int { return a.End - end })
	s.active = slices.Insert(s.active, i, iv)
}

// furthest returns the active interval of the class that ends last
func (s *scanner) furthest(float bool) *Interval {
	for i := len(s.active) - 1; i >= 0; i-- {
		if s.active[i].Float == float {
			return s.active[i]
		}
	}
	return nil
}
