package stacking

import (
	"slices"
	"testing"

	"github.com/raymyers/ralph-ssa/pkg/mach"
)

func TestIsCalleeSaved(t *testing.T) {
	tests := []struct {
		reg  mach.SavedReg
		want bool
	}{
		{mach.SavedReg{N: 0}, false},
		{mach.SavedReg{N: 3}, false},
		{mach.SavedReg{N: 4}, true},
		{mach.SavedReg{N: 10}, true},
		{mach.SavedReg{N: mach.FP}, false}, // saved by every prologue
		{mach.SavedReg{N: 12}, false},
		{mach.SavedReg{N: mach.LR}, false},
		{mach.SavedReg{N: 0, Float: true}, false},
		{mach.SavedReg{N: 15, Float: true}, false},
		{mach.SavedReg{N: 16, Float: true}, true},
		{mach.SavedReg{N: 31, Float: true}, true},
	}

	for _, tt := range tests {
		got := IsCalleeSaved(tt.reg)
		if got != tt.want {
			t.Errorf("IsCalleeSaved(%v) = %v, want %v", tt.reg, got, tt.want)
		}
	}
}

func TestFindUsedCalleeSaveRegsEmpty(t *testing.T) {
	regs := FindUsedCalleeSaveRegs(function(false, 0))

	if len(regs) != 0 {
		t.Errorf("expected no callee-saved regs, got %v", regs)
	}
}

func TestFindUsedCalleeSaveRegsSorted(t *testing.T) {
	fn := function(false, 0,
		mach.SavedReg{N: 20, Float: true},
		mach.SavedReg{N: 7},
		mach.SavedReg{N: 1},
		mach.SavedReg{N: 4},
		mach.SavedReg{N: 16, Float: true},
	)
	want := []mach.SavedReg{{N: 4}, {N: 7}, {N: 16, Float: true}, {N: 20, Float: true}}

	if got := FindUsedCalleeSaveRegs(fn); !slices.Equal(got, want) {
		t.Errorf("FindUsedCalleeSaveRegs() = %v, want %v", got, want)
	}
}
