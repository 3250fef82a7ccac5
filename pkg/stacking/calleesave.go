package stacking

import (
	"github.com/raymyers/ralph-ssa/pkg/mach"
)

// AAPCS callee-saved registers:
// - r4-r11 (core, r11 is the frame pointer)
// - s16-s31 (float)

// IsCalleeSaved returns true if the register is callee-saved. The frame
// pointer is saved by every prologue and is not reported.
func IsCalleeSaved(r mach.SavedReg) bool {
	if r.Float {
		return r.N >= 16 && r.N <= 31
	}
	return r.N >= 4 && r.N <= 10
}

// FindUsedCalleeSaveRegs returns the callee-saved registers fn writes,
// core registers first, in ascending order
func FindUsedCalleeSaveRegs(fn *mach.Function) []mach.SavedReg {
	var result []mach.SavedReg
	for _, r := range fn.UsedRegs() {
		if IsCalleeSaved(r) {
			result = append(result, r)
		}
	}
	return result
}
