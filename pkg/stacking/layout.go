// Package stacking lays out the activation record of allocated machine
// functions and adds their prologue and epilogue.
package stacking

import "github.com/raymyers/ralph-ssa/pkg/mach"

const (
	stackAlignment = 8 // AAPCS keeps sp 8-byte aligned at calls
	wordSize       = 4
)

// Frame layout after the prologue (the callee's view):
//
//	+---------------------------+  <- sp at the call
//	| saved core registers      |  push {r4.., fp, lr}
//	| saved float registers     |  vpush {s16..}
//	+---------------------------+  <- fp
//	| locals and spill slots    |  negative offsets from fp
//	| padding                   |
//	+---------------------------+  <- sp (8-byte aligned)
//
// Incoming stack arguments sit above the saved registers.

// FrameLayout describes the concrete frame of one function
type FrameLayout struct {
	SavedCore  []int // pushed core registers, fp and lr included
	SavedFloat []int // contiguous, vpush takes a register range
	LocalSize  int   // locals and spill slots, rounded to the alignment
	FrameSize  int   // sp decrement after fp is set
}

// ComputeLayout computes the frame layout of an allocated function
func ComputeLayout(fn *mach.Function) *FrameLayout {
	layout := &FrameLayout{}
	for _, r := range FindUsedCalleeSaveRegs(fn) {
		if r.Float {
			layout.SavedFloat = append(layout.SavedFloat, r.N)
		} else {
			layout.SavedCore = append(layout.SavedCore, r.N)
		}
	}
	layout.SavedCore = append(layout.SavedCore, mach.FP)
	if !IsLeafFunction(fn) {
		layout.SavedCore = append(layout.SavedCore, mach.LR)
	}
	if n := len(layout.SavedFloat); n > 0 {
		lo, hi := layout.SavedFloat[0], layout.SavedFloat[n-1]
		layout.SavedFloat = layout.SavedFloat[:0]
		for s := lo; s <= hi; s++ {
			layout.SavedFloat = append(layout.SavedFloat, s)
		}
	}

	layout.LocalSize = int(alignUp(int64(fn.Frame.Size), stackAlignment))
	saved := layout.SaveAreaSize()
	// the pushes and the frame together keep sp aligned
	layout.FrameSize = int(alignUp(int64(saved+layout.LocalSize), stackAlignment)) - saved
	return layout
}

// SaveAreaSize returns the bytes pushed by the prologue
func (l *FrameLayout) SaveAreaSize() int {
	return wordSize * (len(l.SavedCore) + len(l.SavedFloat))
}

// IncomingSlotOffset returns the fp offset of the incoming argument at
// offset ofs of the caller's argument area
func (l *FrameLayout) IncomingSlotOffset(ofs int64) int64 {
	return int64(l.SaveAreaSize()) + ofs
}

// alignUp rounds n up to the nearest multiple of align
func alignUp(n, align int64) int64 {
	if align == 0 {
		return n
	}
	return ((n + align - 1) / align) * align
}
