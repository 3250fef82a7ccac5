package stacking

import (
	"slices"
	"testing"

	"github.com/raymyers/ralph-ssa/pkg/mach"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		n, align, want int64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{7, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{4, 0, 4},
	}

	for _, tt := range tests {
		got := alignUp(tt.n, tt.align)
		if got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}

// function builds a one-block function that writes the given registers
func function(calls bool, frame int, used ...mach.SavedReg) *mach.Function {
	f := mach.NewUnit(0).NewFunction("f")
	b := f.NewBlock(1)
	if calls {
		b.Append(mach.NewInstruction(mach.OpCall, mach.Always, nil, []*mach.Operand{mach.NewLabel("g")}))
	}
	b.Append(mach.NewInstruction(mach.OpRet, mach.Always, nil, nil))
	f.Frame.Size = frame
	for _, r := range used {
		f.AddUsedReg(r.N, r.Float)
	}
	return f
}

func TestComputeLayout(t *testing.T) {
	tests := []struct {
		name       string
		fn         *mach.Function
		wantCore   []int
		wantFloat  []int
		wantLocal  int
		wantFrame  int
		wantSaveSz int
	}{
		{
			name:       "empty leaf",
			fn:         function(false, 0),
			wantCore:   []int{mach.FP},
			wantFrame:  4,
			wantSaveSz: 4,
		},
		{
			name:       "leaf with a local",
			fn:         function(false, 4, mach.SavedReg{N: 4}),
			wantCore:   []int{4, mach.FP},
			wantLocal:  8,
			wantFrame:  8,
			wantSaveSz: 8,
		},
		{
			name:       "caller with float registers",
			fn:         function(true, 12, mach.SavedReg{N: 5}, mach.SavedReg{N: 4}, mach.SavedReg{N: 18, Float: true}, mach.SavedReg{N: 16, Float: true}),
			wantCore:   []int{4, 5, mach.FP, mach.LR},
			wantFloat:  []int{16, 17, 18},
			wantLocal:  16,
			wantFrame:  20,
			wantSaveSz: 28,
		},
		{
			name:       "caller-saved registers are not pushed",
			fn:         function(true, 0, mach.SavedReg{N: 0}, mach.SavedReg{N: 3, Float: true}),
			wantCore:   []int{mach.FP, mach.LR},
			wantSaveSz: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layout := ComputeLayout(tt.fn)
			if !slices.Equal(layout.SavedCore, tt.wantCore) {
				t.Errorf("SavedCore = %v, want %v", layout.SavedCore, tt.wantCore)
			}
			if !slices.Equal(layout.SavedFloat, tt.wantFloat) {
				t.Errorf("SavedFloat = %v, want %v", layout.SavedFloat, tt.wantFloat)
			}
			if layout.LocalSize != tt.wantLocal {
				t.Errorf("LocalSize = %d, want %d", layout.LocalSize, tt.wantLocal)
			}
			if layout.FrameSize != tt.wantFrame {
				t.Errorf("FrameSize = %d, want %d", layout.FrameSize, tt.wantFrame)
			}
			if got := layout.SaveAreaSize(); got != tt.wantSaveSz {
				t.Errorf("SaveAreaSize() = %d, want %d", got, tt.wantSaveSz)
			}
			if (layout.SaveAreaSize()+layout.FrameSize)%stackAlignment != 0 {
				t.Errorf("sp is misaligned by %d", (layout.SaveAreaSize()+layout.FrameSize)%stackAlignment)
			}
		})
	}
}

func TestIncomingSlotOffset(t *testing.T) {
	layout := ComputeLayout(function(true, 0, mach.SavedReg{N: 4}))
	if got := layout.IncomingSlotOffset(4); got != 16 {
		t.Errorf("IncomingSlotOffset(4) = %d, want 16", got)
	}
}
