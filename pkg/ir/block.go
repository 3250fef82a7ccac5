package ir

import (
	"container/list"
	"fmt"
	"slices"
)

// BasicBlock is a straight-line instruction sequence with CFG edges.
// Predecessor and successor sets keep insertion order.
type BasicBlock struct {
	No    int
	fn    *Function
	insts *list.List
	preds []*BasicBlock
	succs []*BasicBlock
}

// Label returns the block's printed name
func (b *BasicBlock) Label() string { return fmt.Sprintf("B%d", b.No) }

// Func returns the owning function
func (b *BasicBlock) Func() *Function { return b.fn }

// Len returns the number of instructions
func (b *BasicBlock) Len() int { return b.insts.Len() }

// Empty returns true if the block has no instructions
func (b *BasicBlock) Empty() bool { return b.insts.Len() == 0 }

// Instructions returns a snapshot of the instruction list, safe to
// iterate while the block is being modified.
func (b *BasicBlock) Instructions() []Instruction {
	result := make([]Instruction, 0, b.insts.Len())
	for e := b.insts.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value.(Instruction))
	}
	return result
}

// First returns the first instruction, or nil
func (b *BasicBlock) First() Instruction {
	if e := b.insts.Front(); e != nil {
		return e.Value.(Instruction)
	}
	return nil
}

// Last returns the last instruction, or nil
func (b *BasicBlock) Last() Instruction {
	if e := b.insts.Back(); e != nil {
		return e.Value.(Instruction)
	}
	return nil
}

// Terminator returns the last instruction if it is a terminator
func (b *BasicBlock) Terminator() Instruction {
	if last := b.Last(); last != nil && IsTerminator(last) {
		return last
	}
	return nil
}

// Phis returns the PHI nodes at the head of the block
func (b *BasicBlock) Phis() []*Phi {
	var result []*Phi
	for e := b.insts.Front(); e != nil; e = e.Next() {
		phi, ok := e.Value.(*Phi)
		if !ok {
			break
		}
		result = append(result, phi)
	}
	return result
}

// Next returns the instruction after inst in its block, or nil
func Next(inst Instruction) Instruction {
	if e := inst.node().elem.Next(); e != nil {
		return e.Value.(Instruction)
	}
	return nil
}

// Prev returns the instruction before inst in its block, or nil
func Prev(inst Instruction) Instruction {
	if e := inst.node().elem.Prev(); e != nil {
		return e.Value.(Instruction)
	}
	return nil
}

// InsertFront places inst at the head of the block
func (b *BasicBlock) InsertFront(inst Instruction) {
	b.attach(inst, b.insts.PushFront(inst))
}

// InsertBack places inst at the end of the block
func (b *BasicBlock) InsertBack(inst Instruction) {
	b.attach(inst, b.insts.PushBack(inst))
}

// InsertBefore places inst immediately before pos
func InsertBefore(inst, pos Instruction) {
	b := pos.Parent()
	b.attach(inst, b.insts.InsertBefore(inst, pos.node().elem))
}

// InsertAfter places inst immediately after pos
func InsertAfter(inst, pos Instruction) {
	b := pos.Parent()
	b.attach(inst, b.insts.InsertAfter(inst, pos.node().elem))
}

func (b *BasicBlock) attach(inst Instruction, e *list.Element) {
	n := inst.node()
	if n.parent != nil {
		panic(fmt.Sprintf("ir: instruction already in block %s", n.parent.Label()))
	}
	n.parent = b
	n.elem = e
}

// Remove unlinks inst from the block and detaches it from the use
// lists of its operands. Its defined operand loses its definition.
func (b *BasicBlock) Remove(inst Instruction) {
	n := inst.node()
	if n.parent != b {
		panic(fmt.Sprintf("ir: instruction not in block %s", b.Label()))
	}
	b.insts.Remove(n.elem)
	n.parent = nil
	n.elem = nil
	for _, u := range n.uses {
		u.removeUse(inst)
	}
	for _, d := range n.defs {
		if d.def == inst {
			d.def = nil
		}
	}
}

// Index returns the position of inst within its block
func Index(inst Instruction) int {
	n := inst.node()
	if n.parent == nil {
		return -1
	}
	i := 0
	for e := n.parent.insts.Front(); e != nil; e = e.Next() {
		if e == n.elem {
			return i
		}
		i++
	}
	return -1
}

// Preds returns the predecessor blocks
func (b *BasicBlock) Preds() []*BasicBlock { return slices.Clone(b.preds) }

// Succs returns the successor blocks
func (b *BasicBlock) Succs() []*BasicBlock { return slices.Clone(b.succs) }

func (b *BasicBlock) NumPreds() int { return len(b.preds) }
func (b *BasicBlock) NumSuccs() int { return len(b.succs) }

// HasPred returns true if p is a predecessor of b
func (b *BasicBlock) HasPred(p *BasicBlock) bool { return slices.Contains(b.preds, p) }

// HasSucc returns true if s is a successor of b
func (b *BasicBlock) HasSucc(s *BasicBlock) bool { return slices.Contains(b.succs, s) }

// AddPred adds p to the predecessor set
func (b *BasicBlock) AddPred(p *BasicBlock) {
	if !b.HasPred(p) {
		b.preds = append(b.preds, p)
	}
}

// AddSucc adds s to the successor set
func (b *BasicBlock) AddSucc(s *BasicBlock) {
	if !b.HasSucc(s) {
		b.succs = append(b.succs, s)
	}
}

// RemovePred removes p from the predecessor set
func (b *BasicBlock) RemovePred(p *BasicBlock) {
	b.preds = slices.DeleteFunc(b.preds, func(x *BasicBlock) bool { return x == p })
}

// RemoveSucc removes s from the successor set
func (b *BasicBlock) RemoveSucc(s *BasicBlock) {
	b.succs = slices.DeleteFunc(b.succs, func(x *BasicBlock) bool { return x == s })
}

// Link adds the edge from -> to on both ends
func Link(from, to *BasicBlock) {
	from.AddSucc(to)
	to.AddPred(from)
}

// Unlink removes the edge from -> to on both ends
func Unlink(from, to *BasicBlock) {
	from.RemoveSucc(to)
	to.RemovePred(from)
}
