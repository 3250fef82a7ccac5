// Package mem2reg promotes stack slots of scalar locals to SSA values.
//
// Each promotable alloca goes through the cheapest applicable strategy:
// deletion when unused, forwarding of a single dominating store, in-block
// forwarding when every access shares one block, and otherwise pruned SSA
// construction (PHI placement on the iterated dominance frontier restricted
// to the live-in blocks, followed by renaming).
package mem2reg

import (
	"sort"

	"github.com/raymyers/ralph-ssa/pkg/dom"
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/sets"
)

const passName = "mem2reg"

// Options tunes promotion
type Options struct {
	// PromoteParams allows promoting slots that receive a parameter value.
	// By default those slots stay in memory.
	PromoteParams bool
}

// Stats summarises one run
type Stats struct {
	Promoted     int
	Skipped      int
	PhisInserted int
	PhisRemoved  int
}

type promoter struct {
	fn      *ir.Function
	dom     *dom.Info
	opts    Options
	general sets.Set[*ir.Operand] // slot addresses handled by renaming
	phis    []*ir.Phi
	phiSet  sets.Set[*ir.Phi]
	index   map[ir.Instruction]int
	indexed sets.Set[*ir.BasicBlock]
	stats   Stats
}

// Promote rewrites the promotable allocas of fn's entry block into SSA form.
// d must describe the current CFG of fn, which must have no unreachable blocks.
func Promote(fn *ir.Function, d *dom.Info, opts Options) Stats {
	if len(d.Blocks()) != fn.NumBlocks() {
		ir.FailFunc(passName, fn, "%d of %d blocks unreachable", fn.NumBlocks()-len(d.Blocks()), fn.NumBlocks())
	}
	p := &promoter{
		fn:      fn,
		dom:     d,
		opts:    opts,
		general: sets.New[*ir.Operand](),
		phiSet:  sets.New[*ir.Phi](),
		index:   make(map[ir.Instruction]int),
		indexed: sets.New[*ir.BasicBlock](),
	}

	for _, inst := range fn.Entry.Instructions() {
		a, ok := inst.(*ir.Alloca)
		if !ok {
			continue
		}
		if !p.isPromotable(a) {
			p.stats.Skipped++
			continue
		}
		p.stats.Promoted++
		p.promote(a)
	}

	if p.general.Len() > 0 {
		p.rename()
		p.simplify()
		for addr := range p.general {
			if addr.NumUses() != 0 {
				ir.FailFunc(passName, fn, "slot %s still has %d uses after renaming", addr, addr.NumUses())
			}
		}
	}
	return p.stats
}

// isPromotable checks that the slot is a scalar only accessed by plain
// loads and stores through its own address
func (p *promoter) isPromotable(a *ir.Alloca) bool {
	t := a.Allocated()
	if t.IsArray() {
		return false
	}
	addr := a.Addr()
	for _, user := range addr.Uses() {
		switch inst := user.(type) {
		case *ir.Load:
			if !inst.Dst().Type().Equal(t) {
				ir.Fail(passName, inst, "load of %s from a %s slot", inst.Dst().Type(), t)
			}
		case *ir.Store:
			if inst.Addr() != addr || inst.Value() == addr {
				return false
			}
			if !inst.Value().Type().Equal(t) {
				return false
			}
			if inst.Value().IsParam() && !p.opts.PromoteParams {
				return false
			}
		default:
			return false
		}
	}
	return true
}

type allocaInfo struct {
	defBlocks []*ir.BasicBlock
	useBlocks []*ir.BasicBlock
	stores    []*ir.Store
	loads     []*ir.Load
	onlyBlock *ir.BasicBlock // set when every access is in one block
}

func (p *promoter) analyze(a *ir.Alloca) allocaInfo {
	var info allocaInfo
	defSeen := sets.New[*ir.BasicBlock]()
	useSeen := sets.New[*ir.BasicBlock]()
	single := true
	for _, user := range a.Addr().Uses() {
		b := user.Parent()
		switch inst := user.(type) {
		case *ir.Store:
			info.stores = append(info.stores, inst)
			if defSeen.Add(b) {
				info.defBlocks = append(info.defBlocks, b)
			}
		case *ir.Load:
			info.loads = append(info.loads, inst)
			if useSeen.Add(b) {
				info.useBlocks = append(info.useBlocks, b)
			}
		}
		if info.onlyBlock == nil {
			info.onlyBlock = b
		} else if info.onlyBlock != b {
			single = false
		}
	}
	if !single {
		info.onlyBlock = nil
	}
	return info
}

func (p *promoter) promote(a *ir.Alloca) {
	if a.Addr().NumUses() == 0 {
		p.fn.Entry.Remove(a)
		return
	}
	info := p.analyze(a)
	if len(info.stores) == 1 {
		if p.rewriteSingleStore(a, info) {
			return
		}
		info = p.analyze(a)
	}
	if info.onlyBlock != nil && p.promoteSingleBlock(a, info) {
		return
	}
	liveIn := p.computeLiveIn(a, info)
	p.insertPhis(a, info, liveIn)
	p.general.Add(a.Addr())
}

// position returns the in-block index of inst. Indices are cached per block;
// removals and PHI insertion keep the relative order of cached entries.
func (p *promoter) position(inst ir.Instruction) int {
	b := inst.Parent()
	if p.indexed.Add(b) {
		for i, x := range b.Instructions() {
			p.index[x] = i
		}
	}
	return p.index[inst]
}

// rewriteSingleStore forwards the only store to every load it dominates.
// It reports false, leaving the undominated loads in place, when some load
// is not dominated.
func (p *promoter) rewriteSingleStore(a *ir.Alloca, info allocaInfo) bool {
	store := info.stores[0]
	sb := store.Parent()
	val := store.Value()
	remaining := 0
	for _, load := range info.loads {
		lb := load.Parent()
		if lb == sb {
			if p.position(load) < p.position(store) {
				remaining++
				continue
			}
		} else if !p.dom.Dominates(sb, lb) {
			remaining++
			continue
		}
		ir.ReplaceAllUsesWith(load.Dst(), val)
		lb.Remove(load)
	}
	if remaining > 0 {
		return false
	}
	sb.Remove(store)
	p.fn.Entry.Remove(a)
	return true
}

// promoteSingleBlock forwards the nearest preceding store to each load when
// all accesses share one block. A load ahead of every store may observe a
// value from a previous iteration, so that case goes to the general path.
func (p *promoter) promoteSingleBlock(a *ir.Alloca, info allocaInfo) bool {
	type indexedStore struct {
		idx   int
		store *ir.Store
	}
	stores := make([]indexedStore, len(info.stores))
	for i, s := range info.stores {
		stores[i] = indexedStore{p.position(s), s}
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].idx < stores[j].idx })

	loads := append([]*ir.Load(nil), info.loads...)
	sort.Slice(loads, func(i, j int) bool { return p.position(loads[i]) < p.position(loads[j]) })

	preceding := func(load *ir.Load) int {
		li := p.position(load)
		return sort.Search(len(stores), func(i int) bool { return stores[i].idx >= li }) - 1
	}
	if len(stores) > 0 && len(loads) > 0 && preceding(loads[0]) < 0 {
		return false
	}

	b := info.onlyBlock
	for _, load := range loads {
		var val *ir.Operand
		if k := preceding(load); k >= 0 {
			val = stores[k].store.Value()
		} else {
			val = p.fn.Zero(load.Dst().Type())
		}
		ir.ReplaceAllUsesWith(load.Dst(), val)
		b.Remove(load)
	}
	for _, s := range stores {
		b.Remove(s.store)
	}
	p.fn.Entry.Remove(a)
	return true
}

// computeLiveIn returns the blocks where the slot's value is live on entry
func (p *promoter) computeLiveIn(a *ir.Alloca, info allocaInfo) sets.Set[*ir.BasicBlock] {
	defBlocks := sets.Of(info.defBlocks...)
	var worklist []*ir.BasicBlock
	for _, b := range info.useBlocks {
		if defBlocks.Contains(b) && p.storesBeforeLoad(b, a.Addr()) {
			continue
		}
		worklist = append(worklist, b)
	}

	liveIn := sets.New[*ir.BasicBlock]()
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		if !liveIn.Add(b) {
			continue
		}
		for _, pred := range b.Preds() {
			if defBlocks.Contains(pred) {
				continue
			}
			worklist = append(worklist, pred)
		}
	}
	return liveIn
}

// storesBeforeLoad reports whether the first access to addr in b is a store
func (p *promoter) storesBeforeLoad(b *ir.BasicBlock, addr *ir.Operand) bool {
	for _, inst := range b.Instructions() {
		switch i := inst.(type) {
		case *ir.Store:
			if i.Addr() == addr {
				return true
			}
		case *ir.Load:
			if i.Addr() == addr {
				return false
			}
		}
	}
	return false
}

// insertPhis places PHI nodes on the iterated dominance frontier of the
// defining blocks, keeping only blocks where the slot is live-in
func (p *promoter) insertPhis(a *ir.Alloca, info allocaInfo, liveIn sets.Set[*ir.BasicBlock]) {
	visited := sets.New[*ir.BasicBlock]()
	queue := append([]*ir.BasicBlock(nil), info.defBlocks...)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, df := range p.dom.Frontier(b).Sorted(byNumber) {
			if !visited.Add(df) {
				continue
			}
			if liveIn.Contains(df) {
				phi := ir.NewPhi(a.Addr())
				df.InsertFront(phi)
				p.phis = append(p.phis, phi)
				p.phiSet.Add(phi)
				p.stats.PhisInserted++
			}
			queue = append(queue, df)
		}
	}
}

func byNumber(a, b *ir.BasicBlock) int { return a.No - b.No }

type renameFrame struct {
	block *ir.BasicBlock
	vals  map[*ir.Operand]*ir.Operand
}

// rename walks the CFG breadth-first from the entry, carrying the current
// value of every slot, and rewrites loads, stores and the new PHI nodes
func (p *promoter) rename() {
	visited := sets.New[*ir.BasicBlock]()
	queue := []renameFrame{{p.fn.Entry, make(map[*ir.Operand]*ir.Operand)}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if !visited.Add(f.block) {
			continue
		}
		for _, inst := range f.block.Instructions() {
			switch i := inst.(type) {
			case *ir.Alloca:
				if p.general.Contains(i.Addr()) {
					f.block.Remove(i)
				}
			case *ir.Load:
				if p.general.Contains(i.Addr()) {
					ir.ReplaceAllUsesWith(i.Dst(), p.current(f.vals, i.Addr()))
					f.block.Remove(i)
				}
			case *ir.Store:
				if p.general.Contains(i.Addr()) {
					f.vals[i.Addr()] = i.Value()
					f.block.Remove(i)
				}
			case *ir.Phi:
				if p.phiSet.Contains(i) {
					dst := p.fn.NewTemp(i.Addr().Type().Elem)
					i.SetDst(dst)
					f.vals[i.Addr()] = dst
				}
			}
		}
		for _, s := range f.block.Succs() {
			for _, phi := range s.Phis() {
				if p.phiSet.Contains(phi) {
					phi.AddEdge(f.block, p.current(f.vals, phi.Addr()))
				}
			}
			if !visited.Contains(s) {
				queue = append(queue, renameFrame{s, copyVals(f.vals)})
			}
		}
	}
}

// current returns the reaching value of a slot; a slot read before any
// store reads zero
func (p *promoter) current(vals map[*ir.Operand]*ir.Operand, addr *ir.Operand) *ir.Operand {
	if v, ok := vals[addr]; ok {
		return v
	}
	return p.fn.Zero(addr.Type().Elem)
}

func copyVals(vals map[*ir.Operand]*ir.Operand) map[*ir.Operand]*ir.Operand {
	result := make(map[*ir.Operand]*ir.Operand, len(vals))
	for k, v := range vals {
		result[k] = v
	}
	return result
}

// simplify replaces PHI nodes whose inputs are all the same value
func (p *promoter) simplify() {
	for changed := true; changed; {
		changed = false
		for _, phi := range p.phis {
			if phi.Parent() == nil {
				continue
			}
			in := phi.Incoming()
			if len(in) == 0 {
				continue
			}
			first := in[0].Value
			if first == phi.Dst() {
				continue
			}
			same := true
			for _, x := range in[1:] {
				if !ir.SameValue(first, x.Value) {
					same = false
					break
				}
			}
			if !same {
				continue
			}
			ir.ReplaceAllUsesWith(phi.Dst(), first)
			phi.Parent().Remove(phi)
			p.stats.PhisRemoved++
			changed = true
		}
	}
}
