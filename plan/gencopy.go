package plan

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/barrier"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// GenCopyPlan is a two-generation copying collector: a small nursery
// CopySpace mutators allocate into directly, and a mature semispace pair
// survivors get promoted into. Most cycles are nursery-only (cheap: only
// the nursery and the logged mature objects the barrier recorded are
// traced); a full heap collection also evacuates the mature semispace.
type GenCopyPlan struct {
	CommonPlan

	Nursery *space.CopySpace
	mature  [2]*space.CopySpace
	active  int

	logged      *barrier.ObjectBarrier
	nurseryOnly bool
}

func NewGenCopyPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace, nursery *space.CopySpace, matureA, matureB *space.CopySpace, sink barrier.ModBufferSink) *GenCopyPlan {
	matureA.Target = matureB
	matureB.Target = matureA
	nursery.Target = matureA // Prepare re-points this at whichever mature hemisphere is active before every cycle
	return &GenCopyPlan{
		CommonPlan: NewCommonPlan(base, immortal, los),
		Nursery:    nursery,
		mature:     [2]*space.CopySpace{matureA, matureB},
		logged:     &barrier.ObjectBarrier{Logged: barrier.NewLoggedBitSpec(), Sink: sink},
	}
}

func (p *GenCopyPlan) Kind() Kind { return KindGenCopy }

// ClearLogged unsets obj's write-barrier logged bit, called by the
// collector once obj's mod-buffer entry has been drained and rescanned
// this cycle.
func (p *GenCopyPlan) ClearLogged(obj address.ObjectReference) { p.logged.ClearLogged(obj) }

func (p *GenCopyPlan) activeMature() *space.CopySpace { return p.mature[p.active] }

// Prepare retires the nursery every cycle, and additionally retires the
// active mature hemisphere on a full-heap cycle. A real scheduler decides
// full-vs-nursery from nursery-triggered vs stress/heap-full triggers;
// here the caller (root package) passes that decision in via SetFullHeap.
func (p *GenCopyPlan) Prepare() {
	p.CommonPlan.Prepare()
	p.Nursery.Target = p.activeMature()
	p.Nursery.SetFromSpace(true)
	if !p.nurseryOnly {
		p.activeMature().SetFromSpace(true)
	}
}

// SetFullHeap selects whether the next Prepare/Release pair evacuates the
// mature generation too, rather than only the nursery.
func (p *GenCopyPlan) SetFullHeap(full bool) { p.nurseryOnly = !full }

func (p *GenCopyPlan) Release() {
	p.CommonPlan.Release()
	p.Nursery.Release()
	if !p.nurseryOnly {
		p.activeMature().Release()
		p.active = 1 - p.active
	}
}

func (p *GenCopyPlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorBump
	return m
}

func (p *GenCopyPlan) BindMutator(m *mutator.Mutator) {
	p.CommonPlan.BindMutator(m)
	m.BindAllocator(alloc.SelectorBump, alloc.NewBumpAllocator(p.Nursery))
	m.Barrier = p.logged
}

// RebindMutator re-binds the nursery allocator: the Nursery CopySpace
// itself is reset (not replaced) by Release, so the bump allocator only
// needs recreating to drop its now-stale cursor/limit.
func (p *GenCopyPlan) RebindMutator(m *mutator.Mutator) {
	m.BindAllocator(alloc.SelectorBump, alloc.NewBumpAllocator(p.Nursery))
}

func (p *GenCopyPlan) CollectionRequired(spaceFull bool) bool {
	return p.BasePlan.CollectionRequired(spaceFull, p.PagesReserved())
}

func (p *GenCopyPlan) PagesUsed() int {
	return p.Nursery.ReservedPages() + p.mature[0].ReservedPages() + p.commonPagesReserved()
}

func (p *GenCopyPlan) PagesReserved() int {
	return p.Nursery.ReservedPages() + 2*p.activeMature().ReservedPages() + p.commonPagesReserved()
}
