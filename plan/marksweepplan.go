package plan

import (
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// MarkSweepPlan runs a single non-moving MarkSweepSpace as the default
// allocation space: a whole-heap mark phase followed by a free-list
// sweep, no evacuation — the free-list counterpart to ImmixPlan's
// bump-into-holes allocation.
type MarkSweepPlan struct {
	CommonPlan

	MarkSweep *space.MarkSweepSpace
}

func NewMarkSweepPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace, ms *space.MarkSweepSpace) *MarkSweepPlan {
	return &MarkSweepPlan{CommonPlan: NewCommonPlan(base, immortal, los), MarkSweep: ms}
}

func (p *MarkSweepPlan) Kind() Kind { return KindMarkSweep }

func (p *MarkSweepPlan) Prepare() {
	p.CommonPlan.Prepare()
	p.MarkSweep.Prepare()
}

func (p *MarkSweepPlan) Release() {
	p.CommonPlan.Release()
	p.MarkSweep.Release()
}

func (p *MarkSweepPlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorFreeList
	return m
}

func (p *MarkSweepPlan) BindMutator(m *mutator.Mutator) {
	p.CommonPlan.BindMutator(m)
	fl := alloc.NewFreeListAllocator(p.MarkSweep)
	fl.SizeClassOf = p.MarkSweep.SizeClassOf
	m.BindAllocator(alloc.SelectorFreeList, fl)
}

// RebindMutator is a no-op: MarkSweepSpace's blocks are reused in place
// across a cycle, never replaced.
func (p *MarkSweepPlan) RebindMutator(m *mutator.Mutator) {}

func (p *MarkSweepPlan) CollectionRequired(spaceFull bool) bool {
	return p.BasePlan.CollectionRequired(spaceFull, p.PagesReserved())
}

func (p *MarkSweepPlan) PagesUsed() int     { return p.MarkSweep.ReservedPages() + p.commonPagesReserved() }
func (p *MarkSweepPlan) PagesReserved() int { return p.PagesUsed() }
