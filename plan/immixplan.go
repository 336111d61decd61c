package plan

import (
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// ImmixPlan runs a single non-moving ImmixSpace as the default allocation
// space: a whole-heap mark phase followed by line-granularity reclamation,
// no evacuation. StickyImmix reuses ImmixSpace the same way, adding a
// nursery in front of it.
type ImmixPlan struct {
	CommonPlan

	Immix *space.ImmixSpace
}

func NewImmixPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace, immix *space.ImmixSpace) *ImmixPlan {
	return &ImmixPlan{CommonPlan: NewCommonPlan(base, immortal, los), Immix: immix}
}

func (p *ImmixPlan) Kind() Kind { return KindImmix }

func (p *ImmixPlan) Prepare() {
	p.CommonPlan.Prepare()
	p.Immix.Prepare()
}

func (p *ImmixPlan) Release() {
	p.CommonPlan.Release()
	p.Immix.Release()
}

func (p *ImmixPlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorImmix
	return m
}

func (p *ImmixPlan) BindMutator(m *mutator.Mutator) {
	p.CommonPlan.BindMutator(m)
	m.BindAllocator(alloc.SelectorImmix, alloc.NewImmixAllocator(p.Immix))
}

// RebindMutator is a no-op: ImmixSpace is never replaced across a cycle,
// only reset in place, so the bound ImmixAllocator's HoleSource stays
// valid.
func (p *ImmixPlan) RebindMutator(m *mutator.Mutator) {}

func (p *ImmixPlan) CollectionRequired(spaceFull bool) bool {
	return p.BasePlan.CollectionRequired(spaceFull, p.PagesReserved())
}

func (p *ImmixPlan) PagesUsed() int     { return p.Immix.ReservedPages() + p.commonPagesReserved() }
func (p *ImmixPlan) PagesReserved() int { return p.PagesUsed() }
