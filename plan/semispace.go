package plan

import (
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// SemiSpacePlan is the textbook two-hemisphere copying collector: mutators
// always allocate into the active hemisphere, and a cycle forwards every
// reachable object from the active hemisphere into the other one before
// swapping which is active.
type SemiSpacePlan struct {
	CommonPlan

	hemisphere [2]*space.CopySpace
	active     int
}

func NewSemiSpacePlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace, a, b *space.CopySpace) *SemiSpacePlan {
	a.Target = b
	b.Target = a
	return &SemiSpacePlan{
		CommonPlan: NewCommonPlan(base, immortal, los),
		hemisphere: [2]*space.CopySpace{a, b},
	}
}

func (p *SemiSpacePlan) Kind() Kind { return KindSemiSpace }

// active is the hemisphere mutators currently allocate into, i.e. the one
// that holds this cycle's live objects and is about to be evacuated.
func (p *SemiSpacePlan) activeHemisphere() *space.CopySpace { return p.hemisphere[p.active] }

// Prepare retires the active hemisphere: the next trace forwards
// everything reachable out of it into the other half (fixed via each
// CopySpace's Target at construction time).
func (p *SemiSpacePlan) Prepare() {
	p.CommonPlan.Prepare()
	p.activeHemisphere().SetFromSpace(true)
}

// Release resets the now-vacated hemisphere and flips which half mutators
// allocate into for the next cycle.
func (p *SemiSpacePlan) Release() {
	p.CommonPlan.Release()
	p.activeHemisphere().Release()
	p.active = 1 - p.active
}

func (p *SemiSpacePlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorBump
	return m
}

func (p *SemiSpacePlan) BindMutator(m *mutator.Mutator) {
	p.CommonPlan.BindMutator(m)
	m.BindAllocator(alloc.SelectorBump, alloc.NewBumpAllocator(p.activeHemisphere()))
}

func (p *SemiSpacePlan) RebindMutator(m *mutator.Mutator) {
	m.BindAllocator(alloc.SelectorBump, alloc.NewBumpAllocator(p.activeHemisphere()))
}

// CollectionRequired checks PagesReserved (twice the active hemisphere's
// reservation plus the shared spaces') against the heap's total page budget.
func (p *SemiSpacePlan) CollectionRequired(spaceFull bool) bool {
	return p.BasePlan.CollectionRequired(spaceFull, p.PagesReserved())
}

func (p *SemiSpacePlan) PagesUsed() int {
	return p.hemisphere[0].ReservedPages() + p.commonPagesReserved()
}

// PagesReserved doubles the active hemisphere's usage, mirroring the
// source's copy-reserve accounting: a semispace plan must always be able
// to fit everything it copies out of from-space into to-space.
func (p *SemiSpacePlan) PagesReserved() int {
	return 2*p.activeHemisphere().ReservedPages() + p.commonPagesReserved()
}
