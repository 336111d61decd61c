package plan

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/barrier"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// StickyImmixPlan is generational Immix: a nursery CopySpace mutators
// allocate into and evacuate out of every cycle, promoting survivors
// directly into a non-moving mature ImmixSpace (so, unlike GenCopy,
// promotion needs no second semispace — the mature space never moves).
// An ObjectBarrier records mature-to-nursery pointer writes so a
// nursery-only cycle can treat logged mature objects as extra roots
// instead of re-scanning the whole mature space.
type StickyImmixPlan struct {
	CommonPlan

	Nursery *space.CopySpace
	Mature  *space.ImmixSpace

	logged      *barrier.ObjectBarrier
	nurseryOnly bool
}

func NewStickyImmixPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace, nursery *space.CopySpace, mature *space.ImmixSpace, sink barrier.ModBufferSink) *StickyImmixPlan {
	nursery.Target = mature // ImmixSpace implements space.CopyDestination directly
	return &StickyImmixPlan{
		CommonPlan: NewCommonPlan(base, immortal, los),
		Nursery:    nursery,
		Mature:     mature,
		logged:     &barrier.ObjectBarrier{Logged: barrier.NewLoggedBitSpec(), Sink: sink},
	}
}

func (p *StickyImmixPlan) Kind() Kind { return KindStickyImmix }

// ClearLogged unsets obj's write-barrier logged bit, called by the
// collector once obj's mod-buffer entry has been drained and rescanned
// this cycle.
func (p *StickyImmixPlan) ClearLogged(obj address.ObjectReference) { p.logged.ClearLogged(obj) }

// SetFullHeap selects whether this cycle also traces and reclaims the
// mature ImmixSpace, rather than just evacuating the nursery.
func (p *StickyImmixPlan) SetFullHeap(full bool) { p.nurseryOnly = !full }

func (p *StickyImmixPlan) Prepare() {
	p.CommonPlan.Prepare()
	p.Nursery.SetFromSpace(true)
	if !p.nurseryOnly {
		p.Mature.Prepare()
	}
}

// Release vacates the nursery every cycle (its CopySpace.Release resets
// the cursor and forwarding state survivors were just promoted out of
// via Target) and, on a full-heap cycle, also sweeps the mature space.
func (p *StickyImmixPlan) Release() {
	p.CommonPlan.Release()
	p.Nursery.Release()
	if !p.nurseryOnly {
		p.Mature.Release()
	}
}

func (p *StickyImmixPlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorBump
	return m
}

func (p *StickyImmixPlan) BindMutator(m *mutator.Mutator) {
	p.CommonPlan.BindMutator(m)
	m.BindAllocator(alloc.SelectorBump, alloc.NewBumpAllocator(p.Nursery))
	m.BindAllocator(alloc.SelectorImmix, alloc.NewImmixAllocator(p.Mature))
	m.Barrier = p.logged
}

func (p *StickyImmixPlan) RebindMutator(m *mutator.Mutator) {
	m.BindAllocator(alloc.SelectorBump, alloc.NewBumpAllocator(p.Nursery))
}

func (p *StickyImmixPlan) CollectionRequired(spaceFull bool) bool {
	return p.BasePlan.CollectionRequired(spaceFull, p.PagesReserved())
}

func (p *StickyImmixPlan) PagesUsed() int {
	return p.Nursery.ReservedPages() + p.Mature.ReservedPages() + p.commonPagesReserved()
}

func (p *StickyImmixPlan) PagesReserved() int { return p.PagesUsed() }
