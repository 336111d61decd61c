package plan

import (
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// NoGCPlan never collects: every allocation, of any semantic, goes into
// CommonPlan's ImmortalSpace, and CollectionRequired only ever reports
// true once the heap is genuinely exhausted (no stress-test GC, since
// there would be nothing useful for it to reclaim).
type NoGCPlan struct {
	CommonPlan
}

func NewNoGCPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace) *NoGCPlan {
	return &NoGCPlan{CommonPlan: NewCommonPlan(base, immortal, los)}
}

func (p *NoGCPlan) Kind() Kind { return KindNoGC }

func (p *NoGCPlan) Prepare() { p.CommonPlan.Prepare() }
func (p *NoGCPlan) Release() { p.CommonPlan.Release() }

func (p *NoGCPlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorImmortal
	return m
}

// CollectionRequired ignores spaceFull: under NoGC a full heap is an
// out-of-memory condition the caller surfaces directly, not a trigger to
// schedule collection work that would reclaim nothing.
func (p *NoGCPlan) CollectionRequired(spaceFull bool) bool { return false }

func (p *NoGCPlan) PagesUsed() int     { return p.commonPagesReserved() }
func (p *NoGCPlan) PagesReserved() int { return p.commonPagesReserved() }

func (p *NoGCPlan) BindMutator(m *mutator.Mutator) { p.CommonPlan.BindMutator(m) }

// RebindMutator is a no-op: NoGC never collects, so nothing ever moves.
func (p *NoGCPlan) RebindMutator(m *mutator.Mutator) {}
