package plan

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/space"
)

// CompactingSpace is the method set MarkCompactSpace and CompressorSpace
// share: a single Plan kind drives either one through it, so the choice
// between the exact-address forwarding table and the bitmap-popcount
// forwarding function is a construction-time detail (see plan.Config) the
// Plan body never branches on.
type CompactingSpace interface {
	AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool)
	Prepare()
	Release()
	IsLive(obj address.ObjectReference) bool
	TraceObject(obj address.ObjectReference) address.ObjectReference
	ComputeForwardingAddresses()
	GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool)
	Compact()
	ReservedPages() int
	ForEachLiveObject(fn func(address.ObjectReference))
}

// MarkCompactPlan runs a single CompactingSpace (either a MarkCompactSpace
// or a CompressorSpace) as the default space: Prepare starts a mark phase,
// and between the trace closure draining and Release the driver must call
// ComputeForwardingAddresses then Compact — exposed here rather than
// folded into Release because root/reference forwarding (per spec.md
// §4.9's bucket ordering) must run after addresses are computed but
// before the bytes actually move.
type MarkCompactPlan struct {
	CommonPlan

	Space CompactingSpace
}

func NewMarkCompactPlan(base BasePlan, immortal *space.ImmortalSpace, los *space.LargeObjectSpace, s CompactingSpace) *MarkCompactPlan {
	return &MarkCompactPlan{CommonPlan: NewCommonPlan(base, immortal, los), Space: s}
}

func (p *MarkCompactPlan) Kind() Kind { return KindMarkCompact }

func (p *MarkCompactPlan) Prepare() {
	p.CommonPlan.Prepare()
	p.Space.Prepare()
}

// ComputeForwardingAddresses and Compact are the two compaction-specific
// phases a SemiSpace/Immix cycle has no equivalent of; the scheduler's
// bucket graph calls them between the closure buckets and Release.
func (p *MarkCompactPlan) ComputeForwardingAddresses() { p.Space.ComputeForwardingAddresses() }
func (p *MarkCompactPlan) Compact()                    { p.Space.Compact() }

func (p *MarkCompactPlan) Release() {
	p.CommonPlan.Release()
	p.Space.Release()
}

func (p *MarkCompactPlan) GetAllocatorMapping() alloc.AllocatorMapping {
	m := commonAllocatorMapping()
	m[alloc.Default] = alloc.SelectorMarkCompact
	return m
}

func (p *MarkCompactPlan) BindMutator(m *mutator.Mutator) {
	p.CommonPlan.BindMutator(m)
	m.BindAllocator(alloc.SelectorMarkCompact, alloc.NewMarkCompactAllocator(p.Space))
}

// RebindMutator rebuilds the allocator: Compact moves the bump cursor out
// from under any allocator still holding the pre-compaction limit.
func (p *MarkCompactPlan) RebindMutator(m *mutator.Mutator) {
	m.BindAllocator(alloc.SelectorMarkCompact, alloc.NewMarkCompactAllocator(p.Space))
}

func (p *MarkCompactPlan) CollectionRequired(spaceFull bool) bool {
	return p.BasePlan.CollectionRequired(spaceFull, p.PagesReserved())
}

func (p *MarkCompactPlan) PagesUsed() int     { return p.Space.ReservedPages() + p.commonPagesReserved() }
func (p *MarkCompactPlan) PagesReserved() int { return p.PagesUsed() }
