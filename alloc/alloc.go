// Package alloc implements the mutator-side fast paths that turn a
// request for size/align/offset bytes into a bump of a cursor, or a pop
// off a free list, falling back to a slow path that refills from the
// owning space's page resource when the fast path runs dry.
package alloc

import "golang.org/x/gcmm/address"

// Allocator is what a Mutator dispatches alloc/alloc_slow calls to. Alloc
// returns the zero address on failure, which the caller interprets as
// "retry through alloc_slow".
type Allocator interface {
	Alloc(size uintptr, align uintptr, offset int) address.Address
	AllocSlow(size uintptr, align uintptr, offset int) address.Address
}

// Refiller is implemented by the space backing an allocator: when the
// fast path runs out of room, the allocator asks its space for more,
// which may itself poll the Plan for a collection.
type Refiller interface {
	// AcquireRegion asks for at least minBytes of fresh allocatable space
	// and returns its bounds, or ok=false if none could be acquired (the
	// caller should then block for GC and retry).
	AcquireRegion(minBytes uintptr) (start, limit address.Address, ok bool)
}

func alignUp(addr address.Address, align uintptr, offset int) address.Address {
	return addr.AddOffset(offset).AlignUp(align).AddOffset(-offset)
}

// Semantic names why an allocation is being made, so the Plan can map it
// to the right allocator without the Mutator needing to know which plan
// kind is active.
type Semantic int

const (
	Default Semantic = iota
	Immortal
	Los
	Code
	ReadOnly
)

// Selector names which allocator kind services a Semantic. AllocatorMapping
// pairs the two; Plan.GetAllocatorMapping returns one of these per
// semantic, and Mutator.Alloc consults it to dispatch.
type Selector int

const (
	SelectorBump Selector = iota
	SelectorLOS
	SelectorImmix
	SelectorFreeList
	SelectorMarkCompact
	SelectorImmortal
	numSelectors
)

// AllocatorMapping is the Plan-supplied table of semantic -> selector used
// throughout §4.7/§4.8.
type AllocatorMapping map[Semantic]Selector
