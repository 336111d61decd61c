package alloc

import "golang.org/x/gcmm/address"

// BumpAllocator is the cursor/limit fast path shared by CopySpace,
// ImmortalSpace and (until a region is consumed) ImmixSpace/MarkCompact's
// post-compaction allocation. MaxNonLOSDefaultAllocBytes, when non-zero,
// redirects any request at or above that size to LOSRedirect instead of
// ever touching cursor/limit, mirroring the plan-supplied threshold in
// §4.7.
type BumpAllocator struct {
	cursor, limit address.Address
	space         Refiller

	MaxNonLOSDefaultAllocBytes uintptr
	LOSRedirect                Allocator
}

func NewBumpAllocator(space Refiller) *BumpAllocator {
	return &BumpAllocator{space: space}
}

func (a *BumpAllocator) Alloc(size uintptr, align uintptr, offset int) address.Address {
	if a.MaxNonLOSDefaultAllocBytes != 0 && size >= a.MaxNonLOSDefaultAllocBytes {
		return a.LOSRedirect.Alloc(size, align, offset)
	}
	result := alignUp(a.cursor, align, offset)
	newCursor := result.Add(size)
	if newCursor <= a.limit {
		a.cursor = newCursor
		return result
	}
	return address.ZeroAddress
}

func (a *BumpAllocator) AllocSlow(size uintptr, align uintptr, offset int) address.Address {
	if a.MaxNonLOSDefaultAllocBytes != 0 && size >= a.MaxNonLOSDefaultAllocBytes {
		return a.LOSRedirect.AllocSlow(size, align, offset)
	}
	// Request enough headroom to cover the worst-case alignment padding.
	start, limit, ok := a.space.AcquireRegion(size + align)
	if !ok {
		return address.ZeroAddress
	}
	a.cursor, a.limit = start, limit
	return a.Alloc(size, align, offset)
}

// Rebind points the allocator at a freshly acquired region directly,
// without going through AcquireRegion; used when a Plan hands a mutator a
// pre-sized nursery or copy-reserve block.
func (a *BumpAllocator) Rebind(start, limit address.Address) {
	a.cursor, a.limit = start, limit
}
