package alloc

import "golang.org/x/gcmm/address"

// LOSAllocator services every allocation the owning Plan redirects to the
// large object space: one page-aligned region per call, straight from the
// space's page resource, with no bump cursor to maintain between calls.
type LOSAllocator struct {
	space Refiller
}

func NewLOSAllocator(space Refiller) *LOSAllocator {
	return &LOSAllocator{space: space}
}

func (a *LOSAllocator) Alloc(size uintptr, align uintptr, offset int) address.Address {
	start, _, ok := a.space.AcquireRegion(size + align)
	if !ok {
		return address.ZeroAddress
	}
	return alignUp(start, align, offset)
}

// AllocSlow is identical to Alloc: every large-object allocation already
// goes straight to the page resource, so there is no separate fast path
// to fall back from.
func (a *LOSAllocator) AllocSlow(size uintptr, align uintptr, offset int) address.Address {
	return a.Alloc(size, align, offset)
}
