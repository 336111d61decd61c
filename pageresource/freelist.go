package pageresource

import (
	"sync"

	"golang.org/x/gcmm/vmmap"
)

// FreeListPageResource maintains a free list of variable-sized page runs
// within a region the VMMap has already reserved for its space. ReleasePages looks
// up the run's size and returns it to the free list, where it coalesces
// with neighbouring free runs.
type FreeListPageResource struct {
	common

	mu    sync.Mutex
	free  *vmmap.PageFreeList
	// allocatedRuns records, per allocated unit, how many pages that run
	// spans. A free run's length can be read back from the free list
	// itself, but once a run is allocated vmmap.PageFreeList no longer
	// tracks it, so ReleasePages needs this side table to know how much
	// to return.
	allocatedRuns map[int]int
}

// NewFreeList creates a FreeListPageResource over a region that the VMMap
// has already reserved for desc, starting at start.
func NewFreeList(start uintptr, vmMap vmmap.VMMap, desc vmmap.SpaceDescriptor) *FreeListPageResource {
	return &FreeListPageResource{
		common:        common{contiguous: true, start: start, vmMap: vmMap, desc: desc},
		free:          vmMap.CreateFreeList(start),
		allocatedRuns: make(map[int]int),
	}
}

func (r *FreeListPageResource) AllocPages(spaceDescriptor vmmap.SpaceDescriptor, reservedPages, requiredPages int) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unit, ok := r.free.Alloc(requiredPages)
	if !ok {
		return Result{}, ErrOutOfVirtualMemory
	}
	r.allocatedRuns[unit] = requiredPages
	start := r.start + uintptr(unit)*BytesInPage
	r.commitPages(reservedPages, requiredPages)
	if r.mmapper != nil {
		if err := r.mmapper.EnsureMapped(start, uintptr(requiredPages)*BytesInPage); err != nil {
			return Result{}, err
		}
	}
	return Result{Start: start, Pages: requiredPages}, nil
}

// ReleasePages returns the run starting at addr to the free list,
// coalescing it with any adjacent free runs, and decrements the
// committed/reserved counters by the run's size.
func (r *FreeListPageResource) ReleasePages(addr uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unit := int((addr - r.start) / BytesInPage)
	pages, ok := r.allocatedRuns[unit]
	if !ok {
		panic("pageresource: ReleasePages on an address that does not start an allocated run")
	}
	delete(r.allocatedRuns, unit)
	r.free.Free(unit, pages)
	r.reservedPages.Add(-int64(pages))
	r.committedPages.Add(-int64(pages))
}
