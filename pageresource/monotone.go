package pageresource

import (
	"sync"

	"golang.org/x/gcmm/vmmap"
)

// MonotonePageResource owns a bump cursor within a contiguous region (or,
// for a discontiguous instance, within whichever chunk it most recently
// acquired from the VMMap). Reset rewinds the cursor to the start of the
// region and zeroes committed-pages, which is what CopySpace and
// ImmixSpace do to their fromspace/defrag region at the end of a GC.
type MonotonePageResource struct {
	common

	mu           sync.Mutex
	cursor       uintptr
	sentinel     uintptr
	currentChunk uintptr
}

// NewContiguous creates a MonotonePageResource bump-allocating within
// [start, start+bytes).
func NewContiguous(start, bytes uintptr, vmMap vmmap.VMMap, desc vmmap.SpaceDescriptor) *MonotonePageResource {
	return &MonotonePageResource{
		common: common{contiguous: true, start: start, vmMap: vmMap, desc: desc},
		cursor: start, sentinel: start + bytes,
		// currentChunk starts at an address no real chunk can align to, so
		// the first AllocPages call always reports NewChunk=true and the
		// owning space registers its first chunk with the SFT table.
		currentChunk: ^uintptr(0),
	}
}

// NewDiscontiguous creates a MonotonePageResource that acquires its first
// chunk lazily, from the VMMap's shared discontiguous pool.
func NewDiscontiguous(vmMap vmmap.VMMap, desc vmmap.SpaceDescriptor) *MonotonePageResource {
	return &MonotonePageResource{common: common{contiguous: false, vmMap: vmMap, desc: desc}}
}

func (r *MonotonePageResource) AllocPages(spaceDescriptor vmmap.SpaceDescriptor, reservedPages, requiredPages int) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rtn := r.cursor
	newChunk := false
	bytes := uintptr(requiredPages) * BytesInPage
	tmp := r.cursor + bytes

	if !r.contiguous && tmp > r.sentinel {
		chunksNeeded := (bytes + vmmap.BytesInChunk - 1) / vmmap.BytesInChunk
		chunk := r.vmMap.AllocateContiguousChunks(spaceDescriptor, int(chunksNeeded), r.currentChunk)
		if chunk == 0 {
			return Result{}, ErrOutOfVirtualMemory
		}
		r.currentChunk = chunk
		r.cursor = chunk
		r.sentinel = chunk + chunksNeeded*vmmap.BytesInChunk
		rtn = r.cursor
		tmp = r.cursor + bytes
		newChunk = true
	}

	if tmp > r.sentinel {
		return Result{}, ErrOutOfVirtualMemory
	}

	r.cursor = tmp
	if r.contiguous {
		if aligned := r.cursor &^ (vmmap.BytesInChunk - 1); aligned != r.currentChunk {
			r.currentChunk = aligned
			newChunk = true
		}
	}
	r.commitPages(reservedPages, requiredPages)
	if r.mmapper != nil {
		if err := r.mmapper.EnsureMapped(rtn, bytes); err != nil {
			return Result{}, err
		}
	}
	return Result{Start: rtn, Pages: requiredPages, NewChunk: newChunk}, nil
}

// Reset rewinds the cursor to the start of the resource's contiguous
// region (or to nothing, for a discontiguous instance, whose chunks are
// instead released back to the VMMap) and clears the reserved/committed
// counters.
func (r *MonotonePageResource) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservedPages.Store(0)
	r.committedPages.Store(0)
	if r.contiguous {
		r.cursor = r.start
		r.currentChunk = r.start &^ (vmmap.BytesInChunk - 1)
		return
	}
	if r.cursor != 0 {
		r.vmMap.FreeAllChunks(r.currentChunk)
		r.cursor, r.sentinel, r.currentChunk = 0, 0, 0
	}
}

// Cursor exposes the current bump pointer for tests and diagnostics.
func (r *MonotonePageResource) Cursor() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// UsedRange reports the span of addresses handed out since this
// resource's region was last (re)started, as [start, end). For a
// contiguous instance that is the whole region from its fixed start up
// to the current cursor; for a discontiguous instance it is only the
// most recently acquired chunk's portion, and chunks acquired earlier
// since the last Reset are not included. Used by a copying
// space's Release to scrub side metadata over exactly the addresses
// that may have been written this cycle, before the cursor rewinds and
// those addresses are handed to unrelated objects.
func (r *MonotonePageResource) UsedRange() (start, end uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contiguous {
		return r.start, r.cursor
	}
	return r.currentChunk, r.cursor
}

// SetCursor repositions the bump pointer directly, used by MarkCompactSpace
// after a compaction pass to resume bump allocation right after the
// compacted region's new end rather than at the contiguous region's start.
func (r *MonotonePageResource) SetCursor(addr uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = addr
	if aligned := addr &^ (vmmap.BytesInChunk - 1); aligned != r.currentChunk {
		r.currentChunk = aligned
	}
}
