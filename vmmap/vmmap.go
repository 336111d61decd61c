// Package vmmap allocates chunks of virtual address space to spaces and
// maps a data address back to the space that owns it. It has two
// implementations: Map32 divides a 32-bit-sized region into chunks drawn
// from a shared discontiguous free list, while Map64 gives each space its
// own statically-sized, contiguous slice of a 64-bit address space.
package vmmap

import (
	"fmt"

	"golang.org/x/gcmm/mmapper"
)

// LogBytesInChunk and BytesInChunk are the same chunk granularity the
// mmapper and SFT agree on.
const (
	LogBytesInChunk = mmapper.LogBytesInChunk
	BytesInChunk    = mmapper.BytesInChunk
)

// LogBytesInPage and BytesInPage fix the page as the unit PageFreeList and
// PageResource allocate in; pages are the granularity chunks are divided
// into for FreeListPageResource and BlockPageResource bookkeeping.
const (
	LogBytesInPage = 12
	BytesInPage    = uintptr(1) << LogBytesInPage
	PagesInChunk   = int(BytesInChunk / BytesInPage)
)

// SpaceDescriptor identifies the space that owns a chunk. The zero value
// means "no owner".
type SpaceDescriptor uint32

// IsEmpty reports whether the descriptor denotes no owning space.
func (d SpaceDescriptor) IsEmpty() bool { return d == 0 }

// VMMap is the contract both chunk-allocation strategies satisfy.
type VMMap interface {
	// Insert records that [start, start+extent) is owned by descriptor.
	// It panics if any chunk in the range is already owned.
	Insert(start uintptr, extent uintptr, descriptor SpaceDescriptor)

	// CreateFreeList returns a fresh page-granularity free list a space's
	// FreeListPageResource can use to track pages within its own region.
	CreateFreeList(start uintptr) *PageFreeList

	// AllocateContiguousChunks reserves a run of chunks for descriptor.
	// head, if non-zero, is the start of a region the new run should be
	// linked in front of (so a space's regions form an intrusive list).
	// It returns the zero address on failure.
	AllocateContiguousChunks(descriptor SpaceDescriptor, chunks int, head uintptr) uintptr

	// GetNextContiguousRegion returns the start of the region following
	// start in its space's intrusive list, or zero if start is the tail.
	GetNextContiguousRegion(start uintptr) uintptr

	// GetContiguousRegionChunks returns the number of chunks in the
	// region starting at start.
	GetContiguousRegionChunks(start uintptr) int

	// GetContiguousRegionSize is GetContiguousRegionChunks in bytes.
	GetContiguousRegionSize(start uintptr) uintptr

	// GetAvailableDiscontiguousChunks is the number of chunks any space
	// could still claim from the shared discontiguous pool.
	GetAvailableDiscontiguousChunks() int

	// GetChunkConsumerCount is how many distinct free lists have drawn
	// from the discontiguous pool, used to size worst-case fragmentation
	// reserves.
	GetChunkConsumerCount() int

	// FreeAllChunks releases every region linked to anyChunk's region.
	FreeAllChunks(anyChunk uintptr)

	// FreeContiguousChunks releases the region starting at start and
	// returns how many chunks were freed.
	FreeContiguousChunks(start uintptr) int

	// GetDescriptorForAddress returns the owner of the chunk containing
	// addr, or the empty descriptor if unowned.
	GetDescriptorForAddress(addr uintptr) SpaceDescriptor

	// AddToCumulativeCommittedPages accumulates a counter stress-based GC
	// triggers poll against.
	AddToCumulativeCommittedPages(pages int)
}

func chunkIndex(addr uintptr) int { return int(addr >> LogBytesInChunk) }

func chunkIndexToAddress(index int) uintptr { return uintptr(index) << LogBytesInChunk }

func checkChunkAligned(addr uintptr, who string) {
	if addr&(BytesInChunk-1) != 0 {
		panic(fmt.Sprintf("vmmap: %s requires a chunk-aligned address, got %#x", who, addr))
	}
}
