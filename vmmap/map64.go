package vmmap

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Map64 statically assigns each space one aligned slice of a 64-bit
// address space of size 2^logSpaceExtent. There is no free list and no
// linked list: allocation just advances the space's own high-water
// pointer, and the owning descriptor is recovered with a shift, so no
// lock is needed across spaces (each only ever touches its own region).
type Map64 struct {
	logSpaceExtent uint

	mu      sync.Mutex
	regions map[SpaceDescriptor]*map64Region

	cumulativeCommittedPages atomic.Int64
}

type map64Region struct {
	base      uintptr
	highWater atomic.Uintptr // offset from base, in bytes
	descriptor SpaceDescriptor
}

// NewMap64 creates a Map64 where each space's region spans
// 2^logSpaceExtent bytes.
func NewMap64(logSpaceExtent uint) *Map64 {
	return &Map64{
		logSpaceExtent: logSpaceExtent,
		regions:        make(map[SpaceDescriptor]*map64Region),
	}
}

// BindRegion statically assigns base as the start of descriptor's region.
// Every Go-side Map64 space must be bound before it allocates, mirroring
// the fixed compile-time layout table the source generates per plan.
func (m *Map64) BindRegion(descriptor SpaceDescriptor, base uintptr) {
	checkChunkAligned(base, "BindRegion")
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.regions[descriptor]; exists {
		panic(fmt.Sprintf("vmmap: space descriptor %d already bound", descriptor))
	}
	m.regions[descriptor] = &map64Region{base: base, descriptor: descriptor}
}

func (m *Map64) regionFor(descriptor SpaceDescriptor) *map64Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[descriptor]
	if !ok {
		panic(fmt.Sprintf("vmmap: space descriptor %d was never bound to a region", descriptor))
	}
	return r
}

func (m *Map64) Insert(start uintptr, extent uintptr, descriptor SpaceDescriptor) {
	// Map64 regions are already disjoint by construction (each is a
	// distinct aligned slice); nothing further to record.
}

func (m *Map64) CreateFreeList(start uintptr) *PageFreeList {
	extentPages := int((uintptr(1) << m.logSpaceExtent) / BytesInPage)
	return NewPageFreeList(extentPages)
}

func (m *Map64) AllocateContiguousChunks(descriptor SpaceDescriptor, chunks int, head uintptr) uintptr {
	r := m.regionFor(descriptor)
	extent := uintptr(1) << m.logSpaceExtent
	want := uintptr(chunks) * BytesInChunk
	for {
		cur := r.highWater.Load()
		if cur+want > extent {
			return 0
		}
		if r.highWater.CompareAndSwap(cur, cur+want) {
			return r.base + cur
		}
	}
}

// GetNextContiguousRegion always returns zero: Map64 spaces are laid out
// as a single contiguous high-water region, so there is never a second
// disjoint region to chain to.
func (m *Map64) GetNextContiguousRegion(start uintptr) uintptr { return 0 }

func (m *Map64) GetContiguousRegionChunks(start uintptr) int {
	return int(m.GetContiguousRegionSize(start) / BytesInChunk)
}

func (m *Map64) GetContiguousRegionSize(start uintptr) uintptr {
	for _, r := range m.regionsSnapshot() {
		if start >= r.base && start < r.base+(uintptr(1)<<m.logSpaceExtent) {
			return r.highWater.Load() - (start - r.base)
		}
	}
	return 0
}

func (m *Map64) regionsSnapshot() []*map64Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*map64Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	return out
}

// GetAvailableDiscontiguousChunks is always zero: Map64 never draws from a
// shared discontiguous pool.
func (m *Map64) GetAvailableDiscontiguousChunks() int { return 0 }

func (m *Map64) GetChunkConsumerCount() int { return 0 }

func (m *Map64) FreeAllChunks(anyChunk uintptr) {
	// Spaces under Map64 are never individually torn down; their region
	// is reclaimed only at process exit.
}

func (m *Map64) FreeContiguousChunks(start uintptr) int { return 0 }

func (m *Map64) GetDescriptorForAddress(addr uintptr) SpaceDescriptor {
	for _, r := range m.regionsSnapshot() {
		if addr >= r.base && addr < r.base+(uintptr(1)<<m.logSpaceExtent) {
			return r.descriptor
		}
	}
	return 0
}

func (m *Map64) AddToCumulativeCommittedPages(pages int) {
	m.cumulativeCommittedPages.Add(int64(pages))
}

// CumulativeCommittedPages reports the running total AddToCumulativeCommittedPages
// has accumulated, the counter a Plan's stress-test GC trigger polls.
func (m *Map64) CumulativeCommittedPages() int64 {
	return m.cumulativeCommittedPages.Load()
}
