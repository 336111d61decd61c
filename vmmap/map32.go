package vmmap

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Map32 splits a bounded, 32-bit-sized region into chunks drawn from one
// shared discontiguous free list. Spaces that need a contiguous run of
// chunks call AllocateContiguousChunks; runs belonging to the same space
// are threaded together with prevLink/nextLink, indexed by chunk number,
// so a space can walk all of its regions starting from any one of them.
type Map32 struct {
	maxChunks int

	mu            sync.Mutex
	prevLink      []int32
	nextLink      []int32
	runLength     []int32 // valid only at a run's start chunk; 0 elsewhere
	free          []bool
	descriptorMap []SpaceDescriptor

	totalAvailableDiscontiguousChunks atomic.Int64
	sharedDiscontigFLCount            atomic.Int32
	cumulativeCommittedPages          atomic.Int64
}

// NewMap32 creates a Map32 managing maxChunks chunks of address space.
// Chunk 0 is never handed out, though GetAvailableDiscontiguousChunks
// still counts it.
func NewMap32(maxChunks int) *Map32 {
	m := &Map32{
		maxChunks:     maxChunks,
		prevLink:      make([]int32, maxChunks),
		nextLink:      make([]int32, maxChunks),
		runLength:     make([]int32, maxChunks),
		free:          make([]bool, maxChunks),
		descriptorMap: make([]SpaceDescriptor, maxChunks),
	}
	for i := range m.free {
		m.free[i] = true
	}
	m.totalAvailableDiscontiguousChunks.Store(int64(maxChunks))
	return m
}

func (m *Map32) Insert(start uintptr, extent uintptr, descriptor SpaceDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(start, extent, descriptor)
}

func (m *Map32) insertLocked(start uintptr, extent uintptr, descriptor SpaceDescriptor) {
	for e := uintptr(0); e < extent; e += BytesInChunk {
		idx := chunkIndex(start + e)
		if !m.descriptorMap[idx].IsEmpty() {
			panic(fmt.Sprintf("vmmap: conflicting virtual address request for chunk %d", idx))
		}
		m.descriptorMap[idx] = descriptor
	}
}

func (m *Map32) CreateFreeList(start uintptr) *PageFreeList {
	m.sharedDiscontigFLCount.Add(1)
	return NewPageFreeList(m.maxChunks * PagesInChunk)
}

func (m *Map32) allocRunLocked(chunks int) int {
	run := 0
	// Chunk 0 is skipped: its address is zero, which AllocateContiguousChunks
	// returns for failure and the region links use for "none".
	for i := 1; i < m.maxChunks; i++ {
		if m.free[i] {
			run++
		} else {
			run = 0
		}
		if run == chunks {
			start := i - chunks + 1
			for j := start; j <= i; j++ {
				m.free[j] = false
			}
			m.runLength[start] = int32(chunks)
			return start
		}
	}
	return -1
}

func (m *Map32) AllocateContiguousChunks(descriptor SpaceDescriptor, chunks int, head uintptr) uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunk := m.allocRunLocked(chunks)
	if chunk < 0 {
		return 0
	}
	m.totalAvailableDiscontiguousChunks.Add(-int64(chunks))
	rtn := chunkIndexToAddress(chunk)
	m.insertLocked(rtn, uintptr(chunks)*BytesInChunk, descriptor)
	if head != 0 {
		headChunk := chunkIndex(head)
		m.nextLink[chunk] = int32(headChunk)
		m.prevLink[headChunk] = int32(chunk)
	}
	return rtn
}

func (m *Map32) GetNextContiguousRegion(start uintptr) uintptr {
	checkChunkAligned(start, "GetNextContiguousRegion")
	chunk := chunkIndex(start)
	m.mu.Lock()
	defer m.mu.Unlock()
	if chunk == 0 || m.nextLink[chunk] == 0 {
		return 0
	}
	return chunkIndexToAddress(int(m.nextLink[chunk]))
}

func (m *Map32) GetContiguousRegionChunks(start uintptr) int {
	checkChunkAligned(start, "GetContiguousRegionChunks")
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.runLength[chunkIndex(start)])
}

func (m *Map32) GetContiguousRegionSize(start uintptr) uintptr {
	return uintptr(m.GetContiguousRegionChunks(start)) * BytesInChunk
}

func (m *Map32) GetAvailableDiscontiguousChunks() int {
	return int(m.totalAvailableDiscontiguousChunks.Load())
}

func (m *Map32) GetChunkConsumerCount() int {
	return int(m.sharedDiscontigFLCount.Load())
}

func (m *Map32) freeContiguousChunksLocked(chunk int) int {
	chunks := int(m.runLength[chunk])
	if chunks == 0 {
		return 0
	}
	for j := chunk; j < chunk+chunks; j++ {
		m.free[j] = true
		m.descriptorMap[j] = 0
	}
	m.runLength[chunk] = 0
	next, prev := m.nextLink[chunk], m.prevLink[chunk]
	if next != 0 {
		m.prevLink[next] = prev
	}
	if prev != 0 {
		m.nextLink[prev] = next
	}
	m.prevLink[chunk], m.nextLink[chunk] = 0, 0
	m.totalAvailableDiscontiguousChunks.Add(int64(chunks))
	return chunks
}

func (m *Map32) FreeContiguousChunks(start uintptr) int {
	checkChunkAligned(start, "FreeContiguousChunks")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeContiguousChunksLocked(chunkIndex(start))
}

func (m *Map32) FreeAllChunks(anyChunk uintptr) {
	checkChunkAligned(anyChunk, "FreeAllChunks")
	if anyChunk == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk := chunkIndex(anyChunk)
	for m.nextLink[chunk] != 0 {
		m.freeContiguousChunksLocked(int(m.nextLink[chunk]))
	}
	for m.prevLink[chunk] != 0 {
		m.freeContiguousChunksLocked(int(m.prevLink[chunk]))
	}
	m.freeContiguousChunksLocked(chunk)
}

func (m *Map32) GetDescriptorForAddress(addr uintptr) SpaceDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.descriptorMap[chunkIndex(addr)]
}

func (m *Map32) AddToCumulativeCommittedPages(pages int) {
	m.cumulativeCommittedPages.Add(int64(pages))
}
