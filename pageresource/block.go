package pageresource

import (
	"sync"

	"golang.org/x/gcmm/vmmap"
)

// BlockPageResource specialises in fixed-size block allocation for Immix
// and MarkSweep. A worker first tries its own local pool (no
// synchronisation), then the space-wide global pool (a single lock), and
// only advances its cursor through the contiguous region by one fresh
// block when both are empty. Released blocks are pushed onto the releasing
// worker's local pool so that a producer/consumer pair of workers tends
// not to contend on the global pool at all.
type BlockPageResource struct {
	common

	blockBytes uintptr

	globalMu   sync.Mutex
	globalPool []uintptr

	localMu   sync.Mutex
	localPool map[int][]uintptr // worker ordinal -> free blocks

	mu     sync.Mutex
	cursor uintptr
	limit  uintptr
}

// NewBlock creates a BlockPageResource handing out blocks of blockBytes
// from within [start, start+regionBytes).
func NewBlock(start, regionBytes, blockBytes uintptr, vmMap vmmap.VMMap, desc vmmap.SpaceDescriptor) *BlockPageResource {
	return &BlockPageResource{
		common:     common{contiguous: true, start: start, vmMap: vmMap, desc: desc},
		blockBytes: blockBytes,
		cursor:     start,
		limit:      start + regionBytes,
		localPool:  make(map[int][]uintptr),
	}
}

// AllocBlock hands a single block to workerOrdinal, trying the worker's
// local pool, then the global pool, then expanding the region.
func (r *BlockPageResource) AllocBlock(workerOrdinal int) (uintptr, error) {
	if addr, ok := r.popLocal(workerOrdinal); ok {
		return addr, nil
	}
	if addr, ok := r.popGlobal(); ok {
		return addr, nil
	}
	return r.expand()
}

func (r *BlockPageResource) popLocal(workerOrdinal int) (uintptr, bool) {
	r.localMu.Lock()
	defer r.localMu.Unlock()
	pool := r.localPool[workerOrdinal]
	if len(pool) == 0 {
		return 0, false
	}
	addr := pool[len(pool)-1]
	r.localPool[workerOrdinal] = pool[:len(pool)-1]
	return addr, true
}

func (r *BlockPageResource) popGlobal() (uintptr, bool) {
	r.globalMu.Lock()
	defer r.globalMu.Unlock()
	if len(r.globalPool) == 0 {
		return 0, false
	}
	addr := r.globalPool[len(r.globalPool)-1]
	r.globalPool = r.globalPool[:len(r.globalPool)-1]
	return addr, true
}

func (r *BlockPageResource) expand() (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor+r.blockBytes > r.limit {
		return 0, ErrOutOfVirtualMemory
	}
	addr := r.cursor
	r.cursor += r.blockBytes
	pages := int(r.blockBytes / BytesInPage)
	r.commitPages(pages, pages)
	if r.mmapper != nil {
		if err := r.mmapper.EnsureMapped(addr, r.blockBytes); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

// ReleaseBlock pushes addr onto workerOrdinal's local pool.
func (r *BlockPageResource) ReleaseBlock(workerOrdinal int, addr uintptr) {
	r.localMu.Lock()
	defer r.localMu.Unlock()
	r.localPool[workerOrdinal] = append(r.localPool[workerOrdinal], addr)
}

// FlushLocal moves every block in workerOrdinal's local pool into the
// global pool, e.g. when a worker parks at the end of a GC.
func (r *BlockPageResource) FlushLocal(workerOrdinal int) {
	r.localMu.Lock()
	pool := r.localPool[workerOrdinal]
	r.localPool[workerOrdinal] = nil
	r.localMu.Unlock()
	if len(pool) == 0 {
		return
	}
	r.globalMu.Lock()
	defer r.globalMu.Unlock()
	r.globalPool = append(r.globalPool, pool...)
}

// AllocPages satisfies PageResource for callers that want block-resource
// accounting without going through AllocBlock (e.g. LOS-style bulk
// reservations); it always allocates whole blocks.
func (r *BlockPageResource) AllocPages(spaceDescriptor vmmap.SpaceDescriptor, reservedPages, requiredPages int) (Result, error) {
	blocks := (uintptr(requiredPages)*BytesInPage + r.blockBytes - 1) / r.blockBytes
	if blocks != 1 {
		panic("pageresource: BlockPageResource.AllocPages only supports single-block requests; use AllocBlock")
	}
	addr, err := r.AllocBlock(0)
	if err != nil {
		return Result{}, err
	}
	return Result{Start: addr, Pages: int(r.blockBytes / BytesInPage)}, nil
}
