package alloc

import "golang.org/x/gcmm/address"

// CellSource is implemented by MarkSweepSpace: PopCell returns a free
// cell from the mutator's current block for sizeClass, or ok=false if
// that block (or the mutator's cached block) is empty and a fresh one is
// needed.
type CellSource interface {
	PopCell(sizeClass int) (cell address.Address, ok bool)
	RefillBlock(sizeClass int) (ok bool)
}

// FreeListAllocator is MarkSweepSpace's allocator: each size class keeps
// an intrusive free list of cells within the mutator's currently bound
// block. The fast path is a single list-pop; the slow path asks the space
// to bind a fresh (or reusable) block for the class before retrying.
type FreeListAllocator struct {
	source CellSource

	// SizeClassOf maps a requested size to the MiMalloc-style bin index
	// the space's block layout uses; set by whichever MarkSweepSpace owns
	// this allocator.
	SizeClassOf func(size uintptr) int
}

func NewFreeListAllocator(source CellSource) *FreeListAllocator {
	return &FreeListAllocator{source: source}
}

func (a *FreeListAllocator) Alloc(size uintptr, align uintptr, offset int) address.Address {
	sc := a.SizeClassOf(size)
	cell, ok := a.source.PopCell(sc)
	if !ok {
		return address.ZeroAddress
	}
	return alignUp(cell, align, offset)
}

func (a *FreeListAllocator) AllocSlow(size uintptr, align uintptr, offset int) address.Address {
	sc := a.SizeClassOf(size)
	if !a.source.RefillBlock(sc) {
		return address.ZeroAddress
	}
	return a.Alloc(size, align, offset)
}
