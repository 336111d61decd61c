package alloc

import "golang.org/x/gcmm/address"

// HoleSource is implemented by ImmixSpace: NextHole returns the bounds of
// the next usable line (or run of lines) within the mutator's current
// block, or ok=false if the block is exhausted and a fresh one is needed.
type HoleSource interface {
	NextHole() (start, end address.Address, ok bool)
	AcquireBlock() (ok bool)
}

// ImmixAllocator bump-allocates within a line hole; when a hole is
// exhausted it asks the space for the next hole in the current block, and
// only falls back to acquiring a new block once the current one has none
// left.
type ImmixAllocator struct {
	cursor, limit address.Address
	source        HoleSource
}

func NewImmixAllocator(source HoleSource) *ImmixAllocator {
	return &ImmixAllocator{source: source}
}

func (a *ImmixAllocator) Alloc(size uintptr, align uintptr, offset int) address.Address {
	result := alignUp(a.cursor, align, offset)
	newCursor := result.Add(size)
	if newCursor <= a.limit {
		a.cursor = newCursor
		return result
	}
	return address.ZeroAddress
}

func (a *ImmixAllocator) AllocSlow(size uintptr, align uintptr, offset int) address.Address {
	for {
		if start, end, ok := a.source.NextHole(); ok {
			a.cursor, a.limit = start, end
			if r := a.Alloc(size, align, offset); r != address.ZeroAddress {
				return r
			}
			continue
		}
		if !a.source.AcquireBlock() {
			return address.ZeroAddress
		}
	}
}
