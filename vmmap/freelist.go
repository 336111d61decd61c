package vmmap

import (
	"sync"

	"github.com/google/btree"
)

// run is one maximal free span of page units, [start, start+units).
type run struct {
	start, units int
}

func lessRun(a, b run) bool { return a.start < b.start }

// PageFreeList tracks free page-unit runs within one space's region using
// an ordered tree keyed by run start, so that releasing a run can find and
// merge its neighbours in O(log n) instead of walking a linear free list.
// It is shared by VMMap (which hands one to each space it creates) and by
// FreeListPageResource (which allocates and releases pages from it).
type PageFreeList struct {
	mu    sync.Mutex
	tree  *btree.BTreeG[run]
	total int
}

// NewPageFreeList creates a free list covering [0, units) page units, all
// initially free.
func NewPageFreeList(units int) *PageFreeList {
	t := btree.NewG(32, lessRun)
	if units > 0 {
		t.ReplaceOrInsert(run{start: 0, units: units})
	}
	return &PageFreeList{tree: t, total: units}
}

// Alloc finds and removes the first free run of at least units units,
// returning its start and true, or false if no run is big enough.
func (f *PageFreeList) Alloc(units int) (start int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var found run
	hasFound := false
	f.tree.Ascend(func(r run) bool {
		if r.units >= units {
			found = r
			hasFound = true
			return false
		}
		return true
	})
	if !hasFound {
		return 0, false
	}
	f.tree.Delete(found)
	if found.units > units {
		f.tree.ReplaceOrInsert(run{start: found.start + units, units: found.units - units})
	}
	return found.start, true
}

// Free returns [start, start+units) to the free list, coalescing with any
// immediately adjacent free runs.
func (f *PageFreeList) Free(start, units int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := run{start: start, units: units}

	// Merge with the run immediately before, if adjacent.
	var before run
	hasBefore := false
	f.tree.DescendLessOrEqual(run{start: start}, func(r run) bool {
		if r.start < start {
			before = r
			hasBefore = true
		}
		return false
	})
	if hasBefore && before.start+before.units == merged.start {
		f.tree.Delete(before)
		merged.start = before.start
		merged.units += before.units
	}

	// Merge with the run immediately after, if adjacent.
	if after, ok := f.tree.Get(run{start: merged.start + merged.units}); ok {
		f.tree.Delete(after)
		merged.units += after.units
	}

	f.tree.ReplaceOrInsert(merged)
}

// Size returns the length, in units, of the free run starting exactly at
// start, or 0 if start does not begin a free run.
func (f *PageFreeList) Size(start int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.tree.Get(run{start: start}); ok {
		return r.units
	}
	return 0
}

// AvailableUnits returns the total number of page units currently free.
func (f *PageFreeList) AvailableUnits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	f.tree.Ascend(func(r run) bool {
		total += r.units
		return true
	})
	return total
}
