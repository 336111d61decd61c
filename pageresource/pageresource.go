// Package pageresource lends pages of address space to the Space that
// owns it, drawing chunks from a VMMap and instructing an Mmapper to back
// them with real memory on first use.
package pageresource

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/gcmm/mmapper"
	"golang.org/x/gcmm/vmmap"
)

// BytesInPage and LogBytesInPage fix the page granularity every resource
// allocates in.
const (
	LogBytesInPage = vmmap.LogBytesInPage
	BytesInPage    = vmmap.BytesInPage
)

// Result is what a successful alloc_pages call returns.
type Result struct {
	Start    uintptr
	Pages    int
	NewChunk bool
}

// PageResource is the contract every page-lending strategy satisfies.
// reservedPages may exceed requiredPages when the caller wants to reserve
// headroom (e.g. a copying collector's copy-reserve).
type PageResource interface {
	AllocPages(spaceDescriptor vmmap.SpaceDescriptor, reservedPages, requiredPages int) (Result, error)
	ReservedPages() int
	CommittedPages() int
}

// ErrOutOfVirtualMemory is returned when a resource's region (or, for a
// discontiguous resource, the shared chunk pool) cannot satisfy a request.
var ErrOutOfVirtualMemory = fmt.Errorf("pageresource: out of virtual memory")

// common holds the bookkeeping every resource kind needs: how many pages
// are committed/reserved against the space's share of the heap budget, the
// mmapper that actually backs pages with memory, and whether this resource
// owns one contiguous region or draws chunks from the shared discontiguous
// pool.
type common struct {
	contiguous bool
	start      uintptr // meaningful only if contiguous

	reservedPages  atomic.Int64
	committedPages atomic.Int64

	mmapper *mmapper.Mmapper
	vmMap   vmmap.VMMap
	desc    vmmap.SpaceDescriptor
}

func (c *common) ReservedPages() int  { return int(c.reservedPages.Load()) }
func (c *common) CommittedPages() int { return int(c.committedPages.Load()) }

func (c *common) commitPages(reserved, required int) {
	c.reservedPages.Add(int64(reserved))
	c.committedPages.Add(int64(required))
	if c.vmMap != nil {
		c.vmMap.AddToCumulativeCommittedPages(required)
	}
}

// SetMmapper wires in the Mmapper that backs this resource's pages with
// real memory. Tests that only exercise cursor/free-list bookkeeping can
// leave it unset; every resource skips the mmap call when it is nil.
func (c *common) SetMmapper(m *mmapper.Mmapper) { c.mmapper = m }
