// Package mutator implements the per-application-thread allocation and
// write-barrier context: the thing a running goroutine calls into to get
// memory and to report pointer writes, without needing to know which Plan
// is active.
package mutator

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/barrier"
	"golang.org/x/gcmm/slot"
)

// Allocators is the fixed-size table a Mutator indexes by alloc.Selector.
// A Plan populates it once, at mutator-bind time, with exactly the
// allocator kinds that plan uses; selectors the plan never maps to stay
// nil and are never dereferenced because AllocatorMapping only ever names
// selectors the plan filled in. Sized one per alloc.Selector constant
// (bump, los, immix, freelist, markcompact, immortal) so a generational
// plan can hold a bump allocator for its nursery/tospace and a distinct
// one for CommonPlan's shared ImmortalSpace at the same time.
type Allocators [6]alloc.Allocator

func (a *Allocators) set(sel alloc.Selector, al alloc.Allocator) { a[sel] = al }

// Get returns the allocator bound to sel, or nil if the owning Plan never
// bound one — callers that trust their own AllocatorMapping never see nil.
func (a *Allocators) Get(sel alloc.Selector) alloc.Allocator { return a[sel] }

// Mutator is the per-thread GC context: one allocator per kind the owning
// Plan uses, the semantic->selector table that picks among them, and the
// write barrier installed by the Plan. WriteReference/CopyMemorySlice
// are the only calls a binding's write barrier intrinsic makes; everything
// else about barrier bookkeeping stays inside the Barrier implementation.
type Mutator struct {
	allocators Allocators
	mapping    alloc.AllocatorMapping
	Barrier    barrier.Barrier

	// MutatorID is an opaque per-thread ordinal the owning Plan and
	// scheduler use to index worker-local structures (e.g. BlockPageResource
	// local pools); assigned once at Bind and never reused while the
	// mutator is alive.
	MutatorID int
}

// New builds a Mutator with no allocators bound; BindAllocator must be
// called once per selector the mapping references before Alloc is safe to
// call for that semantic.
func New(id int, mapping alloc.AllocatorMapping, b barrier.Barrier) *Mutator {
	return &Mutator{mapping: mapping, Barrier: b, MutatorID: id}
}

// BindAllocator installs al as the allocator for sel. Called by the owning
// Plan while constructing the mutator, once per selector present in its
// AllocatorMapping.
func (m *Mutator) BindAllocator(sel alloc.Selector, al alloc.Allocator) {
	m.allocators.set(sel, al)
}

// Alloc services a request for size bytes of the given semantic: looks up
// the selector the Plan mapped that semantic to, tries the allocator's
// fast path, and falls back to its slow path (which may itself poll for a
// collection) on failure.
func (m *Mutator) Alloc(semantic alloc.Semantic, size, align uintptr, offset int) address.Address {
	sel, ok := m.mapping[semantic]
	if !ok {
		panic("mutator: no allocator mapped for semantic")
	}
	al := m.allocators.Get(sel)
	if al == nil {
		panic("mutator: allocator mapping names an unbound selector")
	}
	if r := al.Alloc(size, align, offset); !r.IsZero() {
		return r
	}
	return al.AllocSlow(size, align, offset)
}

// WriteReference routes a single pointer-field store through the
// mutator's barrier before performing the store.
func (m *Mutator) WriteReference(src address.ObjectReference, s slot.Slot, target address.ObjectReference) {
	m.Barrier.ObjectReferenceWrite(src, s, target)
}

// CopyMemorySlice routes a bulk array copy through the mutator's barrier.
func (m *Mutator) CopyMemorySlice(dst, src slot.MemorySlice) {
	m.Barrier.MemorySliceCopy(dst, src)
}

// Flush pushes any buffered write-barrier state (remembered-set entries,
// mod-buffer contents) out to the owning plan. Called at the end of an
// allocation slow path that triggered a GC poll, and unconditionally
// during the StopMutators bucket before tracing begins.
func (m *Mutator) Flush() {
	m.Barrier.Flush()
}

// Preparer and Releaser let a Plan hand each mutator GC-phase hooks
// without Mutator needing to import plan; a Plan's per-mutator work
// packet type implements whichever of these it needs.
type Preparer interface{ Prepare(*Mutator) }
type Releaser interface{ Release(*Mutator) }
