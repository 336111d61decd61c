package space

import (
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

// CopyDestination is anything a moving space can evacuate objects into: a
// CopySpace's own bump cursor (SemiSpace, GenCopy's mature hemisphere) or
// an ImmixSpace's line-granularity allocator (StickyImmix's promotion
// target). This mirrors the source's CopyContext/CopySelector split
// (§2.3+ of the expanded spec): which concrete allocator backs a copy is
// a per-plan wiring choice, never something TraceObject branches on.
type CopyDestination interface {
	AllocCopy(size uintptr) address.Address
	// MarkCopied notifies the destination that obj (size bytes) was just
	// copied into it, for destinations whose own liveness bookkeeping
	// (e.g. ImmixSpace's per-object mark bit and line marks) would
	// otherwise only ever be set by InitializeObjectMetadata on a fresh
	// mutator allocation. A CopySpace destination's liveness is implied by
	// the forwarding pointer alone, so its MarkCopied is a no-op.
	MarkCopied(obj address.ObjectReference, size uintptr)
}

// CopySpace is a bump-allocated region that is, for any one GC cycle,
// either live to-space (mutators and copying workers may allocate into
// it) or retired from-space (its objects are being forwarded out and no
// allocation is permitted). SemiSpace uses a pair of CopySpaces and swaps
// their roles each cycle; GenCopy/StickyImmix use one as a nursery.
type CopySpace struct {
	Common

	pr    *pageresource.MonotonePageResource
	fwd   *ForwardingWord
	Model ObjectModel

	// Target is where objects forwarded out of this space are copied
	// into. SemiSpace sets each half's Target to the other and swaps
	// them every cycle; GenCopy's nursery and StickyImmix's nursery point
	// Target at the mature generation instead. A space that is never
	// from-space (e.g. an always-to-space survivor area) need not set it.
	Target CopyDestination

	mu        sync.Mutex
	fromSpace bool
	copyAlloc *alloc.BumpAllocator
}

// NewCopySpace creates a CopySpace over pr, sharing fwd with every other
// moving space in the heap and model for copying object bytes.
func NewCopySpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.MonotonePageResource, fwd *ForwardingWord, model ObjectModel) *CopySpace {
	return &CopySpace{
		Common: Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:     pr,
		fwd:    fwd,
		Model:  model,
	}
}

// AcquireRegion implements alloc.Refiller. It refuses outright while the
// space is marked from-space, so neither a mutator nor a copying worker
// can allocate into memory about to be discarded.
func (s *CopySpace) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
	if s.IsFromSpace() {
		return 0, 0, false
	}
	pages := pagesFor(minBytes)
	res, err := s.pr.AllocPages(s.Descriptor, pages, pages)
	if err != nil {
		return 0, 0, false
	}
	start := address.FromUintptrUnsafe(res.Start)
	if res.NewChunk {
		s.Register(s, start, uintptr(res.Pages)*pageresource.BytesInPage)
	}
	return start, start.Add(uintptr(res.Pages) * pageresource.BytesInPage), true
}

// SetFromSpace marks whether this half of a semispace pair is currently
// the retired side being forwarded out of (true) or the live side objects
// may be allocated/copied into (false).
func (s *CopySpace) SetFromSpace(v bool) {
	s.mu.Lock()
	s.fromSpace = v
	s.copyAlloc = nil
	s.mu.Unlock()
}

func (s *CopySpace) IsFromSpace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fromSpace
}

// AllocCopy implements CopyDestination, handing a copying worker a
// destination for a size-byte object via a bump allocator rooted at this
// space's own AcquireRegion. A real scheduler would give each GC worker
// its own copy context; this single shared allocator (mutex-guarded) is
// the sequential-consistency simplification documented in DESIGN.md.
func (s *CopySpace) AllocCopy(size uintptr) address.Address {
	s.mu.Lock()
	if s.copyAlloc == nil {
		s.copyAlloc = alloc.NewBumpAllocator(s)
	}
	ca := s.copyAlloc
	s.mu.Unlock()

	if r := ca.Alloc(size, 8, 0); !r.IsZero() {
		return r
	}
	return ca.AllocSlow(size, 8, 0)
}

func (s *CopySpace) IsMovable() bool { return true }

func (s *CopySpace) IsLive(obj address.ObjectReference) bool {
	if !s.IsFromSpace() {
		return true
	}
	_, forwarded := s.fwd.Peek(obj)
	return forwarded
}

func (s *CopySpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return s.fwd.Peek(obj)
}

func (s *CopySpace) InitializeObjectMetadata(address.ObjectReference, bool) {}

// MarkCopied implements CopyDestination as a no-op: a CopySpace tracks no
// per-object liveness state of its own, since IsLive/TraceObject consult
// only the shared forwarding word.
func (s *CopySpace) MarkCopied(address.ObjectReference, uintptr) {}

// TraceObject forwards obj out of this space if it is currently
// from-space; objects reached in a to-space CopySpace are already at
// their final address for this cycle and are returned unchanged.
func (s *CopySpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	if !s.IsFromSpace() {
		return obj
	}
	isForwarder, existing := s.fwd.Forward(obj)
	if !isForwarder {
		return existing
	}
	size := s.Model.BytesRequiredWhenCopied(obj)
	dst := s.Target.AllocCopy(size)
	newRef := s.Model.CopyObject(obj, dst)
	s.Target.MarkCopied(newRef, size)
	s.fwd.Publish(obj, newRef)
	return newRef
}

// Release scrubs this space's forwarding state over the address range it
// used this cycle, then resets its cursor, once it has been fully
// vacated at the end of a cycle in which it was from-space. The
// forwarding-state scrub must happen before the region is handed to
// different objects on some later cycle this space is from-space again
// — otherwise a stale Forwarded bit from this cycle would misdirect
// TraceObject on an entirely unrelated future object at the same address.
func (s *CopySpace) Release() {
	if start, end := s.pr.UsedRange(); end > start {
		s.fwd.ResetRange(address.FromUintptrUnsafe(start), end-start)
	}
	s.pr.Reset()
	s.mu.Lock()
	s.fromSpace = false
	s.copyAlloc = nil
	s.mu.Unlock()
}
