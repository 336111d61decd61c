package space

import (
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

const (
	immixBlockBytes    = 32 * 1024
	immixLineBytes     = 256
	immixLinesPerBlock = immixBlockBytes / immixLineBytes

	// ImmixBlockBytes is immixBlockBytes exported for callers (gcmm's
	// heap builder) that must construct the pageresource.BlockPageResource
	// an ImmixSpace is handed at construction with a matching block size.
	ImmixBlockBytes = immixBlockBytes
)

type immixBlockState struct {
	start    address.Address
	lineMark []bool
}

// ImmixSpace bump-allocates within line-granularity holes inside a
// 32 KiB block; a hole is a run of lines no live object touched last
// cycle. This implementation runs Immix in its non-moving mode: lines
// with no marks are reclaimed as holes and blocks with no marked lines
// return to the page resource, but objects are never opportunistically
// copied out of partially-full blocks (see DESIGN.md — the defrag-source
// selection heuristic needs per-block hole statistics the source derives
// from its conflation of allocation and tracing state, which this port
// keeps separate; mark-region Immix is itself a valid configuration of
// the algorithm, not a different one).
type ImmixSpace struct {
	Common

	pr      *pageresource.BlockPageResource
	objMark *sidemetadata.Spec
	Model   ObjectModel

	mu          sync.Mutex
	blocks      []*immixBlockState
	cursorBlock *immixBlockState
	cursorLine  int

	promoteAlloc *alloc.ImmixAllocator
}

func NewImmixSpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.BlockPageResource, model ObjectModel) *ImmixSpace {
	return &ImmixSpace{
		Common:  Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:      pr,
		objMark: sidemetadata.NewSpec(name+".mark", 1, 3, sidemetadata.PerPolicy),
		Model:   model,
	}
}

// AcquireBlock implements alloc.HoleSource.
func (s *ImmixSpace) AcquireBlock() bool {
	addr, err := s.pr.AllocBlock(0)
	if err != nil {
		return false
	}
	start := address.FromUintptrUnsafe(addr)
	s.Register(s, start, immixBlockBytes)
	b := &immixBlockState{start: start, lineMark: make([]bool, immixLinesPerBlock)}

	s.mu.Lock()
	s.blocks = append(s.blocks, b)
	s.cursorBlock = b
	s.cursorLine = 0
	s.mu.Unlock()
	return true
}

// NextHole implements alloc.HoleSource: returns the next run of unmarked
// lines in the current block, consuming it so a later call advances past
// it, or ok=false once the block has no holes left.
func (s *ImmixSpace) NextHole() (address.Address, address.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.cursorBlock
	if b == nil {
		return 0, 0, false
	}
	for s.cursorLine < immixLinesPerBlock && b.lineMark[s.cursorLine] {
		s.cursorLine++
	}
	if s.cursorLine >= immixLinesPerBlock {
		return 0, 0, false
	}
	holeStart := s.cursorLine
	for s.cursorLine < immixLinesPerBlock && !b.lineMark[s.cursorLine] {
		s.cursorLine++
	}
	start := b.start.Add(uintptr(holeStart) * immixLineBytes)
	end := b.start.Add(uintptr(s.cursorLine) * immixLineBytes)
	return start, end, true
}

func (s *ImmixSpace) blockFor(addr address.Address) *immixBlockState {
	blockStart := address.FromUintptrUnsafe(uintptr(addr) &^ (immixBlockBytes - 1))
	for _, b := range s.blocks {
		if b.start == blockStart {
			return b
		}
	}
	return nil
}

func (s *ImmixSpace) markLinesLocked(addr address.Address, size uintptr) {
	b := s.blockFor(addr)
	if b == nil {
		return
	}
	first := int(addr.Sub(b.start)) / immixLineBytes
	last := int(addr.Add(size - 1).Sub(b.start)) / immixLineBytes
	for i := first; i <= last && i < immixLinesPerBlock; i++ {
		b.lineMark[i] = true
	}
}

// AllocCopy implements CopyDestination, letting a generational plan
// (StickyImmix) promote nursery survivors straight into this space
// through the same line-granularity allocator a bound mutator would use,
// rather than needing a second moving space to receive them.
func (s *ImmixSpace) AllocCopy(size uintptr) address.Address {
	s.mu.Lock()
	if s.promoteAlloc == nil {
		s.promoteAlloc = alloc.NewImmixAllocator(s)
	}
	pa := s.promoteAlloc
	s.mu.Unlock()

	if r := pa.Alloc(size, 8, 0); !r.IsZero() {
		return r
	}
	return pa.AllocSlow(size, 8, 0)
}

// MarkCopied implements space.CopyDestination: a nursery object promoted
// here needs the same mark bit and line marks a fresh mutator allocation
// would get via InitializeObjectMetadata, since it was never allocated
// through this space's own ImmixAllocator path.
func (s *ImmixSpace) MarkCopied(obj address.ObjectReference, size uintptr) {
	addr := obj.ToAddress()
	s.objMark.StoreAtomic(addr, 1)
	s.mu.Lock()
	s.markLinesLocked(addr, size)
	s.mu.Unlock()
}

func (s *ImmixSpace) IsMovable() bool { return false }

func (s *ImmixSpace) IsLive(obj address.ObjectReference) bool {
	return s.objMark.LoadAtomic(obj.ToAddress()) != 0
}

func (s *ImmixSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return obj, false
}

func (s *ImmixSpace) InitializeObjectMetadata(obj address.ObjectReference, allocated bool) {
	addr := obj.ToAddress()
	s.objMark.StoreAtomic(addr, 1)
	s.mu.Lock()
	s.markLinesLocked(addr, s.Model.BytesRequiredWhenCopied(obj))
	s.mu.Unlock()
}

func (s *ImmixSpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	addr := obj.ToAddress()
	if !s.objMark.CompareExchange(addr, 0, 1) {
		return obj
	}
	s.mu.Lock()
	s.markLinesLocked(addr, s.Model.BytesRequiredWhenCopied(obj))
	s.mu.Unlock()
	return obj
}

// Prepare clears every block's line marks and object mark bits ahead of
// a new trace, and drops the allocation cursor: the first post-Prepare
// allocation re-derives it from whichever block Release leaves in place.
func (s *ImmixSpace) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		for i := range b.lineMark {
			b.lineMark[i] = false
		}
		s.objMark.BzeroMetadata(b.start, immixBlockBytes)
	}
	s.cursorBlock = nil
	s.cursorLine = 0
}

// Release frees blocks with no marked lines and makes the first
// remaining block available for allocation again.
func (s *ImmixSpace) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.blocks[:0]
	for _, b := range s.blocks {
		anyMarked := false
		for _, m := range b.lineMark {
			if m {
				anyMarked = true
				break
			}
		}
		if !anyMarked {
			s.pr.ReleaseBlock(0, uintptr(b.start))
			continue
		}
		live = append(live, b)
	}
	s.blocks = live
	s.cursorLine = 0
	if len(live) > 0 {
		s.cursorBlock = live[0]
	} else {
		s.cursorBlock = nil
	}
}

var _ sft.SFT = (*ImmixSpace)(nil)
