package space

import (
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

// LargeObjectSpace gives every allocation its own whole-page region from
// a free-list page resource. Rather than the source's intrusive
// treadmill list (a header word each object reserves for prev/next
// pointers the binding does not give us control over), liveness is
// tracked with two address-keyed sets representing the treadmill's two
// sides: Prepare moves the previous cycle's survivors to "from", tracing
// moves each object it touches back to "to", and Release frees whatever
// is left on "from" as garbage.
type LargeObjectSpace struct {
	Common

	pr   *pageresource.FreeListPageResource
	mark *sidemetadata.Spec

	mu   sync.Mutex
	to   map[address.ObjectReference]uintptr
	from map[address.ObjectReference]uintptr
}

func NewLargeObjectSpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.FreeListPageResource) *LargeObjectSpace {
	return &LargeObjectSpace{
		Common: Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:     pr,
		mark:   sidemetadata.NewSpec(name+".mark", 1, 3, sidemetadata.PerPolicy),
		to:     make(map[address.ObjectReference]uintptr),
	}
}

// AcquireRegion implements alloc.Refiller. Each call grants exactly one
// new whole-page object region, placed on the "to" side immediately: a
// large object allocated mid-cycle is implicitly live for that cycle, the
// same role spec.md's "nursery bit" plays in the source.
func (s *LargeObjectSpace) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
	pages := pagesFor(minBytes)
	res, err := s.pr.AllocPages(s.Descriptor, pages, pages)
	if err != nil {
		return 0, 0, false
	}
	start := address.FromUintptrUnsafe(res.Start)
	s.Register(s, start, uintptr(res.Pages)*pageresource.BytesInPage)

	obj := address.FromAddress(start)
	s.mu.Lock()
	s.to[obj] = res.Start
	s.mu.Unlock()
	s.mark.StoreAtomic(start, 1)
	return start, start.Add(uintptr(res.Pages) * pageresource.BytesInPage), true
}

// Prepare moves every currently-live object to the "from" side and clears
// its mark bit; tracing will move genuinely-reachable objects back to
// "to", leaving unreachable ones on "from" for Release to sweep.
func (s *LargeObjectSpace) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for obj := range s.to {
		s.mark.StoreAtomic(obj.ToAddress(), 0)
	}
	s.from = s.to
	s.to = make(map[address.ObjectReference]uintptr)
}

func (s *LargeObjectSpace) IsMovable() bool { return false }

func (s *LargeObjectSpace) IsLive(obj address.ObjectReference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, live := s.to[obj]
	return live
}

func (s *LargeObjectSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return obj, false
}

func (s *LargeObjectSpace) InitializeObjectMetadata(obj address.ObjectReference, allocated bool) {
	s.mark.StoreAtomic(obj.ToAddress(), 1)
}

// TraceObject moves obj from the "from" side to "to" the first time it is
// reached in a cycle, so Release sees only genuine garbage remaining on
// "from".
func (s *LargeObjectSpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	if s.mark.CompareExchange(obj.ToAddress(), 0, 1) {
		s.mu.Lock()
		pageAddr, ok := s.from[obj]
		if ok {
			delete(s.from, obj)
		} else {
			pageAddr = uintptr(obj.ToAddress())
		}
		s.to[obj] = pageAddr
		s.mu.Unlock()
	}
	return obj
}

// Release frees every page run still on the "from" side: objects that
// survived Prepare's move but were never reached by this cycle's trace.
func (s *LargeObjectSpace) Release() {
	s.mu.Lock()
	from := s.from
	s.from = nil
	s.mu.Unlock()
	for _, pageAddr := range from {
		s.pr.ReleasePages(pageAddr)
	}
}
