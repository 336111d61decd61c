package space

import (
	"sort"
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

type mcLiveObject struct {
	addr address.Address
	size uintptr
}

// MarkCompactSpace is a single contiguous region collected in four
// phases: Mark (TraceObject records each live object's address and
// size), ComputeForwardingAddresses (a prefix sum over the recorded
// objects in address order gives each one its destination), forwarding
// of roots (GetForwardedObject, consulted by the scanning work packets
// between the two phases), and Compact (copy each object to its
// destination in address order).
//
// The source caches the prefix sum per 512-byte block of the mark
// bitmap so forwarding lookup is O(1) without a hash map; this port
// instead builds an exact address->destination map once forwarding is
// computed, which is also O(1) per lookup and needs no bitmap-walk
// reconstruction, at the cost of one map entry per live object rather
// than per 512-byte block (documented in DESIGN.md).
type MarkCompactSpace struct {
	Common

	pr    *pageresource.MonotonePageResource
	mark  *sidemetadata.Spec
	Model ObjectModel

	regionStart address.Address
	regionEnd   address.Address

	mu           sync.Mutex
	liveObjects  []mcLiveObject
	forwardTable map[address.ObjectReference]address.Address
	compactedEnd address.Address
}

func NewMarkCompactSpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.MonotonePageResource, regionStart address.Address, regionBytes uintptr, model ObjectModel) *MarkCompactSpace {
	return &MarkCompactSpace{
		Common:      Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:          pr,
		mark:        sidemetadata.NewSpec(name+".mark", 1, 3, sidemetadata.PerPolicy),
		Model:       model,
		regionStart: regionStart,
		regionEnd:   regionStart.Add(regionBytes),
	}
}

// AcquireRegion implements alloc.Refiller for the MarkCompactAllocator
// mutators bump-allocate through between collections.
func (s *MarkCompactSpace) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
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

// Prepare clears mark bits over the whole region and discards the
// previous cycle's forwarding table ahead of a new mark phase.
func (s *MarkCompactSpace) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark.BzeroMetadata(s.regionStart, s.regionEnd.Sub(s.regionStart))
	s.liveObjects = s.liveObjects[:0]
	s.forwardTable = nil
}

func (s *MarkCompactSpace) IsMovable() bool { return true }

func (s *MarkCompactSpace) IsLive(obj address.ObjectReference) bool {
	return s.mark.LoadAtomic(obj.ToAddress()) != 0
}

func (s *MarkCompactSpace) InitializeObjectMetadata(obj address.ObjectReference, allocated bool) {
	s.mark.StoreAtomic(obj.ToAddress(), 1)
}

// TraceObject is the Mark phase: the first thread to reach obj this
// cycle records its address and footprint for the forwarding computation.
func (s *MarkCompactSpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	addr := obj.ToAddress()
	if s.mark.CompareExchange(addr, 0, 1) {
		size := s.Model.BytesRequiredWhenCopied(obj)
		s.mu.Lock()
		s.liveObjects = append(s.liveObjects, mcLiveObject{addr: addr, size: size})
		s.mu.Unlock()
	}
	return obj
}

// ComputeForwardingAddresses is the prefix-sum phase: called once, after
// the mark/closure buckets have fully drained and before root forwarding
// begins, it lays every live object out contiguously from regionStart in
// address order.
func (s *MarkCompactSpace) ComputeForwardingAddresses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.liveObjects, func(i, j int) bool { return s.liveObjects[i].addr < s.liveObjects[j].addr })
	table := make(map[address.ObjectReference]address.Address, len(s.liveObjects))
	cursor := s.regionStart
	for _, lo := range s.liveObjects {
		table[address.FromAddressUnsafe(lo.addr)] = cursor
		cursor = cursor.Add(lo.size)
	}
	s.forwardTable = table
	s.compactedEnd = cursor
}

// GetForwardedObject is consulted by root and reference forwarding,
// which runs after ComputeForwardingAddresses but before Compact has
// actually moved any bytes.
func (s *MarkCompactSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forwardTable == nil {
		return obj, false
	}
	dest, ok := s.forwardTable[obj]
	if !ok {
		return obj, false
	}
	return address.FromAddressUnsafe(dest), true
}

// Compact is the fourth phase: copy every live object to its computed
// destination in address order (so a lower object is never overwritten
// before a higher one reads it, since destinations are monotonically
// ≤ source addresses), then resume the bump cursor right after the
// compacted region.
func (s *MarkCompactSpace) Compact() {
	s.mu.Lock()
	objs := append([]mcLiveObject(nil), s.liveObjects...)
	table := s.forwardTable
	end := s.compactedEnd
	s.mu.Unlock()

	for _, lo := range objs {
		obj := address.FromAddressUnsafe(lo.addr)
		dest := table[obj]
		s.Model.CopyObject(obj, dest)
	}
	s.pr.SetCursor(uintptr(end))
}

// ForEachLiveObject calls fn once per object TraceObject recorded this
// cycle, in no particular order. A driver uses this between
// ComputeForwardingAddresses and Compact to fix up every live object's
// own reference fields (not just roots) at their pre-move addresses,
// since GetForwardedObject only resolves destinations once this table
// exists and Compact has not yet copied any bytes.
func (s *MarkCompactSpace) ForEachLiveObject(fn func(address.ObjectReference)) {
	s.mu.Lock()
	objs := append([]mcLiveObject(nil), s.liveObjects...)
	s.mu.Unlock()
	for _, lo := range objs {
		fn(address.FromAddressUnsafe(lo.addr))
	}
}

// Release drops the forwarding table and live-object list once the
// cycle's compaction has completed.
func (s *MarkCompactSpace) Release() {
	s.mu.Lock()
	s.liveObjects = nil
	s.forwardTable = nil
	s.mu.Unlock()
}

var _ sft.SFT = (*MarkCompactSpace)(nil)
