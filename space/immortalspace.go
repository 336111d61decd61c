package space

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

// ImmortalSpace is bump-allocated and never collected: used for boot
// image objects and GC-internal metadata that must outlive every cycle.
// Tracing marks the object (idempotently, so repeated visits within one
// trace cost nothing extra); release is a no-op since nothing is ever
// reclaimed.
type ImmortalSpace struct {
	Common

	pr   *pageresource.MonotonePageResource
	mark *sidemetadata.Spec
}

func NewImmortalSpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.MonotonePageResource) *ImmortalSpace {
	return &ImmortalSpace{
		Common: Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:     pr,
		mark:   sidemetadata.NewSpec(name+".mark", 1, 3, sidemetadata.PerPolicy),
	}
}

func (s *ImmortalSpace) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
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

func (s *ImmortalSpace) IsMovable() bool { return false }

func (s *ImmortalSpace) IsLive(address.ObjectReference) bool { return true }

func (s *ImmortalSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return obj, false
}

func (s *ImmortalSpace) InitializeObjectMetadata(obj address.ObjectReference, allocated bool) {
	s.mark.StoreAtomic(obj.ToAddress(), 1)
}

func (s *ImmortalSpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	s.mark.CompareExchange(obj.ToAddress(), 0, 1)
	return obj
}

// Release is a no-op: ImmortalSpace is never swept.
func (s *ImmortalSpace) Release() {}

var _ sft.SFT = (*ImmortalSpace)(nil)
