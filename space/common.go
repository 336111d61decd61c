// Package space implements the heap policies: CopySpace, ImmortalSpace,
// LargeObjectSpace, MarkSweepSpace, ImmixSpace, MarkCompactSpace and
// CompressorSpace. Each owns a page resource, registers itself with the
// global SFT table over whatever chunks it acquires, and implements
// sft.SFT so the collector can dispatch to it without a typed reference.
package space

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

// Common is the bookkeeping every policy shares: the name and descriptor
// the VMMap/SFT table use to identify it, and the SFT/VMMap instances the
// whole heap shares.
type Common struct {
	SpaceName  string
	Descriptor vmmap.SpaceDescriptor
	SFT        *sft.Map
	VMMap      vmmap.VMMap
}

func (c *Common) Name() string { return c.SpaceName }

// IsInSpace reports whether addr's chunk is owned by this space, going
// through the VMMap rather than the SFT table since a space can answer
// this about its own chunks without a table lookup once it has a
// descriptor.
func (c *Common) IsInSpace(addr address.Address) bool {
	return c.VMMap.GetDescriptorForAddress(uintptr(addr)) == c.Descriptor
}

// Register installs self as the SFT owner of [start, start+bytes), called
// whenever the space's page resource grants it a fresh chunk.
func (c *Common) Register(self sft.SFT, start address.Address, bytes uintptr) {
	c.SFT.Set(start, bytes, self)
}

// pagesFor rounds bytes up to a whole number of pages, the granularity
// every PageResource allocates in.
func pagesFor(bytes uintptr) int {
	return int((bytes + pageresource.BytesInPage - 1) / pageresource.BytesInPage)
}

// ObjectModel is the slice of the VM binding contract a moving space
// needs to relocate an object: its footprint once copied, and a way to
// copy it into freshly allocated space and return the reference at its
// new location. Defined here (rather than imported from package vm) so
// that space has no dependency on the binding package; package vm's
// concrete ObjectModel implementation satisfies this by having the same
// method set.
type ObjectModel interface {
	BytesRequiredWhenCopied(obj address.ObjectReference) uintptr
	CopyObject(obj address.ObjectReference, to address.Address) address.ObjectReference
}
