package gcmm

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/vmmap"
)

// maxSpacesPerHeap bounds how many Map64 regions a heap reserves
// regardless of which plan.Kind is actually selected: every plan this
// package builds uses at most this many spaces (GenCopy, the largest,
// uses five: immortal, los, nursery and two mature hemispheres).
const maxSpacesPerHeap = 8

// heapLayout is the address-space geometry every Init call derives once
// from the configured heap size, before any space is constructed. Map64
// hands every bound region the same power-of-two extent (see
// vmmap.Map64's logSpaceExtent field), so regionExtent must be large
// enough for whichever single space ends up biggest, and every other
// space simply leaves the rest of its own region unused.
type heapLayout struct {
	base                address.Address
	regionExtent        uintptr
	logRegionExtent     uint
	maxChunks           int
	logAddressSpaceBits uint
	totalPages          int
}

// computeHeapLayout derives a heapLayout from the configured heap size.
// base sits one chunk above the zero address (chunk 0 is never handed
// out, so a stray zero Address is never mistaken for real heap memory),
// and the sft.Map/Mmapper covering this layout both span out to
// base+maxSpacesPerHeap*regionExtent, since sft.Map indexes chunks by
// their absolute number rather than a number relative to any one space.
func computeHeapLayout(heapSizeMB int) heapLayout {
	heapBytes := uintptr(heapSizeMB) << 20
	perSpace := heapBytes / maxSpacesPerHeap
	if perSpace < vmmap.BytesInChunk {
		perSpace = vmmap.BytesInChunk
	}
	logExtent := ceilLog2(perSpace)
	if logExtent < vmmap.LogBytesInChunk {
		logExtent = vmmap.LogBytesInChunk
	}
	regionExtent := uintptr(1) << logExtent

	base := address.FromUintptrUnsafe(vmmap.BytesInChunk)
	totalSpan := uintptr(base) + maxSpacesPerHeap*regionExtent
	maxChunks := int((totalSpan + vmmap.BytesInChunk - 1) / vmmap.BytesInChunk)

	return heapLayout{
		base:                base,
		regionExtent:        regionExtent,
		logRegionExtent:     logExtent,
		maxChunks:           maxChunks,
		logAddressSpaceBits: ceilLog2(totalSpan),
		totalPages:          int(heapBytes / vmmap.BytesInPage),
	}
}

func ceilLog2(v uintptr) uint {
	n := uint(0)
	p := uintptr(1)
	for p < v {
		p <<= 1
		n++
	}
	return n
}
