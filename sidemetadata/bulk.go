package sidemetadata

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/mmapper"
)

// bitByteRange is the result of decomposing a bit range [bitStart, bitStart+
// bitCount) into a possibly-partial head byte, a run of whole bytes, and a
// possibly-partial tail byte. Bulk operations that would otherwise have to
// fiddle with masks one bit at a time instead zero or copy the middle run
// with a single loop and only mask the two edges.
//
// Grounded on the head/middle/tail decomposition used by side-metadata
// range helpers: any contiguous bit range spanning more than one byte has at
// most one partial byte at each end.
type bitByteRange struct {
	headByte           address.Address
	headMask           uint8 // zero if there is no partial head byte
	midStart, midBytes address.Address
	tailByte           address.Address
	tailMask           uint8 // zero if there is no partial tail byte
}

func (s *Spec) metaBitRange(start address.Address, bytes uintptr) (bitStart, bitCount uintptr) {
	regionIdx := start.Shr(s.LogBytesInRegion)
	numRegions := bytes >> s.LogBytesInRegion
	return regionIdx * uintptr(s.BitsPerRegion), numRegions * uintptr(s.BitsPerRegion)
}

func (s *Spec) breakBitRange(start address.Address, bytes uintptr) bitByteRange {
	bitStart, bitCount := s.metaBitRange(start, bytes)
	bitEnd := bitStart + bitCount

	base := address.FromUintptrUnsafe(s.base())
	byteStart := bitStart / 8
	byteEnd := bitEnd / 8
	offStart := uint(bitStart % 8)
	offEnd := uint(bitEnd % 8)

	if byteStart == byteEnd {
		// Entire range fits within one byte.
		mask := uint8((uint(1)<<(offEnd-offStart))-1) << offStart
		return bitByteRange{headByte: base.Add(byteStart), headMask: mask}
	}

	var r bitByteRange
	mid := byteStart
	if offStart != 0 {
		r.headByte = base.Add(byteStart)
		r.headMask = uint8(0xff << offStart)
		mid = byteStart + 1
	}
	if offEnd != 0 {
		r.tailByte = base.Add(byteEnd)
		r.tailMask = uint8(0xff >> (8 - offEnd))
	}
	if mid < byteEnd {
		r.midStart = base.Add(mid)
		r.midBytes = address.Address(byteEnd - mid)
	}
	return r
}

func (s *Spec) ensureMappedRange(start address.Address, bytes uintptr) {
	r := s.breakBitRange(start, bytes)
	lo, hi := r.headByte, r.headByte
	touched := false
	touch := func(a address.Address) {
		if !touched || a < lo {
			lo = a
		}
		if !touched || a > hi {
			hi = a
		}
		touched = true
	}
	if r.headMask != 0 {
		touch(r.headByte)
	}
	if uintptr(r.midBytes) > 0 {
		touch(r.midStart)
		touch(r.midStart.Add(uintptr(r.midBytes) - 1))
	}
	if r.tailMask != 0 {
		touch(r.tailByte)
	}
	if !touched {
		return
	}
	chunkStart := uintptr(lo) &^ (mmapper.BytesInChunk - 1)
	chunkEnd := (uintptr(hi) + mmapper.BytesInChunk) &^ (mmapper.BytesInChunk - 1)
	if err := metaMapper.EnsureMapped(chunkStart, chunkEnd-chunkStart); err != nil {
		panic(err)
	}
}

// BzeroMetadata clears every metadata bit describing the data region
// [start, start+bytes). start and bytes must both be multiples of the
// spec's region size. Bits outside the range, including the unused bits of
// a partially-covered byte, are left unchanged.
func (s *Spec) BzeroMetadata(start address.Address, bytes uintptr) {
	r := s.breakBitRange(start, bytes)
	s.ensureMappedRange(start, bytes)
	if r.headMask != 0 {
		r.headByte.StoreUint8(r.headByte.LoadUint8() &^ r.headMask)
	}
	for i := uintptr(0); i < uintptr(r.midBytes); i++ {
		r.midStart.Add(i).StoreUint8(0)
	}
	if r.tailMask != 0 {
		r.tailByte.StoreUint8(r.tailByte.LoadUint8() &^ r.tailMask)
	}
}

// BcopyMetadataContiguous copies the metadata bits describing
// [srcStart, srcStart+bytes) so that they instead describe
// [dstStart, dstStart+bytes), for data that has been moved or whose
// ownership has transferred to a new address (e.g. after a copying
// collector relocates an object, or a chunk is reassigned between
// policies that share this spec). dstStart, srcStart and bytes must all be
// multiples of the spec's region size.
func (s *Spec) BcopyMetadataContiguous(dstStart, srcStart address.Address, bytes uintptr) {
	s.ensureMappedRange(dstStart, bytes)

	srcBit, _ := s.metaBitRange(srcStart, bytes)
	dstBit, _ := s.metaBitRange(dstStart, bytes)
	if s.BitsPerRegion >= 8 || srcBit%8 == dstBit%8 {
		// Same bit offset within a byte on both sides: the head/middle/tail
		// byte runs line up and can be copied (and masked, at the edges) a
		// byte at a time.
		srcRange := s.breakBitRange(srcStart, bytes)
		dstRange := s.breakBitRange(dstStart, bytes)
		copyByte := func(dst, src address.Address, mask uint8) {
			if mask == 0xff {
				dst.StoreUint8(src.LoadUint8())
				return
			}
			dst.StoreUint8((dst.LoadUint8() &^ mask) | (src.LoadUint8() & mask))
		}
		if srcRange.headMask != 0 {
			copyByte(dstRange.headByte, srcRange.headByte, srcRange.headMask)
		}
		for i := uintptr(0); i < uintptr(srcRange.midBytes); i++ {
			dstRange.midStart.Add(i).StoreUint8(srcRange.midStart.Add(i).LoadUint8())
		}
		if srcRange.tailMask != 0 {
			copyByte(dstRange.tailByte, srcRange.tailByte, srcRange.tailMask)
		}
		return
	}

	// The two ranges land at different bit offsets within a byte (e.g. a
	// sub-byte spec whose source and destination regions have different
	// parity); fall back to one load/store per region rather than risk
	// smearing bits across byte boundaries.
	step := uintptr(1) << s.LogBytesInRegion
	n := bytes / step
	for i := uintptr(0); i < n; i++ {
		v := s.Load(srcStart.Add(i * step))
		s.Store(dstStart.Add(i * step), v)
	}
}

// ScanNonZeroValues calls fn once for every region in [start, end) whose
// metadata entry is non-zero, passing the data address that region starts
// at. It visits regions in address order. Policies use this to rebuild a
// free list from mark bits, or to find every object a conservative scan
// would otherwise need a root set for.
func (s *Spec) ScanNonZeroValues(start, end address.Address, fn func(regionStart address.Address)) {
	step := uintptr(1) << s.LogBytesInRegion
	for a := start; a < end; a = a.Add(step) {
		if s.Load(a) != 0 {
			fn(a)
		}
	}
}
