// Package sidemetadata implements lazily-mapped bitmap arrays indexed by
// heap address. It is how the collector attaches per-object and per-line
// bits (mark, logged, alloc, defrag-source, ...) to the heap without
// perturbing object headers, whose layout belongs entirely to the binding.
package sidemetadata

import (
	"fmt"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/mmapper"
)

// Scope distinguishes metadata that is shared across every space (Global,
// e.g. the valid-object bit) from metadata private to one policy
// (PerPolicy, e.g. a mark-sweep space's per-cell mark bit).
type Scope int

const (
	Global Scope = iota
	PerPolicy
)

// globalMetadataBase and localMetadataBase are the fixed high addresses
// described in spec.md §6's heap-layout ABI: the global side-metadata base
// sits at a fixed high address, with per-spec offsets laid out contiguously,
// and the per-policy base follows it.
const (
	globalMetadataBase = uintptr(0x0000_f000_0000_0000)
	localMetadataBase  = uintptr(0x0000_f800_0000_0000)
	// metadataAddressSpaceLog bounds how much of the metadata region a
	// single process-wide Mmapper needs to track; 44 bits comfortably
	// covers every spec this module defines without over-allocating the
	// lazily-created slab table.
	metadataAddressSpaceLog = 44
)

var metaMapper = mmapper.New(metadataAddressSpaceLog)

// Spec is a compile-time description of one bitmap over the heap: how many
// bits each region of data gets, how big a region is, and where in the
// metadata address space those bits live.
type Spec struct {
	Name             string
	BitsPerRegion    uint // 1, 2, 4, 8, 16, 32, or 64
	LogBytesInRegion uint // log2(region size in bytes) of the data being described
	Scope            Scope

	offset uintptr // assigned by NewSpec; disjoint per Scope
}

// perScopeCursor tracks the next free offset within each scope's metadata
// address region, so that every allocated spec occupies a disjoint slice
// of the metadata address space, as required by §3's SideMetadataSpec
// invariant.
var perScopeCursor = map[Scope]uintptr{Global: 0, PerPolicy: 0}

// NewSpec allocates a fresh, disjoint slice of the metadata address space
// for a bitmap with the given shape and registers it. It panics if
// bitsPerRegion is not a supported granularity, matching the fatal
// initialization-time behaviour the source uses for malformed specs.
func NewSpec(name string, bitsPerRegion uint, logBytesInRegion uint, scope Scope) *Spec {
	switch bitsPerRegion {
	case 1, 2, 4, 8, 16, 32, 64:
	default:
		panic(fmt.Sprintf("sidemetadata: unsupported bits-per-region %d for spec %q", bitsPerRegion, name))
	}
	s := &Spec{
		Name:             name,
		BitsPerRegion:    bitsPerRegion,
		LogBytesInRegion: logBytesInRegion,
		Scope:            scope,
	}
	base := perScopeCursor[scope]
	s.offset = base
	perScopeCursor[scope] = base + s.reservedBytesForAddressSpace()
	return s
}

// reservedBytesForAddressSpace is how many metadata bytes this spec would
// need to describe the full addressable space, i.e. its stride through the
// metadata region.
func (s *Spec) reservedBytesForAddressSpace() uintptr {
	logMaxRegions := metadataAddressSpaceLog - s.LogBytesInRegion
	if s.BitsPerRegion >= 8 {
		return (uintptr(1) << logMaxRegions) * uintptr(s.BitsPerRegion/8)
	}
	// Multiple sub-byte entries share a byte: 8/bitsPerRegion of them.
	logEntriesPerByte := log2(8 / s.BitsPerRegion)
	if logMaxRegions <= logEntriesPerByte {
		return 1
	}
	return uintptr(1) << (logMaxRegions - logEntriesPerByte)
}

func log2(v uint) uint {
	n := uint(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// bytesPerEntry is how many metadata bytes a single "entry" (the unit the
// byte-level load/store/CAS primitives operate on) occupies.
func (s *Spec) bytesPerEntry() uintptr {
	if s.BitsPerRegion < 8 {
		return 1
	}
	return uintptr(s.BitsPerRegion / 8)
}

func (s *Spec) base() uintptr {
	if s.Scope == Global {
		return globalMetadataBase + s.offset
	}
	return localMetadataBase + s.offset
}

// metaByteAddress returns the metadata byte address holding the bits for
// the data region containing addr, per §4.1's formula:
//
//	S.offset + (A >> S.log_bytes_in_region) * S.bytes_per_entry
func (s *Spec) metaByteAddress(addr address.Address) address.Address {
	regionIndex := addr.Shr(s.LogBytesInRegion)
	return address.FromUintptrUnsafe(s.base() + regionIndex*s.bytesPerEntry())
}

// metaBitIndex returns the bit position within the metadata byte for
// sub-byte specs, per §4.1's formula:
//
//	(A >> S.log_bytes_in_region) & ((8 / S.bits_per_entry) - 1)
func (s *Spec) metaBitIndex(addr address.Address) uint {
	if s.BitsPerRegion >= 8 {
		return 0
	}
	regionIndex := addr.Shr(s.LogBytesInRegion)
	entriesPerByte := uint(8 / s.BitsPerRegion)
	return uint(regionIndex) & (entriesPerByte - 1)
}

// valueMask returns a mask selecting the bits belonging to one entry within
// a byte, positioned at bitIndex.
func (s *Spec) valueMask(bitIndex uint) uint8 {
	width := s.BitsPerRegion
	return uint8((uint(1)<<width)-1) << (bitIndex * width)
}

func regionSize(s *Spec) uintptr { return uintptr(1) << s.LogBytesInRegion }

// ByteAddressForRegion exposes metaByteAddress for callers (e.g.
// CompressorSpace's scalar bitmap prefix sum) that need to walk raw
// metadata bytes directly with math/bits rather than go through
// Load/Store per region.
func (s *Spec) ByteAddressForRegion(addr address.Address) address.Address {
	return s.metaByteAddress(addr)
}
