package sidemetadata

import (
	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/mmapper"
)

// ensureMapped lazily maps the metadata chunk backing addr the first time
// any code stores to or performs a read-modify-write on bits in that
// chunk. Reads never call this: Load and LoadAtomic report zero for an
// entry whose metadata chunk is not mapped yet, the same value a freshly
// mapped (zero-filled) chunk would hold, so a pure read maps nothing.
func (s *Spec) ensureMapped(metaAddr address.Address) {
	chunkStart := uintptr(metaAddr) &^ (mmapper.BytesInChunk - 1)
	if err := metaMapper.EnsureMapped(chunkStart, mmapper.BytesInChunk); err != nil {
		panic(err)
	}
}

// Load reads the entry covering addr. For sub-byte specs, only that
// entry's bits are returned (shifted down to bit 0); for byte+ specs the
// full byte/word is returned.
func (s *Spec) Load(addr address.Address) uint64 {
	meta := s.metaByteAddress(addr)
	if metaMapper.State(uintptr(meta)) != mmapper.Mapped {
		return 0
	}
	switch {
	case s.BitsPerRegion < 8:
		v := meta.LoadUint8()
		bit := s.metaBitIndex(addr)
		return uint64(v&s.valueMask(bit)) >> (bit * s.BitsPerRegion)
	case s.BitsPerRegion == 8:
		return uint64(meta.LoadUint8())
	case s.BitsPerRegion <= 32:
		return uint64(meta.LoadUint32())
	default:
		return meta.LoadUint64()
	}
}

// LoadAtomic is Load with acquire-equivalent atomic semantics, for bits
// (e.g. mark bits) that double as cross-thread synchronisation.
func (s *Spec) LoadAtomic(addr address.Address) uint64 {
	meta := s.metaByteAddress(addr)
	if metaMapper.State(uintptr(meta)) != mmapper.Mapped {
		return 0
	}
	if s.BitsPerRegion <= 32 {
		v := meta.AlignDown(4).LoadUint32Atomic()
		shift := (uint(meta) - uint(meta.AlignDown(4))) * 8
		if s.BitsPerRegion < 8 {
			bit := s.metaBitIndex(addr)
			return uint64((v>>shift)&uint32(s.valueMask(bit))) >> (bit * s.BitsPerRegion)
		}
		return uint64(v>>shift) & ((1 << s.BitsPerRegion) - 1)
	}
	return meta.LoadUint64Atomic()
}

// Store writes value into the entry covering addr, preserving the other
// entries sharing its byte for sub-byte specs. It lazily maps the backing
// metadata chunk on first touch.
func (s *Spec) Store(addr address.Address, value uint64) {
	meta := s.metaByteAddress(addr)
	s.ensureMapped(meta)
	switch {
	case s.BitsPerRegion < 8:
		bit := s.metaBitIndex(addr)
		mask := s.valueMask(bit)
		old := meta.LoadUint8()
		meta.StoreUint8((old &^ mask) | (uint8(value)<<(bit*s.BitsPerRegion))&mask)
	case s.BitsPerRegion == 8:
		meta.StoreUint8(uint8(value))
	case s.BitsPerRegion <= 32:
		meta.StoreUint32(uint32(value))
	default:
		meta.StoreUint64(value)
	}
}

// StoreAtomic is Store using atomic RMW so concurrent writers to different
// entries in the same byte/word never lose each other's updates.
func (s *Spec) StoreAtomic(addr address.Address, value uint64) {
	s.fetchUpdate(addr, func(old uint64) uint64 { return value })
}

// FetchOr atomically ORs mask into the entry and returns the prior value.
func (s *Spec) FetchOr(addr address.Address, mask uint64) uint64 {
	return s.fetchUpdate(addr, func(old uint64) uint64 { return old | mask })
}

// FetchAnd atomically ANDs mask into the entry and returns the prior value.
func (s *Spec) FetchAnd(addr address.Address, mask uint64) uint64 {
	return s.fetchUpdate(addr, func(old uint64) uint64 { return old & mask })
}

// CompareExchange atomically sets the entry to new if it currently holds
// old, returning whether the exchange took place.
func (s *Spec) CompareExchange(addr address.Address, old, new uint64) bool {
	meta := s.metaByteAddress(addr)
	s.ensureMapped(meta)
	if s.BitsPerRegion >= 32 {
		if s.BitsPerRegion == 32 {
			return meta.CompareAndSwapUint32(uint32(old), uint32(new))
		}
		return meta.CompareAndSwapUint64(old, new)
	}
	// Sub-byte and byte-sized entries share a word with neighbours; CAS
	// the containing word with the target bits merged in.
	word := meta.AlignDown(4)
	shift := (uint(meta) - uint(word)) * 8
	var entryMask uint32
	if s.BitsPerRegion < 8 {
		bit := s.metaBitIndex(addr)
		entryMask = uint32(s.valueMask(bit)) << shift
		shift += bit * s.BitsPerRegion
	} else {
		entryMask = uint32(0xff) << shift
	}
	for {
		cur := word.LoadUint32Atomic()
		if (cur&entryMask)>>shift != uint32(old) {
			return false
		}
		next := (cur &^ entryMask) | (uint32(new)<<shift)&entryMask
		if word.CompareAndSwapUint32(cur, next) {
			return true
		}
	}
}

func (s *Spec) fetchUpdate(addr address.Address, update func(uint64) uint64) uint64 {
	meta := s.metaByteAddress(addr)
	s.ensureMapped(meta)
	for {
		old := s.LoadAtomic(addr)
		if s.CompareExchange(addr, old, update(old)) {
			return old
		}
	}
}
