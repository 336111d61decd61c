package space

import (
	"math/bits"
	"sort"
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

const (
	compWordBytes     = 8
	compBlockBytes    = 512
	compWordsPerBlock = compBlockBytes / compWordBytes
	compBytesPerBlock = compWordsPerBlock / 8 // one mark bit per word, 8 words/byte
)

// CompressorSpace is the single-space mark-compact variant using the
// Compressor algorithm: marks sit one bit per 8-byte word, and forwarding
// is a closed-form function of a per-512-byte-block popcount prefix sum
// rather than a per-object table (contrast MarkCompactSpace, which uses
// an explicit address->destination map). The source selects a CLMUL+
// POPCNT SIMD path for the prefix sum at runtime when available; this
// port only implements the scalar math/bits.OnesCount8 path it must
// already be bit-identical to, per spec.md's §9 Open Question resolution
// recorded in DESIGN.md.
type CompressorSpace struct {
	Common

	pr    *pageresource.MonotonePageResource
	mark  *sidemetadata.Spec
	Model ObjectModel

	regionStart address.Address
	regionEnd   address.Address

	mu           sync.Mutex
	liveObjects  []mcLiveObject
	blockPrefix  []uint32
	compactedEnd address.Address
}

func NewCompressorSpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.MonotonePageResource, regionStart address.Address, regionBytes uintptr, model ObjectModel) *CompressorSpace {
	return &CompressorSpace{
		Common:      Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:          pr,
		mark:        sidemetadata.NewSpec(name+".mark", 1, 3, sidemetadata.PerPolicy),
		Model:       model,
		regionStart: regionStart,
		regionEnd:   regionStart.Add(regionBytes),
	}
}

func (s *CompressorSpace) AcquireRegion(minBytes uintptr) (address.Address, address.Address, bool) {
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

func (s *CompressorSpace) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mark.BzeroMetadata(s.regionStart, s.regionEnd.Sub(s.regionStart))
	s.liveObjects = s.liveObjects[:0]
	s.blockPrefix = nil
}

func (s *CompressorSpace) IsMovable() bool { return true }

func (s *CompressorSpace) IsLive(obj address.ObjectReference) bool {
	return s.mark.LoadAtomic(obj.ToAddress()) != 0
}

func (s *CompressorSpace) InitializeObjectMetadata(obj address.ObjectReference, allocated bool) {
	s.mark.StoreAtomic(obj.ToAddress(), 1)
}

func (s *CompressorSpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	addr := obj.ToAddress()
	if s.mark.CompareExchange(addr, 0, 1) {
		size := s.Model.BytesRequiredWhenCopied(obj)
		for off := uintptr(compWordBytes); off < size; off += compWordBytes {
			s.mark.StoreAtomic(addr.Add(off), 1)
		}
		s.mu.Lock()
		s.liveObjects = append(s.liveObjects, mcLiveObject{addr: addr, size: size})
		s.mu.Unlock()
	}
	return obj
}

// popcountBlock counts the set mark bits (one per 8-byte word) within
// block index b by loading its compBytesPerBlock backing metadata bytes
// directly and summing bits.OnesCount8 over each — the scalar prefix-sum
// primitive the Compressor algorithm's forwarding formula is built on.
func (s *CompressorSpace) popcountBlock(b uintptr) uint32 {
	blockStart := s.regionStart.Add(b * compBlockBytes)
	byteAddr := s.mark.ByteAddressForRegion(blockStart)
	var count uint32
	for i := uintptr(0); i < compBytesPerBlock; i++ {
		count += uint32(bits.OnesCount8(byteAddr.Add(i).LoadUint8()))
	}
	return count
}

// ComputeForwardingAddresses builds the per-block cumulative live-word
// count, then (since Compact still needs to know each object's exact
// byte length to copy it) sorts the objects TraceObject recorded by
// address — the sizes drive the actual copy, the bitmap prefix sum drives
// where forwarding queries resolve to before Compact runs.
func (s *CompressorSpace) ComputeForwardingAddresses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	totalWords := uintptr(s.regionEnd.Sub(s.regionStart)) / compWordBytes
	numBlocks := (totalWords + compWordsPerBlock - 1) / compWordsPerBlock
	prefix := make([]uint32, numBlocks+1)
	var running uint32
	for b := uintptr(0); b < numBlocks; b++ {
		prefix[b] = running
		running += s.popcountBlock(b)
	}
	prefix[numBlocks] = running
	s.blockPrefix = prefix
	sort.Slice(s.liveObjects, func(i, j int) bool { return s.liveObjects[i].addr < s.liveObjects[j].addr })
	s.compactedEnd = s.regionStart.Add(uintptr(running) * compWordBytes)
}

// forwardAddress is the closed-form lookup: the block's cached prefix
// plus a popcount over the marked words between the block's start and
// addr.
func (s *CompressorSpace) forwardAddress(addr address.Address) address.Address {
	offset := uintptr(addr.Sub(s.regionStart))
	wordIndex := offset / compWordBytes
	blockIndex := wordIndex / compWordsPerBlock
	wordInBlock := wordIndex % compWordsPerBlock

	blockStart := s.regionStart.Add(blockIndex * compBlockBytes)
	byteAddr := s.mark.ByteAddressForRegion(blockStart)
	var within uint32
	fullBytes := wordInBlock / 8
	for i := uintptr(0); i < fullBytes; i++ {
		within += uint32(bits.OnesCount8(byteAddr.Add(i).LoadUint8()))
	}
	if rem := wordInBlock % 8; rem != 0 {
		b := byteAddr.Add(fullBytes).LoadUint8()
		within += uint32(bits.OnesCount8(b & ((1 << rem) - 1)))
	}

	liveWordsBefore := uintptr(s.blockPrefix[blockIndex]) + uintptr(within)
	return s.regionStart.Add(liveWordsBefore * compWordBytes)
}

func (s *CompressorSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockPrefix == nil {
		return obj, false
	}
	return address.FromAddressUnsafe(s.forwardAddress(obj.ToAddress())), true
}

// Compact copies every live object to its closed-form destination in
// address order, then resumes the bump cursor after the compacted
// region.
func (s *CompressorSpace) Compact() {
	s.mu.Lock()
	objs := append([]mcLiveObject(nil), s.liveObjects...)
	end := s.compactedEnd
	s.mu.Unlock()

	for _, lo := range objs {
		obj := address.FromAddressUnsafe(lo.addr)
		dest := s.forwardAddress(lo.addr)
		s.Model.CopyObject(obj, dest)
	}
	s.pr.SetCursor(uintptr(end))
}

// ForEachLiveObject calls fn once per object TraceObject recorded this
// cycle; see MarkCompactSpace.ForEachLiveObject for why a driver needs
// this for the reference-forwarding pass between ComputeForwardingAddresses
// and Compact.
func (s *CompressorSpace) ForEachLiveObject(fn func(address.ObjectReference)) {
	s.mu.Lock()
	objs := append([]mcLiveObject(nil), s.liveObjects...)
	s.mu.Unlock()
	for _, lo := range objs {
		fn(address.FromAddressUnsafe(lo.addr))
	}
}

func (s *CompressorSpace) Release() {
	s.mu.Lock()
	s.liveObjects = nil
	s.blockPrefix = nil
	s.mu.Unlock()
}

var _ sft.SFT = (*CompressorSpace)(nil)
