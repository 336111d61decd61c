package space

import (
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/sidemetadata"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/vmmap"
)

const msBlockBytes = 64 * 1024

// MarkSweepBlockBytes is msBlockBytes exported for callers (gcmm's heap
// builder) that must construct the pageresource.BlockPageResource a
// MarkSweepSpace is handed at construction with a matching block size.
const MarkSweepBlockBytes = msBlockBytes

// msSizeClasses is a MiMalloc-style geometric size-class table: cell
// sizes grow by roughly a quarter each step so that internal
// fragmentation within a class stays bounded, the same shape (if not the
// exact bin count) as the source's 48-bin table.
var msSizeClasses = buildMSSizeClasses()

func buildMSSizeClasses() []uintptr {
	var classes []uintptr
	for size := uintptr(16); size <= msBlockBytes/4; {
		classes = append(classes, size)
		step := size / 4
		if step < 16 {
			step = 16
		}
		size += step
	}
	return classes
}

func msSizeClassOf(size uintptr) int {
	for i, c := range msSizeClasses {
		if size <= c {
			return i
		}
	}
	return len(msSizeClasses) - 1
}

func msCellSize(class int) uintptr { return msSizeClasses[class] }

type msBlock struct {
	start    address.Address
	class    int
	freeList []address.Address
}

// MarkSweepSpace is a block-based native mark-sweep policy: each
// BlockPageResource block is carved into fixed-size cells for one size
// class, free cells form an intrusive-equivalent free list (a plain Go
// slice, since nothing outside this package walks it), and allocation
// pops from the mutator's currently bound block.
type MarkSweepSpace struct {
	Common

	pr   *pageresource.BlockPageResource
	mark *sidemetadata.Spec

	mu            sync.Mutex
	blocksByClass map[int][]*msBlock
	allBlocks     []*msBlock
}

func NewMarkSweepSpace(name string, descriptor vmmap.SpaceDescriptor, vm vmmap.VMMap, sftMap *sft.Map, pr *pageresource.BlockPageResource) *MarkSweepSpace {
	return &MarkSweepSpace{
		Common:        Common{SpaceName: name, Descriptor: descriptor, SFT: sftMap, VMMap: vm},
		pr:            pr,
		mark:          sidemetadata.NewSpec(name+".mark", 1, 3, sidemetadata.PerPolicy),
		blocksByClass: make(map[int][]*msBlock),
	}
}

// SizeClassOf is the function a FreeListAllocator binds as its
// SizeClassOf when paired with this space.
func (s *MarkSweepSpace) SizeClassOf(size uintptr) int { return msSizeClassOf(size) }

func (s *MarkSweepSpace) newBlock(class int, workerOrdinal int) *msBlock {
	addr, err := s.pr.AllocBlock(workerOrdinal)
	if err != nil {
		return nil
	}
	start := address.FromUintptrUnsafe(addr)
	s.Register(s, start, msBlockBytes)
	b := &msBlock{start: start, class: class}
	cell := msCellSize(class)
	for off := uintptr(0); off+cell <= msBlockBytes; off += cell {
		b.freeList = append(b.freeList, b.start.Add(off))
	}
	s.mu.Lock()
	s.allBlocks = append(s.allBlocks, b)
	s.mu.Unlock()
	return b
}

// PopCell implements alloc.CellSource.
func (s *MarkSweepSpace) PopCell(class int) (address.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks := s.blocksByClass[class]
	for len(blocks) > 0 {
		b := blocks[len(blocks)-1]
		if len(b.freeList) == 0 {
			blocks = blocks[:len(blocks)-1]
			continue
		}
		cell := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		s.blocksByClass[class] = blocks
		return cell, true
	}
	s.blocksByClass[class] = blocks
	return address.ZeroAddress, false
}

// RefillBlock implements alloc.CellSource: acquires a fresh block for
// class. Worker-to-block affinity within BlockPageResource's own local
// pools is not modelled at this layer; every request goes through
// worker ordinal 0, matching Mutator.MutatorID not yet being threaded
// through this space (the scheduler assigns it at a higher layer).
func (s *MarkSweepSpace) RefillBlock(class int) bool {
	b := s.newBlock(class, 0)
	if b == nil {
		return false
	}
	s.mu.Lock()
	s.blocksByClass[class] = append(s.blocksByClass[class], b)
	s.mu.Unlock()
	return true
}

func (s *MarkSweepSpace) IsMovable() bool { return false }

func (s *MarkSweepSpace) IsLive(obj address.ObjectReference) bool {
	return s.mark.LoadAtomic(obj.ToAddress()) != 0
}

func (s *MarkSweepSpace) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	return obj, false
}

func (s *MarkSweepSpace) InitializeObjectMetadata(obj address.ObjectReference, allocated bool) {
	s.mark.StoreAtomic(obj.ToAddress(), 1)
}

func (s *MarkSweepSpace) TraceObject(obj address.ObjectReference) address.ObjectReference {
	s.mark.CompareExchange(obj.ToAddress(), 0, 1)
	return obj
}

// Prepare clears every block's mark bits ahead of a new trace.
func (s *MarkSweepSpace) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.allBlocks {
		s.mark.BzeroMetadata(b.start, msBlockBytes)
	}
}

// Release eagerly sweeps every block: cells whose mark bit never got set
// this cycle rejoin the free list, and blocks with no surviving cells are
// returned to the page resource whole.
func (s *MarkSweepSpace) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.allBlocks[:0]
	s.blocksByClass = make(map[int][]*msBlock)
	for _, b := range s.allBlocks {
		cell := msCellSize(b.class)
		var free []address.Address
		anyLive := false
		for off := uintptr(0); off+cell <= msBlockBytes; off += cell {
			addr := b.start.Add(off)
			if s.mark.LoadAtomic(addr) != 0 {
				anyLive = true
			} else {
				free = append(free, addr)
			}
		}
		if !anyLive {
			s.pr.ReleaseBlock(0, uintptr(b.start))
			continue
		}
		b.freeList = free
		live = append(live, b)
		s.blocksByClass[b.class] = append(s.blocksByClass[b.class], b)
	}
	s.allBlocks = live
}

var _ sft.SFT = (*MarkSweepSpace)(nil)
