// Package mmapper tracks the mapping state of chunks of virtual address
// space and brings them to the requested state (Mapped, Quarantined,
// Protected) via the OS. It mirrors the per-chunk MapState machine used
// throughout the heap: PageResource, VMMap and SideMetadata all route their
// "make this range usable" requests through one of these.
package mmapper

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// MapState is the per-chunk state machine. Transitions move forward
// (Unmapped -> Quarantined -> Mapped -> Protected) except that Protected
// and Mapped can move back to each other, and Release resets chunks to
// Unmapped; the heap's running spaces never call Release.
type MapState int32

const (
	Unmapped MapState = iota
	Quarantined
	Mapped
	Protected
)

func (s MapState) String() string {
	switch s {
	case Unmapped:
		return "unmapped"
	case Quarantined:
		return "quarantined"
	case Mapped:
		return "mapped"
	case Protected:
		return "protected"
	default:
		return "invalid"
	}
}

// LogBytesInChunk is log2 of the chunk size (4 MiB), the granularity at
// which the mmapper and the SFT agree on ownership.
const LogBytesInChunk = 22

// BytesInChunk is the chunk size in bytes.
const BytesInChunk = uintptr(1) << LogBytesInChunk

var log = logrus.WithField("component", "mmapper")

// The following indirections exist so tests can exercise the state machine
// without making real mmap/mprotect/munmap syscalls against arbitrary
// addresses, mirroring the teacher's own var mapFile = func(...) {...}
// seam in internal/core/process.go.
var (
	doMmapFixed         = mmapFixed
	doMmapNoReserve     = mmapNoReserve
	doMprotectNone      = mprotectNone
	doMprotectReadWrite = mprotectReadWrite
	doMunmap            = munmap
)

// Mmapper tracks MapState for every chunk in [0, addressSpaceBytes) using a
// two-level table: the high-order bits of a chunk index select a slab
// (lazily allocated on first write into the region it covers), and the
// low-order bits index within the slab. The slab size is chosen as the
// (rounded) geometric mean of the addressable range and the chunk size, so
// that neither table dimension dominates.
type Mmapper struct {
	logAddressSpaceBytes uint
	logSlabChunks        uint // log2 of chunks-per-slab
	logTopEntries         uint // log2 of number of slabs

	top []atomic.Pointer[slab]

	slowLock sync.Mutex
}

type slab struct {
	states []int32 // MapState, accessed atomically
}

// New creates an Mmapper covering 2^logAddressSpaceBytes bytes of virtual
// address space, i.e. logAddressSpaceBytes-LogBytesInChunk chunks.
func New(logAddressSpaceBytes uint) *Mmapper {
	logChunks := logAddressSpaceBytes - LogBytesInChunk
	// geometric mean: half of the total log2(chunks) goes to the slab,
	// half to the top-level table.
	logSlabChunks := (logChunks + 1) / 2
	if logSlabChunks == 0 {
		logSlabChunks = 1
	}
	logTopEntries := logChunks - logSlabChunks
	m := &Mmapper{
		logAddressSpaceBytes: logAddressSpaceBytes,
		logSlabChunks:        logSlabChunks,
		logTopEntries:        logTopEntries,
	}
	m.top = make([]atomic.Pointer[slab], uintptr(1)<<logTopEntries)
	return m
}

func (m *Mmapper) chunkIndex(addr uintptr) uintptr {
	return addr >> LogBytesInChunk
}

func (m *Mmapper) split(chunkIdx uintptr) (top, within uintptr) {
	mask := (uintptr(1) << m.logSlabChunks) - 1
	return chunkIdx >> m.logSlabChunks, chunkIdx & mask
}

func (m *Mmapper) slabFor(top uintptr) *slab {
	if s := m.top[top].Load(); s != nil {
		return s
	}
	ns := &slab{states: make([]int32, uintptr(1)<<m.logSlabChunks)}
	if m.top[top].CompareAndSwap(nil, ns) {
		return ns
	}
	// Another goroutine raced us; use whichever slab won.
	return m.top[top].Load()
}

func (m *Mmapper) stateSlot(addr uintptr) *int32 {
	top, within := m.split(m.chunkIndex(addr))
	return &m.slabFor(top).states[within]
}

// State returns the current MapState of the chunk containing addr.
func (m *Mmapper) State(addr uintptr) MapState {
	top, within := m.split(m.chunkIndex(addr))
	s := m.top[top].Load()
	if s == nil {
		return Unmapped
	}
	return MapState(atomic.LoadInt32(&s.states[within]))
}

func chunksSpanning(start, bytes uintptr) (first, count uintptr) {
	first = start &^ (BytesInChunk - 1)
	end := (start + bytes + BytesInChunk - 1) &^ (BytesInChunk - 1)
	return first, (end - first) / BytesInChunk
}

// EnsureMapped idempotently brings every chunk in [start, start+bytes) to
// Mapped. Adjacent chunks that share the same source state are coalesced
// into a single mmap call so that one syscall covers as many chunks as
// possible.
func (m *Mmapper) EnsureMapped(start uintptr, bytes uintptr) error {
	return m.transition(start, bytes, Mapped)
}

// QuarantineAddressRange reserves [start, start+bytes) (PROT_NONE) without
// committing memory, preventing the OS from handing the range to unrelated
// allocations. Chunks already Mapped or Protected are left alone.
func (m *Mmapper) QuarantineAddressRange(start uintptr, bytes uintptr) error {
	return m.transition(start, bytes, Quarantined)
}

// Protect moves every Mapped chunk in the range to Protected (PROT_NONE),
// for debug builds that want to catch accesses to freed/fromspace memory.
func (m *Mmapper) Protect(start uintptr, bytes uintptr) error {
	first, count := chunksSpanning(start, bytes)
	for i := uintptr(0); i < count; {
		runStart := first + i*BytesInChunk
		slot := m.stateSlot(runStart)
		cur := MapState(atomic.LoadInt32(slot))
		if cur != Mapped {
			i++
			continue
		}
		runLen := uintptr(1)
		for i+runLen < count {
			nextSlot := m.stateSlot(runStart + runLen*BytesInChunk)
			if MapState(atomic.LoadInt32(nextSlot)) != Mapped {
				break
			}
			runLen++
		}
		if err := doMprotectNone(runStart, runLen*BytesInChunk); err != nil {
			return fmt.Errorf("mmapper: protect [%x,%x): %w", runStart, runStart+runLen*BytesInChunk, err)
		}
		for j := uintptr(0); j < runLen; j++ {
			atomic.StoreInt32(m.stateSlot(runStart+j*BytesInChunk), int32(Protected))
		}
		i += runLen
	}
	return nil
}

// transition coalesces adjacent chunks not yet at target (for Mapped, that
// includes Protected chunks) into batches and
// issues one OS call per batch. The OS call itself is serialised by slowLock
// so that concurrent first-touches of the same (or adjacent) chunks never
// race each other into the kernel; re-checking state after acquiring the
// lock turns a racing second caller's work into a no-op.
func (m *Mmapper) transition(start, bytes uintptr, target MapState) error {
	first, count := chunksSpanning(start, bytes)
	for i := uintptr(0); i < count; {
		runStart := first + i*BytesInChunk
		slot := m.stateSlot(runStart)
		cur := MapState(atomic.LoadInt32(slot))
		if cur == target || (cur > target && target != Mapped) {
			i++
			continue
		}
		runLen := uintptr(1)
		for i+runLen < count {
			nextAddr := runStart + runLen*BytesInChunk
			nextSlot := m.stateSlot(nextAddr)
			if MapState(atomic.LoadInt32(nextSlot)) != cur {
				break
			}
			runLen++
		}
		if err := m.transitionRunLocked(runStart, runLen, cur, target); err != nil {
			return err
		}
		i += runLen
	}
	return nil
}

func (m *Mmapper) transitionRunLocked(runStart, runLen uintptr, cur, target MapState) error {
	m.slowLock.Lock()
	defer m.slowLock.Unlock()
	// Re-check under the lock: another goroutine may have already moved
	// (some of) this run to the target state while we waited.
	if now := MapState(atomic.LoadInt32(m.stateSlot(runStart))); now == target || (now > target && target != Mapped) {
		return nil
	}
	if err := m.doTransition(runStart, runLen*BytesInChunk, cur, target); err != nil {
		return err
	}
	for j := uintptr(0); j < runLen; j++ {
		atomic.StoreInt32(m.stateSlot(runStart+j*BytesInChunk), int32(target))
	}
	return nil
}

// Release returns [start, start+bytes) to the OS entirely and resets the
// covered chunks to Unmapped. The heap's running spaces never call this;
// it exists for process teardown and for tests that want a clean slate
// between cases.
func (m *Mmapper) Release(start, bytes uintptr) error {
	first, count := chunksSpanning(start, bytes)
	if err := doMunmap(first, count*BytesInChunk); err != nil {
		return err
	}
	for i := uintptr(0); i < count; i++ {
		atomic.StoreInt32(m.stateSlot(first+i*BytesInChunk), int32(Unmapped))
	}
	return nil
}

func (m *Mmapper) doTransition(start, bytes uintptr, from, to MapState) error {
	log.WithFields(logrus.Fields{"start": fmt.Sprintf("%#x", start), "bytes": bytes, "from": from, "to": to}).Debug("mmapper transition")
	switch to {
	case Quarantined:
		if from == Unmapped {
			return doMmapNoReserve(start, bytes)
		}
	case Mapped:
		if from == Unmapped || from == Quarantined {
			return doMmapFixed(start, bytes)
		}
		if from == Protected {
			return doMprotectReadWrite(start, bytes)
		}
	}
	return nil
}
