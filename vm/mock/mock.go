// Package mock is a minimal binding used by gcmm's own tests and by
// cmd/gcmmctl/cmd/gcmmshell's demo workloads, standing in for a real
// embedding runtime the way the teacher's testdata/testprogs stand in for
// a real live process. Objects are a fixed layout: an 8-byte size word,
// an 8-byte slot count, then that many pointer-sized reference slots, all
// initially null.
package mock

import (
	"sync"
	"sync/atomic"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/slot"
	"golang.org/x/gcmm/vm"
)

const headerBytes = 16

// ObjectSize returns the total footprint of an object with nSlots
// reference fields, the size AllocateObject expects the caller to have
// requested from Mutator.Alloc.
func ObjectSize(nSlots int) uintptr { return uintptr(headerBytes + 8*nSlots) }

// AllocateObject writes a fresh header for an object with nSlots
// reference slots (initially null) at addr and returns it as a live
// reference. Stands in for a compiler-emitted allocation sequence.
func AllocateObject(addr address.Address, nSlots int) address.ObjectReference {
	size := ObjectSize(nSlots)
	addr.StoreUint64(uint64(size))
	addr.Add(8).StoreUint64(uint64(nSlots))
	for i := 0; i < nSlots; i++ {
		addr.Add(uintptr(headerBytes + 8*i)).StoreUint64(0)
	}
	return address.FromAddressUnsafe(addr)
}

// SlotAt returns the slot holding obj's i'th reference field.
func SlotAt(obj address.ObjectReference, i int) slot.Simple {
	return slot.Simple{At: obj.ToAddress().Add(uintptr(headerBytes + 8*i))}
}

func slotCount(obj address.ObjectReference) int {
	return int(obj.ToAddress().Add(8).LoadUint64())
}

// ObjectModel implements vm.ObjectModel over the fixed mock layout: the
// size word doubles as both the live size and the size-when-copied,
// since the mock never shrinks or grows an object on copy.
type ObjectModel struct{}

func (ObjectModel) RefToAddress(obj address.ObjectReference) address.Address {
	return obj.ToAddress()
}

func (ObjectModel) RefToObjectStart(obj address.ObjectReference) address.Address {
	return obj.ToAddress()
}

func (ObjectModel) CurrentSize(obj address.ObjectReference) uintptr {
	return uintptr(obj.ToAddress().LoadUint64())
}

func (ObjectModel) BytesRequiredWhenCopied(obj address.ObjectReference) uintptr {
	return uintptr(obj.ToAddress().LoadUint64())
}

func (ObjectModel) CopyObject(obj address.ObjectReference, to address.Address) address.ObjectReference {
	size := uintptr(obj.ToAddress().LoadUint64())
	src := obj.ToAddress()
	for i := uintptr(0); i < size; i += 8 {
		to.Add(i).StoreUint64(src.Add(i).LoadUint64())
	}
	return address.FromAddressUnsafe(to)
}

// Binding implements vm.Scanning and vm.Collection together: ScanObject
// walks the fixed layout's reference slots, and a caller-managed root set
// (AddRoot/ClearRoots) stands in for a real binding's stack/register
// walk. Collection's stop/resume/spawn hooks just track state a test can
// assert on; BlockForGC and SpawnGCThread are no-ops beyond that, since
// the mock has no real mutator threads to coordinate.
type Binding struct {
	mu    sync.Mutex
	roots []slot.Simple

	Stopped atomic.Bool
	OOMSeen atomic.Bool
	OOMKind atomic.Int32
}

// AddRoot registers s as part of the fixed root set every
// ScanThreadRoots call reports.
func (b *Binding) AddRoot(s slot.Simple) {
	b.mu.Lock()
	b.roots = append(b.roots, s)
	b.mu.Unlock()
}

// ClearRoots empties the root set, e.g. between independent test
// scenarios sharing one Binding.
func (b *Binding) ClearRoots() {
	b.mu.Lock()
	b.roots = nil
	b.mu.Unlock()
}

func (Binding) ScanObject(obj address.ObjectReference, visitor vm.SlotVisitor) {
	n := slotCount(obj)
	for i := 0; i < n; i++ {
		visitor.VisitSlot(SlotAt(obj, i))
	}
}

func (b *Binding) ScanThreadRoots(tls vm.TLS, visitor vm.SlotVisitor) {
	b.mu.Lock()
	roots := append([]slot.Simple(nil), b.roots...)
	b.mu.Unlock()
	for _, s := range roots {
		visitor.VisitSlot(s)
	}
}

func (Binding) ScanVMSpecificRoots(vm.SlotVisitor) {}

func (b *Binding) StopAllMutators(vm.TLS) { b.Stopped.Store(true) }
func (b *Binding) ResumeMutators(vm.TLS)  { b.Stopped.Store(false) }
func (b *Binding) BlockForGC(vm.TLS)      {}

// SpawnGCThread runs the worker loop in a goroutine, the mock's stand-in
// for a native thread; gcmm only calls this when a harness explicitly
// opts into worker-thread mode (see MMTk.SpawnWorkers).
func (b *Binding) SpawnGCThread(tls vm.TLS, ordinal int, run func(vm.TLS)) {
	go run(tls)
}

func (b *Binding) OutOfMemory(tls vm.TLS, kind vm.ErrorKind) {
	b.OOMSeen.Store(true)
	b.OOMKind.Store(int32(kind))
}

var (
	_ vm.ObjectModel = ObjectModel{}
	_ vm.Scanning    = (*Binding)(nil)
	_ vm.Collection  = (*Binding)(nil)
)
