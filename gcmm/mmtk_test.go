package gcmm

import (
	"sync"
	"testing"
	"unsafe"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/plan"
	"golang.org/x/gcmm/scheduler"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/slot"
	"golang.org/x/gcmm/vm"
	"golang.org/x/gcmm/vm/mock"
)

// testTLS is the opaque thread handle these tests pass wherever the API
// asks which mutator or thread is calling.
const testTLS = vm.TLS(1)

// TestBuilderInitWiresPlanKind exercises Init across every plan kind a
// Builder can select, checking only heap-layout queries that never touch
// memory: constructing the spaces themselves must not require a single
// page to actually be committed, matching the package's own lazy-mapping
// invariant for the underlying Mmapper.
func TestBuilderInitWiresPlanKind(t *testing.T) {
	cases := []struct {
		name string
		want plan.Kind
	}{
		{"nogc", plan.KindNoGC},
		{"semispace", plan.KindSemiSpace},
		{"gencopy", plan.KindGenCopy},
		{"immix", plan.KindImmix},
		{"marksweep", plan.KindMarkSweep},
		{"markcompact", plan.KindMarkCompact},
		{"compressor", plan.KindMarkCompact},
		{"stickyimmix", plan.KindStickyImmix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder()
			if !b.SetOption("plan", tc.name) {
				t.Fatalf("SetOption(plan, %q) rejected", tc.name)
			}
			if !b.SetFixedHeapSize(64 << 20) {
				t.Fatal("SetFixedHeapSize rejected a positive size")
			}
			binding := &mock.Binding{}
			m, err := Init(b, mock.ObjectModel{}, binding, binding)
			if err != nil {
				t.Fatalf("Init: %v", err)
			}
			if got := m.plan.Kind(); got != tc.want {
				t.Fatalf("plan.Kind() = %v, want %v", got, tc.want)
			}
			if m.TotalBytes() == 0 {
				t.Fatal("TotalBytes reported zero for a 64MB heap")
			}
			if m.StartingHeapAddress().IsZero() {
				t.Fatal("StartingHeapAddress must never be the null sentinel")
			}
		})
	}
}

func TestInitRejectsUnknownPlanName(t *testing.T) {
	b := NewBuilder()
	if b.SetOption("plan", "not-a-real-plan") {
		t.Fatal("SetOption accepted an unknown plan name")
	}
}

// TestBindMutatorAssignsIncrementingIDsAndDestroyRemoves checks the
// bookkeeping BindMutator/DestroyMutator own, independent of any actual
// allocator traffic through the mutator.
func TestBindMutatorAssignsIncrementingIDsAndDestroyRemoves(t *testing.T) {
	b := NewBuilder()
	b.SetOption("plan", "nogc")
	b.SetFixedHeapSize(32 << 20)
	binding := &mock.Binding{}
	m, err := Init(b, mock.ObjectModel{}, binding, binding)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	mu1 := m.BindMutator(testTLS)
	mu2 := m.BindMutator(testTLS)
	if mu1.MutatorID == mu2.MutatorID {
		t.Fatalf("two mutators were bound the same ID %d", mu1.MutatorID)
	}
	if len(m.mutators) != 2 {
		t.Fatalf("len(mutators) = %d, want 2", len(m.mutators))
	}

	m.DestroyMutator(mu1)
	if len(m.mutators) != 1 {
		t.Fatalf("len(mutators) after DestroyMutator = %d, want 1", len(m.mutators))
	}
	if _, stillThere := m.mutators[mu1]; stillThere {
		t.Fatal("DestroyMutator left the retired mutator in the map")
	}
}

func TestCandidateQueuesAccumulateAcrossCalls(t *testing.T) {
	b := NewBuilder()
	b.SetOption("plan", "semispace")
	b.SetFixedHeapSize(32 << 20)
	binding := &mock.Binding{}
	m, err := Init(b, mock.ObjectModel{}, binding, binding)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	s1, s2 := slot.Simple{At: 0x1000}, slot.Simple{At: 0x1008}
	m.AddWeakCandidate(s1)
	m.AddSoftCandidate(s1)
	m.AddPhantomCandidate(s1)
	m.AddWeakCandidate(s2)

	if len(m.weakCandidates) != 2 {
		t.Fatalf("len(weakCandidates) = %d, want 2", len(m.weakCandidates))
	}
	if len(m.softCandidates) != 1 {
		t.Fatalf("len(softCandidates) = %d, want 1", len(m.softCandidates))
	}
	if len(m.phantomCandidates) != 1 {
		t.Fatalf("len(phantomCandidates) = %d, want 1", len(m.phantomCandidates))
	}
}

func TestEnqueueAndDrainModBuf(t *testing.T) {
	m := &MMTk{}
	obj1 := address.FromAddressUnsafe(address.FromUintptrUnsafe(0x2000))
	obj2 := address.FromAddressUnsafe(address.FromUintptrUnsafe(0x3000))

	m.Enqueue(obj1)
	m.Enqueue(obj2)

	drained := m.drainModBuf()
	if len(drained) != 2 || drained[0] != obj1 || drained[1] != obj2 {
		t.Fatalf("drainModBuf = %v, want [%v %v]", drained, obj1, obj2)
	}
	if len(m.modBuf) != 0 {
		t.Fatal("drainModBuf must reset the buffer")
	}
	if again := m.drainModBuf(); len(again) != 0 {
		t.Fatalf("draining an empty mod-buffer returned %v", again)
	}
}

// fakeSFT is a minimal sft.SFT double for exercising processCandidates,
// traceVisitor and forwardSlotVisitor in isolation, without routing
// through a built heap's real spaces (and therefore without ever needing
// a byte of memory actually committed).
type fakeSFT struct {
	live     map[address.ObjectReference]bool
	forward  map[address.ObjectReference]address.ObjectReference
	traceTo  map[address.ObjectReference]address.ObjectReference
}

func (f *fakeSFT) Name() string                          { return "fake" }
func (f *fakeSFT) IsLive(obj address.ObjectReference) bool { return f.live[obj] }
func (f *fakeSFT) IsMovable() bool                        { return true }
func (f *fakeSFT) IsInSpace(address.Address) bool         { return true }
func (f *fakeSFT) InitializeObjectMetadata(address.ObjectReference, bool) {}

func (f *fakeSFT) GetForwardedObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	to, ok := f.forward[obj]
	return to, ok
}

func (f *fakeSFT) TraceObject(obj address.ObjectReference) address.ObjectReference {
	if to, ok := f.traceTo[obj]; ok {
		return to
	}
	return obj
}

var _ sft.SFT = (*fakeSFT)(nil)

// backing hands out real, addressable Go memory for a slot under test:
// processCandidates and the visitor types dereference the slots they are
// given, so — unlike the synthetic object references used elsewhere —
// these must be real readable/writable words.
func backingSlot() (slot.Simple, *uint64) {
	w := new(uint64)
	return slot.Simple{At: address.FromPointer(unsafe.Pointer(w))}, w
}

func TestProcessCandidatesKeepsLiveClearsDeadForwardsMoved(t *testing.T) {
	sftMap := sft.NewMap(1 << 10)
	m := &MMTk{sftMap: sftMap}

	live := address.ObjectReference(0x8000)
	dead := address.ObjectReference(0x9000)
	moved := address.ObjectReference(0xA000)
	movedTo := address.ObjectReference(0xB000)

	fake := &fakeSFT{
		live:    map[address.ObjectReference]bool{live: true, dead: false, moved: true},
		forward: map[address.ObjectReference]address.ObjectReference{moved: movedTo},
	}
	// Route every chunk these synthetic references fall in to fake: Set
	// claims whole chunks, and all three addresses above share chunk 0
	// at this map's granularity.
	sftMap.Set(0, 1<<30, fake)

	liveSlot, liveWord := backingSlot()
	*liveWord = uint64(live)
	deadSlot, deadWord := backingSlot()
	*deadWord = uint64(dead)
	movedSlot, movedWord := backingSlot()
	*movedWord = uint64(moved)

	survivors := m.processCandidates([]slot.Slot{liveSlot, deadSlot, movedSlot})

	if len(survivors) != 2 {
		t.Fatalf("len(survivors) = %d, want 2", len(survivors))
	}
	if got, ok := liveSlot.Load(); !ok || got != live {
		t.Fatalf("live slot = (%v, %v), want (%v, true) unchanged", got, ok, live)
	}
	if got, ok := deadSlot.Load(); ok {
		t.Fatalf("dead slot = (%v, %v), want ok=false after clearing", got, ok)
	}
	if got, ok := movedSlot.Load(); !ok || got != movedTo {
		t.Fatalf("moved slot = (%v, %v), want (%v, true)", got, ok, movedTo)
	}
}

func TestTraceVisitorSchedulesEachObjectOnlyOnce(t *testing.T) {
	sftMap := sft.NewMap(1 << 10)
	fake := &fakeSFT{traceTo: map[address.ObjectReference]address.ObjectReference{}}
	sftMap.Set(0, 1<<30, fake)

	m := &MMTk{sftMap: sftMap}
	sc := scheduler.New(1)
	tv := &traceVisitor{mmtk: m, sc: sc, mu: &sync.Mutex{}, visited: map[address.ObjectReference]bool{}}

	obj := address.ObjectReference(0x4000)
	s1, w1 := backingSlot()
	*w1 = uint64(obj)
	s2, w2 := backingSlot()
	*w2 = uint64(obj)

	tv.VisitSlot(s1)
	tv.VisitSlot(s2)

	if len(tv.visited) != 1 {
		t.Fatalf("object was scheduled %d times, want 1", len(tv.visited))
	}
}

// TestHandleUserCollectionRequestRespectsIgnoreSystemGC checks that a
// Builder configured with ignore_system_gc=true makes
// HandleUserCollectionRequest a no-op, rather than running a cycle that
// would stop/resume the binding's mutators.
func TestHandleUserCollectionRequestRespectsIgnoreSystemGC(t *testing.T) {
	b := NewBuilder()
	b.SetOption("plan", "nogc")
	b.SetOption("ignore_system_gc", "true")
	b.SetFixedHeapSize(32 << 20)
	binding := &mock.Binding{}
	m, err := Init(b, mock.ObjectModel{}, binding, binding)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	m.HandleUserCollectionRequest(testTLS)

	if binding.Stopped.Load() {
		t.Fatal("HandleUserCollectionRequest ran a cycle despite ignore_system_gc")
	}
}

// TestNoReferenceTypesDropsQueuedCandidates checks that once
// no_reference_types is configured, AddWeakCandidate/AddSoftCandidate/
// AddPhantomCandidate stop accumulating and a running cycle discards
// whatever was queued before the option took effect.
func TestNoReferenceTypesDropsQueuedCandidates(t *testing.T) {
	b := NewBuilder()
	b.SetOption("plan", "nogc")
	b.SetOption("no_reference_types", "true")
	b.SetFixedHeapSize(32 << 20)
	binding := &mock.Binding{}
	m, err := Init(b, mock.ObjectModel{}, binding, binding)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	s := slot.Simple{At: 0x1000}
	m.AddWeakCandidate(s)
	m.AddSoftCandidate(s)
	m.AddPhantomCandidate(s)

	if len(m.weakCandidates) != 0 || len(m.softCandidates) != 0 || len(m.phantomCandidates) != 0 {
		t.Fatal("candidate queues accepted entries despite no_reference_types")
	}
}

func TestForwardSlotVisitorRewritesOnlyForwardedSlots(t *testing.T) {
	moved := address.ObjectReference(0xC000)
	movedTo := address.ObjectReference(0xD000)
	stays := address.ObjectReference(0xE000)

	fv := &forwardSlotVisitor{resolve: func(obj address.ObjectReference) (address.ObjectReference, bool) {
		if obj == moved {
			return movedTo, true
		}
		return obj, false
	}}

	movedSlot, movedWord := backingSlot()
	*movedWord = uint64(moved)
	staysSlot, staysWord := backingSlot()
	*staysWord = uint64(stays)

	fv.VisitSlot(movedSlot)
	fv.VisitSlot(staysSlot)

	if got, _ := movedSlot.Load(); got != movedTo {
		t.Fatalf("moved slot = %v, want %v", got, movedTo)
	}
	if got, _ := staysSlot.Load(); got != stays {
		t.Fatalf("unforwarded slot was rewritten to %v, want unchanged %v", got, stays)
	}
}
