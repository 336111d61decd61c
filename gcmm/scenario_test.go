package gcmm

import (
	"testing"

	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/vm/mock"
)

// These scenario tests each drive the public Init -> BindMutator -> Alloc
// -> collect pipeline end to end through the mock binding, one per
// collection strategy. Unlike the unit tests above, which exercise a
// single method in isolation, these catch mistakes that only show up once
// a whole cycle — Prepare, trace, Release, and (for the moving plans) a
// second or third cycle reusing the same addresses — actually runs.

func newScenarioHeap(t *testing.T, planName string, heapBytes uintptr) (*MMTk, *mock.Binding, *mutator.Mutator) {
	t.Helper()
	b := NewBuilder()
	if !b.SetOption("plan", planName) {
		t.Fatalf("SetOption(plan, %q) rejected", planName)
	}
	if !b.SetFixedHeapSize(heapBytes) {
		t.Fatal("SetFixedHeapSize rejected a positive size")
	}
	binding := &mock.Binding{}
	m, err := Init(b, mock.ObjectModel{}, binding, binding)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	mu := m.BindMutator(testTLS)
	return m, binding, mu
}

// TestScenarioNoGCSanity checks the allocation path in isolation: under
// NoGC every object lands in the immortal space and running a cycle
// (nothing ever actually schedules one, but nothing stops a binding from
// calling HandleUserCollectionRequest either) must not disturb it.
func TestScenarioNoGCSanity(t *testing.T) {
	m, binding, mu := newScenarioHeap(t, "nogc", 32<<20)
	model := mock.ObjectModel{}

	const nSlots = 3
	size := mock.ObjectSize(nSlots)
	addr := m.Alloc(testTLS, mu, size, 8, 0, alloc.Default)
	ref := mock.AllocateObject(addr, nSlots)
	m.PostAlloc(ref, size, alloc.Default)

	rootSlot, _ := backingSlot()
	binding.AddRoot(rootSlot)
	rootSlot.Store(ref)

	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	got, ok := rootSlot.Load()
	if !ok || got != ref {
		t.Fatalf("root = (%v, %v), want (%v, true) — immortal objects never move", got, ok, ref)
	}
	if model.CurrentSize(got) != size {
		t.Fatalf("CurrentSize(%v) = %d, want %d", got, model.CurrentSize(got), size)
	}
}

// TestScenarioSemiSpaceRoundTrip reproduces the exact address-reuse
// pattern a missing forwarding-state scrub corrupts: A bounces between
// the two hemispheres for two cycles, vacating hemisphere 0 at A's
// original address; a decoy object with a distinct signature is then
// forwarded into that same address on cycle 2, and cycle 3 retires
// hemisphere 0 a second time. A Release that never clears its forwarding
// state would leave cycle 1's stale "Forwarded -> (A's cycle-1
// destination)" bits there, so cycle 3 would hand back A's old image
// instead of genuinely forwarding the decoy.
func TestScenarioSemiSpaceRoundTrip(t *testing.T) {
	m, binding, mu := newScenarioHeap(t, "semispace", 32<<20)
	model := mock.ObjectModel{}

	const aSlots = 3
	aSize := mock.ObjectSize(aSlots)
	aAddr := m.Alloc(testTLS, mu, aSize, 8, 0, alloc.Default)
	aRef := mock.AllocateObject(aAddr, aSlots)
	m.PostAlloc(aRef, aSize, alloc.Default)

	// decoySlot is rooted first, so on every cycle it is visited (and
	// forwarded) before aSlot.
	decoySlot, _ := backingSlot()
	aSlot, _ := backingSlot()
	binding.AddRoot(decoySlot)
	binding.AddRoot(aSlot)
	aSlot.Store(aRef)

	// Cycle 1: hemisphere 0 (A's only home so far) retires and A forwards
	// into hemisphere 1, vacating the exact address a stale scrub bug
	// would leave behind.
	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	if got, ok := aSlot.Load(); !ok || model.CurrentSize(got) != aSize {
		t.Fatalf("after cycle 1: root = (%v, %v), want a live %d-byte object", got, ok, aSize)
	}

	const decoySlots = 0
	decoySize := mock.ObjectSize(decoySlots)
	decoyAddr := m.Alloc(testTLS, mu, decoySize, 8, 0, alloc.Default)
	decoyRef := mock.AllocateObject(decoyAddr, decoySlots)
	m.PostAlloc(decoyRef, decoySize, alloc.Default)
	decoySlot.Store(decoyRef)

	// Cycle 2: hemisphere 1 retires. decoySlot is visited first, so the
	// decoy is the first thing forwarded into the freshly reset
	// hemisphere 0 — landing at the very address A occupied before cycle
	// 1 ever ran.
	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	// Cycle 3: hemisphere 0 retires again. With forwarding state
	// correctly scrubbed after cycle 1's Release, the decoy's address
	// reads NotForwarded and is genuinely re-forwarded this cycle. A
	// buggy Release would instead have left a stale Forwarded entry
	// there from cycle 1, short-circuiting straight back to A's old
	// 40-byte image.
	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	got, ok := decoySlot.Load()
	if !ok {
		t.Fatal("decoy root went null after cycle 3")
	}
	if size := model.CurrentSize(got); size != decoySize {
		t.Fatalf("decoy resolved to a %d-byte object, want %d — stale forwarding state from an earlier cycle leaked through", size, decoySize)
	}
}

// TestScenarioLOSRetention checks that a rooted large object survives
// repeated collections at a stable address: LargeObjectSpace never moves
// what it holds, only sweeps what the trace never reached.
func TestScenarioLOSRetention(t *testing.T) {
	m, binding, mu := newScenarioHeap(t, "nogc", 32<<20)

	size := mock.ObjectSize(1)
	addr := m.Alloc(testTLS, mu, size, 8, 0, alloc.Los)
	ref := mock.AllocateObject(addr, 1)
	m.PostAlloc(ref, size, alloc.Los)

	rootSlot, _ := backingSlot()
	binding.AddRoot(rootSlot)
	rootSlot.Store(ref)

	m.collect(testTLS)
	m.plan.RebindMutator(mu)
	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	got, ok := rootSlot.Load()
	if !ok || got != ref {
		t.Fatalf("root = (%v, %v), want (%v, true) — a LOS object must never move", got, ok, ref)
	}
	if !m.IsLiveObject(ref) {
		t.Fatal("rooted LOS object reports dead after two collections")
	}
}

// TestScenarioEphemeronClosure checks AddEphemeronCandidate's two
// outcomes under an Immix plan: an unreachable key drops its value, and a
// reachable key keeps its value alive.
func TestScenarioEphemeronClosure(t *testing.T) {
	t.Run("key unreachable clears value", func(t *testing.T) {
		m, _, mu := newScenarioHeap(t, "immix", 32<<20)

		keySize := mock.ObjectSize(0)
		keyAddr := m.Alloc(testTLS, mu, keySize, 8, 0, alloc.Default)
		keyRef := mock.AllocateObject(keyAddr, 0)
		m.PostAlloc(keyRef, keySize, alloc.Default)

		valSize := mock.ObjectSize(0)
		valAddr := m.Alloc(testTLS, mu, valSize, 8, 0, alloc.Default)
		valRef := mock.AllocateObject(valAddr, 0)
		m.PostAlloc(valRef, valSize, alloc.Default)

		keySlot, _ := backingSlot()
		valSlot, _ := backingSlot()
		keySlot.Store(keyRef)
		valSlot.Store(valRef)
		m.AddEphemeronCandidate(keySlot, valSlot)
		// Neither key nor value is rooted anywhere else.

		m.collect(testTLS)
		m.plan.RebindMutator(mu)

		if m.IsLiveObject(keyRef) {
			t.Fatal("unrooted ephemeron key survived")
		}
		if m.IsLiveObject(valRef) {
			t.Fatal("value survived an ephemeron whose key is unreachable")
		}
	})

	t.Run("key reachable keeps value alive", func(t *testing.T) {
		m, binding, mu := newScenarioHeap(t, "immix", 32<<20)

		keySize := mock.ObjectSize(0)
		keyAddr := m.Alloc(testTLS, mu, keySize, 8, 0, alloc.Default)
		keyRef := mock.AllocateObject(keyAddr, 0)
		m.PostAlloc(keyRef, keySize, alloc.Default)

		valSize := mock.ObjectSize(0)
		valAddr := m.Alloc(testTLS, mu, valSize, 8, 0, alloc.Default)
		valRef := mock.AllocateObject(valAddr, 0)
		m.PostAlloc(valRef, valSize, alloc.Default)

		keySlot, _ := backingSlot()
		valSlot, _ := backingSlot()
		keySlot.Store(keyRef)
		valSlot.Store(valRef)
		m.AddEphemeronCandidate(keySlot, valSlot)

		keyRoot, _ := backingSlot()
		binding.AddRoot(keyRoot)
		keyRoot.Store(keyRef)

		m.collect(testTLS)
		m.plan.RebindMutator(mu)

		if !m.IsLiveObject(keyRef) {
			t.Fatal("rooted ephemeron key did not survive")
		}
		if !m.IsLiveObject(valRef) {
			t.Fatal("value did not survive an ephemeron whose key is reachable")
		}
	})
}

// TestScenarioGenerationalBarrier checks that StickyImmixPlan's write
// barrier is the only thing keeping a mature object's young referent
// alive across a nursery-only cycle, and that it keeps working across a
// second write — the regression case for a logged bit that is set but
// never cleared.
func TestScenarioGenerationalBarrier(t *testing.T) {
	m, binding, mu := newScenarioHeap(t, "stickyimmix", 32<<20)

	mSize := mock.ObjectSize(1)
	mAddr := m.Alloc(testTLS, mu, mSize, 8, 0, alloc.Default)
	mRef := mock.AllocateObject(mAddr, 1)
	m.PostAlloc(mRef, mSize, alloc.Default)

	mRoot, _ := backingSlot()
	binding.AddRoot(mRoot)
	mRoot.Store(mRef)

	// Every cycle evacuates the nursery regardless of nursery-only vs
	// full-heap, so one cycle promotes M into the mature ImmixSpace.
	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	promoted, ok := mRoot.Load()
	if !ok || promoted == mRef {
		t.Fatalf("M did not promote out of the nursery: root = (%v, %v)", promoted, ok)
	}
	mRef = promoted

	// M is no longer rooted anywhere: the only way a later cycle learns
	// it still points at something in the nursery is the write barrier's
	// mod-buffer entry, not root scanning.
	binding.ClearRoots()

	ySize := mock.ObjectSize(2)
	yAddr := m.Alloc(testTLS, mu, ySize, 8, 0, alloc.Default)
	yRef := mock.AllocateObject(yAddr, 2)
	m.PostAlloc(yRef, ySize, alloc.Default)
	mu.WriteReference(mRef, mock.SlotAt(mRef, 0), yRef)

	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	gotY, ok := mock.SlotAt(mRef, 0).Load()
	if !ok {
		t.Fatal("M's slot went null after the first nursery-only collection")
	}
	if gotY == yRef {
		t.Fatal("Y was never forwarded: the logged write never got M rescanned")
	}

	// Second write: M -> Z, replacing Y. If the logged bit were never
	// cleared after draining M the first time, FetchOr here would find it
	// already set, skip re-enqueuing M, and this cycle would never
	// rescan M at all.
	zSize := mock.ObjectSize(0)
	zAddr := m.Alloc(testTLS, mu, zSize, 8, 0, alloc.Default)
	zRef := mock.AllocateObject(zAddr, 0)
	m.PostAlloc(zRef, zSize, alloc.Default)
	mu.WriteReference(mRef, mock.SlotAt(mRef, 0), zRef)

	m.collect(testTLS)
	m.plan.RebindMutator(mu)

	gotZ, ok := mock.SlotAt(mRef, 0).Load()
	if !ok {
		t.Fatal("M's slot went null after the second nursery-only collection")
	}
	if gotZ == zRef {
		t.Fatal("Z was never forwarded: M's logged bit was never cleared after the first drain, so the second write was never rescanned")
	}
}

// TestScenarioMarkCompact checks both CompactingSpace backends — the
// exact forwarding-table MarkCompactSpace and the bitmap-popcount
// Compressor — survive two consecutive compactions with their payload
// intact, across whichever address shift each one's own bookkeeping
// produces.
func TestScenarioMarkCompact(t *testing.T) {
	for _, planName := range []string{"markcompact", "compressor"} {
		t.Run(planName, func(t *testing.T) {
			m, binding, mu := newScenarioHeap(t, planName, 32<<20)
			model := mock.ObjectModel{}

			const aSlots = 2
			aSize := mock.ObjectSize(aSlots)
			aAddr := m.Alloc(testTLS, mu, aSize, 8, 0, alloc.Default)
			aRef := mock.AllocateObject(aAddr, aSlots)
			m.PostAlloc(aRef, aSize, alloc.Default)

			// Unrooted garbage ahead of A gives the compactor real work:
			// reclaiming it is what shifts A's address down.
			garbageSize := mock.ObjectSize(0)
			garbageAddr := m.Alloc(testTLS, mu, garbageSize, 8, 0, alloc.Default)
			mock.AllocateObject(garbageAddr, 0)

			aSlot, _ := backingSlot()
			binding.AddRoot(aSlot)
			aSlot.Store(aRef)

			m.collect(testTLS)
			m.plan.RebindMutator(mu)

			got, ok := aSlot.Load()
			if !ok {
				t.Fatal("A's root went null after the first compaction")
			}
			if size := model.CurrentSize(got); size != aSize {
				t.Fatalf("A's payload corrupted by compaction: size = %d, want %d", size, aSize)
			}

			// A second compaction, with no fresh garbage ahead of A this
			// time, catches a forwarding table or bitmap left stale from
			// the first one.
			m.collect(testTLS)
			m.plan.RebindMutator(mu)

			got2, ok := aSlot.Load()
			if !ok {
				t.Fatal("A's root went null after the second compaction")
			}
			if size := model.CurrentSize(got2); size != aSize {
				t.Fatalf("A's payload corrupted on the second compaction: size = %d, want %d", size, aSize)
			}
		})
	}
}
