package gcmm

import (
	"context"
	"sync"

	"golang.org/x/gcmm/address"
	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/barrier"
	"golang.org/x/gcmm/mmapper"
	"golang.org/x/gcmm/mutator"
	"golang.org/x/gcmm/pageresource"
	"golang.org/x/gcmm/plan"
	"golang.org/x/gcmm/scheduler"
	"golang.org/x/gcmm/sft"
	"golang.org/x/gcmm/slot"
	"golang.org/x/gcmm/space"
	"golang.org/x/gcmm/vm"
	"golang.org/x/gcmm/vmmap"
)

// Region descriptors. Every Init call reserves maxSpacesPerHeap statically
// sized regions up front (see heapLayout); which of them end up backing a
// real space depends on the configured plan.Kind.
const (
	descImmortal vmmap.SpaceDescriptor = iota + 1
	descLos
	descSpaceA
	descSpaceB
)

// MMTk is a built heap: the Plan a Builder's configuration selected,
// wired to a VMMap/Mmapper/SFT table it owns, plus the mutator and
// collection-cycle machinery a binding drives through it. It is the
// root package's sole exported, stateful type; everything else in gcmm
// is either a value (Builder) or re-exported from vm.
type MMTk struct {
	model vm.ObjectModel
	scan  vm.Scanning
	coll  vm.Collection

	mmapper *mmapper.Mmapper
	vmMap   *vmmap.Map64
	sftMap  *sft.Map
	layout  heapLayout

	plan      plan.Plan
	scheduler *scheduler.Scheduler

	ignoreSystemGC   bool
	noReferenceTypes bool

	mu                  sync.Mutex
	nextMutatorID       int
	mutators            map[*mutator.Mutator]vm.TLS
	weakCandidates      []slot.Slot
	softCandidates      []slot.Slot
	phantomCandidates   []slot.Slot
	ephemeronCandidates []ephemeronCandidate
	gcCount             int

	modBufMu sync.Mutex
	modBuf   []address.ObjectReference

	gcMu sync.Mutex

	workersOnce        sync.Once
	workersSpawnedFlag bool
	cycleMu            sync.Mutex
	cycleCond          *sync.Cond
	cycleGen           int
	cycleWG            sync.WaitGroup
}

// Init builds a heap from b's accumulated configuration and wires it to a
// binding's object model, scanning, and collection traits. It is the Go
// port's counterpart to the source's mmtk_init: everything that follows
// (BindMutator, Alloc, the collection cycle) is a method of the MMTk it
// returns.
func Init(b *Builder, model vm.ObjectModel, scan vm.Scanning, coll vm.Collection) (*MMTk, error) {
	kind, err := b.cfg.KindOf()
	if err != nil {
		return nil, err
	}

	layout := computeHeapLayout(b.cfg.HeapSizeMB)
	m := &MMTk{
		model:    model,
		scan:     scan,
		coll:     coll,
		mmapper:  mmapper.New(layout.logAddressSpaceBits),
		vmMap:    vmmap.NewMap64(layout.logRegionExtent),
		sftMap:   sft.NewMap(layout.maxChunks),
		layout:   layout,
		mutators: make(map[*mutator.Mutator]vm.TLS),

		ignoreSystemGC:   b.ignoreSystemGC,
		noReferenceTypes: b.noReferenceTypes,
	}
	m.cycleCond = sync.NewCond(&m.cycleMu)

	base := plan.NewBasePlan(layout.totalPages, b.cfg.StressFactor, m.vmMap.CumulativeCommittedPages)

	immortal := space.NewImmortalSpace("immortal", descImmortal, m.vmMap, m.sftMap, m.bindMonotone(descImmortal))
	los := space.NewLargeObjectSpace("los", descLos, m.vmMap, m.sftMap, m.bindFreeList(descLos))

	switch kind {
	case plan.KindNoGC:
		m.plan = plan.NewNoGCPlan(base, immortal, los)

	case plan.KindSemiSpace:
		fwd := space.NewForwardingWord()
		a := space.NewCopySpace("copyA", descSpaceA, m.vmMap, m.sftMap, m.bindMonotone(descSpaceA), fwd, m.model)
		bSpace := space.NewCopySpace("copyB", descSpaceB, m.vmMap, m.sftMap, m.bindMonotone(descSpaceB), fwd, m.model)
		m.plan = plan.NewSemiSpacePlan(base, immortal, los, a, bSpace)

	case plan.KindGenCopy:
		fwd := space.NewForwardingWord()
		nursery := space.NewCopySpace("nursery", descSpaceA, m.vmMap, m.sftMap, m.bindMonotone(descSpaceA), fwd, m.model)
		matureA := space.NewCopySpace("matureA", descSpaceB, m.vmMap, m.sftMap, m.bindMonotone(descSpaceB), fwd, m.model)
		matureB := space.NewCopySpace("matureB", descSpaceB+1, m.vmMap, m.sftMap, m.bindMonotone(descSpaceB+1), fwd, m.model)
		m.plan = plan.NewGenCopyPlan(base, immortal, los, nursery, matureA, matureB, m)

	case plan.KindImmix:
		immix := space.NewImmixSpace("immix", descSpaceA, m.vmMap, m.sftMap, m.bindBlock(descSpaceA, space.ImmixBlockBytes), m.model)
		m.plan = plan.NewImmixPlan(base, immortal, los, immix)

	case plan.KindMarkSweep:
		ms := space.NewMarkSweepSpace("marksweep", descSpaceA, m.vmMap, m.sftMap, m.bindBlock(descSpaceA, space.MarkSweepBlockBytes))
		m.plan = plan.NewMarkSweepPlan(base, immortal, los, ms)

	case plan.KindMarkCompact:
		regionStart := m.regionBase(int(descSpaceA) - 1)
		var cs plan.CompactingSpace
		if b.cfg.UsesCompressor() {
			cs = space.NewCompressorSpace("compressor", descSpaceA, m.vmMap, m.sftMap, m.bindMonotone(descSpaceA), regionStart, m.layout.regionExtent, m.model)
		} else {
			cs = space.NewMarkCompactSpace("markcompact", descSpaceA, m.vmMap, m.sftMap, m.bindMonotone(descSpaceA), regionStart, m.layout.regionExtent, m.model)
		}
		m.plan = plan.NewMarkCompactPlan(base, immortal, los, cs)

	case plan.KindStickyImmix:
		nursery := space.NewCopySpace("nursery", descSpaceA, m.vmMap, m.sftMap, m.bindMonotone(descSpaceA), space.NewForwardingWord(), m.model)
		mature := space.NewImmixSpace("mature", descSpaceB, m.vmMap, m.sftMap, m.bindBlock(descSpaceB, space.ImmixBlockBytes), m.model)
		m.plan = plan.NewStickyImmixPlan(base, immortal, los, nursery, mature, m)
	}

	m.scheduler = scheduler.New(b.threads)
	return m, nil
}

func (m *MMTk) regionBase(idx int) address.Address {
	return m.layout.base.Add(uintptr(idx) * m.layout.regionExtent)
}

func (m *MMTk) bindMonotone(desc vmmap.SpaceDescriptor) *pageresource.MonotonePageResource {
	base := m.regionBase(int(desc) - 1)
	m.vmMap.BindRegion(desc, uintptr(base))
	pr := pageresource.NewContiguous(uintptr(base), m.layout.regionExtent, m.vmMap, desc)
	pr.SetMmapper(m.mmapper)
	return pr
}

func (m *MMTk) bindFreeList(desc vmmap.SpaceDescriptor) *pageresource.FreeListPageResource {
	base := m.regionBase(int(desc) - 1)
	m.vmMap.BindRegion(desc, uintptr(base))
	pr := pageresource.NewFreeList(uintptr(base), m.vmMap, desc)
	pr.SetMmapper(m.mmapper)
	return pr
}

func (m *MMTk) bindBlock(desc vmmap.SpaceDescriptor, blockBytes uintptr) *pageresource.BlockPageResource {
	base := m.regionBase(int(desc) - 1)
	m.vmMap.BindRegion(desc, uintptr(base))
	pr := pageresource.NewBlock(uintptr(base), m.layout.regionExtent, blockBytes, m.vmMap, desc)
	pr.SetMmapper(m.mmapper)
	return pr
}

// BindMutator creates a Mutator for a newly arrived application thread,
// installing the allocators the active Plan's AllocatorMapping names.
func (m *MMTk) BindMutator(tls vm.TLS) *mutator.Mutator {
	m.mu.Lock()
	id := m.nextMutatorID
	m.nextMutatorID++
	mapping := m.plan.GetAllocatorMapping()
	mu := mutator.New(id, mapping, barrier.NoBarrier{})
	m.plan.BindMutator(mu)
	m.mutators[mu] = tls
	m.mu.Unlock()
	return mu
}

// DestroyMutator retires mu, e.g. when its application thread exits.
func (m *MMTk) DestroyMutator(mu *mutator.Mutator) {
	m.mu.Lock()
	delete(m.mutators, mu)
	m.mu.Unlock()
}

// Alloc services an allocation request of size bytes for semantic,
// triggering (and blocking for) a collection cycle if the fast/slow
// allocator path reports failure, and reporting HeapOutOfMemory if the
// heap is still full immediately after that cycle.
func (m *MMTk) Alloc(tls vm.TLS, mu *mutator.Mutator, size, align uintptr, offset int, semantic alloc.Semantic) address.Address {
	r := mu.Alloc(semantic, size, align, offset)
	if r.IsZero() {
		m.collect(tls)
		m.mu.Lock()
		m.plan.RebindMutator(mu)
		m.mu.Unlock()
		r = mu.Alloc(semantic, size, align, offset)
		if r.IsZero() {
			m.coll.OutOfMemory(tls, vm.HeapOutOfMemory)
			return address.ZeroAddress
		}
		return r
	}
	if m.plan.CollectionRequired(false) {
		m.collect(tls)
		m.mu.Lock()
		m.plan.RebindMutator(mu)
		m.mu.Unlock()
	}
	return r
}

// PostAlloc finishes initializing obj's GC metadata once the binding has
// finished writing its fields, dispatching to whichever space owns it.
func (m *MMTk) PostAlloc(obj address.ObjectReference, size uintptr, semantic alloc.Semantic) {
	m.sftMap.Get(obj.ToAddress()).InitializeObjectMetadata(obj, true)
}

// HandleUserCollectionRequest services a binding's explicit
// System.gc-equivalent call: marks the next cycle user-triggered (for
// plans that track it) and runs one immediately, unless the builder was
// configured with ignore_system_gc, in which case it is a no-op.
func (m *MMTk) HandleUserCollectionRequest(tls vm.TLS) {
	if m.ignoreSystemGC {
		return
	}
	if ut, ok := m.plan.(interface{ RequestUserCollection() }); ok {
		ut.RequestUserCollection()
	}
	m.collect(tls)
}

// AddWeakCandidate, AddSoftCandidate and AddPhantomCandidate register a
// reference slot whose referent's liveness should be resolved by the
// next cycle's corresponding closure bucket, rather than treated as a
// strong root.
func (m *MMTk) AddWeakCandidate(s slot.Slot) {
	if m.noReferenceTypes {
		return
	}
	m.mu.Lock()
	m.weakCandidates = append(m.weakCandidates, s)
	m.mu.Unlock()
}

func (m *MMTk) AddSoftCandidate(s slot.Slot) {
	if m.noReferenceTypes {
		return
	}
	m.mu.Lock()
	m.softCandidates = append(m.softCandidates, s)
	m.mu.Unlock()
}

func (m *MMTk) AddPhantomCandidate(s slot.Slot) {
	if m.noReferenceTypes {
		return
	}
	m.mu.Lock()
	m.phantomCandidates = append(m.phantomCandidates, s)
	m.mu.Unlock()
}

// ephemeronCandidate is a (key, value) pair registered by AddEphemeronCandidate:
// value is reachable this cycle only if key turns out to be reachable from
// elsewhere, which may itself only become true after resolving some other
// ephemeron's value — hence the sentinel-driven fixpoint loop in collect.
type ephemeronCandidate struct {
	key, value slot.Slot
}

// AddEphemeronCandidate registers a binding-discovered ephemeron: value is
// kept alive this cycle exactly when key is independently reachable, and
// is cleared (along with key) otherwise. Resolution runs as part of the
// Closure bucket, iterating until a full pass finds no newly-live key.
func (m *MMTk) AddEphemeronCandidate(key, value slot.Slot) {
	if m.noReferenceTypes {
		return
	}
	m.mu.Lock()
	m.ephemeronCandidates = append(m.ephemeronCandidates, ephemeronCandidate{key: key, value: value})
	m.mu.Unlock()
}

// Enqueue implements barrier.ModBufferSink: a generational plan's
// ObjectBarrier calls this the first time a mature object is logged in a
// cycle, so the next nursery-only collection rescans it as an extra root.
func (m *MMTk) Enqueue(obj address.ObjectReference) {
	m.modBufMu.Lock()
	m.modBuf = append(m.modBuf, obj)
	m.modBufMu.Unlock()
}

func (m *MMTk) drainModBuf() []address.ObjectReference {
	m.modBufMu.Lock()
	buf := m.modBuf
	m.modBuf = nil
	m.modBufMu.Unlock()
	return buf
}

// Queries.

func (m *MMTk) UsedBytes() uintptr  { return uintptr(m.plan.PagesUsed()) * vmmap.BytesInPage }
func (m *MMTk) TotalBytes() uintptr { return uintptr(m.layout.totalPages) * vmmap.BytesInPage }
func (m *MMTk) FreeBytes() uintptr {
	total, used := m.TotalBytes(), m.UsedBytes()
	if used >= total {
		return 0
	}
	return total - used
}

func (m *MMTk) IsLiveObject(obj address.ObjectReference) bool { return m.sftMap.IsLive(obj) }

func (m *MMTk) IsInMMTkSpaces(addr address.Address) bool { return m.sftMap.IsAssigned(addr) }

func (m *MMTk) IsMappedAddress(addr address.Address) bool {
	return m.mmapper.State(uintptr(addr)) == mmapper.Mapped
}

func (m *MMTk) StartingHeapAddress() address.Address { return m.layout.base }

func (m *MMTk) LastHeapAddress() address.Address {
	return m.layout.base.Add(uintptr(maxSpacesPerHeap) * m.layout.regionExtent)
}

func (m *MMTk) WillNeverMove(obj address.ObjectReference) bool {
	return !m.sftMap.IsMovable(obj.ToAddress())
}

// SpawnWorkers asks the binding to spawn one native thread per scheduler
// worker slot via vm.Collection.SpawnGCThread, each looping on
// StartWorker for the life of the process. Safe to call once; later
// calls are no-ops. If never called, collect drives the scheduler with
// its own goroutines instead (see RunCycle).
func (m *MMTk) SpawnWorkers(tls vm.TLS) {
	m.workersOnce.Do(func() {
		n := m.scheduler.NumWorkers()
		for i := 0; i < n; i++ {
			ordinal := i
			m.coll.SpawnGCThread(tls, ordinal, func(workerTLS vm.TLS) {
				m.StartWorker(workerTLS, ordinal)
			})
		}
		m.mu.Lock()
		m.workersSpawnedFlag = true
		m.mu.Unlock()
	})
}

// StartWorker drains ordinal's share of every cycle from here on,
// blocking between cycles. A binding that spawned its own GC thread via
// vm.Collection.SpawnGCThread calls this once from that thread; it never
// returns while the process is alive.
func (m *MMTk) StartWorker(tls vm.TLS, ordinal int) {
	seen := 0
	for {
		m.cycleMu.Lock()
		for m.cycleGen == seen {
			m.cycleCond.Wait()
		}
		gen := m.cycleGen
		m.cycleMu.Unlock()

		m.scheduler.RunWorker(context.Background(), ordinal)
		m.cycleWG.Done()
		seen = gen
	}
}

// collect runs exactly one stop-the-world cycle: Prepare, a parallel
// trace closure over strong roots (and, for generational plans, logged
// mature objects), soft/weak/phantom reference resolution, and — for a
// mark-compact plan — forwarding-address computation, root/in-object
// reference forwarding, and compaction, before Release and resuming
// mutators.
func (m *MMTk) collect(tls vm.TLS) {
	m.gcMu.Lock()
	defer m.gcMu.Unlock()

	m.coll.StopAllMutators(tls)

	m.mu.Lock()
	for mu := range m.mutators {
		mu.Flush()
	}
	m.gcCount++
	full := m.gcCount%8 == 0
	if sfh, ok := m.plan.(interface{ SetFullHeap(bool) }); ok {
		sfh.SetFullHeap(full)
	}
	m.plan.Prepare()
	mutators := make(map[*mutator.Mutator]vm.TLS, len(m.mutators))
	for mu, mtls := range m.mutators {
		mutators[mu] = mtls
	}
	weak, soft, phantom := m.weakCandidates, m.softCandidates, m.phantomCandidates
	ephemerons := m.ephemeronCandidates
	m.weakCandidates, m.softCandidates, m.phantomCandidates = nil, nil, nil
	m.ephemeronCandidates = nil
	m.mu.Unlock()
	if m.noReferenceTypes {
		ephemerons = nil
	}

	sc := m.scheduler
	visited := make(map[address.ObjectReference]bool)
	var visitedMu sync.Mutex
	tv := &traceVisitor{mmtk: m, sc: sc, mu: &visitedMu, visited: visited}

	// Ephemeron resolution runs inside the Closure bucket itself, using
	// the scheduler's sentinel to repeat: resolving one ephemeron's value
	// may trace new objects that make another ephemeron's key reachable,
	// so a single pass isn't enough (spec.md §8's Ephemeron closure
	// scenario). closureEnd gates SoftRefClosure from opening — and so,
	// transitively, the rest of the pipeline — until every candidate is
	// either resolved live or has survived a full pass with no progress,
	// at which point its value is dropped as unreachable.
	var unresolvedMu sync.Mutex
	unresolved := ephemerons
	sc.SetClosureEnd(func() bool {
		unresolvedMu.Lock()
		defer unresolvedMu.Unlock()
		return len(unresolved) > 0
	})
	var resolveEphemerons scheduler.Func
	resolveEphemerons = func(w *scheduler.Worker) {
		unresolvedMu.Lock()
		pending := unresolved
		unresolvedMu.Unlock()

		var stillUnresolved []ephemeronCandidate
		progressed := false
		for _, ec := range pending {
			keyRef, ok := ec.key.Load()
			if ok {
				entry := m.sftMap.Get(keyRef.ToAddress())
				if entry.IsLive(keyRef) {
					if newKeyRef, fwd := entry.GetForwardedObject(keyRef); fwd {
						ec.key.Store(newKeyRef)
					}
					if valRef, ok := ec.value.Load(); ok {
						newValRef := m.sftMap.TraceObject(valRef)
						ec.value.Store(newValRef)
						tv.scheduleScan(newValRef)
					}
					progressed = true
					continue
				}
			}
			stillUnresolved = append(stillUnresolved, ec)
		}

		switch {
		case len(stillUnresolved) == 0:
			unresolvedMu.Lock()
			unresolved = nil
			unresolvedMu.Unlock()
		case progressed:
			unresolvedMu.Lock()
			unresolved = stillUnresolved
			unresolvedMu.Unlock()
			sc.SetSentinel(scheduler.Closure, resolveEphemerons)
		default:
			for _, ec := range stillUnresolved {
				ec.key.Store(address.NullObjectReference)
				ec.value.Store(address.NullObjectReference)
			}
			unresolvedMu.Lock()
			unresolved = nil
			unresolvedMu.Unlock()
		}
	}
	// Registered as a sentinel, not ordinary work: it must run only once
	// the whole strong-root trace closure below has fully drained, never
	// interleaved with still-pending ScanObject packets it would then
	// judge candidates' keys against prematurely.
	sc.SetSentinel(scheduler.Closure, resolveEphemerons)

	for _, mtls := range mutators {
		m.scan.ScanThreadRoots(mtls, tv)
	}
	m.scan.ScanVMSpecificRoots(tv)
	logged := m.drainModBuf()
	for _, obj := range logged {
		tv.scheduleScan(obj)
	}
	// Clear each drained object's write-barrier logged bit now that its
	// mod-buffer entry has been rescanned: otherwise FetchOr in the
	// barrier would find the bit still set from this cycle and silently
	// drop every later write from that object, so a subsequent
	// nursery-only cycle would never learn it needs rescanning again.
	if cl, ok := m.plan.(interface {
		ClearLogged(address.ObjectReference)
	}); ok {
		for _, obj := range logged {
			cl.ClearLogged(obj)
		}
	}

	// noReferenceTypes tells the core the binding never registers weak/
	// soft/phantom candidates in the first place; the buckets are still
	// opened (§3's bucket order is unconditional) but do no work, and any
	// candidates queued before the option took effect are dropped rather
	// than carried forward as leaks.
	if m.noReferenceTypes {
		m.mu.Lock()
		m.weakCandidates, m.softCandidates, m.phantomCandidates = nil, nil, nil
		m.ephemeronCandidates = nil
		m.mu.Unlock()
	} else {
		sc.AddWork(scheduler.SoftRefClosure, scheduler.Func(func(w *scheduler.Worker) {
			survivors := m.processCandidates(soft)
			m.mu.Lock()
			m.softCandidates = append(m.softCandidates, survivors...)
			m.mu.Unlock()
		}))
		sc.AddWork(scheduler.WeakRefClosure, scheduler.Func(func(w *scheduler.Worker) {
			survivors := m.processCandidates(weak)
			m.mu.Lock()
			m.weakCandidates = append(m.weakCandidates, survivors...)
			m.mu.Unlock()
		}))
		sc.AddWork(scheduler.PhantomRefClosure, scheduler.Func(func(w *scheduler.Worker) {
			survivors := m.processCandidates(phantom)
			m.mu.Lock()
			m.phantomCandidates = append(m.phantomCandidates, survivors...)
			m.mu.Unlock()
		}))
	}

	if mcp, ok := m.plan.(*plan.MarkCompactPlan); ok {
		sc.AddWork(scheduler.VMRefClosure, scheduler.Func(func(w *scheduler.Worker) {
			mcp.Space.ComputeForwardingAddresses()
			fv := &forwardSlotVisitor{resolve: mcp.Space.GetForwardedObject}
			for _, mtls := range mutators {
				m.scan.ScanThreadRoots(mtls, fv)
			}
			m.scan.ScanVMSpecificRoots(fv)
			mcp.Space.ForEachLiveObject(func(obj address.ObjectReference) {
				m.scan.ScanObject(obj, fv)
			})
			mcp.Space.Compact()
		}))
	}

	if m.workersSpawned() {
		m.cycleMu.Lock()
		m.cycleGen++
		m.cycleWG.Add(m.scheduler.NumWorkers())
		m.cycleCond.Broadcast()
		m.cycleMu.Unlock()
		m.scheduler.StartCycle()
		m.cycleWG.Wait()
	} else {
		_ = sc.RunCycle(context.Background())
	}

	m.mu.Lock()
	m.plan.Release()
	m.mu.Unlock()

	m.coll.ResumeMutators(tls)
}

func (m *MMTk) workersSpawned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workersSpawnedFlag
}

func (m *MMTk) processCandidates(candidates []slot.Slot) []slot.Slot {
	var survivors []slot.Slot
	for _, s := range candidates {
		ref, ok := s.Load()
		if !ok {
			continue
		}
		entry := m.sftMap.Get(ref.ToAddress())
		if entry.IsLive(ref) {
			if newRef, forwarded := entry.GetForwardedObject(ref); forwarded {
				s.Store(newRef)
			}
			survivors = append(survivors, s)
		} else {
			s.Store(address.NullObjectReference)
		}
	}
	return survivors
}

// traceVisitor implements vm.SlotVisitor for the strong-reference trace
// closure: every slot it visits is traced through the SFT table (which
// may forward the referent), written back, and — the first time the
// resulting reference is seen this cycle — scheduled as a Closure work
// packet that scans its own fields the same way.
type traceVisitor struct {
	mmtk    *MMTk
	sc      *scheduler.Scheduler
	mu      *sync.Mutex
	visited map[address.ObjectReference]bool
}

func (tv *traceVisitor) VisitSlot(s slot.Slot) {
	ref, ok := s.Load()
	if !ok {
		return
	}
	newRef := tv.mmtk.sftMap.TraceObject(ref)
	s.Store(newRef)
	tv.scheduleScan(newRef)
}

func (tv *traceVisitor) scheduleScan(obj address.ObjectReference) {
	tv.mu.Lock()
	if tv.visited[obj] {
		tv.mu.Unlock()
		return
	}
	tv.visited[obj] = true
	tv.mu.Unlock()
	tv.sc.AddWork(scheduler.Closure, scheduler.Func(func(w *scheduler.Worker) {
		tv.mmtk.scan.ScanObject(obj, tv)
	}))
}

// forwardSlotVisitor redirects every slot it visits to its forwarded
// destination, without scheduling any further tracing — used for the
// mark-compact root/in-object reference fixup pass that runs after
// ComputeForwardingAddresses but before Compact moves any bytes.
type forwardSlotVisitor struct {
	resolve func(address.ObjectReference) (address.ObjectReference, bool)
}

func (v *forwardSlotVisitor) VisitSlot(s slot.Slot) {
	ref, ok := s.Load()
	if !ok {
		return
	}
	if newRef, forwarded := v.resolve(ref); forwarded {
		s.Store(newRef)
	}
}
