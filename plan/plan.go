// Package plan composes spaces into the fixed set of supported collection
// strategies: NoGC, SemiSpace, GenCopy, Immix, MarkCompact/Compressor, and
// StickyImmix. A Plan owns the spaces for its strategy, tells each Mutator
// which allocator to bind for each allocation semantic, and is driven
// through one GC cycle via Prepare/Release by whatever schedules the
// collection's work packets.
package plan

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"golang.org/x/gcmm/alloc"
	"golang.org/x/gcmm/mutator"
)

var log = logrus.WithField("component", "plan")

// Kind names which collection strategy a Plan implements, the fixed enum
// the concrete plan is chosen from at build time.
type Kind int

const (
	KindNoGC Kind = iota
	KindSemiSpace
	KindGenCopy
	KindImmix
	KindMarkSweep
	KindMarkCompact
	KindStickyImmix
)

func (k Kind) String() string {
	switch k {
	case KindNoGC:
		return "nogc"
	case KindSemiSpace:
		return "semispace"
	case KindGenCopy:
		return "gencopy"
	case KindImmix:
		return "immix"
	case KindMarkSweep:
		return "marksweep"
	case KindMarkCompact:
		return "markcompact"
	case KindStickyImmix:
		return "stickyimmix"
	default:
		return "unknown"
	}
}

// GcStatus tracks where in a cycle the collector currently is, mirroring
// the three-state machine the source's CommonPlan.gc_status drives.
type GcStatus int

const (
	NotInGC GcStatus = iota
	GcPrepare
	GcProper
)

// Plan is the contract every collection strategy satisfies. Whatever
// drives the GC work-packet graph (today: direct calls from gcmm/scheduler
// callers; tomorrow: the scheduler's Prepare/Release buckets) only needs
// this surface, never a concrete plan type.
type Plan interface {
	Kind() Kind
	Prepare()
	Release()
	GetAllocatorMapping() alloc.AllocatorMapping
	CollectionRequired(spaceFull bool) bool
	PagesUsed() int
	PagesReserved() int

	// BindMutator installs every allocator this plan's AllocatorMapping
	// names into m, called once when a new mutator joins the heap.
	BindMutator(m *mutator.Mutator)
	// RebindMutator re-points a mutator's allocators at the plan's current
	// spaces, called after Release for plans (SemiSpace, GenCopy,
	// StickyImmix) whose active space identity changes across a cycle; a
	// no-op rebind to the same space for plans it does not change for.
	RebindMutator(m *mutator.Mutator)
}

// BasePlan is the control-state every Plan embeds: GC-cycle status, the
// user/stress collection triggers, and the page-budget accounting
// CollectionRequired consults. It carries no spaces of its own (that is
// CommonPlan's job) so a plan that wants only this much state (none do,
// in this port, but the split mirrors the source's Plan/CommonPlan
// separation) could embed it alone.
type BasePlan struct {
	mu     sync.Mutex
	status GcStatus

	TotalPages int // set once at build time from the configured heap size

	userTriggered      atomic.Bool
	emergency          atomic.Bool
	lastStressPages    atomic.Int64
	stressFactor       int64 // 0 disables stress-test GC
	cumulativeCommitted func() int64
}

// NewBasePlan creates control state for a heap of totalPages pages.
// cumulativeCommitted, if non-nil, is polled by the stress-test trigger;
// it is normally vmmap.VMMap's AddToCumulativeCommittedPages counter.
func NewBasePlan(totalPages int, stressFactor int64, cumulativeCommitted func() int64) BasePlan {
	return BasePlan{TotalPages: totalPages, stressFactor: stressFactor, cumulativeCommitted: cumulativeCommitted}
}

// SetStatus transitions the GC status, logging cycle start/end the way
// the source's set_gc_status does via its Stats start_gc/end_gc calls.
func (b *BasePlan) SetStatus(s GcStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == NotInGC && s != NotInGC {
		log.Info("gc cycle started")
	}
	b.status = s
	if s == NotInGC {
		log.Info("gc cycle ended")
	}
}

func (b *BasePlan) Status() GcStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *BasePlan) GcInProgress() bool { return b.Status() != NotInGC }

// RequestUserCollection records that a mutator explicitly asked for a GC
// (e.g. via a binding's System.gc-equivalent entry point).
func (b *BasePlan) RequestUserCollection() { b.userTriggered.Store(true) }

func (b *BasePlan) IsUserTriggered() bool { return b.userTriggered.Load() }

func (b *BasePlan) ResetUserTriggered() { b.userTriggered.Store(false) }

func (b *BasePlan) SetEmergency(v bool) { b.emergency.Store(v) }

func (b *BasePlan) IsEmergency() bool { return b.emergency.Load() }

// stressTestRequired reimplements the source's stress_test_gc_required:
// a GC is forced whenever the VMMap's cumulative committed-page counter
// has advanced by more than stressFactor pages since the last check.
func (b *BasePlan) stressTestRequired() bool {
	if b.stressFactor <= 0 || b.cumulativeCommitted == nil {
		return false
	}
	pages := b.cumulativeCommitted()
	last := b.lastStressPages.Load()
	if pages-last > b.stressFactor {
		b.lastStressPages.Store(pages)
		return true
	}
	return false
}

// CollectionRequired is the default policy every concrete plan's
// CollectionRequired delegates to: trigger on an outright allocation
// failure (spaceFull), the stress-test interval, or the heap reservation
// exceeding its budget.
func (b *BasePlan) CollectionRequired(spaceFull bool, pagesReserved int) bool {
	return spaceFull || b.stressTestRequired() || pagesReserved > b.TotalPages
}
