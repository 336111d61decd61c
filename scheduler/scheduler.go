package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Scheduler distributes Work packets across a fixed pool of worker
// goroutines, draining a pipeline of Stage buckets in order. A bucket
// opens only once every earlier bucket is both active and drained and
// every worker has parked — the moment at which no worker can possibly
// be mid-push into an earlier bucket, so advancing the pipeline is safe.
type Scheduler struct {
	buckets [numStages]*bucket
	workers []*Worker
	mon     *monitor

	mu         sync.Mutex
	closureEnd func() bool

	// cycles counts finished cycles, so every parked worker (not only the
	// one that observed the end) can tell its cycle is over.
	cycles atomic.Uint64
}

// New builds a Scheduler with numWorkers goroutine slots. Workers are
// not started until RunCycle is called.
func New(numWorkers int) *Scheduler {
	s := &Scheduler{}
	for st := Stage(0); st < numStages; st++ {
		s.buckets[st] = newBucket(st == Unconstrained)
	}
	s.mon = newMonitor(numWorkers)
	s.workers = make([]*Worker, numWorkers)
	for i := range s.workers {
		s.workers[i] = &Worker{Ordinal: i, sched: s}
	}
	s.wireOpenConditions()
	return s
}

// wireOpenConditions sets every stage after Prepare to open once the
// fixed prefix of stages before it (in pipeline order) is drained.
// Prepare itself is activated explicitly by StartCycle, not by a
// condition, matching the source treating it as the "first STW stage".
func (s *Scheduler) wireOpenConditions() {
	opened := []Stage{Unconstrained, Prepare}
	for _, st := range stageOrder[2:] {
		prefix := append([]Stage(nil), opened...)
		stage := st
		s.buckets[stage].setOpenCondition(func(sc *Scheduler) bool {
			if !sc.stagesDrained(prefix) {
				return false
			}
			if stage == SoftRefClosure {
				// Ephemeron-style handlers can re-open Closure with more
				// discovered work; don't leave the closure family until
				// that callback says there is nothing left to add.
				if cb := sc.getClosureEnd(); cb != nil && cb() {
					return false
				}
			}
			return true
		})
		opened = append(opened, stage)
	}
}

func (s *Scheduler) stagesDrained(stages []Stage) bool {
	for _, st := range stages {
		if !s.buckets[st].isDrained() {
			return false
		}
	}
	return true
}

// SetClosureEnd registers the ephemeron re-opening hook consulted before
// the Closure family of buckets is left behind.
func (s *Scheduler) SetClosureEnd(f func() bool) {
	s.mu.Lock()
	s.closureEnd = f
	s.mu.Unlock()
}

func (s *Scheduler) getClosureEnd() func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closureEnd
}

// AddWork queues a single packet into the given stage's bucket and wakes
// one parked worker if the bucket is currently open.
func (s *Scheduler) AddWork(stage Stage, w Work) {
	b := s.buckets[stage]
	b.add(w)
	if b.isActivated() {
		s.mon.notifyOne()
	}
}

// BulkAdd queues many packets at once and wakes every parked worker if
// the bucket is open, since more than one may now have something to do.
func (s *Scheduler) BulkAdd(stage Stage, ws []Work) {
	if len(ws) == 0 {
		return
	}
	b := s.buckets[stage]
	b.bulkAdd(ws)
	if b.isActivated() {
		s.mon.notifyAll()
	}
}

// SetSentinel arranges for w to be requeued into stage's bucket the next
// time that bucket (and everything before it) drains — the mechanism
// ephemeron/finalizer processing uses to run its closure repeatedly.
func (s *Scheduler) SetSentinel(stage Stage, w Work) {
	s.buckets[stage].setSentinel(w)
}

// StartCycle activates the Prepare bucket and wakes every worker,
// beginning a stop-the-world cycle. Callers should have already queued
// any Unconstrained/Prepare work (mutator stop-and-scan packets, the
// global Prepare packet) before calling this.
func (s *Scheduler) StartCycle() {
	s.buckets[Prepare].activate()
	s.mon.notifyAll()
}

func (s *Scheduler) pollBuckets() (Work, bool) {
	for _, st := range stageOrder {
		if work, ok, _ := s.buckets[st].poll(); ok {
			return work, true
		}
	}
	return nil, false
}

func (s *Scheduler) updateBuckets() bool {
	opened := false
	for _, st := range stageOrder {
		if st == Unconstrained {
			continue
		}
		if s.buckets[st].update(s) {
			opened = true
		}
	}
	return opened
}

func (s *Scheduler) allBucketsEmpty() bool {
	for _, st := range stageOrder {
		if !s.buckets[st].isEmpty() {
			return false
		}
	}
	for _, w := range s.workers {
		if !w.local.isEmpty() {
			return false
		}
	}
	return true
}

func (s *Scheduler) deactivateAllExceptUnconstrained() {
	for _, st := range stageOrder {
		if st == Unconstrained {
			continue
		}
		s.buckets[st].deactivate()
	}
}

// parkAndCheckDone parks w and, if it happens to be the last worker
// parked, tries to advance the pipeline (open the next bucket, replay a
// drained bucket's sentinel) before concluding the cycle has ended.
// Reports whether the cycle is now over and w's goroutine should return.
func (s *Scheduler) parkAndCheckDone(w *Worker) bool {
	cycle := s.cycles.Load()
	s.mon.parkAndWait(func() LastParkedAction {
		opened := s.updateBuckets()
		for _, st := range stageOrder {
			if s.buckets[st].isActivated() && s.buckets[st].maybeScheduleSentinel() {
				opened = true
			}
		}
		if opened {
			return WakeAll
		}
		if s.allBucketsEmpty() {
			s.cycles.Add(1)
			s.deactivateAllExceptUnconstrained()
			return WakeAll
		}
		return ParkSelf
	})
	return s.cycles.Load() != cycle
}

// RunCycle runs every worker goroutine until the pipeline drains
// entirely (every bucket empty and every worker parked with nothing left
// to steal), then returns. The context is honored only insofar as
// errgroup propagates worker goroutine panics/errors; Work packets
// themselves are expected to run to completion without blocking on ctx.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	s.StartCycle()
	g, _ := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			w.run()
			return nil
		})
	}
	return g.Wait()
}

// NumWorkers reports the size of the worker pool.
func (s *Scheduler) NumWorkers() int { return len(s.workers) }

// RunWorker drains worker ordinal's share of one already-started cycle
// and returns once that worker parks at the cycle's end. A binding that
// spawned its own GC worker thread (vm.Collection.SpawnGCThread) calls
// this from that thread instead of relying on RunCycle's own goroutines;
// StartCycle (called by whatever is driving the cycle) is what wakes a
// call already parked waiting for the next one.
func (s *Scheduler) RunWorker(ctx context.Context, ordinal int) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.workers[ordinal].run()
	return nil
}
