package scheduler

import "sync"

// OpenCondition decides whether a closed bucket should activate, given
// the scheduler's current state (every earlier bucket drained, all
// workers parked by the time it is consulted).
type OpenCondition func(s *Scheduler) bool

// bucket is a FIFO queue of Work packets gated by an active flag. Workers
// pop from the front; Prepare's mutator fan-out and similar bulk
// producers push with bulkAdd. A closed, inactive bucket never yields
// work even if packets were queued into it ahead of time.
type bucket struct {
	mu       sync.Mutex
	active   bool
	queue    []Work
	sentinel Work
	canOpen  OpenCondition
}

func newBucket(active bool) *bucket {
	return &bucket{active: active}
}

func (b *bucket) isActivated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *bucket) activate() {
	b.mu.Lock()
	b.active = true
	b.mu.Unlock()
}

// deactivate closes the bucket. Callers must have already drained it;
// deactivating a non-empty bucket would silently strand its packets.
func (b *bucket) deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) != 0 {
		panic("scheduler: bucket deactivated while not drained")
	}
	b.active = false
}

func (b *bucket) isEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) == 0
}

func (b *bucket) isDrained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active && len(b.queue) == 0
}

func (b *bucket) add(w Work) {
	b.mu.Lock()
	b.queue = append(b.queue, w)
	b.mu.Unlock()
}

func (b *bucket) bulkAdd(ws []Work) {
	if len(ws) == 0 {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, ws...)
	b.mu.Unlock()
}

// poll removes and returns the front packet along with whether the
// bucket is now empty, so the caller can tell the coordinator a bucket
// just drained without a second lock round trip.
func (b *bucket) poll() (Work, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active || len(b.queue) == 0 {
		return nil, false, len(b.queue) == 0
	}
	w := b.queue[0]
	b.queue = b.queue[1:]
	return w, true, len(b.queue) == 0
}

// setSentinel registers a packet to be pushed back into this bucket the
// next time every packet currently queued anywhere has drained. Used for
// ephemeron-style closures that may need to run several times before no
// new objects are discovered.
func (b *bucket) setSentinel(w Work) {
	b.mu.Lock()
	b.sentinel = w
	b.mu.Unlock()
}

// maybeScheduleSentinel moves a pending sentinel into the live queue,
// reporting whether it did. Called by the last-parked worker once this
// bucket (and everything before it) has drained, before deciding whether
// to advance to the next stage.
func (b *bucket) maybeScheduleSentinel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sentinel == nil {
		return false
	}
	b.queue = append(b.queue, b.sentinel)
	b.sentinel = nil
	return true
}

func (b *bucket) setOpenCondition(cond OpenCondition) {
	b.canOpen = cond
}

// update activates the bucket if it is closed and its open condition now
// holds, reporting whether it just opened.
func (b *bucket) update(s *Scheduler) bool {
	if b.canOpen == nil {
		return false
	}
	b.mu.Lock()
	active := b.active
	b.mu.Unlock()
	if active {
		return false
	}
	if b.canOpen(s) {
		b.activate()
		return true
	}
	return false
}
