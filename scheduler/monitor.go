package scheduler

import "sync"

// LastParkedAction is what the last worker to park should do next,
// decided by the callback park_and_wait's caller supplies.
type LastParkedAction int

const (
	// ParkSelf means the last worker should block too, same as everyone
	// else — nothing changed that would let the cycle progress.
	ParkSelf LastParkedAction = iota
	// WakeSelf means the last worker should return immediately without
	// waiting (it just opened a bucket or found more work itself).
	WakeSelf
	// WakeAll means every parked worker should be woken, typically
	// because a bucket was just opened or the cycle just ended.
	WakeAll
)

// monitor synchronizes workers parking when they find no work, and lets
// whichever worker happens to park last run a callback to decide whether
// the cycle can advance — the only point at which it is safe to open the
// next bucket, since every other worker is provably idle and cannot be
// mid-push into an earlier one.
type monitor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	parked int
	total  int
}

func newMonitor(total int) *monitor {
	m := &monitor{total: total}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *monitor) notifyOne() {
	m.mu.Lock()
	m.cond.Signal()
	m.mu.Unlock()
}

func (m *monitor) notifyAll() {
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
}

// parkAndWait parks the calling goroutine. If it is the last of total to
// park, onLastParked runs while still holding the lock (so no other
// worker can unpark mid-callback, even spuriously) and its result decides
// whether this worker — and, on WakeAll, every worker — proceeds without
// blocking.
//
// Workers may wake spuriously from Wait; that is harmless here because a
// worker that wakes finding no new work simply parks again, and only the
// last-parked worker ever acts on the parked count, which is why this
// does not loop around a predicate the way a condvar wait normally would.
func (m *monitor) parkAndWait(onLastParked func() LastParkedAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.parked++
	allParked := m.parked == m.total

	wait := true
	if allParked {
		switch onLastParked() {
		case ParkSelf:
			wait = true
		case WakeSelf:
			wait = false
		case WakeAll:
			m.cond.Broadcast()
			wait = false
		}
	}

	if wait {
		m.cond.Wait()
	}
	m.parked--
}
