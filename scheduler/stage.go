package scheduler

// Stage is a point in the fixed pipeline a stop-the-world cycle drains
// through. Buckets open strictly left to right: a later stage's bucket
// stays closed until every earlier stage's bucket is both activated and
// drained, and all workers have parked (so no worker can still be about
// to push a packet into an earlier stage).
type Stage int

const (
	// Unconstrained is always open; work that can run at any point in a
	// cycle (or even outside one) goes here.
	Unconstrained Stage = iota
	// Prepare readies plans, spaces, and mutators for a new trace.
	Prepare
	// Closure computes the transitive closure over strong references.
	Closure
	// SoftRefClosure processes soft references, potentially expanding
	// the closure.
	SoftRefClosure
	// WeakRefClosure processes weak references.
	WeakRefClosure
	// FinalRefClosure resurrects finalizable objects, potentially
	// expanding the closure.
	FinalRefClosure
	// PhantomRefClosure processes phantom references.
	PhantomRefClosure
	// VMRefClosure lets the bound VM handle its own weak data structures
	// (ephemerons, weak collections, finalizer tables).
	VMRefClosure
	// Release tears down per-cycle state in plans, spaces, and mutators.
	Release
	// Final resumes mutators and ends the cycle.
	Final

	numStages
)

func (s Stage) String() string {
	switch s {
	case Unconstrained:
		return "Unconstrained"
	case Prepare:
		return "Prepare"
	case Closure:
		return "Closure"
	case SoftRefClosure:
		return "SoftRefClosure"
	case WeakRefClosure:
		return "WeakRefClosure"
	case FinalRefClosure:
		return "FinalRefClosure"
	case PhantomRefClosure:
		return "PhantomRefClosure"
	case VMRefClosure:
		return "VMRefClosure"
	case Release:
		return "Release"
	case Final:
		return "Final"
	default:
		return "Stage(?)"
	}
}

// stageOrder is the fixed drain order; each entry (after Prepare) opens
// once every earlier entry in this slice is drained.
var stageOrder = []Stage{
	Unconstrained,
	Prepare,
	Closure,
	SoftRefClosure,
	WeakRefClosure,
	FinalRefClosure,
	PhantomRefClosure,
	VMRefClosure,
	Release,
	Final,
}
