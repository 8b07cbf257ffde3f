// Package concurrency provides a debug-only auditor for the hash
// index's required latch acquisition order (header, then directory,
// then bucket) rather than a runtime deadlock detector: the buffer
// pool and disk scheduler already make deadlock impossible by
// construction (single coarse latch, strict FIFO disk queue), so what
// remains worth checking is that callers never acquire a coarser-level
// latch while already holding a finer one.
package concurrency

import "sync"

// PageKind identifies which level of the three-level hash index a
// latch belongs to.
type PageKind int

const (
	KindHeader PageKind = iota
	KindDirectory
	KindBucket
)

func (k PageKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindDirectory:
		return "directory"
	case KindBucket:
		return "bucket"
	default:
		return "unknown"
	}
}

type orderEdge struct {
	from, to PageKind
}

// LatchOrderGraph records "acquired while already holding" edges
// between page kinds across every tracked goroutine. It's the same
// shape as a waits-for graph — nodes and edges, cycle detection by
// DFS — but the nodes are page kinds instead of transactions and an
// edge means "acquired after" instead of "waits for": a cycle here
// means some caller took these latches in inconsistent order, not
// that anyone is stuck waiting.
type LatchOrderGraph struct {
	edges []orderEdge
	mtx   sync.Mutex
}

// NewLatchOrderGraph returns an empty graph.
func NewLatchOrderGraph() *LatchOrderGraph {
	return &LatchOrderGraph{}
}

// RecordAcquire notes that acquiring was latched while held was
// already held by the same goroutine.
func (g *LatchOrderGraph) RecordAcquire(held, acquiring PageKind) {
	if held == acquiring {
		return
	}
	g.mtx.Lock()
	defer g.mtx.Unlock()
	e := orderEdge{held, acquiring}
	for _, existing := range g.edges {
		if existing == e {
			return
		}
	}
	g.edges = append(g.edges, e)
}

// HasInversion reports whether the recorded edges contain a cycle,
// meaning some acquisition sequence violated the fixed
// header -> directory -> bucket order.
func (g *LatchOrderGraph) HasInversion() bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	for _, start := range []PageKind{KindHeader, KindDirectory, KindBucket} {
		if g.reaches(start, start, make(map[PageKind]bool)) {
			return true
		}
	}
	return false
}

func (g *LatchOrderGraph) reaches(origin, from PageKind, seen map[PageKind]bool) bool {
	for _, e := range g.edges {
		if e.from != from {
			continue
		}
		if e.to == origin {
			return true
		}
		if seen[e.to] {
			continue
		}
		seen[e.to] = true
		if g.reaches(origin, e.to, seen) {
			return true
		}
	}
	return false
}

// Tracker follows one goroutine's stack of currently held page-kind
// latches, feeding every new acquisition into a shared graph.
type Tracker struct {
	graph *LatchOrderGraph
	held  []PageKind
}

// NewTracker returns a Tracker reporting into g, or nil if g is nil so
// that a caller with auditing disabled can hold a *Tracker and call
// Acquire/Release on it unconditionally.
func NewTracker(g *LatchOrderGraph) *Tracker {
	if g == nil {
		return nil
	}
	return &Tracker{graph: g}
}

// Acquire records that kind was just latched, on top of whatever this
// tracker's goroutine already holds. A nil Tracker is a no-op, so
// callers can hold an always-valid *Tracker whether or not auditing is
// enabled.
func (t *Tracker) Acquire(kind PageKind) {
	if t == nil {
		return
	}
	for _, h := range t.held {
		t.graph.RecordAcquire(h, kind)
	}
	t.held = append(t.held, kind)
}

// Release drops kind from this tracker's held set. A nil Tracker is a
// no-op.
func (t *Tracker) Release(kind PageKind) {
	if t == nil {
		return
	}
	for i := len(t.held) - 1; i >= 0; i-- {
		if t.held[i] == kind {
			t.held = append(t.held[:i], t.held[i+1:]...)
			return
		}
	}
}
