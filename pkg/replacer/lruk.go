// Package replacer implements the LRU-K page replacement policy used
// by the buffer pool to pick a frame to evict when it needs a free
// slot: an infinite-distance FIFO list for frames with fewer than K
// recorded accesses, and a K-distance max-heap for the rest.
package replacer

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/sirupsen/logrus"

	"driftdb/pkg/logging"
)

// AccessType records why a frame was touched. The replacer itself is
// indifferent to it (K-distance eviction doesn't distinguish access
// reasons) but it's carried through RecordAccess since a caller such
// as a query executor may want to log it.
type AccessType int

const (
	AccessUnknown AccessType = iota
	AccessLookup
	AccessScan
	AccessIndex
)

// node is one frame's bookkeeping: its access history (capped at K
// entries) and its current membership in either the FIFO list or the
// K-distance heap.
type node struct {
	frameID   int64
	history   []int64
	evictable bool
	valid     bool

	listLink  *evictLink // non-nil while history length < k
	heapIndex int        // index into the heap's backing slice, -1 when not present
}

// kPriority orders heap membership: since the shared timestamp counter
// advances by the same amount for every frame between comparisons,
// "current timestamp minus history[0]" is maximized exactly when
// history[0] (the timestamp of the Kth-most-recent access) is
// smallest, so the heap can compare oldest access times directly
// without re-reading the counter on every comparison.
func (n *node) kPriority() int64 {
	return -n.history[0]
}

// LRUKReplacer selects a frame to evict among the buffer pool's
// evictable frames, using backward K-distance as described in the
// package doc.
type LRUKReplacer struct {
	mu sync.Mutex

	k         int
	size      int // number of frames the replacer was sized for
	nodes     []*node
	evictable *bitset.BitSet // mirrors node.evictable, exposed for Evictable()

	list *evictList
	heap *kHeap

	currTimestamp int64
	currSize      int // count of evictable frames

	log *logrus.Entry
}

// New constructs a replacer over numFrames frame ids (0..numFrames-1)
// with the given K.
func New(numFrames int, k int) *LRUKReplacer {
	nodes := make([]*node, numFrames)
	for i := range nodes {
		nodes[i] = &node{frameID: int64(i), heapIndex: -1}
	}
	return &LRUKReplacer{
		k:         k,
		size:      numFrames,
		nodes:     nodes,
		evictable: bitset.New(uint(numFrames)),
		list:      newEvictList(),
		heap:      newKHeap(),
		log:       logging.Component("replacer"),
	}
}

func (r *LRUKReplacer) checkFrameID(frameID int64) {
	if frameID < 0 || int(frameID) >= r.size {
		panic(fmt.Sprintf("replacer: invalid frame id %d", frameID))
	}
}

// RecordAccess appends a new access to frameID's history, admitting it
// to the replacer if this is its first access, and migrating it from
// the infinite-distance list to the K-distance heap on its Kth access.
func (r *LRUKReplacer) RecordAccess(frameID int64, accessType AccessType) {
	r.checkFrameID(frameID)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.nodes[frameID]
	r.currTimestamp++
	n.valid = true

	wasInfinite := len(n.history) < r.k
	n.history = append(n.history, r.currTimestamp)
	if len(n.history) > r.k {
		n.history = n.history[1:]
	}
	reachedK := wasInfinite && len(n.history) == r.k

	switch {
	case n.listLink == nil && n.heapIndex < 0:
		// Brand new admission.
		if len(n.history) < r.k {
			n.listLink = r.list.pushTail(frameID)
		} else {
			heap.Push(r.heap, n)
		}
	case reachedK:
		n.listLink.popSelf()
		n.listLink = nil
		heap.Push(r.heap, n)
	case n.heapIndex >= 0:
		heap.Fix(r.heap, n.heapIndex)
	}
}

// SetEvictable toggles whether frameID may be selected by Evict.
func (r *LRUKReplacer) SetEvictable(frameID int64, evictable bool) {
	r.checkFrameID(frameID)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.nodes[frameID]
	if n.evictable == evictable {
		return
	}
	n.evictable = evictable
	if evictable {
		r.evictable.Set(uint(frameID))
		r.currSize++
	} else {
		r.evictable.Clear(uint(frameID))
		r.currSize--
	}
}

// Evictable reports whether frameID is currently eligible for eviction.
func (r *LRUKReplacer) Evictable(frameID int64) bool {
	r.checkFrameID(frameID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable.Test(uint(frameID))
}

// Evict selects and removes an evictable frame: first from the
// infinite-distance list (earliest-added wins), otherwise the maximum
// K-distance entry in the heap. Returns false if no frame is evictable.
func (r *LRUKReplacer) Evict() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if link := r.list.find(func(f int64) bool { return r.nodes[f].evictable }); link != nil {
		frameID := link.FrameID()
		link.popSelf()
		r.evictFrame(frameID)
		return frameID, true
	}

	if idx, ok := r.heap.findEvictable(); ok {
		n := heap.Remove(r.heap, idx).(*node)
		r.evictFrame(n.frameID)
		return n.frameID, true
	}

	return 0, false
}

func (r *LRUKReplacer) evictFrame(frameID int64) {
	n := r.nodes[frameID]
	n.history = nil
	n.valid = false
	n.listLink = nil
	n.heapIndex = -1
	n.evictable = false
	r.evictable.Clear(uint(frameID))
	r.currSize--
	r.log.Debugf("evicted frame %d", frameID)
}

// Remove drops frameID from the replacer entirely. Panics if the frame
// is tracked but not currently evictable; a frame with no recorded
// access is left alone.
func (r *LRUKReplacer) Remove(frameID int64) {
	r.checkFrameID(frameID)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.nodes[frameID]
	if !n.valid {
		return
	}
	if !n.evictable {
		panic(fmt.Sprintf("replacer: cannot remove non-evictable frame %d", frameID))
	}
	if n.listLink != nil {
		n.listLink.popSelf()
	} else if n.heapIndex >= 0 {
		heap.Remove(r.heap, n.heapIndex)
	}
	r.evictFrame(frameID)
}

// Size returns the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}
