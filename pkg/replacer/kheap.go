package replacer

// kHeap is a binary max-heap (by node.kPriority) of frames that have
// reached K recorded accesses. It implements container/heap.Interface
// so Push/Pop/Fix/Remove reuse the standard library's sift logic; the
// eviction search below is custom because a plain heap.Pop would
// discard non-evictable (pinned) nodes it isn't allowed to select.
type kHeap struct {
	nodes []*node
}

func newKHeap() *kHeap {
	return &kHeap{}
}

func (h *kHeap) Len() int { return len(h.nodes) }

func (h *kHeap) Less(i, j int) bool {
	return h.nodes[i].kPriority() > h.nodes[j].kPriority()
}

func (h *kHeap) Swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.nodes[i].heapIndex = i
	h.nodes[j].heapIndex = j
}

func (h *kHeap) Push(x any) {
	n := x.(*node)
	n.heapIndex = len(h.nodes)
	h.nodes = append(h.nodes, n)
}

func (h *kHeap) Pop() any {
	old := h.nodes
	n := old[len(old)-1]
	h.nodes = old[:len(old)-1]
	n.heapIndex = -1
	return n
}

// findEvictable performs a bounded depth-first search for the
// evictable node with the highest priority, descending into a
// subtree only when that subtree could possibly contain something
// better than the best candidate found so far. Heap order guarantees
// a node's priority is >= both its children's, so once an evictable
// node is found nothing beneath it needs to be inspected; conversely
// a non-evictable node's children are only worth visiting if their
// own priority beats the running best.
func (h *kHeap) findEvictable() (int, bool) {
	if len(h.nodes) == 0 {
		return -1, false
	}

	bestIdx := -1
	var bestPriority int64
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if idx >= len(h.nodes) {
			continue
		}
		n := h.nodes[idx]
		if n.evictable {
			if bestIdx == -1 || n.kPriority() > bestPriority {
				bestIdx = idx
				bestPriority = n.kPriority()
			}
			continue
		}
		left, right := 2*idx+1, 2*idx+2
		if left < len(h.nodes) && (bestIdx == -1 || h.nodes[left].kPriority() > bestPriority) {
			stack = append(stack, left)
		}
		if right < len(h.nodes) && (bestIdx == -1 || h.nodes[right].kPriority() > bestPriority) {
			stack = append(stack, right)
		}
	}
	return bestIdx, bestIdx != -1
}
