package dsa

import "sync"

// ─── Score Heap (Max-Heap) ──────────────────────────────────────────────────
// A thread-safe binary max-heap keyed on a float64 score, used by the
// bandit package's sortByPrecisionDescending (BatchSAR's per-round ranking)
// to rank candidates by precision: each ranking pushes every candidate and
// drains the heap.
//
// Operations:
//   Push: O(log n) — sift up
//   Pop:  O(log n) — sift down (extract-max)
//   Peek: O(1)
//   Len:  O(1)

// Item is an element of a ScoreHeap: an opaque ID plus the score it ranks
// on. Ties break on the lower ID, so re-running an identical round produces
// the same ordering regardless of insertion order.
type Item struct {
	ID    int
	Score float64
}

// ScoreHeap is a thread-safe max-heap over Item.Score.
type ScoreHeap struct {
	mu   sync.Mutex
	heap []Item
}

// NewScoreHeap creates an empty heap.
func NewScoreHeap() *ScoreHeap {
	return &ScoreHeap{}
}

// Push adds an item. O(log n).
func (h *ScoreHeap) Push(item Item) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heap = append(h.heap, item)
	h.siftUp(len(h.heap) - 1)
}

// Pop removes and returns the highest-scoring item. O(log n).
func (h *ScoreHeap) Pop() (Item, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heap) == 0 {
		return Item{}, false
	}
	top := h.heap[0]
	last := len(h.heap) - 1
	h.heap[0] = h.heap[last]
	h.heap = h.heap[:last]
	if len(h.heap) > 0 {
		h.siftDown(0)
	}
	return top, true
}

// Peek returns the highest-scoring item without removing it. O(1).
func (h *ScoreHeap) Peek() (Item, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heap) == 0 {
		return Item{}, false
	}
	return h.heap[0], true
}

// Len returns the number of items in the heap.
func (h *ScoreHeap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.heap)
}

func (h *ScoreHeap) more(i, j int) bool {
	if h.heap[i].Score != h.heap[j].Score {
		return h.heap[i].Score > h.heap[j].Score
	}
	return h.heap[i].ID < h.heap[j].ID
}

func (h *ScoreHeap) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if h.more(idx, parent) {
			h.heap[idx], h.heap[parent] = h.heap[parent], h.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (h *ScoreHeap) siftDown(idx int) {
	n := len(h.heap)
	for {
		largest := idx
		left := 2*idx + 1
		right := 2*idx + 2
		if left < n && h.more(left, largest) {
			largest = left
		}
		if right < n && h.more(right, largest) {
			largest = right
		}
		if largest == idx {
			break
		}
		h.heap[idx], h.heap[largest] = h.heap[largest], h.heap[idx]
		idx = largest
	}
}
