// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

// heapTimer is one entry of the binary heap scheduler, keyed by the
// composite (deadline,id) order. index is the entry's current slot in the
// backing array — it must be kept in sync on every swap or the id index
// below points at the wrong slot.
type heapTimer struct {
	id       uint64
	deadline int64
	action   Action
	index    int
}

// heapLess implements the canonical tie-break rule: smaller id fires first
// when two timers share a deadline (FIFO within a deadline). The original
// C++ sources this is grounded on (PriorityQueueTimer and QuadHeapTimer)
// broke ties inconsistently with the larger id; every variant here fixes
// that uniformly.
func heapLess(a, b *heapTimer) bool {
	if a.deadline == b.deadline {
		return a.id < b.id
	}
	return a.deadline < b.deadline
}

// heapScheduler implements the BinaryHeap variant: a dynamic array used as
// a binary min-heap with eager deletion via swap-with-tail plus a
// sift-up-or-down rebalance, exactly PriorityQueueTimer.cpp's
// siftdownTimer/siftupTimer/removeTimer, corrected to the canonical
// tie-break and carrying index back-pointers for O(1) id->slot lookup. The
// 4-ary, lazy-delete variant has different enough Cancel/Tick semantics
// that it lives in its own type, quadHeapScheduler (heap_quad.go).
type heapScheduler struct {
	ids        idAllocator
	clk        Clock
	nodes      []*heapTimer
	index      map[uint64]*heapTimer
	lastTickMs int64
}

func newHeapScheduler(clk Clock) *heapScheduler {
	return &heapScheduler{
		clk:   clk,
		nodes: make([]*heapTimer, 0, 64),
		index: make(map[uint64]*heapTimer, 64),
	}
}

func (h *heapScheduler) Variant() Variant { return BinaryHeap }

func (h *heapScheduler) Size() int { return len(h.nodes) }

func (h *heapScheduler) Start(durationMs uint64, action Action) uint64 {
	if err := checkDuration(durationMs); err != nil {
		BUG("heapScheduler.Start: %s", err)
	}
	if action == nil {
		BUG("heapScheduler.Start: nil action")
	}
	id := h.ids.alloc()
	t := &heapTimer{
		id:       id,
		deadline: h.clk.NowMs() + int64(durationMs),
		action:   action,
		index:    len(h.nodes),
	}
	h.nodes = append(h.nodes, t)
	h.index[id] = t
	h.siftUp(t.index)
	return id
}

func (h *heapScheduler) Cancel(timerID uint64) bool {
	t, ok := h.index[timerID]
	if !ok {
		return false
	}
	h.remove(t.index)
	delete(h.index, timerID)
	return true
}

func (h *heapScheduler) Tick(nowMs int64) int {
	if nowMs < h.lastTickMs {
		WARN("heapScheduler.Tick: clock went backwards: now=%d last=%d", nowMs, h.lastTickMs)
		return 0
	}
	h.lastTickMs = nowMs
	fired := 0
	maxID := h.ids.snapshot()
	for len(h.nodes) > 0 {
		top := h.nodes[0]
		if top.deadline > nowMs || top.id > maxID {
			break
		}
		action := top.action
		h.remove(0)
		delete(h.index, top.id)
		fired++
		action()
	}
	return fired
}

// remove extracts the node at slot i: swap with the tail, shrink, then
// rebalance from i. If sifting down made no progress the node that moved
// into i might need to go the other way instead.
func (h *heapScheduler) remove(i int) {
	n := len(h.nodes) - 1
	if i != n {
		h.swap(i, n)
	}
	h.nodes[n].index = -1
	h.nodes = h.nodes[:n]
	if i < n {
		if !h.siftDown(i) {
			h.siftUp(i)
		}
	}
}

func (h *heapScheduler) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.nodes[i].index = i
	h.nodes[j].index = j
}

func (h *heapScheduler) siftUp(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if i == j || !heapLess(h.nodes[j], h.nodes[i]) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

// siftDown moves the entry at i toward the leaves, comparing against both
// children at once — the classic binary-heap sift.
func (h *heapScheduler) siftDown(i int) bool {
	start := i
	n := len(h.nodes)
	for {
		c := 2*i + 1
		if c >= n || c < 0 { // c < 0 guards integer-overflow on a very deep heap
			break
		}
		best := c
		if c+1 < n && heapLess(h.nodes[c+1], h.nodes[best]) {
			best = c + 1
		}
		if !heapLess(h.nodes[best], h.nodes[i]) {
			break
		}
		h.swap(i, best)
		i = best
	}
	return i > start
}
