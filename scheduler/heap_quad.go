// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

// quadTimer is a 4-ary heap entry. Unlike heapTimer it carries no index
// back-pointer: Cancel never needs to locate its array slot because
// deletion is lazy, deferring physical removal to the next tick that
// reaches the cancelled node. Grounded on original_source/QuadHeapTimer.cpp,
// which marks `deleted` on cancel and only physically pops the node once
// it surfaces at the root.
type quadTimer struct {
	id       uint64
	deadline int64
	action   Action
	deleted  bool
}

const quadFanout = 4

// quadHeapScheduler is the QuadHeap variant: a 4-ary min-heap with lazy
// deletion. size tracks logically-live timers independently of
// len(nodes), since a cancelled-but-not-yet-reaped node still occupies a
// heap slot.
type quadHeapScheduler struct {
	ids        idAllocator
	clk        Clock
	nodes      []*quadTimer
	index      map[uint64]*quadTimer
	size       int
	lastTickMs int64
}

func newQuadHeapScheduler(clk Clock) *quadHeapScheduler {
	return &quadHeapScheduler{
		clk:   clk,
		nodes: make([]*quadTimer, 0, 64),
		index: make(map[uint64]*quadTimer, 64),
	}
}

func (q *quadHeapScheduler) Variant() Variant { return QuadHeap }
func (q *quadHeapScheduler) Size() int        { return q.size }

func (q *quadHeapScheduler) Start(durationMs uint64, action Action) uint64 {
	if err := checkDuration(durationMs); err != nil {
		BUG("quadHeapScheduler.Start: %s", err)
	}
	if action == nil {
		BUG("quadHeapScheduler.Start: nil action")
	}
	id := q.ids.alloc()
	t := &quadTimer{id: id, deadline: q.clk.NowMs() + int64(durationMs), action: action}
	q.nodes = append(q.nodes, t)
	q.index[id] = t
	q.size++
	quadSiftUp(q.nodes, len(q.nodes)-1)
	return id
}

// Cancel is O(1): mark-and-forget. The node is physically popped later,
// when Tick walks it off the root (or never, if it's never reached before
// the scheduler is torn down).
func (q *quadHeapScheduler) Cancel(timerID uint64) bool {
	t, ok := q.index[timerID]
	if !ok || t.deleted {
		return false
	}
	t.deleted = true
	delete(q.index, timerID)
	q.size--
	return true
}

func (q *quadHeapScheduler) Tick(nowMs int64) int {
	if nowMs < q.lastTickMs {
		WARN("quadHeapScheduler.Tick: clock went backwards: now=%d last=%d", nowMs, q.lastTickMs)
		return 0
	}
	q.lastTickMs = nowMs
	fired := 0
	maxID := q.ids.snapshot()
	for len(q.nodes) > 0 {
		top := q.nodes[0]
		if !top.deleted {
			if top.deadline > nowMs || top.id > maxID {
				break
			}
		}
		action := top.action
		quadPopRoot(&q.nodes)
		if top.deleted {
			continue
		}
		delete(q.index, top.id)
		q.size--
		fired++
		action()
	}
	return fired
}

// quadPopRoot removes the root, moving the tail into its place and
// re-heapifying from there — original_source/QuadHeapTimer.cpp's
// deltimer0.
func quadPopRoot(nodes *[]*quadTimer) {
	n := *nodes
	last := len(n) - 1
	if last > 0 {
		n[0] = n[last]
	}
	n[last] = nil
	n = n[:last]
	*nodes = n
	if last > 0 {
		quadSiftDown(n, 0)
	}
}

func quadSiftUp(nodes []*quadTimer, j int) {
	tmp := nodes[j]
	for j > 0 {
		i := (j - 1) / quadFanout
		if i == j || !quadLess(tmp, nodes[i]) {
			break
		}
		nodes[j] = nodes[i]
		j = i
	}
	nodes[j] = tmp
}

// quadSiftDown inspects the four children of i two at a time — {c,c+1}
// then {c+2,c+3} — halving the comparison depth versus a binary heap,
// grounded on original_source/QuadHeapTimer.cpp's siftdownTimer.
func quadSiftDown(nodes []*quadTimer, i int) {
	n := len(nodes)
	tmp := nodes[i]
	for {
		c := quadFanout*i + 1
		if c >= n || c < 0 {
			break
		}
		best := c
		if c+1 < n && quadLess(nodes[c+1], nodes[best]) {
			best = c + 1
		}
		c3 := c + 2
		if c3 < n {
			best3 := c3
			if c3+1 < n && quadLess(nodes[c3+1], nodes[best3]) {
				best3 = c3 + 1
			}
			if quadLess(nodes[best3], nodes[best]) {
				best = best3
			}
		}
		if !quadLess(nodes[best], tmp) {
			break
		}
		nodes[i] = nodes[best]
		i = best
	}
	nodes[i] = tmp
}

func quadLess(a, b *quadTimer) bool {
	if a.deadline == b.deadline {
		return a.id < b.id
	}
	return a.deadline < b.deadline
}
