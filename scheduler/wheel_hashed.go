// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

const (
	hashedWheelSize = 512
	hashedTickMs    = 100
)

// hashedWheelScheduler is the single-level hashed timing wheel: a fixed
// number of buckets, each a list of timers ordered by insertion, with a
// round counter per timer for deadlines more than one revolution away.
// Grounded on original_source/HashedWheelTimer.{h,cpp} (itself modeled on
// Netty's HashedWheelTimer).
type hashedWheelScheduler struct {
	ids         idAllocator
	clk         Clock
	arena       *arena
	buckets     [hashedWheelSize]bucket
	index       map[uint64]handle
	currentTick int64
	startedAt   int64
	lastTickMs  int64
}

func newHashedWheelScheduler(clk Clock) *hashedWheelScheduler {
	now := clk.NowMs()
	w := &hashedWheelScheduler{
		clk:        clk,
		arena:      newArena(256),
		index:      make(map[uint64]handle, 256),
		startedAt:  now,
		lastTickMs: now,
	}
	for i := range w.buckets {
		w.buckets[i] = bucket{head: noHandle, tail: noHandle}
	}
	return w
}

func (w *hashedWheelScheduler) Variant() Variant { return HashedWheel }
func (w *hashedWheelScheduler) Size() int        { return len(w.index) }

func (w *hashedWheelScheduler) slotIndex(tick int64) int {
	m := tick % hashedWheelSize
	if m < 0 {
		m += hashedWheelSize
	}
	return int(m)
}

func (w *hashedWheelScheduler) Start(durationMs uint64, action Action) uint64 {
	if err := checkDuration(durationMs); err != nil {
		BUG("hashedWheelScheduler.Start: %s", err)
	}
	if action == nil {
		BUG("hashedWheelScheduler.Start: nil action")
	}
	id := w.ids.alloc()
	deadline := w.clk.NowMs() + int64(durationMs)
	h := w.arena.alloc()
	t := w.arena.get(h)
	t.id = id
	t.deadline = deadline
	t.action = action
	w.place(h, t)
	w.index[id] = h
	return id
}

// place computes the bucket and remaining-rounds count for t: the tick
// offset from wheel start, the number of full revolutions before the
// deadline is reached, and the bucket index the timer should occupy now.
func (w *hashedWheelScheduler) place(h handle, t *wheelTimer) {
	calculated := (t.deadline - w.startedAt) / hashedTickMs
	t.remaining = (calculated - w.currentTick) / hashedWheelSize
	slot := calculated
	if w.currentTick > slot {
		slot = w.currentTick
	}
	idx := w.slotIndex(slot)
	w.arena.push(&w.buckets[idx], h, idx)
}

func (w *hashedWheelScheduler) Cancel(timerID uint64) bool {
	h, ok := w.index[timerID]
	if !ok {
		return false
	}
	t := w.arena.get(h)
	idx := t.slot
	w.arena.unlink(&w.buckets[idx], h)
	w.arena.release(h)
	delete(w.index, timerID)
	return true
}

// advanceSlot counts one revolution off every timer left in slotIdx with
// rounds still remaining, once fireSlot has closed that slot for the
// current revolution.
func (w *hashedWheelScheduler) advanceSlot(slotIdx int) {
	bkt := &w.buckets[slotIdx]
	for h := bkt.head; h != noHandle; h = w.arena.get(h).next {
		t := w.arena.get(h)
		if t.remaining > 0 {
			t.remaining--
		}
	}
}

// fireSlot unlinks and fires every timer in slotIdx whose round counter has
// reached zero and whose id predates maxID (the snapshot rule: timers
// created during this very Tick call are left in place for a later pass).
// Timers with remaining rounds left are also left untouched. With closing
// set, the slot's whole tick interval has elapsed, so a timer with no
// rounds left and a deadline after nowMs is a placement bug; without it,
// such a timer is not due yet and stays in place.
func (w *hashedWheelScheduler) fireSlot(slotIdx int, nowMs int64, maxID uint64, closing bool) int {
	bkt := &w.buckets[slotIdx]
	fired := 0
	h := bkt.head
	for h != noHandle {
		t := w.arena.get(h)
		next := t.next
		if t.remaining > 0 || t.id > maxID || (!closing && t.deadline > nowMs) {
			h = next
			continue
		}
		w.arena.unlink(bkt, h)
		if t.deadline > nowMs {
			// a timer with no rounds left but a deadline still in the
			// future is a placement bug.
			PANIC("hashedWheelScheduler: timer %d misplaced in slot %d: deadline %d > now %d",
				t.id, slotIdx, t.deadline, nowMs)
		}
		action := t.action
		delete(w.index, t.id)
		w.arena.release(h)
		fired++
		action()
		h = next
	}
	return fired
}

func (w *hashedWheelScheduler) Tick(nowMs int64) int {
	if nowMs < w.lastTickMs {
		WARN("hashedWheelScheduler.Tick: clock went backwards: now=%d last=%d", nowMs, w.lastTickMs)
		return 0
	}
	w.lastTickMs = nowMs
	maxID := w.ids.snapshot()

	// re-examine the not-yet-advanced current slot: its timers whose
	// deadline has passed (including duration=0 reschedules a prior call's
	// snapshot rule held back) fire now, even though no whole tick
	// interval has elapsed.
	fired := w.fireSlot(w.slotIndex(w.currentTick), nowMs, maxID, false)

	// close every slot whose whole tick interval has elapsed by nowMs:
	// fire its due timers, then count a revolution off the rest.
	target := (nowMs - w.startedAt) / hashedTickMs
	for w.currentTick < target {
		idx := w.slotIndex(w.currentTick)
		fired += w.fireSlot(idx, nowMs, maxID, true)
		w.advanceSlot(idx)
		w.currentTick++
	}
	return fired
}
