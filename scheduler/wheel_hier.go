// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

// Constants for the 9-level cascading wheel, modeled after the hierarchical
// timer wheel of the Linux kernel (see original_source/timer_list.{h,cpp}
// and HHWheelTimer.{h,cpp} for the 5-level ancestor this generalizes).
const (
	hierLvlBits   = 6
	hierLvlSize   = 1 << hierLvlBits // 64 slots per level
	hierLvlDepth  = 9
	hierWheelSize = hierLvlSize * hierLvlDepth // 576
	hierClkShift  = 3                          // granularity multiplier 8 per level
)

func hierLvlGran(n int) int64 { return int64(1) << uint(n*hierClkShift) }

func hierLvlStart(n int) int64 {
	if n == 0 {
		return 0
	}
	return int64(hierLvlSize-1) << uint((n-1)*hierClkShift)
}

var hierWheelTimeoutCutoff = hierLvlStart(hierLvlDepth)

// hierSlot computes the (level, absolute slot, possibly-clamped deadline)
// a timer with the given deadline should occupy when the wheel's tick
// counter is at tick. expires more than hierWheelTimeoutCutoff out is
// clamped to the deepest level's representable range. Each level is
// indexed by the deadline's own bits at that level's granularity, so a
// slot comes due no later than the deadline and the cascade moves the
// timer to finer levels until it fires on the deadline tick itself.
func hierSlot(expires, tick int64) (level int, slot int, clamped int64) {
	delta := expires - tick
	if delta < 0 {
		return 0, int(tick & (hierLvlSize - 1)), expires
	}
	if delta >= hierWheelTimeoutCutoff {
		clamped = tick + hierWheelTimeoutCutoff - hierLvlGran(hierLvlDepth-1)
		level = hierLvlDepth - 1
	} else {
		clamped = expires
		for level < hierLvlDepth-1 && delta >= hierLvlStart(level+1) {
			level++
		}
	}
	idx := int((clamped >> uint(level*hierClkShift)) & (hierLvlSize - 1))
	return level, level*hierLvlSize + idx, clamped
}

// hierWheelScheduler is the HierarchicalWheel variant: a flat array of 576
// bucket lists (9 levels of 64 slots), a bitmap of non-empty slots for O(1)
// skip-empty tests, and a cascade that migrates timers from coarser to
// finer levels as the tick counter approaches their deadline. Grounded on
// original_source/HHWheelTimer.cpp and timer_list.cpp's run_timers/cascade,
// generalized from their 5-level/2^6-2^8 layout to the 9-level/64-slot
// layout with an 8x granularity multiplier per level.
type hierWheelScheduler struct {
	ids     idAllocator
	clk     Clock
	arena   *arena
	vectors [hierWheelSize]bucket
	pending [hierWheelSize]bool
	tick    int64
	index   map[uint64]handle
}

func newHierWheelScheduler(clk Clock) *hierWheelScheduler {
	w := &hierWheelScheduler{
		clk:   clk,
		arena: newArena(256),
		index: make(map[uint64]handle, 256),
		tick:  clk.NowMs(),
	}
	for i := range w.vectors {
		w.vectors[i] = bucket{head: noHandle, tail: noHandle}
	}
	return w
}

func (w *hierWheelScheduler) Variant() Variant { return HierarchicalWheel }
func (w *hierWheelScheduler) Size() int        { return len(w.index) }

func (w *hierWheelScheduler) insert(h handle) {
	t := w.arena.get(h)
	_, slot, clamped := hierSlot(t.deadline, w.tick)
	t.deadline = clamped
	w.arena.push(&w.vectors[slot], h, slot)
	w.pending[slot] = true
}

func (w *hierWheelScheduler) Start(durationMs uint64, action Action) uint64 {
	if err := checkDuration(durationMs); err != nil {
		BUG("hierWheelScheduler.Start: %s", err)
	}
	if action == nil {
		BUG("hierWheelScheduler.Start: nil action")
	}
	id := w.ids.alloc()
	h := w.arena.alloc()
	t := w.arena.get(h)
	t.id = id
	t.deadline = w.clk.NowMs() + int64(durationMs)
	t.action = action
	w.insert(h)
	w.index[id] = h
	return id
}

func (w *hierWheelScheduler) Cancel(timerID uint64) bool {
	h, ok := w.index[timerID]
	if !ok {
		return false
	}
	t := w.arena.get(h)
	slot := t.slot
	w.arena.unlink(&w.vectors[slot], h)
	if w.vectors[slot].head == noHandle {
		w.pending[slot] = false
	}
	w.arena.release(h)
	delete(w.index, timerID)
	return true
}

// fireDueAtCurrentSlot re-examines the level-0 bucket for the tick value
// the wheel is already sitting at, without advancing. A timer lands here
// either because it was started with an already-past-or-equal deadline, or
// because a previous cascade deferred it past the snapshot rule's max_id
// bound; either way it must be picked up the moment a later Tick call's
// max_id admits it, even if zero whole ticks have elapsed since.
func (w *hierWheelScheduler) fireDueAtCurrentSlot(maxID uint64, nowMs int64) int {
	idx := int(w.tick & (hierLvlSize - 1))
	bkt := &w.vectors[idx]
	fired := 0
	h := bkt.head
	for h != noHandle {
		t := w.arena.get(h)
		next := t.next
		if t.deadline > w.tick || t.id > maxID {
			h = next
			continue
		}
		w.arena.unlink(bkt, h)
		if bkt.head == noHandle {
			w.pending[idx] = false
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

// drain detaches every handle linked into vectors[idx] and clears the
// pending bit, returning the detached handles for the caller to
// collect and re-insert in the cascade step.
func (w *hierWheelScheduler) drain(idx int) []handle {
	bkt := &w.vectors[idx]
	var out []handle
	for h := bkt.head; h != noHandle; {
		t := w.arena.get(h)
		next := t.next
		out = append(out, h)
		t.next = noHandle
		t.prev = noHandle
		t.slot = -1
		h = next
	}
	bkt.head = noHandle
	bkt.tail = noHandle
	w.pending[idx] = false
	return out
}

// reinsertOrFire re-places a cascaded timer using the wheel's current tick.
// If it lands in level 0 already due and its id predates maxID, it fires
// immediately instead of occupying a bucket.
func (w *hierWheelScheduler) reinsertOrFire(h handle, maxID uint64, nowMs int64) int {
	t := w.arena.get(h)
	level, slot, clamped := hierSlot(t.deadline, w.tick)
	t.deadline = clamped
	if level == 0 && clamped <= w.tick && t.id <= maxID {
		action := t.action
		delete(w.index, t.id)
		w.arena.release(h)
		action()
		return 1
	}
	w.arena.push(&w.vectors[slot], h, slot)
	w.pending[slot] = true
	return 0
}

// advanceOneTick moves the wheel forward by exactly one tick (one
// millisecond), examining level 0 unconditionally and cascading coarser
// levels whenever the new tick value's lower bits wrap to zero at that
// level.
func (w *hierWheelScheduler) advanceOneTick(maxID uint64, nowMs int64) int {
	t := w.tick + 1
	var collected [hierLvlDepth][]handle
	levels := 0
	for i := 0; i < hierLvlDepth; i++ {
		if i > 0 {
			mask := hierLvlGran(i) - 1
			if t&mask != 0 {
				break
			}
		}
		ti := t >> uint(i*hierClkShift)
		idx := int(ti&(hierLvlSize-1)) + i*hierLvlSize
		if w.pending[idx] {
			collected[i] = w.drain(idx)
		}
		levels = i + 1
	}
	w.tick = t

	fired := 0
	for i := levels - 1; i >= 0; i-- {
		for _, h := range collected[i] {
			fired += w.reinsertOrFire(h, maxID, nowMs)
		}
	}
	return fired
}

func (w *hierWheelScheduler) Tick(nowMs int64) int {
	if nowMs < w.tick {
		WARN("hierWheelScheduler.Tick: clock went backwards: now=%d last=%d", nowMs, w.tick)
		return 0
	}
	maxID := w.ids.snapshot()
	fired := w.fireDueAtCurrentSlot(maxID, nowMs)
	for w.tick < nowMs {
		fired += w.advanceOneTick(maxID, nowMs)
	}
	return fired
}
