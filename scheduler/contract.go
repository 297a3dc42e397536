// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

// Package scheduler provides five interchangeable single-shot timer
// schedulers — a binary min-heap, a 4-ary min-heap, a google/btree-backed
// ordered tree, a single-level hashed timing wheel and a 9-level
// hierarchical timing wheel — behind one small contract, so their
// asymptotic and constant-factor trade-offs can be studied against a
// common harness.
//
// Every scheduler is single-owner: there is no internal locking, and
// callers needing multi-threaded access must provide their own exclusion.
// Time is supplied by the caller via Tick; nothing here reads the wall
// clock on its own.
package scheduler

import "fmt"

// Action is the owned, single-shot, no-argument, no-result side-effecting
// closure a Timer carries. The scheduler invokes it exactly once, after
// detaching the Timer, never before and never again.
type Action func()

// Variant selects one of the five internal organizations behind the
// Scheduler contract. All variants are semantically interchangeable.
type Variant int

const (
	BinaryHeap Variant = iota
	QuadHeap
	OrderedTree
	HashedWheel
	HierarchicalWheel
)

// Variants lists every supported Variant, in the order the benchmark
// harness reports them.
func Variants() []Variant {
	return []Variant{BinaryHeap, QuadHeap, OrderedTree, HashedWheel, HierarchicalWheel}
}

func (v Variant) String() string {
	switch v {
	case BinaryHeap:
		return "binary-heap"
	case QuadHeap:
		return "quad-heap"
	case OrderedTree:
		return "ordered-tree"
	case HashedWheel:
		return "hashed-wheel"
	case HierarchicalWheel:
		return "hierarchical-wheel"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Scheduler is the common contract every variant implements.
type Scheduler interface {
	// Start allocates a fresh id, arms it to fire durationMs after the
	// clock's current value, and returns the id. durationMs must not
	// exceed MaxDurationMs. action must not be nil.
	Start(durationMs uint64, action Action) uint64

	// Cancel removes timerID if it is still live and drops its action.
	// Returns true the first time it succeeds for a given id; false on
	// every other call (unknown id, already fired, already cancelled).
	Cancel(timerID uint64) bool

	// Tick fires every live timer whose deadline is <= nowMs, subject to
	// the snapshot rule (only timers whose id predates this call may
	// fire during it — actions that Start() new timers are deferred to a
	// later Tick). Returns the number of actions invoked. If nowMs is
	// lower than the previous call's argument, Tick logs the condition,
	// fires nothing and returns 0.
	Tick(nowMs int64) int

	// Size returns the number of live timers — armed, not yet fired or
	// cancelled.
	Size() int

	// Variant reports which internal organization this Scheduler uses.
	Variant() Variant
}

// New constructs a Scheduler of the requested Variant. clk supplies "now"
// for Start (Tick always takes an explicit nowMs argument instead).
func New(v Variant, clk Clock) Scheduler {
	switch v {
	case BinaryHeap:
		return newHeapScheduler(clk)
	case QuadHeap:
		return newQuadHeapScheduler(clk)
	case OrderedTree:
		return newTreeScheduler(clk)
	case HashedWheel:
		return newHashedWheelScheduler(clk)
	case HierarchicalWheel:
		return newHierWheelScheduler(clk)
	default:
		BUG("scheduler.New: unknown variant %d", int(v))
		return nil
	}
}

// idAllocator is the monotonically increasing, non-zero, never-live-reused
// counter shared by every variant. Each Tick call snapshots maxID at entry
// and refuses to fire any timer whose id exceeds it, which is what stops a
// duration=0 reschedule from firing within the tick that scheduled it.
type idAllocator struct {
	next uint64
}

// alloc returns the next id, starting at 1 (ids are never zero).
func (a *idAllocator) alloc() uint64 {
	a.next++
	return a.next
}

// snapshot returns the id of the most recently allocated timer, used as
// the max_id bound for the snapshot rule in Tick.
func (a *idAllocator) snapshot() uint64 {
	return a.next
}

// checkDuration validates the Start precondition shared by every variant.
func checkDuration(durationMs uint64) error {
	if durationMs > MaxDurationMs {
		return ErrDurationTooHigh
	}
	return nil
}
