// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/intuitivelabs/timestamp"
)

// Clock is the external time provider a Scheduler is driven by. Schedulers
// never read the wall clock themselves: Tick always takes an explicit
// now_ms, and Clock only exists so that Start() call sites and the
// benchmark harness share one notion of "now".
type Clock interface {
	// NowMs returns the current time in milliseconds, monotonic for the
	// lifetime of the process.
	NowMs() int64
}

// SystemClock is the production Clock: monotonic milliseconds since the
// clock was created, plus a test-only additive offset.
//
// offset is expressed in milliseconds and adjusted via TimeFly/TimeReset;
// production callers never touch it, so it defaults to zero.
type SystemClock struct {
	epoch  timestamp.TS
	offset int64 // atomic, milliseconds
}

// NewSystemClock returns a ready-to-use SystemClock anchored at the current
// monotonic timestamp.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: timestamp.Now()}
}

// NowMs implements Clock.
func (c *SystemClock) NowMs() int64 {
	elapsed := timestamp.Now().Sub(c.epoch)
	return int64(elapsed/time.Millisecond) + atomic.LoadInt64(&c.offset)
}

// TimeFly advances (or, with a negative delta, rewinds) the clock's test
// offset by deltaMs milliseconds without waiting for real time to pass.
// Intended for deterministic tests only.
func (c *SystemClock) TimeFly(deltaMs int64) {
	atomic.AddInt64(&c.offset, deltaMs)
}

// TimeReset zeroes the test offset and re-anchors the epoch at the current
// monotonic timestamp, returning the clock to production behavior.
func (c *SystemClock) TimeReset() {
	atomic.StoreInt64(&c.offset, 0)
	c.epoch = timestamp.Now()
}

// ManualClock is a Clock whose value is set entirely by the caller — useful
// for scheduler property tests that want to drive Tick with literal
// millisecond values without involving wall time at all.
type ManualClock struct {
	now int64
}

// NewManualClock returns a ManualClock starting at nowMs.
func NewManualClock(nowMs int64) *ManualClock {
	return &ManualClock{now: nowMs}
}

func (c *ManualClock) NowMs() int64 { return c.now }

// Set pins the clock to nowMs.
func (c *ManualClock) Set(nowMs int64) { c.now = nowMs }

// Advance moves the clock forward by deltaMs (deltaMs may be negative to
// exercise the clock-went-backwards path).
func (c *ManualClock) Advance(deltaMs int64) int64 {
	c.now += deltaMs
	return c.now
}

// CurrentTimeString renders a millisecond timestamp for diagnostic output.
// Not contract-bearing: nothing in the scheduler parses it back.
func CurrentTimeString(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// MaxDurationMs is the largest duration Start will accept, matching the
// ~49 day ceiling a 32-bit unsigned millisecond count can represent.
const MaxDurationMs uint64 = 1<<32 - 1
