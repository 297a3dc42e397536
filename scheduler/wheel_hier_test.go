package scheduler

import "testing"

func TestHierSlotLevel0ForNearDeadline(t *testing.T) {
	level, slot, clamped := hierSlot(5, 0)
	if level != 0 {
		t.Fatalf("hierSlot(5,0) level = %d, want 0", level)
	}
	if clamped != 5 {
		t.Fatalf("hierSlot(5,0) clamped = %d, want 5 (unclamped at level 0)", clamped)
	}
	if slot < 0 || slot >= hierLvlSize {
		t.Fatalf("hierSlot(5,0) slot = %d, want within level-0's range [0,%d)", slot, hierLvlSize)
	}
}

func TestHierSlotPastDeadlineLandsInCurrentLevel0Slot(t *testing.T) {
	level, slot, clamped := hierSlot(3, 10)
	if level != 0 {
		t.Fatalf("a deadline already behind the current tick must land at level 0, got %d", level)
	}
	if clamped != 3 {
		t.Fatalf("clamped = %d, want the original deadline 3 preserved", clamped)
	}
	want := int(int64(10) & (hierLvlSize - 1))
	if slot != want {
		t.Fatalf("slot = %d, want %d (current tick's level-0 slot)", slot, want)
	}
}

func TestHierSlotEscalatesLevelWithDistance(t *testing.T) {
	_, _, _ = hierSlot(0, 0)
	lvl1, _, _ := hierSlot(hierLvlStart(1)+1, 0)
	if lvl1 < 1 {
		t.Fatalf("a delta past level 1's start must not stay at level 0, got level %d", lvl1)
	}
	lvl2, _, _ := hierSlot(hierLvlStart(2)+1, 0)
	if lvl2 < 2 {
		t.Fatalf("a delta past level 2's start must reach level >= 2, got level %d", lvl2)
	}
}

func TestHierSlotClampsBeyondCutoff(t *testing.T) {
	level, _, clamped := hierSlot(hierWheelTimeoutCutoff+1000, 0)
	if level != hierLvlDepth-1 {
		t.Fatalf("a deadline beyond the cutoff must clamp to the deepest level, got %d", level)
	}
	if clamped >= hierWheelTimeoutCutoff {
		t.Fatalf("clamped deadline %d was not pulled back under the cutoff %d", clamped, hierWheelTimeoutCutoff)
	}
}

// TestHierWheelFarDeadlineNeverFiresEarly exercises a deadline well beyond a
// single cascade step: the action must not run for any tick short of its
// deadline, and must run once the wheel reaches it.
func TestHierWheelFarDeadlineNeverFiresEarly(t *testing.T) {
	clk := NewManualClock(0)
	s := newHierWheelScheduler(clk)
	const farMs = 1_000_000
	fired := 0
	s.Start(farMs, func() { fired++ })

	for now := int64(1000); now < farMs; now += 1000 {
		clk.Set(now)
		s.Tick(now)
		if fired != 0 {
			t.Fatalf("fired early at now=%d, want no fire before %d", now, farMs)
		}
	}
	clk.Set(farMs)
	s.Tick(farMs)
	if fired != 1 {
		t.Fatalf("fired = %d after reaching the deadline, want exactly 1", fired)
	}
}

func TestHierWheelCascadeAcrossLevelBoundary(t *testing.T) {
	clk := NewManualClock(0)
	s := newHierWheelScheduler(clk)
	deadline := uint64(hierLvlStart(2) + 5)
	fired := false
	s.Start(deadline, func() { fired = true })

	for now := int64(1); now <= int64(deadline)+int64(hierLvlGran(1)); now++ {
		clk.Set(now)
		s.Tick(now)
		if fired {
			break
		}
	}
	if !fired {
		t.Fatalf("timer queued %d ticks out across a level boundary never fired", deadline)
	}
}

func TestHierWheelCancelPreventsFire(t *testing.T) {
	clk := NewManualClock(0)
	s := newHierWheelScheduler(clk)
	id := s.Start(500, func() { t.Fatalf("cancelled timer fired") })
	if !s.Cancel(id) {
		t.Fatalf("Cancel = false, want true")
	}
	for now := int64(1); now <= 1000; now++ {
		clk.Set(now)
		s.Tick(now)
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d after cancel and drain, want 0", s.Size())
	}
}
