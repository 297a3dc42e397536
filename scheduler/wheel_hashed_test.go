package scheduler

import "testing"

func TestHashedWheelPlacementRoundsAndSlot(t *testing.T) {
	clk := NewManualClock(1000)
	w := newHashedWheelScheduler(clk)
	// a deadline several revolutions out must carry a positive round count.
	w.Start(hashedTickMs*hashedWheelSize*3+50, func() {})
	h := w.index[1]
	tmr := w.arena.get(h)
	if tmr.remaining <= 0 {
		t.Fatalf("remaining rounds = %d for a timer 3 revolutions out, want > 0", tmr.remaining)
	}
}

func TestHashedWheelFiresAfterEnoughRevolutions(t *testing.T) {
	clk := NewManualClock(0)
	s := newHashedWheelScheduler(clk)
	fired := false
	deadline := int64(hashedTickMs*hashedWheelSize*2 + 250)
	s.Start(uint64(deadline), func() { fired = true })

	for now := int64(hashedTickMs); now <= deadline+hashedTickMs*2; now += hashedTickMs {
		clk.Set(now)
		s.Tick(now)
	}
	if !fired {
		t.Fatalf("timer scheduled %d ms out never fired after draining past its deadline", deadline)
	}
}

func TestHashedWheelCancelUnlinksFromBucket(t *testing.T) {
	clk := NewManualClock(0)
	s := newHashedWheelScheduler(clk)
	id := s.Start(250, func() { t.Fatalf("cancelled timer fired") })
	if !s.Cancel(id) {
		t.Fatalf("Cancel = false, want true")
	}
	for now := int64(100); now <= 1000; now += 100 {
		clk.Set(now)
		s.Tick(now)
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", s.Size())
	}
}
