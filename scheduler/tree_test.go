package scheduler

import (
	"testing"

	"github.com/google/btree"
)

func TestNodeKeyOrdering(t *testing.T) {
	a := nodeKey{deadline: 100, id: 1}
	b := nodeKey{deadline: 100, id: 2}
	c := nodeKey{deadline: 50, id: 99}
	if !a.Less(b) {
		t.Fatalf("nodeKey{100,1}.Less({100,2}) = false, want true")
	}
	if b.Less(a) {
		t.Fatalf("nodeKey{100,2}.Less({100,1}) = true, want false")
	}
	if !c.Less(a) {
		t.Fatalf("an earlier deadline must sort first regardless of id")
	}
}

func TestTreeInOrderTraversalIsNonDecreasing(t *testing.T) {
	clk := NewManualClock(0)
	s := newTreeScheduler(clk)
	durations := []uint64{500, 10, 300, 10, 1, 999, 10}
	for _, d := range durations {
		s.Start(d, func() {})
	}
	var last nodeKey
	first := true
	s.tree.Ascend(func(item btree.Item) bool {
		ti := item.(treeItem)
		if !first && !last.Less(ti.key) && last != ti.key {
			t.Fatalf("in-order traversal went backwards: %v then %v", last, ti.key)
		}
		last = ti.key
		first = false
		return true
	})
}

func TestTreeCancelRemovesFromIndexAndTree(t *testing.T) {
	clk := NewManualClock(0)
	s := newTreeScheduler(clk)
	id := s.Start(42, func() {})
	if s.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", s.Size())
	}
	if !s.Cancel(id) {
		t.Fatalf("Cancel = false, want true")
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d after Cancel, want 0", s.Size())
	}
	if _, ok := s.index[id]; ok {
		t.Fatalf("id still present in the id index after Cancel")
	}
}
