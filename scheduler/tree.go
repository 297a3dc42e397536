// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

import "github.com/google/btree"

// treeDegree mirrors the default branching factor btree.New callers in the
// wild typically pick for small-to-medium in-memory indices.
const treeDegree = 32

// nodeKey is the composite ordering key (deadline,id), with the canonical
// smaller-id-first tie-break.
type nodeKey struct {
	deadline int64
	id       uint64
}

func (k nodeKey) Less(than btree.Item) bool {
	o := than.(nodeKey)
	if k.deadline == o.deadline {
		return k.id < o.id
	}
	return k.deadline < o.deadline
}

// treeItem is what's actually stored in the btree: the key plus the
// action, so a single Min()/Delete() round-trip is enough to fire a timer
// without a second index lookup.
type treeItem struct {
	key    nodeKey
	action Action
}

func (t treeItem) Less(than btree.Item) bool {
	return t.key.Less(than.(treeItem).key)
}

// treeScheduler is the OrderedTree variant: a google/btree ordered map
// keyed by nodeKey, playing the role of original_source/RBTreeTimer.cpp's
// std::multimap<NodeKey, TimeoutAction>, plus an id->key index for O(log n)
// cancellation (the C++ original keeps the analogous unordered_map<int,
// NodeKey> ref_).
type treeScheduler struct {
	ids        idAllocator
	clk        Clock
	tree       *btree.BTree
	index      map[uint64]nodeKey
	lastTickMs int64
}

func newTreeScheduler(clk Clock) *treeScheduler {
	return &treeScheduler{
		clk:   clk,
		tree:  btree.New(treeDegree),
		index: make(map[uint64]nodeKey, 64),
	}
}

func (s *treeScheduler) Variant() Variant { return OrderedTree }
func (s *treeScheduler) Size() int        { return s.tree.Len() }

func (s *treeScheduler) Start(durationMs uint64, action Action) uint64 {
	if err := checkDuration(durationMs); err != nil {
		BUG("treeScheduler.Start: %s", err)
	}
	if action == nil {
		BUG("treeScheduler.Start: nil action")
	}
	id := s.ids.alloc()
	key := nodeKey{deadline: s.clk.NowMs() + int64(durationMs), id: id}
	s.tree.ReplaceOrInsert(treeItem{key: key, action: action})
	s.index[id] = key
	return id
}

func (s *treeScheduler) Cancel(timerID uint64) bool {
	key, ok := s.index[timerID]
	if !ok {
		return false
	}
	delete(s.index, timerID)
	removed := s.tree.Delete(treeItem{key: key})
	if removed == nil {
		BUG("treeScheduler.Cancel: id index pointed at a missing tree node: id=%d", timerID)
	}
	return true
}

func (s *treeScheduler) Tick(nowMs int64) int {
	if nowMs < s.lastTickMs {
		WARN("treeScheduler.Tick: clock went backwards: now=%d last=%d", nowMs, s.lastTickMs)
		return 0
	}
	s.lastTickMs = nowMs
	fired := 0
	maxID := s.ids.snapshot()
	for {
		min := s.tree.Min()
		if min == nil {
			break
		}
		item := min.(treeItem)
		if item.key.deadline > nowMs || item.key.id > maxID {
			break
		}
		s.tree.Delete(item)
		delete(s.index, item.key.id)
		fired++
		item.action()
	}
	return fired
}
