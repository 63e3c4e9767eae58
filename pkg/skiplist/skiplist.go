// Package skiplist implements the ordered index from spec §4.1: a
// concurrent, lock-free (for reads and CAS inserts), multi-level
// probabilistic ordered container keyed by an arbitrary total order over
// opaque byte keys.
//
// The layout and search algorithm follow the RocksDB/Speedb InlineSkipList
// design (top-down level search, per-writer splice, CAS-linked concurrent
// inserts); the Go expression of per-level atomic forward pointers is
// grounded on other_examples/aalhour-rockyardkv's port of the same
// structure. Height sampling uses github.com/zhangyunhao116/fastrand, a
// dependency the teacher repo's go.mod already carries but never actually
// calls, for exactly the uniform-uint32 draw the height distribution needs
// on its hottest path.
package skiplist

import (
	"sync/atomic"

	"github.com/zhangyunhao116/fastrand"
)

// MaxHeight is the hard ceiling on a node's level count (spec: H_max ≤ 32).
const MaxHeight = 32

// DefaultMaxHeight and DefaultBranching are the spec's "typical" values.
const (
	DefaultMaxHeight = 12
	DefaultBranching = 4
)

// Comparator orders two opaque keys: negative if a < b, zero if equal,
// positive if a > b. List never looks inside a key beyond what Comparator
// needs to.
type Comparator func(a, b []byte) int

type node struct {
	key  []byte
	next []atomic.Pointer[node]
}

func newNode(key []byte, height int) *node {
	return &node{key: key, next: make([]atomic.Pointer[node], height)}
}

func (n *node) height() int { return len(n.next) }

// loadNext is the traversal read: acquire semantics (spec §4.1's memory
// ordering), satisfied by atomic.Pointer.Load's sequential consistency.
func (n *node) loadNext(level int) *node { return n.next[level].Load() }

// storeNext is a single-writer publish: release semantics.
func (n *node) storeNext(level int, v *node) { n.next[level].Store(v) }

func (n *node) casNext(level int, old, next *node) bool {
	return n.next[level].CompareAndSwap(old, next)
}

// List is the concurrent probabilistic ordered index.
type List struct {
	head       *node
	maxHeight  atomic.Int32
	cmp        Comparator
	kMaxHeight int
	kBranching uint32
	scaledInvB uint32
	count      atomic.Int64
}

// New builds a List with the default height/branching. cmp is the total
// order keys are compared under; it must be consistent for the list's
// entire lifetime.
func New(cmp Comparator) *List {
	return NewWithParams(cmp, DefaultMaxHeight, DefaultBranching)
}

// NewWithParams is New with an explicit height ceiling and branching
// factor. A maxHeight outside [1, MaxHeight] falls back to
// DefaultMaxHeight.
func NewWithParams(cmp Comparator, maxHeight, branching int) *List {
	if maxHeight <= 0 || maxHeight > MaxHeight {
		maxHeight = DefaultMaxHeight
	}
	if branching <= 0 {
		branching = DefaultBranching
	}
	l := &List{
		head:       newNode(nil, MaxHeight),
		cmp:        cmp,
		kMaxHeight: maxHeight,
		kBranching: uint32(branching),
		scaledInvB: uint32(0xFFFFFFFF) / uint32(branching),
	}
	l.maxHeight.Store(1)
	return l
}

// Len returns the number of nodes currently in the list.
func (l *List) Len() int { return int(l.count.Load()) }

// randomHeight draws a node height from a geometric distribution with
// branching factor B: count how many times a uniform draw falls below
// 0xFFFFFFFF/B, up to kMaxHeight (spec §4.1).
func (l *List) randomHeight() int {
	h := 1
	for h < l.kMaxHeight && fastrand.Uint32() < l.scaledInvB {
		h++
	}
	return h
}

func (l *List) effectiveMaxHeight() int {
	return int(l.maxHeight.Load())
}

// FindGE returns the smallest node with key >= k, or nil.
func (l *List) FindGE(k []byte) []byte {
	n := l.findGE(k)
	if n == nil {
		return nil
	}
	return n.key
}

func (l *List) findGE(k []byte) *node {
	x := l.head
	level := l.effectiveMaxHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil && l.cmp(next.key, k) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// FindFirst returns the smallest key in the list, or nil if the list is
// empty — the iteration starting point, since FindGE/FindGT both need a
// real probe key to compare against. Level 0 threads every node in order,
// so the head's level-0 successor is always the smallest.
func (l *List) FindFirst() []byte {
	n := l.head.loadNext(0)
	if n == nil {
		return nil
	}
	return n.key
}

// FindGT returns the smallest node with key > k, or nil. Used to advance
// past a known key without re-walking from find_ge's inclusive match.
func (l *List) FindGT(k []byte) []byte {
	n := l.findGT(k)
	if n == nil {
		return nil
	}
	return n.key
}

func (l *List) findGT(k []byte) *node {
	x := l.head
	level := l.effectiveMaxHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil && l.cmp(next.key, k) <= 0 {
			x = next
			continue
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// FindLT returns the largest node with key < k, or nil if no such key
// exists (spec: "largest node with key < k, or head"; head carries no key,
// so the public API surfaces that case as a nil result).
func (l *List) FindLT(k []byte) []byte {
	n := l.findLT(k)
	if n == nil || n == l.head {
		return nil
	}
	return n.key
}

func (l *List) findLT(k []byte) *node {
	x := l.head
	level := l.effectiveMaxHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil && l.cmp(next.key, k) < 0 {
			x = next
			continue
		}
		if level == 0 {
			return x
		}
		level--
	}
}

// FindLast returns the largest key in the list, or nil if the list is
// empty.
func (l *List) FindLast() []byte {
	x := l.head
	level := l.effectiveMaxHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil {
			x = next
			continue
		}
		if level == 0 {
			if x == l.head {
				return nil
			}
			return x.key
		}
		level--
	}
}

// FindRandom picks a node by top-down uniform descent: at each level,
// count the nodes between head and the current limit, pick one uniformly,
// tighten limit to that node's successor, and descend (spec §4.1). Returns
// nil only if the list is empty.
func (l *List) FindRandom() []byte {
	var limit *node
	var picked *node
	for level := l.effectiveMaxHeight() - 1; level >= 0; level-- {
		var candidates []*node
		for n := l.head.loadNext(level); n != limit; n = n.loadNext(level) {
			candidates = append(candidates, n)
		}
		if len(candidates) == 0 {
			continue
		}
		picked = candidates[fastrand.Uint32()%uint32(len(candidates))]
		if level == 0 {
			return picked.key
		}
		limit = picked.loadNext(level)
	}
	if picked != nil {
		return picked.key
	}
	if n := l.head.loadNext(0); n != nil {
		return n.key
	}
	return nil
}

// EstimateCount approximates the number of keys strictly less than k by
// descending from the top: each forward hop at level L adds one, each
// level drop multiplies the running estimate by the branching factor
// (spec §4.1); accuracy is O(log N) off in expectation.
func (l *List) EstimateCount(k []byte) uint64 {
	var count uint64
	x := l.head
	level := l.effectiveMaxHeight() - 1
	for {
		next := x.loadNext(level)
		if next != nil && l.cmp(next.key, k) < 0 {
			x = next
			count++
			continue
		}
		if level == 0 {
			return count
		}
		count *= uint64(l.kBranching)
		level--
	}
}
