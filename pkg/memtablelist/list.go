// Package memtablelist supplies the generation bookkeeping around a
// rotating sequence of memtables: one current mutable memtable plus an
// ordered set of immutable ones still waiting to be flushed.
//
// This is not itself named in spec §4.2 — the core memtable's lifecycle
// operations (Ref/Unref/MarkImmutable/MarkFlushed) are all that spec
// mandates — but original_source/db/memtable.h friend-declares a
// MemTableList managing exactly this rotation around the memtable it
// specifies, and a write path needs somewhere to install the "next"
// memtable once the current one should flush. github.com/zhangyunhao116/
// skipset holds the immutable set in flush order (oldest first, by
// FirstSeqno) so a flush scheduler can always pick the oldest ready
// generation without a separate sort.
package memtablelist

import (
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipset"

	"ordkv/pkg/memtable"
	"ordkv/pkg/types"
)

// List owns one mutable memtable and a growing set of immutable ones
// awaiting flush.
type List struct {
	mu      sync.Mutex
	current atomic.Pointer[memtable.Memtable]
	imm     *skipset.FuncSet[*memtable.Memtable]
}

// New returns a List whose current generation is mt.
func New(mt *memtable.Memtable) *List {
	l := &List{
		imm: skipset.NewFunc[*memtable.Memtable](func(a, b *memtable.Memtable) bool {
			return a.FirstSeqno() < b.FirstSeqno()
		}),
	}
	l.current.Store(mt)
	return l
}

// Current returns the mutable memtable new writes should land in.
func (l *List) Current() *memtable.Memtable {
	return l.current.Load()
}

// InstallNewMemtable marks the current generation immutable, moves it into
// the flush-pending set, and installs next as the new mutable generation.
// The caller retains whatever reference it already holds on the old
// generation; InstallNewMemtable does not itself Ref or Unref anything —
// it only rotates which generation write traffic lands in.
func (l *List) InstallNewMemtable(next *memtable.Memtable) *memtable.Memtable {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.current.Load()
	old.MarkImmutable()
	l.imm.Add(old)
	l.current.Store(next)
	return old
}

// PickForFlush returns every immutable generation not yet marked flushed,
// oldest first.
func (l *List) PickForFlush() []*memtable.Memtable {
	var out []*memtable.Memtable
	l.imm.Range(func(mt *memtable.Memtable) bool {
		if !mt.IsFlushed() {
			out = append(out, mt)
		}
		return true
	})
	return out
}

// Installed reports whether mt is currently in the immutable set; it does
// not remove it (see Remove).
func (l *List) Installed(mt *memtable.Memtable) bool {
	return l.imm.Contains(mt)
}

// Remove drops a generation from the immutable set — called once it has
// been flushed and its refcount has reached zero.
func (l *List) Remove(mt *memtable.Memtable) bool {
	return l.imm.Remove(mt)
}

// NumImmutable reports how many generations are awaiting flush.
func (l *List) NumImmutable() int {
	return l.imm.Len()
}

// Get looks a key up across the current generation first, then every
// immutable one newest-to-oldest, returning the first hit — mirroring how
// a real engine's super-version resolves a read across memtable
// generations before falling through to on-disk tables (out of scope
// here, per spec §1's Non-goals).
func (l *List) Get(userKey []byte, readSeq types.SequenceNumber) ([]byte, bool) {
	if v, ok, _, err := l.current.Load().Get(userKey, readSeq, true); err == nil && ok {
		return v, true
	}

	// The set ranges oldest first (by FirstSeqno); walk it backwards.
	var gens []*memtable.Memtable
	l.imm.Range(func(mt *memtable.Memtable) bool {
		gens = append(gens, mt)
		return true
	})
	for i := len(gens) - 1; i >= 0; i-- {
		if v, ok, _, err := gens[i].Get(userKey, readSeq, true); err == nil && ok {
			return v, true
		}
	}
	return nil, false
}
