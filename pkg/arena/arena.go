// Package arena implements the bump allocator that the record bytes
// ordered-index nodes reference are carved from (the nodes themselves are
// ordinary heap objects).
//
// Once a byte range is returned by Allocate it is never moved and never
// freed individually; the whole arena is reclaimed at once when the owning
// memtable's reference count reaches zero. That is what lets the skip list
// publish a node's forward pointers with a plain atomic store instead of a
// write barrier: the bytes underneath a published node are immutable for
// the rest of the arena's life.
package arena

import (
	"sync"
	"sync/atomic"
)

// DefaultBlockSize matches arena_block_size's default in the configuration
// table (spec §6); large enough to amortize the mutex taken on block
// rollover, small enough that a handful of idle memtables don't waste much
// memory.
const DefaultBlockSize = 4096

// Arena is a growable, internally-synchronized bump allocator. Concurrent
// callers may call Allocate at the same time; only block rollover takes the
// mutex, everything else is a compare-and-swap on the block's offset.
type Arena struct {
	blockSize int

	mu     sync.Mutex
	blocks [][]byte

	cur    atomic.Pointer[block]
	usage  atomic.Uint64
}

type block struct {
	buf    []byte
	offset atomic.Uint64
}

// New returns an Arena that allocates in chunks of blockSize bytes. A
// blockSize <= 0 uses DefaultBlockSize.
func New(blockSize int) *Arena {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	b := &block{buf: make([]byte, blockSize)}
	a := &Arena{blockSize: blockSize, blocks: [][]byte{b.buf}}
	a.usage.Store(uint64(blockSize))
	a.cur.Store(b)
	return a
}

// Allocate returns n fresh, zeroed bytes that live for the arena's
// lifetime. A request larger than the block size gets a block of its own,
// so Allocate returns nil only for n <= 0.
func (a *Arena) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	for {
		b := a.cur.Load()
		off := b.offset.Load()
		if off+uint64(n) <= uint64(len(b.buf)) {
			if b.offset.CompareAndSwap(off, off+uint64(n)) {
				return b.buf[off : off+uint64(n) : off+uint64(n)]
			}
			continue
		}
		// Doesn't fit in the current block. Roll over under the mutex so
		// concurrent losers of the race reuse the one new block instead of
		// each allocating their own.
		a.rollover(b, n)
	}
}

// rollover installs a fresh block sized to fit n, unless another caller
// already rolled past stale (the block Allocate last observed as current).
func (a *Arena) rollover(stale *block, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cur.Load() != stale {
		return
	}
	size := a.blockSize
	if n > size {
		size = n
	}
	nb := &block{buf: make([]byte, size)}
	a.blocks = append(a.blocks, nb.buf)
	a.usage.Add(uint64(size))
	a.cur.Store(nb)
}

// MemoryAllocatedBytes returns the total bytes backing every block this
// arena has ever grown to, irrespective of how much of that is in use.
func (a *Arena) MemoryAllocatedBytes() uint64 {
	return a.usage.Load()
}
