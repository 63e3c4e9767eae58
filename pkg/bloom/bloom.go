// Package bloom implements the memtable's optional membership filter
// (memtable_prefix_bloom_bits / memtable_whole_key_filtering in spec §6).
//
// The salted multi-hash bit-array design is carried over from the teacher's
// pkg/persistance/bloom_filter.go, but that filter sized itself from an
// expected-item count and a target false-positive rate; spec §6 specifies
// the bit budget directly, so Filter takes total bits and a hash count as
// explicit construction parameters instead of computing them. Adds are
// lock-free (one atomic OR per hash) so concurrent writers never contend on
// a filter mutex the way they would on a single shared *bool slice.
package bloom

import (
	"hash/fnv"
	"sync/atomic"
)

// DefaultHashCount matches the teacher's clamp on k: enough hash functions
// to get a reasonable false-positive rate without walking a key ten times
// on every Add.
const DefaultHashCount = 6

// Filter is a fixed-size, concurrency-safe bloom filter over byte-slice
// keys (the memtable feeds in whole user keys).
type Filter struct {
	words     []atomic.Uint64
	bits      uint32
	hashCount int
}

// New returns a Filter sized to exactly bits bits (rounded up to a whole
// 64-bit word), using hashCount salted FNV hashes per key. hashCount <= 0
// uses DefaultHashCount; bits <= 0 disables the filter (MayContain always
// reports true, Add is a no-op), matching memtable_prefix_bloom_bits = 0
// meaning "no filter".
func New(bits int, hashCount int) *Filter {
	if hashCount <= 0 {
		hashCount = DefaultHashCount
	}
	if bits <= 0 {
		return &Filter{bits: 0, hashCount: hashCount}
	}
	nWords := (bits + 63) / 64
	return &Filter{
		words:     make([]atomic.Uint64, nWords),
		bits:      uint32(nWords * 64),
		hashCount: hashCount,
	}
}

// Enabled reports whether this filter was built with a nonzero bit budget.
func (f *Filter) Enabled() bool { return f.bits > 0 }

// Add records key's membership.
func (f *Filter) Add(key []byte) {
	if f.bits == 0 {
		return
	}
	for i := 0; i < f.hashCount; i++ {
		idx := f.hash(key, i)
		word, bit := idx/64, idx%64
		for {
			old := f.words[word].Load()
			nv := old | (uint64(1) << bit)
			if nv == old || f.words[word].CompareAndSwap(old, nv) {
				break
			}
		}
	}
}

// MayContain reports whether key might have been added; false is a
// definitive answer, true is not. A disabled filter always returns true so
// callers that skip probing on "definitely absent" never wrongly skip a
// real lookup.
func (f *Filter) MayContain(key []byte) bool {
	if f.bits == 0 {
		return true
	}
	for i := 0; i < f.hashCount; i++ {
		idx := f.hash(key, i)
		word, bit := idx/64, idx%64
		if f.words[word].Load()&(uint64(1)<<bit) == 0 {
			return false
		}
	}
	return true
}

func (f *Filter) hash(key []byte, salt int) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(key)
	_, _ = h.Write([]byte{byte(salt)})
	return h.Sum32() % f.bits
}
