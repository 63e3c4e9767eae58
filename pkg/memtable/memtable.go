// Package memtable implements the memtable shell from spec §4.2: the
// write/read façade over one ordered index (pkg/skiplist), plus the
// auxiliary state spec §3's data model requires — a second index for
// range-deletion records, monotonic counters, sequence-number bookkeeping,
// flush state, reference count, an optional bloom filter, and a map of
// per-user-key insert-hint splices.
//
// This generalizes the teacher's pkg/memtable, which wired a bare
// skipmap.FuncMap as "the" ordered structure with no arena, no internal-key
// encoding, and no flush/refcount/bloom machinery; here the ordered
// structure is our own pkg/skiplist over pkg/arena-backed bytes, and the
// rest of this package supplies everything spec §4.2 adds on top of it.
package memtable

import (
	"sync"
	"sync/atomic"

	"ordkv/pkg/arena"
	"ordkv/pkg/bloom"
	"ordkv/pkg/clock"
	"ordkv/pkg/config"
	"ordkv/pkg/dberrors"
	"ordkv/pkg/metrics"
	"ordkv/pkg/record"
	"ordkv/pkg/skiplist"
	"ordkv/pkg/types"
)

// flushState values form the one-way progression from spec §4.2's flush
// state machine diagram.
type flushState int32

const (
	flushNotRequested flushState = iota
	flushRequested
	flushScheduled
)

// Memtable is one generation of the write path: one arena, one ordered
// index of live records, one ordered index of range-deletion records, and
// the bookkeeping spec §3 assigns to "memtable ownership".
type Memtable struct {
	opts  config.EngineOptions
	clock clock.Source
	merge MergeOperator

	arena        *arena.Arena
	index        *skiplist.List
	rangeDelIdx  *skiplist.List

	bloomFilter *bloom.Filter

	numEntries atomic.Uint64
	numDeletes atomic.Uint64
	dataSize   atomic.Uint64

	firstSeqno    atomic.Uint64
	earliestSeqno atomic.Uint64

	refCount  atomic.Int32
	immutable atomic.Bool
	flushSt   atomic.Int32
	flushedAt atomic.Bool

	// writeBufferSize is the arena-usage target should_flush_now compares
	// against (spec §4.2's flush heuristic).
	writeBufferSize uint64

	hintsMu sync.Mutex
	hints   map[string]*skiplist.Splice

	inplaceLocks []sync.RWMutex

	rangeDelMu    sync.Mutex
	cachedTomb    []RangeTombstone
	cachedTombSet bool

	metrics metrics.Collector
}

// SetMetrics attaches a Collector that Add reports through; the memtable
// never depends on a concrete metrics backend, only this interface (spec
// §6's "[DOMAIN] Metrics").
func (mt *Memtable) SetMetrics(c metrics.Collector) { mt.metrics = c }

// New builds an empty Memtable. writeBufferSize is the should_flush_now
// heuristic's target arena usage; merge may be nil if the caller never
// issues merge-kind writes.
func New(opts config.EngineOptions, src clock.Source, merge MergeOperator, writeBufferSize uint64) *Memtable {
	mt := &Memtable{
		opts:            opts,
		clock:           src,
		merge:           merge,
		arena:           arena.New(opts.ArenaBlockSize),
		index:           skiplist.New(record.CompareEntries),
		rangeDelIdx:     skiplist.New(record.CompareEntries),
		writeBufferSize: writeBufferSize,
		hints:           make(map[string]*skiplist.Splice),
	}
	mt.earliestSeqno.Store(uint64(types.MaxSequenceNumber))
	mt.refCount.Store(1)

	if opts.MemtablePrefixBloomBits > 0 {
		mt.bloomFilter = bloom.New(opts.MemtablePrefixBloomBits, bloom.DefaultHashCount)
	}
	if opts.InplaceUpdateSupport {
		n := opts.InplaceUpdateNumLocks
		if n <= 0 {
			n = 1
		}
		mt.inplaceLocks = make([]sync.RWMutex, n)
	}
	return mt
}

// PostProcessInfo accumulates counter deltas from a batch of concurrent
// Add calls; the caller merges it into the memtable once with
// BatchPostProcess, rather than contending on the counters per-record
// (spec §4.2: "Update counters ... into the caller-owned post struct ...
// later merged with batch_post_process").
type PostProcessInfo struct {
	numEntries uint64
	numDeletes uint64
	dataSize   uint64
}

func (p *PostProcessInfo) addEntry(size uint64, deletion bool) {
	p.numEntries++
	p.dataSize += size
	if deletion {
		p.numDeletes++
	}
}

// BatchPostProcess merges a batch's accumulated counter deltas into the
// memtable's own counters with one set of atomic adds.
func (mt *Memtable) BatchPostProcess(p *PostProcessInfo) {
	if p.numEntries > 0 {
		mt.numEntries.Add(p.numEntries)
	}
	if p.numDeletes > 0 {
		mt.numDeletes.Add(p.numDeletes)
	}
	if p.dataSize > 0 {
		mt.dataSize.Add(p.dataSize)
	}
}

// Add encodes and inserts one record (spec §4.2's add operation). seq must
// be non-decreasing across calls from a single writer; concurrent callers
// each pass concurrent=true and get a fresh splice per call (post may be nil
// for the single-writer path, in which case counters update inline).
//
// kind selects which index the record lands in: KindRangeDeletion entries
// go to the range-deletion index, everything else to the main index.
func (mt *Memtable) Add(seq types.SequenceNumber, kind types.Kind, userKey, value []byte, concurrent bool, post *PostProcessInfo) error {
	if mt.immutable.Load() {
		return dberrors.Fatal("memtable.Add", dberrors.ErrClosed)
	}

	mt.firstSeqno.CompareAndSwap(0, uint64(seq))
	for {
		cur := mt.earliestSeqno.Load()
		if uint64(seq) >= cur || mt.earliestSeqno.CompareAndSwap(cur, uint64(seq)) {
			break
		}
	}

	key := record.Make(userKey, seq, kind)
	entry := record.Encode(mt.arena.Allocate, key, value, mt.opts.ProtectionBytesPerKey)

	idx := mt.index
	if kind == types.KindRangeDeletion {
		idx = mt.rangeDelIdx
	}

	splice := mt.hintFor(userKey, concurrent)
	inserted := idx.Insert(entry, splice, concurrent)
	if !inserted {
		// (seq, user_key) collision in a duplicate-resistant representation:
		// the caller should retry with a larger sequence (spec §4.2).
		return dberrors.ErrTryAgain
	}

	size := uint64(len(entry))
	isDelete := kind == types.KindDeletion
	if post != nil {
		post.addEntry(size, isDelete)
	} else {
		mt.numEntries.Add(1)
		mt.dataSize.Add(size)
		if isDelete {
			mt.numDeletes.Add(1)
		}
	}

	if mt.bloomFilter != nil {
		mt.bloomFilter.Add(userKey)
	}
	if kind == types.KindRangeDeletion {
		mt.rangeDelMu.Lock()
		mt.cachedTombSet = false
		mt.rangeDelMu.Unlock()
	}
	if mt.metrics != nil {
		mt.metrics.IncCounter("ordkv_memtable_entries_total", map[string]string{"kind": kind.String()}, 1)
		mt.metrics.SetGauge("ordkv_memtable_arena_bytes", nil, float64(mt.arena.MemoryAllocatedBytes()))
	}
	return nil
}

// hintFor returns the per-user-key splice a sequential writer should reuse,
// or a fresh on-stack splice for a concurrent writer — per spec §9's
// resolved Open Question, a concurrent insert must never reuse a splice
// another goroutine might be mutating.
func (mt *Memtable) hintFor(userKey []byte, concurrent bool) *skiplist.Splice {
	if concurrent {
		return skiplist.NewSplice()
	}
	mt.hintsMu.Lock()
	defer mt.hintsMu.Unlock()
	sp, ok := mt.hints[string(userKey)]
	if !ok {
		sp = skiplist.NewSplice()
		mt.hints[string(userKey)] = sp
	}
	return sp
}

// NumEntries, NumDeletes, DataSize are the monotonic counters spec §4.2
// requires.
func (mt *Memtable) NumEntries() uint64 { return mt.numEntries.Load() }
func (mt *Memtable) NumDeletes() uint64 { return mt.numDeletes.Load() }
func (mt *Memtable) DataSize() uint64   { return mt.dataSize.Load() }

// ApproximateMemoryUsage reports the arena's total allocated bytes.
func (mt *Memtable) ApproximateMemoryUsage() uint64 { return mt.arena.MemoryAllocatedBytes() }

// FirstSeqno and EarliestSeqno expose the sequence bookkeeping I4 requires.
func (mt *Memtable) FirstSeqno() types.SequenceNumber {
	return types.SequenceNumber(mt.firstSeqno.Load())
}

func (mt *Memtable) EarliestSeqno() types.SequenceNumber {
	return types.SequenceNumber(mt.earliestSeqno.Load())
}
