// Package db assembles pkg/memtablelist, pkg/writecontroller and pkg/clock
// into the top-level façade spec §6 describes as "the core is a library,
// not a server": a Put/Get/Write/iterator surface a host process embeds
// directly, with no network listener of its own.
package db

import (
	"context"
	"time"

	"ordkv/pkg/batch"
	"ordkv/pkg/clock"
	"ordkv/pkg/config"
	"ordkv/pkg/dberrors"
	"ordkv/pkg/iterator"
	"ordkv/pkg/memtable"
	"ordkv/pkg/memtablelist"
	"ordkv/pkg/metrics"
	"ordkv/pkg/record"
	"ordkv/pkg/snapshot"
	"ordkv/pkg/types"
	"ordkv/pkg/writecontroller"
)

// OpenOptions define optional open-time behavior.
type OpenOptions struct {
	ReadOnly bool
}

// ReadOptions define per-read behavior.
type ReadOptions struct {
	Snapshot        snapshot.Snapshot
	VerifyChecksums bool
}

// WriteOptions define per-write behavior. Sync and DisableWAL are accepted
// for interface parity with the options a durable engine would expose, but
// this library has no WAL (spec §1's Non-goal), so both are no-ops here.
type WriteOptions struct {
	Sync       bool
	DisableWAL bool
}

// DB is the public key-value API.
type DB interface {
	Get(ctx context.Context, key types.Key, opts ReadOptions) (types.Value, error)
	Put(ctx context.Context, key types.Key, value types.Value, opts WriteOptions) error
	Delete(ctx context.Context, key types.Key, opts WriteOptions) error
	Write(ctx context.Context, wb batch.WriteBatch, opts WriteOptions) error

	NewIterator(ctx context.Context, opts ReadOptions) (iterator.Iterator, error)
	NewSnapshot(ctx context.Context) (snapshot.Snapshot, error)

	CompactRange(ctx context.Context, start, end types.Key) error
	Flush(ctx context.Context) error
	Close() error
}

// Engine is the in-process implementation of DB: one rotating memtable
// generation list, one write admission controller, one sequence-number
// source.
type Engine struct {
	opts config.EngineOptions
	seq  *clock.AtomicClock
	wc   *writecontroller.Controller
	mts  *memtablelist.List

	writeBufferSize uint64
	merge           memtable.MergeOperator
}

// Open constructs an Engine with a single, empty initial memtable.
func Open(opts config.EngineOptions, writeBufferSize uint64, merge memtable.MergeOperator) *Engine {
	src := clock.NewSystem()
	e := &Engine{
		opts:            opts,
		seq:             clock.NewAtomic(1),
		wc:              writecontroller.New(opts.DynamicDelay, opts.DelayedWriteRate, src),
		writeBufferSize: writeBufferSize,
		merge:           merge,
	}
	e.mts = memtablelist.New(memtable.New(opts, src, merge, writeBufferSize))
	return e
}

// SetMetrics attaches a Collector to the write controller and every
// memtable generation the engine currently owns. New generations installed
// after this call are not automatically wired; a host process re-calling
// SetMetrics after a rotation is expected to be rare enough to not warrant
// tracking every future memtable's construction site.
func (e *Engine) SetMetrics(c metrics.Collector) {
	e.wc.SetMetrics(c)
	e.mts.Current().SetMetrics(c)
}

func (e *Engine) Get(ctx context.Context, key types.Key, opts ReadOptions) (types.Value, error) {
	readSeq := types.MaxSequenceNumber
	if opts.Snapshot != nil {
		readSeq = opts.Snapshot.Sequence()
	}
	if v, ok := e.mts.Get(key, readSeq); ok {
		return v, nil
	}
	return nil, dberrors.ErrNotFound
}

func (e *Engine) Put(ctx context.Context, key types.Key, value types.Value, opts WriteOptions) error {
	return e.applyOne(ctx, types.KindValue, key, value)
}

func (e *Engine) Delete(ctx context.Context, key types.Key, opts WriteOptions) error {
	return e.applyOne(ctx, types.KindDeletion, key, nil)
}

func (e *Engine) applyOne(ctx context.Context, kind types.Kind, key, value types.Value) error {
	if err := e.admit(ctx, uint64(len(key)+len(value))); err != nil {
		return err
	}
	return e.mts.Current().Add(types.SequenceNumber(e.seq.Next()), kind, key, value, true, nil)
}

func (e *Engine) Write(ctx context.Context, wb batch.WriteBatch, opts WriteOptions) error {
	b, ok := wb.(*batch.Batch)
	if !ok {
		return dberrors.ErrInvalidArgument
	}
	applier := batch.NewMemtableApplier(e.mts.Current(), e.wc, func() types.SequenceNumber {
		return types.SequenceNumber(e.seq.Next())
	})
	return applier.Apply(ctx, b)
}

// admit consults the write controller before a write reaches the
// memtable, per spec §2's pipeline: admission is always upstream of the
// memtable, never interleaved with it.
func (e *Engine) admit(ctx context.Context, numBytes uint64) error {
	if e.wc.IsStopped() {
		if err := e.wc.WaitOnCV(ctx); err != nil {
			return err
		}
	}
	if d := e.wc.GetDelay(numBytes); d > 0 {
		select {
		case <-time.After(time.Duration(d) * time.Microsecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (e *Engine) NewIterator(ctx context.Context, opts ReadOptions) (iterator.Iterator, error) {
	readSeq := types.MaxSequenceNumber
	if opts.Snapshot != nil {
		readSeq = opts.Snapshot.Sequence()
	}
	return &engineIterator{inner: e.mts.Current().NewIterator(), readSeq: readSeq}, nil
}

// Search performs a bounded range scan over the engine, invoking callback
// for each key in [start, end), in descending order when opts.Reverse is
// set. It is a thin
// wrapper over SearchRange with the engine itself as the SearchEngine.
func (e *Engine) Search(ctx context.Context, start, end types.Key, opts SearchOptions, callback SearchCallback) error {
	return SearchRange(ctx, e, start, end, opts, callback)
}

func (e *Engine) NewSnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	if e.opts.InplaceUpdateSupport {
		return nil, dberrors.Fatal("db.NewSnapshot", dberrors.ErrInvalidArgument)
	}
	return snapshot.New(types.SequenceNumber(e.seq.Val())), nil
}

// CompactRange and Flush are accepted for interface parity with a durable
// engine but do nothing here: compaction-to-disk is a Non-goal (spec §1),
// and flush scheduling is the host process's responsibility once it reads
// memtablelist.List.PickForFlush.
func (e *Engine) CompactRange(ctx context.Context, start, end types.Key) error { return nil }
func (e *Engine) Flush(ctx context.Context) error                              { return nil }
func (e *Engine) Close() error                                                 { return nil }

// engineIterator adapts memtable.Iterator's internal-key view to the
// plain user-key/value surface iterator.Iterator exposes, skipping
// records not visible to readSeq.
type engineIterator struct {
	inner   *memtable.Iterator
	readSeq types.SequenceNumber
}

func (it *engineIterator) Seek(target types.Key) {
	it.inner.Seek(record.EncodeSearchEntry(target, types.MaxSequenceNumber, types.KindMax))
	it.skipInvisible(true)
}
func (it *engineIterator) First() { it.inner.First(); it.skipInvisible(true) }
func (it *engineIterator) Last()  { it.inner.Last(); it.skipInvisible(false) }
func (it *engineIterator) Next()  { it.inner.Next(); it.skipInvisible(true) }
func (it *engineIterator) Prev()  { it.inner.Prev(); it.skipInvisible(false) }

func (it *engineIterator) skipInvisible(forward bool) {
	for it.inner.Valid() && it.inner.Key().SeqNum() > it.readSeq {
		if forward {
			it.inner.Next()
		} else {
			it.inner.Prev()
		}
	}
}

func (it *engineIterator) Valid() bool      { return it.inner.Valid() }
func (it *engineIterator) Key() types.Key   { return it.inner.Key().UserKey }
func (it *engineIterator) Value() types.Value { return it.inner.Value() }
func (it *engineIterator) Close() error     { return nil }
