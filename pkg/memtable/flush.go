package memtable

// ShouldFlushNow is the should_flush_now heuristic (spec §4.2): arena usage
// crossing the configured write-buffer target. On a true result it also
// performs the one-way FLUSH_NOT_REQUESTED -> FLUSH_REQUESTED transition;
// it is safe to call from multiple goroutines, only one of which will see
// the transition happen.
func (mt *Memtable) ShouldFlushNow() bool {
	if mt.writeBufferSize == 0 {
		return false
	}
	over := mt.arena.MemoryAllocatedBytes() >= mt.writeBufferSize
	if over {
		mt.flushSt.CompareAndSwap(int32(flushNotRequested), int32(flushRequested))
	}
	return over
}

// MarkFlushScheduled claims the REQUESTED -> SCHEDULED transition; exactly
// one caller among any number of racing callers observes true.
func (mt *Memtable) MarkFlushScheduled() bool {
	return mt.flushSt.CompareAndSwap(int32(flushRequested), int32(flushScheduled))
}

// FlushState reports the current position in the flush state machine.
func (mt *Memtable) FlushState() string {
	switch flushState(mt.flushSt.Load()) {
	case flushRequested:
		return "requested"
	case flushScheduled:
		return "scheduled"
	default:
		return "not_requested"
	}
}

// MarkImmutable freezes the memtable: no further Add calls succeed, and
// range-tombstone iteration switches to the cached fragmented list built
// here (spec §4.2's construct_fragmented_range_tombstones, run once at the
// immutability transition).
func (mt *Memtable) MarkImmutable() {
	if !mt.immutable.CompareAndSwap(false, true) {
		return
	}
	mt.rangeDelMu.Lock()
	mt.cachedTomb = mt.buildTombstones()
	mt.cachedTombSet = true
	mt.rangeDelMu.Unlock()
}

// IsImmutable reports whether MarkImmutable has been called.
func (mt *Memtable) IsImmutable() bool { return mt.immutable.Load() }

// MarkFlushed records that this memtable's contents have been durably
// written to the next tier; it does not itself reclaim anything (that is
// Unref's job once the refcount reaches zero).
func (mt *Memtable) MarkFlushed() { mt.flushedAt.Store(true) }

// IsFlushed reports whether MarkFlushed has been called.
func (mt *Memtable) IsFlushed() bool { return mt.flushedAt.Load() }

// Ref increments the reference count and returns the memtable, for
// call-site chaining (spec §4.2/§5: a memtable is reclaimable only when
// its count reaches zero — I5).
func (mt *Memtable) Ref() *Memtable {
	mt.refCount.Add(1)
	return mt
}

// Unref decrements the reference count and reports whether it reached
// zero, at which point the caller owns reclaiming the memtable (there is
// no finalizer here — per spec §1, persistence/reclamation mechanics are
// out of this library's scope).
func (mt *Memtable) Unref() bool {
	return mt.refCount.Add(-1) == 0
}

// RefCount reports the current reference count.
func (mt *Memtable) RefCount() int32 { return mt.refCount.Load() }
