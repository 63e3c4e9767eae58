package batch

import (
	"context"
	"time"

	"ordkv/pkg/memtable"
	"ordkv/pkg/types"
	"ordkv/pkg/writecontroller"
)

// Memtable applies a Batch's operations to a target memtable, charging the
// whole batch's byte footprint to the write admission controller once
// before the first operation lands — matching spec §2's
// "writers -> Write batch -> Memtable" arrow, where admission is consulted
// before records reach the memtable, not per-record.
type Memtable struct {
	mt      *memtable.Memtable
	wc      *writecontroller.Controller
	nextSeq func() types.SequenceNumber
}

// NewMemtableApplier returns an Applier that writes into mt, throttled by
// wc. nextSeq supplies a fresh, strictly increasing sequence number for
// each operation (typically backed by clock.AtomicClock.Next).
func NewMemtableApplier(mt *memtable.Memtable, wc *writecontroller.Controller, nextSeq func() types.SequenceNumber) *Memtable {
	return &Memtable{mt: mt, wc: wc, nextSeq: nextSeq}
}

// Apply delays for the batch's full size, then replays its operations.
func (m *Memtable) Apply(ctx context.Context, b *Batch) error {
	if m.wc != nil {
		if d := m.wc.GetDelay(b.Size()); d > 0 {
			select {
			case <-time.After(time.Duration(d) * time.Microsecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return b.Apply(m)
}

func (m *Memtable) ApplyPut(key types.Key, value types.Value) error {
	return m.mt.Add(m.nextSeq(), types.KindValue, key, value, false, nil)
}

func (m *Memtable) ApplyDelete(key types.Key) error {
	return m.mt.Add(m.nextSeq(), types.KindDeletion, key, nil, false, nil)
}
