package memtable

import (
	"bytes"
	"hash/fnv"
	"sync"

	"ordkv/pkg/dberrors"
	"ordkv/pkg/record"
	"ordkv/pkg/types"
)

// Update edits an existing record's value bytes in place when the current
// newest record for k is the same kind and its value slot is at least as
// large as v; otherwise it falls through to Add (spec §4.2). Requires
// InplaceUpdateSupport; per spec's invariants, a memtable with in-place
// updates enabled must not be read through a snapshot, since editing bytes
// underneath a published node breaks the "published node is immutable"
// guarantee readers rely on.
func (mt *Memtable) Update(seq types.SequenceNumber, kind types.Kind, userKey, value []byte) error {
	if !mt.opts.InplaceUpdateSupport {
		return mt.Add(seq, kind, userKey, value, false, nil)
	}

	probe := record.EncodeSearchEntry(userKey, types.MaxSequenceNumber, types.KindMax)
	entry := mt.index.FindGE(probe)
	if entry == nil {
		return mt.Add(seq, kind, userKey, value, false, nil)
	}
	existingKey := record.DecodeEntryKey(entry)
	if !bytes.Equal(existingKey.UserKey, userKey) || existingKey.Kind() != kind {
		return mt.Add(seq, kind, userKey, value, false, nil)
	}
	rec, _, err := record.Decode(entry, mt.opts.ProtectionBytesPerKey)
	if err != nil {
		return dberrors.Fatal("memtable.Update", err)
	}
	if len(value) > len(rec.Value) {
		return mt.Add(seq, kind, userKey, value, false, nil)
	}

	lock := mt.inplaceLock(userKey)
	lock.Lock()
	copy(rec.Value, value)
	// Zero the unused tail so a shorter update doesn't leave a stale
	// suffix visible to a reader that (incorrectly) trusts the slot's
	// original length instead of this update's.
	for i := len(value); i < len(rec.Value); i++ {
		rec.Value[i] = 0
	}
	lock.Unlock()
	return nil
}

// UpdateCallback applies a user-supplied merge function to the existing
// value-kind record for userKey, in place, under the same size constraint
// as Update. Returns dberrors.ErrNotFound if no matching value-kind record
// exists (spec §4.2).
func (mt *Memtable) UpdateCallback(userKey []byte, merger func(existing []byte) ([]byte, bool)) error {
	if !mt.opts.InplaceUpdateSupport {
		return dberrors.ErrNotFound
	}
	probe := record.EncodeSearchEntry(userKey, types.MaxSequenceNumber, types.KindMax)
	entry := mt.index.FindGE(probe)
	if entry == nil {
		return dberrors.ErrNotFound
	}
	existingKey := record.DecodeEntryKey(entry)
	if !bytes.Equal(existingKey.UserKey, userKey) || existingKey.Kind() != types.KindValue {
		return dberrors.ErrNotFound
	}
	rec, _, err := record.Decode(entry, mt.opts.ProtectionBytesPerKey)
	if err != nil {
		return dberrors.Fatal("memtable.UpdateCallback", err)
	}

	lock := mt.inplaceLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	next, ok := merger(rec.Value)
	if !ok || len(next) > len(rec.Value) {
		return dberrors.ErrNotFound
	}
	copy(rec.Value, next)
	for i := len(next); i < len(rec.Value); i++ {
		rec.Value[i] = 0
	}
	return nil
}

// inplaceLock picks one of inplace_update_num_locks striped locks by key
// hash (spec §5's "small fixed-size array of reader-writer locks, selected
// by key hash"). New always sizes inplaceLocks to at least 1 whenever
// InplaceUpdateSupport is set, so this is only called in that state.
func (mt *Memtable) inplaceLock(userKey []byte) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write(userKey)
	idx := h.Sum32() % uint32(len(mt.inplaceLocks))
	return &mt.inplaceLocks[idx]
}
