// Package batch groups a sequence of Put/Delete mutations so a write path
// can apply them under a single write-admission delay, matching spec §2's
// "writers -> Write batch -> Memtable" arrow.
package batch

import "ordkv/pkg/types"

type opKind uint8

const (
	opPut opKind = iota
	opDelete
)

type op struct {
	kind  opKind
	key   types.Key
	value types.Value
}

// WriteBatch groups multiple mutations to be applied together. Applying a
// batch is not atomic: see Batch.Apply.
type WriteBatch interface {
	Put(key types.Key, value types.Value)
	Delete(key types.Key)
	Clear()
	Count() int
}

// Batch is the concrete WriteBatch implementation: an ordered list of
// operations, applied in recorded order by whatever Applier the caller
// hands it to.
type Batch struct {
	ops []op
	size uint64
}

func New() *Batch { return &Batch{} }

func (b *Batch) Put(key types.Key, value types.Value) {
	b.ops = append(b.ops, op{kind: opPut, key: key, value: value})
	b.size += uint64(len(key) + len(value))
}

func (b *Batch) Delete(key types.Key) {
	b.ops = append(b.ops, op{kind: opDelete, key: key})
	b.size += uint64(len(key))
}

func (b *Batch) Clear() {
	b.ops = b.ops[:0]
	b.size = 0
}

func (b *Batch) Count() int { return len(b.ops) }

// Size is the approximate byte footprint of every key/value recorded so
// far; callers use this to ask the write controller for a single delay
// covering the whole batch rather than one per operation.
func (b *Batch) Size() uint64 { return b.size }

// Applier applies one decoded operation to a destination; Memtable (in
// this package) is the concrete applier used by pkg/db.
type Applier interface {
	ApplyPut(key types.Key, value types.Value) error
	ApplyDelete(key types.Key) error
}

// Apply replays every operation in b, in order, against dst. It stops and
// returns the first error encountered, leaving any already-applied
// operations in place — batches are not rolled back, matching spec §1's
// Non-goal on transactional atomicity.
func (b *Batch) Apply(dst Applier) error {
	for _, o := range b.ops {
		var err error
		switch o.kind {
		case opPut:
			err = dst.ApplyPut(o.key, o.value)
		case opDelete:
			err = dst.ApplyDelete(o.key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
