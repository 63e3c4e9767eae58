package snapshot

import "ordkv/pkg/types"

// Snapshot provides a consistent view of the database at a given sequence.
type Snapshot interface {
	// Sequence returns the read sequence number.
	Sequence() types.SequenceNumber
	// Close releases the snapshot.
	Close() error
}

// seqSnapshot is the only Snapshot implementation this library needs: a
// frozen read sequence. There is no MVCC garbage-collection hook here —
// holding a snapshot open has no effect on the memtable (spec §1 excludes
// compaction/snapshotting machinery from this layer) beyond what the
// caller does with the sequence number it reports.
type seqSnapshot struct {
	seq types.SequenceNumber
}

// New returns a Snapshot pinned at seq.
func New(seq types.SequenceNumber) Snapshot {
	return &seqSnapshot{seq: seq}
}

func (s *seqSnapshot) Sequence() types.SequenceNumber { return s.seq }
func (s *seqSnapshot) Close() error                   { return nil }
