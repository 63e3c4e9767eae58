package memtable

import (
	"ordkv/pkg/record"
	"ordkv/pkg/types"
)

// fragmentedTombstones returns every range-deletion record currently in
// the tombstone index, decoded. When the memtable is immutable the result
// is built once (at the immutability transition, by MarkImmutable) and
// cached, matching spec §4.2's new_range_tombstone_iterator contract;
// while mutable, it is rebuilt on every call since new tombstones may have
// been added since the last one.
//
// "Fragmented" here means only decoded into (start, end, seq) tuples in
// index order, one per record; tuples may overlap — this package does not implement the fuller
// boundary-splitting fragmentation a multi-tombstone overlap would need,
// since the memtable's own range-deletion index already stores tombstones
// one per add() call and Get only needs the max covering sequence, not a
// minimal non-overlapping partition.
func (mt *Memtable) fragmentedTombstones() []RangeTombstone {
	if mt.immutable.Load() {
		mt.rangeDelMu.Lock()
		if mt.cachedTombSet {
			out := mt.cachedTomb
			mt.rangeDelMu.Unlock()
			return out
		}
		mt.rangeDelMu.Unlock()
	}

	tombs := mt.buildTombstones()

	if mt.immutable.Load() {
		mt.rangeDelMu.Lock()
		mt.cachedTomb = tombs
		mt.cachedTombSet = true
		mt.rangeDelMu.Unlock()
	}
	return tombs
}

func (mt *Memtable) buildTombstones() []RangeTombstone {
	var tombs []RangeTombstone
	entry := mt.rangeDelIdx.FindFirst()
	for entry != nil {
		key := record.DecodeEntryKey(entry)
		rec, _, err := record.Decode(entry, mt.opts.ProtectionBytesPerKey)
		if err == nil {
			tombs = append(tombs, RangeTombstone{
				Start: key.UserKey,
				End:   rec.Value,
				Seq:   key.SeqNum(),
			})
		}
		entry = mt.rangeDelIdx.FindGT(entry)
	}
	return tombs
}

// NewRangeTombstoneIterator returns every tombstone visible to readSeq
// (spec §4.2).
func (mt *Memtable) NewRangeTombstoneIterator(readSeq types.SequenceNumber) []RangeTombstone {
	all := mt.fragmentedTombstones()
	out := make([]RangeTombstone, 0, len(all))
	for _, t := range all {
		if t.Seq <= readSeq {
			out = append(out, t)
		}
	}
	return out
}
