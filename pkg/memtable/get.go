package memtable

import (
	"bytes"

	"ordkv/pkg/dberrors"
	"ordkv/pkg/record"
	"ordkv/pkg/types"
)

// RangeTombstone is one (start, end, seq) range-deletion record: it covers
// any key in [start, end) whose sequence is <= seq (spec §3).
type RangeTombstone struct {
	Start []byte
	End   []byte
	Seq   types.SequenceNumber
}

// Get implements spec §4.2's get: seek to the first internal key
// >= (user_key, +inf), then walk forward while the user key matches,
// skipping records whose sequence is not visible to readSeq (use
// types.MaxSequenceNumber for "read everything"). doMerge controls whether
// an accumulated merge chain is combined via the configured
// MergeOperator, or returned raw for the caller to inspect.
//
// Return values mirror the taxonomy in spec §7: (value, found, merge
// context, err). The merge context is non-nil when operands are returned
// uncombined (doMerge false) or the chain never reached a base value.
func (mt *Memtable) Get(userKey []byte, readSeq types.SequenceNumber, doMerge bool) ([]byte, bool, *mergeContext, error) {
	coveringSeq := mt.maxCoveringTombstoneSeq(userKey, readSeq)

	probe := record.EncodeSearchEntry(userKey, types.MaxSequenceNumber, types.KindMax)
	entry := mt.index.FindGE(probe)

	var mctx mergeContext
	for entry != nil {
		key := record.DecodeEntryKey(entry)
		if !bytes.Equal(key.UserKey, userKey) {
			break
		}
		if key.SeqNum() > readSeq {
			entry = mt.index.FindGT(entry)
			continue
		}
		if key.SeqNum() <= coveringSeq {
			// Covered by a range tombstone with an equal-or-newer sequence:
			// treat as deleted regardless of kind.
			return nil, false, nil, nil
		}

		rec, _, err := record.Decode(entry, mt.opts.ProtectionBytesPerKey)
		if err != nil {
			return nil, false, nil, dberrors.Fatal("memtable.Get", err)
		}
		if !record.VerifyChecksum(rec) {
			return nil, false, nil, dberrors.ErrCorruption
		}

		switch key.Kind() {
		case types.KindValue:
			if len(mctx.operands) == 0 {
				return rec.Value, true, nil, nil
			}
			if !doMerge {
				return rec.Value, true, &mctx, nil
			}
			merged, ok := mt.combine(userKey, rec.Value, &mctx)
			if !ok {
				return nil, false, nil, dberrors.Fatal("memtable.Get", dberrors.ErrCorruption)
			}
			return merged, true, nil, nil

		case types.KindDeletion:
			if len(mctx.operands) == 0 {
				return nil, false, nil, nil
			}
			if !doMerge {
				return nil, false, &mctx, nil
			}
			merged, ok := mt.combine(userKey, nil, &mctx)
			if !ok {
				return nil, false, nil, dberrors.Fatal("memtable.Get", dberrors.ErrCorruption)
			}
			return merged, true, nil, nil

		case types.KindMerge:
			mctx.push(rec.Value)
			if mt.opts.MaxSuccessiveMerges > 0 && len(mctx.operands) >= mt.opts.MaxSuccessiveMerges {
				merged, ok := mt.combine(userKey, nil, &mctx)
				if !ok {
					return nil, false, nil, dberrors.Fatal("memtable.Get", dberrors.ErrCorruption)
				}
				return merged, true, nil, nil
			}
		}

		entry = mt.index.FindGT(entry)
	}

	if len(mctx.operands) > 0 {
		// Exhausted every match for this key without reaching a base value
		// or deletion: spec §4.2 calls this merge-in-progress.
		return nil, false, &mctx, dberrors.ErrMergeInProgress
	}
	return nil, false, nil, nil
}

func (mt *Memtable) combine(userKey, base []byte, mctx *mergeContext) ([]byte, bool) {
	if mt.merge == nil {
		return nil, false
	}
	// FullMerge expects oldest-to-newest; mctx accumulates newest-first.
	ops := make([][]byte, len(mctx.operands))
	for i, op := range mctx.operands {
		ops[len(ops)-1-i] = op
	}
	return mt.merge.FullMerge(userKey, base, ops)
}

// MultiGet is a batched point-lookup convenience over Get; ordering of
// results is not guaranteed to match the input order's performance
// characteristics, only its indices (spec §4.2).
func (mt *Memtable) MultiGet(userKeys [][]byte, readSeq types.SequenceNumber) [][]byte {
	out := make([][]byte, len(userKeys))
	for i, k := range userKeys {
		v, found, _, err := mt.Get(k, readSeq, true)
		if err == nil && found {
			out[i] = v
		}
	}
	return out
}

// CountSuccessiveMerges counts consecutive merge records for userKey from
// newest toward older, stopping at a value/deletion record or a key
// change (spec §4.2).
func (mt *Memtable) CountSuccessiveMerges(userKey []byte) int {
	probe := record.EncodeSearchEntry(userKey, types.MaxSequenceNumber, types.KindMax)
	entry := mt.index.FindGE(probe)
	count := 0
	for entry != nil {
		key := record.DecodeEntryKey(entry)
		if !bytes.Equal(key.UserKey, userKey) {
			break
		}
		if key.Kind() != types.KindMerge {
			break
		}
		count++
		entry = mt.index.FindGT(entry)
	}
	return count
}

// maxCoveringTombstoneSeq returns the highest sequence of any range
// tombstone covering userKey that is itself visible to readSeq, or 0 if
// none covers it.
func (mt *Memtable) maxCoveringTombstoneSeq(userKey []byte, readSeq types.SequenceNumber) types.SequenceNumber {
	tombs := mt.fragmentedTombstones()
	var max types.SequenceNumber
	for _, t := range tombs {
		if t.Seq > readSeq {
			continue
		}
		if bytes.Compare(userKey, t.Start) >= 0 && bytes.Compare(userKey, t.End) < 0 {
			if t.Seq > max {
				max = t.Seq
			}
		}
	}
	return max
}
