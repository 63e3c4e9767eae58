package memtable

import "ordkv/pkg/record"

// Iterator is a forward/backward cursor over a memtable's internal keys
// (spec §4.2's new_iterator). It has no snapshot filtering of its own —
// callers that need sequence-bounded visibility should compare
// Key().SeqNum() themselves, the same way Get does.
type Iterator struct {
	mt      *Memtable
	current []byte
}

// NewIterator returns a cursor positioned before the first entry; call
// First, Last, or Seek before reading.
func (mt *Memtable) NewIterator() *Iterator {
	return &Iterator{mt: mt}
}

func (it *Iterator) First() {
	it.current = it.mt.index.FindFirst()
}

func (it *Iterator) Last() {
	it.current = it.mt.index.FindLast()
}

// Seek positions the cursor at the first internal key >= the given probe,
// typically built with record.EncodeSearchEntry.
func (it *Iterator) Seek(probe []byte) {
	it.current = it.mt.index.FindGE(probe)
}

func (it *Iterator) Next() {
	if it.current == nil {
		return
	}
	it.current = it.mt.index.FindGT(it.current)
}

// Prev moves to the largest entry strictly before the current one. The
// ordered index has no backward pointers, so this costs a fresh top-down
// search from head rather than O(1) — acceptable since spec §4.1 exposes
// find_lt for exactly this purpose and says nothing about Prev being cheap.
func (it *Iterator) Prev() {
	if it.current == nil {
		return
	}
	it.current = it.mt.index.FindLT(it.current)
}

func (it *Iterator) Valid() bool { return it.current != nil }

func (it *Iterator) Key() record.InternalKey {
	return record.DecodeEntryKey(it.current)
}

func (it *Iterator) Value() []byte {
	rec, _, err := record.Decode(it.current, it.mt.opts.ProtectionBytesPerKey)
	if err != nil {
		return nil
	}
	return rec.Value
}
