// Package record implements the internal-key encoding and on-arena record
// layout described in spec §3 and §6: a user key followed by a 7-byte
// sequence number and a 1-byte kind, ordered by user key ascending, then
// sequence descending, then kind descending, with an optional per-record
// checksum.
//
// The trailer packing (sequence in the high 7 bytes, kind in the low byte,
// little-endian) and the InternalCompare tie-break order mirror
// cockroachdb/pebble's InternalKey, the closest Go-idiomatic analogue to the
// format spec §6 specifies bit-for-bit.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"ordkv/pkg/types"
)

// Trailer packs a sequence number and a kind into the 8 bytes that follow a
// user key in an internal key: low byte is the kind, the upper 7 bytes are
// the sequence number.
type Trailer uint64

func MakeTrailer(seq types.SequenceNumber, kind types.Kind) Trailer {
	return Trailer(uint64(seq)<<8 | uint64(kind))
}

func (t Trailer) SeqNum() types.SequenceNumber { return types.SequenceNumber(t >> 8) }
func (t Trailer) Kind() types.Kind             { return types.Kind(t & 0xff) }

// InternalKey is a user key plus its trailer. It does not own its backing
// bytes; callers that need to retain one past the lifetime of the buffer it
// was decoded from must Clone it.
type InternalKey struct {
	UserKey []byte
	Trailer Trailer
}

// Make builds an internal key from its three logical components.
func Make(userKey []byte, seq types.SequenceNumber, kind types.Kind) InternalKey {
	return InternalKey{UserKey: userKey, Trailer: MakeTrailer(seq, kind)}
}

// SearchKey builds an internal key that sorts before every real internal
// key sharing userKey, for use as a find_ge lower bound (spec §4.2's Get:
// "seek ... to the first internal key >= (user_key, +inf)").
func SearchKey(userKey []byte) InternalKey {
	return Make(userKey, types.MaxSequenceNumber, types.KindMax)
}

func (k InternalKey) SeqNum() types.SequenceNumber { return k.Trailer.SeqNum() }
func (k InternalKey) Kind() types.Kind             { return k.Trailer.Kind() }

// Size is the encoded length of the key: the user key plus an 8-byte
// trailer.
func (k InternalKey) Size() int { return len(k.UserKey) + 8 }

// Encode writes the key into buf, which must be at least k.Size() bytes.
func (k InternalKey) Encode(buf []byte) int {
	n := copy(buf, k.UserKey)
	binary.LittleEndian.PutUint64(buf[n:], uint64(k.Trailer))
	return n + 8
}

// DecodeKey reads an internal key out of buf (the inverse of Encode). The
// returned UserKey aliases buf.
func DecodeKey(buf []byte) InternalKey {
	n := len(buf) - 8
	return InternalKey{
		UserKey: buf[:n],
		Trailer: Trailer(binary.LittleEndian.Uint64(buf[n:])),
	}
}

func (k InternalKey) Clone() InternalKey {
	return InternalKey{UserKey: append([]byte(nil), k.UserKey...), Trailer: k.Trailer}
}

func (k InternalKey) String() string {
	return fmt.Sprintf("%s#%d,%s", k.UserKey, k.SeqNum(), k.Kind())
}

// Compare implements the order spec §3 mandates: user-key ascending, then
// sequence descending, then kind descending. CompareBytes and
// CompareEntries apply it to encoded keys and whole encoded entries.
func Compare(a, b InternalKey) int {
	if c := bytes.Compare(a.UserKey, b.UserKey); c != 0 {
		return c
	}
	if a.Trailer > b.Trailer {
		return -1
	}
	if a.Trailer < b.Trailer {
		return 1
	}
	return 0
}

// CompareBytes compares two bare encoded internal keys (no length prefix,
// no value) without decoding them into InternalKey values first.
func CompareBytes(a, b []byte) int {
	return Compare(DecodeKey(a), DecodeKey(b))
}

// EncodeSearchEntry builds a probe buffer comparable against real
// Encode'd entries by CompareEntries, without allocating from an arena or
// including a value section — callers use this to seek the ordered index
// to a logical (user_key, seq, kind) position without needing a real
// record at hand.
func EncodeSearchEntry(userKey []byte, seq types.SequenceNumber, kind types.Kind) []byte {
	key := Make(userKey, seq, kind)
	keyLen := key.Size()
	buf := make([]byte, uvarintLen(uint64(keyLen))+keyLen)
	n := binary.PutUvarint(buf, uint64(keyLen))
	key.Encode(buf[n:])
	return buf
}

// DecodeEntryKey reads just the internal key out of a full Encode'd entry
// (length-prefixed key, length-prefixed value, optional checksum), without
// touching the value or checksum bytes that follow it.
func DecodeEntryKey(entry []byte) InternalKey {
	keyLen, n := binary.Uvarint(entry)
	return DecodeKey(entry[n : n+int(keyLen)])
}

// CompareEntries is the comparator the memtable's ordered index is built
// with: its nodes store whole Encode'd entries, not bare internal keys, so
// the index's own Comparator must decode the key prefix out of each side
// before applying the same order CompareBytes uses.
func CompareEntries(a, b []byte) int {
	return Compare(DecodeEntryKey(a), DecodeEntryKey(b))
}

// Record is the decoded form of one arena entry: an internal key plus its
// value and, if protection_bytes_per_key > 0, the checksum bytes that were
// stored alongside it.
type Record struct {
	Key      InternalKey
	Value    []byte
	Checksum []byte
}

// Encode serializes (key, value) into the on-wire layout from spec §6:
//
//	[ varint32: internal_key_len ]
//	[ user_key_bytes ][ seq:7 bytes ][ kind:1 byte ]
//	[ varint32: value_len ]
//	[ value_bytes ]
//	[ optional protection_bytes_per_key bytes ]
//
// checksumWidth is the configured protection_bytes_per_key; 0 disables the
// trailing checksum. The returned slice is allocated by alloc, typically an
// arena.Allocate, so the record lives exactly as long as its arena.
func Encode(alloc func(int) []byte, key InternalKey, value []byte, checksumWidth int) []byte {
	keyLen := key.Size()
	total := uvarintLen(uint64(keyLen)) + keyLen + uvarintLen(uint64(len(value))) + len(value) + checksumWidth
	buf := alloc(total)

	n := binary.PutUvarint(buf, uint64(keyLen))
	n += key.Encode(buf[n:])
	n += binary.PutUvarint(buf[n:], uint64(len(value)))
	n += copy(buf[n:], value)
	if checksumWidth > 0 {
		sum := Checksum(key.UserKey, value, checksumWidth)
		copy(buf[n:], sum)
	}
	return buf
}

// Checksum computes a protection_bytes_per_key-wide checksum over a key and
// value. xxhash64 is truncated to the configured width, or its bytes are
// repeated (with the word index added to the digest) if more width is requested than a single
// 64-bit digest provides.
func Checksum(userKey, value []byte, width int) []byte {
	h := xxhash.New()
	_, _ = h.Write(userKey)
	_, _ = h.Write(value)
	digest := h.Sum64()

	out := make([]byte, width)
	for i := 0; i < width; i += 8 {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], digest+uint64(i/8))
		copy(out[i:], word[:])
	}
	return out
}

// Decode parses one arena entry back into its key, value and checksum
// slices, all aliasing buf. checksumWidth must match the width Encode was
// called with.
func Decode(buf []byte, checksumWidth int) (Record, []byte, error) {
	keyLen, n := binary.Uvarint(buf)
	if n <= 0 || keyLen < 8 {
		return Record{}, nil, fmt.Errorf("record: invalid internal_key_len")
	}
	off := n
	key := DecodeKey(buf[off : off+int(keyLen)])
	off += int(keyLen)

	valLen, n2 := binary.Uvarint(buf[off:])
	if n2 <= 0 {
		return Record{}, nil, fmt.Errorf("record: invalid value_len")
	}
	off += n2
	value := buf[off : off+int(valLen)]
	off += int(valLen)

	var checksum []byte
	if checksumWidth > 0 {
		checksum = buf[off : off+checksumWidth]
		off += checksumWidth
	}
	return Record{Key: key, Value: value, Checksum: checksum}, buf[off:], nil
}

// VerifyChecksum recomputes a record's checksum and reports whether it
// matches what was stored; a mismatch is the definition of a Corruption
// error per spec §7.
func VerifyChecksum(r Record) bool {
	if len(r.Checksum) == 0 {
		return true
	}
	want := Checksum(r.Key.UserKey, r.Value, len(r.Checksum))
	return bytes.Equal(want, r.Checksum)
}

func uvarintLen(x uint64) int {
	n := 1
	for x >= 0x80 {
		x >>= 7
		n++
	}
	return n
}
