package memtable

import (
	"bytes"
	"testing"

	"ordkv/pkg/clock"
	"ordkv/pkg/config"
	"ordkv/pkg/types"
)

func newTestMemtable(t *testing.T, opts config.EngineOptions, merge MergeOperator) *Memtable {
	t.Helper()
	return New(opts, clock.NewManual(0), merge, 4<<20)
}

func TestAddAndGetRoundTrip(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), nil)

	if err := mt.Add(1, types.KindValue, []byte("a"), []byte("apple"), false, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := mt.Add(2, types.KindValue, []byte("b"), []byte("banana"), false, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	v, found, _, err := mt.Get([]byte("a"), types.MaxSequenceNumber, true)
	if err != nil || !found || !bytes.Equal(v, []byte("apple")) {
		t.Fatalf("Get(a) = (%q, %v, %v), want apple/true/nil", v, found, err)
	}

	if _, found, _, _ := mt.Get([]byte("missing"), types.MaxSequenceNumber, true); found {
		t.Fatal("Get(missing) should not be found")
	}

	if mt.NumEntries() != 2 {
		t.Fatalf("NumEntries() = %d, want 2", mt.NumEntries())
	}
}

func TestGetHonorsReadSnapshot(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), nil)
	mt.Add(1, types.KindValue, []byte("k"), []byte("v1"), false, nil)
	mt.Add(5, types.KindValue, []byte("k"), []byte("v5"), false, nil)

	v, found, _, err := mt.Get([]byte("k"), 1, true)
	if err != nil || !found || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("Get at seq=1 = (%q, %v, %v), want v1/true/nil", v, found, err)
	}

	v, found, _, err = mt.Get([]byte("k"), types.MaxSequenceNumber, true)
	if err != nil || !found || !bytes.Equal(v, []byte("v5")) {
		t.Fatalf("Get at max seq = (%q, %v, %v), want v5/true/nil", v, found, err)
	}
}

// TestDeletionShadowsValue exercises spec §8's scenario where a later
// deletion record must hide an earlier value for the same key.
func TestDeletionShadowsValue(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), nil)
	mt.Add(1, types.KindValue, []byte("k"), []byte("v1"), false, nil)
	mt.Add(2, types.KindDeletion, []byte("k"), nil, false, nil)

	_, found, _, err := mt.Get([]byte("k"), types.MaxSequenceNumber, true)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if found {
		t.Fatal("Get should report not-found after a later deletion")
	}

	// The value is still visible to a snapshot taken before the deletion.
	v, found, _, err := mt.Get([]byte("k"), 1, true)
	if err != nil || !found || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("Get at seq=1 = (%q, %v, %v), want v1/true/nil", v, found, err)
	}
}

type concatMerge struct{}

func (concatMerge) FullMerge(key []byte, existing []byte, operands [][]byte) ([]byte, bool) {
	out := append([]byte{}, existing...)
	for _, op := range operands {
		out = append(out, op...)
	}
	return out, true
}

// TestMergeChain exercises spec §8's merge-operand accumulation scenario:
// a base value followed by several merge records combines in order.
func TestMergeChain(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), concatMerge{})
	mt.Add(1, types.KindValue, []byte("k"), []byte("a"), false, nil)
	mt.Add(2, types.KindMerge, []byte("k"), []byte("b"), false, nil)
	mt.Add(3, types.KindMerge, []byte("k"), []byte("c"), false, nil)

	v, found, _, err := mt.Get([]byte("k"), types.MaxSequenceNumber, true)
	if err != nil || !found {
		t.Fatalf("Get = (%q, %v, %v)", v, found, err)
	}
	if string(v) != "abc" {
		t.Fatalf("merged value = %q, want abc", v)
	}
}

// TestMergeInProgressWithoutBase exercises the terminal case where a merge
// chain never reaches a base value or deletion.
func TestMergeInProgressWithoutBase(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), concatMerge{})
	mt.Add(1, types.KindMerge, []byte("k"), []byte("a"), false, nil)

	_, found, mctx, err := mt.Get([]byte("k"), types.MaxSequenceNumber, true)
	if found {
		t.Fatal("Get should not report found for an unresolved merge chain")
	}
	if err == nil {
		t.Fatal("Get should report an error for an unresolved merge chain")
	}
	if mctx == nil || len(mctx.Operands()) != 1 {
		t.Fatalf("expected one accumulated operand, got %v", mctx)
	}
}

func TestRangeDeletionCoversKey(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), nil)
	mt.Add(1, types.KindValue, []byte("m"), []byte("v1"), false, nil)
	mt.Add(2, types.KindRangeDeletion, []byte("a"), []byte("z"), false, nil)

	_, found, _, err := mt.Get([]byte("m"), types.MaxSequenceNumber, true)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if found {
		t.Fatal("range deletion covering the key should hide it")
	}
}

func TestFlushStateMachine(t *testing.T) {
	mt := New(config.Default(), clock.NewManual(0), nil, 1)
	if mt.FlushState() != "not_requested" {
		t.Fatalf("initial FlushState() = %q, want not_requested", mt.FlushState())
	}

	mt.Add(1, types.KindValue, []byte("k"), []byte("v"), false, nil)
	if !mt.ShouldFlushNow() {
		t.Fatal("ShouldFlushNow should be true once arena usage exceeds the write-buffer target")
	}
	if mt.FlushState() != "requested" {
		t.Fatalf("FlushState() after ShouldFlushNow = %q, want requested", mt.FlushState())
	}

	if !mt.MarkFlushScheduled() {
		t.Fatal("first MarkFlushScheduled should succeed")
	}
	if mt.MarkFlushScheduled() {
		t.Fatal("second MarkFlushScheduled should be a no-op returning false")
	}
}

func TestRefCounting(t *testing.T) {
	mt := newTestMemtable(t, config.Default(), nil)
	if mt.RefCount() != 1 {
		t.Fatalf("initial RefCount() = %d, want 1", mt.RefCount())
	}
	mt.Ref()
	if mt.RefCount() != 2 {
		t.Fatalf("RefCount() after Ref = %d, want 2", mt.RefCount())
	}
	if mt.Unref() {
		t.Fatal("Unref with an outstanding reference should not report last-release")
	}
	if !mt.Unref() {
		t.Fatal("final Unref should report last-release")
	}
}
