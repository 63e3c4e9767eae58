package skiplist

import (
	"bytes"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
)

func bytesCmp(a, b []byte) int { return bytes.Compare(a, b) }

func TestInsertAndFindGE(t *testing.T) {
	l := New(bytesCmp)
	keys := []string{"b", "d", "f", "h"}
	for _, k := range keys {
		if !l.Insert([]byte(k), nil, false) {
			t.Fatalf("insert %q: expected success", k)
		}
	}

	cases := []struct {
		probe string
		want  string
	}{
		{"a", "b"},
		{"b", "b"},
		{"c", "d"},
		{"h", "h"},
		{"i", ""},
	}
	for _, c := range cases {
		got := l.FindGE([]byte(c.probe))
		if c.want == "" {
			if got != nil {
				t.Errorf("FindGE(%q) = %q, want nil", c.probe, got)
			}
			continue
		}
		if string(got) != c.want {
			t.Errorf("FindGE(%q) = %q, want %q", c.probe, got, c.want)
		}
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	l := New(bytesCmp)
	if !l.Insert([]byte("x"), nil, false) {
		t.Fatal("first insert of x should succeed")
	}
	if l.Insert([]byte("x"), nil, false) {
		t.Fatal("duplicate insert of x should fail")
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
}

func TestSequentialInsertWithSplice(t *testing.T) {
	l := New(bytesCmp)
	splice := NewSplice()
	for i := 0; i < 1000; i++ {
		k := []byte(fmt.Sprintf("key-%05d", i))
		if !l.Insert(k, splice, false) {
			t.Fatalf("insert %s failed", k)
		}
	}
	if l.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", l.Len())
	}

	// Level 0 must thread every key in sorted order.
	prev := l.FindFirst()
	count := 1
	for {
		next := l.FindGT(prev)
		if next == nil {
			break
		}
		if bytes.Compare(prev, next) >= 0 {
			t.Fatalf("keys out of order: %q then %q", prev, next)
		}
		prev = next
		count++
	}
	if count != 1000 {
		t.Fatalf("walked %d keys, want 1000", count)
	}
}

func TestFindLTAndLast(t *testing.T) {
	l := New(bytesCmp)
	for _, k := range []string{"b", "d", "f"} {
		l.Insert([]byte(k), nil, false)
	}
	if got := l.FindLT([]byte("e")); string(got) != "d" {
		t.Errorf("FindLT(e) = %q, want d", got)
	}
	if got := l.FindLT([]byte("b")); got != nil {
		t.Errorf("FindLT(b) = %q, want nil", got)
	}
	if got := l.FindLast(); string(got) != "f" {
		t.Errorf("FindLast() = %q, want f", got)
	}
}

func TestEmptyList(t *testing.T) {
	l := New(bytesCmp)
	if l.FindFirst() != nil {
		t.Error("FindFirst on empty list should be nil")
	}
	if l.FindLast() != nil {
		t.Error("FindLast on empty list should be nil")
	}
	if l.FindGE([]byte("a")) != nil {
		t.Error("FindGE on empty list should be nil")
	}
	if l.FindRandom() != nil {
		t.Error("FindRandom on empty list should be nil")
	}
}

// TestConcurrentInsert mirrors spec §8's concurrency scenario: several
// goroutines racing CAS inserts of disjoint key sets must all land, with
// no corruption of the forward-pointer chain.
func TestConcurrentInsert(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 10000

	l := New(bytesCmp)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			splice := NewSplice()
			r := rand.New(rand.NewSource(int64(id)))
			perm := r.Perm(perGoroutine)
			for _, i := range perm {
				k := []byte(fmt.Sprintf("g%02d-%06d", id, i))
				if !l.Insert(k, splice, true) {
					t.Errorf("goroutine %d: insert %s unexpectedly failed", id, k)
				}
			}
		}(g)
	}
	wg.Wait()

	if want := goroutines * perGoroutine; l.Len() != want {
		t.Fatalf("Len() = %d, want %d", l.Len(), want)
	}

	// Walk the whole list and confirm strictly ascending order with the
	// expected total element count.
	var got []string
	for k := l.FindFirst(); k != nil; k = l.FindGT(k) {
		got = append(got, string(k))
	}
	if len(got) != goroutines*perGoroutine {
		t.Fatalf("walked %d keys, want %d", len(got), goroutines*perGoroutine)
	}
	if !sort.StringsAreSorted(got) {
		t.Fatal("walked keys are not sorted")
	}
}

func TestHeightClampedToMax(t *testing.T) {
	l := NewWithParams(bytesCmp, MaxHeight+50, DefaultBranching)
	if l.kMaxHeight != DefaultMaxHeight {
		t.Fatalf("kMaxHeight = %d, want clamp to %d", l.kMaxHeight, DefaultMaxHeight)
	}
}
