package bloom

import "testing"

func TestFilterNeverFalseNegative(t *testing.T) {
	f := New(4096, DefaultHashCount)
	keys := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma"), []byte("delta")}
	for _, k := range keys {
		f.Add(k)
	}
	for _, k := range keys {
		if !f.MayContain(k) {
			t.Fatalf("MayContain(%q) = false after Add, want true", k)
		}
	}
}

func TestDisabledFilterAlwaysContains(t *testing.T) {
	f := New(0, 0)
	if f.Enabled() {
		t.Fatal("Filter built with bits<=0 should report Enabled() = false")
	}
	if !f.MayContain([]byte("anything")) {
		t.Fatal("a disabled filter must always report MayContain = true")
	}
}

func TestFilterCanReportAbsence(t *testing.T) {
	f := New(1<<16, DefaultHashCount)
	f.Add([]byte("present"))

	falseFound := false
	for i := 0; i < 1000; i++ {
		key := []byte{byte(i), byte(i >> 8), 'x'}
		if !f.MayContain(key) {
			falseFound = true
			break
		}
	}
	if !falseFound {
		t.Fatal("expected at least one definitive absence among 1000 probes on a lightly loaded filter")
	}
}
