package writecontroller

import (
	"context"
	"testing"
	"time"

	"ordkv/pkg/clock"
)

// TestGetDelayRateLimiting mirrors spec §8's rate-limiting scenario:
// admitting 64 seconds' worth of writes at a fixed rate should accumulate
// roughly 64 seconds of delay, within a second of tolerance. The manual
// clock is advanced by exactly the delay GetDelay reports each round, the
// same way a real caller advances wall time by sleeping.
func TestGetDelayRateLimiting(t *testing.T) {
	const rate = uint64(1 << 20) // 1 MiB/s
	mc := clock.NewManual(0)
	c := New(false, rate, mc)
	tok := c.GetDelayToken(rate)
	defer tok.Close()

	var total int64
	const rounds = 64
	for i := 0; i < rounds; i++ {
		d := c.GetDelay(rate)
		total += d
		mc.Advance(time.Duration(d) * time.Microsecond)
	}

	wantMicros := int64(rounds) * 1_000_000
	diff := total - wantMicros
	if diff < 0 {
		diff = -diff
	}
	if diff > 1_000_000 {
		t.Fatalf("total delay = %dus, want within 1s of %dus", total, wantMicros)
	}
}

func TestGetDelayNoDelayBeforeToken(t *testing.T) {
	mc := clock.NewManual(0)
	c := New(false, 0, mc)
	if d := c.GetDelay(1 << 30); d != 0 {
		t.Fatalf("GetDelay without a delay token = %d, want 0", d)
	}
}

func TestGetDelayZeroWhenStopped(t *testing.T) {
	mc := clock.NewManual(0)
	c := New(false, 1<<10, mc)
	delayTok := c.GetDelayToken(1 << 10)
	defer delayTok.Close()
	stopTok := c.GetStopToken()
	defer stopTok.Close()

	if d := c.GetDelay(1 << 20); d != 0 {
		t.Fatalf("GetDelay while stopped = %d, want 0 (stop takes priority over delay)", d)
	}
}

func TestStopTokenBlocksWaitOnCV(t *testing.T) {
	mc := clock.NewManual(0)
	c := New(false, 0, mc)
	tok := c.GetStopToken()

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- c.WaitOnCV(context.Background())
	}()

	select {
	case <-unblocked:
		t.Fatal("WaitOnCV returned before the stop token was closed")
	case <-time.After(50 * time.Millisecond):
	}

	tok.Close()

	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("WaitOnCV returned error %v after stop cleared", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitOnCV did not unblock after stop token closed")
	}
}

func TestWaitOnCVRespectsContextCancellation(t *testing.T) {
	mc := clock.NewManual(0)
	c := New(false, 0, mc)
	tok := c.GetStopToken()
	defer tok.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.WaitOnCV(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("WaitOnCV should return the context error, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitOnCV did not return after context cancellation")
	}
}

// TestRateMapAggregatesMinimum mirrors spec §8's multi-source aggregation
// scenario: the effective delayed rate always tracks the minimum among
// every live source, regardless of registration order.
func TestRateMapAggregatesMinimum(t *testing.T) {
	mc := clock.NewManual(0)
	c := New(true, 10<<20, mc)
	c.RegisterRateMap(1)

	c.UpdateRate(1, 100, 5<<20)
	if got := c.DelayedWriteRate(); got != 5<<20 {
		t.Fatalf("DelayedWriteRate = %d, want %d", got, 5<<20)
	}

	c.UpdateRate(1, 200, 2<<20)
	if got := c.DelayedWriteRate(); got != 2<<20 {
		t.Fatalf("DelayedWriteRate after lower source = %d, want %d", got, 2<<20)
	}

	// Removing the minimum source should fall back to the next-lowest.
	c.RemoveRate(1, 200)
	if got := c.DelayedWriteRate(); got != 5<<20 {
		t.Fatalf("DelayedWriteRate after removing min = %d, want %d", got, 5<<20)
	}

	c.UnregisterRateMap(1)
}
