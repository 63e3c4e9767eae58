// Package writecontroller implements the credit-bucket write admission
// controller from spec §4.3: stop/delay/compaction-pressure tokens, and a
// token-bucket GetDelay that throttles writers to a configured byte rate.
//
// The algorithm is a direct port of original_source/db/write_controller.cc's
// WriteController::GetDelay: same fast CAS path, same mutex-guarded refill,
// same "over budget" branch computing a sleep duration from the shortfall.
// Units stay in microseconds throughout, matching the original; the only
// deliberate deviation is the clock source, made explicit via pkg/clock
// (spec §9's Open Question on now_micros_monotonic's units).
package writecontroller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"ordkv/pkg/clock"
	"ordkv/pkg/metrics"
)

const (
	microsPerSecond = 1_000_000
	microsPerRefill = 1_000

	// DefaultDelayedWriteRate matches the original's 16 MiB/s default.
	DefaultDelayedWriteRate uint64 = 16 << 20
)

// Token is released by closing it (the original releases by destructor; Go
// has no destructors, so the caller must Close explicitly, typically via
// defer, the moment the condition the token represents no longer holds).
type Token interface {
	Close()
}

// Controller is the write admission controller. The zero value is not
// usable; construct with New.
type Controller struct {
	totalStopped            atomic.Int32
	totalDelayed            atomic.Int32
	totalCompactionPressure atomic.Int32

	metricsMu        sync.Mutex
	creditBytes      int64
	nextRefillMicros int64
	maxDelayedRate   atomic.Uint64
	delayedRate      atomic.Uint64

	dynamicDelay bool
	clock        clock.Source

	// rateMaps lets several logical sources (column families, or, per the
	// supplemented multi-database feature, whole embedded engine
	// instances) each advertise a desired rate; the controller's delayed
	// rate tracks the minimum live advertisement. Keyed by an opaque dbID
	// the caller chooses; each value maps sourceID to that source's rate.
	rateMaps *skipmap.Uint64Map[*skipmap.Uint64Map[uint64]]

	stopMu sync.Mutex
	stopCV *sync.Cond

	metrics metrics.Collector
}

// SetMetrics attaches a Collector that GetDelay reports through.
func (c *Controller) SetMetrics(m metrics.Collector) { c.metrics = m }

// New returns a Controller. dynamicDelay mirrors Speedb's dynamic-delay
// mode flag: it enables multi-source rate aggregation, and without it
// UpdateRate records nothing. SetDelayedWriteRate clamps to
// max_delayed_write_rate either way. delayedWriteRate <= 0 uses
// DefaultDelayedWriteRate.
func New(dynamicDelay bool, delayedWriteRate uint64, src clock.Source) *Controller {
	if delayedWriteRate == 0 {
		delayedWriteRate = DefaultDelayedWriteRate
	}
	c := &Controller{
		dynamicDelay: dynamicDelay,
		clock:        src,
		rateMaps:     skipmap.NewUint64[*skipmap.Uint64Map[uint64]](),
	}
	c.stopCV = sync.NewCond(&c.stopMu)
	c.setMaxDelayedWriteRate(delayedWriteRate)
	return c
}

// GetStopToken blocks all writers until the returned token is closed.
func (c *Controller) GetStopToken() Token {
	c.totalStopped.Add(1)
	return &stopToken{c: c}
}

// GetDelayToken switches the controller into delay mode at writeRate bytes
// per second until the returned token is closed. Starting the first delay
// token resets the credit bucket, exactly as the original does, so a stale
// credit balance computed under a different rate never leaks into the new
// regime.
func (c *Controller) GetDelayToken(writeRate uint64) Token {
	if c.totalDelayed.Add(1) == 1 {
		c.metricsMu.Lock()
		c.nextRefillMicros = 0
		c.creditBytes = 0
		c.metricsMu.Unlock()
	}
	c.SetDelayedWriteRate(writeRate)
	return &delayToken{c: c}
}

// GetCompactionPressureToken signals that compaction can't keep up; callers
// typically use NeedSpeedupCompaction to decide whether to grow the
// compaction thread pool.
func (c *Controller) GetCompactionPressureToken() Token {
	c.totalCompactionPressure.Add(1)
	return &pressureToken{c: c}
}

func (c *Controller) IsStopped() bool         { return c.totalStopped.Load() > 0 }
func (c *Controller) NeedsDelay() bool        { return c.totalDelayed.Load() > 0 }
func (c *Controller) NeedSpeedupCompaction() bool {
	return c.IsStopped() || c.NeedsDelay() || c.totalCompactionPressure.Load() > 0
}

func (c *Controller) SetDelayedWriteRate(rate uint64) {
	if rate == 0 {
		rate = 1
	} else if max := c.maxDelayedRate.Load(); rate > max {
		rate = max
	}
	c.delayedRate.Store(rate)
}

func (c *Controller) setMaxDelayedWriteRate(rate uint64) {
	if rate == 0 {
		rate = 1
	}
	c.maxDelayedRate.Store(rate)
	c.delayedRate.Store(rate)
}

func (c *Controller) DelayedWriteRate() uint64    { return c.delayedRate.Load() }
func (c *Controller) MaxDelayedWriteRate() uint64 { return c.maxDelayedRate.Load() }

// GetDelay returns how long the caller should sleep before admitting a
// write of numBytes. It never blocks itself; the caller owns the sleep (or,
// in this port, may instead select on ctx to abandon the wait).
func (c *Controller) GetDelay(numBytes uint64) int64 {
	if c.totalStopped.Load() > 0 {
		return 0
	}
	if c.totalDelayed.Load() == 0 {
		return 0
	}

	for {
		credits := atomic.LoadInt64(&c.creditBytes)
		if uint64(credits) < numBytes {
			break
		}
		if atomic.CompareAndSwapInt64(&c.creditBytes, credits, credits-int64(numBytes)) {
			return 0
		}
	}

	now := c.clock.NowMicros()

	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()

	if uint64(c.creditBytes) >= numBytes {
		c.creditBytes -= int64(numBytes)
		return 0
	}

	if c.nextRefillMicros == 0 {
		c.nextRefillMicros = now
	}
	if c.nextRefillMicros <= now {
		elapsed := now - c.nextRefillMicros + microsPerRefill
		rate := int64(c.delayedRate.Load())
		c.creditBytes += int64(float64(elapsed)/microsPerSecond*float64(rate) + 0.999999)
		c.nextRefillMicros = now + microsPerRefill

		if uint64(c.creditBytes) >= numBytes {
			c.creditBytes -= int64(numBytes)
			return 0
		}
	}

	bytesOverBudget := numBytes - uint64(c.creditBytes)
	rate := c.delayedRate.Load()
	neededDelay := int64(float64(bytesOverBudget) / float64(rate) * microsPerSecond)

	c.creditBytes = 0
	c.nextRefillMicros += neededDelay

	var delay int64 = microsPerRefill
	if d := c.nextRefillMicros - now; d > microsPerRefill {
		delay = d
	}
	if c.metrics != nil {
		c.metrics.ObserveHistogram("ordkv_write_delay_micros", nil, float64(delay))
	}
	return delay
}

// WaitOnCV blocks the calling goroutine until either the controller is no
// longer stopped or ctx is done, whichever comes first. Unlike the
// original's ErrorHandler-gated wait, this port has no background-error
// plumbing (that lives outside the Non-goals boundary of spec §1); ctx
// cancellation is the only other exit.
func (c *Controller) WaitOnCV(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		c.stopMu.Lock()
		close(done)
		c.stopCV.Broadcast()
		c.stopMu.Unlock()
	}()

	c.stopMu.Lock()
	for c.IsStopped() {
		select {
		case <-done:
			c.stopMu.Unlock()
			return ctx.Err()
		default:
		}
		c.stopCV.Wait()
	}
	c.stopMu.Unlock()
	return nil
}

func (c *Controller) notifyCV() {
	c.stopMu.Lock()
	c.totalStopped.Add(-1)
	c.stopMu.Unlock()
	c.stopCV.Broadcast()
}

type stopToken struct {
	c        *Controller
	released atomic.Bool
}

func (t *stopToken) Close() {
	if t.released.CompareAndSwap(false, true) {
		t.c.notifyCV()
	}
}

type delayToken struct {
	c        *Controller
	released atomic.Bool
}

func (t *delayToken) Close() {
	if t.released.CompareAndSwap(false, true) {
		t.c.totalDelayed.Add(-1)
	}
}

type pressureToken struct {
	c        *Controller
	released atomic.Bool
}

func (t *pressureToken) Close() {
	if t.released.CompareAndSwap(false, true) {
		t.c.totalCompactionPressure.Add(-1)
	}
}
