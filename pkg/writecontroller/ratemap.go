package writecontroller

import "github.com/zhangyunhao116/skipmap"

// RegisterRateMap introduces a new rate-tracking source under dbID — the
// supplemented multi-database feature from original_source's
// AddToDbRateMap/RemoveFromDbRateMap: one controller instance can aggregate
// rate requests from several independent sources (originally column
// families within possibly several logical databases), each identified by
// an opaque uint64 the caller assigns.
func (c *Controller) RegisterRateMap(dbID uint64) {
	c.rateMaps.LoadOrStore(dbID, skipmap.NewUint64[uint64]())
}

// UnregisterRateMap removes dbID's tracked sources, dropping their
// contribution to the delayed-write-rate count and recomputing the rate
// from whatever sources remain (original_source's RemoveFromDbRateMap).
func (c *Controller) UnregisterRateMap(dbID uint64) {
	m, ok := c.rateMaps.LoadAndDelete(dbID)
	if !ok {
		return
	}
	n := m.Len()
	if n > 0 {
		c.totalDelayed.Add(-int32(n))
		c.SetDelayedWriteRate(c.mapMinRate())
	}
	c.maybeResetCounters()
}

// UpdateRate records sourceID's desired write rate under dbID and recomputes
// the controller's delayed rate as the minimum across every live source
// from every registered database (original_source's HandleNewDelayReq).
// It does nothing unless the controller was built with dynamicDelay.
func (c *Controller) UpdateRate(dbID, sourceID, rate uint64) {
	if !c.dynamicDelay {
		return
	}
	m, ok := c.rateMaps.Load(dbID)
	if !ok {
		return
	}
	wasMin := c.isMinRate(m, sourceID)
	_, existed := m.LoadOrStore(sourceID, rate)
	if existed {
		m.Store(sourceID, rate)
	} else {
		c.totalDelayed.Add(1)
	}

	min := c.DelayedWriteRate()
	switch {
	case rate <= min:
		min = rate
	case wasMin:
		min = c.mapMinRate()
	}
	c.SetDelayedWriteRate(min)
}

// RemoveRate drops sourceID's entry from dbID's rate map (original_source's
// HandleRemoveDelayReq), recomputing the minimum rate if it was the one
// currently in force.
func (c *Controller) RemoveRate(dbID, sourceID uint64) {
	m, ok := c.rateMaps.Load(dbID)
	if !ok {
		return
	}
	if _, present := m.Load(sourceID); !present {
		return
	}
	wasMin := c.isMinRate(m, sourceID)
	m.Delete(sourceID)
	c.totalDelayed.Add(-1)
	if wasMin {
		c.SetDelayedWriteRate(c.mapMinRate())
	}
	c.maybeResetCounters()
}

// mapMinRate returns the minimum rate across every source in every
// registered database's rate map, falling back to MaxDelayedWriteRate if
// no source is currently registered (original_source's GetMapMinRate).
func (c *Controller) mapMinRate() uint64 {
	min := c.MaxDelayedWriteRate()
	c.rateMaps.Range(func(_ uint64, m *skipmap.Uint64Map[uint64]) bool {
		m.Range(func(_ uint64, rate uint64) bool {
			if rate < min {
				min = rate
			}
			return true
		})
		return true
	})
	return min
}

func (c *Controller) isMinRate(m *skipmap.Uint64Map[uint64], sourceID uint64) bool {
	rate, ok := m.Load(sourceID)
	if !ok {
		return false
	}
	return rate <= c.DelayedWriteRate()
}

func (c *Controller) maybeResetCounters() {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	if c.totalDelayed.Load() == 0 {
		c.nextRefillMicros = 0
		c.creditBytes = 0
	}
}
