// Package prom implements pkg/metrics.Collector with
// github.com/prometheus/client_golang, grounded on
// sajjad-MoBe-CloudKVStore's internal/api/metrics.go: promauto-registered
// vectors, one per metric name, label sets supplied at call time rather
// than fixed at construction (that repo fixes its label names per metric;
// here the memtable and write controller call sites choose their own
// label keys, so vectors are created lazily the first time a name is
// observed and cached by name; every later call for that name must supply
// the same label keys).
package prom

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ordkv/pkg/metrics"
)

// Collector is a prometheus-backed metrics.Collector. Construct one per
// process (it registers against the default registry, matching the
// teacher pack's own promauto usage).
type Collector struct {
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

var _ metrics.Collector = (*Collector)(nil)

func (c *Collector) IncCounter(name string, labels map[string]string, delta float64) {
	keys, values := sortLabels(labels)
	c.mu.Lock()
	v, ok := c.counters[name]
	if !ok {
		v = promauto.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, keys)
		c.counters[name] = v
	}
	c.mu.Unlock()
	v.WithLabelValues(values...).Add(delta)
}

func (c *Collector) SetGauge(name string, labels map[string]string, value float64) {
	keys, values := sortLabels(labels)
	c.mu.Lock()
	v, ok := c.gauges[name]
	if !ok {
		v = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, keys)
		c.gauges[name] = v
	}
	c.mu.Unlock()
	v.WithLabelValues(values...).Set(value)
}

func (c *Collector) ObserveHistogram(name string, labels map[string]string, value float64) {
	keys, values := sortLabels(labels)
	c.mu.Lock()
	v, ok := c.histograms[name]
	if !ok {
		v = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		c.histograms[name] = v
	}
	c.mu.Unlock()
	v.WithLabelValues(values...).Observe(value)
}

// sortLabels returns a label's keys and values in a stable order, since a
// CounterVec's label names are fixed at creation and every subsequent call
// for that metric name must supply the same key set in the same order.
func sortLabels(labels map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}

// MetricName joins a package-scoped prefix and a short name, matching the
// underscore convention client_golang requires ("storage_size_bytes" etc).
func MetricName(parts ...string) string {
	return strings.Join(parts, "_")
}
