// Package collector implements the Prometheus collector interface over the
// poller's snapshot.
package collector

import (
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/poller"
)

// BridgeCollector renders the current snapshot as Prometheus metrics. Collect
// only reads the snapshot; the poller owns all network traffic, so a scrape
// never reaches the controller.
type BridgeCollector struct {
	catalog *catalog.Catalog
	poller  *poller.Poller
	logger  *slog.Logger
	metrics *MetricSet
}

// NewBridgeCollector creates a collector over the given poller.
func NewBridgeCollector(cat *catalog.Catalog, p *poller.Poller, logger *slog.Logger) *BridgeCollector {
	return &BridgeCollector{
		catalog: cat,
		poller:  p,
		logger:  logger,
		metrics: newMetricSet(),
	}
}

// Describe implements prometheus.Collector.
func (c *BridgeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.metrics.value
	ch <- c.metrics.state
	ch <- c.metrics.snapshotAge
	ch <- c.metrics.pollHealthy
	ch <- c.metrics.pollCycles
	ch <- c.metrics.pollFailures
}

// Collect implements prometheus.Collector.
func (c *BridgeCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.poller.Snapshot()

	for _, entry := range c.catalog.Entries() {
		if !entry.Enabled {
			continue
		}
		value, ok := snap.Get(entry.DeviceID())
		if !ok {
			continue
		}
		if len(entry.ValueMap) > 0 {
			c.emitState(ch, entry, value)
			continue
		}
		c.emitValue(ch, entry, value)
	}

	c.emitPollHealth(ch, snap)
}

// emitValue emits one numeric gauge. Snapshot values are display strings, so
// non-numeric ones are skipped rather than reported.
func (c *BridgeCollector) emitValue(ch chan<- prometheus.Metric, entry catalog.Entry, value string) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		c.logger.Debug("skipping non-numeric value", "key", entry.Key, "value", value)
		return
	}
	ch <- prometheus.MustNewConstMetric(
		c.metrics.value, prometheus.GaugeValue, f,
		entry.Key, entry.DeviceID(), entry.Group, entry.Unit,
	)
}

// emitState emits a one-hot series across the entry's mapped states.
func (c *BridgeCollector) emitState(ch chan<- prometheus.Metric, entry catalog.Entry, current string) {
	seen := make(map[string]bool, len(entry.ValueMap))
	for _, label := range entry.ValueMap {
		if seen[label] {
			continue
		}
		seen[label] = true

		v := 0.0
		if label == current {
			v = 1.0
		}
		ch <- prometheus.MustNewConstMetric(
			c.metrics.state, prometheus.GaugeValue, v,
			entry.Key, entry.DeviceID(), entry.Group, label,
		)
	}
}

// emitPollHealth emits the snapshot age, the last-cycle health bit and the
// cycle counters.
func (c *BridgeCollector) emitPollHealth(ch chan<- prometheus.Metric, snap *poller.Snapshot) {
	if !snap.FetchedAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(
			c.metrics.snapshotAge, prometheus.GaugeValue, snap.Age().Seconds(),
		)
	}

	healthy := 1.0
	if c.poller.LastError() != nil {
		healthy = 0.0
	}
	ch <- prometheus.MustNewConstMetric(c.metrics.pollHealthy, prometheus.GaugeValue, healthy)

	polls, failures := c.poller.Stats()
	ch <- prometheus.MustNewConstMetric(c.metrics.pollCycles, prometheus.CounterValue, float64(polls))
	ch <- prometheus.MustNewConstMetric(c.metrics.pollFailures, prometheus.CounterValue, float64(failures))
}
