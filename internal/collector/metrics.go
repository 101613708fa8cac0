package collector

import "github.com/prometheus/client_golang/prometheus"

// Label names on the per-entry metrics.
const (
	labelKey   = "key"
	labelID    = "id"
	labelGroup = "group"
	labelUnit  = "unit"
	labelState = "state"
)

// MetricSet holds all Prometheus metric descriptors for the bridge.
type MetricSet struct {
	// Per-entry metrics
	value *prometheus.Desc
	state *prometheus.Desc

	// Poll health metrics
	snapshotAge  *prometheus.Desc
	pollHealthy  *prometheus.Desc
	pollCycles   *prometheus.Desc
	pollFailures *prometheus.Desc
}

// newMetricSet creates all metric descriptors.
func newMetricSet() *MetricSet {
	valueLabels := []string{labelKey, labelID, labelGroup, labelUnit}
	stateLabels := []string{labelKey, labelID, labelGroup, labelState}

	return &MetricSet{
		value: prometheus.NewDesc(
			"svklom_value",
			"Current numeric value of a catalog entry",
			valueLabels, nil,
		),
		state: prometheus.NewDesc(
			"svklom_state",
			"Mapped entry state one-hot (1 for current, 0 for others)",
			stateLabels, nil,
		),

		snapshotAge: prometheus.NewDesc(
			"svklom_snapshot_age_seconds",
			"Seconds since the last successful poll",
			nil, nil,
		),
		pollHealthy: prometheus.NewDesc(
			"svklom_poll_healthy",
			"Last poll cycle succeeded (1) or failed (0)",
			nil, nil,
		),
		pollCycles: prometheus.NewDesc(
			"svklom_poll_cycles_total",
			"Total number of poll cycles attempted",
			nil, nil,
		),
		pollFailures: prometheus.NewDesc(
			"svklom_poll_failures_total",
			"Total number of failed poll cycles",
			nil, nil,
		),
	}
}
