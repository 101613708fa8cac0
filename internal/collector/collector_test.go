package collector

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/poller"
)

const testCatalogYAML = `
entries:
  - key: heat_pump_state
    id: 297
    enabled: true
    platform: sensor
    group: heat_pump
    value_map:
      "0": "off"
      "5": heating
  - key: outdoor_temp
    id: 253
    enabled: true
    platform: sensor
    group: temperatures
    unit: "°C"
    precision: 1
  - key: disabled_temp
    id: 260
    enabled: false
    platform: sensor
`

type fakeReader struct {
	values map[string]string
}

func (f *fakeReader) ReadValues(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if v, ok := f.values[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestCollectRendersSnapshot(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(discard{}, nil))

	reader := &fakeReader{values: map[string]string{"297": "5", "253": "21.44"}}
	p := poller.New(reader, cat, time.Minute, time.Second, poller.DefaultChunkSize, logger)
	p.Refresh(context.Background())

	c := NewBridgeCollector(cat, p, logger)

	want := `
# HELP svklom_poll_cycles_total Total number of poll cycles attempted
# TYPE svklom_poll_cycles_total counter
svklom_poll_cycles_total 1
# HELP svklom_poll_failures_total Total number of failed poll cycles
# TYPE svklom_poll_failures_total counter
svklom_poll_failures_total 0
# HELP svklom_poll_healthy Last poll cycle succeeded (1) or failed (0)
# TYPE svklom_poll_healthy gauge
svklom_poll_healthy 1
# HELP svklom_state Mapped entry state one-hot (1 for current, 0 for others)
# TYPE svklom_state gauge
svklom_state{group="heat_pump",id="297",key="heat_pump_state",state="heating"} 1
svklom_state{group="heat_pump",id="297",key="heat_pump_state",state="off"} 0
# HELP svklom_value Current numeric value of a catalog entry
# TYPE svklom_value gauge
svklom_value{group="temperatures",id="253",key="outdoor_temp",unit="°C"} 21.4
`
	err = testutil.CollectAndCompare(c, strings.NewReader(want),
		"svklom_value", "svklom_state", "svklom_poll_healthy",
		"svklom_poll_cycles_total", "svklom_poll_failures_total")
	if err != nil {
		t.Errorf("CollectAndCompare() error = %v", err)
	}
}

func TestCollectBeforeFirstPoll(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	logger := slog.New(slog.NewTextHandler(discard{}, nil))

	p := poller.New(&fakeReader{}, cat, time.Minute, time.Second, poller.DefaultChunkSize, logger)
	c := NewBridgeCollector(cat, p, logger)

	// No values and no snapshot age yet, only the health series.
	want := `
# HELP svklom_poll_healthy Last poll cycle succeeded (1) or failed (0)
# TYPE svklom_poll_healthy gauge
svklom_poll_healthy 1
`
	err = testutil.CollectAndCompare(c, strings.NewReader(want),
		"svklom_value", "svklom_state", "svklom_snapshot_age_seconds", "svklom_poll_healthy")
	if err != nil {
		t.Errorf("CollectAndCompare() error = %v", err)
	}
}
