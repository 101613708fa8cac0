// Package catalog loads the declarative table of LOM320 data points and how to
// display, poll and transform them.
package catalog

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Platforms an entry may be rendered as.
const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"
	PlatformNumber       = "number"
	PlatformSelect       = "select"
	PlatformSwitch       = "switch"
)

var validPlatforms = map[string]bool{
	PlatformSensor:       true,
	PlatformBinarySensor: true,
	PlatformNumber:       true,
	PlatformSelect:       true,
	PlatformSwitch:       true,
}

// Entry describes one controller data point.
//
// Key is the internal identity used by the service layer and the HTTP API.
// Name is the display label; it defaults to Key when omitted so the two can be
// set independently.
type Entry struct {
	Key       string            `yaml:"key"`
	Name      string            `yaml:"name"`
	ID        int               `yaml:"id"`
	Enabled   bool              `yaml:"enabled"`
	Platform  string            `yaml:"platform"`
	Group     string            `yaml:"group"`
	Unit      string            `yaml:"unit"`
	Icon      string            `yaml:"icon"`
	Writable  bool              `yaml:"writable"`
	Min       *float64          `yaml:"min"`
	Max       *float64          `yaml:"max"`
	Step      *float64          `yaml:"step"`
	ValueMap  map[string]string `yaml:"value_map"`
	Precision *int              `yaml:"precision"`
}

// DeviceID returns the wire form of the numeric ID.
func (e Entry) DeviceID() string {
	return strconv.Itoa(e.ID)
}

// Transform applies the entry's declared value transform to a raw value string.
// A value_map lookup wins; a raw value missing from the map passes through
// unchanged. Otherwise numeric values are rounded to the declared precision.
// Non-numeric values are returned as-is.
func (e Entry) Transform(raw string) string {
	if len(e.ValueMap) > 0 {
		if mapped, ok := e.ValueMap[raw]; ok {
			return mapped
		}
		return raw
	}

	if e.Precision != nil {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		p := *e.Precision
		shift := math.Pow10(p)
		return strconv.FormatFloat(math.Round(f*shift)/shift, 'f', p, 64)
	}

	return raw
}

// Catalog is the read-only set of catalog entries, in file order.
type Catalog struct {
	entries []Entry
	byKey   map[string]int
	byID    map[string]int
}

type catalogFile struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads and validates a catalog file. Any malformed entry is fatal; there
// is no partial-catalog mode.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw YAML.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("catalog has no entries")
	}

	c := &Catalog{
		entries: f.Entries,
		byKey:   make(map[string]int, len(f.Entries)),
		byID:    make(map[string]int, len(f.Entries)),
	}

	for i := range c.entries {
		e := &c.entries[i]
		if e.Key == "" {
			return nil, fmt.Errorf("catalog entry %d: missing key", i)
		}
		if e.ID <= 0 {
			return nil, fmt.Errorf("catalog entry %q: missing or invalid id", e.Key)
		}
		if !validPlatforms[e.Platform] {
			return nil, fmt.Errorf("catalog entry %q: unknown platform %q", e.Key, e.Platform)
		}
		if e.Name == "" {
			e.Name = e.Key
		}
		if _, dup := c.byKey[e.Key]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate key", e.Key)
		}
		if _, dup := c.byID[e.DeviceID()]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate id %d", e.Key, e.ID)
		}
		c.byKey[e.Key] = i
		c.byID[e.DeviceID()] = i
	}

	return c, nil
}

// Entries returns all entries in file order.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// EnabledIDs returns the device IDs of all enabled entries, in file order.
// Only these IDs are ever polled or written.
func (c *Catalog) EnabledIDs() []string {
	ids := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Enabled {
			ids = append(ids, e.DeviceID())
		}
	}
	return ids
}

// ByKey looks up an entry by its internal key.
func (c *Catalog) ByKey(key string) (Entry, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// ByID looks up an entry by its wire device ID.
func (c *Catalog) ByID(id string) (Entry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
