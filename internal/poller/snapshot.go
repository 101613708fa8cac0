package poller

import "time"

// Snapshot is the last-known merged set of controller values, keyed by device
// ID, after catalog transforms. It is immutable once published: the poller
// replaces the whole snapshot atomically and readers never mutate it.
type Snapshot struct {
	Values    map[string]string
	FetchedAt time.Time
}

// Get returns the value for a device ID.
func (s *Snapshot) Get(id string) (string, bool) {
	v, ok := s.Values[id]
	return v, ok
}

// Age reports how long ago the snapshot was fetched, or zero if no fetch has
// succeeded yet.
func (s *Snapshot) Age() time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return time.Since(s.FetchedAt)
}
