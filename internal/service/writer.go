// Package service gates and validates writes to the controller.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/lom"
)

// Errors the transport layer dispatches on.
var (
	// ErrWritesDisabled is returned before any network traffic when the
	// write-enable flag is off.
	ErrWritesDisabled = errors.New("writes are disabled")

	// ErrEntityNotFound means the target matched no catalog key or device ID.
	ErrEntityNotFound = errors.New("unknown entity")

	// ErrNotWritable means the catalog entry exists but is read-only.
	ErrNotWritable = errors.New("entity is not writable")

	// ErrInvalidValue means the value failed catalog validation.
	ErrInvalidValue = errors.New("invalid value")
)

// WriteError reports a write that passed validation but failed against the
// controller. Reason is a stable short string for API responses; the wrapped
// error keeps errors.Is matching intact.
type WriteError struct {
	Target string
	Reason string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %q failed: %s: %v", e.Target, e.Reason, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer is the write half of the controller client.
type Writer interface {
	WriteValue(ctx context.Context, id, value string) error
}

// WriteService validates write requests against the catalog before letting
// them reach the controller. All writes pass through here; nothing else in the
// program calls the client's write path.
type WriteService struct {
	client  Writer
	catalog *catalog.Catalog
	enabled bool
	logger  *slog.Logger
}

// NewWriteService creates the service. enabled mirrors the operator's
// write-enable setting; when false every write fails without network traffic.
func NewWriteService(client Writer, cat *catalog.Catalog, enabled bool, logger *slog.Logger) *WriteService {
	return &WriteService{
		client:  client,
		catalog: cat,
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether writes are allowed.
func (s *WriteService) Enabled() bool {
	return s.enabled
}

// Write sets one catalog entry, addressed by internal key or device ID, to a
// new value. The value is validated and translated to its wire form before a
// single write request is issued.
func (s *WriteService) Write(ctx context.Context, target, value string) error {
	return s.WriteMany(ctx, []string{target}, value)
}

// WriteMany applies the same value to several targets. Every target is
// validated before the first request goes out, so one bad target aborts the
// whole batch without side effects. Targets resolving to the same catalog
// entry, such as a key and its device ID, are written once. Writes are issued
// sequentially; the first controller failure stops the batch.
func (s *WriteService) WriteMany(ctx context.Context, targets []string, value string) error {
	type pending struct {
		entry catalog.Entry
		wire  string
	}

	batch := make([]pending, 0, len(targets))
	seen := make(map[int]bool, len(targets))
	for _, target := range targets {
		entry, ok := s.catalog.ByKey(target)
		if !ok {
			entry, ok = s.catalog.ByID(target)
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrEntityNotFound, target)
		}
		if seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true
		if !s.enabled {
			return fmt.Errorf("%w: refusing to write %q", ErrWritesDisabled, entry.Key)
		}
		if !entry.Writable {
			return fmt.Errorf("%w: %q", ErrNotWritable, entry.Key)
		}
		wire, err := wireValue(entry, value)
		if err != nil {
			return err
		}
		batch = append(batch, pending{entry: entry, wire: wire})
	}

	for _, p := range batch {
		if err := s.client.WriteValue(ctx, p.entry.DeviceID(), p.wire); err != nil {
			return &WriteError{Target: p.entry.Key, Reason: reasonFor(err), Err: err}
		}
		s.logger.Info("wrote value", "key", p.entry.Key, "id", p.entry.ID, "value", p.wire)
	}
	return nil
}

// reasonFor maps a client error to the short reason put in API responses.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, lom.ErrTimeout):
		return "timeout"
	case errors.Is(err, lom.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, lom.ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, lom.ErrNotFound):
		return "not_found"
	default:
		return "controller_error"
	}
}

// wireValue validates a requested value against the entry's catalog
// constraints and returns the string to put on the wire. For mapped entries
// the display label is translated back to its raw code; a raw code already in
// the map is accepted as-is. Numeric entries are bounds-checked.
func wireValue(e catalog.Entry, value string) (string, error) {
	if len(e.ValueMap) > 0 {
		for raw, label := range e.ValueMap {
			if value == label {
				return raw, nil
			}
		}
		if _, ok := e.ValueMap[value]; ok {
			return value, nil
		}
		return "", fmt.Errorf("%w: %q is not an option for %q", ErrInvalidValue, value, e.Key)
	}

	if e.Min != nil || e.Max != nil {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not numeric", ErrInvalidValue, value)
		}
		if e.Min != nil && f < *e.Min {
			return "", fmt.Errorf("%w: %v below minimum %v for %q", ErrInvalidValue, f, *e.Min, e.Key)
		}
		if e.Max != nil && f > *e.Max {
			return "", fmt.Errorf("%w: %v above maximum %v for %q", ErrInvalidValue, f, *e.Max, e.Key)
		}
	}

	return value, nil
}
