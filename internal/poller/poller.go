// Package poller drives the periodic refresh of the controller value snapshot.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/lom"
)

// DefaultChunkSize bounds one read request. The LOM320 truncates query strings
// past roughly this many IDs; the boundary carries no other meaning.
const DefaultChunkSize = 25

// Reader is the read half of the controller client.
type Reader interface {
	ReadValues(ctx context.Context, ids []string) (map[string]string, error)
}

// Poller refreshes the snapshot on a fixed interval. Ticks never overlap: a
// refresh requested while one is in flight is skipped, not queued.
type Poller struct {
	client    Reader
	catalog   *catalog.Catalog
	interval  time.Duration
	timeout   time.Duration
	chunkSize int
	logger    *slog.Logger

	// onAuthFailure is invoked after repeated auth rejections so credentials
	// can be refreshed without a full reconfiguration.
	onAuthFailure func()

	snapshot atomic.Pointer[Snapshot]
	lastErr  atomic.Pointer[pollError]
	polls    atomic.Uint64
	failures atomic.Uint64

	inFlight sync.Mutex
}

type pollError struct {
	err error
	at  time.Time
}

// New creates a poller over the enabled catalog entries. The timeout applies
// to each chunk request independently of the poll interval.
func New(client Reader, cat *catalog.Catalog, interval, timeout time.Duration, chunkSize int, logger *slog.Logger) *Poller {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	p := &Poller{
		client:    client,
		catalog:   cat,
		interval:  interval,
		timeout:   timeout,
		chunkSize: chunkSize,
		logger:    logger,
	}
	p.snapshot.Store(&Snapshot{Values: map[string]string{}})
	return p
}

// SetReauthFunc installs the hook fired on repeated authentication failures.
func (p *Poller) SetReauthFunc(f func()) {
	p.onAuthFailure = f
}

// Snapshot returns the current snapshot. Never nil.
func (p *Poller) Snapshot() *Snapshot {
	return p.snapshot.Load()
}

// LastError returns the most recent transient fetch failure, or nil when the
// last cycle succeeded in full.
func (p *Poller) LastError() error {
	if pe := p.lastErr.Load(); pe != nil {
		return pe.err
	}
	return nil
}

// Stats returns the total and failed poll cycle counts.
func (p *Poller) Stats() (polls, failures uint64) {
	return p.polls.Load(), p.failures.Load()
}

// Run polls until the context is cancelled. The first refresh happens
// immediately so readers have data before the first full interval elapses.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started",
		"interval", p.interval,
		"timeout", p.timeout,
		"chunk_size", p.chunkSize,
		"enabled_ids", len(p.catalog.EnabledIDs()))

	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh runs one poll cycle now. It returns false when a cycle was already
// in flight and this one was skipped.
func (p *Poller) Refresh(ctx context.Context) bool {
	if !p.inFlight.TryLock() {
		p.logger.Debug("poll already in flight, skipping")
		return false
	}
	defer p.inFlight.Unlock()

	p.polls.Add(1)
	if err := p.pollOnce(ctx); err != nil {
		p.failures.Add(1)
		p.lastErr.Store(&pollError{err: err, at: time.Now()})
		p.logger.Warn("poll cycle failed, keeping previous snapshot", "error", err)
	} else {
		p.lastErr.Store(nil)
	}
	return true
}

// pollOnce fetches all enabled IDs in bounded chunks, applies catalog
// transforms and replaces the snapshot. A chunk failure does not invalidate
// chunks that succeeded: their values are merged over the previous snapshot
// and the cycle is still reported as a transient failure. If every chunk
// fails the previous snapshot is left untouched.
func (p *Poller) pollOnce(ctx context.Context) error {
	ids := p.catalog.EnabledIDs()
	if len(ids) == 0 {
		return nil
	}

	fetched := make(map[string]string)
	var firstErr error
	succeeded := 0

	for _, chunk := range chunkIDs(ids, p.chunkSize) {
		values, err := p.readChunk(ctx, chunk)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			p.logger.Debug("chunk read failed", "ids", len(chunk), "error", err)
			continue
		}
		succeeded++
		for id, raw := range values {
			fetched[id] = raw
		}
	}

	p.notifyAuthFailure(firstErr)

	if succeeded == 0 {
		return fmt.Errorf("all chunks failed: %w", firstErr)
	}

	prev := p.snapshot.Load()
	next := &Snapshot{
		Values:    make(map[string]string, len(ids)),
		FetchedAt: time.Now(),
	}
	for _, id := range ids {
		raw, ok := fetched[id]
		if !ok {
			// Carried from the previous snapshot; already transformed.
			if old, stale := prev.Values[id]; stale {
				next.Values[id] = old
			}
			continue
		}
		entry, known := p.catalog.ByID(id)
		if !known {
			continue
		}
		next.Values[id] = entry.Transform(raw)
	}
	p.snapshot.Store(next)

	if firstErr != nil {
		return fmt.Errorf("partial poll: %w", firstErr)
	}
	return nil
}

// readChunk issues one bounded read with its own request timeout.
func (p *Poller) readChunk(ctx context.Context, ids []string) (map[string]string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.ReadValues(reqCtx, ids)
}

// notifyAuthFailure fires the re-authentication hook when a cycle was
// auth-rejected. The digest transport already retried once with a fresh
// challenge inside the cycle, so a surfaced rejection is a confirmed
// credential failure, not a stale nonce.
func (p *Poller) notifyAuthFailure(err error) {
	if err == nil || !errors.Is(err, lom.ErrAuthRejected) {
		return
	}
	if p.onAuthFailure != nil {
		p.logger.Warn("authentication rejected, triggering re-authentication")
		p.onAuthFailure()
	}
}

// chunkIDs splits ids into runs of at most size, preserving order.
func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}
