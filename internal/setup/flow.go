// Package setup is the configuration flow for connecting to a controller:
// collect credentials, validate them against the live device, collect options,
// commit. Re-authentication and reconfiguration re-enter the credential step
// without losing the committed options.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/lom"
)

// State names the step the flow is waiting on.
type State string

const (
	StateCredentials State = "credentials"
	StateOptions     State = "options"
	StateCommitted   State = "committed"
)

// Flow outcome errors. ErrCannotConnect and ErrInvalidAuth keep the flow in
// the credential step so the caller can correct the input and resubmit.
var (
	ErrCannotConnect = errors.New("cannot connect to controller")
	ErrInvalidAuth   = errors.New("controller rejected the credentials")
	ErrInvalidState  = errors.New("step not valid in current state")
)

// Credentials is the connection half of the configuration.
type Credentials struct {
	Host     string
	Username string
	Password string
}

// Options is the behavior half, adjustable without re-validating the
// connection.
type Options struct {
	ScanInterval time.Duration
	EnableWrites bool
}

// Validator probes a candidate connection with one real read.
type Validator func(ctx context.Context, c Credentials) error

// Flow is the setup state machine. Safe for concurrent use; the poller's
// auth-failure callback may fire while an operator drives the flow.
type Flow struct {
	mu       sync.Mutex
	state    State
	creds    Credentials
	opts     Options
	validate Validator
	lastErr  error
	logger   *slog.Logger
}

// New creates a flow waiting for credentials.
func New(validate Validator, logger *slog.Logger) *Flow {
	return &Flow{
		state:    StateCredentials,
		validate: validate,
		logger:   logger,
	}
}

// State returns the step the flow is waiting on.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastError returns why the flow last fell back to the credential step, or nil.
func (f *Flow) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// SubmitCredentials validates the candidate connection. On success the flow
// advances to the options step; on failure it stays on credentials and returns
// ErrCannotConnect or ErrInvalidAuth so the caller can tell the two apart.
func (f *Flow) SubmitCredentials(ctx context.Context, c Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateCredentials {
		return fmt.Errorf("%w: %s", ErrInvalidState, f.state)
	}
	if c.Host == "" {
		f.lastErr = fmt.Errorf("%w: host is required", ErrCannotConnect)
		return f.lastErr
	}

	if err := f.validate(ctx, c); err != nil {
		f.lastErr = classifyProbeError(err)
		f.logger.Warn("connection validation failed", "host", c.Host, "error", f.lastErr)
		return f.lastErr
	}

	f.creds = c
	f.lastErr = nil
	f.state = StateOptions
	f.logger.Info("connection validated", "host", c.Host, "username", c.Username)
	return nil
}

// SubmitOptions stores the options and commits the flow.
func (f *Flow) SubmitOptions(o Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateOptions {
		return fmt.Errorf("%w: %s", ErrInvalidState, f.state)
	}
	f.opts = o
	f.state = StateCommitted
	f.logger.Info("setup committed",
		"scan_interval", o.ScanInterval,
		"writes_enabled", o.EnableWrites)
	return nil
}

// Reconfigure re-enters the credential step. The committed options survive and
// are reused when the new credentials commit.
func (f *Flow) Reconfigure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCredentials
	f.logger.Info("reconfiguration requested")
}

// Reauthenticate is the entry point for the poller's auth-failure callback. It
// is the same fallback as Reconfigure but records why.
func (f *Flow) Reauthenticate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCredentials
	f.lastErr = ErrInvalidAuth
	f.logger.Warn("re-authentication required")
}

// Result returns the committed credentials and options.
func (f *Flow) Result() (Credentials, Options, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateCommitted {
		return Credentials{}, Options{}, fmt.Errorf("%w: %s", ErrInvalidState, f.state)
	}
	return f.creds, f.opts, nil
}

// classifyProbeError folds client error kinds into the two outcomes the
// credential step distinguishes. The original error is kept in the chain.
func classifyProbeError(err error) error {
	switch {
	case errors.Is(err, lom.ErrAuthRejected):
		return fmt.Errorf("%w: %v", ErrInvalidAuth, err)
	default:
		return fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
}

// ConnectionProbe builds a Validator that reads the first enabled catalog
// entry with a short-lived client. One successful value proves host,
// credentials and firmware format in a single request.
func ConnectionProbe(cat *catalog.Catalog, timeout time.Duration, logger *slog.Logger) Validator {
	return func(ctx context.Context, c Credentials) error {
		ids := cat.EnabledIDs()
		if len(ids) == 0 {
			return errors.New("catalog has no enabled entries to probe with")
		}
		client := lom.NewClient(c.Host, c.Username, c.Password, timeout, logger)
		_, err := client.ReadValues(ctx, ids[:1])
		return err
	}
}
