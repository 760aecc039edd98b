package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaylink-protocol/relaylink-go/pkg/log"
	"github.com/relaylink-protocol/relaylink-go/pkg/transport"
)

// Session errors.
var (
	// ErrShutdown is returned to callers once the manager has been shut
	// down; no further login attempts occur.
	ErrShutdown = errors.New("session manager shut down")
)

// DefaultMaxAttempts is the default login attempt cap per sequence.
const DefaultMaxAttempts = 5

// SessionError indicates a login attempt sequence exhausted its retries.
// It is terminal and an escalation candidate.
type SessionError struct {
	// Attempts is the number of login attempts made.
	Attempts int

	// Err is the final attempt's failure.
	Err error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("login failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's failure.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// RefreshFunc performs an on-demand out-of-band credential refresh without
// reconnecting (the login loop retries itself). Wired when dynamic
// credential mode is enabled.
type RefreshFunc func(ctx context.Context) error

// Config holds session manager configuration.
type Config struct {
	// MaxAttempts caps login attempts per sequence (default 5).
	MaxAttempts int

	// Backoff configures the retry delay progression.
	Backoff BackoffConfig

	// DeviceAddr is recorded on emitted events.
	DeviceAddr string
}

// Manager owns the connect/retry/backoff state machine for one device
// session. At most one login attempt sequence is in flight: concurrent
// EnsureConnected callers await the same pending handle.
type Manager struct {
	mu sync.Mutex

	state   State
	tr      transport.Transport
	backoff *Backoff

	maxAttempts int
	deviceAddr  string

	// refresh is optional; nil disables in-loop credential refresh.
	refresh RefreshFunc

	// onTerminal receives the terminal SessionError after retry exhaustion.
	onTerminal func(error)

	// pending is the shared in-flight login handle. Nil when no sequence
	// is running.
	pending *pendingLogin

	// connID identifies the current authenticated session (UUID).
	connID string

	logger *slog.Logger
	events log.Logger

	shutdownCh chan struct{}
	closed     bool
}

// pendingLogin is the shared in-flight login handle. Concurrent callers
// block on done and then observe err.
type pendingLogin struct {
	done chan struct{}
	err  error
}

// NewManager creates a session manager. Invalid config fields fall back to
// defaults.
func NewManager(tr transport.Transport, cfg Config) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{
		state:       StateDisconnected,
		tr:          tr,
		backoff:     NewBackoffWithConfig(cfg.Backoff),
		maxAttempts: cfg.MaxAttempts,
		deviceAddr:  cfg.DeviceAddr,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:      log.NoopLogger{},
		shutdownCh:  make(chan struct{}),
	}
}

// SetRefreshFunc enables in-loop credential refresh on credential-class
// login failures.
func (m *Manager) SetRefreshFunc(fn RefreshFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh = fn
}

// SetTerminalHandler sets the callback invoked with the terminal
// SessionError after retry exhaustion (the failure escalation hook).
func (m *Manager) SetTerminalHandler(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTerminal = fn
}

// SetLogger sets the operational logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger != nil {
		m.logger = logger
	}
}

// SetEventLogger sets the session event logger.
func (m *Manager) SetEventLogger(events log.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if events != nil {
		m.events = events
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConnID returns the current session's connection ID, or "" when no
// authenticated session is live.
func (m *Manager) ConnID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connID
}

// EnsureConnected returns nil once an authenticated session is live. If a
// login sequence is already in flight, the caller awaits that same sequence
// and observes its outcome (single-flight). Otherwise a new attempt sequence
// starts: per-attempt login with exponential backoff, in-loop credential
// refresh on credential-class failures, and a terminal SessionError after
// the attempt cap.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShutdown
	}
	if m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	if p := m.pending; p != nil {
		m.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		case <-m.shutdownCh:
			return ErrShutdown
		}
	}

	p := &pendingLogin{done: make(chan struct{})}
	m.pending = p
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.emitStateChange(old, StateConnecting, "login")

	err := m.connectLoop(ctx)

	m.mu.Lock()
	p.err = err
	m.pending = nil
	m.mu.Unlock()
	close(p.done)

	return err
}

// connectLoop runs one login attempt sequence.
func (m *Manager) connectLoop(ctx context.Context) error {
	attempt := 1
	refreshed := false
	for {
		if err := m.checkAborted(ctx); err != nil {
			return err
		}

		err := m.tr.Login(ctx)
		if err == nil {
			m.mu.Lock()
			m.connID = uuid.NewString()
			m.backoff.Reset()
			old := m.state
			m.state = StateReady
			connID := m.connID
			m.mu.Unlock()

			m.emitStateChange(old, StateReady, "login")
			m.logger.Info("session ready",
				"conn_id", connID,
				"attempt", attempt)
			return nil
		}

		m.logger.Warn("login attempt failed",
			"attempt", attempt,
			"max_attempts", m.maxAttempts,
			"error", err)

		// A rejected credential can often be cured by an out-of-band
		// refresh; a successful refresh retries the login immediately
		// without consuming an attempt or waiting out the backoff. At most
		// one refresh per sequence: a credential failure after a successful
		// refresh falls through to the normal attempt counting, so the
		// sequence still exhausts and escalates instead of looping.
		if !refreshed && transport.IsCredentialError(err) && m.refreshFunc() != nil {
			if rerr := m.refreshFunc()(ctx); rerr == nil {
				refreshed = true
				m.logger.Info("credential refreshed, retrying login immediately",
					"attempt", attempt)
				continue
			} else {
				m.logger.Warn("on-demand credential refresh failed",
					"error", rerr)
			}
		}

		if attempt >= m.maxAttempts {
			serr := &SessionError{Attempts: attempt, Err: err}
			m.failTerminal(serr)
			return serr
		}

		delay := m.backoff.Next()
		m.logger.Debug("waiting before next login attempt",
			"delay", delay,
			"next_attempt", attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.abortSequence("login-cancelled")
			return ctx.Err()
		case <-m.shutdownCh:
			m.abortSequence("shutdown")
			return ErrShutdown
		}
		attempt++
	}
}

// refreshFunc returns the configured refresh callback.
func (m *Manager) refreshFunc() RefreshFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

// checkAborted reports shutdown or context cancellation at an attempt
// boundary.
func (m *Manager) checkAborted(ctx context.Context) error {
	select {
	case <-m.shutdownCh:
		m.abortSequence("shutdown")
		return ErrShutdown
	case <-ctx.Done():
		m.abortSequence("login-cancelled")
		return ctx.Err()
	default:
		return nil
	}
}

// abortSequence transitions back to Disconnected when a sequence stops
// without either success or terminal failure.
func (m *Manager) abortSequence(reason string) {
	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateDisconnected
	m.mu.Unlock()
	m.emitStateChange(old, StateDisconnected, reason)
}

// failTerminal records retry exhaustion and hands the terminal error to the
// escalation hook.
func (m *Manager) failTerminal(serr *SessionError) {
	m.mu.Lock()
	old := m.state
	m.state = StateFailed
	m.connID = ""
	onTerminal := m.onTerminal
	m.mu.Unlock()

	m.emitStateChange(old, StateFailed, "retries-exhausted")
	m.logger.Error("login retries exhausted",
		"attempts", serr.Attempts,
		"error", serr.Err)

	if onTerminal != nil {
		onTerminal(serr)
	}
}

// Invalidate transitions Ready -> Disconnected. Called when the credential
// changes: a live session authenticated with the old credential must never
// serve another operation. No-op in any other state.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateDisconnected
	m.connID = ""
	m.mu.Unlock()

	m.emitStateChange(old, StateDisconnected, "credential-change")
	m.logger.Info("session invalidated after credential change")
}

// NotifyConnectionLost transitions Ready -> Disconnected when the transport
// reports a lost connection; the next operation re-establishes the session.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateDisconnected
	m.connID = ""
	m.mu.Unlock()

	m.emitStateChange(old, StateDisconnected, "connection-lost")
}

// Shutdown stops the manager: the retry loop aborts at its next boundary,
// subsequent EnsureConnected calls fail with ErrShutdown, and the transport
// connection is released. Safe to call multiple times.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.shutdownCh)
	old := m.state
	m.state = StateClosed
	m.connID = ""
	m.mu.Unlock()

	m.emitStateChange(old, StateClosed, "shutdown")
	return m.tr.Close()
}

// emitStateChange records a state transition on the event log.
func (m *Manager) emitStateChange(from, to State, reason string) {
	if from == to {
		return
	}
	m.mu.Lock()
	events := m.events
	connID := m.connID
	m.mu.Unlock()

	events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		DeviceAddr:   m.deviceAddr,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}
