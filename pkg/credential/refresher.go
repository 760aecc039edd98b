package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relaylink-protocol/relaylink-go/pkg/log"
)

// Refresh errors.
var (
	// ErrNoCredential indicates the out-of-band channel returned nothing.
	ErrNoCredential = errors.New("out-of-band channel returned no credential")
)

// RefreshError indicates an out-of-band credential refresh failed.
// It is an escalation candidate.
type RefreshError struct {
	Err error
}

// Error implements the error interface.
func (e *RefreshError) Error() string {
	return fmt.Sprintf("credential refresh failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RefreshError) Unwrap() error {
	return e.Err
}

// DefaultRefreshInterval is the default period for autonomous refresh runs.
const DefaultRefreshInterval = 5 * time.Minute

// Fetcher retrieves a fresh credential over the out-of-band side channel.
// Satisfied by transport.Transport.
type Fetcher interface {
	FetchCredential(ctx context.Context) (string, error)
}

// SessionControl is the session-manager surface the Refresher drives after a
// successful refresh: a changed credential invalidates any live session, so
// the session must transition Ready -> Disconnected and then reconnect.
type SessionControl interface {
	Invalidate()
	EnsureConnected(ctx context.Context) error
}

// Refresher coordinates out-of-band credential refresh for one device
// instance. Refresh is single-flight: at most one fetch is in progress, and
// concurrent callers await the same in-flight run and share its outcome.
// Refresher also runs autonomously on a periodic timer when started.
type Refresher struct {
	mu       sync.Mutex
	inflight *refreshCall

	store  *Store
	fetch  Fetcher
	logger *slog.Logger
	events log.Logger

	// session is wired after the session manager is constructed.
	session SessionControl

	// onFailure receives refresh failures from the periodic timer (the only
	// refresh path outside an operation's own error handling).
	onFailure func(error)

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
	wg       sync.WaitGroup
}

// refreshCall is the shared in-flight handle. Concurrent callers block on
// done and then observe err.
type refreshCall struct {
	done chan struct{}
	err  error
}

// NewRefresher creates a Refresher. interval <= 0 selects
// DefaultRefreshInterval.
func NewRefresher(store *Store, fetch Fetcher, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		store:    store,
		fetch:    fetch,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:   log.NoopLogger{},
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SetSession wires the session manager. Must be called before Refresh.
func (r *Refresher) SetSession(s SessionControl) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = s
}

// SetLogger sets the operational logger.
func (r *Refresher) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger != nil {
		r.logger = logger
	}
}

// SetEventLogger sets the session event logger.
func (r *Refresher) SetEventLogger(events log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if events != nil {
		r.events = events
	}
}

// SetFailureHandler sets the callback invoked when an autonomous (periodic)
// refresh fails. Failures of on-demand refreshes are returned to the caller
// instead.
func (r *Refresher) SetFailureHandler(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFailure = fn
}

// Refresh fetches a new credential, stores it, invalidates the live session,
// and reconnects. Single-flight: a caller that finds a refresh in progress
// awaits it and observes its outcome.
func (r *Refresher) Refresh(ctx context.Context) error {
	if err := r.refresh(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.EnsureConnected(ctx)
}

// RefreshToken fetches and stores a new credential and invalidates the live
// session, without reconnecting. This is the entry point for the session
// manager's own login loop, which retries the login itself immediately after
// a successful refresh; calling Refresh there would re-enter the pending
// login handle and deadlock.
func (r *Refresher) RefreshToken(ctx context.Context) error {
	return r.refresh(ctx)
}

// refresh runs (or joins) the single-flight fetch+store+invalidate sequence.
func (r *Refresher) refresh(ctx context.Context) error {
	r.mu.Lock()
	if call := r.inflight; call != nil {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	r.inflight = call
	events := r.events
	r.mu.Unlock()

	events.Log(log.Event{
		Timestamp:  time.Now(),
		Category:   log.CategoryCredential,
		Credential: &log.CredentialEvent{Action: "refresh-started"},
	})

	call.err = r.doRefresh(ctx)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()
	close(call.done)

	return call.err
}

// doRefresh performs the actual fetch, store, and session invalidation.
func (r *Refresher) doRefresh(ctx context.Context) error {
	token, err := r.fetch.FetchCredential(ctx)
	if err != nil {
		r.logRefreshFailed(err)
		return &RefreshError{Err: err}
	}
	if token == "" {
		r.logRefreshFailed(ErrNoCredential)
		return &RefreshError{Err: ErrNoCredential}
	}

	r.store.Set(token)

	r.mu.Lock()
	session := r.session
	logger := r.logger
	events := r.events
	r.mu.Unlock()

	if session != nil {
		session.Invalidate()
	}

	fp := r.store.Fingerprint()
	logger.Info("credential refreshed", "fingerprint", fp)
	events.Log(log.Event{
		Timestamp:  time.Now(),
		Category:   log.CategoryCredential,
		Credential: &log.CredentialEvent{Action: "refreshed", Fingerprint: fp},
	})
	return nil
}

func (r *Refresher) logRefreshFailed(err error) {
	r.mu.Lock()
	logger := r.logger
	events := r.events
	r.mu.Unlock()

	logger.Warn("credential refresh failed", "error", err)
	events.Log(log.Event{
		Timestamp:  time.Now(),
		Category:   log.CategoryCredential,
		Credential: &log.CredentialEvent{Action: "refresh-failed"},
	})
}

// Start launches the periodic refresh loop. A tick that finds a refresh
// already in progress is skipped, not queued; the in-progress run already
// captures the intent. Start is a no-op when called twice.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
}

// Stop cancels the periodic refresh loop and waits for it to exit.
// Safe to call multiple times and without a prior Start.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()
}

// run is the periodic refresh loop.
func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.mu.Lock()
			busy := r.inflight != nil
			onFailure := r.onFailure
			r.mu.Unlock()
			if busy {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			err := r.Refresh(ctx)
			cancel()
			if err != nil && onFailure != nil {
				var re *RefreshError
				if errors.As(err, &re) {
					onFailure(err)
				}
			}
		}
	}
}
