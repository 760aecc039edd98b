package operation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/relaylink-protocol/relaylink-go/pkg/log"
	"github.com/relaylink-protocol/relaylink-go/pkg/transport"
)

// Scheduler errors.
var (
	// ErrShutdown rejects requests submitted after shutdown was signaled.
	ErrShutdown = errors.New("operation scheduler shut down")
)

// SessionEnsurer provides a live authenticated session before each
// operation. Satisfied by *session.Manager.
type SessionEnsurer interface {
	EnsureConnected(ctx context.Context) error
}

// Refresher performs an out-of-band credential refresh including
// reconnection. Satisfied by *credential.Refresher. Optional: nil disables
// the mid-operation refresh-and-retry path.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler serializes all device operations into a strict FIFO queue.
// Each request executes only after its predecessor has fully resolved, so
// the transport never sees concurrent calls.
type Scheduler struct {
	mu sync.Mutex

	// tail is the completion channel of the most recently submitted
	// request; the next request waits on it before executing.
	tail chan struct{}

	closed bool

	tr        transport.Transport
	session   SessionEnsurer
	refresher Refresher

	logger *slog.Logger
	events log.Logger

	// ctx bounds background execution; cancelled on shutdown, never by a
	// caller deadline (timeouts are caller-facing only).
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler executing against tr with sessions
// managed by ensurer.
func NewScheduler(tr transport.Transport, ensurer SessionEnsurer) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	// Start with a resolved chain so the first request runs immediately.
	tail := make(chan struct{})
	close(tail)

	return &Scheduler{
		tail:    tail,
		tr:      tr,
		session: ensurer,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:  log.NoopLogger{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetRefresher enables the mid-operation credential refresh-and-retry path.
func (s *Scheduler) SetRefresher(r Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = r
}

// SetLogger sets the operational logger.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetEventLogger sets the session event logger.
func (s *Scheduler) SetEventLogger(events log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if events != nil {
		s.events = events
	}
}

// Submit appends the request to the FIFO queue. It returns ErrShutdown
// (and never enqueues) once shutdown has been signaled. Submission order is
// execution order; a failing predecessor never blocks successors.
func (s *Scheduler) Submit(req *Request) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShutdown
	}
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(done)
		<-prev
		s.execute(req)
	}()

	return nil
}

// Shutdown stops the queue: pending and in-flight requests resolve with
// ErrShutdown as their session or transport calls abort, and new
// submissions are rejected. Blocks until the chain has drained.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// execute runs one request against the session and transport.
func (s *Scheduler) execute(req *Request) {
	start := time.Now()

	if err := s.ctx.Err(); err != nil {
		s.finish(req, start, Result{Err: ErrShutdown})
		return
	}

	if err := s.session.EnsureConnected(s.ctx); err != nil {
		s.finish(req, start, Result{Err: err})
		return
	}

	value, err := s.invoke(req)
	if err != nil && transport.IsCredentialError(err) {
		s.mu.Lock()
		refresher := s.refresher
		logger := s.logger
		s.mu.Unlock()

		if refresher == nil {
			s.finish(req, start, Result{Err: err})
			return
		}

		logger.Info("credential rejected mid-session, refreshing once",
			"kind", req.Kind.String(),
			"error", err)

		if rerr := refresher.Refresh(s.ctx); rerr != nil {
			s.finish(req, start, Result{Err: rerr})
			return
		}

		// Exactly one retry after a successful refresh. A second
		// credential-class failure surfaces as-is and escalates through
		// the caller rather than looping another refresh.
		value, err = s.invoke(req)
	}

	s.finish(req, start, Result{Value: value, Err: err})
}

// invoke dispatches the request to the matching transport operation.
func (s *Scheduler) invoke(req *Request) (bool, error) {
	switch req.Kind {
	case KindRead:
		return s.tr.QueryState(s.ctx)
	case KindWrite:
		return req.Value, s.tr.SetState(s.ctx, req.Value)
	default:
		return false, fmt.Errorf("unknown operation kind %d", req.Kind)
	}
}

// finish delivers the result to the request's sink and records the outcome.
// When the caller has already received a timeout, the late outcome is only
// logged.
func (s *Scheduler) finish(req *Request, start time.Time, res Result) {
	delivered := req.deliver(res)
	elapsed := time.Since(start)

	s.mu.Lock()
	logger := s.logger
	events := s.events
	s.mu.Unlock()

	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
	}
	if !delivered {
		outcome = "late"
		logger.Debug("operation completed after caller timeout",
			"kind", req.Kind.String(),
			"outcome_error", res.Err,
			"duration", elapsed)
	}

	ev := log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryOperation,
		Operation: &log.OperationEvent{
			Kind:       req.Kind.String(),
			Outcome:    outcome,
			DurationMS: elapsed.Milliseconds(),
		},
	}
	if res.Err == nil {
		v := res.Value
		ev.Operation.Value = &v
	}
	events.Log(ev)
}
