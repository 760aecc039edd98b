package operation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// DefaultTimeout is the default per-operation deadline.
const DefaultTimeout = 5 * time.Second

// TimeoutError is delivered to a caller whose operation did not complete
// within its deadline. It is caller-facing only: the underlying operation
// keeps running in the background and does not affect session state.
type TimeoutError struct {
	// Kind is the timed-out operation's type.
	Kind Kind

	// Timeout is the deadline that elapsed.
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Kind, e.Timeout)
}

// Supervisor wraps scheduled operations with a deadline and guarantees
// exactly one response per call.
type Supervisor struct {
	scheduler *Scheduler
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSupervisor creates a supervisor submitting to scheduler with the given
// per-operation timeout. timeout <= 0 selects DefaultTimeout.
func NewSupervisor(scheduler *Scheduler, timeout time.Duration) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Supervisor{
		scheduler: scheduler,
		timeout:   timeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the operational logger.
func (s *Supervisor) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Do submits one operation and waits for the first of: completion, the
// per-operation deadline, or ctx cancellation. Exactly one outcome is
// delivered; when the deadline or ctx wins, the operation itself keeps
// running in the background and its late outcome is logged by the
// scheduler.
func (s *Supervisor) Do(ctx context.Context, kind Kind, value bool) (bool, error) {
	resCh := make(chan Result, 1)
	req := NewRequest(kind, value, func(res Result) {
		resCh <- res
	})

	if err := s.scheduler.Submit(req); err != nil {
		return false, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res.Value, res.Err

	case <-timer.C:
		if req.claim() {
			terr := &TimeoutError{Kind: kind, Timeout: s.timeout}
			s.logger.Warn("operation deadline elapsed, abandoning wait",
				"kind", kind.String(),
				"timeout", s.timeout)
			return false, terr
		}
		// The operation won the race a moment before the deadline; its
		// result is already on the channel.
		res := <-resCh
		return res.Value, res.Err

	case <-ctx.Done():
		if req.claim() {
			return false, ctx.Err()
		}
		res := <-resCh
		return res.Value, res.Err
	}
}
