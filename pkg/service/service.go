// Package service assembles the control session engine for one device and
// exposes the host-facing read/write/shutdown surface.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/relaylink-protocol/relaylink-go/pkg/config"
	"github.com/relaylink-protocol/relaylink-go/pkg/credential"
	"github.com/relaylink-protocol/relaylink-go/pkg/escalate"
	"github.com/relaylink-protocol/relaylink-go/pkg/log"
	"github.com/relaylink-protocol/relaylink-go/pkg/operation"
	"github.com/relaylink-protocol/relaylink-go/pkg/session"
	"github.com/relaylink-protocol/relaylink-go/pkg/transport"
)

// DeviceService wires the credential store, refresh coordinator, session
// manager, operation scheduler, timeout supervisor, and escalation policy
// for exactly one device. It is the only surface the host integration layer
// talks to.
type DeviceService struct {
	store      *credential.Store
	refresher  *credential.Refresher
	manager    *session.Manager
	scheduler  *operation.Scheduler
	supervisor *operation.Supervisor
	policy     *escalate.Policy

	forceRestart bool

	logger *slog.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option customizes service construction.
type Option func(*options)

type options struct {
	logger *slog.Logger
	events log.Logger
	exitFn func(int)
}

// WithLogger sets the operational logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventLogger sets the session event logger for all components.
func WithEventLogger(events log.Logger) Option {
	return func(o *options) { o.events = events }
}

// WithExitFunc replaces the escalation policy's process-exit function.
func WithExitFunc(fn func(int)) Option {
	return func(o *options) { o.exitFn = fn }
}

// New builds a DeviceService from a validated configuration and a device
// transport.
func New(cfg *config.Config, tr transport.Transport, opts ...Option) (*DeviceService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		events: log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	store := credential.NewStore(cfg.Token, cfg.DynamicCredential)

	refresher := credential.NewRefresher(store, tr, cfg.RefreshInterval.Std())
	refresher.SetLogger(o.logger)
	refresher.SetEventLogger(o.events)

	manager := session.NewManager(tr, session.Config{
		MaxAttempts: cfg.MaxAttempts,
		DeviceAddr:  cfg.DeviceAddr,
		Backoff: session.BackoffConfig{
			Initial: cfg.InitialBackoff.Std(),
			Max:     cfg.MaxBackoff.Std(),
		},
	})
	manager.SetLogger(o.logger)
	manager.SetEventLogger(o.events)

	refresher.SetSession(manager)
	if cfg.DynamicCredential {
		manager.SetRefreshFunc(refresher.RefreshToken)
	}

	scheduler := operation.NewScheduler(tr, manager)
	scheduler.SetLogger(o.logger)
	scheduler.SetEventLogger(o.events)
	if cfg.DynamicCredential {
		scheduler.SetRefresher(refresher)
	}

	supervisor := operation.NewSupervisor(scheduler, cfg.OperationTimeout.Std())
	supervisor.SetLogger(o.logger)

	runtime := escalate.RuntimeContext{
		Isolated:     escalate.ResolveIsolated(cfg.Isolated, nil),
		ForceRestart: cfg.ForceRestart,
	}
	policy := escalate.NewPolicy(runtime, cfg.GraceDelay.Std())
	policy.SetLogger(o.logger)
	policy.SetEventLogger(o.events)
	if o.exitFn != nil {
		policy.SetExitFunc(o.exitFn)
	}

	manager.SetTerminalHandler(func(err error) { policy.Escalate(err) })
	refresher.SetFailureHandler(func(err error) { policy.Escalate(err) })

	svc := &DeviceService{
		store:        store,
		refresher:    refresher,
		manager:      manager,
		scheduler:    scheduler,
		supervisor:   supervisor,
		policy:       policy,
		forceRestart: cfg.ForceRestart,
		logger:       o.logger,
	}

	if cfg.DynamicCredential {
		refresher.Start()
	}

	return svc, nil
}

// ReadState queries the device's current state through the scheduler and
// timeout supervisor.
func (s *DeviceService) ReadState(ctx context.Context) (bool, error) {
	value, err := s.supervisor.Do(ctx, operation.KindRead, false)
	if err != nil {
		s.maybeEscalate(err)
		return false, err
	}
	return value, nil
}

// WriteState sets the device's state through the scheduler and timeout
// supervisor.
func (s *DeviceService) WriteState(ctx context.Context, on bool) error {
	_, err := s.supervisor.Do(ctx, operation.KindWrite, on)
	if err != nil {
		s.maybeEscalate(err)
	}
	return err
}

// SessionState returns the session manager's current state.
func (s *DeviceService) SessionState() session.State {
	return s.manager.State()
}

// RefreshCredential forces an immediate out-of-band credential refresh.
func (s *DeviceService) RefreshCredential(ctx context.Context) error {
	return s.refresher.Refresh(ctx)
}

// CredentialFingerprint returns a short digest of the stored credential for
// display; the credential itself is never exposed.
func (s *DeviceService) CredentialFingerprint() string {
	return s.store.Fingerprint()
}

// maybeEscalate forwards unrecoverable operation errors to the escalation
// policy when force-restart is configured. Errors that already escalate
// elsewhere or that are expected caller outcomes are excluded: terminal
// session errors go through the manager's terminal handler, refresh errors
// through the refresher's failure handler, and timeouts, shutdown, and
// context cancellation are not device failures.
func (s *DeviceService) maybeEscalate(err error) {
	if !s.forceRestart {
		return
	}

	var sessionErr *session.SessionError
	var refreshErr *credential.RefreshError
	var timeoutErr *operation.TimeoutError
	switch {
	case errors.As(err, &sessionErr),
		errors.As(err, &refreshErr),
		errors.As(err, &timeoutErr),
		errors.Is(err, operation.ErrShutdown),
		errors.Is(err, session.ErrShutdown),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return
	}

	s.policy.Escalate(err)
}

// Shutdown releases all resources deterministically: stops the periodic
// refresh, drains the scheduler, aborts any retry loop, and closes the
// transport. Safe to call more than once.
func (s *DeviceService) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down device service")
		s.refresher.Stop()
		s.scheduler.Shutdown()
		s.shutdownErr = s.manager.Shutdown()
	})
	return s.shutdownErr
}
