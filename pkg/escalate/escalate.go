// Package escalate decides the restart scope after a terminal failure.
//
// A device instance can run restart-isolated (its own process) or share a
// host process with other instances. The policy maps a terminal failure to
// one of: exit with the instance-restart code, exit with the host-restart
// code, or stay loaded in a degraded state and only log.
package escalate

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/relaylink-protocol/relaylink-go/pkg/log"
)

// Process exit codes signaled to the supervising process manager. They are
// deliberately distinct so the supervisor can restart either just this
// instance or the whole host process.
const (
	// ExitRestartInstance asks the supervisor to restart this instance only.
	ExitRestartInstance = 7

	// ExitRestartHost asks the supervisor to restart the whole host process.
	ExitRestartHost = 9
)

// IsolatedEnv is the environment marker a process supervisor sets when the
// instance runs in its own restart-isolated process.
const IsolatedEnv = "RELAYLINK_ISOLATED"

// DefaultGraceDelay is how long a scheduled exit waits before terminating,
// giving pending log writes and responses time to flush.
const DefaultGraceDelay = 500 * time.Millisecond

// Decision is the action the policy selected for a terminal failure.
type Decision uint8

const (
	// DecisionDegrade stays loaded and only logs the failure.
	DecisionDegrade Decision = iota

	// DecisionRestartInstance exits with ExitRestartInstance.
	DecisionRestartInstance

	// DecisionRestartHost exits with ExitRestartHost.
	DecisionRestartHost
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case DecisionDegrade:
		return "degrade"
	case DecisionRestartInstance:
		return "restart-instance"
	case DecisionRestartHost:
		return "restart-host"
	default:
		return "unknown"
	}
}

// RuntimeContext is the immutable deployment snapshot the policy consults.
type RuntimeContext struct {
	// Isolated is true when this instance runs restart-isolated.
	Isolated bool

	// ForceRestart requests a host restart on terminal failures even when
	// the instance is not isolated.
	ForceRestart bool
}

// ResolveIsolated determines the isolated-instance mode. An explicit
// configuration override wins; otherwise the supervisor-set environment
// marker is consulted; otherwise false. lookupEnv defaults to os.LookupEnv.
func ResolveIsolated(override *bool, lookupEnv func(string) (string, bool)) bool {
	if override != nil {
		return *override
	}
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if v, ok := lookupEnv(IsolatedEnv); ok {
		return v == "1" || v == "true"
	}
	return false
}

// Policy maps terminal failures to a restart decision and carries it out.
// Once an exit is scheduled, further escalations only log.
type Policy struct {
	mu        sync.Mutex
	scheduled bool

	runtime RuntimeContext
	grace   time.Duration

	logger *slog.Logger
	events log.Logger

	// exitFn terminates the process; replaced in tests.
	exitFn func(code int)
}

// NewPolicy creates a policy for the given runtime context. grace <= 0
// selects DefaultGraceDelay.
func NewPolicy(runtime RuntimeContext, grace time.Duration) *Policy {
	if grace <= 0 {
		grace = DefaultGraceDelay
	}
	return &Policy{
		runtime: runtime,
		grace:   grace,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:  log.NoopLogger{},
		exitFn:  os.Exit,
	}
}

// SetLogger sets the operational logger.
func (p *Policy) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetEventLogger sets the session event logger.
func (p *Policy) SetEventLogger(events log.Logger) {
	if events != nil {
		p.events = events
	}
}

// SetExitFunc replaces the process-exit function.
func (p *Policy) SetExitFunc(fn func(code int)) {
	if fn != nil {
		p.exitFn = fn
	}
}

// Decide returns the action for a terminal failure without carrying it out.
func (p *Policy) Decide() Decision {
	switch {
	case p.runtime.Isolated:
		return DecisionRestartInstance
	case p.runtime.ForceRestart:
		return DecisionRestartHost
	default:
		return DecisionDegrade
	}
}

// Escalate handles one terminal failure. Restart decisions schedule a
// process exit after the grace delay; the degrade decision logs and leaves
// the instance loaded. The returned decision reflects what was selected even
// when an earlier escalation already scheduled the exit.
func (p *Policy) Escalate(err error) Decision {
	decision := p.Decide()

	p.events.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error: &log.ErrorEvent{
			Context: "escalation",
			Message: err.Error(),
		},
	})

	if decision == DecisionDegrade {
		p.logger.Error("terminal failure, staying loaded in degraded state",
			"error", err)
		return decision
	}

	p.mu.Lock()
	if p.scheduled {
		p.mu.Unlock()
		p.logger.Error("terminal failure while exit already scheduled",
			"error", err,
			"decision", decision.String())
		return decision
	}
	p.scheduled = true
	p.mu.Unlock()

	code := ExitRestartInstance
	if decision == DecisionRestartHost {
		code = ExitRestartHost
	}

	p.logger.Error("terminal failure, scheduling process exit",
		"error", err,
		"decision", decision.String(),
		"exit_code", code,
		"grace", p.grace)

	go func() {
		time.Sleep(p.grace)
		p.exitFn(code)
	}()

	return decision
}
