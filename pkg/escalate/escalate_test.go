package escalate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestResolveIsolated(t *testing.T) {
	yes, no := true, false

	assert.True(t, ResolveIsolated(&yes, fakeEnv(nil)), "override wins")
	assert.False(t, ResolveIsolated(&no, fakeEnv(map[string]string{IsolatedEnv: "1"})), "override beats env")
	assert.True(t, ResolveIsolated(nil, fakeEnv(map[string]string{IsolatedEnv: "1"})))
	assert.True(t, ResolveIsolated(nil, fakeEnv(map[string]string{IsolatedEnv: "true"})))
	assert.False(t, ResolveIsolated(nil, fakeEnv(map[string]string{IsolatedEnv: "0"})))
	assert.False(t, ResolveIsolated(nil, fakeEnv(nil)), "default is false")
}

func TestPolicy_DecisionTable(t *testing.T) {
	tests := []struct {
		name     string
		runtime  RuntimeContext
		expected Decision
	}{
		{"isolated", RuntimeContext{Isolated: true}, DecisionRestartInstance},
		{"isolated with force restart", RuntimeContext{Isolated: true, ForceRestart: true}, DecisionRestartInstance},
		{"shared host with force restart", RuntimeContext{ForceRestart: true}, DecisionRestartHost},
		{"shared host", RuntimeContext{}, DecisionDegrade},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPolicy(tc.runtime, time.Millisecond)
			assert.Equal(t, tc.expected, p.Decide())
		})
	}
}

func TestPolicy_IsolatedExitsWithInstanceCode(t *testing.T) {
	p := NewPolicy(RuntimeContext{Isolated: true}, time.Millisecond)
	exitCh := make(chan int, 1)
	p.SetExitFunc(func(code int) { exitCh <- code })

	decision := p.Escalate(errors.New("login exhausted"))
	assert.Equal(t, DecisionRestartInstance, decision)

	select {
	case code := <-exitCh:
		assert.Equal(t, ExitRestartInstance, code)
	case <-time.After(time.Second):
		t.Fatal("exit was not scheduled")
	}
}

func TestPolicy_ForceRestartExitsWithHostCode(t *testing.T) {
	p := NewPolicy(RuntimeContext{ForceRestart: true}, time.Millisecond)
	exitCh := make(chan int, 1)
	p.SetExitFunc(func(code int) { exitCh <- code })

	decision := p.Escalate(errors.New("login exhausted"))
	assert.Equal(t, DecisionRestartHost, decision)

	select {
	case code := <-exitCh:
		assert.Equal(t, ExitRestartHost, code)
	case <-time.After(time.Second):
		t.Fatal("exit was not scheduled")
	}
}

func TestPolicy_DegradeNeverExits(t *testing.T) {
	p := NewPolicy(RuntimeContext{}, time.Millisecond)
	exitCh := make(chan int, 1)
	p.SetExitFunc(func(code int) { exitCh <- code })

	decision := p.Escalate(errors.New("login exhausted"))
	assert.Equal(t, DecisionDegrade, decision)

	select {
	case code := <-exitCh:
		t.Fatalf("unexpected exit with code %d", code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPolicy_ExitScheduledOnce(t *testing.T) {
	p := NewPolicy(RuntimeContext{Isolated: true}, time.Millisecond)
	exitCh := make(chan int, 4)
	p.SetExitFunc(func(code int) { exitCh <- code })

	p.Escalate(errors.New("first"))
	p.Escalate(errors.New("second"))
	p.Escalate(errors.New("third"))

	time.Sleep(50 * time.Millisecond)
	require.Len(t, exitCh, 1, "exactly one exit scheduled")
}

func TestPolicy_GraceDelayObserved(t *testing.T) {
	const grace = 40 * time.Millisecond
	p := NewPolicy(RuntimeContext{Isolated: true}, grace)
	exitCh := make(chan int, 1)
	p.SetExitFunc(func(code int) { exitCh <- code })

	start := time.Now()
	p.Escalate(errors.New("login exhausted"))

	select {
	case <-exitCh:
		assert.GreaterOrEqual(t, time.Since(start), grace)
	case <-time.After(time.Second):
		t.Fatal("exit was not scheduled")
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "degrade", DecisionDegrade.String())
	assert.Equal(t, "restart-instance", DecisionRestartInstance.String())
	assert.Equal(t, "restart-host", DecisionRestartHost.String())
	assert.Equal(t, "unknown", Decision(99).String())
}
