package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher implements Fetcher with a configurable function.
type fakeFetcher struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (string, error)
}

func (f *fakeFetcher) FetchCredential(ctx context.Context) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

// fakeSession records Invalidate/EnsureConnected calls.
type fakeSession struct {
	mu           sync.Mutex
	invalidated  int
	reconnected  int
	reconnectErr error
}

func (s *fakeSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

func (s *fakeSession) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnected++
	return s.reconnectErr
}

func TestRefresher_Success(t *testing.T) {
	store := NewStore("old", true)
	fetch := &fakeFetcher{fn: func(context.Context) (string, error) { return "new-token", nil }}
	session := &fakeSession{}

	r := NewRefresher(store, fetch, time.Minute)
	r.SetSession(session)

	err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new-token", store.Get())
	assert.Equal(t, 1, session.invalidated, "credential change must invalidate the session")
	assert.Equal(t, 1, session.reconnected, "Refresh must reconnect after storing the token")
}

func TestRefresher_RefreshTokenSkipsReconnect(t *testing.T) {
	store := NewStore("old", true)
	fetch := &fakeFetcher{fn: func(context.Context) (string, error) { return "new-token", nil }}
	session := &fakeSession{}

	r := NewRefresher(store, fetch, time.Minute)
	r.SetSession(session)

	err := r.RefreshToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new-token", store.Get())
	assert.Equal(t, 1, session.invalidated)
	assert.Equal(t, 0, session.reconnected, "RefreshToken must not reconnect")
}

func TestRefresher_NoTokenReturned(t *testing.T) {
	store := NewStore("old", true)
	fetch := &fakeFetcher{fn: func(context.Context) (string, error) { return "", nil }}

	r := NewRefresher(store, fetch, time.Minute)
	r.SetSession(&fakeSession{})

	err := r.Refresh(context.Background())
	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, "old", store.Get(), "failed refresh must not change the stored token")
}

func TestRefresher_FetchError(t *testing.T) {
	store := NewStore("old", true)
	fetch := &fakeFetcher{fn: func(context.Context) (string, error) {
		return "", errors.New("side channel unreachable")
	}}

	r := NewRefresher(store, fetch, time.Minute)

	err := r.Refresh(context.Background())
	var re *RefreshError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "old", store.Get())
}

func TestRefresher_SingleFlight(t *testing.T) {
	store := NewStore("old", true)
	release := make(chan struct{})
	fetch := &fakeFetcher{fn: func(ctx context.Context) (string, error) {
		<-release
		return "new-token", nil
	}}
	session := &fakeSession{}

	r := NewRefresher(store, fetch, time.Minute)
	r.SetSession(session)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.RefreshToken(context.Background())
		}(i)
	}

	// Let all callers reach the single-flight gate, then release the fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetch.calls.Load(), "concurrent callers must share one fetch")
	for i, err := range errs {
		assert.NoError(t, err, fmt.Sprintf("caller %d", i))
	}
	assert.Equal(t, "new-token", store.Get())
}

func TestRefresher_SingleFlightSharesFailure(t *testing.T) {
	store := NewStore("old", true)
	release := make(chan struct{})
	fetch := &fakeFetcher{fn: func(ctx context.Context) (string, error) {
		<-release
		return "", errors.New("boom")
	}}

	r := NewRefresher(store, fetch, time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.RefreshToken(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetch.calls.Load())
	for _, err := range errs {
		var re *RefreshError
		assert.ErrorAs(t, err, &re, "all callers observe the shared outcome")
	}
}

func TestRefresher_AwaiterRespectsContext(t *testing.T) {
	store := NewStore("old", true)
	release := make(chan struct{})
	defer close(release)
	fetch := &fakeFetcher{fn: func(ctx context.Context) (string, error) {
		<-release
		return "new-token", nil
	}}

	r := NewRefresher(store, fetch, time.Minute)

	go func() { _ = r.RefreshToken(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := r.RefreshToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefresher_PeriodicRunsAndStops(t *testing.T) {
	store := NewStore("old", true)
	fetch := &fakeFetcher{fn: func(context.Context) (string, error) { return "periodic-token", nil }}
	session := &fakeSession{}

	r := NewRefresher(store, fetch, 20*time.Millisecond)
	r.SetSession(session)
	r.Start()

	assert.Eventually(t, func() bool {
		return fetch.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond, "periodic refresh should keep firing")

	r.Stop()
	calls := fetch.calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, fetch.calls.Load(), "no refreshes after Stop")
}

func TestRefresher_PeriodicFailureEscalates(t *testing.T) {
	store := NewStore("old", true)
	fetch := &fakeFetcher{fn: func(context.Context) (string, error) { return "", nil }}

	var escalated atomic.Int32
	r := NewRefresher(store, fetch, 20*time.Millisecond)
	r.SetFailureHandler(func(err error) {
		var re *RefreshError
		if errors.As(err, &re) {
			escalated.Add(1)
		}
	})
	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return escalated.Load() >= 1
	}, time.Second, 5*time.Millisecond, "periodic refresh failure must reach the failure handler")
}
