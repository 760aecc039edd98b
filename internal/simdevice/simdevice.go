// Package simdevice provides an in-memory simulated device transport with
// scriptable failure behavior, for the reference agent's simulation mode and
// for integration tests.
package simdevice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relaylink-protocol/relaylink-go/pkg/transport"
)

// Device is a simulated transport for a single on/off device. All failure
// behavior is scriptable: login failures, credential expiry, and artificial
// latency. The zero Config yields a device that always succeeds.
type Device struct {
	mu sync.Mutex

	state  bool
	closed bool

	// remainingLoginFailures counts down network-style login failures.
	remainingLoginFailures int

	// expired simulates a rejected credential on every call until the next
	// out-of-band fetch.
	expired bool

	issued int

	latency time.Duration

	loginCalls int
	fetchCalls int
}

// Config scripts the simulated device's behavior.
type Config struct {
	// InitialState is the device's starting on/off state.
	InitialState bool

	// FailLogins makes the first N logins fail with a network error.
	FailLogins int

	// Latency delays every transport call.
	Latency time.Duration
}

// New creates a simulated device.
func New(cfg Config) *Device {
	return &Device{
		state:                  cfg.InitialState,
		remainingLoginFailures: cfg.FailLogins,
		latency:                cfg.Latency,
	}
}

// ExpireCredential makes every subsequent call fail with a credential-class
// error until the next FetchCredential.
func (d *Device) ExpireCredential() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expired = true
}

// FailLogins makes the next n logins fail with a network error.
func (d *Device) FailLogins(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remainingLoginFailures = n
}

// LoginCalls returns how many logins were attempted.
func (d *Device) LoginCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loginCalls
}

// FetchCalls returns how many out-of-band credential fetches occurred.
func (d *Device) FetchCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetchCalls
}

// Login simulates the authenticated connect.
func (d *Device) Login(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loginCalls++

	if d.closed {
		return &transport.NetworkError{Op: "login", Err: errors.New("device closed")}
	}
	if d.remainingLoginFailures > 0 {
		d.remainingLoginFailures--
		return &transport.NetworkError{Op: "login", Err: errors.New("connection refused")}
	}
	if d.expired {
		return &transport.CredentialError{Code: transport.CredentialStatusCode, Message: "token expired"}
	}
	return nil
}

// QueryState returns the simulated on/off state.
func (d *Device) QueryState(ctx context.Context) (bool, error) {
	if err := d.wait(ctx); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, &transport.NetworkError{Op: "query", Err: errors.New("device closed")}
	}
	if d.expired {
		return false, &transport.CredentialError{Code: transport.CredentialStatusCode, Message: "token expired"}
	}
	return d.state, nil
}

// SetState applies the simulated on/off state.
func (d *Device) SetState(ctx context.Context, on bool) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &transport.NetworkError{Op: "set", Err: errors.New("device closed")}
	}
	if d.expired {
		return &transport.CredentialError{Code: transport.CredentialStatusCode, Message: "token expired"}
	}
	d.state = on
	return nil
}

// FetchCredential simulates the out-of-band side channel: it issues a fresh
// token and clears any simulated expiry.
func (d *Device) FetchCredential(ctx context.Context) (string, error) {
	if err := d.wait(ctx); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetchCalls++
	d.issued++
	d.expired = false
	return fmt.Sprintf("sim-token-%04d", d.issued), nil
}

// Close releases the simulated connection.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) wait(ctx context.Context) error {
	d.mu.Lock()
	latency := d.latency
	d.mu.Unlock()
	if latency <= 0 {
		return nil
	}
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
