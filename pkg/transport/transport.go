package transport

import "context"

// Transport is the device-facing collaborator consumed by the core.
//
// Implementations own the network connection to the device. The core
// guarantees that no two Transport calls are in flight concurrently (all
// operations are serialized through the operation scheduler), so
// implementations do not need to be safe for concurrent use, with the
// exception of Close, which may be called from a shutdown path at any time.
type Transport interface {
	// Login establishes an authenticated session with the device using the
	// current credential. It returns nil on success, *CredentialError when
	// the device rejects the credential, and *NetworkError (or any other
	// error) for transport-level failures.
	Login(ctx context.Context) error

	// QueryState reads the device's current on/off state.
	QueryState(ctx context.Context) (bool, error)

	// SetState sets the device's on/off state.
	SetState(ctx context.Context, on bool) error

	// FetchCredential retrieves a fresh credential over the out-of-band
	// side channel. It returns an empty string (and nil error) when the
	// channel yields no credential.
	FetchCredential(ctx context.Context) (string, error)

	// Close releases the device connection. It must be safe to call more
	// than once and concurrently with in-flight operations.
	Close() error
}
