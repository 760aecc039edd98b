package session

// State represents the session state.
type State uint8

const (
	// StateDisconnected indicates no authenticated session.
	StateDisconnected State = iota

	// StateConnecting indicates a login attempt sequence is in progress.
	StateConnecting

	// StateReady indicates an authenticated session is live.
	StateReady

	// StateFailed indicates the login attempt sequence exhausted its
	// retries and the session is terminally down.
	StateFailed

	// StateClosed indicates the manager has been shut down.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
