package log

import "time"

// Event represents one session event. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the authenticated session the event belongs
	// to (UUID). Empty for events outside any session.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// DeviceAddr is the configured device address.
	DeviceAddr string `cbor:"3,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Type-specific payload (exactly one is set).
	StateChange *StateChangeEvent `cbor:"5,keyasint,omitempty"`
	Operation   *OperationEvent   `cbor:"6,keyasint,omitempty"`
	Credential  *CredentialEvent  `cbor:"7,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"8,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a session state transition.
	CategoryState Category = 0
	// CategoryOperation indicates a scheduled read/write operation outcome.
	CategoryOperation Category = 1
	// CategoryCredential indicates a credential lifecycle event.
	CategoryCredential Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryOperation:
		return "OPERATION"
	case CategoryCredential:
		return "CREDENTIAL"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent records a session state transition.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint"`
	NewState string `cbor:"2,keyasint"`

	// Reason gives the trigger ("login", "credential-change", "shutdown").
	Reason string `cbor:"3,keyasint,omitempty"`
}

// OperationEvent records the outcome of one scheduled operation.
type OperationEvent struct {
	// Kind is "read" or "write".
	Kind string `cbor:"1,keyasint"`

	// Value is the written or observed state, when the operation succeeded.
	Value *bool `cbor:"2,keyasint,omitempty"`

	// Outcome is "ok", "error", "timeout", or "late" (completed after the
	// caller already received a timeout).
	Outcome string `cbor:"3,keyasint"`

	// DurationMS is the operation's execution time in milliseconds.
	DurationMS int64 `cbor:"4,keyasint,omitempty"`
}

// CredentialEvent records a credential lifecycle change. The credential
// value itself is never logged; Fingerprint is a short digest.
type CredentialEvent struct {
	// Action is "refresh-started", "refreshed", or "refresh-failed".
	Action string `cbor:"1,keyasint"`

	Fingerprint string `cbor:"2,keyasint,omitempty"`
}

// ErrorEvent records an error at any layer.
type ErrorEvent struct {
	// Context names the failing component ("session", "scheduler",
	// "refresh", "escalation").
	Context string `cbor:"1,keyasint"`

	Message string `cbor:"2,keyasint"`
}
