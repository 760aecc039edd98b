package operation

import "sync/atomic"

// Kind identifies the operation type.
type Kind uint8

const (
	// KindRead queries the device's current state.
	KindRead Kind = iota

	// KindWrite sets the device's state.
	KindWrite
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Result is the outcome of one operation.
type Result struct {
	// Value is the observed (read) or applied (write) state.
	Value bool

	// Err is non-nil when the operation failed.
	Err error
}

// Request is one queued unit of work. The response sink fires exactly once,
// whichever of operation completion or deadline wins the race; the loser's
// delivery attempt is suppressed by the single-fire guard.
type Request struct {
	// Kind is the operation type.
	Kind Kind

	// Value is the state to write (KindWrite only).
	Value bool

	responded atomic.Bool
	respond   func(Result)
}

// NewRequest creates a request whose sink is invoked at most once.
func NewRequest(kind Kind, value bool, respond func(Result)) *Request {
	return &Request{Kind: kind, Value: value, respond: respond}
}

// deliver fires the response sink if nothing has been delivered yet.
// It reports whether this call won the delivery race.
func (r *Request) deliver(res Result) bool {
	if !r.responded.CompareAndSwap(false, true) {
		return false
	}
	r.respond(res)
	return true
}

// claim marks the request as responded without firing the sink. The
// Supervisor uses it when the deadline wins: the caller gets the timeout
// error directly and any later completion is suppressed.
func (r *Request) claim() bool {
	return r.responded.CompareAndSwap(false, true)
}
