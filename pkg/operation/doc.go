// Package operation serializes read/write operations against the device
// session and bounds their caller-visible latency.
//
// The Scheduler is a strict FIFO queue realized as a chain of completion
// channels: each submitted request executes only after all previously
// submitted requests have fully resolved, so the transport never sees two
// calls in flight. A failing request never wedges the chain.
//
// The Supervisor races each operation against a deadline and guarantees the
// caller exactly one response. A timed-out operation keeps running in the
// background for state consistency; its late outcome is logged, never
// delivered.
package operation
