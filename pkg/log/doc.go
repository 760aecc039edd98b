// Package log provides structured session event logging for relaylink.
//
// Events capture session state transitions, queued operations, credential
// lifecycle changes, and errors, correlated by connection ID. Events are
// encoded as CBOR with integer keys for compact on-disk storage.
//
// # Loggers
//
//   - NoopLogger: discards events (logging disabled)
//   - FileLogger: appends CBOR-encoded events to a file
//   - SlogAdapter: mirrors events to an slog.Logger for console output
//   - MultiLogger: fans out to several loggers at once
//
// Credential values never appear in events; only a short fingerprint is
// recorded.
package log
