// Package session provides session lifecycle management for relaylink.
//
// This package handles:
//   - Exponential backoff for login retry attempts
//   - Session state tracking
//   - Single-flight login: concurrent callers share one attempt sequence
//   - On-demand credential refresh inside the login loop
//
// # Retry strategy
//
// When a login attempt fails, the manager retries with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s
//  3. Maximum delay: 30 seconds
//  4. After the configured attempt cap (default 5), the sequence fails with
//     a terminal SessionError and is handed to the failure escalation policy
//
// A credential-class login failure triggers a synchronous out-of-band
// credential refresh (when enabled); a successful refresh retries the login
// immediately without consuming an attempt or waiting out the backoff.
//
// # Credential change
//
// A changed credential invalidates any live session. This is modeled as an
// explicit Ready -> Disconnected transition (Invalidate), never as in-place
// mutation of connection state, so no operation can run against a stale
// credential.
package session
