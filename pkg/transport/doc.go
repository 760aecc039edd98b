// Package transport defines the contract between the relaylink core and a
// device-specific transport implementation.
//
// The core never speaks the device's wire protocol itself. It consumes a
// Transport for four network operations (login, state query, state mutation,
// out-of-band credential retrieval) and relies on the structured error
// taxonomy defined here to decide between credential refresh, retry with
// backoff, and escalation.
//
// # Credential-class classification
//
// A failure is credential-class when the device rejected the current
// authentication token, as opposed to a generic network failure. Transports
// should return *CredentialError directly. For transports that can only
// surface error text, ClassifyMessage preserves the legacy classification
// contract: status code 401 or a fixed set of message variants.
package transport
