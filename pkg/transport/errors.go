package transport

import (
	"errors"
	"fmt"
	"strings"
)

// CredentialStatusCode is the device status code that always maps to a
// credential-class failure.
const CredentialStatusCode = 401

// credentialMessageVariants are the legacy message fragments that classify
// an error as credential-class. The set is part of the compatibility
// contract with existing device firmware and must not shrink.
var credentialMessageVariants = []string{
	"invalid token",
	"token expired",
	"unauthorized",
	"login required",
}

// CredentialError indicates the device rejected the current authentication
// token. It is recoverable via an out-of-band credential refresh.
type CredentialError struct {
	// Code is the device status code, if the transport surfaced one.
	Code int

	// Message is the device-provided failure text.
	Message string
}

// Error implements the error interface.
func (e *CredentialError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("credential rejected (status %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("credential rejected: %s", e.Message)
}

// NetworkError indicates a transport-level failure (connect, send, receive).
// It is recoverable via retry with backoff.
type NetworkError struct {
	// Op names the failing transport operation ("login", "query", "set",
	// "fetch-credential").
	Op string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsCredentialError reports whether err is credential-class: either a
// structured *CredentialError anywhere in the chain, or an error whose text
// matches the legacy classification contract.
func IsCredentialError(err error) bool {
	if err == nil {
		return false
	}
	var ce *CredentialError
	if errors.As(err, &ce) {
		return true
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage reports whether failure text matches the legacy
// credential-class heuristic. Prefer structured *CredentialError; this
// exists for transports that only surface message strings.
func ClassifyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if containsStatusCode(lower, "401") {
		return true
	}
	for _, variant := range credentialMessageVariants {
		if strings.Contains(lower, variant) {
			return true
		}
	}
	return false
}

// containsStatusCode reports whether code appears in msg as a standalone
// number. A match inside a longer digit run (ports, addresses, byte counts)
// does not count.
func containsStatusCode(msg, code string) bool {
	for i := 0; ; i += len(code) {
		j := strings.Index(msg[i:], code)
		if j < 0 {
			return false
		}
		i += j
		beforeOK := i == 0 || !isDigit(msg[i-1])
		after := i + len(code)
		afterOK := after == len(msg) || !isDigit(msg[after])
		if beforeOK && afterOK {
			return true
		}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
