package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCredentialError_Structured(t *testing.T) {
	err := &CredentialError{Code: 401, Message: "bad token"}
	assert.True(t, IsCredentialError(err))
}

func TestIsCredentialError_Wrapped(t *testing.T) {
	err := fmt.Errorf("login: %w", &CredentialError{Message: "rejected"})
	assert.True(t, IsCredentialError(err))
}

func TestIsCredentialError_NetworkError(t *testing.T) {
	err := &NetworkError{Op: "login", Err: errors.New("connection reset")}
	assert.False(t, IsCredentialError(err))
}

func TestIsCredentialError_Nil(t *testing.T) {
	assert.False(t, IsCredentialError(nil))
}

func TestIsCredentialError_LegacyMessageVariants(t *testing.T) {
	// These message fragments are part of the firmware compatibility
	// contract and must keep classifying as credential-class.
	for _, msg := range []string{
		"device responded: Invalid Token",
		"TOKEN EXPIRED, re-authenticate",
		"request unauthorized",
		"login required before query",
		"device returned status 401",
	} {
		assert.True(t, IsCredentialError(errors.New(msg)), msg)
	}
}

func TestIsCredentialError_PlainNetworkText(t *testing.T) {
	for _, msg := range []string{
		"dial tcp: i/o timeout",
		"connection refused",
		"device busy",
	} {
		assert.False(t, IsCredentialError(errors.New(msg)), msg)
	}
}

func TestClassifyMessage_StatusCodeBoundaries(t *testing.T) {
	// "401" only counts as a standalone number; digits embedded in ports,
	// addresses, or byte counts must not route errors into the refresh
	// path.
	for _, msg := range []string{
		"401",
		"HTTP 401 Unauthorized",
		"device returned status 401",
		"error 401: rejected",
	} {
		assert.True(t, ClassifyMessage(msg), msg)
	}

	for _, msg := range []string{
		"dial tcp 10.0.0.1:40143: connection refused",
		"read 14401 bytes then EOF",
		"port 4012 unreachable",
		"sequence 94013 out of order",
	} {
		assert.False(t, ClassifyMessage(msg), msg)
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	inner := errors.New("broken pipe")
	err := &NetworkError{Op: "set", Err: inner}
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "set")
}

func TestCredentialError_ErrorText(t *testing.T) {
	withCode := &CredentialError{Code: 401, Message: "expired"}
	assert.Contains(t, withCode.Error(), "401")

	withoutCode := &CredentialError{Message: "expired"}
	assert.NotContains(t, withoutCode.Error(), "status")
}
