// Package credential holds the device credential and coordinates its
// out-of-band refresh.
//
// The credential is an opaque token: either a fixed operator-supplied value
// or a value fetched dynamically from the device's side channel. The token
// value is never logged in full; Fingerprint returns the only log-safe
// representation.
package credential

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Store holds the current credential for one device instance.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	token   string
	dynamic bool
}

// NewStore creates a Store with the operator-supplied token. dynamic
// indicates whether the token may be replaced via out-of-band refresh.
func NewStore(token string, dynamic bool) *Store {
	return &Store{token: token, dynamic: dynamic}
}

// Get returns the current token.
func (s *Store) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Set replaces the current token.
func (s *Store) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// HasToken reports whether a token is present.
func (s *Store) HasToken() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Dynamic reports whether out-of-band refresh is enabled for this store.
func (s *Store) Dynamic() bool {
	return s.dynamic
}

// Fingerprint returns a short log-safe digest of the current token, or
// "none" when no token is present. The full token value must never be
// logged.
func (s *Store) Fingerprint() string {
	tok := s.Get()
	if tok == "" {
		return "none"
	}
	sum := sha3.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:4])
}
