// Package auth checks the API key presented to the webhook server.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of generated API keys in bytes (will be hex encoded)
	APIKeyLength = 32
	// BcryptCost is the bcrypt cost factor
	BcryptCost = 12
)

// GenerateAPIKey creates a new cryptographically secure API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashAPIKey hashes a key using bcrypt so it can be stored in the config file.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}
	return string(hash), nil
}

// IsHash reports whether s looks like a bcrypt hash.
func IsHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Verifier validates presented API keys against the configured one, which
// may be plain text or a bcrypt hash.
type Verifier struct {
	configured string
	hashed     bool

	// verified caches digests of keys that passed a bcrypt check
	verified map[[sha256.Size]byte]struct{}
	mu       sync.RWMutex
}

// NewVerifier creates a verifier for the configured key. An empty key
// disables authentication.
func NewVerifier(configured string) *Verifier {
	configured = strings.TrimSpace(configured)
	return &Verifier{
		configured: configured,
		hashed:     IsHash(configured),
		verified:   make(map[[sha256.Size]byte]struct{}),
	}
}

// Enabled reports whether a key is required.
func (v *Verifier) Enabled() bool {
	return v.configured != ""
}

// Verify reports whether key matches the configured key.
func (v *Verifier) Verify(key string) bool {
	if !v.Enabled() || key == "" {
		return false
	}
	if !v.hashed {
		return subtle.ConstantTimeCompare([]byte(key), []byte(v.configured)) == 1
	}

	digest := sha256.Sum256([]byte(key))
	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return true
	}

	if bcrypt.CompareHashAndPassword([]byte(v.configured), []byte(key)) != nil {
		return false
	}

	v.mu.Lock()
	v.verified[digest] = struct{}{}
	v.mu.Unlock()
	return true
}
