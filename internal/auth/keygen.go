// Package auth provides authentication utilities for API keys.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: ak_{secret}
// Example: ak_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	// APIKeyPrefix marks a plaintext token as an API key.
	APIKeyPrefix = "ak_"
	// KeyLookupLen is the number of secret chars included in the stored
	// lookup prefix (ak_ plus these chars).
	KeyLookupLen = 8
	// MinSecretLen is the minimum number of random hex chars after the prefix.
	MinSecretLen = 32
	// MaxSecretLen bounds the accepted key length.
	MaxSecretLen = 128
)

var (
	// ErrInvalidKeyFormat indicates the key format is invalid.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// keyFormatRegex validates the key format.
	keyFormatRegex = regexp.MustCompile(`^ak_([a-f0-9]{8})([a-f0-9]{24,120})$`)
)

// GeneratedKey contains the parts of a newly generated API key.
type GeneratedKey struct {
	Plaintext string // Full key (show once only)
	Hash      string // Argon2id hash for storage
	Prefix    string // Visible lookup prefix (ak_ + first 8 secret chars)
}

// GenerateAPIKey creates a new API key with secretLen chars of randomness.
// Lengths below MinSecretLen are raised to the minimum. Returns the
// plaintext key (to show once), hash (to store), and prefix (for lookup).
func GenerateAPIKey(secretLen int) (*GeneratedKey, error) {
	if secretLen < MinSecretLen {
		secretLen = MinSecretLen
	}
	if secretLen > MaxSecretLen {
		secretLen = MaxSecretLen
	}

	secret, err := RandomHex(secretLen)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := APIKeyPrefix + secret

	// Hash for storage
	hash, err := HashPassword(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    APIKeyPrefix + secret[:KeyLookupLen],
	}, nil
}

// ParsedKey contains the parsed parts of an API key.
type ParsedKey struct {
	Prefix string // Lookup prefix (ak_ + first 8 secret chars)
	Secret string // Full secret including the lookup chars
}

// ParseAPIKey extracts the components from a plaintext API key.
// Returns an error if the format is invalid.
func ParseAPIKey(key string) (*ParsedKey, error) {
	matches := keyFormatRegex.FindStringSubmatch(key)
	if matches == nil {
		return nil, ErrInvalidKeyFormat
	}

	return &ParsedKey{
		Prefix: APIKeyPrefix + matches[1],
		Secret: matches[1] + matches[2],
	}, nil
}

// ValidateKeyFormat checks if the key matches the expected format.
func ValidateKeyFormat(key string) bool {
	return keyFormatRegex.MatchString(key)
}

// RandomHex returns n hex characters from a cryptographically secure source.
func RandomHex(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}
