// Package auth provides authentication utilities for API keys.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argonParams bundles the argon2id cost parameters carried inside each
// PHC hash string. Verification always re-derives with the stored
// parameters, so these defaults can be raised without invalidating
// existing user rows.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	saltLen uint32
	keyLen  uint32
}

// OWASP 2024 recommended minimum.
var defaultParams = argonParams{
	memory:  64 * 1024, // KiB
	time:    3,
	threads: 4,
	saltLen: 16,
	keyLen:  32,
}

var (
	// ErrInvalidHash indicates the hash format is invalid.
	ErrInvalidHash = errors.New("invalid hash format")
	// ErrIncompatibleVersion indicates the hash version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// HashPassword hashes a credential for storage. Both login passwords
// and plaintext API keys go through this before they touch the users
// table; neither is ever stored or logged in the clear.
func HashPassword(password string) (string, error) {
	salt := make([]byte, defaultParams.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		defaultParams.time,
		defaultParams.memory,
		defaultParams.threads,
		defaultParams.keyLen,
	)

	return encodePHC(defaultParams, salt, hash), nil
}

// VerifyPassword reports whether the credential matches the stored
// hash. The comparison is constant time.
func VerifyPassword(password, encodedHash string) (bool, error) {
	params, salt, expected, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		salt,
		params.time,
		params.memory,
		params.threads,
		uint32(len(expected)),
	)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// encodePHC renders the PHC string format:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func encodePHC(p argonParams, salt, hash []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory,
		p.time,
		p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

// decodePHC parses a PHC string back into its cost parameters, salt,
// and raw hash bytes.
func decodePHC(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, ErrInvalidHash
	}

	return p, salt, hash, nil
}

// QuickHash derives the auth-cache field for a plaintext API key. A
// SHA256 prefix is enough to key a Redis entry; it is never a
// substitute for the argon2 hash in the users table.
func QuickHash(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:16]) // 32 hex chars
}
