// Package webhook provides webhook subscriptions, payload signing, and
// at-least-once delivery with bounded retries.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// SecretPrefix marks signing secrets so they are recognizable in
	// subscriber configuration.
	SecretPrefix = "whs_"

	// DefaultSecretLength is the number of random bytes in a secret.
	DefaultSecretLength = 32
)

// Sign computes the hex-encoded HMAC-SHA256 of the payload body. The
// body must be the exact bytes sent on the wire; re-serializing the
// payload on the receiving side breaks verification.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature against the raw request body. Receivers
// call this with the body bytes before any JSON decoding.
func Verify(secret, signature string, body []byte) error {
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateSecret creates a random signing secret. The length is the
// number of entropy bytes; the returned string is hex-encoded with the
// whs_ prefix. Non-positive lengths fall back to the default.
func GenerateSecret(length int) (string, error) {
	if length <= 0 {
		length = DefaultSecretLength
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
