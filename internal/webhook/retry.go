package webhook

import (
	"math/rand"
	"time"
)

const (
	// DefaultMaxRetries is the number of delivery attempts per event.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the wait before the second attempt; it doubles
	// for each further attempt.
	DefaultBaseDelay = 2 * time.Second

	// DefaultAttemptTimeout bounds a single HTTP attempt.
	DefaultAttemptTimeout = 10 * time.Second

	// DefaultFailureCeiling is the consecutive exhausted-sequence count
	// at which a subscription is disabled.
	DefaultFailureCeiling = 10

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2 // ±20%

	// maxRetryDelay caps the doubled delay regardless of configuration.
	maxRetryDelay = 5 * time.Minute
)

// RetryDelay returns the wait after the given number of failed attempts:
// base after the first failure, doubling for each one after that, with
// ±20% jitter to prevent thundering herd against a recovering receiver.
func RetryDelay(base time.Duration, failedAttempts int) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if failedAttempts < 1 {
		failedAttempts = 1
	}

	delay := base
	for i := 1; i < failedAttempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterRange := float64(delay) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange // -20% to +20%

	return time.Duration(float64(delay) + jitter)
}

// IsExhausted returns true once no attempts remain.
func IsExhausted(attemptCount, maxRetries int) bool {
	return attemptCount >= maxRetries
}

// EstimatedSequenceWindow returns the maximum wall-clock span of one
// delivery sequence, useful for documentation and receiver SLAs.
func EstimatedSequenceWindow(maxRetries int, base, attemptTimeout time.Duration) time.Duration {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	total := time.Duration(maxRetries) * attemptTimeout
	for i := 1; i < maxRetries; i++ {
		total += RetryDelay(base, i)
	}
	// Add ~20% for jitter overhead
	return time.Duration(float64(total) * 1.2)
}
