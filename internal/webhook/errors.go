package webhook

import "errors"

// Sentinel errors for webhook operations.
var (
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
	ErrInvalidSignature     = errors.New("invalid signature")
)
