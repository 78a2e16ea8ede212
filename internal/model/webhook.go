// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// EventType represents webhook event names.
type EventType string

const (
	EventAuditCompleted EventType = "audit.completed"
	EventAuditFailed    EventType = "audit.failed"
)

// ValidEventTypes contains all valid event types.
var ValidEventTypes = []EventType{EventAuditCompleted, EventAuditFailed}

// IsValidEventType checks if an event type is valid.
func IsValidEventType(et EventType) bool {
	return slices.Contains(ValidEventTypes, et)
}

// DeliveryStatus represents the terminal outcome of a delivery sequence.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// Subscription represents a webhook subscription owned by a user.
// The signing secret is stored so the dispatcher can compute the HMAC
// for each delivery; it is returned to the owner only at creation time.
type Subscription struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	TargetURL       string      `json:"target_url"`
	Secret          string      `json:"-"` // Never expose after creation
	Events          []EventType `json:"events"`
	Active          bool        `json:"active"`
	FailureCount    int         `json:"failure_count"`
	LastTriggeredAt *time.Time  `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// SubscribesTo checks if the subscription covers the given event.
func (s *Subscription) SubscribesTo(et EventType) bool {
	return slices.Contains(s.Events, et)
}

// WebhookPayload is the JSON body delivered to subscriber endpoints.
// The HMAC signature is computed over the serialized form of exactly
// this structure.
type WebhookPayload struct {
	Event     EventType      `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// DeliveryResult summarizes one completed delivery sequence for a
// single subscription. It is held in memory only; the persistent
// record is the subscription's failure counter.
type DeliveryResult struct {
	SubscriptionID string         `json:"subscription_id"`
	Event          EventType      `json:"event"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	LastHTTPStatus int            `json:"last_http_status,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

// SubscriptionCreateRequest represents a request to create a subscription.
type SubscriptionCreateRequest struct {
	TargetURL string      `json:"target_url"`
	Events    []EventType `json:"events,omitempty"` // Defaults to all valid events
}

// SubscriptionResponse represents the API response for a subscription.
type SubscriptionResponse struct {
	ID              string      `json:"id"`
	TargetURL       string      `json:"target_url"`
	Events          []EventType `json:"events"`
	Active          bool        `json:"active"`
	FailureCount    int         `json:"failure_count"`
	LastTriggeredAt *time.Time  `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ToResponse converts a Subscription to API response.
func (s *Subscription) ToResponse() SubscriptionResponse {
	return SubscriptionResponse{
		ID:              s.ID,
		TargetURL:       s.TargetURL,
		Events:          s.Events,
		Active:          s.Active,
		FailureCount:    s.FailureCount,
		LastTriggeredAt: s.LastTriggeredAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// SubscriptionCreateResponse includes the signing secret (shown only once).
type SubscriptionCreateResponse struct {
	SubscriptionResponse
	Secret string `json:"secret"` // Plaintext - display once only!
}
