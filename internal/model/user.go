// Package model defines domain entities for the application.
package model

import "time"

// User represents a registered account that owns audits and webhook
// subscriptions. The API key is stored as an argon2id hash plus a short
// prefix used for lookup; the plaintext is shown once at issue time.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	Plan         string    `json:"plan"`
	AuditCount   int       `json:"audit_count"`
	PeriodStart  time.Time `json:"period_start"` // Billing month anchor
	APIKeyHash   string    `json:"-"` // Never serialize
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RegisterRequest represents an account registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Plan     string `json:"plan,omitempty"` // Defaults to free
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse represents the API response for a user account.
type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Plan         string    `json:"plan"`
	AuditCount   int       `json:"audit_count"`
	PeriodStart  time.Time `json:"period_start"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
}

// ToResponse converts a User to UserResponse.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Plan:         u.Plan,
		AuditCount:   u.AuditCount,
		PeriodStart:  u.PeriodStart,
		APIKeyPrefix: u.APIKeyPrefix,
		CreatedAt:    u.CreatedAt,
	}
}

// RegisterResponse includes the plaintext API key (shown only once).
type RegisterResponse struct {
	User   UserResponse `json:"user"`
	APIKey string       `json:"api_key"` // Plaintext - display once only!
}

// RotateKeyResponse includes the replacement API key (shown only once).
type RotateKeyResponse struct {
	APIKey       string    `json:"api_key"` // Plaintext - display once only!
	APIKeyPrefix string    `json:"api_key_prefix"`
	RotatedAt    time.Time `json:"rotated_at"`
}

// UsageResponse represents the current quota snapshot for a user.
type UsageResponse struct {
	Plan        string    `json:"plan"`
	Limit       int       `json:"limit"`
	Used        int       `json:"used"`
	Remaining   int       `json:"remaining"`
	PeriodStart time.Time `json:"period_start"`
	Features    []string  `json:"features"`
}
