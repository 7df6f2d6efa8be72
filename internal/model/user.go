package model

import (
	"time"

	"github.com/google/uuid"
)

// UserRole gates access to API operations.
type UserRole string

const (
	// RoleFounder can run validations and manage share links for the
	// startup they belong to.
	RoleFounder UserRole = "founder"
	// RoleAdmin can additionally manage users.
	RoleAdmin UserRole = "admin"
)

// User is an authenticated caller. API keys are stored as Argon2id
// hashes; the plaintext key is shown once at creation.
type User struct {
	ID         uuid.UUID  `json:"id"`
	Handle     string     `json:"handle"`
	Name       string     `json:"name"`
	StartupID  *uuid.UUID `json:"startup_id,omitempty"`
	Role       UserRole   `json:"role"`
	APIKeyHash string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuthTokenRequest exchanges an API key for a JWT.
type AuthTokenRequest struct {
	Handle string `json:"handle"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse carries the issued bearer token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
