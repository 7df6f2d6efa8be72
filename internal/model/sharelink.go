package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResourceType enumerates what a share link may point at. Only
// validation reports are resolvable today; the other types exist so the
// links table does not need a migration per product surface.
type ResourceType string

const (
	ResourceValidationReport ResourceType = "validation_report"
	ResourcePitchDeck        ResourceType = "pitch_deck"
	ResourceLeanCanvas       ResourceType = "lean_canvas"
	ResourceDecisionLog      ResourceType = "decision_log"
)

// ValidResourceType reports whether t is one of the enumerated types.
func ValidResourceType(t ResourceType) bool {
	switch t {
	case ResourceValidationReport, ResourcePitchDeck, ResourceLeanCanvas, ResourceDecisionLog:
		return true
	}
	return false
}

// Expiry options in days. ExpiryForever (0) maps to a far-future
// timestamp rather than a null sentinel so every expiry comparison
// stays total-ordered.
const (
	ExpiryDay     = 1
	ExpiryWeek    = 7
	ExpiryMonth   = 30
	ExpiryForever = 0
)

// foreverHorizon approximates "never expires" as one hundred years out.
const foreverHorizon = 100 * 365 * 24 * time.Hour

// ExpiryTime converts an expiry-days option to an absolute timestamp.
func ExpiryTime(now time.Time, days int) (time.Time, error) {
	switch days {
	case ExpiryForever:
		return now.Add(foreverHorizon), nil
	case ExpiryDay, ExpiryWeek, ExpiryMonth:
		return now.Add(time.Duration(days) * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("model: invalid expiry days %d (want 1, 7, 30 or 0)", days)
	}
}

// ShareLink grants anonymous read access to one resource. Never hard
// deleted: revocation sets revoked_at so access history survives.
type ShareLink struct {
	ID             uuid.UUID    `json:"id"`
	Token          string       `json:"token"`
	ResourceType   ResourceType `json:"resource_type"`
	ResourceID     uuid.UUID    `json:"resource_id"`
	StartupID      uuid.UUID    `json:"startup_id"`
	CreatedBy      uuid.UUID    `json:"created_by"`
	ExpiresAt      time.Time    `json:"expires_at"`
	RevokedAt      *time.Time   `json:"revoked_at,omitempty"`
	AccessCount    int          `json:"access_count"`
	LastAccessedAt *time.Time   `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ShareErrorCode is the closed set of reasons a public resolve can fail.
// Nothing more specific is ever revealed to an anonymous caller.
type ShareErrorCode string

const (
	ShareErrExpired  ShareErrorCode = "expired"
	ShareErrRevoked  ShareErrorCode = "revoked"
	ShareErrInvalid  ShareErrorCode = "invalid"
	ShareErrNotFound ShareErrorCode = "not_found"
	ShareErrUnknown  ShareErrorCode = "unknown"
)

// ShareError is the error half of the public resolve envelope.
type ShareError struct {
	Code    ShareErrorCode `json:"code"`
	Message string         `json:"message"`
}

// ResolveResponse is the public share resolution envelope: exactly one
// of Data or Error is set.
type ResolveResponse struct {
	Data  *Report     `json:"data"`
	Error *ShareError `json:"error"`
}

// GenerateLinkRequest is the request body for creating a share link.
type GenerateLinkRequest struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   uuid.UUID    `json:"resource_id"`
	ExpiresIn    int          `json:"expires_in_days"`
}
