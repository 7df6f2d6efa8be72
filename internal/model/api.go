package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// APIResponse is the standard response envelope for authenticated endpoints.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// Input length bounds for pipeline start, applied after markup stripping.
// The floor rejects empty or accidental submissions; the ceiling bounds
// prompt size against abusive payloads.
const (
	MinInputLen = 10
	MaxInputLen = 5000
)

var (
	htmlTagRe      = regexp.MustCompile(`<[^>]*>`)
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markupRunesRe  = regexp.MustCompile("[*_~#>`]+")
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// NormalizeInputText strips HTML tags and markdown decoration from a raw
// idea submission and collapses whitespace. Link text survives; the URL
// target does not.
func NormalizeInputText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = markdownLinkRe.ReplaceAllString(s, "$1")
	s = markupRunesRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ValidateInputText checks the normalized text against the length bounds.
func ValidateInputText(normalized string) error {
	n := utf8.RuneCountInString(normalized)
	if n < MinInputLen {
		return fmt.Errorf("input_text too short: %d characters after markup stripping (min %d)", n, MinInputLen)
	}
	if n > MaxInputLen {
		return fmt.Errorf("input_text too long: %d characters after markup stripping (max %d)", n, MaxInputLen)
	}
	return nil
}
