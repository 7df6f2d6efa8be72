package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the validation session state machine:
// queued → running → composing → done, with failed reachable from
// running or composing.
type SessionStatus string

const (
	SessionQueued    SessionStatus = "queued"
	SessionRunning   SessionStatus = "running"
	SessionComposing SessionStatus = "composing"
	SessionDone      SessionStatus = "done"
	SessionFailed    SessionStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionDone || s == SessionFailed
}

// InterviewContext is the snapshot taken at the moment readiness was
// reached: topic coverage plus the key/value pairs extracted from the
// conversation so far.
type InterviewContext struct {
	Coverage  Coverage          `json:"coverage,omitempty"`
	Extracted map[string]string `json:"extracted,omitempty"`
}

// Session is one end-to-end validation attempt.
type Session struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	StartupID        *uuid.UUID        `json:"startup_id,omitempty"`
	InputText        string            `json:"input_text"`
	InputHash        string            `json:"-"` // Idempotency key: sha256 of input + interview context.
	InterviewContext *InterviewContext `json:"interview_context,omitempty"`
	Status           SessionStatus     `json:"status"`
	ErrorMessage     *string           `json:"error_message,omitempty"`
	ReportID         *uuid.UUID        `json:"report_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// AgentName identifies one analysis step.
type AgentName string

const (
	AgentProfile     AgentName = "profile"
	AgentResearch    AgentName = "research"
	AgentCompetitors AgentName = "competitors"
	AgentScoring     AgentName = "scoring"
	AgentMVP         AgentName = "mvp"
	AgentComposer    AgentName = "composer"
)

// AnalysisAgents are the five independent fan-out agents. The composer
// is not among them: it runs once, after all five are terminal.
var AnalysisAgents = []AgentName{
	AgentProfile, AgentResearch, AgentCompetitors, AgentScoring, AgentMVP,
}

// AgentStatus is the terminal state of a single agent.
type AgentStatus string

const (
	AgentSucceeded AgentStatus = "succeeded"
	AgentFailed    AgentStatus = "failed"
)

// AgentResult is the structured output of one analysis agent. Written
// exactly once by the agent that owns it, read-only afterwards.
type AgentResult struct {
	SessionID  uuid.UUID       `json:"session_id"`
	Agent      AgentName       `json:"agent"`
	Status     AgentStatus     `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      *string         `json:"error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StartRequest is the request body for starting a validation.
type StartRequest struct {
	InputText        string            `json:"input_text"`
	StartupID        *uuid.UUID        `json:"startup_id,omitempty"`
	InterviewContext *InterviewContext `json:"interview_context,omitempty"`
}

// StartResponse is returned immediately from the start endpoint; the
// analysis itself proceeds in the background.
type StartResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Deduped   bool          `json:"deduped,omitempty"` // True when an identical start already had a session.
}

// StatusResponse is the polling contract: absence of a terminal status
// means "still working", never an error.
type StatusResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    SessionStatus `json:"status"`
	ReportID  *uuid.UUID    `json:"report_id,omitempty"`
	Error     *string       `json:"error,omitempty"`
}
