package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/vetra-ai/vetra/internal/model"
)

// Store is the persistence surface the orchestrator needs. *storage.DB
// satisfies it; tests use an in-memory fake.
type Store interface {
	// CreateSession inserts the session, or returns the existing one
	// when an identical input hash is already present. The bool reports
	// the dedupe case.
	CreateSession(ctx context.Context, s *model.Session) (*model.Session, bool, error)
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// TransitionSession is a compare-and-set on session status. It
	// returns false when the session was not in the from state, which
	// is how racing completion observers lose.
	TransitionSession(ctx context.Context, id uuid.UUID, from, to model.SessionStatus) (bool, error)
	// FailSession marks a non-terminal session failed with a message.
	// No-op when the session is already terminal.
	FailSession(ctx context.Context, id uuid.UUID, msg string) error
	// CompleteSession is the composing → done compare-and-set, recording
	// the report id.
	CompleteSession(ctx context.Context, id, reportID uuid.UUID) (bool, error)

	CompleteAgentResult(ctx context.Context, r *model.AgentResult) error
	GetAgentResults(ctx context.Context, sessionID uuid.UUID) ([]model.AgentResult, error)

	CreateReport(ctx context.Context, r *model.Report) error
}
