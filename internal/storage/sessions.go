package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vetra-ai/vetra/internal/model"
)

// CreateSession inserts a validation session. The partial unique index
// on (user_id, input_hash) is the start-idempotency key: on conflict
// with a live session the existing one is returned and the bool reports
// the dedupe. Failed sessions are outside the index, so a restart of
// the same input inserts a fresh row.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) (*model.Session, bool, error) {
	var icJSON []byte
	if s.InterviewContext != nil {
		var err error
		icJSON, err = json.Marshal(s.InterviewContext)
		if err != nil {
			return nil, false, fmt.Errorf("storage: marshal interview context: %w", err)
		}
	}

	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO validation_sessions
		   (id, user_id, startup_id, input_text, input_hash, interview_context, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (user_id, input_hash) WHERE status <> 'failed' DO NOTHING`,
		s.ID, s.UserID, s.StartupID, s.InputText, s.InputHash, icJSON, string(s.Status), now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("storage: create session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := db.getSessionWhere(ctx, `user_id = $1 AND input_hash = $2 AND status <> 'failed'`, s.UserID, s.InputHash)
		if err != nil {
			return nil, false, fmt.Errorf("storage: load deduped session: %w", err)
		}
		return existing, true, nil
	}

	created := *s
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, false, nil
}

// GetSession retrieves a session by id. Returns ErrNotFound when absent.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return db.getSessionWhere(ctx, `id = $1`, id)
}

func (db *DB) getSessionWhere(ctx context.Context, where string, args ...any) (*model.Session, error) {
	var (
		s      model.Session
		status string
		icJSON []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, user_id, startup_id, input_text, input_hash, interview_context,
		        status, error_message, report_id, created_at, updated_at
		 FROM validation_sessions WHERE `+where, args...,
	).Scan(
		&s.ID, &s.UserID, &s.StartupID, &s.InputText, &s.InputHash, &icJSON,
		&status, &s.ErrorMessage, &s.ReportID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: session: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get session: %w", err)
	}
	s.Status = model.SessionStatus(status)
	if len(icJSON) > 0 {
		var ic model.InterviewContext
		if err := json.Unmarshal(icJSON, &ic); err != nil {
			return nil, fmt.Errorf("storage: decode interview context: %w", err)
		}
		if ic.Coverage != nil {
			ic.Coverage = ic.Coverage.Normalize()
		}
		s.InterviewContext = &ic
	}
	return &s, nil
}

// TransitionSession is the status compare-and-set. Returns false when
// the session was not in the from state; racing callers see exactly one
// true.
func (db *DB) TransitionSession(ctx context.Context, id uuid.UUID, from, to model.SessionStatus) (bool, error) {
	var moved bool
	err := withRetry(ctx, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE validation_sessions SET status = $1, updated_at = now()
			 WHERE id = $2 AND status = $3`,
			string(to), id, string(from),
		)
		if err != nil {
			return err
		}
		moved = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: transition session %s %s→%s: %w", id, from, to, err)
	}
	return moved, nil
}

// FailSession marks a non-terminal session failed with a message.
// Calling it on an already terminal session is a no-op.
func (db *DB) FailSession(ctx context.Context, id uuid.UUID, msg string) error {
	err := withRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`UPDATE validation_sessions SET status = $1, error_message = $2, updated_at = now()
			 WHERE id = $3 AND status NOT IN ($4, $5)`,
			string(model.SessionFailed), msg, id,
			string(model.SessionDone), string(model.SessionFailed),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: fail session %s: %w", id, err)
	}
	return nil
}

// CompleteSession is the composing → done compare-and-set, recording the
// report id.
func (db *DB) CompleteSession(ctx context.Context, id, reportID uuid.UUID) (bool, error) {
	var done bool
	err := withRetry(ctx, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE validation_sessions SET status = $1, report_id = $2, updated_at = now()
			 WHERE id = $3 AND status = $4`,
			string(model.SessionDone), reportID, id, string(model.SessionComposing),
		)
		if err != nil {
			return err
		}
		done = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: complete session %s: %w", id, err)
	}
	return done, nil
}
