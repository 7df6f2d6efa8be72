package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vetra-ai/vetra/internal/model"
)

// CompleteAgentResult records an agent's terminal result. The
// (session_id, agent) primary key makes the write once-only: a reaped
// agent that finishes late cannot overwrite the recorded failure.
func (db *DB) CompleteAgentResult(ctx context.Context, r *model.AgentResult) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := withRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO agent_results
			   (session_id, agent, status, payload, error, duration_ms, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id, agent) DO NOTHING`,
			r.SessionID, string(r.Agent), string(r.Status), []byte(r.Payload),
			r.Error, r.DurationMS, createdAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: complete agent result %s/%s: %w", r.SessionID, r.Agent, err)
	}
	return nil
}

// GetAgentResults returns all recorded results for a session in
// completion order.
func (db *DB) GetAgentResults(ctx context.Context, sessionID uuid.UUID) ([]model.AgentResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT session_id, agent, status, payload, error, duration_ms, created_at
		 FROM agent_results WHERE session_id = $1
		 ORDER BY created_at, agent`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent results: %w", err)
	}
	defer rows.Close()

	var out []model.AgentResult
	for rows.Next() {
		var (
			r             model.AgentResult
			agent, status string
			payload       []byte
		)
		if err := rows.Scan(&r.SessionID, &agent, &status, &payload, &r.Error, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan agent result: %w", err)
		}
		r.Agent = model.AgentName(agent)
		r.Status = model.AgentStatus(status)
		r.Payload = payload
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list agent results: %w", err)
	}
	return out, nil
}
