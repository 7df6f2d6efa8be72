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

// CreateReport persists a finished validation report. Reports are
// immutable once written.
func (db *DB) CreateReport(ctx context.Context, r *model.Report) error {
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return fmt.Errorf("storage: marshal report sections: %w", err)
	}
	findings, err := json.Marshal(r.KeyFindings)
	if err != nil {
		return fmt.Errorf("storage: marshal key findings: %w", err)
	}

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err = withRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO validation_reports
			   (id, session_id, startup_id, score, verdict, summary, sections, key_findings, details, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.ID, r.SessionID, r.StartupID, r.Score, string(r.Verdict),
			r.Summary, sections, findings, []byte(r.Details), createdAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: create report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by id. Returns ErrNotFound when absent.
func (db *DB) GetReport(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	var (
		r                  model.Report
		verdict            string
		sections, findings []byte
		details            []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, session_id, startup_id, score, verdict, summary, sections, key_findings, details, created_at
		 FROM validation_reports WHERE id = $1`,
		id,
	).Scan(
		&r.ID, &r.SessionID, &r.StartupID, &r.Score, &verdict,
		&r.Summary, &sections, &findings, &details, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: report: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get report: %w", err)
	}
	r.Verdict = model.Verdict(verdict)
	if err := json.Unmarshal(sections, &r.Sections); err != nil {
		return nil, fmt.Errorf("storage: decode report sections: %w", err)
	}
	if err := json.Unmarshal(findings, &r.KeyFindings); err != nil {
		return nil, fmt.Errorf("storage: decode key findings: %w", err)
	}
	r.Details = details
	return &r, nil
}
