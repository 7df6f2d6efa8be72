package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vetra-ai/vetra/internal/model"
)

const linkColumns = `id, token, resource_type, resource_id, startup_id, created_by,
	expires_at, revoked_at, access_count, last_accessed_at, created_at`

// CreateShareLink inserts a new share link. Tokens are unique; a
// collision is surfaced as an error rather than retried here because
// 256 random bits colliding means the caller's entropy source is broken.
func (db *DB) CreateShareLink(ctx context.Context, l *model.ShareLink) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := withRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO shareable_links
			   (id, token, resource_type, resource_id, startup_id, created_by, expires_at, access_count, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)`,
			l.ID, l.Token, string(l.ResourceType), l.ResourceID, l.StartupID,
			l.CreatedBy, l.ExpiresAt, createdAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: create share link: %w", err)
	}
	return nil
}

// GetShareLinkByToken returns the link for a token regardless of its
// revocation or expiry state. The caller classifies it.
func (db *DB) GetShareLinkByToken(ctx context.Context, token string) (*model.ShareLink, error) {
	return db.getLinkWhere(ctx, `token = $1`, token)
}

// GetShareLink retrieves a link by id. Returns ErrNotFound when absent.
func (db *DB) GetShareLink(ctx context.Context, id uuid.UUID) (*model.ShareLink, error) {
	return db.getLinkWhere(ctx, `id = $1`, id)
}

func (db *DB) getLinkWhere(ctx context.Context, where string, args ...any) (*model.ShareLink, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM shareable_links WHERE `+where, args...)
	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: share link: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get share link: %w", err)
	}
	return l, nil
}

func scanLink(row pgx.Row) (*model.ShareLink, error) {
	var (
		l  model.ShareLink
		rt string
	)
	err := row.Scan(
		&l.ID, &l.Token, &rt, &l.ResourceID, &l.StartupID, &l.CreatedBy,
		&l.ExpiresAt, &l.RevokedAt, &l.AccessCount, &l.LastAccessedAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.ResourceType = model.ResourceType(rt)
	return &l, nil
}

// RevokeShareLink sets revoked_at exactly once. Returns false when the
// link was already revoked, preserving the original revocation time.
func (db *DB) RevokeShareLink(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	var revoked bool
	err := withRetry(ctx, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE shareable_links SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
			at, id,
		)
		if err != nil {
			return err
		}
		revoked = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: revoke share link %s: %w", id, err)
	}
	return revoked, nil
}

// ListActiveShareLinks returns the non-revoked, non-expired links for a
// resource, newest first.
func (db *DB) ListActiveShareLinks(ctx context.Context, rt model.ResourceType, resourceID uuid.UUID, now time.Time) ([]model.ShareLink, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM shareable_links
		 WHERE resource_type = $1 AND resource_id = $2
		   AND revoked_at IS NULL AND expires_at > $3
		 ORDER BY created_at DESC`,
		string(rt), resourceID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list share links: %w", err)
	}
	defer rows.Close()

	var out []model.ShareLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan share link: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list share links: %w", err)
	}
	return out, nil
}

// RecordShareAccess bumps access_count and last_accessed_at. Best
// effort: resolution has already succeeded when this runs.
func (db *DB) RecordShareAccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := withRetry(ctx, func() error {
		_, err := db.pool.Exec(ctx,
			`UPDATE shareable_links
			 SET access_count = access_count + 1, last_accessed_at = $1
			 WHERE id = $2`,
			at, id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: record share access %s: %w", id, err)
	}
	return nil
}
