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

// CreateUser inserts a new founder account.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO founders (id, handle, name, startup_id, role, api_key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Handle, u.Name, u.StartupID, string(u.Role), u.APIKeyHash, u.CreatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// SeedUser inserts a founder unless the handle already exists. Used at
// startup for the bootstrap account; the bool reports whether a row was
// written.
func (db *DB) SeedUser(ctx context.Context, u model.User) (bool, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO founders (id, handle, name, startup_id, role, api_key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (handle) DO NOTHING`,
		u.ID, u.Handle, u.Name, u.StartupID, string(u.Role), u.APIKeyHash, u.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("storage: seed user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetUserByHandle retrieves a founder by handle. Used for token
// issuance where only credentials are known.
func (db *DB) GetUserByHandle(ctx context.Context, handle string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, handle, name, startup_id, role, api_key_hash, created_at
		 FROM founders WHERE handle = $1`, handle,
	).Scan(&u.ID, &u.Handle, &u.Name, &u.StartupID, &role, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", handle, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user by handle: %w", err)
	}
	u.Role = model.UserRole(role)
	return u, nil
}

// GetUser retrieves a founder by id.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, handle, name, startup_id, role, api_key_hash, created_at
		 FROM founders WHERE id = $1`, id,
	).Scan(&u.ID, &u.Handle, &u.Name, &u.StartupID, &role, &u.APIKeyHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	u.Role = model.UserRole(role)
	return u, nil
}
