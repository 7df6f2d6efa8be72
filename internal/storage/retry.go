package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Session status transitions and share-access increments contend on the
// same rows; under load that surfaces as serialization failures or
// deadlocks, both of which clear on replay.
const (
	retryAttempts  = 3
	retryBaseDelay = 50 * time.Millisecond
)

func retriablePG(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected.
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withRetry replays fn on transient Postgres conflicts, with jittered
// exponential backoff between attempts. Any other error returns as-is.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 0; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil || !retriablePG(err) {
			return err
		}
		if attempt == retryAttempts {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}
