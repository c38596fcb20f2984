package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// TransactionWithRetry runs a transaction, retrying when SQLite reports a busy database.
func (db *DB) TransactionWithRetry(ctx context.Context, fn func(*sql.Tx) error) error {
	return withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		return db.Transaction(ctx, fn)
	})
}

func withRetry(ctx context.Context, maxAttempts int, backoff time.Duration, fn func() error) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !isBusyError(err) || attempt >= maxAttempts {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func isBusyError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy") ||
		strings.Contains(message, "sqlite_busy")
}
