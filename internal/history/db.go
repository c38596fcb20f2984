// Package history stores room messages in SQLite for the development room server.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/roomline/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id        INTEGER NOT NULL,
	uid            INTEGER NOT NULL,
	username       TEXT    NOT NULL DEFAULT '',
	avatar         TEXT    NOT NULL DEFAULT '',
	body           TEXT    NOT NULL DEFAULT '',
	type           INTEGER NOT NULL,
	reply_id       INTEGER,
	reply_username TEXT,
	reply_body     TEXT,
	send_time_ms   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id, id);
`

// DB wraps the SQLite handle.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := "file:" + path + "?" + pragmas().Encode()
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return newDB(sqlDB)
}

// OpenInMemory opens a private in-memory database, mostly for tests.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file::memory:?"+pragmas().Encode())
	if err != nil {
		return nil, fmt.Errorf("open in-memory history db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	return newDB(sqlDB)
}

func pragmas() url.Values {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return q
}

func newDB(sqlDB *sql.DB) (*DB, error) {
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	return &DB{db: sqlDB, logger: logging.Component("history")}, nil
}

// Migrate creates the schema. It is safe to call repeatedly.
func (db *DB) Migrate(ctx context.Context) error {
	return withRetry(ctx, defaultRetryAttempts, defaultRetryBackoff, func() error {
		if _, err := db.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("migrate history db: %w", err)
		}
		return nil
	})
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Transaction runs fn inside a transaction, rolling back when fn fails.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
