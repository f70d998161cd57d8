// Package sqlite implements the store interfaces using SQLite.
//
// SQLite has no FOR UPDATE SKIP LOCKED; the claim relies on the database
// write lock serializing claimers plus the conditional status guard on the
// RUNNING update. The contract observed by callers is identical to the
// postgres variant.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store implements store.Store on top of a SQLite database file.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New opens the database and applies connection pragmas. SQLite allows one
// writer at a time; the single connection avoids SQLITE_BUSY churn between
// the pollers of one process.
func New(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite pragmas: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}, nil
}

// DB returns the underlying handle, used by the migration runner.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// sqliteNow yields a millisecond-precision UTC timestamp, the SQLite
// counterpart of NOW() in the postgres variant.
const sqliteNow = "strftime('%Y-%m-%d %H:%M:%f', 'now')"

const messageLimit = 2000

func clipMessage(m string) string {
	if len(m) > messageLimit {
		return m[:messageLimit]
	}
	return m
}
