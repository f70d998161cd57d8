// Package postgres implements the store interfaces using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// Store implements store.Store on top of a PostgreSQL connection pool.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}, nil
}

// DB returns the underlying pool, used by the migration runner.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// messageLimit matches the message column length; longer strings are cut
// before the write instead of failing it.
const messageLimit = 2000

func clipMessage(m string) string {
	if len(m) > messageLimit {
		return m[:messageLimit]
	}
	return m
}
