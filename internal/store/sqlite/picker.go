package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"batchplane/internal/store"
)

// lockOnePendingID selects at most one claimable task inside tx. SQLite has
// no row-level locking clause; the transaction's write lock plus the
// conditional update in markRunning provide the claim atomicity.
func (s *Store) lockOnePendingID(ctx context.Context, tx *sql.Tx) (int64, error) {
	const query = `
		SELECT id
		FROM batch_task
		WHERE status = 'PENDING'
		  AND (not_before IS NULL OR not_before <= ` + sqliteNow + `)
		ORDER BY priority DESC, id ASC
		LIMIT 1
	`

	var id int64
	err := tx.QueryRowContext(ctx, query).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock pending task failed: %w", err)
	}
	return id, nil
}

// markRunning flips the row to RUNNING only if it is still PENDING and
// returns the number of updated rows.
func (s *Store) markRunning(ctx context.Context, tx *sql.Tx, id int64, owner string) (int64, error) {
	const query = `
		UPDATE batch_task
		SET status = 'RUNNING', owner = $1,
		    heartbeat_at = ` + sqliteNow + `, updated_at = ` + sqliteNow + `
		WHERE id = $2 AND status = 'PENDING'
	`

	res, err := tx.ExecContext(ctx, query, owner, id)
	if err != nil {
		return 0, fmt.Errorf("mark running failed: %w", err)
	}
	return res.RowsAffected()
}

// ClaimOne combines the two picker steps and the row read in one short
// transaction.
func (s *Store) ClaimOne(ctx context.Context, owner string) (*store.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id, err := s.lockOnePendingID(ctx, tx)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}

	n, err := s.markRunning(ctx, tx, id, owner)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	task, err := scanTask(tx.QueryRowContext(ctx, taskSelect+" WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("read claimed task %d failed: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return task, nil
}
