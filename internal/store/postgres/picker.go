package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"batchplane/internal/store"
)

// lockOnePendingID locks at most one claimable task inside tx, skipping rows
// locked by concurrent claimers. Returns (0, nil) when nothing is ready.
func (s *Store) lockOnePendingID(ctx context.Context, tx *sql.Tx) (int64, error) {
	const query = `
		SELECT id
		FROM batch_task
		WHERE status = 'PENDING'
		  AND (not_before IS NULL OR not_before <= NOW())
		ORDER BY priority DESC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
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
// returns the number of updated rows. A competing claimer that won the race
// leaves this at 0.
func (s *Store) markRunning(ctx context.Context, tx *sql.Tx, id int64, owner string) (int64, error) {
	const query = `
		UPDATE batch_task
		SET status = 'RUNNING', owner = $1, heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = 'PENDING'
	`

	res, err := tx.ExecContext(ctx, query, owner, id)
	if err != nil {
		return 0, fmt.Errorf("mark running failed: %w", err)
	}
	return res.RowsAffected()
}

// ClaimOne combines the two picker steps and the row read in one short
// transaction. Across concurrent pollers at most one observes a non-nil
// result for any given task.
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
