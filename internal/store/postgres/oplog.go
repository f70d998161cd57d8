package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"batchplane/internal/store"
)

// LogCompensation appends a PENDING entry with seq_no = max(seq_no)+1 for
// the run, starting at 1. Called from handlers during execution; a runID of
// 0 is resolved from the ambient run context.
func (s *Store) LogCompensation(ctx context.Context, runID int64, actionType, payloadJSON string) error {
	if runID == 0 {
		var ok bool
		runID, ok = store.RunFromContext(ctx)
		if !ok {
			return errors.New("no run bound for compensation logging")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq_no), 0) + 1 FROM batch_operation_log WHERE run_id = $1",
		runID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to compute next seq for run %d: %w", runID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_operation_log (run_id, seq_no, action_type, action_payload,
		                                 status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
	`, runID, next, actionType, payloadJSON, store.OpStatusPending)
	if err != nil {
		return fmt.Errorf("failed to log compensation for run %d: %w", runID, err)
	}

	return tx.Commit()
}

// FetchCompensationsDesc returns the run's entries last action first.
func (s *Store) FetchCompensationsDesc(ctx context.Context, runID int64) ([]store.OperationLog, error) {
	const query = `
		SELECT id, run_id, seq_no, action_type, action_payload, status,
		       attempts, last_error, created_at, updated_at
		FROM batch_operation_log
		WHERE run_id = $1
		ORDER BY seq_no DESC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch compensations for run %d: %w", runID, err)
	}
	defer rows.Close()

	var ops []store.OperationLog
	for rows.Next() {
		var op store.OperationLog
		var actionType, lastError sql.NullString
		err := rows.Scan(&op.ID, &op.RunID, &op.SeqNo, &actionType, &op.ActionPayload,
			&op.Status, &op.Attempts, &lastError, &op.CreatedAt, &op.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if actionType.Valid {
			op.ActionType = &actionType.String
		}
		if lastError.Valid {
			op.LastError = &lastError.String
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (s *Store) MarkCompensationDone(ctx context.Context, opID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_operation_log
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, store.OpStatusDone, opID)
	if err != nil {
		return fmt.Errorf("failed to mark compensation %d done: %w", opID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkCompensationFailed(ctx context.Context, opID int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE batch_operation_log
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`, store.OpStatusFailed, errMsg, opID)
	if err != nil {
		return fmt.Errorf("failed to mark compensation %d failed: %w", opID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
