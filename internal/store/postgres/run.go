package postgres

import (
	"context"
	"fmt"
	"time"

	"batchplane/internal/store"
)

// CreateRun inserts a new RUNNING run for the task.
func (s *Store) CreateRun(ctx context.Context, taskID int64, startedAt time.Time) (*store.Run, error) {
	const query = `
		INSERT INTO batch_run (task_id, started_at, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	run := &store.Run{TaskID: taskID, StartedAt: startedAt, Status: store.RunStatusRunning}
	err := s.db.QueryRowContext(ctx, query, taskID, startedAt, store.RunStatusRunning).Scan(&run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create run for task %d: %w", taskID, err)
	}
	return run, nil
}

// Complete writes the final task and run status in one short transaction.
// Missing rows are logged and skipped so a duplicate write-back stays
// harmless.
func (s *Store) Complete(ctx context.Context, taskID, runID int64, succeeded bool, message string, finishedAt time.Time, final store.TaskStatus) error {
	taskStatus := final
	if taskStatus == "" {
		if succeeded {
			taskStatus = store.TaskStatusSucceed
		} else {
			taskStatus = store.TaskStatusFailed
		}
	}

	runStatus := store.RunStatusFailed
	switch {
	case taskStatus == store.TaskStatusCanceled:
		runStatus = store.RunStatusCanceled
	case succeeded:
		runStatus = store.RunStatusSucceed
	}

	msg := clipMessage(message)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE batch_task
		SET status = $1, message = $2, finish_at = $3, updated_at = $3
		WHERE id = $4
	`, taskStatus, msg, finishedAt, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete task %d: %w", taskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Warn("task not found when completing", "task_id", taskID)
		return nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE batch_run
		SET status = $1, ended_at = $2, message = $3
		WHERE id = $4
	`, runStatus, finishedAt, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to complete run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Warn("run not found when completing", "run_id", runID, "task_id", taskID)
	}

	return tx.Commit()
}
