package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"batchplane/internal/store"
)

const taskSelect = `
	SELECT id, schedule_id, ticket_no, type, payload, priority, status,
	       attempts, max_attempts, not_before, owner, heartbeat_at,
	       created_at, updated_at, finish_at, message
	FROM batch_task`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*store.Task, error) {
	var t store.Task
	var scheduleID sql.NullInt64
	var ticket, owner, message sql.NullString
	var notBefore, heartbeatAt, finishAt sql.NullTime

	err := row.Scan(&t.ID, &scheduleID, &ticket, &t.Type, &t.Payload, &t.Priority,
		&t.Status, &t.Attempts, &t.MaxAttempts, &notBefore, &owner, &heartbeatAt,
		&t.CreatedAt, &t.UpdatedAt, &finishAt, &message)
	if err != nil {
		return nil, err
	}

	if scheduleID.Valid {
		t.ScheduleID = &scheduleID.Int64
	}
	if ticket.Valid {
		t.Ticket = &ticket.String
	}
	if owner.Valid {
		t.Owner = &owner.String
	}
	if message.Valid {
		t.Message = &message.String
	}
	if notBefore.Valid {
		t.NotBefore = &notBefore.Time
	}
	if heartbeatAt.Valid {
		t.HeartbeatAt = &heartbeatAt.Time
	}
	if finishAt.Valid {
		t.FinishAt = &finishAt.Time
	}
	return &t, nil
}

// EnqueueTask inserts an ad-hoc PENDING task.
func (s *Store) EnqueueTask(ctx context.Context, t *store.Task) (int64, error) {
	const query = `
		INSERT INTO batch_task (schedule_id, ticket_no, type, payload, priority,
		                        status, attempts, max_attempts, not_before,
		                        created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id
	`

	var id int64
	err := s.db.QueryRowContext(ctx, query, t.ScheduleID, t.Ticket, t.Type,
		t.Payload, t.Priority, store.TaskStatusPending, t.Attempts,
		t.MaxAttempts, t.NotBefore).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

// InsertTaskIfAbsent performs the conditional ticket insert used by cron
// fan-out. Replayed firings collapse to no-ops at the ticket uniqueness
// constraint.
func (s *Store) InsertTaskIfAbsent(ctx context.Context, t *store.Task) (bool, error) {
	const query = `
		INSERT INTO batch_task (ticket_no, type, payload, priority, status,
		                        attempts, max_attempts, not_before, schedule_id,
		                        created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		WHERE NOT EXISTS (SELECT 1 FROM batch_task WHERE ticket_no = $1)
	`

	res, err := s.db.ExecContext(ctx, query, t.Ticket, t.Type, t.Payload,
		t.Priority, store.TaskStatusPending, t.Attempts, t.MaxAttempts,
		t.NotBefore, t.ScheduleID)
	if err != nil {
		return false, fmt.Errorf("conditional task insert failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*store.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, limit int) ([]store.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, taskSelect+" ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// SetTaskStatus performs a guarded status transition. Returns false when the
// row was no longer in from.
func (s *Store) SetTaskStatus(ctx context.Context, id int64, from, to store.TaskStatus) (bool, error) {
	const query = `
		UPDATE batch_task
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to set task %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM batch_task WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	return nil
}

func (s *Store) CountTasksBySchedule(ctx context.Context, scheduleID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM batch_task WHERE schedule_id = $1", scheduleID).Scan(&n)
	return n, err
}

func (s *Store) CountPendingTasks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM batch_task WHERE status = 'PENDING'").Scan(&n)
	return n, err
}

// IsCancelRequested is a short read-only check used by the engine's
// pre-execution gates.
func (s *Store) IsCancelRequested(ctx context.Context, taskID int64) (bool, error) {
	var status store.TaskStatus
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM batch_task WHERE id = $1", taskID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == store.TaskStatusCancelRequested, nil
}
