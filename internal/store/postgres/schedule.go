package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"batchplane/internal/store"
)

const scheduleSelect = `
	SELECT id, type, cron, payload, enabled, last_fire_at
	FROM batch_schedule`

func scanSchedule(row rowScanner) (*store.Schedule, error) {
	var s store.Schedule
	var enabled int
	var lastFire sql.NullTime

	if err := row.Scan(&s.ID, &s.Type, &s.Cron, &s.Payload, &enabled, &lastFire); err != nil {
		return nil, err
	}
	s.Enabled = enabled == 1
	if lastFire.Valid {
		s.LastFireAt = &lastFire.Time
	}
	return &s, nil
}

func (s *Store) CreateSchedule(ctx context.Context, sched *store.Schedule) (int64, error) {
	const query = `
		INSERT INTO batch_schedule (type, cron, payload, enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	enabled := 0
	if sched.Enabled {
		enabled = 1
	}
	var id int64
	err := s.db.QueryRowContext(ctx, query, sched.Type, sched.Cron, sched.Payload, enabled).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create schedule: %w", err)
	}
	return id, nil
}

func (s *Store) GetSchedule(ctx context.Context, id int64) (*store.Schedule, error) {
	sched, err := scanSchedule(s.db.QueryRowContext(ctx, scheduleSelect+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", id, err)
	}
	return sched, nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]store.Schedule, error) {
	return s.listSchedules(ctx, scheduleSelect+" ORDER BY id")
}

func (s *Store) ListEnabledSchedules(ctx context.Context) ([]store.Schedule, error) {
	return s.listSchedules(ctx, scheduleSelect+" WHERE enabled = 1 ORDER BY id")
}

func (s *Store) listSchedules(ctx context.Context, query string) ([]store.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []store.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *sched)
	}
	return schedules, rows.Err()
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE batch_schedule SET enabled = $1 WHERE id = $2", v, id)
	if err != nil {
		return fmt.Errorf("failed to toggle schedule %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM batch_schedule WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %d: %w", id, err)
	}
	return nil
}

func (s *Store) UpdateLastFireAt(ctx context.Context, id int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE batch_schedule SET last_fire_at = $1 WHERE id = $2", ts, id)
	if err != nil {
		return fmt.Errorf("failed to update last fire for schedule %d: %w", id, err)
	}
	return nil
}
