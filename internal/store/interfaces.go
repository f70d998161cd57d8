package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// Dispatcher is the transactional surface the task engine polls against.
// Every call runs in its own short transaction so a handler failure can
// never roll back engine bookkeeping.
type Dispatcher interface {
	// ClaimOne atomically claims one ready task for owner. It locks one
	// PENDING row whose not_before has passed (skipping rows locked by
	// concurrent claimers), flips it to RUNNING and returns it. Returns
	// (nil, nil) when nothing is claimable or the row was taken by a
	// competing process between lock and update.
	ClaimOne(ctx context.Context, owner string) (*Task, error)

	// CreateRun inserts a new RUNNING run for the task.
	CreateRun(ctx context.Context, taskID int64, startedAt time.Time) (*Run, error)

	// Complete writes the final status of a task and its run. final
	// overrides the SUCCEED/FAILED derivation from succeeded when
	// non-empty. The run status follows the task status (CANCELED tasks
	// get CANCELED runs). Missing rows are logged and ignored.
	Complete(ctx context.Context, taskID, runID int64, succeeded bool, message string, finishedAt time.Time, final TaskStatus) error

	// IsCancelRequested reports whether the task is in CANCEL_REQUESTED.
	IsCancelRequested(ctx context.Context, taskID int64) (bool, error)
}

// CompensationLog records and replays per-run undo actions.
type CompensationLog interface {
	// LogCompensation appends a PENDING entry with the next sequence
	// number for the run. A runID of 0 is resolved from the ambient run
	// context (see WithRun); an unresolvable runID is an error.
	LogCompensation(ctx context.Context, runID int64, actionType, payloadJSON string) error

	// FetchCompensationsDesc returns the run's entries ordered by
	// sequence number descending (last action first).
	FetchCompensationsDesc(ctx context.Context, runID int64) ([]OperationLog, error)

	MarkCompensationDone(ctx context.Context, opID int64) error

	// MarkCompensationFailed increments the attempt counter and records
	// the last error.
	MarkCompensationFailed(ctx context.Context, opID int64, errMsg string) error
}

// TaskAdmin is the task surface used by the admin handlers and the cron
// fan-out.
type TaskAdmin interface {
	// EnqueueTask inserts an ad-hoc PENDING task and returns its id.
	EnqueueTask(ctx context.Context, t *Task) (int64, error)

	// InsertTaskIfAbsent performs the conditional ticket insert used by
	// cron fan-out. Returns false without error when a task with the
	// same ticket already exists.
	InsertTaskIfAbsent(ctx context.Context, t *Task) (bool, error)

	GetTask(ctx context.Context, id int64) (*Task, error)
	ListTasks(ctx context.Context, limit int) ([]Task, error)

	// SetTaskStatus moves a task from one status to another. Returns
	// false when the task was no longer in from.
	SetTaskStatus(ctx context.Context, id int64, from, to TaskStatus) (bool, error)

	DeleteTask(ctx context.Context, id int64) error
	CountTasksBySchedule(ctx context.Context, scheduleID int64) (int64, error)
	CountPendingTasks(ctx context.Context) (int64, error)
}

// ScheduleAdmin is the schedule surface used by the admin handlers and the
// cron fan-out.
type ScheduleAdmin interface {
	CreateSchedule(ctx context.Context, s *Schedule) (int64, error)
	GetSchedule(ctx context.Context, id int64) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]Schedule, error)
	ListEnabledSchedules(ctx context.Context) ([]Schedule, error)
	SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteSchedule(ctx context.Context, id int64) error

	// UpdateLastFireAt advances the schedule's last-fire instant.
	UpdateLastFireAt(ctx context.Context, id int64, ts time.Time) error
}

// Store is the full contract a storage vendor implements.
type Store interface {
	Dispatcher
	CompensationLog
	TaskAdmin
	ScheduleAdmin

	Ping(ctx context.Context) error
	Close() error
}
