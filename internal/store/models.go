// Package store contains the database layer for batchplane.
package store

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "PENDING"
	TaskStatusRunning         TaskStatus = "RUNNING"
	TaskStatusSucceed         TaskStatus = "SUCCEED"
	TaskStatusFailed          TaskStatus = "FAILED"
	TaskStatusCanceled        TaskStatus = "CANCELED"
	TaskStatusCancelRequested TaskStatus = "CANCEL_REQUESTED"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceed || s == TaskStatusFailed || s == TaskStatusCanceled
}

// RunStatus represents the state of a single execution attempt.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusSucceed  RunStatus = "SUCCEED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusCanceled RunStatus = "CANCELED"
)

// OpStatus represents the state of a compensation log entry.
type OpStatus string

const (
	OpStatusPending OpStatus = "PENDING"
	OpStatusDone    OpStatus = "DONE"
	OpStatusFailed  OpStatus = "FAILED"
)

// Schedule is a cron-driven task template. Only the cron fan-out service
// advances LastFireAt; everything else is edited via the admin surface.
type Schedule struct {
	ID         int64
	Type       string
	Cron       string
	Payload    string
	Enabled    bool
	LastFireAt *time.Time
}

// Task is one unit of claimable work. Ticket is a globally unique
// deduplication key; cron-born tasks carry "schedule#<id>#YYYYMMDDHHMMSS".
type Task struct {
	ID          int64
	ScheduleID  *int64
	Ticket      *string
	Type        string
	Payload     string
	Priority    int
	Status      TaskStatus
	Attempts    int
	MaxAttempts int
	NotBefore   *time.Time
	Owner       *string
	HeartbeatAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	FinishAt    *time.Time
	Message     *string
}

// Run is one execution attempt of a task.
type Run struct {
	ID        int64
	TaskID    int64
	StartedAt time.Time
	EndedAt   *time.Time
	Status    RunStatus
	Message   *string
}

// OperationLog is an append-only, sequence-numbered undo record attached
// to a run. Appended during handler execution, mutated only by the
// compensation replay.
type OperationLog struct {
	ID            int64
	RunID         int64
	SeqNo         int
	ActionType    *string
	ActionPayload string
	Status        OpStatus
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
