package sqlite

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"batchplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db, log: slog.New(slog.NewTextHandler(io.Discard, nil))}, mock
}

func TestClaimOne_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	taskRow := sqlmock.NewRows([]string{"id", "schedule_id", "ticket_no", "type",
		"payload", "priority", "status", "attempts", "max_attempts", "not_before",
		"owner", "heartbeat_at", "created_at", "updated_at", "finish_at", "message"}).
		AddRow(7, nil, nil, "code.index", "{}", 0, "RUNNING", 0, 3, nil,
			"local#1", now, now, now, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM batch_task\s+WHERE status = 'PENDING'`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`UPDATE batch_task\s+SET status = 'RUNNING'`).
		WithArgs("local#1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, schedule_id, ticket_no`).
		WithArgs(int64(7)).
		WillReturnRows(taskRow)
	mock.ExpectCommit()

	task, err := s.ClaimOne(context.Background(), "local#1")
	if err != nil {
		t.Fatalf("ClaimOne failed: %v", err)
	}
	if task == nil || task.ID != 7 || task.Status != store.TaskStatusRunning {
		t.Fatalf("task = %+v", task)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClaimOne_ContentionReturnsNothing(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id\s+FROM batch_task`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`UPDATE batch_task\s+SET status = 'RUNNING'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	task, err := s.ClaimOne(context.Background(), "local#1")
	if err != nil {
		t.Fatalf("ClaimOne failed: %v", err)
	}
	if task != nil {
		t.Errorf("task = %+v, want nil on contention", task)
	}
}

func TestInsertTaskIfAbsent_Conditional(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ticket := "schedule#7#20250922080000"
	mock.ExpectExec(`INSERT INTO batch_task .*WHERE NOT EXISTS`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := s.InsertTaskIfAbsent(context.Background(), &store.Task{
		Ticket: &ticket, Type: "code.index",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("expected insert")
	}

	mock.ExpectExec(`INSERT INTO batch_task .*WHERE NOT EXISTS`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err = s.InsertTaskIfAbsent(context.Background(), &store.Task{
		Ticket: &ticket, Type: "code.index",
	})
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("collision must report no insert")
	}
}
