package postgres

import (
	"context"
	"testing"
	"time"

	"batchplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestInsertTaskIfAbsent_Inserted(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ticket := "schedule#7#20250922080000"
	scheduleID := int64(7)
	notBefore := time.Now()

	mock.ExpectExec(`INSERT INTO batch_task .*WHERE NOT EXISTS`).
		WithArgs(ticket, "code.index", "{}", 0, string(store.TaskStatusPending),
			0, 3, notBefore, scheduleID).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := s.InsertTaskIfAbsent(context.Background(), &store.Task{
		Ticket: &ticket, Type: "code.index", Payload: "{}",
		MaxAttempts: 3, NotBefore: &notBefore, ScheduleID: &scheduleID,
	})
	if err != nil {
		t.Fatalf("InsertTaskIfAbsent failed: %v", err)
	}
	if !inserted {
		t.Error("expected insert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInsertTaskIfAbsent_TicketCollisionIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	ticket := "schedule#7#20250922080000"
	mock.ExpectExec(`INSERT INTO batch_task .*WHERE NOT EXISTS`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.InsertTaskIfAbsent(context.Background(), &store.Task{
		Ticket: &ticket, Type: "code.index",
	})
	if err != nil {
		t.Fatalf("ticket collision must not raise: %v", err)
	}
	if inserted {
		t.Error("collision must report no insert")
	}
}

func TestSetTaskStatus_Guarded(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE batch_task\s+SET status = \$1`).
		WithArgs(string(store.TaskStatusCanceled), int64(3), string(store.TaskStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := s.SetTaskStatus(context.Background(), 3,
		store.TaskStatusPending, store.TaskStatusCanceled)
	if err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if !moved {
		t.Error("expected transition")
	}

	mock.ExpectExec(`UPDATE batch_task\s+SET status = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	moved, err = s.SetTaskStatus(context.Background(), 3,
		store.TaskStatusPending, store.TaskStatusCanceled)
	if err != nil {
		t.Fatal(err)
	}
	if moved {
		t.Error("stale transition must report false")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, schedule_id, ticket_no`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(taskColumns()))

	_, err := s.GetTask(context.Background(), 99)
	if err != store.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestIsCancelRequested(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT status FROM batch_task`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CANCEL_REQUESTED"))

	got, err := s.IsCancelRequested(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("expected true for CANCEL_REQUESTED")
	}

	// a deleted task reads as not cancel-requested
	mock.ExpectQuery(`SELECT status FROM batch_task`).
		WithArgs(int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	got, err = s.IsCancelRequested(context.Background(), 6)
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("missing task must read false")
	}
}

func TestComplete_WritesTaskAndRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	finish := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE batch_task\s+SET status = \$1, message = \$2, finish_at = \$3`).
		WithArgs(string(store.TaskStatusSucceed), "", finish, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE batch_run\s+SET status = \$1, ended_at = \$2`).
		WithArgs(string(store.RunStatusSucceed), finish, "", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Complete(context.Background(), 1, 2, true, "", finish, ""); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestComplete_CanceledTaskCancelsRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	finish := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE batch_task`).
		WithArgs(string(store.TaskStatusCanceled), "Interrupted during execution", finish, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE batch_run`).
		WithArgs(string(store.RunStatusCanceled), finish, "Interrupted during execution", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Complete(context.Background(), 1, 2, false, "Interrupted during execution",
		finish, store.TaskStatusCanceled)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestComplete_MissingTaskIsIdempotent(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE batch_task`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// missing row: logged, no error, run untouched
	if err := s.Complete(context.Background(), 404, 2, true, "", time.Now(), ""); err != nil {
		t.Fatalf("Complete on missing task must not fail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
