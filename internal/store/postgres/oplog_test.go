package postgres

import (
	"context"
	"testing"
	"time"

	"batchplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLogCompensation_AssignsNextSeq(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq_no\), 0\) \+ 1 FROM batch_operation_log`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO batch_operation_log`).
		WithArgs(int64(9), 3, "file.restore", `{"file":"a"}`, string(store.OpStatusPending)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.LogCompensation(context.Background(), 9, "file.restore", `{"file":"a"}`)
	if err != nil {
		t.Fatalf("LogCompensation failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLogCompensation_RunIDFromContext(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq_no\), 0\) \+ 1`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO batch_operation_log`).
		WithArgs(int64(42), 1, "file.restore", `{}`, string(store.OpStatusPending)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx := store.WithRun(context.Background(), 42)
	if err := s.LogCompensation(ctx, 0, "file.restore", `{}`); err != nil {
		t.Fatalf("LogCompensation failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLogCompensation_NoRunBound(t *testing.T) {
	s, _ := newMockStore(t)
	defer s.db.Close()

	if err := s.LogCompensation(context.Background(), 0, "file.restore", `{}`); err == nil {
		t.Error("expected error without a bound run")
	}
}

func TestFetchCompensationsDesc(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "run_id", "seq_no", "action_type",
		"action_payload", "status", "attempts", "last_error", "created_at", "updated_at"}).
		AddRow(12, 9, 2, "file.restore", `{"file":"b"}`, "PENDING", 0, nil, now, now).
		AddRow(11, 9, 1, "file.restore", `{"file":"a"}`, "PENDING", 0, nil, now, now)

	mock.ExpectQuery(`ORDER BY seq_no DESC`).
		WithArgs(int64(9)).
		WillReturnRows(rows)

	ops, err := s.FetchCompensationsDesc(context.Background(), 9)
	if err != nil {
		t.Fatalf("FetchCompensationsDesc failed: %v", err)
	}
	if len(ops) != 2 || ops[0].SeqNo != 2 || ops[1].SeqNo != 1 {
		t.Errorf("ops = %+v, want seq 2 then 1", ops)
	}
	if ops[0].ActionType == nil || *ops[0].ActionType != "file.restore" {
		t.Errorf("action type = %v", ops[0].ActionType)
	}
}

func TestMarkCompensationDone_MissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`UPDATE batch_operation_log`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.MarkCompensationDone(context.Background(), 77); err != store.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMarkCompensationFailed_IncrementsAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`SET status = \$1, attempts = attempts \+ 1, last_error = \$2`).
		WithArgs(string(store.OpStatusFailed), "boom", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.MarkCompensationFailed(context.Background(), 5, "boom"); err != nil {
		t.Fatalf("MarkCompensationFailed failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
