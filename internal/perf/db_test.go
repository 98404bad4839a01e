package perf

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestDBCountsQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec("UPDATE topics").WillReturnResult(sqlmock.NewResult(0, 1))

	wrapped := WrapDB(db)
	ctx, c := Start(context.Background())

	rows, err := wrapped.QueryContext(ctx, "SELECT 1")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	rows.Close()

	if _, err := wrapped.ExecContext(ctx, "UPDATE topics SET views = views + 1"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}

	if c.SQLCalls() != 2 {
		t.Errorf("SQLCalls = %d, want 2", c.SQLCalls())
	}
	if c.SQLTime() <= 0 {
		t.Error("SQLTime not recorded")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDBOutsideCaptureScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	wrapped := WrapDB(db)
	rows, err := wrapped.QueryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("QueryContext without capture: %v", err)
	}
	rows.Close()
}
