package perf

import (
	"context"
	"database/sql"
	"time"
)

// DB wraps *sql.DB so every query and exec is attributed to the Capture in
// its context. Handlers use it exactly like the raw handle.
type DB struct {
	*sql.DB
}

func WrapDB(db *sql.DB) *DB {
	return &DB{DB: db}
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.DB.QueryContext(ctx, query, args...)
	record(ctx, start)
	return rows, err
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := d.DB.QueryRowContext(ctx, query, args...)
	record(ctx, start)
	return row
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := d.DB.ExecContext(ctx, query, args...)
	record(ctx, start)
	return res, err
}

func record(ctx context.Context, start time.Time) {
	if c := FromContext(ctx); c != nil {
		c.RecordSQL(time.Since(start))
	}
}
