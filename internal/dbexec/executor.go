// Package dbexec runs report SQL. Reports go either straight to the pool or
// through a read-only transaction; both honor an optional per-statement
// deadline that lasts until the rows are closed.
package dbexec

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// Rows is the subset of *sql.Rows that report code consumes.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor is implemented by PoolExecutor and ReadOnlyExecutor.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// PoolExecutor runs each statement directly on the connection pool.
type PoolExecutor struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPoolExecutor returns an executor over db. A positive timeout bounds
// each statement including row iteration.
func NewPoolExecutor(db *sql.DB, timeout time.Duration) *PoolExecutor {
	return &PoolExecutor{db: db, timeout: timeout}
}

func (e *PoolExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}

	ctx, cancel := withStatementTimeout(ctx, e.timeout)
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &releasingRows{Rows: rows, release: cancel}, nil
}

func withStatementTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// releasingRows runs release once, after the underlying rows are closed.
type releasingRows struct {
	*sql.Rows
	release func()
	once    sync.Once
}

func (r *releasingRows) Close() error {
	err := r.Rows.Close()
	r.once.Do(r.release)
	return err
}
