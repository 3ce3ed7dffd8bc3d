package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReadOnlyExecutor gives every statement its own read-only transaction,
// rolled back when the rows are closed.
type ReadOnlyExecutor struct {
	db      *sql.DB
	timeout time.Duration
}

type ReadOnlyExecutorConfig struct {
	DB *sql.DB
	// Timeout bounds each statement, including row iteration. Zero disables it.
	Timeout time.Duration
}

func NewReadOnlyExecutor(cfg ReadOnlyExecutorConfig) *ReadOnlyExecutor {
	return &ReadOnlyExecutor{db: cfg.DB, timeout: cfg.Timeout}
}

func (e *ReadOnlyExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}

	ctx, cancel := withStatementTimeout(ctx, e.timeout)
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	// Nothing is written, so rollback is the normal way out.
	release := func() {
		_ = tx.Rollback()
		cancel()
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		release()
		return nil, err
	}
	return &releasingRows{Rows: rows, release: release}, nil
}
