package testutil

import (
	"context"
	"sync"

	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/txn"
)

// Executor is an executor.Executor double. It records statements and
// returns Rows / Affected / Err.
type Executor struct {
	mu sync.Mutex

	Tx       txn.Transaction
	Rows     []executor.Row
	Affected int64
	Err      error

	// OnCall, when set, runs inside every Update and Query.
	OnCall func(stmt executor.Statement)

	Statements []executor.Statement
	Commits    []bool
	Rollbacks  []bool
	closed     bool
}

var _ executor.Executor = (*Executor)(nil)

func (e *Executor) Update(ctx context.Context, stmt executor.Statement, args ...any) (int64, error) {
	e.mu.Lock()
	e.Statements = append(e.Statements, stmt)
	e.mu.Unlock()
	if e.OnCall != nil {
		e.OnCall(stmt)
	}
	return e.Affected, e.Err
}

func (e *Executor) Query(ctx context.Context, stmt executor.Statement, args ...any) ([]executor.Row, error) {
	e.mu.Lock()
	e.Statements = append(e.Statements, stmt)
	e.mu.Unlock()
	if e.OnCall != nil {
		e.OnCall(stmt)
	}
	return e.Rows, e.Err
}

func (e *Executor) FlushStatements(ctx context.Context) ([]executor.BatchResult, error) {
	return nil, nil
}

func (e *Executor) Commit(ctx context.Context, required bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commits = append(e.Commits, required)
	return nil
}

func (e *Executor) Rollback(ctx context.Context, required bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Rollbacks = append(e.Rollbacks, required)
	return nil
}

func (e *Executor) ClearLocalCache() {}

func (e *Executor) Close(ctx context.Context, forceRollback bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.Tx != nil {
		return e.Tx.Close()
	}
	return nil
}

func (e *Executor) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Executor) Transaction() txn.Transaction { return e.Tx }

func (e *Executor) AutoCommit() bool { return false }
