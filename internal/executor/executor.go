// Package executor is the execution engine a session runs statements
// through.
//
// One base executor exists per session. It borrows the session's
// transaction, keeps a session-local result cache, and delegates the actual
// statement handling to a strategy chosen by Type:
//
//   - Simple: every statement goes straight to the connection.
//   - Reuse:  prepared statements are cached per SQL text until flush.
//   - Batch:  updates queue up and run on FlushStatements, commit, or the
//     next query.
//
// Decorators (see package routing) wrap an Executor and must preserve this
// contract.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/mtd/internal/errctx"
	"github.com/roach88/mtd/internal/txn"
)

// strategy is the per-Type statement handling.
type strategy interface {
	update(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) (int64, error)
	query(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) ([]Row, error)
	flush(ctx context.Context, tx txn.Transaction, rollback bool) ([]BatchResult, error)
	release()
}

// Base is the executor built for every session.
type Base struct {
	tx         txn.Transaction
	typ        Type
	autoCommit bool
	strategy   strategy
	cache      map[string][]Row
	closed     bool
}

// New builds the base executor for t over tx.
func New(t Type, tx txn.Transaction, autoCommit bool) (*Base, error) {
	if tx == nil {
		return nil, errors.New("executor: nil transaction")
	}
	var s strategy
	switch t {
	case Simple:
		s = simpleStrategy{}
	case Reuse:
		s = &reuseStrategy{}
	case Batch:
		s = &batchStrategy{}
	default:
		return nil, fmt.Errorf("executor: unsupported type %s", t)
	}
	return &Base{
		tx:         tx,
		typ:        t,
		autoCommit: autoCommit,
		strategy:   s,
		cache:      make(map[string][]Row),
	}, nil
}

// Type reports the strategy.
func (b *Base) Type() Type { return b.typ }

func (b *Base) Transaction() txn.Transaction { return b.tx }

func (b *Base) AutoCommit() bool { return b.autoCommit }

func (b *Base) IsClosed() bool { return b.closed }

func (b *Base) Update(ctx context.Context, stmt Statement, args ...any) (int64, error) {
	if b.closed {
		return 0, ErrExecutorClosed
	}
	errctx.From(ctx).Activity("executing an update").Object(stmt.ID).SQL(stmt.SQL)
	b.ClearLocalCache()

	n, err := b.strategy.update(ctx, b.tx, stmt, args)
	if err != nil {
		errctx.From(ctx).Cause(err)
		return 0, fmt.Errorf("update %s: %w", stmt.ID, err)
	}
	return n, nil
}

func (b *Base) Query(ctx context.Context, stmt Statement, args ...any) ([]Row, error) {
	if b.closed {
		return nil, ErrExecutorClosed
	}
	errctx.From(ctx).Activity("executing a query").Object(stmt.ID).SQL(stmt.SQL)

	key := cacheKey(stmt, args)
	if rows, ok := b.cache[key]; ok {
		slog.Debug("local cache hit", "statement", stmt.ID)
		return cloneRows(rows), nil
	}

	rows, err := b.strategy.query(ctx, b.tx, stmt, args)
	if err != nil {
		errctx.From(ctx).Cause(err)
		return nil, fmt.Errorf("query %s: %w", stmt.ID, err)
	}
	b.cache[key] = rows
	return cloneRows(rows), nil
}

func (b *Base) FlushStatements(ctx context.Context) ([]BatchResult, error) {
	if b.closed {
		return nil, ErrExecutorClosed
	}
	return b.strategy.flush(ctx, b.tx, false)
}

func (b *Base) Commit(ctx context.Context, required bool) error {
	if b.closed {
		return fmt.Errorf("cannot commit: %w", ErrExecutorClosed)
	}
	b.ClearLocalCache()
	if _, err := b.strategy.flush(ctx, b.tx, false); err != nil {
		return err
	}
	if required {
		return b.tx.Commit(ctx)
	}
	return nil
}

func (b *Base) Rollback(ctx context.Context, required bool) error {
	if b.closed {
		return nil
	}
	b.ClearLocalCache()
	_, flushErr := b.strategy.flush(ctx, b.tx, true)
	if !required {
		return flushErr
	}
	return errors.Join(flushErr, b.tx.Rollback(ctx))
}

func (b *Base) ClearLocalCache() {
	if b.closed {
		return
	}
	clear(b.cache)
}

// Close rolls back (forced or not) and closes the transaction. Errors are
// logged and returned; the executor is closed either way.
func (b *Base) Close(ctx context.Context, forceRollback bool) error {
	if b.closed {
		return nil
	}
	rbErr := b.Rollback(ctx, forceRollback)
	b.strategy.release()
	closeErr := b.tx.Close()
	b.closed = true
	b.cache = nil

	err := errors.Join(rbErr, closeErr)
	if err != nil {
		slog.Warn("unexpected error closing executor", "error", err)
	}
	return err
}

func cacheKey(stmt Statement, args []any) string {
	return fmt.Sprintf("%s\x00%s\x00%#v", stmt.ID, stmt.SQL, args)
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		c := make(Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
