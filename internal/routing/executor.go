package routing

import (
	"context"
	"fmt"

	"github.com/roach88/mtd/internal/errctx"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/listener"
	"github.com/roach88/mtd/internal/txn"
)

// Executor routes every statement through a Router before handing it to the
// wrapped executor.
//
// When notify is set the Executor fires the listener chain itself, with the
// physical table in each event. notify is fixed at construction: it is true
// exactly when no listener-aware session sits above this executor.
type Executor struct {
	inner     executor.Executor
	router    *Router
	notify    bool
	listeners listener.Chain
}

var _ executor.Executor = (*Executor)(nil)

// NewExecutor wraps inner. A nil router routes nothing.
func NewExecutor(inner executor.Executor, router *Router, notify bool, listeners listener.Chain) *Executor {
	return &Executor{
		inner:     inner,
		router:    router,
		notify:    notify,
		listeners: listeners,
	}
}

// Notifies reports whether this executor fires listener notifications.
func (e *Executor) Notifies() bool { return e.notify }

// Inner returns the wrapped executor.
func (e *Executor) Inner() executor.Executor { return e.inner }

// Router returns the router in use.
func (e *Executor) Router() *Router { return e.router }

func (e *Executor) route(ctx context.Context, stmt executor.Statement, args []any) (executor.Statement, string, error) {
	routed, target, ok, err := e.router.Route(stmt, args)
	if err != nil {
		errctx.From(ctx).Activity("routing a statement").Object(stmt.ID).Cause(err)
		return stmt, "", fmt.Errorf("route: %w", err)
	}
	if !ok {
		return stmt, stmt.Table, nil
	}
	return routed, target.Physical, nil
}

func (e *Executor) Update(ctx context.Context, stmt executor.Statement, args ...any) (int64, error) {
	routed, table, err := e.route(ctx, stmt, args)
	if err != nil {
		return 0, err
	}
	if !e.notify {
		return e.inner.Update(ctx, routed, args...)
	}

	ev := &listener.Event{Op: listener.OpUpdate, Statement: routed, Args: args, Table: table}
	res, err := e.listeners.Around(ctx, ev, func() (listener.Result, error) {
		n, err := e.inner.Update(ctx, routed, args...)
		return listener.Result{Affected: n}, err
	})
	return res.Affected, err
}

func (e *Executor) Query(ctx context.Context, stmt executor.Statement, args ...any) ([]executor.Row, error) {
	routed, table, err := e.route(ctx, stmt, args)
	if err != nil {
		return nil, err
	}
	if !e.notify {
		return e.inner.Query(ctx, routed, args...)
	}

	ev := &listener.Event{Op: listener.OpQuery, Statement: routed, Args: args, Table: table}
	res, err := e.listeners.Around(ctx, ev, func() (listener.Result, error) {
		rows, err := e.inner.Query(ctx, routed, args...)
		return listener.Result{Rows: rows}, err
	})
	return res.Rows, err
}

func (e *Executor) FlushStatements(ctx context.Context) ([]executor.BatchResult, error) {
	return e.inner.FlushStatements(ctx)
}

func (e *Executor) Commit(ctx context.Context, required bool) error {
	return e.inner.Commit(ctx, required)
}

func (e *Executor) Rollback(ctx context.Context, required bool) error {
	return e.inner.Rollback(ctx, required)
}

func (e *Executor) ClearLocalCache() { e.inner.ClearLocalCache() }

func (e *Executor) Close(ctx context.Context, forceRollback bool) error {
	return e.inner.Close(ctx, forceRollback)
}

func (e *Executor) IsClosed() bool { return e.inner.IsClosed() }

func (e *Executor) Transaction() txn.Transaction { return e.inner.Transaction() }

func (e *Executor) AutoCommit() bool { return e.inner.AutoCommit() }
