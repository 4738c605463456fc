// Package session provides the caller-facing handle a unit of work runs
// through.
//
// A Session combines a read-only Configuration with exactly one (possibly
// decorated) Executor, which in turn owns the session's Transaction.
// Sessions are not safe for concurrent use; open one per unit of work.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/mtd/internal/config"
	"github.com/roach88/mtd/internal/datasource"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/listener"
)

// ErrTooManyResults is returned by SelectOne when more than one row matches.
var ErrTooManyResults = errors.New("expected one result (or nil), but found more")

// Session runs statements and controls the transaction they run in.
type Session interface {
	ID() string

	// SelectOne returns the single matching row, or nil when none match.
	SelectOne(ctx context.Context, stmt executor.Statement, args ...any) (executor.Row, error)
	SelectList(ctx context.Context, stmt executor.Statement, args ...any) ([]executor.Row, error)
	Insert(ctx context.Context, stmt executor.Statement, args ...any) (int64, error)
	Update(ctx context.Context, stmt executor.Statement, args ...any) (int64, error)
	Delete(ctx context.Context, stmt executor.Statement, args ...any) (int64, error)
	FlushStatements(ctx context.Context) ([]executor.BatchResult, error)

	// Begin acquires the connection and opens a database transaction when
	// the session is in manual-commit mode.
	Begin(ctx context.Context) error

	// Commit and Rollback act only when there is uncommitted work in
	// manual-commit mode, unless force is set.
	Commit(ctx context.Context, force bool) error
	Rollback(ctx context.Context, force bool) error

	// Close rolls back uncommitted work and releases the transaction.
	Close(ctx context.Context) error
	ClearCache()

	Connection(ctx context.Context) (datasource.Connection, error)
	Configuration() *config.Configuration
	Executor() executor.Executor
}

// Default is the plain session.
type Default struct {
	id         string
	cfg        *config.Configuration
	exec       executor.Executor
	autoCommit bool
	dirty      bool

	// around brackets statement execution; nil runs statements directly.
	around func(ctx context.Context, ev *listener.Event, fn func() (listener.Result, error)) (listener.Result, error)
}

var _ Session = (*Default)(nil)

// NewDefault returns a session over exec.
func NewDefault(id string, cfg *config.Configuration, exec executor.Executor, autoCommit bool) *Default {
	return &Default{id: id, cfg: cfg, exec: exec, autoCommit: autoCommit}
}

func (s *Default) ID() string { return s.id }

func (s *Default) Configuration() *config.Configuration { return s.cfg }

// Executor returns the outermost executor of the session's chain.
func (s *Default) Executor() executor.Executor { return s.exec }

func (s *Default) AutoCommit() bool { return s.autoCommit }

// Dirty reports whether updates ran since the last commit or rollback.
func (s *Default) Dirty() bool { return s.dirty }

func (s *Default) SelectOne(ctx context.Context, stmt executor.Statement, args ...any) (executor.Row, error) {
	rows, err := s.SelectList(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%s: %w: %d", stmt.ID, ErrTooManyResults, len(rows))
	}
}

func (s *Default) SelectList(ctx context.Context, stmt executor.Statement, args ...any) ([]executor.Row, error) {
	ctx = listener.WithSession(ctx, s.id)
	run := func() (listener.Result, error) {
		rows, err := s.exec.Query(ctx, stmt, args...)
		return listener.Result{Rows: rows}, err
	}

	res, err := s.run(ctx, listener.OpQuery, stmt, args, run)
	if err != nil {
		return res.Rows, fmt.Errorf("error querying database: %w", err)
	}
	return res.Rows, nil
}

func (s *Default) Insert(ctx context.Context, stmt executor.Statement, args ...any) (int64, error) {
	return s.Update(ctx, stmt, args...)
}

func (s *Default) Delete(ctx context.Context, stmt executor.Statement, args ...any) (int64, error) {
	return s.Update(ctx, stmt, args...)
}

func (s *Default) Update(ctx context.Context, stmt executor.Statement, args ...any) (int64, error) {
	ctx = listener.WithSession(ctx, s.id)
	s.dirty = true
	run := func() (listener.Result, error) {
		n, err := s.exec.Update(ctx, stmt, args...)
		return listener.Result{Affected: n}, err
	}

	res, err := s.run(ctx, listener.OpUpdate, stmt, args, run)
	if err != nil {
		return res.Affected, fmt.Errorf("error updating database: %w", err)
	}
	return res.Affected, nil
}

func (s *Default) run(ctx context.Context, op listener.Op, stmt executor.Statement, args []any, fn func() (listener.Result, error)) (listener.Result, error) {
	if s.around == nil {
		return fn()
	}
	ev := &listener.Event{SessionID: s.id, Op: op, Statement: stmt, Args: args, Table: stmt.Table}
	return s.around(ctx, ev, fn)
}

func (s *Default) FlushStatements(ctx context.Context) ([]executor.BatchResult, error) {
	results, err := s.exec.FlushStatements(ctx)
	if err != nil {
		return nil, fmt.Errorf("error flushing statements: %w", err)
	}
	return results, nil
}

func (s *Default) Begin(ctx context.Context) error {
	conn, err := s.Connection(ctx)
	if err != nil {
		return err
	}
	if err := conn.Begin(ctx); err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	return nil
}

func (s *Default) Commit(ctx context.Context, force bool) error {
	if err := s.exec.Commit(ctx, s.required(force)); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Default) Rollback(ctx context.Context, force bool) error {
	if err := s.exec.Rollback(ctx, s.required(force)); err != nil {
		return fmt.Errorf("error rolling back transaction: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Default) Close(ctx context.Context) error {
	err := s.exec.Close(ctx, s.required(false))
	s.dirty = false
	if err != nil {
		return fmt.Errorf("error closing session: %w", err)
	}
	return nil
}

func (s *Default) ClearCache() { s.exec.ClearLocalCache() }

func (s *Default) Connection(ctx context.Context) (datasource.Connection, error) {
	tx := s.exec.Transaction()
	if tx == nil {
		return nil, errors.New("error getting a new connection: session has no transaction")
	}
	conn, err := tx.Connection(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting a new connection: %w", err)
	}
	return conn, nil
}

// required reports whether commit or rollback must reach the database.
func (s *Default) required(force bool) bool {
	return (!s.autoCommit && s.dirty) || force
}
