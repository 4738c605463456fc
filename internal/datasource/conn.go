package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrConnClosed is returned by every Connection method after Close.
	ErrConnClosed = errors.New("connection is closed")

	// ErrTransactionInProgress is returned when a setting cannot change
	// while a database transaction is open.
	ErrTransactionInProgress = errors.New("transaction in progress")
)

// Connection is one physical connection with explicit demarcation.
//
// Connections are not safe for concurrent use.
type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)

	// AutoCommit reports whether statements commit individually.
	AutoCommit(ctx context.Context) (bool, error)
	SetAutoCommit(ctx context.Context, on bool) error
	SetIsolation(level sql.IsolationLevel) error

	// Begin opens a database transaction in manual-commit mode.
	// It is a no-op in auto-commit mode or when one is already open.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// querier is the statement surface shared by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Conn implements Connection over a *sql.Conn.
type Conn struct {
	raw        *sql.Conn
	autoCommit bool
	isolation  sql.IsolationLevel
	tx         *sql.Tx
	closed     bool
}

// Adopt wraps a caller-owned *sql.Conn. The connection starts in
// auto-commit mode, which is how database/sql hands connections out.
func Adopt(raw *sql.Conn) *Conn {
	return &Conn{raw: raw, autoCommit: true}
}

func (c *Conn) target(ctx context.Context) (querier, error) {
	if c.closed {
		return nil, ErrConnClosed
	}
	if c.autoCommit {
		return c.raw, nil
	}
	if err := c.Begin(ctx); err != nil {
		return nil, err
	}
	return c.tx, nil
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

func (c *Conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	q, err := c.target(ctx)
	if err != nil {
		return nil, err
	}
	return q.PrepareContext(ctx, query)
}

func (c *Conn) AutoCommit(ctx context.Context) (bool, error) {
	if c.closed {
		return false, ErrConnClosed
	}
	return c.autoCommit, nil
}

// SetAutoCommit switches modes. Turning auto-commit on commits any open
// transaction first.
func (c *Conn) SetAutoCommit(ctx context.Context, on bool) error {
	if c.closed {
		return ErrConnClosed
	}
	if on == c.autoCommit {
		return nil
	}
	if on && c.tx != nil {
		if err := c.Commit(ctx); err != nil {
			return fmt.Errorf("set auto-commit: %w", err)
		}
	}
	c.autoCommit = on
	return nil
}

// SetIsolation sets the level used by the next database transaction.
func (c *Conn) SetIsolation(level sql.IsolationLevel) error {
	if c.closed {
		return ErrConnClosed
	}
	if c.tx != nil {
		return fmt.Errorf("set isolation %s: %w", level, ErrTransactionInProgress)
	}
	c.isolation = level
	return nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if c.closed {
		return ErrConnClosed
	}
	if c.autoCommit || c.tx != nil {
		return nil
	}
	tx, err := c.raw.BeginTx(ctx, &sql.TxOptions{Isolation: c.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction, if any.
func (c *Conn) Commit(ctx context.Context) error {
	if c.closed {
		return ErrConnClosed
	}
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction, if any.
func (c *Conn) Rollback(ctx context.Context) error {
	if c.closed {
		return ErrConnClosed
	}
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Close rolls back any open transaction and returns the connection to its
// pool. Calling Close twice is a no-op.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var rbErr error
	if c.tx != nil {
		rbErr = c.tx.Rollback()
		c.tx = nil
	}
	return errors.Join(rbErr, c.raw.Close())
}

// InTransaction reports whether a database transaction is open.
func (c *Conn) InTransaction() bool {
	return c.tx != nil
}
