package testutil

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/roach88/mtd/internal/datasource"
	"github.com/roach88/mtd/internal/txn"
)

// ErrFake is returned by fake statement methods.
var ErrFake = errors.New("fake connection: statements not supported")

// Conn is a datasource.Connection double that records demarcation calls.
//
// Statement methods return ErrFake.
type Conn struct {
	mu sync.Mutex

	AutoCommitValue bool
	AutoCommitErr   error
	CloseErr        error

	Calls []string
}

func (c *Conn) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, call)
}

// Count returns how many times call was recorded.
func (c *Conn) Count(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.Calls {
		if got == call {
			n++
		}
	}
	return n
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.record("exec")
	return nil, ErrFake
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.record("query")
	return nil, ErrFake
}

func (c *Conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	c.record("prepare")
	return nil, ErrFake
}

func (c *Conn) AutoCommit(ctx context.Context) (bool, error) {
	c.record("autocommit")
	return c.AutoCommitValue, c.AutoCommitErr
}

func (c *Conn) SetAutoCommit(ctx context.Context, on bool) error {
	c.record("set-autocommit")
	c.mu.Lock()
	c.AutoCommitValue = on
	c.mu.Unlock()
	return nil
}

func (c *Conn) SetIsolation(level sql.IsolationLevel) error {
	c.record("set-isolation")
	return nil
}

func (c *Conn) Begin(ctx context.Context) error {
	c.record("begin")
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	c.record("commit")
	return nil
}

func (c *Conn) Rollback(ctx context.Context) error {
	c.record("rollback")
	return nil
}

func (c *Conn) Close() error {
	c.record("close")
	return c.CloseErr
}

// DataSource hands out Conn (or fails with Err).
type DataSource struct {
	Conn *Conn
	Err  error
}

func (d *DataSource) Connect(ctx context.Context) (datasource.Connection, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Conn == nil {
		d.Conn = &Conn{AutoCommitValue: true}
	}
	return d.Conn, nil
}

// Transaction is a txn.Transaction double counting Close calls.
type Transaction struct {
	mu sync.Mutex

	Conn     datasource.Connection
	CloseErr error

	closes    int
	commits   int
	rollbacks int
}

func (t *Transaction) Connection(ctx context.Context) (datasource.Connection, error) {
	if t.Conn == nil {
		return nil, ErrFake
	}
	return t.Conn, nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commits++
	return nil
}

func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollbacks++
	return nil
}

func (t *Transaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return t.CloseErr
}

// Closes returns how many times Close was called.
func (t *Transaction) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Commits returns how many times Commit was called.
func (t *Transaction) Commits() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commits
}

// Rollbacks returns how many times Rollback was called.
func (t *Transaction) Rollbacks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbacks
}

// TxFactory is a txn.Factory double.
//
// It returns Tx (a fresh Transaction when nil) or Err, and records what it
// was asked for.
type TxFactory struct {
	mu sync.Mutex

	Tx  *Transaction
	Err error

	NewCalls      int
	FromConnCalls int
	LastDS        datasource.DataSource
	LastLevel     sql.IsolationLevel
	LastAuto      bool
	LastConn      datasource.Connection
}

var _ txn.Factory = (*TxFactory)(nil)

func (f *TxFactory) tx() *Transaction {
	if f.Tx == nil {
		f.Tx = &Transaction{}
	}
	return f.Tx
}

func (f *TxFactory) NewTransaction(ctx context.Context, ds datasource.DataSource, level sql.IsolationLevel, autoCommit bool) (txn.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NewCalls++
	f.LastDS, f.LastLevel, f.LastAuto = ds, level, autoCommit
	if f.Err != nil {
		return nil, f.Err
	}
	return f.tx(), nil
}

func (f *TxFactory) FromConnection(ctx context.Context, conn datasource.Connection) (txn.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FromConnCalls++
	f.LastConn = conn
	if f.Err != nil {
		return nil, f.Err
	}
	tx := f.tx()
	tx.Conn = conn
	return tx, nil
}
