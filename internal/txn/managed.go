package txn

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/roach88/mtd/internal/datasource"
)

// ManagedFactory creates transactions demarcated outside this layer.
// The zero value closes connections it opened itself on Close.
type ManagedFactory struct {
	// KeepConnectionOpen leaves even self-opened connections open on Close,
	// for callers that manage the pool's connections themselves.
	KeepConnectionOpen bool

	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger
}

// NewTransaction prepares a managed transaction over ds. autoCommit is
// ignored: the surrounding context owns demarcation.
func (f ManagedFactory) NewTransaction(ctx context.Context, ds datasource.DataSource, level sql.IsolationLevel, autoCommit bool) (Transaction, error) {
	if ds == nil {
		return nil, ErrNoDataSource
	}
	return &ManagedTransaction{
		ds:              ds,
		level:           level,
		closeConnection: !f.KeepConnectionOpen,
		logger:          logger(f.Logger),
	}, nil
}

// FromConnection wraps a caller-held connection. The transaction never
// closes it.
func (f ManagedFactory) FromConnection(ctx context.Context, conn datasource.Connection) (Transaction, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	return &ManagedTransaction{conn: conn, adopted: true, logger: logger(f.Logger)}, nil
}

// ManagedTransaction never commits or rolls back.
type ManagedTransaction struct {
	ds              datasource.DataSource
	conn            datasource.Connection
	level           sql.IsolationLevel
	adopted         bool
	closeConnection bool
	logger          *slog.Logger
}

func (t *ManagedTransaction) Connection(ctx context.Context) (datasource.Connection, error) {
	if t.conn != nil {
		return t.conn, nil
	}
	if t.ds == nil {
		return nil, datasource.ErrConnClosed
	}

	t.logger.Debug("opening managed connection")
	conn, err := t.ds.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if t.level != sql.LevelDefault {
		if err := conn.SetIsolation(t.level); err != nil {
			conn.Close()
			return nil, err
		}
	}
	t.conn = conn
	return conn, nil
}

// Commit does nothing.
func (t *ManagedTransaction) Commit(ctx context.Context) error { return nil }

// Rollback does nothing.
func (t *ManagedTransaction) Rollback(ctx context.Context) error { return nil }

// Close releases the connection without ending its transaction. Adopted
// connections are only detached; closing them would roll back work their
// owner has not finished.
func (t *ManagedTransaction) Close() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil
	if t.adopted {
		t.logger.Debug("detaching adopted connection")
		return nil
	}
	if !t.closeConnection {
		return nil
	}
	t.logger.Debug("closing managed connection")
	return conn.Close()
}
