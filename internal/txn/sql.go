package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/mtd/internal/datasource"
)

// SQLFactory creates transactions demarcated by this layer.
type SQLFactory struct {
	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger
}

func (f SQLFactory) NewTransaction(ctx context.Context, ds datasource.DataSource, level sql.IsolationLevel, autoCommit bool) (Transaction, error) {
	if ds == nil {
		return nil, ErrNoDataSource
	}
	return &SQLTransaction{ds: ds, level: level, autoCommit: autoCommit, logger: logger(f.Logger)}, nil
}

func (f SQLFactory) FromConnection(ctx context.Context, conn datasource.Connection) (Transaction, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	autoCommit, err := conn.AutoCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("read auto-commit: %w", err)
	}
	return &SQLTransaction{conn: conn, autoCommit: autoCommit, logger: logger(f.Logger)}, nil
}

// SQLTransaction commits and rolls back through its connection.
type SQLTransaction struct {
	ds         datasource.DataSource
	conn       datasource.Connection
	level      sql.IsolationLevel
	autoCommit bool
	logger     *slog.Logger
}

// Connection acquires the connection on first use and applies the
// requested isolation and auto-commit mode.
func (t *SQLTransaction) Connection(ctx context.Context) (datasource.Connection, error) {
	if t.conn != nil {
		return t.conn, nil
	}

	t.logger.Debug("opening connection")
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
	if err := conn.SetAutoCommit(ctx, t.autoCommit); err != nil {
		conn.Close()
		return nil, err
	}
	t.conn = conn
	return conn, nil
}

func (t *SQLTransaction) Commit(ctx context.Context) error {
	if t.conn == nil || t.autoCommit {
		return nil
	}
	t.logger.Debug("committing connection")
	return t.conn.Commit(ctx)
}

func (t *SQLTransaction) Rollback(ctx context.Context) error {
	if t.conn == nil || t.autoCommit {
		return nil
	}
	t.logger.Debug("rolling back connection")
	return t.conn.Rollback(ctx)
}

// Close restores auto-commit (which ends any open transaction the way the
// driver would on return to the pool) and releases the connection.
func (t *SQLTransaction) Close() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil

	if !t.autoCommit {
		ctx := context.Background()
		err := conn.Rollback(ctx)
		if err == nil {
			err = conn.SetAutoCommit(ctx, true)
		}
		if err != nil {
			t.logger.Debug("error resetting auto-commit before close", "error", err)
		}
	}
	t.logger.Debug("closing connection")
	return conn.Close()
}

// AutoCommit reports the mode the transaction was created with.
func (t *SQLTransaction) AutoCommit() bool {
	return t.autoCommit
}
