// Package txn defines the unit of work a session runs in.
//
// A Transaction owns exactly one physical connection for its lifetime and is
// released exactly once. Two kinds are provided:
//
//   - SQLTransaction: this layer demarcates. Commit and Rollback end the
//     database transaction; Close resets auto-commit and releases the
//     connection.
//   - ManagedTransaction: the caller's surrounding context demarcates.
//     Commit and Rollback are no-ops and Close never ends the connection's
//     transaction. Connections adopted with FromConnection are never
//     closed: their owner keeps the lifetime.
//
// Factories build either kind from a data source (lazy connect) or from a
// connection the caller already holds.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/mtd/internal/datasource"
)

// ErrNoDataSource is returned when a transaction is requested from an
// environment that has no data source.
var ErrNoDataSource = errors.New("environment has no data source")

// Transaction wraps one physical connection.
//
// Transactions are not safe for concurrent use.
type Transaction interface {
	// Connection returns the transaction's connection, acquiring it on
	// first use.
	Connection(ctx context.Context) (datasource.Connection, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// Factory creates transactions.
type Factory interface {
	// NewTransaction prepares a transaction over ds. level sql.LevelDefault
	// leaves the driver's isolation untouched.
	NewTransaction(ctx context.Context, ds datasource.DataSource, level sql.IsolationLevel, autoCommit bool) (Transaction, error)

	// FromConnection wraps a connection the caller already holds.
	FromConnection(ctx context.Context, conn datasource.Connection) (Transaction, error)
}

// logger returns l, or the default logger when l is nil.
func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

var isolationNames = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"write_committed":  sql.LevelWriteCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"snapshot":         sql.LevelSnapshot,
	"serializable":     sql.LevelSerializable,
	"linearizable":     sql.LevelLinearizable,
}

// ParseIsolation maps a configuration name ("read_committed",
// "Read Committed", "REPEATABLE-READ") to a level.
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	level, ok := isolationNames[key]
	if !ok {
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", name)
	}
	return level, nil
}
