package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/mtd/internal/txn"
)

// ErrExecutorClosed is returned by statement operations after Close.
var ErrExecutorClosed = errors.New("executor was closed")

// Type selects the execution strategy.
type Type int

const (
	// Simple runs every statement directly.
	Simple Type = iota
	// Reuse prepares each distinct SQL text once and reuses it until flush.
	Reuse
	// Batch queues updates until FlushStatements.
	Batch
)

var typeNames = []string{"simple", "reuse", "batch"}

func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps "simple", "reuse" or "batch" (any case) to a Type.
// An empty string is Simple.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return Simple, nil
	}
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return Simple, fmt.Errorf("unknown executor type %q: must be one of %v", s, typeNames)
}

// Kind classifies a statement.
type Kind int

const (
	KindUnknown Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// KindOf infers the kind from the leading SQL keyword. WITH, VALUES,
// PRAGMA, SHOW and EXPLAIN count as selects.
func KindOf(sql string) Kind {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return KindUnknown
	}
	switch strings.ToLower(strings.TrimLeft(fields[0], "(")) {
	case "select", "with", "values", "pragma", "show", "explain":
		return KindSelect
	case "insert", "replace":
		return KindInsert
	case "update":
		return KindUpdate
	case "delete":
		return KindDelete
	default:
		return KindUnknown
	}
}

// Statement is one mapped SQL statement.
type Statement struct {
	// ID names the statement for diagnostics and listeners ("orders.insert").
	ID   string
	Kind Kind
	SQL  string

	// Table is the logical table the statement targets. Routing uses it;
	// it may be empty.
	Table string
}

// NewStatement builds a statement, inferring its kind from sql.
func NewStatement(id, table, sql string) Statement {
	return Statement{ID: id, Kind: KindOf(sql), SQL: sql, Table: table}
}

// Row is one result row keyed by column name.
type Row map[string]any

// BatchResult reports one group of queued updates sharing the same SQL.
type BatchResult struct {
	Statement Statement
	Args      [][]any
	Counts    []int64
}

// Executor runs statements inside one transaction.
//
// Executors are not safe for concurrent use; each session owns one.
type Executor interface {
	Update(ctx context.Context, stmt Statement, args ...any) (int64, error)
	Query(ctx context.Context, stmt Statement, args ...any) ([]Row, error)
	FlushStatements(ctx context.Context) ([]BatchResult, error)

	// Commit flushes pending work and, when required, commits the
	// transaction.
	Commit(ctx context.Context, required bool) error
	// Rollback discards pending work and, when required, rolls back the
	// transaction.
	Rollback(ctx context.Context, required bool) error

	ClearLocalCache()
	Close(ctx context.Context, forceRollback bool) error
	IsClosed() bool

	Transaction() txn.Transaction
	AutoCommit() bool
}
