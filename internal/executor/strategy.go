package executor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/mtd/internal/txn"
)

type simpleStrategy struct{}

func (simpleStrategy) update(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) (int64, error) {
	conn, err := tx.Connection(ctx)
	if err != nil {
		return 0, err
	}
	res, err := conn.ExecContext(ctx, stmt.SQL, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (simpleStrategy) query(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) ([]Row, error) {
	conn, err := tx.Connection(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, stmt.SQL, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(&sqlx.Rows{Rows: rows})
}

func (simpleStrategy) flush(context.Context, txn.Transaction, bool) ([]BatchResult, error) {
	return nil, nil
}

func (simpleStrategy) release() {}

// reuseStrategy keeps one prepared statement per SQL text. Prepared
// statements are bound to the open database transaction, so they are
// dropped on every flush (commit and rollback flush first).
type reuseStrategy struct {
	stmts map[string]*sqlx.Stmt
}

func (r *reuseStrategy) prepare(ctx context.Context, tx txn.Transaction, query string) (*sqlx.Stmt, error) {
	if st, ok := r.stmts[query]; ok {
		return st, nil
	}
	conn, err := tx.Connection(ctx)
	if err != nil {
		return nil, err
	}
	prepared, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	st := &sqlx.Stmt{Stmt: prepared}
	if r.stmts == nil {
		r.stmts = make(map[string]*sqlx.Stmt)
	}
	r.stmts[query] = st
	return st, nil
}

func (r *reuseStrategy) update(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) (int64, error) {
	st, err := r.prepare(ctx, tx, stmt.SQL)
	if err != nil {
		return 0, err
	}
	res, err := st.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *reuseStrategy) query(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) ([]Row, error) {
	st, err := r.prepare(ctx, tx, stmt.SQL)
	if err != nil {
		return nil, err
	}
	rows, err := st.QueryxContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

func (r *reuseStrategy) flush(context.Context, txn.Transaction, bool) ([]BatchResult, error) {
	r.release()
	return nil, nil
}

func (r *reuseStrategy) release() {
	for _, st := range r.stmts {
		st.Close()
	}
	r.stmts = nil
}

// prepared reports how many statements are cached.
func (r *reuseStrategy) prepared() int {
	return len(r.stmts)
}

type queued struct {
	stmt Statement
	args []any
}

// batchStrategy queues updates. Consecutive updates with the same SQL share
// one prepared statement and one BatchResult.
type batchStrategy struct {
	pending []queued
}

func (b *batchStrategy) update(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) (int64, error) {
	b.pending = append(b.pending, queued{stmt: stmt, args: args})
	return 0, nil
}

func (b *batchStrategy) query(ctx context.Context, tx txn.Transaction, stmt Statement, args []any) ([]Row, error) {
	if _, err := b.flush(ctx, tx, false); err != nil {
		return nil, err
	}
	return simpleStrategy{}.query(ctx, tx, stmt, args)
}

func (b *batchStrategy) flush(ctx context.Context, tx txn.Transaction, rollback bool) ([]BatchResult, error) {
	pending := b.pending
	b.pending = nil
	if rollback || len(pending) == 0 {
		return nil, nil
	}

	conn, err := tx.Connection(ctx)
	if err != nil {
		return nil, err
	}

	var (
		results []BatchResult
		st      *sql.Stmt
	)
	defer func() {
		if st != nil {
			st.Close()
		}
	}()

	for _, q := range pending {
		if len(results) == 0 || results[len(results)-1].Statement.SQL != q.stmt.SQL {
			if st != nil {
				st.Close()
			}
			st, err = conn.PrepareContext(ctx, q.stmt.SQL)
			if err != nil {
				return results, fmt.Errorf("batch prepare %s: %w", q.stmt.ID, err)
			}
			results = append(results, BatchResult{Statement: q.stmt})
		}
		cur := &results[len(results)-1]

		res, err := st.ExecContext(ctx, q.args...)
		if err != nil {
			return results, fmt.Errorf("batch statement %d of %s failed: %w", len(cur.Counts)+1, q.stmt.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return results, fmt.Errorf("batch rows affected: %w", err)
		}
		cur.Args = append(cur.Args, q.args)
		cur.Counts = append(cur.Counts, n)
	}
	return results, nil
}

func (b *batchStrategy) release() {
	b.pending = nil
}

// collectRows drains rows into Rows. Drivers that return text as []byte
// (mysql does) get strings, so rows compare and print the same everywhere.
func collectRows(rows *sqlx.Rows) ([]Row, error) {
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := make(Row)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for col, v := range row {
			if b, ok := v.([]byte); ok {
				row[col] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
