package session

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mtd/internal/config"
	"github.com/roach88/mtd/internal/datasource"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/listener"
	"github.com/roach88/mtd/internal/testutil"
	"github.com/roach88/mtd/internal/txn"
)

var (
	insertItem = executor.NewStatement("items.insert", "items", `INSERT INTO items (name) VALUES (?)`)
	selectByID = executor.NewStatement("items.byID", "items", `SELECT id, name FROM items WHERE id = ?`)
	selectAll  = executor.NewStatement("items.all", "items", `SELECT id, name FROM items ORDER BY id`)
)

func emptyConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)
	return cfg
}

// openSQLiteSession builds a plain manual-commit session over a fresh
// SQLite database.
func openSQLiteSession(t *testing.T) (*Default, *datasource.Pool) {
	t.Helper()
	ctx := context.Background()
	pool, err := datasource.Open(ctx, datasource.Options{
		Dialect:  "sqlite",
		Database: filepath.Join(t.TempDir(), "session.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.DB().ExecContext(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	tx, err := txn.SQLFactory{}.NewTransaction(ctx, pool, sql.LevelDefault, false)
	require.NoError(t, err)
	exec, err := executor.New(executor.Simple, tx, false)
	require.NoError(t, err)

	s := NewDefault("sess-1", emptyConfig(t), exec, false)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, pool
}

func committed(t *testing.T, pool *datasource.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.DB().QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestDefault_CommitPersists(t *testing.T) {
	s, pool := openSQLiteSession(t)
	ctx := context.Background()

	n, err := s.Insert(ctx, insertItem, "widget")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, s.Dirty())
	assert.Equal(t, 0, committed(t, pool))

	require.NoError(t, s.Commit(ctx, false))
	assert.False(t, s.Dirty())
	assert.Equal(t, 1, committed(t, pool))
}

func TestDefault_CloseRollsBackDirtyWork(t *testing.T) {
	s, pool := openSQLiteSession(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, insertItem, "ghost")
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, 0, committed(t, pool))
	assert.True(t, s.Executor().IsClosed())

	_, err = s.SelectList(ctx, selectAll)
	assert.ErrorIs(t, err, executor.ErrExecutorClosed)
}

func TestDefault_RollbackDiscards(t *testing.T) {
	s, pool := openSQLiteSession(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, insertItem, "a")
	require.NoError(t, err)
	require.NoError(t, s.Rollback(ctx, false))
	assert.False(t, s.Dirty())

	_, err = s.Insert(ctx, insertItem, "b")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, false))

	rows, err := s.SelectList(ctx, selectAll)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["name"])
	assert.Equal(t, 1, committed(t, pool))
}

func TestDefault_SelectOne(t *testing.T) {
	s, _ := openSQLiteSession(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := s.Insert(ctx, insertItem, name)
		require.NoError(t, err)
	}

	row, err := s.SelectOne(ctx, selectByID, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", row["name"])

	row, err = s.SelectOne(ctx, selectByID, 99)
	require.NoError(t, err)
	assert.Nil(t, row)

	_, err = s.SelectOne(ctx, selectAll)
	assert.ErrorIs(t, err, ErrTooManyResults)
}

func TestDefault_BeginAndConnection(t *testing.T) {
	s, _ := openSQLiteSession(t)
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx))
	conn, err := s.Connection(ctx)
	require.NoError(t, err)

	c, ok := conn.(*datasource.Conn)
	require.True(t, ok)
	assert.True(t, c.InTransaction())
}

func TestDefault_CommitRequired(t *testing.T) {
	tests := []struct {
		name       string
		autoCommit bool
		update     bool
		force      bool
		want       bool
	}{
		{"clean manual", false, false, false, false},
		{"dirty manual", false, true, false, true},
		{"dirty auto", true, true, false, false},
		{"forced clean", false, false, true, true},
		{"forced auto", true, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &testutil.Executor{}
			s := NewDefault("s", emptyConfig(t), exec, tt.autoCommit)
			if tt.update {
				_, err := s.Update(context.Background(), insertItem, "x")
				require.NoError(t, err)
			}
			require.NoError(t, s.Commit(context.Background(), tt.force))
			require.NoError(t, s.Rollback(context.Background(), tt.force))

			assert.Equal(t, []bool{tt.want}, exec.Commits)
			// Commit cleared the dirty flag.
			assert.Equal(t, []bool{tt.force}, exec.Rollbacks)
		})
	}
}

func TestDefault_CloseReleasesTransaction(t *testing.T) {
	tx := &testutil.Transaction{}
	exec := &testutil.Executor{Tx: tx}
	s := NewDefault("s", emptyConfig(t), exec, false)

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, tx.Closes())
	assert.Same(t, tx, s.Executor().Transaction())
}

func TestDefault_WrapsExecutorErrors(t *testing.T) {
	boom := errors.New("disk full")
	s := NewDefault("s", emptyConfig(t), &testutil.Executor{Err: boom}, false)
	ctx := context.Background()

	_, err := s.Update(ctx, insertItem, "x")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "error updating database")

	_, err = s.SelectList(ctx, selectAll)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "error querying database")
}

func TestDefault_NoListenersNotified(t *testing.T) {
	j := &testutil.Journal{}
	cfg, err := config.New(recorderOptions(j, "L1")...)
	require.NoError(t, err)

	s := NewDefault("s", cfg, &testutil.Executor{}, false)
	_, err = s.Update(context.Background(), insertItem, "x")
	require.NoError(t, err)
	assert.Empty(t, j.Entries())
}

func TestListening_Ordering(t *testing.T) {
	j := &testutil.Journal{}
	l1 := testutil.NewRecorder("L1", j)
	l2 := testutil.NewRecorder("L2", j)
	exec := &testutil.Executor{
		Affected: 3,
		OnCall:   func(executor.Statement) { j.Add("engine") },
	}

	s := NewListening("sess-7", emptyConfig(t), exec, false, listener.Chain{l1, l2})
	n, err := s.Update(context.Background(), insertItem, "x")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Equal(t, []string{"L1.before", "L2.before", "engine", "L2.after", "L1.after"}, j.Entries())

	ev := l2.Events()[0]
	assert.Equal(t, "sess-7", ev.SessionID)
	assert.Equal(t, listener.OpUpdate, ev.Op)
	assert.Equal(t, "items", ev.Table)
	assert.Equal(t, []any{"x"}, ev.Args)
	assert.Equal(t, listener.Chain{l1, l2}, s.Listeners())
}

func TestListening_QueryErrorNotifiesInReverse(t *testing.T) {
	j := &testutil.Journal{}
	boom := errors.New("syntax error")
	s := NewListening("s", emptyConfig(t), &testutil.Executor{Err: boom}, false,
		listener.Chain{testutil.NewRecorder("L1", j), testutil.NewRecorder("L2", j)})

	_, err := s.SelectList(context.Background(), selectAll)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"L1.before", "L2.before", "L2.error", "L1.error"}, j.Entries())
}

func TestListening_BeforeErrorAbortsStatement(t *testing.T) {
	veto := errors.New("read-only window")
	exec := &testutil.Executor{}
	j := &testutil.Journal{}
	blocker := listener.Funcs{BeforeFunc: func(context.Context, *listener.Event) error { return veto }}

	s := NewListening("s", emptyConfig(t), exec, false, listener.Chain{testutil.NewRecorder("L1", j), blocker})
	_, err := s.Update(context.Background(), insertItem, "x")

	assert.ErrorIs(t, err, veto)
	assert.Empty(t, exec.Statements)
	assert.Equal(t, []string{"L1.before", "L1.error"}, j.Entries())
}

func TestListening_AfterErrorKeepsResult(t *testing.T) {
	audit := errors.New("audit sink down")
	exec := &testutil.Executor{Rows: []executor.Row{{"id": int64(1)}}}
	failing := listener.Funcs{AfterFunc: func(context.Context, *listener.Event, listener.Result) error { return audit }}

	s := NewListening("s", emptyConfig(t), exec, false, listener.Chain{failing})
	rows, err := s.SelectList(context.Background(), selectAll)

	assert.ErrorIs(t, err, audit)
	assert.Len(t, rows, 1)
}

func TestListening_SharesDefaultLifecycle(t *testing.T) {
	tx := &testutil.Transaction{}
	exec := &testutil.Executor{Tx: tx}
	s := NewListening("s", emptyConfig(t), exec, false, nil)
	ctx := context.Background()

	_, err := s.Update(ctx, insertItem, "x")
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, false))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, []bool{true}, exec.Commits)
	assert.Equal(t, 1, tx.Closes())
}

// recorderOptions registers recorders on a configuration with listener
// support off.
func recorderOptions(j *testutil.Journal, names ...string) []config.Option {
	opts := make([]config.Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, config.WithListeners(testutil.NewRecorder(n, j)))
	}
	return opts
}
