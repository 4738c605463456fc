package listener

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mtd/internal/executor"
)

// recorder appends "<name>.<phase>" to a shared log.
func recorder(name string, log *[]string) Funcs {
	return Funcs{
		BeforeFunc: func(ctx context.Context, ev *Event) error {
			*log = append(*log, name+".before")
			return nil
		},
		AfterFunc: func(ctx context.Context, ev *Event, res Result) error {
			*log = append(*log, name+".after")
			return nil
		},
		OnErrorFunc: func(ctx context.Context, ev *Event, err error) {
			*log = append(*log, name+".error")
		},
	}
}

func testEvent() *Event {
	return &Event{
		Op:        OpQuery,
		Statement: executor.NewStatement("items.all", "items", "SELECT * FROM items"),
	}
}

func TestAround_Ordering(t *testing.T) {
	var log []string
	chain := Chain{recorder("L1", &log), recorder("L2", &log)}

	res, err := chain.Around(context.Background(), testEvent(), func() (Result, error) {
		log = append(log, "engine")
		return Result{Affected: 3}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Affected)
	assert.Equal(t, []string{"L1.before", "L2.before", "engine", "L2.after", "L1.after"}, log)
}

func TestAround_EngineErrorNotifiesInReverse(t *testing.T) {
	var log []string
	chain := Chain{recorder("L1", &log), recorder("L2", &log)}
	boom := errors.New("boom")

	_, err := chain.Around(context.Background(), testEvent(), func() (Result, error) {
		return Result{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"L1.before", "L2.before", "L2.error", "L1.error"}, log)
}

func TestAround_BeforeErrorAborts(t *testing.T) {
	var log []string
	veto := errors.New("veto")
	chain := Chain{
		recorder("L1", &log),
		Funcs{BeforeFunc: func(ctx context.Context, ev *Event) error { return veto }},
		recorder("L3", &log),
	}

	called := false
	_, err := chain.Around(context.Background(), testEvent(), func() (Result, error) {
		called = true
		return Result{}, nil
	})

	assert.ErrorIs(t, err, veto)
	assert.False(t, called)
	assert.Equal(t, []string{"L1.before", "L1.error"}, log)
}

func TestAround_AfterErrorKeepsResult(t *testing.T) {
	var log []string
	bad := errors.New("after failed")
	chain := Chain{
		recorder("L1", &log),
		Funcs{AfterFunc: func(ctx context.Context, ev *Event, res Result) error { return bad }},
	}

	res, err := chain.Around(context.Background(), testEvent(), func() (Result, error) {
		return Result{Affected: 1}, nil
	})

	assert.ErrorIs(t, err, bad)
	assert.Equal(t, int64(1), res.Affected)
	// Remaining After notifications still fire.
	assert.Equal(t, []string{"L1.before", "L1.after"}, log)
}

func TestAround_EmptyChain(t *testing.T) {
	res, err := Chain(nil).Around(context.Background(), testEvent(), func() (Result, error) {
		return Result{Affected: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Affected)
}

func TestAround_SessionIDFromContext(t *testing.T) {
	var seen string
	chain := Chain{Funcs{BeforeFunc: func(ctx context.Context, ev *Event) error {
		seen = ev.SessionID
		return nil
	}}}

	ctx := WithSession(context.Background(), "sess-1")
	_, err := chain.Around(ctx, testEvent(), func() (Result, error) { return Result{}, nil })
	require.NoError(t, err)
	assert.Equal(t, "sess-1", seen)
	assert.Equal(t, "", SessionID(context.Background()))
}

func TestLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewLogging(logger, time.Hour)
	ctx := context.Background()

	ev := testEvent()
	require.NoError(t, l.Before(ctx, ev))
	require.NoError(t, l.After(ctx, ev, Result{Affected: 2}))
	assert.Contains(t, buf.String(), "statement executed")
	assert.Contains(t, buf.String(), "statement=items.all")
	assert.Empty(t, l.starts)

	buf.Reset()
	l.OnError(ctx, ev, errors.New("boom"))
	assert.Contains(t, buf.String(), "statement failed")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestLogging_Slow(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	l := NewLogging(logger, time.Nanosecond)
	ctx := context.Background()

	ev := testEvent()
	require.NoError(t, l.Before(ctx, ev))
	time.Sleep(time.Millisecond)
	require.NoError(t, l.After(ctx, ev, Result{}))
	assert.Contains(t, buf.String(), "slow statement")
}
