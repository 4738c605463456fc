// Package listener notifies registered observers around statement
// execution.
//
// Ordering is fixed for every caller:
//
//   - Before fires in registration order (L1, L2, ...).
//   - After and OnError fire in reverse registration order (..., L2, L1),
//     so each listener's after-work nests inside the one registered before
//     it.
//
// A Before error aborts the statement; listeners whose Before already ran
// receive OnError. After errors never hide the statement's result: the
// result is returned together with the joined After errors.
package listener

import (
	"context"
	"errors"

	"github.com/roach88/mtd/internal/executor"
)

// Op names the kind of operation being observed.
type Op string

const (
	OpQuery  Op = "query"
	OpUpdate Op = "update"
)

// Event describes one statement execution.
type Event struct {
	SessionID string
	Op        Op
	Statement executor.Statement
	Args      []any

	// Table is the physical table after routing, or the statement's
	// logical table when no routing applied.
	Table string
}

// Result is what the statement produced.
type Result struct {
	Rows     []executor.Row
	Affected int64
}

// Listener observes statement execution.
type Listener interface {
	Before(ctx context.Context, ev *Event) error
	After(ctx context.Context, ev *Event, res Result) error
	OnError(ctx context.Context, ev *Event, err error)
}

// Funcs adapts plain functions to Listener. Nil fields are skipped.
type Funcs struct {
	BeforeFunc  func(ctx context.Context, ev *Event) error
	AfterFunc   func(ctx context.Context, ev *Event, res Result) error
	OnErrorFunc func(ctx context.Context, ev *Event, err error)
}

func (f Funcs) Before(ctx context.Context, ev *Event) error {
	if f.BeforeFunc == nil {
		return nil
	}
	return f.BeforeFunc(ctx, ev)
}

func (f Funcs) After(ctx context.Context, ev *Event, res Result) error {
	if f.AfterFunc == nil {
		return nil
	}
	return f.AfterFunc(ctx, ev, res)
}

func (f Funcs) OnError(ctx context.Context, ev *Event, err error) {
	if f.OnErrorFunc != nil {
		f.OnErrorFunc(ctx, ev, err)
	}
}

// Chain is an ordered listener registration list. It is read-only once
// handed to a configuration.
type Chain []Listener

// Around runs fn bracketed by the chain's notifications.
func (c Chain) Around(ctx context.Context, ev *Event, fn func() (Result, error)) (Result, error) {
	if ev.SessionID == "" {
		ev.SessionID = SessionID(ctx)
	}

	for i, l := range c {
		if err := l.Before(ctx, ev); err != nil {
			c[:i].notifyError(ctx, ev, err)
			return Result{}, err
		}
	}

	res, err := fn()
	if err != nil {
		c.notifyError(ctx, ev, err)
		return res, err
	}

	var afterErrs []error
	for i := len(c) - 1; i >= 0; i-- {
		if aerr := c[i].After(ctx, ev, res); aerr != nil {
			afterErrs = append(afterErrs, aerr)
		}
	}
	return res, errors.Join(afterErrs...)
}

func (c Chain) notifyError(ctx context.Context, ev *Event, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].OnError(ctx, ev, err)
	}
}

type sessionKey struct{}

// WithSession returns a context carrying the session id for events.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session id carried by ctx, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
