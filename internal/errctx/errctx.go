// Package errctx carries a diagnostic record for the database operation in
// flight.
//
// An ErrorContext travels inside a context.Context. Layers that know
// something useful about the current operation (which resource, what it was
// doing, the SQL involved) record it as they go; whoever reports a failure
// renders it alongside the error. The record is reset when the outermost
// operation returns so diagnostic state never leaks across calls.
//
// All setters are nil-safe, so callers can write
//
//	errctx.From(ctx).Activity("opening session")
//
// without checking whether a context was attached.
package errctx

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ctxKey struct{}

// ErrorContext records what the current operation is doing.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ErrorContext struct {
	mu       sync.Mutex
	resource string
	activity string
	object   string
	message  string
	sql      string
	cause    error
}

// Attach returns a derived context carrying a fresh ErrorContext.
func Attach(ctx context.Context) (context.Context, *ErrorContext) {
	ec := &ErrorContext{}
	return context.WithValue(ctx, ctxKey{}, ec), ec
}

// From returns the ErrorContext attached to ctx, or nil.
func From(ctx context.Context) *ErrorContext {
	if ctx == nil {
		return nil
	}
	ec, _ := ctx.Value(ctxKey{}).(*ErrorContext)
	return ec
}

// Ensure returns ctx unchanged when it already carries an ErrorContext,
// otherwise attaches a new one.
func Ensure(ctx context.Context) (context.Context, *ErrorContext) {
	if ec := From(ctx); ec != nil {
		return ctx, ec
	}
	return Attach(ctx)
}

func (ec *ErrorContext) set(fn func()) *ErrorContext {
	if ec == nil {
		return nil
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	fn()
	return ec
}

// Resource names the resource (data source, config file) being used.
func (ec *ErrorContext) Resource(resource string) *ErrorContext {
	return ec.set(func() { ec.resource = resource })
}

// Activity describes what is being done.
func (ec *ErrorContext) Activity(activity string) *ErrorContext {
	return ec.set(func() { ec.activity = activity })
}

// Object names the statement or object involved.
func (ec *ErrorContext) Object(object string) *ErrorContext {
	return ec.set(func() { ec.object = object })
}

// Message records a free-form note.
func (ec *ErrorContext) Message(message string) *ErrorContext {
	return ec.set(func() { ec.message = message })
}

// SQL records the statement text, whitespace-collapsed.
func (ec *ErrorContext) SQL(sql string) *ErrorContext {
	return ec.set(func() { ec.sql = strings.Join(strings.Fields(sql), " ") })
}

// Cause records the underlying error.
func (ec *ErrorContext) Cause(err error) *ErrorContext {
	return ec.set(func() { ec.cause = err })
}

// Reset clears every field.
func (ec *ErrorContext) Reset() {
	ec.set(func() {
		ec.resource = ""
		ec.activity = ""
		ec.object = ""
		ec.message = ""
		ec.sql = ""
		ec.cause = nil
	})
}

// IsEmpty reports whether nothing has been recorded.
func (ec *ErrorContext) IsEmpty() bool {
	return ec.String() == ""
}

// String renders the recorded fields, one "### " line each.
// Returns "" for a nil or empty context.
func (ec *ErrorContext) String() string {
	if ec == nil {
		return ""
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()

	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "\n### %s %s", label, value)
	}
	if ec.message != "" {
		fmt.Fprintf(&b, "\n### %s", ec.message)
	}
	line("The error may exist in", ec.resource)
	line("The error may involve", ec.object)
	line("The error occurred while", ec.activity)
	line("SQL:", ec.sql)
	if ec.cause != nil {
		line("Cause:", ec.cause.Error())
	}
	return b.String()
}
