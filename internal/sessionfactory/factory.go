// Package sessionfactory opens sessions.
//
// Opening a session is a fixed sequence:
//
//  1. Resolve the transaction factory. An environment that is absent or
//     names no factory gets txn.ManagedFactory.
//  2. Acquire a transaction, from the environment's data source or from a
//     connection the caller already holds.
//  3. Build the base executor through the Configuration.
//  4. When multi-table support is on, wrap it in a routing.Executor that
//     notifies listeners itself exactly when listener support is off.
//  5. Build a session.Listening when listener support is on, otherwise a
//     session.Default.
//
// If anything after step 2 fails, the transaction is closed (a close error
// is dropped in favor of the original one) and a single *OpenError is
// returned. No half-built session is ever returned.
//
// The diagnostic context carried by ctx is reset on every return.
//
// A Factory holds no per-call state and is safe for concurrent use.
package sessionfactory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/mtd/internal/config"
	"github.com/roach88/mtd/internal/datasource"
	"github.com/roach88/mtd/internal/errctx"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/routing"
	"github.com/roach88/mtd/internal/session"
	"github.com/roach88/mtd/internal/txn"
)

// Factory opens sessions against one Configuration.
type Factory struct {
	cfg    *config.Configuration
	logger *slog.Logger
	ids    IDGenerator
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// WithIDGenerator sets the session id source. The default is
// UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(f *Factory) { f.ids = g }
}

// New creates a Factory.
func New(cfg *config.Configuration, opts ...Option) (*Factory, error) {
	if cfg == nil {
		return nil, errors.New("sessionfactory: nil configuration")
	}
	f := &Factory{cfg: cfg, logger: slog.Default(), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.ids == nil {
		f.ids = UUIDv7Generator{}
	}
	return f, nil
}

// Configuration returns the configuration sessions are opened against.
func (f *Factory) Configuration() *config.Configuration { return f.cfg }

// OpenOption adjusts a single open call.
type OpenOption func(*openOptions)

type openOptions struct {
	execType   executor.Type
	level      sql.IsolationLevel
	autoCommit bool
}

// WithExecutorType selects the execution strategy instead of the
// configuration's default.
func WithExecutorType(t executor.Type) OpenOption {
	return func(o *openOptions) { o.execType = t }
}

// WithIsolation requests an isolation level for the new transaction.
// Ignored when adopting a connection.
func WithIsolation(level sql.IsolationLevel) OpenOption {
	return func(o *openOptions) { o.level = level }
}

// WithAutoCommit opens the session in auto-commit mode. Ignored when
// adopting a connection: the connection's own mode is used.
func WithAutoCommit(on bool) OpenOption {
	return func(o *openOptions) { o.autoCommit = on }
}

func (f *Factory) options(opts []OpenOption) openOptions {
	o := openOptions{execType: f.cfg.DefaultExecutorType(), level: sql.LevelDefault}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OpenSession opens a session over a new transaction from the environment's
// data source.
func (f *Factory) OpenSession(ctx context.Context, opts ...OpenOption) (session.Session, error) {
	o := f.options(opts)
	ctx, ec := errctx.Ensure(ctx)
	defer ec.Reset()
	ec.Resource(f.environmentID()).Activity("opening session")

	var ds datasource.DataSource
	if env := f.cfg.Environment(); env != nil {
		ds = env.DataSource
	}

	tx, err := f.transactionFactory().NewTransaction(ctx, ds, o.level, o.autoCommit)
	if err != nil {
		return nil, f.fail(ctx, ErrCodeAcquire, err)
	}

	s, err := f.assemble(ctx, tx, o.execType, o.autoCommit)
	if err != nil {
		f.closeTransaction(tx)
		return nil, f.fail(ctx, ErrCodeAssemble, err)
	}
	return s, nil
}

// OpenSessionWithConnection opens a session over conn. The session runs in
// conn's current auto-commit mode; WithAutoCommit and WithIsolation do not
// apply.
func (f *Factory) OpenSessionWithConnection(ctx context.Context, conn datasource.Connection, opts ...OpenOption) (session.Session, error) {
	o := f.options(opts)
	ctx, ec := errctx.Ensure(ctx)
	defer ec.Reset()
	ec.Resource(f.environmentID()).Activity("opening session from connection")

	if conn == nil {
		return nil, f.fail(ctx, ErrCodeAcquire, errors.New("nil connection"))
	}

	// Read before the transaction exists: a failure here owns nothing.
	autoCommit, err := conn.AutoCommit(ctx)
	if err != nil {
		return nil, f.fail(ctx, ErrCodeAutoCommit, fmt.Errorf("read auto-commit: %w", err))
	}

	tx, err := f.transactionFactory().FromConnection(ctx, conn)
	if err != nil {
		return nil, f.fail(ctx, ErrCodeAcquire, err)
	}

	s, err := f.assemble(ctx, tx, o.execType, autoCommit)
	if err != nil {
		f.closeTransaction(tx)
		return nil, f.fail(ctx, ErrCodeAssemble, err)
	}
	return s, nil
}

func (f *Factory) transactionFactory() txn.Factory {
	env := f.cfg.Environment()
	if env == nil || env.TransactionFactory == nil {
		return txn.ManagedFactory{Logger: f.logger}
	}
	return env.TransactionFactory
}

func (f *Factory) environmentID() string {
	if env := f.cfg.Environment(); env != nil {
		return env.ID
	}
	return ""
}

// assemble builds the executor chain and the session around tx. Executor
// builders and id generators are caller code: a panic in them is returned
// as an error so the caller still closes tx.
func (f *Factory) assemble(ctx context.Context, tx txn.Transaction, t executor.Type, autoCommit bool) (s session.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("panic assembling session: %v", r)
		}
	}()

	errctx.From(ctx).Activity("building executor")
	base, err := f.cfg.NewExecutor(tx, t, autoCommit)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("configuration built no %s executor", t)
	}

	listeners := f.cfg.Listeners()
	exec := base
	if f.cfg.MultiTableSupported() {
		exec = routing.NewExecutor(base, f.cfg.Router(), !f.cfg.ListenerSupported(), listeners)
	}

	id := f.ids.Generate()
	f.logger.Debug("session opened",
		"session", id,
		"executor", t.String(),
		"auto_commit", autoCommit,
		"multi_table", f.cfg.MultiTableSupported(),
		"listeners", f.cfg.ListenerSupported(),
	)

	if f.cfg.ListenerSupported() {
		return session.NewListening(id, f.cfg, exec, autoCommit, listeners), nil
	}
	return session.NewDefault(id, f.cfg, exec, autoCommit), nil
}

// closeTransaction releases a transaction whose session could not be
// built. The original failure is what gets reported.
func (f *Factory) closeTransaction(tx txn.Transaction) {
	if err := tx.Close(); err != nil {
		f.logger.Debug("ignoring error closing transaction", "error", err)
	}
}

func (f *Factory) fail(ctx context.Context, code OpenErrorCode, err error) error {
	oe := &OpenError{
		Code:       code,
		Cause:      err,
		DriverCode: datasource.DriverCode(err),
		Context:    errctx.From(ctx).String(),
	}
	f.logger.Debug("session open failed", "code", string(code), "error", err)
	return oe
}
