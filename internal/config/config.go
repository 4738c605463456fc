// Package config holds the process-wide Configuration sessions are built
// from.
//
// A Configuration is assembled once (programmatically with New, or from a
// YAML/TOML descriptor via Load and File.Build) and is read-only afterwards:
// every field is unexported and exposed through getters, and slices are
// copied on the way out. It is therefore safe to share between goroutines.
package config

import (
	"fmt"

	"github.com/roach88/mtd/internal/datasource"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/listener"
	"github.com/roach88/mtd/internal/routing"
	"github.com/roach88/mtd/internal/txn"
)

// Environment binds a data source to an optional transaction factory.
// A nil TransactionFactory means "managed" (demarcated by the caller).
type Environment struct {
	ID                 string
	DataSource         datasource.DataSource
	TransactionFactory txn.Factory
}

// ExecutorBuilder constructs the base execution engine for a session.
type ExecutorBuilder func(tx txn.Transaction, t executor.Type, autoCommit bool) (executor.Executor, error)

// Configuration is immutable after New.
type Configuration struct {
	env                 *Environment
	defaultExecutorType executor.Type
	listenerSupported   bool
	multiTableSupported bool
	listeners           listener.Chain
	rules               []routing.Rule
	router              *routing.Router
	executorBuilder     ExecutorBuilder
}

// Option configures a Configuration under construction.
type Option func(*Configuration)

// WithEnvironment sets the environment. Without one, sessions can only be
// opened from existing connections.
func WithEnvironment(env *Environment) Option {
	return func(c *Configuration) { c.env = env }
}

// WithDefaultExecutorType sets the strategy used when an open call does not
// name one.
func WithDefaultExecutorType(t executor.Type) Option {
	return func(c *Configuration) { c.defaultExecutorType = t }
}

// WithListenerSupport enables listener-aware sessions.
func WithListenerSupport(enabled bool) Option {
	return func(c *Configuration) { c.listenerSupported = enabled }
}

// WithListeners registers listeners, in notification order.
func WithListeners(ls ...listener.Listener) Option {
	return func(c *Configuration) { c.listeners = append(c.listeners, ls...) }
}

// WithMultiTableSupport enables the routing decorator.
func WithMultiTableSupport(enabled bool) Option {
	return func(c *Configuration) { c.multiTableSupported = enabled }
}

// WithRoutingRules adds routing rules used when multi-table support is on.
func WithRoutingRules(rules ...routing.Rule) Option {
	return func(c *Configuration) { c.rules = append(c.rules, rules...) }
}

// WithExecutorBuilder replaces the base executor constructor.
func WithExecutorBuilder(b ExecutorBuilder) Option {
	return func(c *Configuration) { c.executorBuilder = b }
}

// New assembles a Configuration.
func New(opts ...Option) (*Configuration, error) {
	c := &Configuration{defaultExecutorType: executor.Simple}
	for _, opt := range opts {
		opt(c)
	}

	if c.defaultExecutorType < executor.Simple || c.defaultExecutorType > executor.Batch {
		return nil, fmt.Errorf("invalid default executor type %s", c.defaultExecutorType)
	}

	if c.multiTableSupported {
		router, err := routing.NewRouter(c.rules...)
		if err != nil {
			return nil, fmt.Errorf("routing rules: %w", err)
		}
		c.router = router
	}
	return c, nil
}

// Environment returns the environment, or nil.
func (c *Configuration) Environment() *Environment { return c.env }

func (c *Configuration) DefaultExecutorType() executor.Type { return c.defaultExecutorType }

func (c *Configuration) ListenerSupported() bool { return c.listenerSupported }

func (c *Configuration) MultiTableSupported() bool { return c.multiTableSupported }

// Listeners returns a copy of the registered listeners in order.
func (c *Configuration) Listeners() listener.Chain {
	if len(c.listeners) == 0 {
		return nil
	}
	return append(listener.Chain(nil), c.listeners...)
}

// Rules returns a copy of the routing rules.
func (c *Configuration) Rules() []routing.Rule {
	return append([]routing.Rule(nil), c.rules...)
}

// Router returns the router, or nil when multi-table support is off.
func (c *Configuration) Router() *routing.Router { return c.router }

// NewExecutor builds the base executor for one session.
func (c *Configuration) NewExecutor(tx txn.Transaction, t executor.Type, autoCommit bool) (executor.Executor, error) {
	if c.executorBuilder != nil {
		return c.executorBuilder(tx, t, autoCommit)
	}
	base, err := executor.New(t, tx, autoCommit)
	if err != nil {
		return nil, err
	}
	return base, nil
}
