package cli

import (
	"context"
	"io"

	"github.com/roach88/mtd/internal/config"
	"github.com/roach88/mtd/internal/sessionfactory"
)

// SessionOptions are the flags shared by commands that open a session.
type SessionOptions struct {
	*RootOptions
	ConfigPath string

	// IDGenerator overrides the session id source (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator sessionfactory.IDGenerator
}

// openFactory loads the descriptor and builds a session factory over it.
// The closer releases the data source.
func openFactory(ctx context.Context, opts *SessionOptions, formatter *OutputFormatter) (*sessionfactory.Factory, io.Closer, error) {
	f, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, "failed to load config", err)
	}
	formatter.VerboseLog("Loaded %s (dialect %s)", opts.ConfigPath, f.Environment.Dialect)

	cfg, closer, err := f.Build(ctx)
	if err != nil {
		return nil, nil, formatter.Fail(ExitCommandError, "failed to build configuration", err)
	}

	factoryOpts := []sessionfactory.Option{}
	if opts.IDGenerator != nil {
		factoryOpts = append(factoryOpts, sessionfactory.WithIDGenerator(opts.IDGenerator))
	}
	factory, err := sessionfactory.New(cfg, factoryOpts...)
	if err != nil {
		closer.Close()
		return nil, nil, formatter.Fail(ExitCommandError, "failed to create session factory", err)
	}
	return factory, closer, nil
}

func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
