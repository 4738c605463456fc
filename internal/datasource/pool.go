package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DataSource hands out physical connections.
type DataSource interface {
	Connect(ctx context.Context) (Connection, error)
}

// Options describe how to reach a database.
//
// DSN, when set, is passed to the driver verbatim; otherwise the dialect
// builds one from the remaining fields.
type Options struct {
	Dialect  string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Params   map[string]string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Pool is a DataSource backed by a *sql.DB.
type Pool struct {
	db      *sql.DB
	dialect Dialect
}

// Open creates a pool for opts, verifies connectivity and runs the
// dialect's init statements.
func Open(ctx context.Context, opts Options) (*Pool, error) {
	dialect, err := LookupDialect(opts.Dialect)
	if err != nil {
		return nil, err
	}

	dsn, err := dialect.BuildDSN(opts)
	if err != nil {
		return nil, fmt.Errorf("build dsn: %w", err)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	return &Pool{db: db, dialect: dialect}, nil
}

// FromDB adopts an already-open *sql.DB. The caller keeps ownership of db
// but Pool.Close will close it.
func FromDB(db *sql.DB, dialect Dialect) *Pool {
	return &Pool{db: db, dialect: dialect}
}

// Connect takes a connection from the pool in auto-commit mode.
func (p *Pool) Connect(ctx context.Context) (Connection, error) {
	raw, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return Adopt(raw), nil
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Dialect returns the pool's dialect.
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Close closes the underlying *sql.DB.
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
