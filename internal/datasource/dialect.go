package datasource

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect knows how to reach one kind of database.
type Dialect interface {
	// Name is the canonical dialect name used in configuration.
	Name() string
	// DriverName is the database/sql driver registration name.
	DriverName() string
	BuildDSN(opts Options) (string, error)
	// InitStatements run once after the pool is opened.
	InitStatements() []string
}

var dialects = map[string]Dialect{
	"sqlite":     SQLiteDialect{},
	"sqlite3":    SQLiteDialect{},
	"mysql":      MySQLDialect{},
	"postgres":   PostgresDialect{},
	"postgresql": PostgresDialect{},
}

// LookupDialect returns the dialect registered under name (case-insensitive).
func LookupDialect(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return d, nil
}

// SQLiteDialect targets github.com/mattn/go-sqlite3.
//
// Per-connection pragmas (busy timeout, foreign keys) go into the DSN so
// every pooled connection gets them; journal mode is database-wide and is
// set once via InitStatements.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string       { return "sqlite" }
func (SQLiteDialect) DriverName() string { return "sqlite3" }

func (SQLiteDialect) BuildDSN(opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}
	if opts.Database == "" {
		return "", fmt.Errorf("sqlite: database path is required")
	}
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	for k, v := range opts.Params {
		params.Set(k, v)
	}
	return "file:" + opts.Database + "?" + params.Encode(), nil
}

func (SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
}

// MySQLDialect targets github.com/go-sql-driver/mysql.
type MySQLDialect struct{}

func (MySQLDialect) Name() string       { return "mysql" }
func (MySQLDialect) DriverName() string { return "mysql" }

func (MySQLDialect) BuildDSN(opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}
	if opts.Host == "" {
		return "", fmt.Errorf("mysql: host is required")
	}
	port := opts.Port
	if port <= 0 {
		port = 3306
	}

	cfg := mysqldriver.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", opts.Host, port)
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Timeout = 10 * time.Second
	if len(opts.Params) > 0 {
		cfg.Params = make(map[string]string, len(opts.Params))
		for k, v := range opts.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}

func (MySQLDialect) InitStatements() []string { return nil }

// PostgresDialect targets github.com/lib/pq.
type PostgresDialect struct{}

func (PostgresDialect) Name() string       { return "postgres" }
func (PostgresDialect) DriverName() string { return "postgres" }

func (PostgresDialect) BuildDSN(opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}
	if opts.Host == "" {
		return "", fmt.Errorf("postgres: host is required")
	}
	port := opts.Port
	if port <= 0 {
		port = 5432
	}

	parts := []string{
		"host=" + pgValue(opts.Host),
		fmt.Sprintf("port=%d", port),
	}
	if opts.User != "" {
		parts = append(parts, "user="+pgValue(opts.User))
	}
	if opts.Password != "" {
		parts = append(parts, "password="+pgValue(opts.Password))
	}
	if opts.Database != "" {
		parts = append(parts, "dbname="+pgValue(opts.Database))
	}
	if _, ok := opts.Params["sslmode"]; !ok {
		parts = append(parts, "sslmode=disable")
	}

	// Sorted so the same options always give the same DSN.
	keys := make([]string, 0, len(opts.Params))
	for k := range opts.Params {
		if !pgKey.MatchString(k) {
			return "", fmt.Errorf("postgres: invalid parameter name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+pgValue(opts.Params[k]))
	}
	return strings.Join(parts, " "), nil
}

func (PostgresDialect) InitStatements() []string { return nil }

var (
	pgKey     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pgEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
)

// pgValue renders one key/value connection string value. Values that are
// empty or contain spaces, quotes or backslashes are single-quoted with
// quotes and backslashes escaped.
func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n'\\") {
		return v
	}
	return "'" + pgEscaper.Replace(v) + "'"
}
