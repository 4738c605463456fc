package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mtd/internal/datasource"
	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/listener"
	"github.com/roach88/mtd/internal/routing"
	"github.com/roach88/mtd/internal/txn"
)

//go:embed schema.cue
var schemaSource string

// Error codes for descriptor problems.
const (
	ErrCodeRead    = "CONFIG_READ"
	ErrCodeParse   = "CONFIG_PARSE"
	ErrCodeSchema  = "CONFIG_SCHEMA"
	ErrCodeBuild   = "CONFIG_BUILD"
	ErrCodeUnknown = "CONFIG_FORMAT"
)

// FileError reports a problem with a configuration descriptor.
type FileError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *FileError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FileError) Unwrap() error { return e.Err }

// IsCode reports whether err is a FileError with the given code.
func IsCode(err error, code string) bool {
	var fe *FileError
	return errors.As(err, &fe) && fe.Code == code
}

// EnvironmentFile is the environment section of a descriptor.
type EnvironmentFile struct {
	ID       string            `yaml:"id" toml:"id"`
	Dialect  string            `yaml:"dialect" toml:"dialect"`
	DSN      string            `yaml:"dsn" toml:"dsn"`
	Host     string            `yaml:"host" toml:"host"`
	Port     int               `yaml:"port" toml:"port"`
	User     string            `yaml:"user" toml:"user"`
	Password string            `yaml:"password" toml:"password"`
	Database string            `yaml:"database" toml:"database"`
	Params   map[string]string `yaml:"params" toml:"params"`

	MaxOpenConns    int    `yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`

	// TransactionFactory is "sql", "managed", or empty (managed).
	TransactionFactory string `yaml:"transaction_factory" toml:"transaction_factory"`
	KeepConnectionOpen bool   `yaml:"keep_connection_open" toml:"keep_connection_open"`
}

// ListenerFile names a built-in listener.
type ListenerFile struct {
	Name          string `yaml:"name" toml:"name"`
	SlowThreshold string `yaml:"slow_threshold" toml:"slow_threshold"`
}

// RuleFile is one routing rule.
type RuleFile struct {
	Table  string `yaml:"table" toml:"table"`
	Shards int    `yaml:"shards" toml:"shards"`
	KeyArg int    `yaml:"key_arg" toml:"key_arg"`
	Format string `yaml:"format" toml:"format"`
}

// File is a parsed configuration descriptor.
type File struct {
	Environment         EnvironmentFile `yaml:"environment" toml:"environment"`
	DefaultExecutor     string          `yaml:"default_executor" toml:"default_executor"`
	ListenerSupported   bool            `yaml:"listener_supported" toml:"listener_supported"`
	MultiTableSupported bool            `yaml:"multi_table_supported" toml:"multi_table_supported"`
	Listeners           []ListenerFile  `yaml:"listeners" toml:"listeners"`
	Routing             []RuleFile      `yaml:"routing" toml:"routing"`

	// Path is where the descriptor was loaded from, if anywhere.
	Path string `yaml:"-" toml:"-"`
}

// Load reads, parses and validates the descriptor at path. The format is
// chosen by extension: .yaml/.yml or .toml.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileError{Code: ErrCodeRead, Path: path, Message: "cannot read descriptor", Err: err}
	}

	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	default:
		return nil, &FileError{Code: ErrCodeUnknown, Path: path,
			Message: fmt.Sprintf("unsupported extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))}
	}

	f, err := Parse(data, format)
	if err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Parse decodes and validates a descriptor. Unknown keys are rejected.
func Parse(data []byte, format string) (*File, error) {
	f := &File{}
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
			return nil, &FileError{Code: ErrCodeParse, Message: err.Error(), Err: err}
		}
	case "toml":
		md, err := toml.Decode(string(data), f)
		if err != nil {
			return nil, &FileError{Code: ErrCodeParse, Message: err.Error(), Err: err}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &FileError{Code: ErrCodeParse, Message: fmt.Sprintf("unknown keys: %v", undecoded)}
		}
	default:
		return nil, &FileError{Code: ErrCodeUnknown, Message: fmt.Sprintf("unsupported format %q", format)}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the descriptor against the embedded CUE schema.
func (f *File) Validate() error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(cctx.Encode(f.toCanonicalMap()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &FileError{
			Code:    ErrCodeSchema,
			Path:    f.Path,
			Message: strings.TrimSpace(cueerrors.Details(err, nil)),
			Err:     err,
		}
	}
	return nil
}

// toCanonicalMap converts the descriptor to the map CUE validates, leaving
// out unset optional fields.
func (f *File) toCanonicalMap() map[string]any {
	env := map[string]any{"dialect": f.Environment.Dialect}
	putString := func(m map[string]any, key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	putInt := func(m map[string]any, key string, val int) {
		if val != 0 {
			m[key] = val
		}
	}

	putString(env, "id", f.Environment.ID)
	putString(env, "dsn", f.Environment.DSN)
	putString(env, "host", f.Environment.Host)
	putInt(env, "port", f.Environment.Port)
	putString(env, "user", f.Environment.User)
	putString(env, "password", f.Environment.Password)
	putString(env, "database", f.Environment.Database)
	if len(f.Environment.Params) > 0 {
		params := make(map[string]any, len(f.Environment.Params))
		for k, v := range f.Environment.Params {
			params[k] = v
		}
		env["params"] = params
	}
	putInt(env, "max_open_conns", f.Environment.MaxOpenConns)
	putInt(env, "max_idle_conns", f.Environment.MaxIdleConns)
	putString(env, "conn_max_lifetime", f.Environment.ConnMaxLifetime)
	putString(env, "transaction_factory", f.Environment.TransactionFactory)
	if f.Environment.KeepConnectionOpen {
		env["keep_connection_open"] = true
	}

	out := map[string]any{"environment": env}
	putString(out, "default_executor", f.DefaultExecutor)
	if f.ListenerSupported {
		out["listener_supported"] = true
	}
	if f.MultiTableSupported {
		out["multi_table_supported"] = true
	}
	if len(f.Listeners) > 0 {
		ls := make([]any, len(f.Listeners))
		for i, l := range f.Listeners {
			m := map[string]any{"name": l.Name}
			putString(m, "slow_threshold", l.SlowThreshold)
			ls[i] = m
		}
		out["listeners"] = ls
	}
	if len(f.Routing) > 0 {
		rs := make([]any, len(f.Routing))
		for i, r := range f.Routing {
			m := map[string]any{"table": r.Table, "shards": r.Shards}
			putInt(m, "key_arg", r.KeyArg)
			putString(m, "format", r.Format)
			rs[i] = m
		}
		out["routing"] = rs
	}
	return out
}

// Build opens the data source and assembles the Configuration. The returned
// closer releases the data source.
func (f *File) Build(ctx context.Context) (*Configuration, io.Closer, error) {
	buildErr := func(msg string, err error) error {
		return &FileError{Code: ErrCodeBuild, Path: f.Path, Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
	}

	execType, err := executor.ParseType(f.DefaultExecutor)
	if err != nil {
		return nil, nil, buildErr("default executor", err)
	}

	var lifetime time.Duration
	if f.Environment.ConnMaxLifetime != "" {
		if lifetime, err = time.ParseDuration(f.Environment.ConnMaxLifetime); err != nil {
			return nil, nil, buildErr("conn_max_lifetime", err)
		}
	}

	listeners := make([]listener.Listener, 0, len(f.Listeners))
	for _, l := range f.Listeners {
		built, err := buildListener(l)
		if err != nil {
			return nil, nil, buildErr("listener "+l.Name, err)
		}
		listeners = append(listeners, built)
	}

	rules := make([]routing.Rule, len(f.Routing))
	for i, r := range f.Routing {
		rules[i] = routing.Rule{Table: r.Table, Shards: r.Shards, KeyArg: r.KeyArg, Format: r.Format}
	}

	var factory txn.Factory
	switch f.Environment.TransactionFactory {
	case "":
	case "managed":
		factory = txn.ManagedFactory{KeepConnectionOpen: f.Environment.KeepConnectionOpen}
	case "sql":
		factory = txn.SQLFactory{}
	default:
		return nil, nil, buildErr("transaction_factory", fmt.Errorf("unknown factory %q", f.Environment.TransactionFactory))
	}

	e := f.Environment
	pool, err := datasource.Open(ctx, datasource.Options{
		Dialect:         e.Dialect,
		DSN:             e.DSN,
		Host:            e.Host,
		Port:            e.Port,
		User:            e.User,
		Password:        e.Password,
		Database:        f.resolveDatabase(),
		Params:          e.Params,
		MaxOpenConns:    e.MaxOpenConns,
		MaxIdleConns:    e.MaxIdleConns,
		ConnMaxLifetime: lifetime,
	})
	if err != nil {
		return nil, nil, buildErr("open data source", err)
	}

	cfg, err := New(
		WithEnvironment(&Environment{ID: e.ID, DataSource: pool, TransactionFactory: factory}),
		WithDefaultExecutorType(execType),
		WithListenerSupport(f.ListenerSupported),
		WithListeners(listeners...),
		WithMultiTableSupport(f.MultiTableSupported),
		WithRoutingRules(rules...),
	)
	if err != nil {
		pool.Close()
		return nil, nil, buildErr("configuration", err)
	}

	slog.Debug("configuration built",
		"environment", e.ID,
		"dialect", pool.Dialect().Name(),
		"executor", execType.String(),
		"listeners", len(listeners),
		"multi_table", f.MultiTableSupported,
	)
	return cfg, pool, nil
}

// resolveDatabase makes a relative SQLite path relative to the descriptor.
func (f *File) resolveDatabase() string {
	db := f.Environment.Database
	if f.Path == "" || db == "" || filepath.IsAbs(db) || db == ":memory:" {
		return db
	}
	if d, err := datasource.LookupDialect(f.Environment.Dialect); err != nil || d.Name() != "sqlite" {
		return db
	}
	return filepath.Join(filepath.Dir(f.Path), db)
}

func buildListener(l ListenerFile) (listener.Listener, error) {
	switch l.Name {
	case "log":
		var slow time.Duration
		if l.SlowThreshold != "" {
			d, err := time.ParseDuration(l.SlowThreshold)
			if err != nil {
				return nil, err
			}
			slow = d
		}
		return listener.NewLogging(nil, slow), nil
	default:
		return nil, fmt.Errorf("unknown listener %q", l.Name)
	}
}
