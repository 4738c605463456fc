package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mtd/internal/executor"
	"github.com/roach88/mtd/internal/sessionfactory"
	"github.com/roach88/mtd/internal/txn"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	SessionOptions
	Table       string
	StatementID string
	Args        []string
	Executor    string
	Isolation   string
	AutoCommit  bool
}

// ExecResult is the JSON payload of exec.
type ExecResult struct {
	SessionID string         `json:"session_id"`
	Kind      string         `json:"kind"`
	Rows      []executor.Row `json:"rows,omitempty"`
	Affected  int64          `json:"affected"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{SessionOptions: SessionOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one statement in a new session",
		Long: `Open a session from the descriptor, run one statement, commit and close.

SELECT statements print their rows; anything else prints the affected row
count. Pass --table so multi-table routing can pick the physical table.

Example:
  mtd exec -c mtd.yaml --table orders --arg 42 --arg 9.5 \
    "INSERT INTO orders (user_id, total) VALUES (?, ?)"
  mtd exec -c mtd.yaml --format json "SELECT * FROM users"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML or TOML descriptor (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Table, "table", "", "logical table the statement targets")
	cmd.Flags().StringVar(&opts.StatementID, "id", "cli.exec", "statement id used in logs and diagnostics")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "statement argument, repeatable (ints and floats are converted, NULL is nil)")
	cmd.Flags().StringVar(&opts.Executor, "executor", "", "executor type (simple|reuse|batch); default from descriptor")
	cmd.Flags().StringVar(&opts.Isolation, "isolation", "", "isolation level (read_committed, serializable, ...)")
	cmd.Flags().BoolVar(&opts.AutoCommit, "autocommit", false, "run in auto-commit mode")

	return cmd
}

func runExec(opts *ExecOptions, query string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd.Context())

	openOpts := []sessionfactory.OpenOption{sessionfactory.WithAutoCommit(opts.AutoCommit)}
	if opts.Executor != "" {
		t, err := executor.ParseType(opts.Executor)
		if err != nil {
			return formatter.FailCode(ExitCommandError, ErrCodeArgument, "invalid --executor", err)
		}
		openOpts = append(openOpts, sessionfactory.WithExecutorType(t))
	}
	if opts.Isolation != "" {
		level, err := txn.ParseIsolation(opts.Isolation)
		if err != nil {
			return formatter.FailCode(ExitCommandError, ErrCodeArgument, "invalid --isolation", err)
		}
		openOpts = append(openOpts, sessionfactory.WithIsolation(level))
	}

	factory, closer, err := openFactory(ctx, &opts.SessionOptions, formatter)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			slog.Error("error closing data source", "error", closeErr)
		}
	}()

	s, err := factory.OpenSession(ctx, openOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open session", err)
	}
	defer func() {
		if closeErr := s.Close(ctx); closeErr != nil {
			slog.Error("error closing session", "session", s.ID(), "error", closeErr)
		}
	}()
	formatter.VerboseLog("Session %s opened", s.ID())

	stmt := executor.NewStatement(opts.StatementID, opts.Table, query)
	args := parseArgs(opts.Args)
	result := ExecResult{SessionID: s.ID(), Kind: stmt.Kind.String()}

	if stmt.Kind == executor.KindSelect {
		result.Rows, err = s.SelectList(ctx, stmt, args...)
	} else {
		result.Affected, err = s.Update(ctx, stmt, args...)
		if err == nil {
			var flushed []executor.BatchResult
			flushed, err = s.FlushStatements(ctx)
			// batch executors only know the counts once flushed
			for _, br := range flushed {
				for _, n := range br.Counts {
					result.Affected += n
				}
			}
		}
	}
	if err != nil {
		return formatter.FailCode(ExitFailure, ErrCodeStatement, "statement failed", err)
	}

	if err := s.Commit(ctx, false); err != nil {
		return formatter.FailCode(ExitFailure, ErrCodeStatement, "commit failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if stmt.Kind == executor.KindSelect {
		formatter.Rows(result.Rows)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%d row(s) affected\n", result.Affected)
	return nil
}

// parseArgs converts --arg values: integers and floats become numbers,
// NULL (any case) becomes nil, everything else stays a string.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, s := range raw {
		switch {
		case strings.EqualFold(s, "null"):
			args[i] = nil
		default:
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				args[i] = n
			} else if f, err := strconv.ParseFloat(s, 64); err == nil {
				args[i] = f
			} else {
				args[i] = s
			}
		}
	}
	return args
}
