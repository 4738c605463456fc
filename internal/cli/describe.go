package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/mtd/internal/sessionfactory"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show how sessions are composed",
		Long: `Open (and immediately close) a session from the descriptor and print how
it is put together: session kind, executor chain from outermost to
innermost, transaction kind and active listeners.

Example:
  mtd describe -c mtd.yaml
  mtd describe -c mtd.toml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML or TOML descriptor (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runDescribe(opts *SessionOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd.Context())

	factory, closer, err := openFactory(ctx, opts, formatter)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := factory.OpenSession(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open session", err)
	}
	comp := sessionfactory.Describe(s)
	if err := s.Close(ctx); err != nil {
		slog.Warn("error closing session", "session", s.ID(), "error", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(comp)
	}
	writeComposition(formatter, comp)
	return nil
}

func writeComposition(f *OutputFormatter, c sessionfactory.Composition) {
	line := func(label string, value any) {
		fmt.Fprintf(f.Writer, "%-13s %v\n", label+":", value)
	}
	line("session", c.Session)
	line("session id", c.SessionID)
	line("executor", strings.Join(c.Chain, " -> "))
	line("transaction", c.Transaction)
	line("auto-commit", c.AutoCommit)
	line("listeners", c.Listeners)
	if len(c.RoutedTables) > 0 {
		line("routed", strings.Join(c.RoutedTables, ", "))
	}
}
