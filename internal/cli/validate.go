package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mtd/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Path  string `json:"path"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Validate a descriptor without connecting",
		Long: `Parse a YAML or TOML descriptor and check it against the configuration
schema. Nothing is opened: use describe to check the database is reachable.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	f, err := config.Load(path)
	if err == nil {
		formatter.VerboseLog("Dialect %s, %d listener(s), %d routing rule(s)",
			f.Environment.Dialect, len(f.Listeners), len(f.Routing))
		if formatter.Format == "json" {
			return formatter.Success(ValidationResult{Valid: true, Path: path})
		}
		fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", path)
		return nil
	}

	var fe *config.FileError
	if !errors.As(err, &fe) {
		return formatter.Fail(ExitCommandError, "failed to validate", err)
	}

	// Unreadable or unknown-format files are command errors (exit code 2);
	// descriptors that fail parsing or the schema are validation failures
	// (exit code 1).
	exitCode := ExitFailure
	if fe.Code == config.ErrCodeRead || fe.Code == config.ErrCodeUnknown {
		exitCode = ExitCommandError
	}

	if formatter.Format == "json" {
		_ = formatter.Error(fe.Code, fe.Message, ValidationResult{Path: path, Code: fe.Code, Error: fe.Message})
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", fe.Code, fe.Message)
	}
	return WrapExitError(exitCode, "validation failed", err)
}
