package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// routedDescriptor shards orders over orders_0 and orders_1 in a SQLite
// file next to the descriptor.
const routedDescriptor = `
environment:
  id: test
  dialect: sqlite
  database: app.db
  transaction_factory: sql
multi_table_supported: true
listeners:
  - name: log
routing:
  - table: orders
    shards: 2
`

// writeDescriptor writes content to name in a fresh temp dir.
func writeDescriptor(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// runCLI executes a fresh root command and returns stdout, stderr and the
// command error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
