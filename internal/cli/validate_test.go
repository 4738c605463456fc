package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mtd/internal/config"
)

func TestValidate_Valid(t *testing.T) {
	path := writeDescriptor(t, "mtd.yaml", routedDescriptor)

	out, _, err := runCLI(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "is valid")
}

func TestValidate_ValidJSON(t *testing.T) {
	path := writeDescriptor(t, "mtd.toml", `
[environment]
dialect = "sqlite"
database = "app.db"
`)

	out, _, err := runCLI(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["valid"])
	assert.Equal(t, path, data["path"])
}

func TestValidate_SchemaViolation(t *testing.T) {
	path := writeDescriptor(t, "mtd.yaml", `
environment:
  dialect: oracle
`)

	out, _, err := runCLI(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, config.IsCode(err, config.ErrCodeSchema))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, config.ErrCodeSchema)
}

func TestValidate_ParseError(t *testing.T) {
	path := writeDescriptor(t, "mtd.yaml", "environment: [unclosed\n")

	_, _, err := runCLI(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, config.IsCode(err, config.ErrCodeParse))
}

func TestValidate_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	out, _, err := runCLI(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, config.ErrCodeRead)
}

func TestValidate_UnknownFormat(t *testing.T) {
	path := writeDescriptor(t, "mtd.ini", "dialect=sqlite\n")

	_, _, err := runCLI(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_JSONError(t *testing.T) {
	path := writeDescriptor(t, "mtd.yaml", `
environment:
  dialect: sqlite
default_executor: turbo
`)

	out, _, err := runCLI(t, "--format", "json", "validate", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, config.ErrCodeSchema, resp.Error.Code)
}
