package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fulfil/internal/harness"
)

const scenarioDir = "../harness/testdata/scenarios"

// runTestCommand runs the test command and returns stdout.
func runTestCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"test"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// copyScenario copies a shipped scenario into a fresh directory so golden
// files can be written next to it.
func copyScenario(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	content, err := os.ReadFile(filepath.Join(scenarioDir, name))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
	return dir
}

func TestTestCommand_ShippedScenarios(t *testing.T) {
	out, err := runTestCommand(t, scenarioDir)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ order_lifecycle\n")
	assert.Contains(t, out, "✓ stock_thresholds\n")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := runTestCommand(t, scenarioDir, "--filter", "payment_*", "--format", "json")
	require.NoError(t, err, "output: %s", out)

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "payment_failure", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	dir := copyScenario(t, "stock_thresholds.yaml")

	out, err := runTestCommand(t, dir, "--update")
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ stock_thresholds (golden updated)")
	assert.FileExists(t, filepath.Join(dir, "golden", "stock_thresholds.golden"))

	out, err = runTestCommand(t, dir)
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ stock_thresholds (golden matched)")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := copyScenario(t, "stock_thresholds.yaml")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "stock_thresholds.golden"), []byte("{}\n"), 0o644))

	out, err := runTestCommand(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ stock_thresholds")
	assert.Contains(t, out, "does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_FailureJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
name: bad
description: "pays an order that does not exist"
flow:
  - invoke: order.pay
    args: {order: ord-1}
assertions:
  - type: trace_count
    action: order.pay
    count: 1
`), 0o644))

	out, err := runTestCommand(t, dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, "1 scenario(s) failed", resp.Error.Message)
}

func TestTestCommand_NoScenarios(t *testing.T) {
	out, err := runTestCommand(t, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTestCommand_MissingPath(t *testing.T) {
	_, err := runTestCommand(t, filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios not found")
}
