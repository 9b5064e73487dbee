package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// cliHarness runs commands against one SQLite database.
type cliHarness struct {
	t    *testing.T
	dir  string
	db   string
	args []string // global flags added to every invocation
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "fulfil.db")
	return &cliHarness{t: t, dir: dir, db: db, args: []string{"--db", db}}
}

// run executes the root command and returns stdout. Logs are discarded.
func (h *cliHarness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(append([]string{}, h.args...), args...))
	err := cmd.Execute()
	return out.String(), err
}

// mustRun runs args and fails the test on error.
func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "output: %s", out)
	return out
}

// jsonData runs args with --format json and decodes the data payload.
func jsonData[T any](h *cliHarness, args ...string) T {
	h.t.Helper()
	out := h.mustRun(append([]string{"--format", "json"}, args...)...)
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(h.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(h.t, "ok", resp.Status)
	return resp.Data
}

// jsonError runs args with --format json, expects a failure and returns
// the reported error and the exit code.
func jsonError(h *cliHarness, args ...string) (CLIError, int) {
	h.t.Helper()
	out, err := h.run(append([]string{"--format", "json"}, args...)...)
	require.Error(h.t, err)
	var resp CLIResponse
	require.NoError(h.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(h.t, "error", resp.Status)
	require.NotNil(h.t, resp.Error)
	return *resp.Error, GetExitCode(err)
}

// seed adds a customer and a product with 5 units and a low stock
// threshold of 2.
func (h *cliHarness) seed() {
	h.t.Helper()
	h.mustRun("customer", "add", "cust-1", "--name", "Ada", "--email", "ada@example.com")
	h.mustRun("product", "add", "sku-1", "--name", "Mug", "--partner", "acme", "--stock", "5", "--min", "2")
}
