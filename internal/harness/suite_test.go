package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func copyScenarios(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join("testdata", "scenarios", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
	}
	return dir
}

func TestFindScenarios(t *testing.T) {
	dir := copyScenarios(t, "order_lifecycle.yaml", "stock_thresholds.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "stray.yaml"), []byte("x"), 0o644))

	files, err := FindScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "order_lifecycle.yaml"),
		filepath.Join(dir, "stock_thresholds.yaml"),
	}, files)

	files, err = FindScenarios(dir, "stock_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "stock_thresholds.yaml")}, files)

	single := filepath.Join(dir, "order_lifecycle.yaml")
	files, err = FindScenarios(single, "")
	require.NoError(t, err)
	assert.Equal(t, []string{single}, files)

	_, err = FindScenarios(dir, "[")
	assert.Error(t, err)

	_, err = FindScenarios(filepath.Join(dir, "absent"), "")
	assert.Error(t, err)
}

func TestRunSuite_UpdateThenMatch(t *testing.T) {
	dir := copyScenarios(t, "order_lifecycle.yaml", "payment_failure.yaml")
	files, err := FindScenarios(dir, "")
	require.NoError(t, err)

	first := RunSuite(files, SuiteOptions{})
	assert.Equal(t, 2, first.Passed)
	for _, s := range first.Scenarios {
		assert.Empty(t, s.Golden, "no golden file yet")
	}

	updated := RunSuite(files, SuiteOptions{Update: true})
	assert.Equal(t, 2, updated.Passed)
	for _, s := range updated.Scenarios {
		assert.Equal(t, "updated", s.Golden)
		assert.FileExists(t, GoldenPath(s.Path))
	}

	again := RunSuite(files, SuiteOptions{})
	assert.Equal(t, 2, again.Passed)
	assert.Equal(t, 0, again.Failed)
	assert.Equal(t, 2, again.Total)
	for _, s := range again.Scenarios {
		assert.Equal(t, "matched", s.Golden)
	}
}

func TestRunSuite_Failures(t *testing.T) {
	dir := copyScenarios(t, "order_lifecycle.yaml")
	files := []string{filepath.Join(dir, "order_lifecycle.yaml")}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(GoldenPath(files[0]), []byte("{}\n"), 0o644))

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o644))

	failing := filepath.Join(dir, "failing.yaml")
	require.NoError(t, os.WriteFile(failing, []byte(`
name: failing
description: "expects the wrong case"
flow:
  - invoke: order.pay
    args: {order: ord-1}
assertions:
  - type: trace_count
    action: order.pay
    count: 1
`), 0o644))

	res := RunSuite(append(files, broken, failing), SuiteOptions{})
	assert.Equal(t, 0, res.Passed)
	assert.Equal(t, 3, res.Failed)
	require.Len(t, res.Scenarios, 3)

	assert.Equal(t, "order_lifecycle", res.Scenarios[0].Name)
	assert.Contains(t, res.Scenarios[0].Errors[0], "does not match golden file")

	assert.Equal(t, "broken.yaml", res.Scenarios[1].Name)
	assert.Contains(t, res.Scenarios[1].Errors[0], "failed to load scenario")

	assert.Equal(t, "failing", res.Scenarios[2].Name)
	assert.Contains(t, res.Scenarios[2].Errors[0], `expected case "ok", got "NOT_FOUND"`)
}
