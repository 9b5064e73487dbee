package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keepDefaultLogger restores the default logger that run replaces.
func keepDefaultLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestRunWithTimeout(t *testing.T) {
	keepDefaultLogger(t)
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Database: dbPath}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs([]string{})

	// Run command with timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		require.NoError(t, err, "service exits gracefully on cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("command did not respect context timeout")
	}

	// Verify database was created
	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database should be created")

	// Verify startup message was printed
	assert.Contains(t, out.String(), "Service started. Scheduler runs every 5m0s.")
	assert.Contains(t, logs.String(), "pass finished")
	assert.Contains(t, logs.String(), "service stopped gracefully")
}

func TestRunUsesConfiguredInterval(t *testing.T) {
	keepDefaultLogger(t)
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	cfgPath := filepath.Join(tmpDir, "fulfil.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("scheduler:\n  interval: 50ms\n"), 0o644))

	out := &bytes.Buffer{}
	logs := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text", Database: dbPath, Config: cfgPath})
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs([]string{})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))

	assert.Contains(t, out.String(), "every 50ms")
	assert.GreaterOrEqual(t, bytes.Count(logs.Bytes(), []byte("pass finished")), 2)
}

func TestRunStartupFailure(t *testing.T) {
	keepDefaultLogger(t)
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Database: filepath.Join(tmpDir, "missing", "test.db")}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunRejectsArguments(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"./specs"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "scheduler")
	assert.Contains(t, cmd.Long, "fulfil run --db ./fulfil.db")
}
