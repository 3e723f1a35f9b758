package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(ctx context.Context, args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func TestRunCommandSuccess(t *testing.T) {
	err := executeCommand(context.Background(), "run", "--", "true")
	require.NoError(t, err)
}

func TestRunCommandReturnsExitCodeError(t *testing.T) {
	err := executeCommand(context.Background(), "run", "--", "false")
	require.Error(t, err)

	// The exit code travels out as an error so deferred cleanup runs
	// before the process exits
	var code exitCodeError
	require.True(t, errors.As(err, &code))
	assert.Equal(t, 1, int(code))
}

func TestRunCommandUnknownBinary(t *testing.T) {
	err := executeCommand(context.Background(), "run", "--", "definitely-not-a-real-binary-xyz")
	require.Error(t, err)

	var code exitCodeError
	assert.False(t, errors.As(err, &code))
}

func TestExistsCommand(t *testing.T) {
	require.NoError(t, executeCommand(context.Background(), "exists", "sh"))
	require.Error(t, executeCommand(context.Background(), "exists", "definitely-not-a-real-binary-xyz"))
}

func TestCommandFromArgs(t *testing.T) {
	runDir = "/tmp"
	runEnv = []string{"KEY=value", "OTHER=x=y"}
	runTimeout = time.Second
	defer func() {
		runDir = ""
		runEnv = nil
		runTimeout = 0
	}()

	command, err := commandFromArgs([]string{"echo", "hello"})
	require.NoError(t, err)

	assert.Equal(t, "echo", command.Name)
	assert.Equal(t, []string{"hello"}, command.Args)
	assert.Equal(t, "/tmp", command.Dir)
	assert.Equal(t, "value", command.Env["KEY"])
	assert.Equal(t, "x=y", command.Env["OTHER"])
	assert.Equal(t, time.Second, command.Timeout)
}

func TestCommandFromArgsRejectsBadEnv(t *testing.T) {
	runEnv = []string{"NOEQUALS"}
	defer func() { runEnv = nil }()

	_, err := commandFromArgs([]string{"echo"})
	require.Error(t, err)
}

func TestStatusWatchUsesConfiguredInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  interval: 200ms\n"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	// The watch loop runs at the configured interval and returns cleanly
	// when the context ends
	err := executeCommand(ctx, "--config", path, "status", "--watch")
	require.NoError(t, err)
}
