package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/opskit/internal/model"
	"github.com/t77yq/opskit/internal/storage"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(RunnerConfig{}, zaptest.NewLogger(t), nil, nil)
}

func TestRunCapturesOutput(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), model.Command{
		Name: "echo",
		Args: []string{"hello", "world"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world\n", result.Stdout)
	assert.Empty(t, result.Stderr)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), model.Command{
		Name: "sh",
		Args: []string{"-c", "echo oops >&2; exit 3"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestRunCommandNotFound(t *testing.T) {
	runner := newTestRunner(t)

	_, err := runner.Run(context.Background(), model.Command{
		Name: "definitely-not-a-real-binary-xyz",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandNotFound))
}

func TestRunTimeout(t *testing.T) {
	runner := newTestRunner(t)

	start := time.Now()
	_, err := runner.Run(context.Background(), model.Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunWorkingDirectory(t *testing.T) {
	runner := newTestRunner(t)
	dir := t.TempDir()

	result, err := runner.Run(context.Background(), model.Command{
		Name: "sh",
		Args: []string{"-c", "pwd"},
		Dir:  dir,
	})
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(result.Stdout))
}

func TestRunEnvOverride(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), model.Command{
		Name: "sh",
		Args: []string{"-c", "echo $OPSKIT_TEST_VAR"},
		Env:  map[string]string{"OPSKIT_TEST_VAR": "override"},
	})
	require.NoError(t, err)
	assert.Equal(t, "override\n", result.Stdout)
}

func TestRunnerConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(RunnerConfig{
		WorkingDir: dir,
		Env:        map[string]string{"OPSKIT_BASE": "base", "OPSKIT_BOTH": "base"},
	}, zaptest.NewLogger(t), nil, nil)

	result, err := runner.Run(context.Background(), model.Command{
		Name: "sh",
		Args: []string{"-c", "echo $OPSKIT_BASE $OPSKIT_BOTH; pwd"},
		Env:  map[string]string{"OPSKIT_BOTH": "command"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "base command", lines[0])
	assert.Equal(t, dir, lines[1])
}

func TestRunSequenceStopsOnError(t *testing.T) {
	runner := newTestRunner(t)

	seq, err := runner.RunSequence(context.Background(), []model.Command{
		{Name: "true"},
		{Name: "false"},
		{Name: "true"},
	}, true)
	require.NoError(t, err)

	assert.Len(t, seq.Results, 2)
	assert.True(t, seq.Truncated)
	assert.Equal(t, 0, seq.Results[0].ExitCode)
	assert.NotZero(t, seq.Results[1].ExitCode)
}

func TestRunSequenceContinuesOnError(t *testing.T) {
	runner := newTestRunner(t)

	seq, err := runner.RunSequence(context.Background(), []model.Command{
		{Name: "true"},
		{Name: "false"},
		{Name: "true"},
	}, false)
	require.NoError(t, err)

	assert.Len(t, seq.Results, 3)
	assert.False(t, seq.Truncated)
	assert.Equal(t, 0, seq.Results[0].ExitCode)
	assert.NotZero(t, seq.Results[1].ExitCode)
	assert.Equal(t, 0, seq.Results[2].ExitCode)
}

func TestRunSequenceCapturesSpawnFailure(t *testing.T) {
	runner := newTestRunner(t)

	seq, err := runner.RunSequence(context.Background(), []model.Command{
		{Name: "definitely-not-a-real-binary-xyz"},
		{Name: "true"},
	}, false)
	require.NoError(t, err)

	require.Len(t, seq.Results, 2)
	assert.Equal(t, -1, seq.Results[0].ExitCode)
	assert.Contains(t, seq.Results[0].Stderr, "command not found")
	assert.Equal(t, 0, seq.Results[1].ExitCode)
}

func TestRunSequenceStopOnErrorPropagatesSpawnFailure(t *testing.T) {
	runner := newTestRunner(t)

	seq, err := runner.RunSequence(context.Background(), []model.Command{
		{Name: "definitely-not-a-real-binary-xyz"},
		{Name: "true"},
	}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandNotFound))
	assert.True(t, seq.Truncated)
	assert.Empty(t, seq.Results)
}

func TestExists(t *testing.T) {
	runner := newTestRunner(t)

	assert.True(t, runner.Exists("sh"))
	assert.False(t, runner.Exists("definitely-not-a-real-binary-xyz"))
}

func TestRunRecordsHistory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	history, err := storage.NewSQLiteRunHistory(logger, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	runner := NewRunner(RunnerConfig{}, logger, history, nil)

	result, err := runner.Run(context.Background(), model.Command{
		Name: "echo",
		Args: []string{"recorded"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	records, err := history.List(context.Background(), nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, model.TriggerManual, records[0].Trigger)
	assert.Equal(t, model.RunStatusCompleted, records[0].Status)
	assert.Equal(t, "echo recorded", records[0].Command)
	assert.Equal(t, "recorded\n", records[0].Stdout)
	require.NotNil(t, records[0].CompletedAt)
}
