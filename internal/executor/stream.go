package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

// maxStreamLine bounds a single output line during streaming
const maxStreamLine = 1024 * 1024

// Stream executes a command and delivers each output line to fn as it is
// produced, before the process exits. Lines from stdout and stderr keep
// their own ordering but are not ordered relative to each other. fn is
// invoked from a single goroutine, never concurrently with itself, and all
// buffered lines are delivered before Stream returns the final result.
func (r *Runner) Stream(ctx context.Context, cmd model.Command, fn func(model.StreamLine)) (*model.ExecutionResult, error) {
	cmd = r.applyDefaults(cmd)

	if cmd.Name == "" {
		return nil, fmt.Errorf("%w: empty command", ErrExecution)
	}
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, cmd.Name)
	}

	cmdCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(cmdCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	r.logger.Info("Starting realtime execution", zap.String("command", cmd.String()))

	// Recorded only once the pipes exist, so a setup failure cannot leave
	// a record stuck in the running state.
	record := r.beginRecord(ctx, cmd, model.TriggerStream)

	startedAt := time.Now()
	if err := c.Start(); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrExecution, err)
		r.finishRecord(ctx, record, nil, model.RunStatusFailed, startErr)
		return nil, startErr
	}

	var stdoutBuf, stderrBuf strings.Builder
	lines := make(chan model.StreamLine, 64)

	var readers sync.WaitGroup
	readers.Add(2)
	go r.scanLines(stdout, model.StreamStdout, &stdoutBuf, lines, &readers)
	go r.scanLines(stderr, model.StreamStderr, &stderrBuf, lines, &readers)

	go func() {
		readers.Wait()
		close(lines)
	}()

	// Serial delivery: draining the channel here guarantees every line is
	// handed to fn before the final result is returned.
	for line := range lines {
		if fn != nil {
			fn(line)
		}
	}

	waitErr := c.Wait()
	completedAt := time.Now()

	result := &model.ExecutionResult{
		Command:     cmd.String(),
		Stdout:      stdoutBuf.String(),
		Stderr:      stderrBuf.String(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}

	if waitErr != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			err := fmt.Errorf("%w after %s: %s", ErrTimeout, cmd.Timeout, cmd.String())
			r.finishRecord(ctx, record, result, model.RunStatusTimedOut, err)
			return nil, err
		}

		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			err := fmt.Errorf("%w: %v", ErrExecution, waitErr)
			r.finishRecord(ctx, record, result, model.RunStatusFailed, err)
			return nil, err
		}
		result.ExitCode = exitErr.ExitCode()
	}

	status := model.RunStatusCompleted
	if result.ExitCode != 0 {
		status = model.RunStatusFailed
	}
	r.finishRecord(ctx, record, result, status, nil)

	r.logger.Info("Realtime execution completed",
		zap.String("command", cmd.String()),
		zap.Int("exit_code", result.ExitCode))

	return result, nil
}

// scanLines reads one stream line by line, capturing the full text and
// forwarding each line for delivery
func (r *Runner) scanLines(reader io.Reader, source model.StreamSource, buf *strings.Builder, lines chan<- model.StreamLine, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		text := scanner.Text()
		buf.WriteString(text)
		buf.WriteByte('\n')
		lines <- model.StreamLine{Source: source, Text: text}
	}

	if err := scanner.Err(); err != nil {
		r.logger.Error("Failed to read command output",
			zap.String("source", string(source)),
			zap.Error(err))
	}
}
