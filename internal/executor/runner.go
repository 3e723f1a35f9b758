package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/events"
	"github.com/t77yq/opskit/internal/model"
	"github.com/t77yq/opskit/internal/storage"
)

// RunnerConfig defines defaults applied to every command the runner executes.
// Command-level settings take precedence.
type RunnerConfig struct {
	DefaultTimeout time.Duration
	WorkingDir     string
	Env            map[string]string
}

// Runner executes external commands and reports their outcome. A non-zero
// exit code is a normal outcome carried in the ExecutionResult; errors are
// reserved for resolution, spawn and timeout failures.
type Runner struct {
	logger    *zap.Logger
	config    RunnerConfig
	history   storage.RunHistoryStorage
	publisher *events.Publisher
}

// NewRunner creates a new runner. History storage and the event publisher
// are optional; pass nil to disable recording or publishing.
func NewRunner(config RunnerConfig, logger *zap.Logger, history storage.RunHistoryStorage, publisher *events.Publisher) *Runner {
	return &Runner{
		logger:    logger.Named("runner"),
		config:    config,
		history:   history,
		publisher: publisher,
	}
}

// Run executes a single command and blocks until it completes or times out
func (r *Runner) Run(ctx context.Context, cmd model.Command) (*model.ExecutionResult, error) {
	return r.RunTriggered(ctx, cmd, model.TriggerManual)
}

// RunTriggered executes a command on behalf of a scheduler or sequence,
// tagging the recorded run with its trigger kind
func (r *Runner) RunTriggered(ctx context.Context, cmd model.Command, trigger model.TriggerKind) (*model.ExecutionResult, error) {
	cmd = r.applyDefaults(cmd)

	if cmd.Name == "" {
		return nil, fmt.Errorf("%w: empty command", ErrExecution)
	}
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, cmd.Name)
	}

	record := r.beginRecord(ctx, cmd, trigger)

	cmdCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(cmdCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	r.logger.Debug("Executing command", zap.String("command", cmd.String()))

	startedAt := time.Now()
	runErr := c.Run()
	completedAt := time.Now()

	result := &model.ExecutionResult{
		Command:     cmd.String(),
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}

	if runErr != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			err := fmt.Errorf("%w after %s: %s", ErrTimeout, cmd.Timeout, cmd.String())
			r.finishRecord(ctx, record, result, model.RunStatusTimedOut, err)
			return nil, err
		}

		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			err := fmt.Errorf("%w: %v", ErrExecution, runErr)
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

	r.logger.Info("Command executed",
		zap.String("command", cmd.String()),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// RunSequence executes commands one at a time, in order. With stopOnError
// set, the run stops after the first non-zero exit code and the returned
// SequenceResult is marked truncated. With stopOnError unset, spawn failures
// are captured in the result list as exit code -1 instead of being raised,
// so every command is attempted.
func (r *Runner) RunSequence(ctx context.Context, commands []model.Command, stopOnError bool) (*model.SequenceResult, error) {
	seq := &model.SequenceResult{}

	r.logger.Info("Executing command sequence", zap.Int("commands", len(commands)))

	for _, cmd := range commands {
		result, err := r.RunTriggered(ctx, cmd, model.TriggerSequence)
		if err != nil {
			if stopOnError {
				seq.Truncated = true
				return seq, err
			}
			result = &model.ExecutionResult{
				Command:     cmd.String(),
				Stderr:      err.Error(),
				ExitCode:    -1,
				StartedAt:   time.Now(),
				CompletedAt: time.Now(),
			}
		}

		seq.Results = append(seq.Results, result)

		if stopOnError && result.ExitCode != 0 {
			r.logger.Warn("Stopped sequence on failed command",
				zap.String("command", cmd.String()),
				zap.Int("exit_code", result.ExitCode))
			seq.Truncated = true
			break
		}
	}

	return seq, nil
}

// Exists reports whether name resolves to an executable. No process is
// spawned.
func (r *Runner) Exists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// applyDefaults fills unset command fields from the runner config
func (r *Runner) applyDefaults(cmd model.Command) model.Command {
	if cmd.Timeout == 0 {
		cmd.Timeout = r.config.DefaultTimeout
	}
	if cmd.Dir == "" {
		cmd.Dir = r.config.WorkingDir
	}
	if len(r.config.Env) > 0 {
		merged := make(map[string]string, len(r.config.Env)+len(cmd.Env))
		for k, v := range r.config.Env {
			merged[k] = v
		}
		for k, v := range cmd.Env {
			merged[k] = v
		}
		cmd.Env = merged
	}
	return cmd
}

// beginRecord opens a run record when history or events are enabled
func (r *Runner) beginRecord(ctx context.Context, cmd model.Command, trigger model.TriggerKind) *storage.RunRecord {
	if r.history == nil && r.publisher == nil {
		return nil
	}

	record := &storage.RunRecord{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Command:   cmd.String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}

	if r.history != nil {
		if err := r.history.Store(ctx, record); err != nil {
			r.logger.Error("Failed to store run record",
				zap.String("run_id", record.ID),
				zap.Error(err))
		}
	}

	return record
}

// finishRecord completes a run record and publishes the result
func (r *Runner) finishRecord(ctx context.Context, record *storage.RunRecord, result *model.ExecutionResult, status model.RunStatus, runErr error) {
	if record == nil {
		return
	}

	now := time.Now()
	record.Status = status
	record.CompletedAt = &now
	if result != nil {
		record.ExitCode = result.ExitCode
		record.Stdout = result.Stdout
		record.Stderr = result.Stderr
		record.Duration = result.Duration
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	if r.history != nil {
		if err := r.history.Update(ctx, record); err != nil {
			r.logger.Error("Failed to update run record",
				zap.String("run_id", record.ID),
				zap.Error(err))
		}
	}

	if r.publisher != nil && result != nil && runErr == nil {
		if err := r.publisher.PublishResult(record.ID, result); err != nil {
			r.logger.Error("Failed to publish run result",
				zap.String("run_id", record.ID),
				zap.Error(err))
		}
	}
}

// mergeEnv layers overrides on top of the process environment
func mergeEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
