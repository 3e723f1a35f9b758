package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

// CommandRunner abstracts command execution so schedulers can be tested
// without spawning real processes.
type CommandRunner interface {
	RunTriggered(ctx context.Context, cmd model.Command, trigger model.TriggerKind) (*model.ExecutionResult, error)
}

// ResultCallback receives the outcome of one firing. Failed firings are
// delivered as a result with exit code -1 and the error text on stderr.
type ResultCallback func(*model.ExecutionResult)

// IntervalScheduler fires commands periodically or once, independent of the
// caller's control flow. Overlap policy: a firing that is still running when
// the next tick is due makes the overdue firing be skipped (ticks coalesce),
// so a hanging command occupies at most its own firing slot. Cancellation is
// cooperative: an in-flight firing completes and delivers its callback
// exactly once, but never reschedules.
type IntervalScheduler struct {
	logger *zap.Logger
	runner CommandRunner

	mu     sync.Mutex
	tasks  map[string]*taskEntry
	paused bool
}

// ScheduleOptions tunes a recurring schedule
type ScheduleOptions struct {
	// MaxRuns removes the task after this many firings. Zero means
	// unlimited.
	MaxRuns int

	// ImmediateRun fires once right away instead of waiting out the
	// first interval.
	ImmediateRun bool
}

type taskEntry struct {
	task   *model.ScheduledTask
	cancel chan struct{}
}

// NewIntervalScheduler creates a new interval scheduler
func NewIntervalScheduler(runner CommandRunner, logger *zap.Logger) *IntervalScheduler {
	return &IntervalScheduler{
		logger: logger.Named("interval-scheduler"),
		runner: runner,
		tasks:  make(map[string]*taskEntry),
	}
}

// Schedule registers a command for repeated execution every interval,
// starting after the first interval elapses. A zero interval fires the
// command exactly once at the earliest opportunity. The returned id is
// unique and never reused.
func (s *IntervalScheduler) Schedule(cmd model.Command, interval time.Duration, callback ResultCallback) (string, error) {
	return s.ScheduleWithOptions(cmd, interval, ScheduleOptions{}, callback)
}

// ScheduleWithOptions registers a command for repeated execution with a
// firing limit and an optional immediate first run
func (s *IntervalScheduler) ScheduleWithOptions(cmd model.Command, interval time.Duration, opts ScheduleOptions, callback ResultCallback) (string, error) {
	if interval < 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}

	now := time.Now()
	task := &model.ScheduledTask{
		ID:        uuid.New().String(),
		Command:   cmd,
		Interval:  interval,
		MaxRuns:   opts.MaxRuns,
		Active:    true,
		CreatedAt: now,
	}
	if interval > 0 {
		next := now.Add(interval)
		if opts.ImmediateRun {
			next = now
		}
		task.NextRunTime = &next
	}

	entry := &taskEntry{
		task:   task,
		cancel: make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks[task.ID] = entry
	s.mu.Unlock()

	if interval > 0 {
		go s.runInterval(entry, opts, callback)
	} else {
		go s.runOnce(entry, callback, nil)
	}

	s.logger.Info("Scheduled task",
		zap.String("task_id", task.ID),
		zap.String("command", cmd.String()),
		zap.Duration("interval", interval),
		zap.Int("max_runs", opts.MaxRuns))

	return task.ID, nil
}

// ScheduleAt registers a command for one-shot execution at the given time
func (s *IntervalScheduler) ScheduleAt(cmd model.Command, at time.Time, callback ResultCallback) (string, error) {
	now := time.Now()
	task := &model.ScheduledTask{
		ID:          uuid.New().String(),
		Command:     cmd,
		Active:      true,
		CreatedAt:   now,
		NextRunTime: &at,
	}

	entry := &taskEntry{
		task:   task,
		cancel: make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks[task.ID] = entry
	s.mu.Unlock()

	go s.runOnce(entry, callback, time.NewTimer(time.Until(at)))

	s.logger.Info("Scheduled one-shot task",
		zap.String("task_id", task.ID),
		zap.String("command", cmd.String()),
		zap.Time("at", at))

	return task.ID, nil
}

// Cancel marks the task inactive and prevents all future firings. Fails
// with ErrTaskNotFound when the id is unknown or already cancelled.
func (s *IntervalScheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	close(entry.cancel)
	entry.task.Active = false
	delete(s.tasks, id)

	s.logger.Info("Cancelled task", zap.String("task_id", id))
	return nil
}

// Tasks returns a snapshot of the currently registered tasks
func (s *IntervalScheduler) Tasks() []model.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]model.ScheduledTask, 0, len(s.tasks))
	for _, entry := range s.tasks {
		tasks = append(tasks, *entry.task)
	}
	return tasks
}

// Pause suspends recurring firings. Ticks due while paused are skipped,
// not deferred. One-shot tasks still fire.
func (s *IntervalScheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()

	s.logger.Info("Interval scheduler paused")
}

// Resume reinstates recurring firings after a Pause
func (s *IntervalScheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()

	s.logger.Info("Interval scheduler resumed")
}

// Stop cancels every registered task
func (s *IntervalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.tasks {
		close(entry.cancel)
		entry.task.Active = false
		delete(s.tasks, id)
	}

	s.logger.Info("Interval scheduler stopped")
}

// runInterval is the per-task firing loop for recurring tasks
func (s *IntervalScheduler) runInterval(entry *taskEntry, opts ScheduleOptions, callback ResultCallback) {
	if opts.ImmediateRun {
		if s.cancelled(entry) {
			return
		}
		s.fire(entry, callback)
		if s.exhausted(entry) {
			s.remove(entry)
			return
		}
	}

	ticker := time.NewTicker(entry.task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.cancel:
			return
		case <-ticker.C:
			if s.cancelled(entry) {
				return
			}
			if s.isPaused() {
				continue
			}
			// Firing synchronously keeps at most one execution in flight
			// per task; ticks missed meanwhile coalesce into one.
			s.fire(entry, callback)
			if s.exhausted(entry) {
				s.remove(entry)
				return
			}
		}
	}
}

// runOnce fires a one-shot task and removes it from the registry
func (s *IntervalScheduler) runOnce(entry *taskEntry, callback ResultCallback, timer *time.Timer) {
	if timer != nil {
		defer timer.Stop()
		select {
		case <-entry.cancel:
			return
		case <-timer.C:
		}
		if s.cancelled(entry) {
			return
		}
	}

	s.fire(entry, callback)
	s.remove(entry)
}

// fire executes the task command once and delivers the result
func (s *IntervalScheduler) fire(entry *taskEntry, callback ResultCallback) {
	task := entry.task

	result, err := s.runner.RunTriggered(context.Background(), task.Command, model.TriggerInterval)
	if err != nil {
		s.logger.Error("Scheduled firing failed",
			zap.String("task_id", task.ID),
			zap.Error(err))
		now := time.Now()
		result = &model.ExecutionResult{
			Command:     task.Command.String(),
			Stderr:      err.Error(),
			ExitCode:    -1,
			StartedAt:   now,
			CompletedAt: now,
		}
	}

	now := time.Now()
	s.mu.Lock()
	task.RunCount++
	task.LastRunTime = &now
	if task.Interval > 0 {
		next := now.Add(task.Interval)
		task.NextRunTime = &next
	}
	s.mu.Unlock()

	if callback != nil {
		callback(result)
	}
}

// cancelled reports whether the entry's cancel channel is closed
func (s *IntervalScheduler) cancelled(entry *taskEntry) bool {
	select {
	case <-entry.cancel:
		return true
	default:
		return false
	}
}

// isPaused reports whether recurring firings are suspended
func (s *IntervalScheduler) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// exhausted reports whether the task reached its firing limit
func (s *IntervalScheduler) exhausted(entry *taskEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entry.task.MaxRuns > 0 && entry.task.RunCount >= entry.task.MaxRuns
}

// remove deletes the entry from the registry unless it was already
// cancelled and replaced
func (s *IntervalScheduler) remove(entry *taskEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.tasks[entry.task.ID]; ok && current == entry {
		entry.task.Active = false
		delete(s.tasks, entry.task.ID)
	}
}
