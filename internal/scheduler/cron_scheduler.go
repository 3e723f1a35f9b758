package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

// CronScheduler manages commands scheduled by cron expression. Expressions
// use the six-field form with a seconds column.
type CronScheduler struct {
	logger    *zap.Logger
	runner    CommandRunner
	cron      *cron.Cron
	schedules sync.Map
	entryIDs  sync.Map

	// mu guards the mutable fields of stored schedules against readers
	mu sync.Mutex
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronScheduler creates a new cron scheduler
func NewCronScheduler(runner CommandRunner, logger *zap.Logger) *CronScheduler {
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(&cronLogger{logger: logger.Named("cron")})),
	}

	return &CronScheduler{
		logger: logger.Named("cron-scheduler"),
		runner: runner,
		cron:   cron.New(cronOptions...),
	}
}

// Start starts the scheduler
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// AddSchedule adds a new cron schedule. The callback, when set, receives
// the result of every firing.
func (s *CronScheduler) AddSchedule(schedule *model.CronSchedule, callback ResultCallback) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}
	schedule.UpdatedAt = time.Now()

	spec, err := cronParser().Parse(schedule.Expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	next := spec.Next(time.Now())
	schedule.NextRunTime = &next

	// The stored copy is owned by the scheduler; the caller's struct is
	// never touched after this point.
	stored := *schedule
	s.schedules.Store(stored.ID, &stored)

	entryID, err := s.cron.AddJob(stored.Expression, &cronJob{
		scheduler: s,
		schedule:  &stored,
		callback:  callback,
	})
	if err != nil {
		s.schedules.Delete(stored.ID)
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryIDs.Store(stored.ID, entryID)

	s.logger.Info("Added schedule",
		zap.String("id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("expression", schedule.Expression),
		zap.Time("next_run", next))

	return nil
}

// RemoveSchedule removes a schedule
func (s *CronScheduler) RemoveSchedule(id string) error {
	entryIDVal, ok := s.entryIDs.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	s.cron.Remove(entryIDVal.(cron.EntryID))
	s.entryIDs.Delete(id)
	s.schedules.Delete(id)

	s.logger.Info("Removed schedule", zap.String("id", id))
	return nil
}

// GetSchedule gets a copy of a schedule by ID
func (s *CronScheduler) GetSchedule(id string) (*model.CronSchedule, error) {
	val, ok := s.schedules.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	schedule := *val.(*model.CronSchedule)
	return &schedule, nil
}

// ListSchedules lists copies of all schedules
func (s *CronScheduler) ListSchedules() []*model.CronSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	var schedules []*model.CronSchedule
	s.schedules.Range(func(key, value interface{}) bool {
		schedule := *value.(*model.CronSchedule)
		schedules = append(schedules, &schedule)
		return true
	})
	return schedules
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	schedule  *model.CronSchedule
	callback  ResultCallback
}

// Run implements cron.Job
func (j *cronJob) Run() {
	now := time.Now()
	var next *time.Time
	if spec, err := cronParser().Parse(j.schedule.Expression); err == nil {
		n := spec.Next(now)
		next = &n
	}

	j.scheduler.mu.Lock()
	j.schedule.LastRunTime = &now
	if next != nil {
		j.schedule.NextRunTime = next
	}
	j.scheduler.mu.Unlock()

	result, err := j.scheduler.runner.RunTriggered(context.Background(), j.schedule.Command, model.TriggerCron)
	if err != nil {
		j.scheduler.logger.Error("Cron firing failed",
			zap.String("id", j.schedule.ID),
			zap.String("name", j.schedule.Name),
			zap.Error(err))
		completed := time.Now()
		result = &model.ExecutionResult{
			Command:     j.schedule.Command.String(),
			Stderr:      err.Error(),
			ExitCode:    -1,
			StartedAt:   now,
			CompletedAt: completed,
		}
	}

	if j.callback != nil {
		j.callback(result)
	}

	j.scheduler.logger.Info("Executed schedule",
		zap.String("id", j.schedule.ID),
		zap.String("name", j.schedule.Name),
		zap.Int("exit_code", result.ExitCode))
}
