package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/opskit/internal/model"
)

func TestCronSchedulerFires(t *testing.T) {
	runner := &stubRunner{}
	s := NewCronScheduler(runner, zaptest.NewLogger(t))
	s.Start()
	defer s.Stop()

	var fired atomic.Int32
	schedule := &model.CronSchedule{
		Name:       "every-second",
		Expression: "* * * * * *",
		Command:    model.Command{Name: "echo"},
	}
	err := s.AddSchedule(schedule, func(*model.ExecutionResult) {
		fired.Add(1)
	})
	require.NoError(t, err)
	require.NotEmpty(t, schedule.ID)
	require.NotNil(t, schedule.NextRunTime)

	time.Sleep(2500 * time.Millisecond)
	assert.GreaterOrEqual(t, fired.Load(), int32(1))

	got, err := s.GetSchedule(schedule.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastRunTime)
}

func TestCronSchedulerRejectsInvalidExpression(t *testing.T) {
	s := NewCronScheduler(&stubRunner{}, zaptest.NewLogger(t))

	err := s.AddSchedule(&model.CronSchedule{
		Name:       "broken",
		Expression: "not a cron expression",
		Command:    model.Command{Name: "echo"},
	}, nil)
	require.Error(t, err)
}

func TestCronSchedulerRemoveSchedule(t *testing.T) {
	s := NewCronScheduler(&stubRunner{}, zaptest.NewLogger(t))

	schedule := &model.CronSchedule{
		Name:       "hourly",
		Expression: "0 0 * * * *",
		Command:    model.Command{Name: "echo"},
	}
	require.NoError(t, s.AddSchedule(schedule, nil))

	require.NoError(t, s.RemoveSchedule(schedule.ID))

	_, err := s.GetSchedule(schedule.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScheduleNotFound))

	err = s.RemoveSchedule(schedule.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScheduleNotFound))
}

func TestCronSchedulerConcurrentReads(t *testing.T) {
	runner := &stubRunner{}
	s := NewCronScheduler(runner, zaptest.NewLogger(t))
	s.Start()
	defer s.Stop()

	schedule := &model.CronSchedule{
		Name:       "every-second",
		Expression: "* * * * * *",
		Command:    model.Command{Name: "echo"},
	}
	require.NoError(t, s.AddSchedule(schedule, nil))

	// Readers race against the firing loop updating run times
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2200 * time.Millisecond)
		for time.Now().Before(deadline) {
			if got, err := s.GetSchedule(schedule.ID); err == nil {
				_ = got.NextRunTime
			}
			for _, listed := range s.ListSchedules() {
				_ = listed.LastRunTime
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	<-done

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(1))
}

func TestCronSchedulerListSchedules(t *testing.T) {
	s := NewCronScheduler(&stubRunner{}, zaptest.NewLogger(t))

	require.NoError(t, s.AddSchedule(&model.CronSchedule{
		Name:       "one",
		Expression: "0 0 * * * *",
		Command:    model.Command{Name: "echo"},
	}, nil))
	require.NoError(t, s.AddSchedule(&model.CronSchedule{
		Name:       "two",
		Expression: "0 30 * * * *",
		Command:    model.Command{Name: "echo"},
	}, nil))

	schedules := s.ListSchedules()
	assert.Len(t, schedules, 2)
}
