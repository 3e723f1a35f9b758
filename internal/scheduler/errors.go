package scheduler

import "errors"

var (
	// ErrTaskNotFound is returned when a task id is unknown or the task
	// was already cancelled
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidInterval is returned when a negative interval is given
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrScheduleNotFound is returned when a cron schedule id is unknown
	ErrScheduleNotFound = errors.New("schedule not found")
)
