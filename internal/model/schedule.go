package model

import (
	"time"
)

// ScheduledTask represents a command scheduled for periodic or one-shot
// execution. Identifiers are generated at creation and never reused.
type ScheduledTask struct {
	ID      string  `json:"id"`
	Command Command `json:"command"`

	// Interval between firings. Zero means the task fires exactly once.
	Interval time.Duration `json:"interval,omitempty"`

	// MaxRuns stops the task after this many firings. Zero means unlimited.
	MaxRuns int `json:"max_runs,omitempty"`

	Active      bool       `json:"active"`
	RunCount    int        `json:"run_count"`
	CreatedAt   time.Time  `json:"created_at"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
}

// CronSchedule represents a command scheduled by cron expression
type CronSchedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Expression  string     `json:"expression"`
	Command     Command    `json:"command"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
