package model

// RunStatus represents the current status of a recorded run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimedOut  RunStatus = "timed_out"
)

// TriggerKind records what caused a command to run
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerSequence TriggerKind = "sequence"
	TriggerStream   TriggerKind = "stream"
	TriggerInterval TriggerKind = "interval"
	TriggerCron     TriggerKind = "cron"
)
