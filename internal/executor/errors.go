package executor

import "errors"

var (
	// ErrCommandNotFound is returned when the executable cannot be resolved
	ErrCommandNotFound = errors.New("command not found")

	// ErrTimeout is returned when a command exceeds its timeout
	ErrTimeout = errors.New("command timed out")

	// ErrExecution is returned for spawn and runtime failures other than
	// a non-zero exit code
	ErrExecution = errors.New("execution failed")

	// ErrPrivilege is returned when elevated execution is denied or the
	// platform does not support it. Never used for a plain command failure.
	ErrPrivilege = errors.New("privilege elevation failed")
)
