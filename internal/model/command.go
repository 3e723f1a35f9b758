package model

import (
	"strings"
	"time"
)

// Command describes a single external command invocation.
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`

	// Dir is the working directory for the command. Empty means the
	// process working directory.
	Dir string `json:"dir,omitempty"`

	// Env holds environment overrides merged on top of the process
	// environment. Keys are unique.
	Env map[string]string `json:"env,omitempty"`

	// Timeout bounds a single execution. Zero means no timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// String renders the command the way a shell would show it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExecutionResult captures the outcome of one completed command.
// It is immutable once produced.
type ExecutionResult struct {
	Command     string        `json:"command"`
	Stdout      string        `json:"stdout"`
	Stderr      string        `json:"stderr"`
	ExitCode    int           `json:"exit_code"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// SequenceResult holds the ordered results of a command sequence.
// Truncated is set when the run stopped early on a non-zero exit code,
// so a partial run is always distinguishable from a complete one.
type SequenceResult struct {
	Results   []*ExecutionResult `json:"results"`
	Truncated bool               `json:"truncated"`
}

// StreamSource identifies which output stream a line came from.
type StreamSource string

const (
	StreamStdout StreamSource = "stdout"
	StreamStderr StreamSource = "stderr"
)

// StreamLine is one line of realtime command output. Ordering is
// preserved within a stream but not across stdout and stderr.
type StreamLine struct {
	Source StreamSource `json:"source"`
	Text   string       `json:"text"`
}
