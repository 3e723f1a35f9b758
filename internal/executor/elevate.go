package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

// RunElevated executes a command with root privileges. When the calling
// process is already root the command runs directly; otherwise it is wrapped
// in non-interactive sudo. Elevation failures surface as ErrPrivilege and
// are never conflated with a non-zero exit code of the command itself.
func (r *Runner) RunElevated(ctx context.Context, cmd model.Command) (*model.ExecutionResult, error) {
	if runtime.GOOS == "windows" {
		return nil, fmt.Errorf("%w: elevation not supported on %s", ErrPrivilege, runtime.GOOS)
	}

	if cmd.Name == "" {
		return nil, fmt.Errorf("%w: empty command", ErrExecution)
	}
	if _, err := exec.LookPath(cmd.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, cmd.Name)
	}

	if os.Geteuid() == 0 {
		return r.Run(ctx, cmd)
	}

	if _, err := exec.LookPath("sudo"); err != nil {
		return nil, fmt.Errorf("%w: sudo not available", ErrPrivilege)
	}

	r.logger.Info("Elevating privileges for command", zap.String("command", cmd.String()))

	elevated := cmd
	elevated.Name = "sudo"
	elevated.Args = append([]string{"-n", "--", cmd.Name}, cmd.Args...)

	result, err := r.Run(ctx, elevated)
	if err != nil {
		return nil, err
	}

	if sudoDenied(result) {
		return nil, fmt.Errorf("%w: sudo denied non-interactive elevation", ErrPrivilege)
	}

	return result, nil
}

// sudoDenied reports whether the result is sudo's own non-interactive
// password refusal. The message is matched with its "sudo:" prefix so a
// wrapped command printing similar text is not mistaken for a denial.
func sudoDenied(result *model.ExecutionResult) bool {
	return result.ExitCode == 1 && strings.Contains(result.Stderr, "sudo: a password is required")
}
