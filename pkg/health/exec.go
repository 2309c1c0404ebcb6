package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/quayside/cutover/pkg/types"
)

// ExecChecker performs exec-based health checks by running a command.
// Used for stack services that expose no HTTP or TCP surface (for example
// "docker compose exec db pg_isready").
type ExecChecker struct {
	// Command is the command to execute (e.g., ["pg_isready", "-U", "postgres"])
	Command []string

	// Timeout is the command execution timeout (default: 10 seconds)
	Timeout time.Duration
}

// NewExecChecker creates a new exec health checker
func NewExecChecker(command []string) *ExecChecker {
	return &ExecChecker{
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check performs one exec health check; exit code 0 means healthy
func (e *ExecChecker) Check(ctx context.Context) types.ProbeResult {
	start := time.Now()

	if len(e.Command) == 0 {
		return failure(start, "no command specified")
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.Command[0], e.Command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("command %v failed: %v", e.Command, err)
		if stderr.Len() > 0 {
			message = fmt.Sprintf("%s, stderr: %s", message, stderr.String())
		}
		return failure(start, message)
	}

	message := fmt.Sprintf("command %v succeeded", e.Command)
	if stdout.Len() > 0 {
		output := stdout.String()
		if len(output) > 100 {
			output = output[:100] + "..."
		}
		message = fmt.Sprintf("%s, output: %s", message, output)
	}

	return types.ProbeResult{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Latency:   time.Since(start),
		Attempts:  1,
	}
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}
