package verify

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/scrub/pkg/executil"
)

// maxOutputLen caps captured command output. The tail is kept: errors are
// usually at the end.
const maxOutputLen = 8 * 1024

// spawnExitCode is the synthetic exit code reported when the command could
// not start at all (binary not found, etc.).
const spawnExitCode = -1

// Result is the outcome of running one verification command.
type Result struct {
	Success  bool
	Output   string
	ExitCode int
	Duration time.Duration
}

// Executor runs single verification commands in a shell with a hard
// timeout.
type Executor struct {
	exec    executil.Executor
	timeout time.Duration
	log     zerolog.Logger
}

// NewExecutor creates an executor with a per-command timeout.
func NewExecutor(ex executil.Executor, timeout time.Duration, logger zerolog.Logger) *Executor {
	return &Executor{
		exec:    ex,
		timeout: timeout,
		log:     logger.With().Str("component", "verify").Logger(),
	}
}

// Run executes one command string via `sh -c` in dir. The process is killed
// when the timeout expires. Failures of any kind, including spawn failures,
// are reported in the Result rather than as an error: the caller only
// branches on Success, the rest is display text.
func (e *Executor) Run(ctx context.Context, dir, command string) Result {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := e.exec.RunDir(runCtx, dir, "sh", "-c", command)
	duration := time.Since(start)

	result := Result{
		Success:  err == nil,
		Output:   truncateTail(string(out)),
		Duration: duration,
	}

	switch {
	case err == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = spawnExitCode
		result.Output = appendLine(result.Output, "command timed out after "+e.timeout.String())
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: shell or binary missing entirely.
			result.ExitCode = spawnExitCode
			result.Output = appendLine(result.Output, err.Error())
		}
	}

	e.log.Debug().
		Str("command", command).
		Bool("success", result.Success).
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("verification command finished")

	return result
}

func truncateTail(s string) string {
	if len(s) <= maxOutputLen {
		return s
	}
	return "…" + s[len(s)-maxOutputLen:]
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return strings.TrimRight(s, "\n") + "\n" + line
}
