package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/scrub/pkg/executil"
)

func TestExecutorSuccess(t *testing.T) {
	ex := &executil.RecordingExecutor{
		Outputs: map[string][]byte{"sh": []byte("ok\n")},
	}
	e := NewExecutor(ex, time.Minute, zerolog.Nop())

	result := e.Run(context.Background(), "/tmp/project", "go test ./...")

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "ok\n", result.Output)

	if assert.Len(t, ex.Commands, 1) {
		assert.Equal(t, "/tmp/project", ex.Commands[0].Dir)
		assert.Equal(t, []string{"-c", "go test ./..."}, ex.Commands[0].Args)
	}
}

func TestExecutorSpawnFailureIsResult(t *testing.T) {
	ex := &executil.RecordingExecutor{
		Errors: map[string]error{"sh": errors.New("exec sh: executable file not found")},
	}
	e := NewExecutor(ex, time.Minute, zerolog.Nop())

	result := e.Run(context.Background(), "", "whatever")

	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Output, "not found")
}

func TestExecutorRealCommandExitCode(t *testing.T) {
	e := NewExecutor(&executil.RealExecutor{}, time.Minute, zerolog.Nop())

	result := e.Run(context.Background(), t.TempDir(), "echo boom >&2; exit 3")

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Output, "boom")
}

func TestExecutorTimeoutKillsProcess(t *testing.T) {
	e := NewExecutor(&executil.RealExecutor{}, 50*time.Millisecond, zerolog.Nop())

	start := time.Now()
	result := e.Run(context.Background(), t.TempDir(), "sleep 10")

	assert.False(t, result.Success)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Output, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTruncateKeepsTail(t *testing.T) {
	long := strings.Repeat("x", maxOutputLen) + "THE-END"

	got := truncateTail(long)

	assert.True(t, strings.HasSuffix(got, "THE-END"))
	assert.LessOrEqual(t, len(got), maxOutputLen+len("…"))
}

func TestReset(t *testing.T) {
	commands := []Command{
		{ID: "cmd-1", Status: StatusFailed, Output: "boom", ExitCode: 2, Duration: time.Second},
		{ID: "cmd-2", Status: StatusSkipped, Output: "warn"},
	}

	Reset(commands)

	for _, c := range commands {
		assert.Equal(t, StatusPending, c.Status)
		assert.Empty(t, c.Output)
		assert.Zero(t, c.ExitCode)
		assert.Zero(t, c.Duration)
	}
}
