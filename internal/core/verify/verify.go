// Package verify discovers project verification commands from manifests and
// executes them with bounded timeouts.
package verify

import "time"

// CommandType tags what a verification command checks.
type CommandType string

// Command types, in execution priority order.
const (
	TypeBuild     CommandType = "build"
	TypeTypecheck CommandType = "typecheck"
	TypeTest      CommandType = "test"
	TypeLint      CommandType = "lint"
)

// Required reports whether a failing command of this type blocks the
// pipeline. Build and test are always required; typecheck and lint are
// advisory.
func (t CommandType) Required() bool {
	return t == TypeBuild || t == TypeTest
}

// CommandStatus tracks a command through a verification pass.
type CommandStatus string

// Command states. All commands reset to pending at the start of each
// retry attempt.
const (
	StatusPending CommandStatus = "pending"
	StatusRunning CommandStatus = "running"
	StatusPassed  CommandStatus = "passed"
	StatusFailed  CommandStatus = "failed"
	StatusSkipped CommandStatus = "skipped"
)

// Command is one discovered verification command plus its status within the
// current pass.
type Command struct {
	ID       string
	Name     string
	Command  string
	Type     CommandType
	Optional bool
	Status   CommandStatus
	Output   string
	ExitCode int
	Duration time.Duration
}

// Discovery is the ordered command list produced for one run, plus the
// manifest sources that were consulted.
type Discovery struct {
	Commands []Command
	Sources  []string
}

// Reset returns every command to pending with cleared results, ready for
// the next retry attempt.
func Reset(commands []Command) {
	for i := range commands {
		commands[i].Status = StatusPending
		commands[i].Output = ""
		commands[i].ExitCode = 0
		commands[i].Duration = 0
	}
}
