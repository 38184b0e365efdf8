// Package orchestrator drives a scrub run through its phases: scanning,
// results curation, parallel fix execution, gated verification with a
// bounded fix-retry loop, and the final review pass.
package orchestrator

import "github.com/hay-kot/scrub/internal/core/verify"

// Phase identifies the state machine's current phase. Transitions are owned
// exclusively by the orchestrator; the presentation layer only observes.
type Phase string

// Run phases. Error is terminal and reachable from any phase.
const (
	PhaseScanning  Phase = "scanning"
	PhaseResults   Phase = "results"
	PhaseExecuting Phase = "executing"
	PhaseVerifying Phase = "verifying"
	PhaseReviewing Phase = "reviewing"
	PhaseComplete  Phase = "complete"
	PhaseError     Phase = "error"
)

// VerifyStatus tracks the verification sub-machine within the verifying
// phase.
type VerifyStatus string

// Verification statuses.
const (
	VerifyDiscovering VerifyStatus = "discovering"
	VerifyRunning     VerifyStatus = "running"
	VerifyFixing      VerifyStatus = "fixing"
	VerifyPassed      VerifyStatus = "passed"
	VerifyFailed      VerifyStatus = "failed"
)

// VerifyState is the verification loop's full state for one run. It is
// replaced wholesale at the start of each retry cycle.
type VerifyState struct {
	Commands     []verify.Command
	CurrentIndex int
	Attempt      int
	MaxAttempts  int
	Status       VerifyStatus
	Sources      []string
}

// Decision is the user's choice after verification exhausts its retries.
type Decision string

// Decisions at the verification-failed gate.
const (
	DecisionRetry Decision = "retry"
	DecisionSkip  Decision = "skip"
	DecisionQuit  Decision = "quit"
)

// EventKind discriminates orchestrator events.
type EventKind string

// Event kinds published to the presentation layer. Consumers re-read
// orchestrator state on receipt; events carry only display text.
const (
	EventPhase     EventKind = "phase"
	EventAgentText EventKind = "agent-text"
	EventTask      EventKind = "task"
	EventVerify    EventKind = "verify"
)

// Event is a change notification for the presentation layer.
type Event struct {
	Kind EventKind
	Text string
}
