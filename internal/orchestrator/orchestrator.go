package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/scrub/internal/agent"
	"github.com/hay-kot/scrub/internal/core/config"
	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/git"
	"github.com/hay-kot/scrub/internal/core/runstore"
	"github.com/hay-kot/scrub/internal/core/verify"
)

// Orchestrator owns all run state and its transitions. The presentation
// layer calls the exported operations in response to user input and
// re-reads state when an event arrives on Events().
type Orchestrator struct {
	cfg      *config.Config
	store    *runstore.Store
	client   agent.Client
	executor *verify.Executor
	git      git.Git
	dir      string
	log      zerolog.Logger

	events chan Event

	mu          sync.Mutex
	phase       Phase
	findings    []finding.SlopFinding
	tasks       []finding.Task
	verifyState *VerifyState
	suggestions []finding.ReviewSuggestion
	runErr      error
	activity    string

	// working tree context, populated when a git client is present
	branch     string
	dirtyStart bool
	diffAdds   int
	diffDels   int
	diffOK     bool

	// alive is the cooperative liveness flag: stream consumers stop
	// touching state once the owning view tears down. The underlying
	// agent call is not cancelled.
	alive bool
}

// New wires an orchestrator for one run. The git client is optional;
// without it the review prompt carries no changed-file context.
func New(cfg *config.Config, store *runstore.Store, client agent.Client, executor *verify.Executor, gitClient git.Git, projectDir string, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		client:   client,
		executor: executor,
		git:      gitClient,
		dir:      projectDir,
		log:      logger.With().Str("component", "orchestrator").Logger(),
		events:   make(chan Event, 64),
		phase:    PhaseScanning,
		alive:    true,
	}
}

// Events returns the change-notification channel for the presentation
// layer. Events are dropped, never blocked on, when the consumer lags.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Teardown flips the liveness flag. In-flight stream consumption stops
// updating state; the agent processes themselves are left to finish.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alive = false
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Err returns the terminal error, set only when the phase is PhaseError.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runErr
}

// Findings returns a copy of the current findings.
func (o *Orchestrator) Findings() []finding.SlopFinding {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]finding.SlopFinding(nil), o.findings...)
}

// Tasks returns a copy of the current task list.
func (o *Orchestrator) Tasks() []finding.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]finding.Task(nil), o.tasks...)
}

// Verification returns a copy of the verification state, or nil before
// discovery has run.
func (o *Orchestrator) Verification() *VerifyState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.verifyState == nil {
		return nil
	}
	state := *o.verifyState
	state.Commands = append([]verify.Command(nil), o.verifyState.Commands...)
	return &state
}

// Suggestions returns a copy of the review suggestions. Nil means the
// review has not finished; an empty slice means it found nothing.
func (o *Orchestrator) Suggestions() []finding.ReviewSuggestion {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.suggestions == nil {
		return nil
	}
	out := make([]finding.ReviewSuggestion, len(o.suggestions))
	copy(out, o.suggestions)
	return out
}

// Activity returns the most recent agent progress text.
func (o *Orchestrator) Activity() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activity
}

// RunID returns the run identifier for display.
func (o *Orchestrator) RunID() string { return o.store.RunID() }

// Branch returns the working tree branch recorded at run start, or ""
// when no git client is wired.
func (o *Orchestrator) Branch() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.branch
}

// DirtyAtStart reports whether the tree already had uncommitted changes
// before scanning began.
func (o *Orchestrator) DirtyAtStart() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dirtyStart
}

// DiffStats returns the run's recorded line delta against HEAD. ok is
// false until a snapshot has been taken.
func (o *Orchestrator) DiffStats() (added, deleted int, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.diffAdds, o.diffDels, o.diffOK
}

// Start launches the scanning phase. It returns immediately; progress is
// reported through Events().
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		o.inspectTree(ctx)
		o.runScan(ctx)
	}()
}

// inspectTree records the branch and cleanliness of the working tree before
// the run touches anything. Failures are logged and ignored; a missing git
// binary must not block a run.
func (o *Orchestrator) inspectTree(ctx context.Context) {
	if o.git == nil {
		return
	}

	branch, err := o.git.Branch(ctx, o.dir)
	if err != nil {
		o.log.Warn().Err(err).Msg("resolve branch")
	}
	clean, err := o.git.IsClean(ctx, o.dir)
	if err != nil {
		o.log.Warn().Err(err).Msg("check working tree")
		clean = true
	}

	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.branch = branch
	o.dirtyStart = !clean
	o.mu.Unlock()

	if branch != "" {
		o.store.Log("working tree on %s", branch)
	}
	if !clean {
		o.store.Log("working tree has uncommitted changes before the run")
	}
}

// collectDiffStats snapshots the line delta against HEAD for the summary
// screen. Called on the paths that lead to the complete phase.
func (o *Orchestrator) collectDiffStats(ctx context.Context) {
	if o.git == nil {
		return
	}

	adds, dels, err := o.git.DiffStats(ctx, o.dir)
	if err != nil {
		o.log.Warn().Err(err).Msg("diff stats")
		return
	}

	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.diffAdds = adds
	o.diffDels = dels
	o.diffOK = true
	o.mu.Unlock()
}

// runScan issues the slop-detection prompt and transitions to results or,
// when nothing was found, straight to complete.
func (o *Orchestrator) runScan(ctx context.Context) {
	o.store.Log("scan started")

	learnings, err := o.store.ReadLearnings()
	if err != nil {
		o.fail(fmt.Errorf("read learnings: %w", err))
		return
	}

	prompt, err := scanPrompt(o.store.FindingsPath(), learnings)
	if err != nil {
		o.fail(fmt.Errorf("build scan prompt: %w", err))
		return
	}

	session := o.client.NewSession(o.cfg.Models.Planning)
	if err := session.Submit(ctx, prompt, o.onAgentUpdate); err != nil {
		o.fail(fmt.Errorf("scan agent call: %w", err))
		return
	}

	found, err := o.store.ReadFindings()
	if err != nil {
		o.fail(fmt.Errorf("read findings: %w", err))
		return
	}

	kept := found[:0]
	for _, f := range found {
		if o.cfg.Ignored(f.File) {
			continue
		}
		kept = append(kept, f)
	}

	if len(kept) == 0 {
		o.collectDiffStats(ctx)
	}

	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.findings = kept
	if len(kept) == 0 {
		o.phase = PhaseComplete
	} else {
		o.phase = PhaseResults
	}
	phase := o.phase
	o.mu.Unlock()

	o.store.Log("scan finished: %d findings", len(kept))
	o.publish(Event{Kind: EventPhase, Text: string(phase)})
}

// ToggleFinding flips a finding's selection. Hint-only findings never
// become selected.
func (o *Orchestrator) ToggleFinding(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.findings {
		if o.findings[i].ID == id {
			o.findings[i].Toggle()
			return
		}
	}
}

// MarkNotSlop removes a finding and records it in the learnings store so
// future scans treat it as a negative example.
func (o *Orchestrator) MarkNotSlop(id string) error {
	o.mu.Lock()
	var removed *finding.SlopFinding
	kept := o.findings[:0]
	for _, f := range o.findings {
		if f.ID == id {
			cp := f
			removed = &cp
			continue
		}
		kept = append(kept, f)
	}
	o.findings = kept
	o.mu.Unlock()

	if removed == nil {
		return nil
	}

	o.store.Log("marked not slop: %s", removed.Title)
	return o.store.AppendLearning(finding.NotSlopEntry{
		File:        removed.File,
		Line:        removed.Line,
		Category:    removed.Category,
		Title:       removed.Title,
		CodeSnippet: o.snippetFor(removed),
		Timestamp:   time.Now(),
	})
}

// snippetFor pulls the flagged line out of the source file so the learnings
// entry carries the rejected code itself, not just its location. Returns ""
// when the location is unknown or unreadable.
func (o *Orchestrator) snippetFor(f *finding.SlopFinding) string {
	if f.File == "" || f.Line <= 0 {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(o.dir, f.File))
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	if f.Line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[f.Line-1], " \t")
}

// Proceed leaves the results phase: selected fixable findings become tasks
// and the execution pipeline runs through verification and review.
func (o *Orchestrator) Proceed(ctx context.Context) {
	o.mu.Lock()
	if o.phase != PhaseResults {
		o.mu.Unlock()
		return
	}
	// Hint-only categories are excluded again here, defensively: the
	// toggle path already refuses to select them.
	o.tasks = finding.BuildTasks(o.findings)
	o.phase = PhaseExecuting
	tasks := append([]finding.Task(nil), o.tasks...)
	o.mu.Unlock()

	if err := o.store.WriteTasks(tasks); err != nil {
		o.log.Error().Err(err).Msg("persist task list")
	}
	o.store.Log("proceeding with %d tasks", len(tasks))
	o.publish(Event{Kind: EventPhase, Text: string(PhaseExecuting)})

	go func() {
		o.runExecute(ctx)
		o.runVerify(ctx)
	}()
}

// AcknowledgeReview finishes the run from the reviewing phase. It is a
// no-op while the review agent is still streaming: suggestions stay nil
// until the review artifact has been read.
func (o *Orchestrator) AcknowledgeReview() {
	o.mu.Lock()
	if o.phase != PhaseReviewing || o.suggestions == nil {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseComplete
	o.mu.Unlock()

	o.store.Log("review acknowledged, run complete")
	o.publish(Event{Kind: EventPhase, Text: string(PhaseComplete)})
}

// ApplySuggestions promotes review suggestions into pre-selected findings
// and loops the machine back to the results phase, discarding prior task
// and output state.
func (o *Orchestrator) ApplySuggestions() {
	o.mu.Lock()
	if o.phase != PhaseReviewing || len(o.suggestions) == 0 {
		o.mu.Unlock()
		return
	}
	o.findings = finding.Promote(o.suggestions)
	o.tasks = nil
	o.verifyState = nil
	o.suggestions = nil
	o.activity = ""
	o.phase = PhaseResults
	findings := append([]finding.SlopFinding(nil), o.findings...)
	o.mu.Unlock()

	if err := o.store.WriteFindings(findings); err != nil {
		o.log.Error().Err(err).Msg("persist promoted findings")
	}
	o.store.Log("applied %d review suggestions as findings", len(findings))
	o.publish(Event{Kind: EventPhase, Text: string(PhaseResults)})
}

// runReview issues the code-review prompt and parses the review artifact.
// Zero suggestions is a valid terminal display state, not an error.
func (o *Orchestrator) runReview(ctx context.Context) {
	o.setPhase(PhaseReviewing)
	o.store.Log("review started")

	var changed []string
	if o.git != nil {
		files, err := o.git.ChangedFiles(ctx, o.dir)
		if err != nil {
			o.log.Warn().Err(err).Msg("list changed files")
		} else {
			changed = files
		}
	}

	prompt, err := reviewPrompt(o.store.ReviewPath(), changed)
	if err != nil {
		o.fail(fmt.Errorf("build review prompt: %w", err))
		return
	}

	session := o.client.NewSession(o.cfg.Models.Planning)
	if err := session.Submit(ctx, prompt, o.onAgentUpdate); err != nil {
		o.fail(fmt.Errorf("review agent call: %w", err))
		return
	}

	suggestions, err := o.store.ReadReview()
	if err != nil {
		o.fail(fmt.Errorf("read review: %w", err))
		return
	}
	if suggestions == nil {
		// Non-nil marks the review as finished even when it found nothing.
		suggestions = []finding.ReviewSuggestion{}
	}

	o.collectDiffStats(ctx)

	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.suggestions = suggestions
	o.mu.Unlock()

	o.store.Log("review finished: %d suggestions", len(suggestions))
	o.publish(Event{Kind: EventPhase, Text: string(PhaseReviewing)})
}

// onAgentUpdate accumulates stream text for display. It checks liveness on
// every event and drops updates once the owner has torn down.
func (o *Orchestrator) onAgentUpdate(u agent.Update) {
	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	switch u.Kind {
	case agent.UpdateTextDelta:
		o.activity += u.Text
		if len(o.activity) > 2000 {
			o.activity = o.activity[len(o.activity)-2000:]
		}
	case agent.UpdateToolCall:
		o.activity += "\n[" + u.Tool + "]\n"
	}
	o.mu.Unlock()

	o.publish(Event{Kind: EventAgentText})
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.phase = p
	o.activity = ""
	o.mu.Unlock()
	o.publish(Event{Kind: EventPhase, Text: string(p)})
}

// fail moves the machine to the terminal error state. Only scanning and
// reviewing agent failures land here; task and verification failures are
// contained as data.
func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	if !o.alive {
		o.mu.Unlock()
		return
	}
	o.runErr = err
	o.phase = PhaseError
	o.mu.Unlock()

	o.log.Error().Err(err).Msg("run failed")
	o.store.Log("error: %v", err)
	o.publish(Event{Kind: EventPhase, Text: string(PhaseError)})
}

// publish sends without blocking; a slow consumer misses intermediate
// events but re-reads full state on the next one it sees.
func (o *Orchestrator) publish(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}
