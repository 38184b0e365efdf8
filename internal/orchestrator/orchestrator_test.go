package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/scrub/internal/agent"
	"github.com/hay-kot/scrub/internal/core/config"
	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/git"
	"github.com/hay-kot/scrub/internal/core/mdcodec"
	"github.com/hay-kot/scrub/internal/core/runstore"
	"github.com/hay-kot/scrub/internal/core/verify"
)

type fixture struct {
	orch    *Orchestrator
	store   *runstore.Store
	client  *agent.MockClient
	project string
}

type fixtureOpts struct {
	maxRetries int
	runCommand func(dir, script string) ([]byte, error)
	onSubmit   func(model, prompt string, onUpdate func(agent.Update)) error
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	project := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	if opts.maxRetries > 0 {
		cfg.Verification.MaxRetries = opts.maxRetries
	}
	cfg.Verification.Timeout = 5

	store, err := runstore.New(project, zerolog.Nop())
	require.NoError(t, err)

	client := &agent.MockClient{OnSubmit: opts.onSubmit}

	runFn := opts.runCommand
	if runFn == nil {
		runFn = func(dir, script string) ([]byte, error) { return []byte("ok"), nil }
	}
	executor := verify.NewExecutor(&scriptedExec{run: runFn}, 5*time.Second, zerolog.Nop())

	orch := New(&cfg, store, client, executor, nil, project, zerolog.Nop())
	return &fixture{orch: orch, store: store, client: client, project: project}
}

// scriptedExec adapts a run func to executil.Executor. Verification runs
// everything through "sh -c <script>", so the script is what tests match on.
type scriptedExec struct {
	run func(dir, script string) ([]byte, error)
}

func (s *scriptedExec) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return s.RunDir(ctx, "", cmd, args...)
}

func (s *scriptedExec) RunDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error) {
	script := ""
	if len(args) == 2 && args[0] == "-c" {
		script = args[1]
	}
	return s.run(dir, script)
}

func (s *scriptedExec) RunDirStream(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, cmd string, args ...string) error {
	return errors.New("not used")
}

func writeArtifact(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func findingsDoc(findings ...finding.SlopFinding) string {
	return mdcodec.WriteFindings(findings)
}

func TestScanZeroFindingsGoesStraightToComplete(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			writeArtifact(t, fx.store.FindingsPath(), "# Slop Findings\n\n## No Issues Found\n")
			return nil
		},
	})

	fx.orch.runScan(context.Background())

	assert.Equal(t, PhaseComplete, fx.orch.Phase())
	assert.Empty(t, fx.orch.Findings())
}

func TestScanFindingsLandInResults(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			onUpdate(agent.Update{Kind: agent.UpdateTextDelta, Text: "scanning…"})
			writeArtifact(t, fx.store.FindingsPath(), findingsDoc(
				finding.SlopFinding{Title: "noise", File: "a.go", Line: 3, Severity: finding.SeverityLow, Category: finding.CategoryComments},
				finding.SlopFinding{Title: "dead", File: "b.go", Severity: finding.SeverityHigh, Category: finding.CategoryDeadCode},
			))
			return nil
		},
	})

	fx.orch.runScan(context.Background())

	assert.Equal(t, PhaseResults, fx.orch.Phase())
	require.Len(t, fx.orch.Findings(), 2)

	// Scan prompt carries the findings path so the agent knows where to write.
	prompts := fx.client.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0].Prompt, fx.store.FindingsPath())
}

func TestScanAgentFailureIsTerminal(t *testing.T) {
	fx := newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			return errors.New("rate limited")
		},
	})

	fx.orch.runScan(context.Background())

	assert.Equal(t, PhaseError, fx.orch.Phase())
	require.Error(t, fx.orch.Err())
	assert.Contains(t, fx.orch.Err().Error(), "rate limited")
}

func TestScanRespectsIgnoreGlobs(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			writeArtifact(t, fx.store.FindingsPath(), findingsDoc(
				finding.SlopFinding{Title: "vendored", File: "vendor/lib/x.go", Severity: finding.SeverityLow, Category: finding.CategoryComments},
				finding.SlopFinding{Title: "real", File: "internal/x.go", Severity: finding.SeverityLow, Category: finding.CategoryComments},
			))
			return nil
		},
	})
	fx.orch.cfg.Scan.Ignore = []string{"vendor/**"}

	fx.orch.runScan(context.Background())

	found := fx.orch.Findings()
	require.Len(t, found, 1)
	assert.Equal(t, "real", found[0].Title)
}

func TestHintOnlyFindingsNeverBecomeTasks(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.phase = PhaseResults
	fx.orch.findings = []finding.SlopFinding{
		{ID: "finding-1", Title: "fixable", File: "a.go", Category: finding.CategoryComments, Selected: true},
		// Selected:true on a hint-only category models a corrupted record;
		// the proceed transition must still exclude it.
		{ID: "finding-2", Title: "hint", File: "b.go", Category: finding.CategoryArchitecture, Selected: true},
		{ID: "finding-3", Title: "unselected", File: "c.go", Category: finding.CategoryDeadCode},
	}

	tasks := finding.BuildTasks(fx.orch.Findings())

	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.Equal(t, "finding-1", tasks[0].SourceFindingID)
}

func TestToggleRefusesHintOnly(t *testing.T) {
	f := finding.SlopFinding{ID: "x", Category: finding.CategorySecurity}

	assert.False(t, f.Toggle())
	assert.False(t, f.Selected)

	g := finding.SlopFinding{ID: "y", Category: finding.CategoryComments}
	assert.True(t, g.Toggle())
	assert.True(t, g.Selected)
}

func TestExecuteGroupsByFileWithFreshSessions(t *testing.T) {
	fx := newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	})
	fx.orch.findings = []finding.SlopFinding{
		{ID: "finding-1", Title: "A", File: "file1.go", Category: finding.CategoryComments, Selected: true},
		{ID: "finding-2", Title: "B", File: "file1.go", Category: finding.CategoryComments, Selected: true},
		{ID: "finding-3", Title: "C", File: "file2.go", Category: finding.CategoryComments, Selected: true},
	}
	fx.orch.tasks = finding.BuildTasks(fx.orch.findings)

	fx.orch.runExecute(context.Background())

	// One fresh session per file-group, so edits to the same file are
	// strictly sequential and context never crosses files.
	sessions := fx.client.Sessions()
	require.Len(t, sessions, 2)

	var f1, f2 []string
	for _, s := range sessions {
		if len(s.Prompts) == 2 {
			f1 = s.Prompts
		} else {
			f2 = s.Prompts
		}
	}
	require.Len(t, f1, 2, "file1 group must run both tasks on one session")
	assert.Contains(t, f1[0], "A")
	assert.Contains(t, f1[1], "B", "task B must run after task A on the same session")
	require.Len(t, f2, 1)
	assert.Contains(t, f2[0], "C")

	for _, task := range fx.orch.Tasks() {
		assert.Equal(t, finding.TaskCompleted, task.Status)
	}
}

func TestTaskFailureDoesNotAbortSiblings(t *testing.T) {
	fx := newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			if strings.Contains(prompt, "flaky") {
				return errors.New("agent crashed")
			}
			return nil
		},
	})
	fx.orch.findings = []finding.SlopFinding{
		{ID: "finding-1", Title: "flaky", File: "a.go", Category: finding.CategoryComments, Selected: true},
		{ID: "finding-2", Title: "steady", File: "a.go", Category: finding.CategoryComments, Selected: true},
		{ID: "finding-3", Title: "other", File: "b.go", Category: finding.CategoryComments, Selected: true},
	}
	fx.orch.tasks = finding.BuildTasks(fx.orch.findings)

	fx.orch.runExecute(context.Background())

	statuses := map[string]finding.TaskStatus{}
	errTexts := map[string]string{}
	for _, task := range fx.orch.Tasks() {
		statuses[task.Title] = task.Status
		errTexts[task.Title] = task.Error
	}
	assert.Equal(t, finding.TaskFailed, statuses["flaky"])
	assert.Contains(t, errTexts["flaky"], "agent crashed")
	assert.Equal(t, finding.TaskCompleted, statuses["steady"], "failure must not abort the rest of the group")
	assert.Equal(t, finding.TaskCompleted, statuses["other"])
}

// goProject writes a go.mod so verification discovers build/test/vet.
func goProject(t *testing.T, dir string) {
	t.Helper()
	writeArtifact(t, filepath.Join(dir, "go.mod"), "module example.com/demo\n")
}

func reviewOK(t *testing.T, fx *fixture) func(model, prompt string, onUpdate func(agent.Update)) error {
	return func(model, prompt string, onUpdate func(agent.Update)) error {
		if strings.Contains(prompt, "Review the working tree") {
			writeArtifact(t, fx.store.ReviewPath(), "# Review Suggestions\n\n## No Suggestions\n")
		}
		return nil
	}
}

func TestVerifyFirstRequiredFailureHaltsPass(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		maxRetries: 1,
		runCommand: func(dir, script string) ([]byte, error) {
			if strings.HasPrefix(script, "go build") {
				return []byte("compile error"), &exitError{code: 2}
			}
			t.Errorf("command %q must not run after the build failure", script)
			return nil, nil
		},
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error { return nil },
	})
	goProject(t, fx.project)

	fx.orch.runVerify(context.Background())

	state := fx.orch.Verification()
	require.NotNil(t, state)
	assert.Equal(t, VerifyFailed, state.Status)
	require.Len(t, state.Commands, 3)
	assert.Equal(t, verify.StatusFailed, state.Commands[0].Status)
	assert.Equal(t, verify.StatusPending, state.Commands[1].Status, "go test must stay pending, not skipped")
	assert.Equal(t, verify.StatusPending, state.Commands[2].Status)
}

func TestVerifyOptionalFailureNeverBlocks(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		maxRetries: 1,
		runCommand: func(dir, script string) ([]byte, error) {
			if strings.HasPrefix(script, "go vet") {
				return []byte("vet warning"), &exitError{code: 1}
			}
			return []byte("ok"), nil
		},
	})
	fx.client.OnSubmit = reviewOK(t, fx)
	goProject(t, fx.project)

	fx.orch.runVerify(context.Background())

	state := fx.orch.Verification()
	require.NotNil(t, state)
	assert.Equal(t, VerifyPassed, state.Status)
	assert.Equal(t, verify.StatusSkipped, state.Commands[2].Status)
	assert.Equal(t, PhaseReviewing, fx.orch.Phase(), "optional failure must not trigger the fix loop")
}

func TestVerifyRetryBound(t *testing.T) {
	fixPrompts := 0
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		maxRetries: 3,
		runCommand: func(dir, script string) ([]byte, error) {
			if strings.HasPrefix(script, "go build") {
				return []byte("still broken"), &exitError{code: 1}
			}
			return []byte("ok"), nil
		},
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			if strings.Contains(prompt, "verification command below is failing") {
				fixPrompts++
			}
			return nil
		},
	})
	goProject(t, fx.project)

	fx.orch.runVerify(context.Background())

	state := fx.orch.Verification()
	require.NotNil(t, state)
	assert.Equal(t, VerifyFailed, state.Status)
	assert.Equal(t, 3, state.Attempt)
	assert.Equal(t, 2, fixPrompts, "fix runs after attempts 1 and 2 only")
	assert.Equal(t, PhaseVerifying, fx.orch.Phase(), "exhausted retries park at the user gate")
}

func TestVerifyFixThenPass(t *testing.T) {
	fixed := false
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		maxRetries: 3,
		runCommand: func(dir, script string) ([]byte, error) {
			if strings.HasPrefix(script, "go build") && !fixed {
				return []byte("boom"), &exitError{code: 1}
			}
			return []byte("ok"), nil
		},
	})
	fx.client.OnSubmit = func(model, prompt string, onUpdate func(agent.Update)) error {
		if strings.Contains(prompt, "verification command below is failing") {
			fixed = true
		}
		if strings.Contains(prompt, "Review the working tree") {
			writeArtifact(t, fx.store.ReviewPath(), "# Review Suggestions\n\n## No Suggestions\n")
		}
		return nil
	}
	goProject(t, fx.project)

	fx.orch.runVerify(context.Background())

	state := fx.orch.Verification()
	require.NotNil(t, state)
	assert.Equal(t, VerifyPassed, state.Status)
	assert.Equal(t, 2, state.Attempt)
	assert.Equal(t, PhaseReviewing, fx.orch.Phase())
}

func TestVerifyNoCommandsSkipsToReview(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{})
	fx.client.OnSubmit = reviewOK(t, fx)

	fx.orch.runVerify(context.Background())

	assert.Nil(t, fx.orch.Verification())
	assert.Equal(t, PhaseReviewing, fx.orch.Phase())
	assert.Empty(t, fx.orch.Suggestions())
}

func TestVerifyDecisionSkip(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		maxRetries: 1,
		runCommand: func(dir, script string) ([]byte, error) {
			if strings.HasPrefix(script, "go build") {
				return []byte("broken"), &exitError{code: 1}
			}
			return []byte("ok"), nil
		},
	})
	fx.client.OnSubmit = reviewOK(t, fx)
	goProject(t, fx.project)

	fx.orch.runVerify(context.Background())
	require.Equal(t, VerifyFailed, fx.orch.Verification().Status)

	fx.orch.Decide(context.Background(), DecisionSkip)

	require.Eventually(t, func() bool {
		return fx.orch.Phase() == PhaseReviewing
	}, time.Second, 10*time.Millisecond)
}

func TestApplySuggestionsLoopsBackToResults(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.phase = PhaseReviewing
	fx.orch.suggestions = []finding.ReviewSuggestion{
		{ID: "suggestion-1", Title: "tighten", File: "a.go", Line: 7, Severity: finding.SeverityMedium},
	}
	fx.orch.tasks = []finding.Task{{ID: "task-1", Status: finding.TaskCompleted}}

	fx.orch.ApplySuggestions()

	assert.Equal(t, PhaseResults, fx.orch.Phase())
	assert.Empty(t, fx.orch.Tasks(), "prior task state is discarded")

	found := fx.orch.Findings()
	require.Len(t, found, 1)
	assert.True(t, found[0].Selected, "promoted findings arrive pre-selected")
	assert.Equal(t, finding.CategoryStyle, found[0].Category)
	assert.Equal(t, finding.SeverityMedium, found[0].Severity)
}

type stubGit struct {
	branch string
	clean  bool
	files  []string
	adds   int
	dels   int
}

func (s *stubGit) IsClean(ctx context.Context, dir string) (bool, error) {
	return s.clean, nil
}

func (s *stubGit) Branch(ctx context.Context, dir string) (string, error) {
	return s.branch, nil
}

func (s *stubGit) DiffStats(ctx context.Context, dir string) (int, int, error) {
	return s.adds, s.dels, nil
}

func (s *stubGit) ChangedFiles(ctx context.Context, dir string) ([]string, error) {
	return s.files, nil
}

var _ git.Git = (*stubGit)(nil)

func TestInspectTreeRecordsBranchAndDirtiness(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.git = &stubGit{branch: "feature/cleanup", clean: false}

	fx.orch.inspectTree(context.Background())

	assert.Equal(t, "feature/cleanup", fx.orch.Branch())
	assert.True(t, fx.orch.DirtyAtStart())
}

func TestInspectTreeWithoutGitIsNoop(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})

	fx.orch.inspectTree(context.Background())

	assert.Empty(t, fx.orch.Branch())
	assert.False(t, fx.orch.DirtyAtStart())
}

func TestReviewSnapshotsDiffStats(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			writeArtifact(t, fx.store.ReviewPath(), "# Review Suggestions\n\n## No Suggestions\n")
			return nil
		},
	})
	fx.orch.git = &stubGit{clean: true, adds: 12, dels: 4}

	fx.orch.runReview(context.Background())

	added, deleted, ok := fx.orch.DiffStats()
	require.True(t, ok)
	assert.Equal(t, 12, added)
	assert.Equal(t, 4, deleted)
}

func TestZeroFindingsSnapshotDiffStats(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			writeArtifact(t, fx.store.FindingsPath(), "# Slop Findings\n\n## No Issues Found\n")
			return nil
		},
	})
	fx.orch.git = &stubGit{clean: true, adds: 2, dels: 1}

	fx.orch.runScan(context.Background())

	require.Equal(t, PhaseComplete, fx.orch.Phase())
	added, deleted, ok := fx.orch.DiffStats()
	require.True(t, ok)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, deleted)
}

func TestReviewPromptListsChangedFiles(t *testing.T) {
	var prompt string
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, p string, onUpdate func(agent.Update)) error {
			prompt = p
			writeArtifact(t, fx.store.ReviewPath(), "# Review Suggestions\n\n## No Suggestions\n")
			return nil
		},
	})
	fx.orch.git = &stubGit{files: []string{"internal/app/app.go", "cmd/root.go"}}

	fx.orch.runReview(context.Background())

	assert.Contains(t, prompt, "- internal/app/app.go")
	assert.Contains(t, prompt, "- cmd/root.go")
	assert.Equal(t, PhaseReviewing, fx.orch.Phase())
	assert.NotNil(t, fx.orch.Suggestions())
}

func TestReviewPromptWithoutGitOmitsFileList(t *testing.T) {
	var prompt string
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, p string, onUpdate func(agent.Update)) error {
			prompt = p
			writeArtifact(t, fx.store.ReviewPath(), "# Review Suggestions\n\n## No Suggestions\n")
			return nil
		},
	})

	fx.orch.runReview(context.Background())

	assert.NotContains(t, prompt, "uncommitted changes are")
	assert.Equal(t, PhaseReviewing, fx.orch.Phase())
}

func TestAcknowledgeReviewCompletes(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.phase = PhaseReviewing
	fx.orch.suggestions = []finding.ReviewSuggestion{}

	fx.orch.AcknowledgeReview()

	assert.Equal(t, PhaseComplete, fx.orch.Phase())
}

func TestAcknowledgeReviewIgnoredWhileReviewStreams(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.phase = PhaseReviewing

	// The review agent has not finished; suggestions are still nil.
	fx.orch.AcknowledgeReview()

	assert.Equal(t, PhaseReviewing, fx.orch.Phase())
}

func TestMarkNotSlopRecordsLearning(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.phase = PhaseResults
	fx.orch.findings = []finding.SlopFinding{
		{ID: "finding-1", Title: "keep me", File: "a.go", Category: finding.CategoryComments},
		{ID: "finding-2", Title: "not slop", File: "b.go", Line: 3, Category: finding.CategoryDeadCode},
	}
	writeArtifact(t, filepath.Join(fx.project, "b.go"),
		"package demo\n\nfunc helper() {}\n")

	require.NoError(t, fx.orch.MarkNotSlop("finding-2"))

	found := fx.orch.Findings()
	require.Len(t, found, 1)
	assert.Equal(t, "finding-1", found[0].ID)

	content, err := fx.store.ReadLearnings()
	require.NoError(t, err)
	assert.Contains(t, content, "not slop")
	assert.Contains(t, content, "b.go")
	assert.Contains(t, content, "func helper() {}", "entry carries the flagged line as a snippet")
}

func TestMarkNotSlopToleratesMissingFile(t *testing.T) {
	fx := newFixture(t, fixtureOpts{})
	fx.orch.phase = PhaseResults
	fx.orch.findings = []finding.SlopFinding{
		{ID: "finding-1", Title: "gone", File: "deleted.go", Line: 12, Category: finding.CategoryComments},
	}

	require.NoError(t, fx.orch.MarkNotSlop("finding-1"))

	content, err := fx.store.ReadLearnings()
	require.NoError(t, err)
	assert.Contains(t, content, "deleted.go")
	assert.NotContains(t, content, "```", "no snippet block when the file is unreadable")
}

func TestTeardownStopsStateUpdates(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, fixtureOpts{
		onSubmit: func(model, prompt string, onUpdate func(agent.Update)) error {
			fx.orch.Teardown()
			onUpdate(agent.Update{Kind: agent.UpdateTextDelta, Text: "late delta"})
			writeArtifact(t, fx.store.FindingsPath(), findingsDoc(
				finding.SlopFinding{Title: "x", File: "a.go", Severity: finding.SeverityLow, Category: finding.CategoryComments},
			))
			return nil
		},
	})

	fx.orch.runScan(context.Background())

	// Torn down mid-stream: neither the delta nor the transition lands.
	assert.Empty(t, fx.orch.Activity())
	assert.Equal(t, PhaseScanning, fx.orch.Phase())
}

// exitError mimics a nonzero process exit for the scripted executor.
type exitError struct{ code int }

func (e *exitError) Error() string { return "exit status" }

func TestPartitionTasksPreservesOrder(t *testing.T) {
	tasks := []finding.Task{
		{ID: "task-1", File: "x.go"},
		{ID: "task-2", File: "y.go"},
		{ID: "task-3", File: "x.go"},
	}

	groups := partitionTasks(tasks)

	require.Len(t, groups, 2)
	assert.Equal(t, "x.go", groups[0].file)
	assert.Equal(t, []string{"task-1", "task-3"}, groups[0].taskIDs)
	assert.Equal(t, []string{"task-2"}, groups[1].taskIDs)
}
