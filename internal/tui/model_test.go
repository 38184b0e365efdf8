package tui

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/scrub/internal/agent"
	"github.com/hay-kot/scrub/internal/core/config"
	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/mdcodec"
	"github.com/hay-kot/scrub/internal/core/runstore"
	"github.com/hay-kot/scrub/internal/core/verify"
	"github.com/hay-kot/scrub/internal/orchestrator"
	"github.com/hay-kot/scrub/pkg/executil"
	"github.com/hay-kot/scrub/pkg/tuitest"
)

// TestRunFlow drives the model through a whole run: scan, curate, fix,
// review, finish. The empty project directory yields no verification
// commands, so that phase passes through.
func TestRunFlow(t *testing.T) {
	project := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	store, err := runstore.New(project, zerolog.Nop())
	require.NoError(t, err)

	client := &agent.MockClient{}
	client.OnSubmit = func(model, prompt string, onUpdate func(agent.Update)) error {
		switch {
		case strings.Contains(prompt, store.FindingsPath()):
			doc := mdcodec.WriteFindings([]finding.SlopFinding{
				{Title: "redundant comment", File: "a.go", Line: 4, Severity: finding.SeverityLow, Category: finding.CategoryComments},
				{Title: "unused helper", File: "b.go", Line: 20, Severity: finding.SeverityMedium, Category: finding.CategoryDeadCode},
			})
			return os.WriteFile(store.FindingsPath(), []byte(doc), 0o644)
		case strings.Contains(prompt, store.ReviewPath()):
			return os.WriteFile(store.ReviewPath(), []byte("# Review Suggestions\n\n## No Suggestions\n"), 0o644)
		}
		return nil
	}

	executor := verify.NewExecutor(&executil.RealExecutor{}, time.Second, zerolog.Nop())

	ctx := context.Background()
	tree := &treeStub{branch: "main", clean: true, adds: 3, dels: 1}
	orch := orchestrator.New(&cfg, store, client, executor, tree, project, zerolog.Nop())
	orch.Start(ctx)

	require.Eventually(t, func() bool {
		return orch.Phase() == orchestrator.PhaseResults
	}, 2*time.Second, 10*time.Millisecond)

	m := New(ctx, orch, zerolog.Nop())
	m = update(m, tuitest.WindowSize(100, 40))

	view := tuitest.StripANSI(m.View())
	require.Contains(t, view, "redundant comment")
	require.Contains(t, view, "unused helper")
	require.Contains(t, view, "2 findings")

	// Select the first finding and kick off fixing.
	m = update(m, tuitest.KeySpace())
	require.True(t, orch.Findings()[0].Selected)

	m = update(m, tuitest.KeyEnter())

	require.Eventually(t, func() bool {
		return orch.Phase() == orchestrator.PhaseReviewing && orch.Suggestions() != nil
	}, 2*time.Second, 10*time.Millisecond)

	view = tuitest.StripANSI(m.View())
	require.Contains(t, view, "no further suggestions")

	m = update(m, tuitest.KeyEnter())
	require.Equal(t, orchestrator.PhaseComplete, orch.Phase())

	view = tuitest.StripANSI(m.View())
	require.Contains(t, view, "run finished")
	require.Contains(t, view, "1 fixed, 0 failed")
	require.Contains(t, view, "review: 0 suggestions")
	require.Contains(t, view, "diff: +3 -1")
}

// treeStub satisfies the orchestrator's git dependency with fixed answers.
type treeStub struct {
	branch string
	clean  bool
	adds   int
	dels   int
}

func (s *treeStub) IsClean(ctx context.Context, dir string) (bool, error) { return s.clean, nil }

func (s *treeStub) Branch(ctx context.Context, dir string) (string, error) { return s.branch, nil }

func (s *treeStub) DiffStats(ctx context.Context, dir string) (int, int, error) {
	return s.adds, s.dels, nil
}

func (s *treeStub) ChangedFiles(ctx context.Context, dir string) ([]string, error) {
	return nil, nil
}

// TestEnterDuringReviewIsIgnored holds the review agent mid-stream and
// confirms enter cannot finish the run until the artifact has been read.
func TestEnterDuringReviewIsIgnored(t *testing.T) {
	project := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	store, err := runstore.New(project, zerolog.Nop())
	require.NoError(t, err)

	reviewStarted := make(chan struct{})
	releaseReview := make(chan struct{})

	client := &agent.MockClient{}
	client.OnSubmit = func(model, prompt string, onUpdate func(agent.Update)) error {
		switch {
		case strings.Contains(prompt, store.FindingsPath()):
			doc := mdcodec.WriteFindings([]finding.SlopFinding{
				{Title: "stale comment", File: "a.go", Line: 2, Severity: finding.SeverityLow, Category: finding.CategoryComments},
			})
			return os.WriteFile(store.FindingsPath(), []byte(doc), 0o644)
		case strings.Contains(prompt, store.ReviewPath()):
			close(reviewStarted)
			<-releaseReview
			return os.WriteFile(store.ReviewPath(), []byte("# Review Suggestions\n\n## No Suggestions\n"), 0o644)
		}
		return nil
	}

	ctx := context.Background()
	orch := orchestrator.New(&cfg, store, client,
		verify.NewExecutor(&executil.RealExecutor{}, time.Second, zerolog.Nop()),
		nil, project, zerolog.Nop())
	orch.Start(ctx)

	require.Eventually(t, func() bool {
		return orch.Phase() == orchestrator.PhaseResults
	}, 2*time.Second, 10*time.Millisecond)

	m := New(ctx, orch, zerolog.Nop())
	m = update(m, tuitest.KeySpace())
	m = update(m, tuitest.KeyEnter())

	select {
	case <-reviewStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("review agent never started")
	}

	require.Equal(t, orchestrator.PhaseReviewing, orch.Phase())
	require.Nil(t, orch.Suggestions())

	// Review still streaming: enter must not complete the run.
	m = update(m, tuitest.KeyEnter())
	require.Equal(t, orchestrator.PhaseReviewing, orch.Phase())

	close(releaseReview)
	require.Eventually(t, func() bool {
		return orch.Suggestions() != nil
	}, 2*time.Second, 10*time.Millisecond)

	m = update(m, tuitest.KeyEnter())
	require.Equal(t, orchestrator.PhaseComplete, orch.Phase())
}

func TestCursorMovesThroughFindings(t *testing.T) {
	project := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	store, err := runstore.New(project, zerolog.Nop())
	require.NoError(t, err)

	client := &agent.MockClient{}
	client.OnSubmit = func(model, prompt string, onUpdate func(agent.Update)) error {
		doc := mdcodec.WriteFindings([]finding.SlopFinding{
			{Title: "first", File: "a.go", Severity: finding.SeverityLow, Category: finding.CategoryComments},
			{Title: "second", File: "b.go", Severity: finding.SeverityLow, Category: finding.CategoryComments},
		})
		return os.WriteFile(store.FindingsPath(), []byte(doc), 0o644)
	}

	ctx := context.Background()
	orch := orchestrator.New(&cfg, store, client,
		verify.NewExecutor(&executil.RealExecutor{}, time.Second, zerolog.Nop()),
		nil, project, zerolog.Nop())
	orch.Start(ctx)

	require.Eventually(t, func() bool {
		return orch.Phase() == orchestrator.PhaseResults
	}, 2*time.Second, 10*time.Millisecond)

	m := New(ctx, orch, zerolog.Nop())

	m = update(m, tuitest.KeyDown())
	m = update(m, tuitest.KeySpace())

	findings := orch.Findings()
	require.False(t, findings[0].Selected)
	require.True(t, findings[1].Selected, "space must act on the finding under the cursor")

	m = update(m, tuitest.KeyUp())
	m = update(m, tuitest.KeySpace())
	require.True(t, orch.Findings()[0].Selected)
}

func update(m Model, msg interface{}) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}
