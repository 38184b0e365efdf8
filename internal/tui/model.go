// Package tui implements the interactive run display. One model tracks the
// orchestrator through its phases; each phase gets its own view and key map.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"github.com/hay-kot/scrub/internal/core/styles"
	"github.com/hay-kot/scrub/internal/orchestrator"
)

const (
	keyEnter = "enter"
	keyCtrlC = "ctrl+c"
)

// orchEventMsg wraps an orchestrator event for the update loop.
type orchEventMsg orchestrator.Event

// eventsClosedMsg signals the orchestrator closed its event stream.
type eventsClosedMsg struct{}

// Model is the Bubble Tea model for a scrub run.
type Model struct {
	ctx  context.Context
	orch *orchestrator.Orchestrator
	log  zerolog.Logger

	spinner  spinner.Model
	width    int
	height   int
	cursor   int
	decision int // highlighted button on the verification-failure gate
	quitting bool
}

// New builds the run model. Start must already have been called on the
// orchestrator; the model only consumes its events.
func New(ctx context.Context, orch *orchestrator.Orchestrator, logger zerolog.Logger) Model {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(styles.CursorStyle),
	)
	return Model{
		ctx:     ctx,
		orch:    orch,
		log:     logger.With().Str("component", "tui").Logger(),
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

// waitForEvent blocks on the orchestrator's event channel and re-arms
// itself from Update after every delivery.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.orch.Events()
		if !ok {
			return eventsClosedMsg{}
		}
		return orchEventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case orchEventMsg:
		if msg.Kind == orchestrator.EventPhase {
			m.cursor = 0
			m.decision = 0
		}
		return m, m.waitForEvent()

	case eventsClosedMsg:
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyStr := msg.String()

	if keyStr == keyCtrlC {
		return m.quit()
	}

	switch m.orch.Phase() {
	case orchestrator.PhaseResults:
		return m.handleResultsKey(keyStr)
	case orchestrator.PhaseVerifying:
		return m.handleVerifyKey(keyStr)
	case orchestrator.PhaseReviewing:
		return m.handleReviewKey(keyStr)
	case orchestrator.PhaseComplete, orchestrator.PhaseError:
		if keyStr == "q" || keyStr == keyEnter {
			return m.quit()
		}
	}
	return m, nil
}

func (m Model) handleResultsKey(keyStr string) (tea.Model, tea.Cmd) {
	findings := m.orch.Findings()

	switch keyStr {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(findings)-1 {
			m.cursor++
		}
	case " ":
		if m.cursor < len(findings) {
			m.orch.ToggleFinding(findings[m.cursor].ID)
		}
	case "n":
		if m.cursor < len(findings) {
			if err := m.orch.MarkNotSlop(findings[m.cursor].ID); err != nil {
				m.log.Error().Err(err).Msg("record learning")
			}
			if m.cursor >= len(findings)-1 && m.cursor > 0 {
				m.cursor--
			}
		}
	case keyEnter:
		m.orch.Proceed(m.ctx)
	case "q":
		return m.quit()
	}
	return m, nil
}

func (m Model) handleVerifyKey(keyStr string) (tea.Model, tea.Cmd) {
	state := m.orch.Verification()
	if state == nil || state.Status != orchestrator.VerifyFailed {
		return m, nil
	}

	switch keyStr {
	case "left", "h":
		if m.decision > 0 {
			m.decision--
		}
	case "right", "l", "tab":
		if m.decision < 2 {
			m.decision++
		}
	case "r":
		m.orch.Decide(m.ctx, orchestrator.DecisionRetry)
	case "s":
		m.orch.Decide(m.ctx, orchestrator.DecisionSkip)
	case "q":
		m.orch.Decide(m.ctx, orchestrator.DecisionQuit)
		return m.quit()
	case keyEnter:
		switch m.decision {
		case 0:
			m.orch.Decide(m.ctx, orchestrator.DecisionRetry)
		case 1:
			m.orch.Decide(m.ctx, orchestrator.DecisionSkip)
		default:
			m.orch.Decide(m.ctx, orchestrator.DecisionQuit)
			return m.quit()
		}
	}
	return m, nil
}

func (m Model) handleReviewKey(keyStr string) (tea.Model, tea.Cmd) {
	if keyStr == "q" {
		return m.quit()
	}
	// Apply and finish only make sense once the review artifact is in.
	if m.orch.Suggestions() == nil {
		return m, nil
	}

	switch keyStr {
	case "a":
		m.orch.ApplySuggestions()
	case keyEnter:
		m.orch.AcknowledgeReview()
	}
	return m, nil
}

func (m Model) quit() (Model, tea.Cmd) {
	m.quitting = true
	m.orch.Teardown()
	return m, tea.Quit
}

// markdown renders review output through glamour with the active theme.
func (m Model) markdown(doc string) string {
	width := m.width - 4
	if width < 20 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(styles.GlamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return doc
	}
	out, err := r.Render(doc)
	if err != nil {
		return doc
	}
	return out
}
