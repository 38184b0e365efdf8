package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/mdcodec"
	"github.com/hay-kot/scrub/internal/core/styles"
	"github.com/hay-kot/scrub/internal/core/verify"
	"github.com/hay-kot/scrub/internal/orchestrator"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.orch.Phase() {
	case orchestrator.PhaseScanning:
		return m.viewScanning()
	case orchestrator.PhaseResults:
		return m.viewResults()
	case orchestrator.PhaseExecuting:
		return m.viewExecuting()
	case orchestrator.PhaseVerifying:
		return m.viewVerifying()
	case orchestrator.PhaseReviewing:
		return m.viewReviewing()
	case orchestrator.PhaseComplete:
		return m.viewComplete()
	case orchestrator.PhaseError:
		return m.viewError()
	}
	return ""
}

func (m Model) header(title string) string {
	return styles.TitleStyle.Render("scrub") + "  " +
		styles.SubtitleStyle.Render(title) + "\n\n"
}

func (m Model) viewScanning() string {
	var sb strings.Builder
	sb.WriteString(m.header("scanning for slop"))
	if m.orch.DirtyAtStart() {
		sb.WriteString(styles.HintBadgeStyle.Render("working tree already has uncommitted changes") + "\n")
	}
	sb.WriteString(m.spinner.View() + " analyzing codebase\n")

	if activity := m.orch.Activity(); activity != "" {
		sb.WriteString("\n")
		sb.WriteString(styles.ActivityStyle.Render(tailLines(activity, 12)))
		sb.WriteString("\n")
	}
	sb.WriteString(styles.HelpStyle.Render("ctrl+c quit"))
	return sb.String()
}

func (m Model) viewResults() string {
	findings := m.orch.Findings()

	var sb strings.Builder
	sb.WriteString(m.header(fmt.Sprintf("%d findings", len(findings))))

	if m.orch.DirtyAtStart() {
		sb.WriteString(styles.HintBadgeStyle.Render(
			"tree was dirty before the run; fixes will mix with existing changes") + "\n\n")
	}

	for i, f := range findings {
		cursor := "  "
		if i == m.cursor {
			cursor = styles.CursorStyle.Render(styles.IconCursor) + " "
		}

		mark := styles.IconUnselected
		if f.Category.HintOnly() {
			mark = styles.IconHint
		} else if f.Selected {
			mark = styles.IconSelected
		}

		line := fmt.Sprintf("%s%s %s %s %s",
			cursor,
			mark,
			severityStyle(f.Severity).Render("["+string(f.Severity)+"]"),
			f.Title,
			styles.FileRefStyle.Render(locate(f.File, f.Line)),
		)
		if i == m.cursor {
			line = styles.SelectedRowStyle.Render(line)
		}
		sb.WriteString(line + "\n")

		if i == m.cursor && f.Description != "" {
			sb.WriteString(styles.ActivityStyle.Render("    "+f.Description) + "\n")
		}
	}

	sb.WriteString(styles.HelpStyle.Render(
		"space toggle · n not slop · enter fix selected · q quit"))
	return sb.String()
}

func (m Model) viewExecuting() string {
	tasks := m.orch.Tasks()

	var sb strings.Builder
	sb.WriteString(m.header("fixing"))

	done := 0
	for _, t := range tasks {
		if t.Status == finding.TaskCompleted || t.Status == finding.TaskFailed {
			done++
		}
		sb.WriteString(fmt.Sprintf("%s %s %s\n",
			taskStyle(t.Status).Render(taskIcon(t.Status)),
			t.Title,
			styles.FileRefStyle.Render(t.File),
		))
		if t.Status == finding.TaskFailed && t.Error != "" {
			sb.WriteString(styles.TaskFailedStyle.Render("    "+t.Error) + "\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\n%s %d/%d tasks\n", m.spinner.View(), done, len(tasks)))

	if activity := m.orch.Activity(); activity != "" {
		sb.WriteString(styles.ActivityStyle.Render(tailLines(activity, 8)) + "\n")
	}
	sb.WriteString(styles.HelpStyle.Render("ctrl+c quit"))
	return sb.String()
}

func (m Model) viewVerifying() string {
	state := m.orch.Verification()

	var sb strings.Builder
	sb.WriteString(m.header("verifying"))

	if state == nil {
		sb.WriteString(m.spinner.View() + " discovering verification commands\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("attempt %d/%d\n\n", state.Attempt, state.MaxAttempts))

	for _, c := range state.Commands {
		label := c.Name
		if c.Optional {
			label += styles.FileRefStyle.Render(" (optional)")
		}
		sb.WriteString(fmt.Sprintf("%s %s  %s\n",
			checkStyle(c.Status).Render(checkIcon(c.Status)),
			label,
			styles.FileRefStyle.Render(c.Command),
		))
	}

	switch state.Status {
	case orchestrator.VerifyFixing:
		sb.WriteString("\n" + m.spinner.View() + " agent is fixing the failure\n")
		if activity := m.orch.Activity(); activity != "" {
			sb.WriteString(styles.ActivityStyle.Render(tailLines(activity, 8)) + "\n")
		}
	case orchestrator.VerifyFailed:
		sb.WriteString("\n" + styles.ErrorBannerStyle.Render("verification failed after all attempts") + "\n")
		if out := failedOutput(state.Commands); out != "" {
			sb.WriteString(styles.ActivityStyle.Render(tailLines(out, 10)) + "\n")
		}
		sb.WriteString("\n" + m.decisionButtons() + "\n")
		sb.WriteString(styles.HelpStyle.Render("r retry · s skip to review · q quit"))
	default:
		sb.WriteString(styles.HelpStyle.Render("ctrl+c quit"))
	}
	return sb.String()
}

func (m Model) decisionButtons() string {
	labels := []string{"Retry", "Skip", "Quit"}
	parts := make([]string, 0, len(labels))
	for i, l := range labels {
		style := styles.PromptButtonStyle
		if i == m.decision {
			style = styles.PromptButtonSelectedStyle
		}
		parts = append(parts, style.Render(l))
	}
	return strings.Join(parts, " ")
}

func (m Model) viewReviewing() string {
	suggestions := m.orch.Suggestions()

	var sb strings.Builder
	sb.WriteString(m.header("review"))

	if suggestions == nil {
		sb.WriteString(m.spinner.View() + " reviewing changes\n")
		if activity := m.orch.Activity(); activity != "" {
			sb.WriteString(styles.ActivityStyle.Render(tailLines(activity, 10)) + "\n")
		}
		sb.WriteString(styles.HelpStyle.Render("ctrl+c quit"))
		return sb.String()
	}

	if len(suggestions) == 0 {
		sb.WriteString(styles.SuccessStyle.Render("no further suggestions") + "\n")
		sb.WriteString(styles.HelpStyle.Render("enter finish · q quit"))
		return sb.String()
	}

	sb.WriteString(m.markdown(mdcodec.WriteReview(suggestions)))
	sb.WriteString(styles.HelpStyle.Render(
		"a apply suggestions as new findings · enter finish · q quit"))
	return sb.String()
}

func (m Model) viewComplete() string {
	tasks := m.orch.Tasks()
	completed, failed := 0, 0
	for _, t := range tasks {
		switch t.Status {
		case finding.TaskCompleted:
			completed++
		case finding.TaskFailed:
			failed++
		}
	}

	var sb strings.Builder
	sb.WriteString(m.header("complete"))
	sb.WriteString(styles.SuccessStyle.Render("run finished") + "\n\n")
	if len(tasks) > 0 {
		sb.WriteString(fmt.Sprintf("  %d fixed, %d failed\n", completed, failed))
	} else {
		sb.WriteString("  nothing to fix\n")
	}
	if state := m.orch.Verification(); state != nil {
		sb.WriteString(fmt.Sprintf("  verification: %s after %d/%d attempts\n",
			state.Status, state.Attempt, state.MaxAttempts))
	}
	if suggestions := m.orch.Suggestions(); suggestions != nil {
		sb.WriteString(fmt.Sprintf("  review: %d suggestions\n", len(suggestions)))
	}
	if added, deleted, ok := m.orch.DiffStats(); ok {
		sb.WriteString(fmt.Sprintf("  diff: +%d -%d\n", added, deleted))
	}
	sb.WriteString(styles.FileRefStyle.Render("  artifacts: "+m.orch.RunID()) + "\n")
	sb.WriteString(styles.HelpStyle.Render("q quit"))
	return sb.String()
}

func (m Model) viewError() string {
	var sb strings.Builder
	sb.WriteString(m.header("error"))
	sb.WriteString(styles.ErrorBannerStyle.Render("run failed") + "\n\n")
	if err := m.orch.Err(); err != nil {
		sb.WriteString("  " + err.Error() + "\n")
	}
	sb.WriteString(styles.HelpStyle.Render("q quit"))
	return sb.String()
}

func severityStyle(s finding.Severity) lipgloss.Style {
	switch s {
	case finding.SeverityHigh:
		return styles.SeverityHighStyle
	case finding.SeverityMedium:
		return styles.SeverityMediumStyle
	default:
		return styles.SeverityLowStyle
	}
}

func taskStyle(s finding.TaskStatus) lipgloss.Style {
	switch s {
	case finding.TaskInProgress:
		return styles.TaskRunningStyle
	case finding.TaskCompleted:
		return styles.TaskCompletedStyle
	case finding.TaskFailed:
		return styles.TaskFailedStyle
	default:
		return styles.TaskPendingStyle
	}
}

func taskIcon(s finding.TaskStatus) string {
	switch s {
	case finding.TaskInProgress:
		return styles.IconRunning
	case finding.TaskCompleted:
		return styles.IconCompleted
	case finding.TaskFailed:
		return styles.IconFailed
	default:
		return styles.IconPending
	}
}

func checkStyle(s verify.CommandStatus) lipgloss.Style {
	switch s {
	case verify.StatusPassed:
		return styles.CheckPassedStyle
	case verify.StatusFailed:
		return styles.CheckFailedStyle
	case verify.StatusSkipped:
		return styles.CheckSkippedStyle
	case verify.StatusRunning:
		return styles.TaskRunningStyle
	default:
		return styles.CheckPendingStyle
	}
}

func checkIcon(s verify.CommandStatus) string {
	switch s {
	case verify.StatusPassed:
		return styles.IconCompleted
	case verify.StatusFailed:
		return styles.IconFailed
	case verify.StatusSkipped:
		return styles.IconSkipped
	case verify.StatusRunning:
		return styles.IconRunning
	default:
		return styles.IconPending
	}
}

func locate(file string, line int) string {
	if line > 0 {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return file
}

func failedOutput(commands []verify.Command) string {
	for _, c := range commands {
		if c.Status == verify.StatusFailed {
			return c.Output
		}
	}
	return ""
}

// tailLines keeps the last n lines of a stream for compact display.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
