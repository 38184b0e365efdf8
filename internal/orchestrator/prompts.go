package orchestrator

import (
	"fmt"
	"strings"

	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/verify"
	"github.com/hay-kot/scrub/pkg/tmpl"
)

// The prompt contract is load-bearing: the scan and review prompts name the
// exact block grammar mdcodec parses, and the artifact path the phase reads
// after the stream ends.

const scanPromptTmpl = `Scan this codebase for slop: low-quality patterns that read like
unreviewed AI output. Look for these categories only: {{ join .Categories ", " }}.

Write your findings to {{ .FindingsPath }} in exactly this format:

# Slop Findings

### <n>. [<SEVERITY>] <short title>
- **File:** <relative path>
- **Line:** <line number, omit this bullet if unknown>
- **Category:** <category>
- **Description:** <one or two sentences>

Severity is one of LOW, MEDIUM, HIGH. If the codebase is clean, write a
document containing only the heading "## No Issues Found".
Do not modify any other file.
{{ if .Learnings }}
The user has previously rejected findings like the following. Do not report
these patterns again:

{{ .Learnings }}{{ end }}`

const fixPromptTmpl = `Fix this code-quality finding.

File: {{ .File }}{{ if .Line }}
Line: {{ .Line }}{{ end }}
Category: {{ .Category }}
Issue: {{ .Title }}
{{ .Description }}

Make the minimal change that removes the issue. Match the surrounding code
style. Do not refactor unrelated code, do not add comments explaining the
change, and do not touch other files unless the fix strictly requires it.`

const verifyFixPromptTmpl = `The verification command below is failing. Fix the underlying code.

Command: {{ .Command }}
Exit code: {{ .ExitCode }}
Attempt: {{ .Attempt }} of {{ .MaxAttempts }}

Output (tail):
{{ truncTail 4000 .Output }}

Fix the code that makes this command fail. Do not weaken, skip, or delete
tests to make them pass.`

const reviewPromptTmpl = `Review the working tree changes for quality problems a careful human
reviewer would flag: regressions, style drift, or fixes that missed the point.
{{ if .ChangedFiles }}
The files with uncommitted changes are:
{{ range .ChangedFiles }}- {{ . }}
{{ end }}
Confine your review to these files.
{{ end }}
Write your suggestions to {{ .ReviewPath }} in exactly this format:

# Review Suggestions

### <n>. [<SEVERITY>] <short title>
- **File:** <relative path>
- **Line:** <line number, omit this bullet if unknown>
- **Description:** <one or two sentences>

If you have no suggestions, write a document containing only the heading
"## No Suggestions". Do not modify any other file.`

func scanPrompt(findingsPath, learnings string) (string, error) {
	categories := make([]string, 0, len(finding.AllCategories()))
	for _, c := range finding.AllCategories() {
		categories = append(categories, string(c))
	}
	return tmpl.Render(scanPromptTmpl, map[string]any{
		"FindingsPath": findingsPath,
		"Categories":   categories,
		"Learnings":    strings.TrimSpace(learnings),
	})
}

func fixPrompt(t finding.Task, f finding.SlopFinding) (string, error) {
	return tmpl.Render(fixPromptTmpl, map[string]any{
		"File":        t.File,
		"Line":        f.Line,
		"Category":    string(f.Category),
		"Title":       t.Title,
		"Description": t.Description,
	})
}

func verifyFixPrompt(cmd verify.Command, attempt, maxAttempts int) (string, error) {
	return tmpl.Render(verifyFixPromptTmpl, map[string]any{
		"Command":     cmd.Command,
		"ExitCode":    cmd.ExitCode,
		"Attempt":     attempt,
		"MaxAttempts": maxAttempts,
		"Output":      cmd.Output,
	})
}

func reviewPrompt(reviewPath string, changedFiles []string) (string, error) {
	return tmpl.Render(reviewPromptTmpl, map[string]any{
		"ReviewPath":   reviewPath,
		"ChangedFiles": changedFiles,
	})
}

// findingByID returns the finding backing a task, falling back to a
// synthetic record when the source finding is gone.
func findingByID(findings []finding.SlopFinding, id string) finding.SlopFinding {
	for _, f := range findings {
		if f.ID == id {
			return f
		}
	}
	return finding.SlopFinding{ID: id, Category: finding.CategoryStyle}
}

// verifySummary renders one pass outcome for the verification artifact.
func verifySummary(state VerifyState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Attempt %d: %s\n", state.Attempt, state.Status)
	for _, c := range state.Commands {
		fmt.Fprintf(&sb, "- %s: %s", c.Name, c.Status)
		if c.Status == verify.StatusFailed {
			fmt.Fprintf(&sb, " (exit %d)", c.ExitCode)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
