// Package finding defines the core records that flow through a scrub run:
// slop findings, fix tasks, review suggestions, and not-slop learnings.
package finding

import (
	"fmt"
	"strings"
	"time"
)

// Severity classifies how disruptive a finding is.
type Severity string

// Supported severities, lowest to highest.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Category is the closed set of slop categories the scanner reports.
type Category string

// Categories the agent is prompted to detect. Architecture and security
// findings are hint-only: they are surfaced but never auto-fixed.
const (
	CategoryComments        Category = "comments"
	CategoryDeadCode        Category = "dead-code"
	CategoryDuplication     Category = "duplication"
	CategoryOverengineering Category = "overengineering"
	CategoryStyle           Category = "style"
	CategoryArchitecture    Category = "architecture"
	CategorySecurity        Category = "security"
)

// HintOnly reports whether findings of this category can only ever be
// flagged, never turned into fix tasks.
func (c Category) HintOnly() bool {
	switch c {
	case CategoryArchitecture, CategorySecurity:
		return true
	default:
		return false
	}
}

// AllCategories returns every known category in display order.
func AllCategories() []Category {
	return []Category{
		CategoryComments,
		CategoryDeadCode,
		CategoryDuplication,
		CategoryOverengineering,
		CategoryStyle,
		CategoryArchitecture,
		CategorySecurity,
	}
}

// SlopFinding is one detected slop instance.
// Line is 1-based; zero means the agent did not report a line.
type SlopFinding struct {
	ID          string
	Title       string
	Description string
	File        string
	Line        int
	Severity    Severity
	Category    Category
	Selected    bool
}

// Toggle flips the selection state. Hint-only findings cannot be selected;
// Toggle is a no-op for them and reports whether the state changed.
func (f *SlopFinding) Toggle() bool {
	if f.Category.HintOnly() {
		f.Selected = false
		return false
	}
	f.Selected = !f.Selected
	return true
}

// TaskStatus tracks a fix task through the executor.
type TaskStatus string

// Task lifecycle states. Status is mutated only by the executor.
const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is one unit of fix work derived from a selected finding.
type Task struct {
	ID              string
	Title           string
	Description     string
	Status          TaskStatus
	File            string
	SourceFindingID string

	// Error holds the failure text when Status is TaskFailed.
	Error string
}

// BuildTasks maps selected, fixable findings 1:1 to pending tasks.
// Hint-only findings are excluded here even if their Selected flag was
// somehow set; the results view enforces the same rule at toggle time.
func BuildTasks(findings []SlopFinding) []Task {
	var tasks []Task
	for _, f := range findings {
		if !f.Selected || f.Category.HintOnly() {
			continue
		}
		tasks = append(tasks, Task{
			ID:              TaskIDFor(f.ID),
			Title:           f.Title,
			Description:     f.Description,
			Status:          TaskPending,
			File:            f.File,
			SourceFindingID: f.ID,
		})
	}
	return tasks
}

// TaskIDFor derives a task ID from its source finding ID.
func TaskIDFor(findingID string) string {
	if rest, ok := strings.CutPrefix(findingID, "finding-"); ok {
		return "task-" + rest
	}
	return "task-" + findingID
}

// ReviewSuggestion is one issue raised by the final review pass.
type ReviewSuggestion struct {
	ID          string
	Title       string
	Description string
	File        string
	Line        int
	Severity    Severity
}

// Promote reifies a review suggestion as a pre-selected finding so it can
// loop back through the results phase. Promoted findings always land in the
// generic style category; the review grammar carries no category field.
func Promote(suggestions []ReviewSuggestion) []SlopFinding {
	findings := make([]SlopFinding, 0, len(suggestions))
	for i, s := range suggestions {
		findings = append(findings, SlopFinding{
			ID:          fmt.Sprintf("finding-%d", i+1),
			Title:       s.Title,
			Description: s.Description,
			File:        s.File,
			Line:        s.Line,
			Severity:    s.Severity,
			Category:    CategoryStyle,
			Selected:    true,
		})
	}
	return findings
}

// NotSlopEntry records a finding the user rejected. Entries accumulate in
// the project learnings store and are fed back into future scan prompts as
// negative examples.
type NotSlopEntry struct {
	File        string
	Line        int
	Category    Category
	Title       string
	CodeSnippet string
	Timestamp   time.Time
}
