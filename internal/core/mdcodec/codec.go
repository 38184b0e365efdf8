// Package mdcodec maps between structured records and the fixed markdown
// grammar the agent is instructed to write. The read side is deliberately
// lenient: a malformed block degrades to a partial record with defaults, it
// never fails the parse.
package mdcodec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hay-kot/scrub/internal/core/finding"
)

// Sentinel headings that signal the empty case.
const (
	NoFindingsSentinel    = "## No Issues Found"
	NoSuggestionsSentinel = "## No Suggestions"
)

// defaultFile substitutes for a block with no **File:** bullet.
const defaultFile = "unknown"

// blockHeading matches one issue block heading: "### <n>. [<SEVERITY>] <title>".
var blockHeading = regexp.MustCompile(`^### (\d+)\. \[([A-Za-z]+)\] (.+)$`)

// field holds one labeled bullet value with an explicit present/absent flag,
// so absence is distinguishable from an empty value.
type field struct {
	value   string
	present bool
}

func (f field) or(def string) string {
	if !f.present {
		return def
	}
	return f.value
}

// block is one parsed issue block before conversion to a typed record.
type block struct {
	ordinal  int
	severity string
	title    string
	fields   map[string]field
}

// splitBlocks locates repeated issue blocks by heading and captures each
// body up to the next heading (or end of document).
func splitBlocks(doc string) []block {
	var (
		blocks  []block
		current *block
	)

	for _, line := range strings.Split(doc, "\n") {
		if m := blockHeading.FindStringSubmatch(line); m != nil {
			if current != nil {
				blocks = append(blocks, *current)
			}
			n, _ := strconv.Atoi(m[1])
			current = &block{
				ordinal:  n,
				severity: strings.ToLower(m[2]),
				title:    strings.TrimSpace(m[3]),
				fields:   map[string]field{},
			}
			continue
		}
		if current == nil {
			continue
		}
		if name, value, ok := parseFieldLine(line); ok {
			// First occurrence wins.
			if _, exists := current.fields[name]; !exists {
				current.fields[name] = field{value: value, present: true}
			}
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks
}

// parseFieldLine extracts a "**Name:** value" bullet. The leading "- " is
// optional; agents do not reliably emit it.
func parseFieldLine(line string) (name, value string, ok bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, "- ")
	if !strings.HasPrefix(s, "**") {
		return "", "", false
	}
	rest := s[2:]
	end := strings.Index(rest, ":**")
	if end < 0 {
		return "", "", false
	}
	return rest[:end], strings.TrimSpace(rest[end+3:]), true
}

func (b block) file() string {
	return b.fields["File"].or(defaultFile)
}

func (b block) line() int {
	f := b.fields["Line"]
	if !f.present {
		return 0
	}
	n, err := strconv.Atoi(f.value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (b block) description() string {
	return b.fields["Description"].or("")
}

// ParseFindings decodes a findings document. IDs are assigned by block
// position, not the agent's ordinal, so duplicated ordinals stay unique.
func ParseFindings(doc string) []finding.SlopFinding {
	blocks := splitBlocks(doc)
	findings := make([]finding.SlopFinding, 0, len(blocks))
	for i, b := range blocks {
		findings = append(findings, finding.SlopFinding{
			ID:          fmt.Sprintf("finding-%d", i+1),
			Title:       b.title,
			Description: b.description(),
			File:        b.file(),
			Line:        b.line(),
			Severity:    finding.Severity(b.severity),
			Category:    finding.Category(strings.ToLower(b.fields["Category"].or(string(finding.CategoryStyle)))),
		})
	}
	return findings
}

// ParseReview decodes a review document into suggestions.
func ParseReview(doc string) []finding.ReviewSuggestion {
	blocks := splitBlocks(doc)
	suggestions := make([]finding.ReviewSuggestion, 0, len(blocks))
	for i, b := range blocks {
		suggestions = append(suggestions, finding.ReviewSuggestion{
			ID:          fmt.Sprintf("suggestion-%d", i+1),
			Title:       b.title,
			Description: b.description(),
			File:        b.file(),
			Line:        b.line(),
			Severity:    finding.Severity(b.severity),
		})
	}
	return suggestions
}

// WriteFindings serializes findings in the same grammar the scan prompt
// instructs the agent to produce.
func WriteFindings(findings []finding.SlopFinding) string {
	var sb strings.Builder
	sb.WriteString("# Slop Findings\n\n")
	if len(findings) == 0 {
		sb.WriteString(NoFindingsSentinel + "\n")
		return sb.String()
	}
	for i, f := range findings {
		writeBlock(&sb, i+1, string(f.Severity), f.Title, f.File, f.Line, string(f.Category), f.Description)
	}
	return sb.String()
}

// WriteReview serializes review suggestions.
func WriteReview(suggestions []finding.ReviewSuggestion) string {
	var sb strings.Builder
	sb.WriteString("# Review Suggestions\n\n")
	if len(suggestions) == 0 {
		sb.WriteString(NoSuggestionsSentinel + "\n")
		return sb.String()
	}
	for i, s := range suggestions {
		writeBlock(&sb, i+1, string(s.Severity), s.Title, s.File, s.Line, "", s.Description)
	}
	return sb.String()
}

func writeBlock(sb *strings.Builder, ordinal int, severity, title, file string, line int, category, description string) {
	fmt.Fprintf(sb, "### %d. [%s] %s\n", ordinal, strings.ToUpper(severity), title)
	fmt.Fprintf(sb, "- **File:** %s\n", file)
	if line > 0 {
		fmt.Fprintf(sb, "- **Line:** %d\n", line)
	}
	if category != "" {
		fmt.Fprintf(sb, "- **Category:** %s\n", category)
	}
	fmt.Fprintf(sb, "- **Description:** %s\n\n", description)
}

// WriteTasks serializes the task list as a human-readable checklist. Tasks
// are write-only within a run; nothing parses this back.
func WriteTasks(tasks []finding.Task) string {
	var sb strings.Builder
	sb.WriteString("# Tasks\n\n")
	for _, t := range tasks {
		mark := " "
		switch t.Status {
		case finding.TaskCompleted:
			mark = "x"
		case finding.TaskFailed:
			mark = "!"
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s (%s)\n", mark, t.ID, t.Title, t.File)
		if t.Error != "" {
			fmt.Fprintf(&sb, "  - error: %s\n", t.Error)
		}
	}
	return sb.String()
}

// IsEmptyFindings reports whether a findings document contains the empty
// sentinel and no issue blocks.
func IsEmptyFindings(doc string) bool {
	return strings.Contains(doc, NoFindingsSentinel) && len(splitBlocks(doc)) == 0
}
