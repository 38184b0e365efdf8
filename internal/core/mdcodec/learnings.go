package mdcodec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/scrub/internal/core/finding"
)

// The learnings store uses a related but distinct grammar from findings:
// numbered "## Entry <n>" blocks with a fenced code block holding the
// rejected snippet. The file is append-only; entries are never rewritten.

var entryHeading = regexp.MustCompile(`^## Entry (\d+)$`)

// AppendEntry returns the learnings document with a new numbered entry
// appended. An empty content string starts a fresh document.
func AppendEntry(content string, e finding.NotSlopEntry) string {
	var sb strings.Builder
	if strings.TrimSpace(content) == "" {
		sb.WriteString("# Not-Slop Learnings\n\n")
	} else {
		sb.WriteString(strings.TrimRight(content, "\n"))
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "## Entry %d\n", nextEntryNumber(content))
	fmt.Fprintf(&sb, "- **File:** %s\n", e.File)
	if e.Line > 0 {
		fmt.Fprintf(&sb, "- **Line:** %d\n", e.Line)
	}
	fmt.Fprintf(&sb, "- **Category:** %s\n", e.Category)
	fmt.Fprintf(&sb, "- **Title:** %s\n", e.Title)
	fmt.Fprintf(&sb, "- **Date:** %s\n", e.Timestamp.UTC().Format(time.RFC3339))
	if e.CodeSnippet != "" {
		sb.WriteString("\n```\n")
		sb.WriteString(strings.TrimRight(e.CodeSnippet, "\n"))
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// CountEntries returns the number of entry blocks in a learnings document.
func CountEntries(content string) int {
	count := 0
	for _, line := range strings.Split(content, "\n") {
		if entryHeading.MatchString(line) {
			count++
		}
	}
	return count
}

func nextEntryNumber(content string) int {
	highest := 0
	for _, line := range strings.Split(content, "\n") {
		if m := entryHeading.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest + 1
}
