// Package tmpl provides template rendering utilities for agent prompts.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// truncTail returns at most n bytes from the end of s. Errors in command
// output are usually at the end, so the head is what gets dropped.
func truncTail(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}

var funcs = template.FuncMap{
	"join":      strings.Join,
	"truncTail": truncTail,
	"indent": func(prefix, s string) string {
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if line != "" {
				lines[i] = prefix + line
			}
		}
		return strings.Join(lines, "\n")
	},
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - join: Join string slice with separator (e.g., join .Args " ")
//   - truncTail: Keep the last n bytes of a string (e.g., truncTail 4000 .Output)
//   - indent: Prefix every non-empty line (e.g., indent "> " .Snippet)
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
