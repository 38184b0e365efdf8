package runstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/mdcodec"
)

// learningsFile is the cumulative cross-run store of findings the user
// rejected. Distinct from the per-run directory: it lives at the project
// root and is only ever appended to.
const learningsFile = "learnings.md"

// LearningsPath returns the project-level learnings file path.
func (s *Store) LearningsPath() string {
	return filepath.Join(s.projectDir, projectDirName, learningsFile)
}

// ReadLearnings returns the full learnings document for scan prompt
// context. A missing file is an empty document.
func (s *Store) ReadLearnings() (string, error) {
	data, err := os.ReadFile(s.LearningsPath())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read learnings: %w", err)
	}
	return string(data), nil
}

// AppendLearning records a rejected finding. Each write reads the whole
// file, appends one numbered entry, and writes it back.
func (s *Store) AppendLearning(entry finding.NotSlopEntry) error {
	content, err := s.ReadLearnings()
	if err != nil {
		return err
	}

	updated := mdcodec.AppendEntry(content, entry)
	if err := os.WriteFile(s.LearningsPath(), []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write learnings: %w", err)
	}

	s.log.Debug().Str("file", entry.File).Str("title", entry.Title).Msg("recorded not-slop learning")
	return nil
}
