// Package runstore owns the durable on-disk record of a scrub run: the
// per-run artifact directory and the project-level learnings store.
package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/scrub/internal/core/finding"
	"github.com/hay-kot/scrub/internal/core/mdcodec"
	"github.com/hay-kot/scrub/pkg/randid"
)

// Artifact file names inside a run directory. The agent is given absolute
// paths to these and instructed to write them; the phases transition by
// reading them back.
const (
	FindingsFile     = "findings.md"
	ReviewFile       = "review.md"
	TasksFile        = "tasks.md"
	VerificationFile = "verification.md"
	LogFile          = "log.md"
)

// projectDirName is the project-relative directory holding runs and learnings.
const projectDirName = ".scrub"

// Store is the artifact store for exactly one run. A process invocation
// creates one run directory and never reopens an old one.
type Store struct {
	projectDir string
	runID      string
	runDir     string
	log        zerolog.Logger
	now        func() time.Time
}

// New creates the run directory for a new run under <project>/.scrub/runs/.
// The run ID is derived from the current timestamp.
func New(projectDir string, logger zerolog.Logger) (*Store, error) {
	return newAt(projectDir, logger, time.Now)
}

func newAt(projectDir string, logger zerolog.Logger, now func() time.Time) (*Store, error) {
	runID := "run-" + now().Format("20060102-150405")
	runDir := filepath.Join(projectDir, projectDirName, "runs", runID)

	// Two runs started within the same second get distinct directories.
	if _, err := os.Stat(runDir); err == nil {
		runID += "-" + randid.Generate(4)
		runDir = filepath.Join(projectDir, projectDirName, "runs", runID)
	}

	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	return &Store{
		projectDir: projectDir,
		runID:      runID,
		runDir:     runDir,
		log:        logger.With().Str("run", runID).Logger(),
		now:        now,
	}, nil
}

// RunID returns the timestamp-derived run identifier.
func (s *Store) RunID() string { return s.runID }

// Dir returns the absolute run directory path.
func (s *Store) Dir() string { return s.runDir }

// FindingsPath returns the absolute path of the findings artifact. Scan
// prompts embed this path so the agent knows where to write.
func (s *Store) FindingsPath() string { return filepath.Join(s.runDir, FindingsFile) }

// ReviewPath returns the absolute path of the review artifact.
func (s *Store) ReviewPath() string { return filepath.Join(s.runDir, ReviewFile) }

// ReadFindings parses the findings artifact. A missing artifact yields an
// empty list: the agent found nothing to report.
func (s *Store) ReadFindings() ([]finding.SlopFinding, error) {
	doc, err := s.readArtifact(FindingsFile)
	if err != nil {
		return nil, err
	}
	return mdcodec.ParseFindings(doc), nil
}

// WriteFindings replaces the findings artifact, e.g. after review
// suggestions are promoted back into findings.
func (s *Store) WriteFindings(findings []finding.SlopFinding) error {
	return s.writeArtifact(FindingsFile, mdcodec.WriteFindings(findings))
}

// ReadReview parses the review artifact. Missing file yields no suggestions.
func (s *Store) ReadReview() ([]finding.ReviewSuggestion, error) {
	doc, err := s.readArtifact(ReviewFile)
	if err != nil {
		return nil, err
	}
	return mdcodec.ParseReview(doc), nil
}

// WriteTasks replaces the tasks artifact with the current task list.
func (s *Store) WriteTasks(tasks []finding.Task) error {
	return s.writeArtifact(TasksFile, mdcodec.WriteTasks(tasks))
}

// AppendVerification appends one verification pass summary to the
// verification log artifact.
func (s *Store) AppendVerification(summary string) error {
	return s.appendArtifact(VerificationFile, summary)
}

// Log appends a timestamped line to the run's activity log. Errors are
// logged and swallowed; the activity log must never break the pipeline.
func (s *Store) Log(format string, args ...any) {
	line := fmt.Sprintf("- %s %s\n", s.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	if err := s.appendArtifact(LogFile, line); err != nil {
		s.log.Error().Err(err).Msg("append activity log")
	}
}

func (s *Store) readArtifact(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir, name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func (s *Store) writeArtifact(name, content string) error {
	if err := os.WriteFile(filepath.Join(s.runDir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *Store) appendArtifact(name, content string) error {
	f, err := os.OpenFile(filepath.Join(s.runDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}
