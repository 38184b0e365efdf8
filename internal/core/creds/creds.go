// Package creds resolves the agent API key. Resolution precedence:
// environment variable > platform secret store > obfuscated local file >
// interactive prompt.
package creds

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hay-kot/scrub/pkg/executil"
)

// Source identifies where a credential was found.
type Source string

// Credential sources, in resolution order.
const (
	SourceEnv    Source = "environment"
	SourceStore  Source = "secret-store"
	SourceFile   Source = "file"
	SourcePrompt Source = "prompt"
)

// ErrNotFound is returned when no credential could be resolved and
// interactive prompting was not possible.
var ErrNotFound = errors.New("no API key found")

// envVars are checked first, in order.
var envVars = []string{"SCRUB_API_KEY", "ANTHROPIC_API_KEY"}

// service is the secret-store service name credentials are filed under.
const service = "scrub"

// obfuscation key for the fallback file. This is not encryption; it only
// keeps the key from being shoulder-surfed or grepped in plain text.
var xorKey = []byte("scrub-credential-store")

// Store reads and writes credentials. All paths and collaborators are
// injected; there is no process-global state.
type Store struct {
	// FilePath is the obfuscated fallback file location.
	FilePath string
	// GOOS selects the platform secret-store tool; defaults to runtime.GOOS.
	GOOS string

	exec executil.Executor
	log  zerolog.Logger
}

// NewStore creates a credential store writing its fallback file at filePath.
func NewStore(filePath string, ex executil.Executor, logger zerolog.Logger) *Store {
	return &Store{
		FilePath: filePath,
		GOOS:     runtime.GOOS,
		exec:     ex,
		log:      logger.With().Str("component", "creds").Logger(),
	}
}

// Resolve walks the credential chain and returns the first key found. When
// everything misses and stdin is a terminal, the user is prompted; the
// prompted key is saved for next time.
func (s *Store) Resolve(ctx context.Context) (string, Source, error) {
	for _, name := range envVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, SourceEnv, nil
		}
	}

	if key, err := s.fromSecretStore(ctx); err == nil && key != "" {
		return key, SourceStore, nil
	}

	if key, err := s.fromFile(); err == nil && key != "" {
		return key, SourceFile, nil
	}

	key, err := s.prompt()
	if err != nil {
		return "", "", err
	}
	if err := s.Save(ctx, key); err != nil {
		s.log.Warn().Err(err).Msg("failed to save prompted credential")
	}
	return key, SourcePrompt, nil
}

// Save stores the key in the platform secret store, falling back to the
// obfuscated file when no store tool is usable.
func (s *Store) Save(ctx context.Context, key string) error {
	if err := s.toSecretStore(ctx, key); err == nil {
		return nil
	}
	return s.toFile(key)
}

// Remove deletes the credential from the platform store and the fallback
// file. Missing entries are not errors.
func (s *Store) Remove(ctx context.Context) error {
	switch s.goos() {
	case "darwin":
		_, _ = s.exec.Run(ctx, "security", "delete-generic-password", "-s", service)
	case "linux":
		_, _ = s.exec.Run(ctx, "secret-tool", "clear", "service", service)
	}

	if err := os.Remove(s.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (s *Store) goos() string {
	if s.GOOS != "" {
		return s.GOOS
	}
	return runtime.GOOS
}

func (s *Store) fromSecretStore(ctx context.Context) (string, error) {
	var out []byte
	var err error
	switch s.goos() {
	case "darwin":
		out, err = s.exec.Run(ctx, "security", "find-generic-password", "-s", service, "-w")
	case "linux":
		out, err = s.exec.Run(ctx, "secret-tool", "lookup", "service", service)
	default:
		return "", fmt.Errorf("no secret store on %s", s.goos())
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *Store) toSecretStore(ctx context.Context, key string) error {
	var err error
	switch s.goos() {
	case "darwin":
		_, err = s.exec.Run(ctx, "security", "add-generic-password", "-s", service, "-a", service, "-w", key, "-U")
	case "linux":
		// secret-tool reads the secret from stdin; shell out through sh so
		// the key is not passed as an argv element.
		_, err = s.exec.Run(ctx, "sh", "-c", fmt.Sprintf("printf %%s %s | secret-tool store --label=scrub service %s", shellQuote(key), service))
	default:
		err = fmt.Errorf("no secret store on %s", s.goos())
	}
	return err
}

func (s *Store) fromFile() (string, error) {
	data, err := os.ReadFile(s.FilePath)
	if err != nil {
		return "", err
	}
	return Deobfuscate(strings.TrimSpace(string(data)))
}

func (s *Store) toFile(key string) error {
	if err := os.MkdirAll(filepath.Dir(s.FilePath), 0o755); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.FilePath, []byte(Obfuscate(key)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

func (s *Store) prompt() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", ErrNotFound
	}

	fmt.Fprint(os.Stderr, "API key: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}

	key := strings.TrimSpace(string(raw))
	if key == "" {
		return "", ErrNotFound
	}
	return key, nil
}

// Obfuscate XORs the key and base64-encodes the result.
func Obfuscate(key string) string {
	b := []byte(key)
	for i := range b {
		b[i] ^= xorKey[i%len(xorKey)]
	}
	return base64.StdEncoding.EncodeToString(b)
}

// Deobfuscate reverses Obfuscate.
func Deobfuscate(encoded string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	for i := range b {
		b[i] ^= xorKey[i%len(xorKey)]
	}
	return string(b), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
