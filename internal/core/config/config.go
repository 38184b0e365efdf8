// Package config handles configuration loading and validation for scrub.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the project-level config path relative to the
// directory being scrubbed.
const ProjectConfigName = ".scrub/config.yaml"

// Config holds the application configuration.
type Config struct {
	Models       Models       `yaml:"models"`
	Verification Verification `yaml:"verification"`
	Agent        Agent        `yaml:"agent"`
	Scan         Scan         `yaml:"scan"`
	TUI          TUI          `yaml:"tui"`
	DataDir      string       `yaml:"-"` // set by caller, not from config file
}

// Models selects the model identifier used for each pipeline role.
type Models struct {
	Planning     string `yaml:"planning"`
	Executing    string `yaml:"executing"`
	Verification string `yaml:"verification"`
}

// Verification configures the fix-retry loop.
type Verification struct {
	// MaxRetries bounds verification attempts per run. Must be >= 1.
	MaxRetries int `yaml:"max_retries"`
	// Timeout is the per-command timeout in seconds. Must be > 0.
	Timeout int `yaml:"timeout"`
}

// Agent configures how the agent CLI is invoked.
type Agent struct {
	Command string `yaml:"command"`
}

// Scan configures the detection phase.
type Scan struct {
	// Ignore holds doublestar glob patterns; findings whose file path
	// matches any pattern are dropped before presentation.
	Ignore []string `yaml:"ignore"`
}

// TUI holds presentation settings.
type TUI struct {
	Theme string `yaml:"theme"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Models: Models{
			Planning:     "claude-opus-4-5",
			Executing:    "claude-sonnet-4-5",
			Verification: "claude-sonnet-4-5",
		},
		Verification: Verification{
			MaxRetries: 3,
			Timeout:    300,
		},
		Agent: Agent{
			Command: "claude",
		},
		TUI: TUI{
			Theme: "tokyo-night",
		},
	}
}

// Load resolves configuration with precedence: project file > global file >
// built-in defaults. Either path may be empty or missing; both overlays are
// optional.
func Load(globalPath, projectDir, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	for _, path := range []string{globalPath, filepath.Join(projectDir, ProjectConfigName)} {
		if path == "" || path == ProjectConfigName {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// Re-set dataDir since Unmarshal may have cleared it
	cfg.DataDir = dataDir

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Models.Planning == "" {
		c.Models.Planning = defaults.Models.Planning
	}
	if c.Models.Executing == "" {
		c.Models.Executing = defaults.Models.Executing
	}
	if c.Models.Verification == "" {
		c.Models.Verification = defaults.Models.Verification
	}
	if c.Verification.MaxRetries == 0 {
		c.Verification.MaxRetries = defaults.Verification.MaxRetries
	}
	if c.Verification.Timeout == 0 {
		c.Verification.Timeout = defaults.Verification.Timeout
	}
	if c.Agent.Command == "" {
		c.Agent.Command = defaults.Agent.Command
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = defaults.TUI.Theme
	}
}

// RunsDir returns the path where per-run artifact directories are created,
// relative to the project being scrubbed.
func RunsDir(projectDir string) string {
	return filepath.Join(projectDir, ".scrub", "runs")
}

// CredentialsFile returns the path of the obfuscated credential fallback file.
func (c *Config) CredentialsFile() string {
	return filepath.Join(c.DataDir, "credentials")
}
