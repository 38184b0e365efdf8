package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/scrub/internal/core/styles"
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("models.planning", c.Models.Planning, nonEmpty),
		criterio.Run("models.executing", c.Models.Executing, nonEmpty),
		criterio.Run("models.verification", c.Models.Verification, nonEmpty),
		criterio.Run("agent.command", c.Agent.Command, nonEmpty),
		criterio.Run("tui.theme", c.TUI.Theme, knownTheme),
		c.validateVerification(),
		c.validateIgnoreGlobs(),
	)
}

func knownTheme(name string) error {
	if _, ok := styles.GetPalette(name); !ok {
		return fmt.Errorf("unknown theme %q, valid themes: %s", name, strings.Join(styles.ThemeNames(), ", "))
	}
	return nil
}

func (c *Config) validateVerification() error {
	var errs criterio.FieldErrorsBuilder
	if c.Verification.MaxRetries < 1 {
		errs = errs.Append("verification.max_retries", fmt.Errorf("must be at least 1, got %d", c.Verification.MaxRetries))
	}
	if c.Verification.Timeout < 1 {
		errs = errs.Append("verification.timeout", fmt.Errorf("must be a positive number of seconds, got %d", c.Verification.Timeout))
	}
	return errs.ToError()
}

func (c *Config) validateIgnoreGlobs() error {
	var errs criterio.FieldErrorsBuilder
	for i, pattern := range c.Scan.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append(fmt.Sprintf("scan.ignore[%d]", i), fmt.Errorf("invalid glob pattern %q", pattern))
		}
	}
	return errs.ToError()
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

// Ignored reports whether a finding file path matches any scan.ignore glob.
func (c *Config) Ignored(path string) bool {
	for _, pattern := range c.Scan.Ignore {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
