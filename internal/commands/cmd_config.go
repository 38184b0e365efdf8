package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/scrub/internal/core/config"
)

type ConfigCmd struct {
	flags *Flags
}

func NewConfigCmd(flags *Flags) *ConfigCmd {
	return &ConfigCmd{flags: flags}
}

func (cmd *ConfigCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "config",
		Usage:     "Open the global config in $EDITOR",
		UsageText: "scrub config",
		Description: `Opens the global configuration file in your editor, creating it from
defaults first when it does not exist. Project-level settings live in
.scrub/config.yaml and take precedence.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *ConfigCmd) run(ctx context.Context, c *cli.Command) error {
	path := cmd.flags.ConfigPath

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		data, err := yaml.Marshal(config.DefaultConfig())
		if err != nil {
			return fmt.Errorf("encode defaults: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write defaults: %w", err)
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	ed := exec.CommandContext(ctx, editor, path)
	ed.Stdin = os.Stdin
	ed.Stdout = os.Stdout
	ed.Stderr = os.Stderr
	if err := ed.Run(); err != nil {
		return fmt.Errorf("run editor: %w", err)
	}

	// Re-validate so a broken edit is caught now rather than mid-run.
	cfg, err := config.Load(path, "", cmd.flags.DataDir)
	if err != nil {
		return err
	}
	return cfg.Validate()
}
