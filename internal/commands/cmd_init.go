package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/scrub/internal/core/config"
	"github.com/hay-kot/scrub/internal/core/styles"
)

type InitCmd struct {
	flags *Flags
	yes   bool
	force bool
}

func NewInitCmd(flags *Flags) *InitCmd {
	return &InitCmd{flags: flags}
}

func (cmd *InitCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "init",
		Usage:     "Create a project config with an interactive wizard",
		UsageText: "scrub init [options]",
		Description: `Writes .scrub/config.yaml in the current directory.

The wizard asks for the theme, agent models, and verification retry
budget. Use --yes to accept all defaults without prompts and --force to
overwrite an existing config.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "accept defaults without prompting",
				Destination: &cmd.yes,
			},
			&cli.BoolFlag{
				Name:        "force",
				Aliases:     []string{"f"},
				Usage:       "overwrite existing configuration",
				Destination: &cmd.force,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *InitCmd) run(ctx context.Context, c *cli.Command) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	path := filepath.Join(dir, config.ProjectConfigName)

	if _, err := os.Stat(path); err == nil && !cmd.force {
		if cmd.yes {
			return fmt.Errorf("config exists at %s; use --force to overwrite", path)
		}

		var overwrite bool
		err := huh.NewConfirm().
			Title("Config file already exists").
			Description(path + "\nOverwrite?").
			Value(&overwrite).
			Run()
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("init cancelled")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	if !cmd.yes {
		if err := cmd.prompt(&cfg); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Println(styles.SuccessStyle.Render("✓") + " wrote " + path)
	return nil
}

func (cmd *InitCmd) prompt(cfg *config.Config) error {
	retries := strconv.Itoa(cfg.Verification.MaxRetries)

	themeOptions := make([]huh.Option[string], 0, len(styles.ThemeNames()))
	for _, name := range styles.ThemeNames() {
		themeOptions = append(themeOptions, huh.NewOption(name, name))
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Theme").
			Options(themeOptions...).
			Value(&cfg.TUI.Theme),
		huh.NewInput().
			Title("Planning model").
			Description("used for scanning and review").
			Value(&cfg.Models.Planning),
		huh.NewInput().
			Title("Executing model").
			Description("used for fix tasks").
			Value(&cfg.Models.Executing),
		huh.NewInput().
			Title("Verification retries").
			Value(&retries).
			Validate(func(s string) error {
				n, err := strconv.Atoi(s)
				if err != nil || n < 1 {
					return fmt.Errorf("must be a number >= 1")
				}
				return nil
			}),
	))

	if err := form.Run(); err != nil {
		return err
	}

	n, err := strconv.Atoi(retries)
	if err != nil {
		return fmt.Errorf("parse retries: %w", err)
	}
	cfg.Verification.MaxRetries = n
	return nil
}
