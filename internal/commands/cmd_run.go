package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/scrub/internal/agent"
	"github.com/hay-kot/scrub/internal/core/config"
	"github.com/hay-kot/scrub/internal/core/creds"
	"github.com/hay-kot/scrub/internal/core/git"
	"github.com/hay-kot/scrub/internal/core/runstore"
	"github.com/hay-kot/scrub/internal/core/styles"
	"github.com/hay-kot/scrub/internal/core/verify"
	"github.com/hay-kot/scrub/internal/orchestrator"
	"github.com/hay-kot/scrub/internal/tui"
	"github.com/hay-kot/scrub/pkg/executil"
)

type RunCmd struct {
	flags *Flags
	dir   string
}

// NewRunCmd creates the default run command.
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Flags returns the run-specific flags for registration on the root command.
func (cmd *RunCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "dir",
			Aliases:     []string{"C"},
			Usage:       "project directory to scan (defaults to the working directory)",
			Destination: &cmd.dir,
		},
	}
}

// Run executes a full scan-fix-verify-review cycle. Exported for use as
// the default command.
func (cmd *RunCmd) Run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	dir := cmd.dir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
	} else {
		// The startup hook loaded config against the invocation directory.
		// A -C run must honor the target project's config instead.
		var err error
		cfg, err = loadProjectConfig(cmd.flags, dir)
		if err != nil {
			return err
		}
		palette, _ := styles.GetPalette(cfg.TUI.Theme)
		styles.SetTheme(palette)
	}

	exec := &executil.RealExecutor{}

	credStore := creds.NewStore(cfg.CredentialsFile(), exec, log.Logger)
	apiKey, source, err := credStore.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}
	log.Debug().Str("source", string(source)).Msg("credentials resolved")

	store, err := runstore.New(dir, log.Logger)
	if err != nil {
		return fmt.Errorf("create run store: %w", err)
	}

	client := &agent.CLIClient{
		Command: cfg.Agent.Command,
		Dir:     dir,
		APIKey:  apiKey,
		Exec:    exec,
		Log:     log.Logger,
	}

	executor := verify.NewExecutor(
		exec,
		time.Duration(cfg.Verification.Timeout)*time.Second,
		log.Logger,
	)

	orch := orchestrator.New(cfg, store, client, executor, git.NewExecutor("git", exec), dir, log.Logger)
	orch.Start(ctx)

	model := tui.New(ctx, orch, log.Logger)
	program := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := program.Run(); err != nil {
		orch.Teardown()
		return fmt.Errorf("run ui: %w", err)
	}

	if err := orch.Err(); err != nil {
		return err
	}

	log.Info().Str("run_id", orch.RunID()).Msg("run finished")
	return nil
}

// loadProjectConfig resolves config against a specific project directory so
// its .scrub/config.yaml takes precedence over the invocation directory's.
func loadProjectConfig(flags *Flags, dir string) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath, dir, flags.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
