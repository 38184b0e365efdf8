package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/scrub/internal/core/creds"
	"github.com/hay-kot/scrub/pkg/executil"
)

type LogoutCmd struct {
	flags *Flags
}

func NewLogoutCmd(flags *Flags) *LogoutCmd {
	return &LogoutCmd{flags: flags}
}

func (cmd *LogoutCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "logout",
		Usage:     "Remove stored agent credentials",
		UsageText: "scrub logout",
		Description: `Removes the API key from the system secret store and the fallback
credential file. Keys supplied via environment variables are unaffected.`,
		Action: cmd.run,
	})
	return app
}

func (cmd *LogoutCmd) run(ctx context.Context, c *cli.Command) error {
	store := creds.NewStore(cmd.flags.Config.CredentialsFile(), &executil.RealExecutor{}, log.Logger)
	if err := store.Remove(ctx); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}
	fmt.Println("credentials removed")
	return nil
}
