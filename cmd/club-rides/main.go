package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/club-rides/internal/app"
	"github.com/Sternrassler/club-rides/pkg/config"
	"github.com/Sternrassler/club-rides/pkg/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(config.Load).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. loadConfig is called once per
// invocation, after flags are parsed.
func newRootCmd(loadConfig func() config.Config) *cobra.Command {
	var serve bool

	root := &cobra.Command{
		Use:   "club-rides",
		Short: "Collect upcoming group rides from your Strava clubs",
		Long: `club-rides fetches the upcoming group events of every Strava club you
belong to, prints the rides in your city for the next days and stores
them as JSON. With --server it serves the stored files to a browser.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			logging.Setup(logging.ConfigFromDebug(cfg.Debug, cfg.LogPretty))

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if serve {
				log.Info().Int("port", cfg.Port).Msg("Starting server mode")
				return a.Serve(cmd.Context())
			}
			_, err = a.Run(cmd.Context())
			return err
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&serve, "server", "s", false, "serve stored events over HTTP instead of collecting")

	root.AddCommand(newClubsCmd(loadConfig))
	return root
}

func newClubsCmd(loadConfig func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clubs",
		Short: "Write your current club memberships to the club selection file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()
			logging.Setup(logging.ConfigFromDebug(cfg.Debug, cfg.LogPretty))

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.SaveClubSelection(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d clubs to %s\n", n, cfg.ClubConfig)
			return nil
		},
	}
}
