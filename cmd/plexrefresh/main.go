package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/plexrefresh/internal/config"
	"github.com/saltyorg/plexrefresh/internal/httpclient"
	"github.com/saltyorg/plexrefresh/internal/logging"
	"github.com/saltyorg/plexrefresh/internal/plex"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	dbPath     string
	verbosity  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "plexrefresh",
		Short:         "Targeted Plex metadata refresh for processed media files",
		Long:          `plexrefresh refreshes the Plex folder and library item that belong to a single media file, from a post-processing hook, a webhook or a filesystem watcher.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the TOML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "SQLite history database path (or set DB_PATH env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(
		newRefreshCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newAPIKeyCmd(),
		newNotifyCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("plexrefresh %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies the global flags and sets up
// logging and timeouts. The default config path may be absent.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	optional := !cmd.Flags().Changed("config")
	cfg, err := config.Load(configPath, optional)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logging.Apply(cfg.Log, verbosity)
	config.SetGlobalTimeouts(cfg.TimeoutConfig())

	return cfg, nil
}

// newRefresher builds the Plex refresher from the matching settings.
func newRefresher(cfg config.PlexConfig) *plex.Refresher {
	timeouts := config.GetTimeouts()
	return plex.NewRefresher(plex.Options{
		TitlePolicy: plex.TitlePolicy{
			Mode:        plex.TitleMatch(cfg.TitleMatch),
			MaxDistance: cfg.MaxTitleDistance,
		},
		SettleDelay: cfg.SettleDelay,
		HTTPClient:  httpclient.NewTraceClient("plex", timeouts.HTTPClient),
	})
}
