package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/plexrefresh/internal/config"
	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/notification"
	"github.com/saltyorg/plexrefresh/internal/plex"
	"github.com/saltyorg/plexrefresh/internal/processor"
)

// errRefreshFailed makes the command exit non-zero after the diagnostic log
// has been printed.
var errRefreshFailed = errors.New("refresh failed")

func newRefreshCmd() *cobra.Command {
	var plexFlags config.PlexConfig

	cmd := &cobra.Command{
		Use:   "refresh <file>",
		Short: "Refresh the Plex folder and item for one media file",
		Long: `Refresh the Plex folder that contains a just-processed media file, then locate
the library item for the file and refresh its metadata. The diagnostic log is
printed to stdout and the exit status is 1 when no item was refreshed.

History is recorded only when --db is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyPlexFlags(cmd, &cfg.Plex, plexFlags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRefresh(cmd.Context(), cfg, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&plexFlags.Protocol, "protocol", "", "Plex protocol, http or https")
	f.StringVar(&plexFlags.Host, "host", "", "Plex host and port (e.g. localhost:32400)")
	f.StringVar(&plexFlags.Token, "token", "", "Plex auth token (or set PLEX_TOKEN env var)")
	f.StringVar(&plexFlags.LibraryKey, "library-key", "", "Plex library section key")
	f.StringVar(&plexFlags.LocalPathPrefix, "local-prefix", "", "Local path prefix to replace")
	f.StringVar(&plexFlags.RemotePathPrefix, "remote-prefix", "", "Path prefix as Plex sees it")
	f.StringVar(&plexFlags.TitleMatch, "title-match", "", "Show title matching, fuzzy or exact")
	f.IntVar(&plexFlags.MaxTitleDistance, "max-title-distance", 0, "Largest edit distance accepted by fuzzy matching (0 = unlimited)")
	f.DurationVar(&plexFlags.SettleDelay, "settle-delay", 0, "Pause between the folder refresh and the library lookup")

	return cmd
}

// applyPlexFlags copies every explicitly set flag over the loaded config.
func applyPlexFlags(cmd *cobra.Command, dst *config.PlexConfig, src config.PlexConfig) {
	changed := cmd.Flags().Changed
	if changed("protocol") {
		dst.Protocol = src.Protocol
	}
	if changed("host") {
		dst.Host = src.Host
	}
	if changed("token") {
		dst.Token = src.Token
	}
	if changed("library-key") {
		dst.LibraryKey = src.LibraryKey
	}
	if changed("local-prefix") {
		dst.LocalPathPrefix = src.LocalPathPrefix
	}
	if changed("remote-prefix") {
		dst.RemotePathPrefix = src.RemotePathPrefix
	}
	if changed("title-match") {
		dst.TitleMatch = src.TitleMatch
	}
	if changed("max-title-distance") {
		dst.MaxTitleDistance = src.MaxTitleDistance
	}
	if changed("settle-delay") {
		dst.SettleDelay = src.SettleDelay
	}
}

func runRefresh(ctx context.Context, cfg *config.Config, file string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var history processor.History
	if dbPath != "" {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		history = db
	}

	timeouts := config.GetTimeouts()
	notifier, err := notification.NewManagerFromConfig(cfg.Notifications, timeouts.HTTPClient)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}
	// Stop flushes the queued event before the process exits
	defer notifier.Stop()

	proc := processor.New(processor.Config{
		Plex:    cfg.Plex,
		Workers: 1,
		Timeout: timeouts.RefreshOperation,
	}, newRefresher(cfg.Plex), history, notifier)

	res := proc.Run(ctx, processor.Request{Path: file, Source: database.SourceCLI})

	var cerr *plex.ConfigurationError
	if errors.As(res.Err, &cerr) {
		return cerr
	}

	fmt.Fprint(os.Stdout, res.Record.DiagnosticLog)
	if res.Err != nil {
		log.Debug().Str("refresh_id", res.Record.ID).Msg("No library item was refreshed")
		return errRefreshFailed
	}
	return nil
}
