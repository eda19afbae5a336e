package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/saltyorg/plexrefresh/internal/auth"
	"github.com/saltyorg/plexrefresh/internal/config"
	"github.com/saltyorg/plexrefresh/internal/database"
	"github.com/saltyorg/plexrefresh/internal/inotify"
	"github.com/saltyorg/plexrefresh/internal/logging"
	"github.com/saltyorg/plexrefresh/internal/notification"
	"github.com/saltyorg/plexrefresh/internal/polling"
	"github.com/saltyorg/plexrefresh/internal/processor"
	"github.com/saltyorg/plexrefresh/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		port        int
		bind        string
		allowSubnet string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and filesystem watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("bind") {
				cfg.Server.Bind = bind
			}
			if cmd.Flags().Changed("allow-subnet") {
				cfg.Server.AllowedSubnet = allowSubnet
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (or set PORT env var)")
	cmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	cmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if cfg.Server.Bind != "" {
		if ip := net.ParseIP(cfg.Server.Bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", cfg.Server.Bind)
		}
	}

	var allowedNet *net.IPNet
	if cfg.Server.AllowedSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(cfg.Server.AllowedSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", cfg.Server.AllowedSubnet)
		}
		allowedNet = parsedNet
	}

	bind := cfg.Server.Bind
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowedNet == nil {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	verifier := auth.NewVerifier(cfg.Server.APIKey)
	if !verifier.Enabled() {
		log.Warn().Msg("No server.api_key configured; the refresh API accepts unauthenticated requests")
	}

	// The daemon keeps a rotating log next to the history database unless
	// log.file says otherwise.
	if cfg.Log.File == "" {
		cfg.Log.File = logging.FilePathForDB(cfg.Database.Path)
		logging.Apply(cfg.Log, verbosity)
	}

	log.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("bind", bind).
		Str("allow_subnet", cfg.Server.AllowedSubnet).
		Str("database", cfg.Database.Path).
		Str("log_file", cfg.Log.File).
		Msg("Starting plexrefresh")

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	timeouts := config.GetTimeouts()

	notifier, err := notification.NewManagerFromConfig(cfg.Notifications, timeouts.HTTPClient)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}
	defer notifier.Stop()
	if providers := notifier.ListProviders(); len(providers) > 0 {
		log.Info().Strs("providers", providers).Msg("Notifications enabled")
	}

	proc := processor.New(processor.Config{
		Plex:        cfg.Plex,
		Workers:     cfg.Processor.Workers,
		QueueSize:   cfg.Processor.QueueSize,
		Timeout:     timeouts.RefreshOperation,
		CleanupDays: cfg.Database.CleanupDays,
	}, newRefresher(cfg.Plex), db, notifier)
	if err := proc.Start(); err != nil {
		return err
	}
	defer proc.Stop()

	server := web.NewServer(web.Options{
		Bind:       cfg.Server.Bind,
		Port:       cfg.Server.Port,
		AllowedNet: allowedNet,
		Verifier:   verifier,
		Version:    version,
	}, proc, db)
	runners := []func(context.Context) error{server.Start}

	// The poller allocates nothing, so build it before the inotify watcher
	// which holds a kernel handle until it runs.
	if len(cfg.Watch.PollPaths) > 0 {
		poller, err := polling.New(polling.Config{
			Paths:      cfg.Watch.PollPaths,
			Extensions: cfg.Watch.Extensions,
			Interval:   cfg.Watch.PollInterval,
		}, proc)
		if err != nil {
			return fmt.Errorf("failed to create poller: %w", err)
		}
		server.AddStatus("poller", func() any { return poller.Stats() })
		runners = append(runners, poller.Run)
	}

	if len(cfg.Watch.Paths) > 0 {
		watcher, err := inotify.New(inotify.Config{
			Paths:      cfg.Watch.Paths,
			Extensions: cfg.Watch.Extensions,
			Debounce:   cfg.Watch.Debounce,
		}, proc)
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		server.AddStatus("watcher", func() any { return watcher.Stats() })
		runners = append(runners, watcher.Run)
	} else {
		log.Debug().Msg("Filesystem watcher not started (no watch.paths configured)")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error {
			return run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("plexrefresh stopped")
	return nil
}
