package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltyorg/plexrefresh/internal/config"
	"github.com/saltyorg/plexrefresh/internal/notification"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test [provider...]",
		Short: "Send a test notification to the configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return testNotifications(cmd.Context(), cmd, cfg, args)
		},
	})

	return cmd
}

func testNotifications(ctx context.Context, cmd *cobra.Command, cfg *config.Config, names []string) error {
	mgr, err := notification.NewManagerFromConfig(cfg.Notifications, config.GetTimeouts().HTTPClient)
	if err != nil {
		return err
	}
	defer mgr.Stop()

	if len(names) == 0 {
		names = mgr.ListProviders()
	}
	if len(names) == 0 {
		return errors.New("no notification providers configured")
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, name := range names {
		if err := mgr.TestProvider(ctx, name); err != nil {
			fmt.Fprintf(out, "%s: FAILED: %v\n", name, err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s: ok\n", name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d providers failed", failed, len(names))
	}
	return nil
}
