package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/saltyorg/plexrefresh/internal/database"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent refreshes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			refreshes, err := db.ListRecentRefreshes(limit)
			if err != nil {
				return err
			}
			if len(refreshes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No refreshes recorded")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(refreshes))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of refreshes to show")
	cmd.AddCommand(newHistoryPruneCmd())
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old refreshes and compact the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			deleted, err := db.CleanupRefreshes(time.Duration(days) * 24 * time.Hour)
			if err != nil {
				return err
			}
			if err := db.Vacuum(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d refreshes older than %d days\n", deleted, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Keep refreshes newer than this many days (0 deletes every finished refresh)")
	return cmd
}

func renderHistory(refreshes []*database.Refresh) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Started", "Source", "Status", "Strategy", "Rating Key", "Took", "File", "Error"})

	for _, r := range refreshes {
		took := "-"
		if d := r.Duration(); d > 0 {
			took = d.Round(time.Millisecond).String()
		}
		tw.AppendRow(table.Row{
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Source,
			string(r.Status),
			dash(r.Strategy),
			dash(r.RatingKey),
			took,
			r.FilePath,
			dash(firstLine(r.Error)),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 7, WidthMax: 60},
		{Number: 8, WidthMax: 40},
	})

	return tw.Render()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
