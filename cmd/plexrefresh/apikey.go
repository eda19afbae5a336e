package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltyorg/plexrefresh/internal/auth"
)

func newAPIKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apikey",
		Short: "Generate an API key for the webhook server",
		Long: `Generate a random API key. Give the key to webhook clients and put either the
key or its bcrypt hash in server.api_key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API key:  %s\n", key)
			fmt.Fprintf(out, "Hash:     %s\n", hash)
			return nil
		},
	}
}
