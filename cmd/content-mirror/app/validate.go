package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(w, "Valid configuration")
			_, _ = fmt.Fprintf(w, "  Upstream: %s (space %s, environment %s)\n",
				cfg.Upstream.BaseURL, cfg.Upstream.SpaceID, cfg.Upstream.GetEnvironment())
			if cfg.Upstream.ContentType != "" {
				_, _ = fmt.Fprintf(w, "  Content type: %s\n", cfg.Upstream.ContentType)
			}
			_, _ = fmt.Fprintf(w, "  Storage: %s\n", cfg.Storage.GetType())
			if path := cfg.GetStatePath(); path != "" {
				_, _ = fmt.Fprintf(w, "  State: %s\n", path)
			}
			_, _ = fmt.Fprintf(w, "  Sync interval: %s\n", cfg.GetSyncInterval())
			return nil
		},
	}
}
