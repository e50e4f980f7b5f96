package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	mirrorapp "github.com/stacklok/content-mirror/internal/app"
	"github.com/stacklok/content-mirror/internal/content"
	"github.com/stacklok/content-mirror/internal/mirror"
)

// runWithMirror builds the mirror from the configuration, runs fn against it and closes it
func runWithMirror(cmd *cobra.Command, fn func(ctx context.Context, svc mirror.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	components, err := mirrorapp.BuildComponents(ctx, mirrorapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build mirror: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			cmd.PrintErrf("failed to close store: %v\n", err)
		}
	}()

	return fn(ctx, components.Mirror)
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync round and print what it applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			return runWithMirror(cmd, func(ctx context.Context, svc mirror.Service) error {
				result, err := svc.Sync(ctx)
				if err != nil {
					return err
				}
				return printSyncResult(cmd.OutOrStdout(), result, format)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

// newRecordsCmd builds a command that syncs and prints the records returned by get
func newRecordsCmd(use, short string, get func(mirror.Service, context.Context) ([]content.Record, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			return runWithMirror(cmd, func(ctx context.Context, svc mirror.Service) error {
				records, err := get(svc, ctx)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), records, format)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func newEntriesCmd() *cobra.Command {
	return newRecordsCmd("entries", "Sync, then print all entries", mirror.Service.GetEntries)
}

func newAssetsCmd() *cobra.Command {
	return newRecordsCmd("assets", "Sync, then print all assets", mirror.Service.GetAssets)
}

func newAllCmd() *cobra.Command {
	return newRecordsCmd("all", "Sync, then print all entries followed by all assets", mirror.Service.GetAll)
}

func newResolvedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolved",
		Short: "Sync, then print all entries with their links resolved",
		Long: `Sync, then print all entries with links to entries and assets replaced by the
linked records. Links that cannot be followed are kept as markers with a reason
(missing, cycle or depth).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			return runWithMirror(cmd, func(ctx context.Context, svc mirror.Service) error {
				resolved, err := svc.GetResolvedEntries(ctx)
				if err != nil {
					return err
				}
				return printResolved(cmd.OutOrStdout(), resolved, format)
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}
