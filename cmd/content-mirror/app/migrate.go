package app

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/stacklok/content-mirror/database"
	"github.com/stacklok/content-mirror/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the schema of the postgres store",
		Long: `Manage the schema of the postgres store. Pending migrations are also applied
whenever the postgres store is opened; use these subcommands to inspect or roll back.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
	downCmd.Flags().UintP("num-steps", "n", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  runMigrateVersion,
	})

	return cmd
}

// postgresConnString returns the connection string of the configured postgres store
func postgresConnString(cmd *cobra.Command) (string, *config.DatabaseConfig, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", nil, err
	}
	if cfg.Storage.GetType() != config.StorageTypePostgres || cfg.Storage.Database == nil {
		return "", nil, fmt.Errorf("migrations need storage.type postgres with storage.database set")
	}
	connString, err := cfg.Storage.Database.GetConnectionString()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build connection string: %w", err)
	}
	return connString, cfg.Storage.Database, nil
}

// confirm asks before a schema change unless --yes was given
func confirm(cmd *cobra.Command, action string, db *config.DatabaseConfig) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, fmt.Errorf("failed to get yes flag: %w", err)
	}
	if yes {
		return true, nil
	}

	cmd.Printf("About to %s on %s@%s:%d/%s. Continue? (yes/no): ", action, db.User, db.Host, db.Port, db.Database)
	response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes" || response == "y", nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	connString, db, err := postgresConnString(cmd)
	if err != nil {
		return err
	}
	ok, err := confirm(cmd, "apply pending migrations", db)
	if err != nil || !ok {
		return err
	}

	if err := database.MigrateUp(connString); err != nil {
		return err
	}
	slog.Info("Migrations applied")
	return printSchemaVersion(cmd, connString)
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	steps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	connString, db, err := postgresConnString(cmd)
	if err != nil {
		return err
	}
	ok, err := confirm(cmd, fmt.Sprintf("roll back %d migration(s)", steps), db)
	if err != nil || !ok {
		return err
	}

	if err := database.MigrateDown(connString, int(steps)); err != nil {
		return err
	}
	slog.Info("Migrations rolled back", "steps", steps)
	return printSchemaVersion(cmd, connString)
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	connString, _, err := postgresConnString(cmd)
	if err != nil {
		return err
	}
	return printSchemaVersion(cmd, connString)
}

func printSchemaVersion(cmd *cobra.Command, connString string) (err error) {
	m, err := database.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema version: none")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d (dirty)\n", version)
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return err
}
