package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/inward-bound/internal/cli"
	"github.com/Veraticus/inward-bound/internal/config"
	"github.com/Veraticus/inward-bound/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for the application to function properly.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	statusOnly, _ := cmd.Flags().GetBool("status")

	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/inward/inward.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if statusOnly {
		version, verErr := store.SchemaVersion(ctx)
		if verErr != nil {
			return verErr
		}
		fmt.Println(cli.FormatTitle(fmt.Sprintf("%s Database Migration Status", cli.ChartIcon)))
		fmt.Printf("  Database: %s\n", dbPath)
		fmt.Printf("  Current version: %d\n", version)
		fmt.Printf("  Latest version:  %d\n", storage.ExpectedSchemaVersion)
		if version == storage.ExpectedSchemaVersion {
			fmt.Println(cli.FormatSuccess("Schema is up to date"))
		} else {
			fmt.Println(cli.FormatWarning("Migrations pending, run 'inward migrate' to apply"))
		}
		return nil
	}

	slog.Info("Running database migrations", "database", dbPath)

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Database migrations completed successfully"))
	return nil
}
