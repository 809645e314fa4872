package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"labdash/internal/config"
	"labdash/migrations"
	"labdash/pkg/database"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

var rootCmd = &cobra.Command{
	Use:           "migrate [up|down]",
	Short:         "Apply or revert the embedded database schema",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runMigrate,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	direction := migrations.Up
	if len(args) == 1 {
		d, err := migrations.ParseDirection(args[0])
		if err != nil {
			return err
		}
		direction = d
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewStructuredLogger("labdash-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	collector := metrics.NewCollector("labdash_migrate")

	db, err := database.NewPostgresDB(cfg.DatabaseOptions(), logger, collector)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Connected to database successfully")

	ran, err := migrations.Apply(ctx, db, direction, logger)
	for _, name := range ran {
		fmt.Fprintf(cmd.OutOrStdout(), "Applied: %s\n", name)
	}
	if err != nil {
		return err
	}

	if len(ran) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do, schema is current")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully")
	return nil
}
