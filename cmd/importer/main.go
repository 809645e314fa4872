package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"labdash/internal/config"
	"labdash/internal/models"
	"labdash/internal/repository"
	"labdash/internal/services"
	"labdash/internal/tabular"
	"labdash/pkg/database"
	"labdash/pkg/logging"
	"labdash/pkg/metrics"
)

const version = "1.0.0"

// app holds what every subcommand needs once configuration is loaded
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	db      *database.PostgresDB
	repo    repository.MeasurementRepository
}

var (
	logLevel string
	dryRun   bool
	sheet    string
	sepFlag  string
	outPath  string
)

var rootCmd = &cobra.Command{
	Use:           "importer",
	Short:         "Import, export and summarize lab measurements",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var importCmd = &cobra.Command{
	Use:   "import <category> <file>",
	Short: "Import a spreadsheet or delimited file into a category",
	Long: `Validates every row of the file against the category's required fields
and stores the valid ones. Rows that fail are reported as "Row N: reason"
using spreadsheet row numbers.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export <category>",
	Short: "Write a category as SQL INSERT statements",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var statsCmd = &cobra.Command{
	Use:   "stats [category]",
	Short: "Print count, mean, extremes and standard deviation",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and report without writing to the database")
	importCmd.Flags().StringVar(&sheet, "sheet", "", "worksheet to read (default: first sheet)")
	importCmd.Flags().StringVar(&sepFlag, "separator", "", `field separator for delimited files (e.g. ";" or "tab")`)

	exportCmd.Flags().StringVarP(&outPath, "output", "o", "", "file to write (default: stdout)")

	rootCmd.AddCommand(importCmd, exportCmd, statsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and, unless memory is set, connects to Postgres
func setup(memory bool) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logging.NewStructuredLogger("labdash-importer", version, logging.ParseLevel(cfg.Logging.Level)),
		metrics: metrics.NewCollector("labdash_importer"),
	}

	if memory {
		a.repo = repository.NewMemoryRepository()
		return a, nil
	}

	a.db, err = database.NewPostgresDB(cfg.DatabaseOptions(), a.logger, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.repo = repository.NewMeasurementRepository(a.db, a.logger, a.metrics)

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	category, path := args[0], args[1]

	a, err := setup(dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	delimiter := a.cfg.Import.DefaultDelimiter
	if sepFlag != "" {
		if delimiter, err = tabular.ParseDelimiter(sepFlag); err != nil {
			return err
		}
	}

	a.logger.Info(ctx, "[IMPORTER_START] Starting file import", logging.Fields{
		"version":  version,
		"category": category,
		"file":     path,
		"dry_run":  dryRun,
	})

	ingestion := services.NewIngestionService(a.repo, a.logger, a.metrics, a.cfg.Import.MaxReportedErrors)

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	parser := tabular.ForFilename(path, delimiter)
	if sp, ok := parser.(*tabular.SpreadsheetParser); ok {
		sp.Sheet = sheet
	}

	result, err := ingestion.ImportSource(ctx, parser, file, category)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Repeat("=", 80))
	if dryRun {
		fmt.Fprintln(out, "IMPORT COMPLETE (dry run, nothing written)")
	} else {
		fmt.Fprintln(out, "IMPORT COMPLETE")
	}
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Batch:      %s\n", result.BatchID)
	fmt.Fprintf(out, "Category:   %s\n", result.Category)
	fmt.Fprintf(out, "Rows:       %d\n", result.TotalRows)
	fmt.Fprintf(out, "Inserted:   %d\n", result.Inserted)
	fmt.Fprintf(out, "Errors:     %d\n", result.ErrorCount)
	fmt.Fprintf(out, "Duration:   %v\n", result.Duration)
	fmt.Fprintf(out, "Result:     %s\n", result.Message)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", result.ErrorCount)
		for _, msg := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", msg)
		}
		if hidden := result.ErrorCount - len(result.Errors); hidden > 0 {
			fmt.Fprintf(out, "  ... and %d more errors\n", hidden)
		}
	}

	if !result.Success {
		return fmt.Errorf("import failed: %s", result.Message)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	category, err := models.ParseCategory(args[0])
	if err != nil {
		return err
	}

	a, err := setup(false)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if outPath != "" {
		file, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer file.Close()
		out = file
	}

	measurements := services.NewMeasurementService(a.repo, a.logger, a.metrics)
	n, err := measurements.ExportSQL(ctx, category, out)
	if err != nil {
		return err
	}

	if outPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d %s measurements to %s\n", n, category, outPath)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(false)
	if err != nil {
		return err
	}
	defer a.close()

	measurements := services.NewMeasurementService(a.repo, a.logger, a.metrics)

	var all []*models.CategoryStatistics
	if len(args) == 1 {
		category, err := models.ParseCategory(args[0])
		if err != nil {
			return err
		}
		stats, err := measurements.GetStatistics(ctx, repository.MeasurementFilter{Category: category})
		if err != nil {
			return err
		}
		all = append(all, stats)
	} else if all, err = measurements.GetAllStatistics(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-15s %8s %12s %12s %12s %12s\n", "CATEGORY", "TOTAL", "AVERAGE", "MINIMUM", "MAXIMUM", "STDDEV")
	for _, s := range all {
		fmt.Fprintf(out, "%-15s %8d %12s %12s %12s %12s\n",
			s.Category, s.Total, number(s.Average), number(s.Minimum), number(s.Maximum), number(s.StandardDeviation))
	}
	return nil
}

func number(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}
