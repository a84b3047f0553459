// Command dailyjob runs the daily paper selection for one date across a set
// of arXiv categories. It is the batch counterpart of the HTTP server and is
// meant to be driven by an external scheduler.
//
// Exit codes: 0 all categories succeeded, 1 some failed, 2 none succeeded,
// 130 interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-birthdays/config"
	"paper-birthdays/models"
	"paper-birthdays/providers/arxiv"
	"paper-birthdays/providers/semanticscholar"
	"paper-birthdays/repository"
	"paper-birthdays/services"
	"paper-birthdays/storage"
)

const (
	ExitOK          = 0
	ExitPartial     = 1
	ExitFailed      = 2
	ExitInterrupted = 130
)

var (
	flagDate     string
	flagCategory string
	flagDryRun   bool
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "dailyjob",
	Short: "Select the daily featured paper for each configured category",
	Long: `dailyjob searches the last N years of arXiv submissions sharing the
target date's month and day, ranks them by citation count and persists a
shortlist with one uniformly random pick per category. Categories that
already have a successful run for the date are skipped.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&flagDate, "date", "", "Feature date as YYYY-MM-DD (default: today, UTC)")
	rootCmd.Flags().StringVar(&flagCategory, "category", "", "Process only this category instead of the configured list")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Log what would happen without fetching or persisting")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
}

// exitCode is set by run and consumed by main once all defers have unwound.
var exitCode int

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitFailed)
	}
	os.Exit(exitCode)
}

func run(cmd *cobra.Command, args []string) error {
	logging, err := newLogger(flagVerbose)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	featureDate := time.Now().UTC()
	adhoc := false
	if flagDate != "" {
		featureDate, err = time.Parse("2006-01-02", flagDate)
		if err != nil {
			return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", flagDate)
		}
		adhoc = true
	}

	categories := cfg.CategoryList()
	if cmd.Flags().Changed("category") {
		categories = []string{flagCategory}
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	db.AutoMigrate(&models.Paper{}, &models.FeaturedPaper{}, &models.FetchRecord{})

	papers := repository.NewPapers(db)
	featured := repository.NewFeatured(db)
	runs := repository.NewRuns(db)

	source := arxiv.NewFetcher(cfg, logging)
	enricher := semanticscholar.NewFetcher(cfg, logging)
	engine := services.NewSelectionEngine(cfg, logging, source, enricher, papers, featured, runs)
	engine.AdHoc = adhoc

	batch := &services.BatchRunner{
		Engine: engine,
		Runs:   runs,
		Logger: logging,
		Budget: cfg.CategoryBudget,
		Pause:  2 * time.Second,
		DryRun: flagDryRun,
	}

	if cfg.SnapshotsEnabled && !flagDryRun {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			return fmt.Errorf("creating S3 client: %w", err)
		}
		batch.Exporter = &storage.SnapshotExporter{
			Client:   s3Client,
			Bucket:   cfg.S3Bucket,
			Featured: featured,
			Papers:   papers,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting daily selection batch",
		zap.String("feature_date", featureDate.Format("2006-01-02")),
		zap.Int("categories", len(categories)),
		zap.Bool("dry_run", flagDryRun))

	ok, failed := batch.Run(ctx, featureDate, categories)

	logging.Info("Batch finished",
		zap.Int("succeeded", ok), zap.Int("failed", failed))

	if ctx.Err() != nil {
		logging.Warn("Interrupted")
		exitCode = ExitInterrupted
		return nil
	}
	exitCode = services.ExitCode(ok, failed)
	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
