package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunLedger extends RunLog with the skip check the batch runner uses.
type RunLedger interface {
	RunLog
	HasSucceeded(fetchDate time.Time, category string) (bool, error)
}

// Exporter archives a persisted shortlist somewhere external (e.g. S3).
type Exporter interface {
	ExportShortlist(ctx context.Context, featureDate time.Time, category string) error
}

// BatchRunner processes a list of categories for one feature date. Categories
// run strictly sequentially: both providers are rate-limited per process, so
// parallelism would only fight over the same throttle buckets.
type BatchRunner struct {
	Engine *SelectionEngine
	Runs   RunLedger
	Logger *zap.Logger

	// Budget is the wall-clock limit per category; zero means no limit.
	Budget time.Duration

	// Pause between categories, a small courtesy to the providers.
	Pause time.Duration

	// DryRun logs what would happen without fetching or persisting.
	DryRun bool

	// Exporter, when set, receives every freshly persisted shortlist.
	Exporter Exporter
}

// Run processes every category in order and returns the success and failure
// counts. A category already recorded as successful for the date is skipped
// and counted as a success.
func (b *BatchRunner) Run(ctx context.Context, featureDate time.Time, categories []string) (succeeded, failed int) {
	for i, category := range categories {
		log := b.Logger.With(
			zap.String("category", displayCategory(category)),
			zap.Int("index", i+1),
			zap.Int("total", len(categories)))

		if err := ctx.Err(); err != nil {
			log.Warn("Batch aborted", zap.Error(err))
			failed += len(categories) - i
			return succeeded, failed
		}

		if b.runOne(ctx, log, featureDate, category) {
			succeeded++
			log.Info("Category completed")
		} else {
			failed++
			log.Warn("Category failed")
		}

		if b.Pause > 0 && i < len(categories)-1 && !b.DryRun {
			select {
			case <-ctx.Done():
			case <-time.After(b.Pause):
			}
		}
	}
	return succeeded, failed
}

func (b *BatchRunner) runOne(ctx context.Context, log *zap.Logger, featureDate time.Time, category string) bool {
	if b.DryRun {
		log.Info("Dry run: would select daily paper",
			zap.String("feature_date", featureDate.Format("2006-01-02")))
		return true
	}

	done, err := b.Runs.HasSucceeded(featureDate, category)
	if err != nil {
		log.Error("Ledger check failed", zap.Error(err))
	} else if done {
		log.Info("Already fetched successfully, skipping")
		return true
	}

	runCtx := ctx
	if b.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.Budget)
		defer cancel()
	}

	item, err := b.Engine.SelectDailyPaper(runCtx, featureDate, category)
	if err != nil {
		log.Error("Selection failed", zap.Error(err))
		return false
	}
	if item == nil {
		log.Warn("No paper available for category")
		return false
	}

	if b.Exporter != nil {
		if err := b.Exporter.ExportShortlist(ctx, featureDate, category); err != nil {
			log.Warn("Shortlist export failed", zap.Error(err))
		}
	}

	log.Info("Selected paper",
		zap.String("arxiv_id", item.Paper.ArxivID),
		zap.Int("citations", item.Paper.CitationCount))
	return true
}

// ExitCode maps batch results onto the process exit contract: 0 when every
// category succeeded, 1 on partial failure, 2 when nothing succeeded.
func ExitCode(succeeded, failed int) int {
	switch {
	case failed == 0:
		return 0
	case succeeded > 0:
		return 1
	default:
		return 2
	}
}
