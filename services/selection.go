// Package services holds the daily selection pipeline: window calculation,
// candidate fetching, citation enrichment, ranking and the randomized pick.
package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"paper-birthdays/config"
	"paper-birthdays/models"
	"paper-birthdays/providers"
	"paper-birthdays/repository"
)

// PaperStore is the slice of the paper repository the engine needs.
type PaperStore interface {
	Upsert(paper *models.Paper) (*models.Paper, error)
}

// FeatureStore persists daily shortlists.
type FeatureStore interface {
	Chosen(featureDate time.Time, category string) (*repository.HistoryItem, error)
	ReplaceShortlist(featureDate time.Time, category string, entries []models.FeaturedPaper) (bool, error)
}

// RunLog is the append-only fetch ledger.
type RunLog interface {
	Record(fetchDate time.Time, fetchType, category string, papersFetched int, status, errMsg string) error
}

// Enricher fills in citation counts for a candidate set.
type Enricher interface {
	Enrich(ctx context.Context, papers []*models.Paper) error
}

// SelectionEngine runs the pipeline for one (feature date, category) key:
// cache check, historical window, per-date fetch, dedupe, enrichment,
// ranking, atomic shortlist persistence and the uniformly random pick.
type SelectionEngine struct {
	Config   *config.Config
	Logger   *zap.Logger
	Source   providers.Provider
	Enricher Enricher
	Papers   PaperStore
	Featured FeatureStore
	Runs     RunLog
	Cache    *Cache

	// Rand drives the shortlist pick; injected so tests can be exact.
	Rand *rand.Rand

	// AdHoc marks runs for an explicitly requested date, recorded as such
	// in the ledger.
	AdHoc bool
}

// NewSelectionEngine wires the pipeline with all collaborators explicit.
func NewSelectionEngine(cfg *config.Config, logger *zap.Logger, source providers.Provider,
	enricher Enricher, papers PaperStore, featured FeatureStore, runs RunLog) *SelectionEngine {
	return &SelectionEngine{
		Config:   cfg,
		Logger:   logger,
		Source:   source,
		Enricher: enricher,
		Papers:   papers,
		Featured: featured,
		Runs:     runs,
		Cache:    NewCache(cfg.CacheTTL),
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectDailyPaper returns the chosen paper for the key, computing and
// persisting the shortlist on first call. A (nil, nil) result means no paper
// is available for this date and category, which is a valid outcome.
func (e *SelectionEngine) SelectDailyPaper(ctx context.Context, featureDate time.Time, category string) (*repository.HistoryItem, error) {
	log := e.Logger.With(
		zap.String("feature_date", featureDate.Format("2006-01-02")),
		zap.String("category", category))

	cacheKey := featureDate.Format("2006-01-02") + "_" + displayCategory(category)
	if item, ok := e.Cache.Get(cacheKey); ok {
		log.Debug("Cache hit")
		return item, nil
	}

	// The persisted shortlist is the source of truth; a previous run's pick
	// is returned as-is, with no new fetches and no re-roll.
	existing, err := e.Featured.Chosen(featureDate, category)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info("Selection already persisted, returning stored pick",
			zap.Int("rank", existing.Entry.Rank))
		e.Cache.Set(cacheKey, existing)
		return existing, nil
	}

	dates := WindowDates(featureDate, e.Config.YearsBack)
	log.Info("Searching historical window", zap.Int("dates", len(dates)))

	candidates, failedDates := e.fetchCandidates(ctx, log, dates, category)

	var enrichFailed bool
	if len(candidates) > 0 {
		if err := e.Enricher.Enrich(ctx, candidates); err != nil {
			log.Warn("Citation enrichment incomplete", zap.Error(err))
			enrichFailed = true
		}
	}

	if len(candidates) == 0 {
		status := models.StatusFailed
		msg := "no papers found across window"
		if failedDates == 0 {
			// Every fetch worked and the window is legitimately empty.
			msg = "no eligible papers for this date"
		}
		e.record(log, featureDate, category, 0, status, msg)
		log.Warn("No paper available", zap.Int("failed_dates", failedDates))
		return nil, nil
	}

	// Archive everything observed, shortlisted or not, and swap in the
	// stored rows so shortlist entries reference canonical paper IDs.
	stored := make([]*models.Paper, 0, len(candidates))
	for _, p := range candidates {
		sp, err := e.Papers.Upsert(p)
		if err != nil {
			return nil, fmt.Errorf("archiving paper %s: %w", p.ArxivID, err)
		}
		stored = append(stored, sp)
	}

	top := RankPapers(stored, e.Config.ShortlistSize)

	entries := make([]models.FeaturedPaper, len(top))
	for i, p := range top {
		entries[i] = models.FeaturedPaper{PaperID: p.ID, Rank: i + 1}
	}
	chosenIdx := e.Rand.Intn(len(entries))
	entries[chosenIdx].Chosen = true

	wrote, err := e.Featured.ReplaceShortlist(featureDate, category, entries)
	if err != nil {
		return nil, err
	}
	if !wrote {
		// A concurrent run won the unique constraint; its set stands.
		log.Info("Shortlist already written by a concurrent run")
		return e.Featured.Chosen(featureDate, category)
	}

	status := models.StatusSuccess
	if failedDates > 0 || enrichFailed {
		status = models.StatusPartial
	}
	errMsg := ""
	if failedDates > 0 {
		errMsg = fmt.Sprintf("%d of %d date fetches failed", failedDates, len(dates))
	}
	e.record(log, featureDate, category, len(candidates), status, errMsg)

	item := &repository.HistoryItem{Entry: entries[chosenIdx], Paper: *top[chosenIdx]}
	item.Entry.FeatureDate = featureDate
	item.Entry.Category = category
	e.Cache.Set(cacheKey, item)

	log.Info("Daily paper selected",
		zap.String("arxiv_id", item.Paper.ArxivID),
		zap.Int("citations", item.Paper.CitationCount),
		zap.Int("rank", item.Entry.Rank),
		zap.Int("shortlist", len(entries)),
		zap.String("status", status))
	return item, nil
}

// fetchCandidates queries the source for each window date sequentially and
// dedupes by arXiv ID. A failed date is counted and skipped, never fatal.
func (e *SelectionEngine) fetchCandidates(ctx context.Context, log *zap.Logger, dates []time.Time, category string) ([]*models.Paper, int) {
	seen := make(map[string]struct{})
	var candidates []*models.Paper
	var failed int

	for _, day := range dates {
		papers, err := e.Source.FetchByDate(ctx, day, category)
		if err != nil {
			failed++
			log.Warn("Date fetch failed",
				zap.String("date", day.Format("2006-01-02")), zap.Error(err))
			continue
		}
		for _, p := range papers {
			if _, dup := seen[p.ArxivID]; dup {
				continue
			}
			seen[p.ArxivID] = struct{}{}
			candidates = append(candidates, p)
		}
	}
	return candidates, failed
}

// RankPapers orders papers by citation count descending, arXiv ID ascending
// on ties, and returns at most limit entries. The tie-break keeps reruns
// deterministic for a fixed candidate set.
func RankPapers(papers []*models.Paper, limit int) []*models.Paper {
	ranked := make([]*models.Paper, len(papers))
	copy(ranked, papers)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CitationCount != ranked[j].CitationCount {
			return ranked[i].CitationCount > ranked[j].CitationCount
		}
		return ranked[i].ArxivID < ranked[j].ArxivID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func (e *SelectionEngine) record(log *zap.Logger, featureDate time.Time, category string, fetched int, status, errMsg string) {
	kind := models.FetchTypeDaily
	switch {
	case e.AdHoc:
		kind = models.FetchTypeAdhoc
	case category != "":
		kind = models.FetchTypeCategory
	}
	if err := e.Runs.Record(featureDate, kind, category, fetched, status, errMsg); err != nil {
		log.Error("Failed to write fetch record", zap.Error(err))
	}
}

func displayCategory(category string) string {
	if category == "" {
		return "all"
	}
	return category
}
