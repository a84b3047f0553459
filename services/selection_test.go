package services

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-birthdays/config"
	"paper-birthdays/models"
	"paper-birthdays/repository"
)

// fakeSource serves canned papers per (date, category) key and counts
// fetches. Categories that were never seeded come up empty, like a real
// filtered query.
type fakeSource struct {
	papersByKey map[string][]*models.Paper
	failDates   map[string]bool
	calls       int
}

func sourceKey(day time.Time, category string) string {
	return day.Format("2006-01-02") + "|" + category
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) FetchByDate(ctx context.Context, day time.Time, category string) ([]*models.Paper, error) {
	s.calls++
	date := day.Format("2006-01-02")
	if s.failDates[date] {
		return nil, fmt.Errorf("fetch failed for %s", date)
	}
	return s.papersByKey[sourceKey(day, category)], nil
}

// fakeEnricher applies a citation map, optionally reporting a partial failure.
type fakeEnricher struct {
	citations map[string]int
	err       error
	calls     int
}

func (e *fakeEnricher) Enrich(ctx context.Context, papers []*models.Paper) error {
	e.calls++
	for _, p := range papers {
		if c, ok := e.citations[p.ArxivID]; ok {
			p.CitationCount = c
		}
	}
	return e.err
}

// fakePapers archives papers in memory and assigns IDs on first insert.
type fakePapers struct {
	byArxivID map[string]*models.Paper
	byID      map[uint]*models.Paper
	nextID    uint
}

func newFakePapers() *fakePapers {
	return &fakePapers{
		byArxivID: make(map[string]*models.Paper),
		byID:      make(map[uint]*models.Paper),
		nextID:    1,
	}
}

func (s *fakePapers) Upsert(paper *models.Paper) (*models.Paper, error) {
	if existing, ok := s.byArxivID[paper.ArxivID]; ok {
		existing.CitationCount = paper.CitationCount
		existing.SemanticScholarID = paper.SemanticScholarID
		return existing, nil
	}
	stored := *paper
	stored.ID = s.nextID
	s.nextID++
	s.byArxivID[stored.ArxivID] = &stored
	s.byID[stored.ID] = &stored
	return &stored, nil
}

// fakeFeatured keeps shortlists in memory keyed by date and category.
type fakeFeatured struct {
	papers     *fakePapers
	shortlists map[string][]models.FeaturedPaper

	// rejectWrites simulates a concurrent run winning the unique constraint.
	rejectWrites bool

	// hideChosenOnce makes the first Chosen probe come up empty, as when the
	// concurrent run commits between our probe and our write.
	hideChosenOnce bool
}

func newFakeFeatured(papers *fakePapers) *fakeFeatured {
	return &fakeFeatured{papers: papers, shortlists: make(map[string][]models.FeaturedPaper)}
}

func featuredKey(featureDate time.Time, category string) string {
	return featureDate.Format("2006-01-02") + "|" + category
}

func (s *fakeFeatured) Chosen(featureDate time.Time, category string) (*repository.HistoryItem, error) {
	if s.hideChosenOnce {
		s.hideChosenOnce = false
		return nil, nil
	}
	for _, e := range s.shortlists[featuredKey(featureDate, category)] {
		if e.Chosen {
			p, ok := s.papers.byID[e.PaperID]
			if !ok {
				return nil, fmt.Errorf("dangling paper id %d", e.PaperID)
			}
			return &repository.HistoryItem{Entry: e, Paper: *p}, nil
		}
	}
	return nil, nil
}

func (s *fakeFeatured) ReplaceShortlist(featureDate time.Time, category string, entries []models.FeaturedPaper) (bool, error) {
	if s.rejectWrites {
		return false, nil
	}
	for i := range entries {
		entries[i].FeatureDate = featureDate
		entries[i].Category = category
	}
	s.shortlists[featuredKey(featureDate, category)] = entries
	return true, nil
}

// fakeRuns records ledger appends and answers the skip check.
type fakeRuns struct {
	records   []models.FetchRecord
	succeeded map[string]bool
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{succeeded: make(map[string]bool)}
}

func (s *fakeRuns) Record(fetchDate time.Time, fetchType, category string, papersFetched int, status, errMsg string) error {
	s.records = append(s.records, models.FetchRecord{
		FetchDate:     fetchDate,
		FetchType:     fetchType,
		Category:      category,
		PapersFetched: papersFetched,
		Status:        status,
		ErrorMessage:  errMsg,
	})
	if status == models.StatusSuccess {
		s.succeeded[featuredKey(fetchDate, category)] = true
	}
	return nil
}

func (s *fakeRuns) HasSucceeded(fetchDate time.Time, category string) (bool, error) {
	return s.succeeded[featuredKey(fetchDate, category)], nil
}

type testEnv struct {
	engine   *SelectionEngine
	source   *fakeSource
	enricher *fakeEnricher
	papers   *fakePapers
	featured *fakeFeatured
	runs     *fakeRuns
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{YearsBack: 10, ShortlistSize: 10, CacheTTL: time.Hour}
	source := &fakeSource{papersByKey: make(map[string][]*models.Paper), failDates: make(map[string]bool)}
	enricher := &fakeEnricher{citations: make(map[string]int)}
	papers := newFakePapers()
	featured := newFakeFeatured(papers)
	runs := newFakeRuns()

	engine := NewSelectionEngine(cfg, zap.NewNop(), source, enricher, papers, featured, runs)
	engine.Rand = rand.New(rand.NewSource(42))

	return &testEnv{engine: engine, source: source, enricher: enricher,
		papers: papers, featured: featured, runs: runs}
}

var testTarget = time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

// seedWindow puts n papers on each window date of the uncategorized stream,
// with the given citation counts consumed in order.
func (env *testEnv) seedWindow(perDate int, citations []int) {
	i := 0
	for _, d := range WindowDates(testTarget, env.engine.Config.YearsBack) {
		key := sourceKey(d, "")
		for j := 0; j < perDate && i < len(citations); j++ {
			id := fmt.Sprintf("%d.%05d", d.Year()%100*100+6, i+1)
			env.source.papersByKey[key] = append(env.source.papersByKey[key], &models.Paper{
				ArxivID:       id,
				Title:         "Paper " + id,
				SubmittedDate: d,
			})
			env.enricher.citations[id] = citations[i]
			i++
		}
	}
}

func TestSelectDailyPaperEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	citations := make([]int, 20)
	for i := range citations {
		citations[i] = (i + 1) * 100 // 100..2000
	}
	env.seedWindow(2, citations)

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, item)

	assert.Equal(t, 10, env.source.calls, "one fetch per window date")
	assert.Equal(t, 1, env.enricher.calls)

	entries := env.featured.shortlists[featuredKey(testTarget, "")]
	require.Len(t, entries, 10)

	// Ranks 1..10 hold the ten highest citation counts, descending.
	chosen := 0
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		p := env.papers.byID[e.PaperID]
		require.NotNil(t, p)
		assert.Equal(t, 2000-i*100, p.CitationCount)
		if e.Chosen {
			chosen++
			assert.Equal(t, p.ArxivID, item.Paper.ArxivID)
			assert.Equal(t, e.Rank, item.Entry.Rank)
		}
	}
	assert.Equal(t, 1, chosen, "exactly one entry is chosen")

	// Every candidate is archived, not just the shortlist.
	assert.Len(t, env.papers.byArxivID, 20)

	require.Len(t, env.runs.records, 1)
	assert.Equal(t, models.StatusSuccess, env.runs.records[0].Status)
	assert.Equal(t, models.FetchTypeDaily, env.runs.records[0].FetchType)
	assert.Equal(t, 20, env.runs.records[0].PapersFetched)
}

func TestSelectDailyPaperIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedWindow(1, []int{50, 40, 30, 20, 10, 9, 8, 7, 6, 5})

	first, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, first)
	fetchesAfterFirst := env.source.calls

	// Second call is served from cache.
	second, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, fetchesAfterFirst, env.source.calls)
	assert.Equal(t, first.Paper.ArxivID, second.Paper.ArxivID)

	// With the cache cleared, the persisted pick is returned unchanged and
	// still nothing is re-fetched or re-rolled.
	env.engine.Cache.Invalidate("2025-06-15_all")
	third, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, fetchesAfterFirst, env.source.calls)
	assert.Equal(t, first.Paper.ArxivID, third.Paper.ArxivID)
	assert.Len(t, env.runs.records, 1, "rerun adds no ledger entry")
}

func TestSelectDailyPaperDeterministicForSeed(t *testing.T) {
	pick := func() string {
		env := newTestEnv(t)
		citations := make([]int, 20)
		for i := range citations {
			citations[i] = (i + 1) * 100
		}
		env.seedWindow(2, citations)
		item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
		require.NoError(t, err)
		require.NotNil(t, item)
		return item.Paper.ArxivID
	}
	assert.Equal(t, pick(), pick(), "same seed and data give the same pick")
}

func TestSelectDailyPaperPartialFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedWindow(1, []int{50, 40, 30, 20, 10, 9, 8, 7, 6, 5})
	dates := WindowDates(testTarget, 10)
	for _, d := range dates[:3] {
		env.source.failDates[d.Format("2006-01-02")] = true
	}

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, item, "a selection still happens from the reachable dates")

	require.Len(t, env.runs.records, 1)
	assert.Equal(t, models.StatusPartial, env.runs.records[0].Status)
	assert.Contains(t, env.runs.records[0].ErrorMessage, "3 of 10")

	entries := env.featured.shortlists[featuredKey(testTarget, "")]
	assert.Len(t, entries, 7, "only papers from reachable dates are ranked")
}

func TestSelectDailyPaperEnrichmentFailureIsPartial(t *testing.T) {
	env := newTestEnv(t)
	env.seedWindow(1, []int{5, 4, 3})
	env.enricher.err = fmt.Errorf("2 citation batch(es) unresolved")

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, item)

	require.Len(t, env.runs.records, 1)
	assert.Equal(t, models.StatusPartial, env.runs.records[0].Status)
}

func TestSelectDailyPaperNoCandidates(t *testing.T) {
	env := newTestEnv(t)

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "cs.AI")
	require.NoError(t, err)
	assert.Nil(t, item)

	require.Len(t, env.runs.records, 1)
	assert.Equal(t, models.StatusFailed, env.runs.records[0].Status)
	assert.Equal(t, models.FetchTypeCategory, env.runs.records[0].FetchType)
	assert.Empty(t, env.featured.shortlists)
}

func TestSelectDailyPaperShortlistSmallerThanLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seedWindow(1, []int{30, 20, 10, 5})

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, item)

	entries := env.featured.shortlists[featuredKey(testTarget, "")]
	assert.Len(t, entries, 4, "fewer candidates than the limit keep the full set")
}

func TestSelectDailyPaperConcurrentWriterWins(t *testing.T) {
	env := newTestEnv(t)
	env.seedWindow(1, []int{30, 20, 10})

	// The concurrent run commits between our empty probe and our write; our
	// shortlist is rejected by the unique constraint and theirs stands.
	winner, err := env.papers.Upsert(&models.Paper{ArxivID: "9906.00099", CitationCount: 999})
	require.NoError(t, err)
	env.featured.shortlists[featuredKey(testTarget, "")] = []models.FeaturedPaper{
		{PaperID: winner.ID, Rank: 1, Chosen: true},
	}
	env.featured.rejectWrites = true
	env.featured.hideChosenOnce = true

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "9906.00099", item.Paper.ArxivID, "the concurrent winner's pick is returned")
}

func TestSelectDailyPaperReturnsStoredPickWithoutFetching(t *testing.T) {
	env := newTestEnv(t)
	stored, err := env.papers.Upsert(&models.Paper{ArxivID: "2106.01234", CitationCount: 123})
	require.NoError(t, err)
	env.featured.shortlists[featuredKey(testTarget, "")] = []models.FeaturedPaper{
		{PaperID: stored.ID, Rank: 2, Chosen: true},
	}

	item, err := env.engine.SelectDailyPaper(context.Background(), testTarget, "")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "2106.01234", item.Paper.ArxivID)
	assert.Zero(t, env.source.calls, "persisted selection short-circuits fetching")
}

func TestRankPapersOrderAndCap(t *testing.T) {
	papers := []*models.Paper{
		{ArxivID: "a", CitationCount: 10},
		{ArxivID: "b", CitationCount: 30},
		{ArxivID: "c", CitationCount: 20},
		{ArxivID: "d", CitationCount: 30},
	}

	ranked := RankPapers(papers, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].ArxivID, "ties break by arXiv ID ascending")
	assert.Equal(t, "d", ranked[1].ArxivID)
	assert.Equal(t, "c", ranked[2].ArxivID)

	// Input order is untouched.
	assert.Equal(t, "a", papers[0].ArxivID)
}

func TestRankPapersDeterministicUnderShuffle(t *testing.T) {
	build := func() []*models.Paper {
		var papers []*models.Paper
		for i := 0; i < 15; i++ {
			papers = append(papers, &models.Paper{
				ArxivID:       fmt.Sprintf("2401.%05d", i+1),
				CitationCount: (i * 7) % 5, // plenty of ties
			})
		}
		return papers
	}

	a := build()
	b := build()
	rand.New(rand.NewSource(7)).Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })

	ra := RankPapers(a, 10)
	rb := RankPapers(b, 10)
	require.Len(t, rb, 10)
	for i := range ra {
		assert.Equal(t, ra[i].ArxivID, rb[i].ArxivID)
	}
}
