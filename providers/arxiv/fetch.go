// Package arxiv implements the bibliographic provider against the arXiv
// Atom API. arXiv asks for at most one request every three seconds; all
// traffic goes through the shared rate-limited client.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"paper-birthdays/config"
	"paper-birthdays/httpclient"
	"paper-birthdays/models"
	"paper-birthdays/providers"
)

// versionSuffix matches a trailing arXiv version marker like "v2".
var versionSuffix = regexp.MustCompile(`v\d+$`)

// Fetcher implements providers.Provider for arXiv.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *httpclient.Client

	baseURL  string
	pageSize int
}

// NewFetcher creates a new arXiv fetcher with its own throttle bucket.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	client := httpclient.New(httpclient.Options{
		MinInterval: cfg.ArxivMinInterval,
		Timeout:     cfg.ArxivTimeout,
		Retry: httpclient.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			BaseDelay:      cfg.RetryBaseDelay,
			MaxDelay:       cfg.RetryMaxDelay,
			JitterFraction: float64(cfg.RetryJitterPercent) / 100,
		},
	})
	return &Fetcher{
		Config:   cfg,
		Logger:   logger,
		Client:   client,
		baseURL:  cfg.ArxivBaseURL,
		pageSize: cfg.ArxivPageSize,
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "arxiv"
}

// FetchByDate returns every paper submitted on the given day, paginating
// until a short page signals the end of the result set.
func (f *Fetcher) FetchByDate(ctx context.Context, day time.Time, category string) ([]*models.Paper, error) {
	log := f.Logger.With(zap.String("date", day.Format("2006-01-02")), zap.String("category", category))

	dateStr := day.Format("20060102")
	query := fmt.Sprintf("submittedDate:[%s0000 TO %s2359]", dateStr, dateStr)
	if category != "" {
		query += " AND cat:" + category
	}

	var all []*models.Paper
	for start := 0; ; start += f.pageSize {
		feed, err := f.fetchPage(ctx, query, start)
		if err != nil {
			// Keep what earlier pages returned only if we have nothing at
			// all to lose; a partial day would skew the ranking silently.
			if len(all) == 0 {
				return nil, err
			}
			log.Warn("Pagination aborted, continuing with fetched pages",
				zap.Int("start", start), zap.Int("papers", len(all)), zap.Error(err))
			break
		}

		for i := range feed.Entries {
			if p := entryToPaper(&feed.Entries[i]); p != nil {
				all = append(all, p)
			}
		}

		if len(feed.Entries) < f.pageSize {
			break
		}
	}

	log.Info("arXiv date fetch complete", zap.Int("papers", len(all)))
	return all, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, query string, start int) (*Feed, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(f.pageSize))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &providers.ProviderError{Provider: f.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &providers.ProviderError{
			Provider:   f.Name(),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, &providers.ValidationError{Provider: f.Name(), Err: err}
	}
	return &feed, nil
}

// entryToPaper maps an Atom entry to the internal Paper model. Citation
// counts stay zero here; enrichment is a separate provider's job.
func entryToPaper(entry *Entry) *models.Paper {
	arxivID := extractArxivID(entry.ID)
	if arxivID == "" {
		return nil
	}

	authors := make(models.AuthorList, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, models.Author{Name: name})
		}
	}

	categories := make(models.StringList, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}
	primary := entry.PrimaryCategory.Term
	if primary == "" && len(categories) > 0 {
		primary = categories[0]
	}

	submitted, err := time.Parse(time.RFC3339, entry.Published)
	if err != nil {
		return nil
	}
	submitted = submitted.UTC().Truncate(24 * time.Hour)

	var updatedDate *time.Time
	if entry.Updated != "" {
		if t, err := time.Parse(time.RFC3339, entry.Updated); err == nil {
			u := t.UTC().Truncate(24 * time.Hour)
			if !u.Equal(submitted) {
				updatedDate = &u
			}
		}
	}

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "http://arxiv.org/pdf/" + arxivID
	}

	return &models.Paper{
		ArxivID:         arxivID,
		Title:           normalizeWhitespace(entry.Title),
		Abstract:        normalizeWhitespace(entry.Summary),
		Authors:         authors,
		Categories:      categories,
		PrimaryCategory: primary,
		SubmittedDate:   submitted,
		UpdatedDate:     updatedDate,
		PDFURL:          pdfURL,
		AbstractURL:     "http://arxiv.org/abs/" + arxivID,
	}
}

// extractArxivID turns "http://arxiv.org/abs/2301.12345v2" into "2301.12345".
func extractArxivID(entryURL string) string {
	idx := strings.Index(entryURL, "/abs/")
	if idx < 0 {
		return ""
	}
	id := entryURL[idx+len("/abs/"):]
	return versionSuffix.ReplaceAllString(id, "")
}

// normalizeWhitespace collapses the newlines and padding arXiv puts into
// titles and abstracts.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
