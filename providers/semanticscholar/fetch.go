// Package semanticscholar enriches papers with citation counts from the
// Semantic Scholar Graph API. Lookups are batched (up to 500 identifiers per
// call) to amortize the provider's rate limit.
package semanticscholar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"paper-birthdays/config"
	"paper-birthdays/httpclient"
	"paper-birthdays/models"
	"paper-birthdays/providers"
)

const (
	paperFields  = "paperId,externalIds,title,citationCount"
	apiKeyHeader = "x-api-key"
)

// Fetcher looks up citation counts by arXiv identifier.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Client *httpclient.Client

	baseURL   string
	batchSize int
}

// NewFetcher creates a new Semantic Scholar fetcher with its own throttle
// bucket.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	client := httpclient.New(httpclient.Options{
		MinInterval:  cfg.SemanticScholarMinInterval,
		Timeout:      cfg.SemanticScholarTimeout,
		APIKey:       cfg.SemanticScholarAPIKey,
		APIKeyHeader: apiKeyHeader,
		Retry: httpclient.RetryPolicy{
			MaxAttempts:    cfg.RetryMaxAttempts,
			BaseDelay:      cfg.RetryBaseDelay,
			MaxDelay:       cfg.RetryMaxDelay,
			JitterFraction: float64(cfg.RetryJitterPercent) / 100,
		},
	})
	return &Fetcher{
		Config:    cfg,
		Logger:    logger,
		Client:    client,
		baseURL:   cfg.SemanticScholarBaseURL,
		batchSize: cfg.SemanticScholarBatchSize,
	}
}

// Name returns the provider name.
func (f *Fetcher) Name() string {
	return "semanticscholar"
}

// Enrich fills in citation counts and Semantic Scholar IDs for the given
// papers, in place. Papers unknown to Semantic Scholar keep their current
// count. The returned error is non-nil only when at least one batch could
// not be resolved at all; resolved papers are still updated in that case so
// the caller can proceed with a partial result.
func (f *Fetcher) Enrich(ctx context.Context, papers []*models.Paper) error {
	if len(papers) == 0 {
		return nil
	}

	byID := make(map[string]*models.Paper, len(papers))
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		if p.ArxivID == "" {
			continue
		}
		byID[p.ArxivID] = p
		ids = append(ids, p.ArxivID)
	}

	var failedBatches int
	for start := 0; start < len(ids); start += f.batchSize {
		end := start + f.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		results, err := f.lookupBatch(ctx, batch)
		if err != nil {
			f.Logger.Warn("Batch citation lookup failed, falling back to single lookups",
				zap.Int("batch_size", len(batch)), zap.Error(err))
			results, err = f.lookupSingles(ctx, batch)
			if err != nil {
				failedBatches++
				continue
			}
		}

		for _, r := range results {
			if r.ExternalIDs == nil || r.ExternalIDs.ArXiv == "" {
				continue
			}
			p, ok := byID[r.ExternalIDs.ArXiv]
			if !ok {
				continue
			}
			p.CitationCount = r.CitationCount
			if r.PaperID != "" {
				id := r.PaperID
				p.SemanticScholarID = &id
			}
		}
	}

	if failedBatches > 0 {
		return &providers.ProviderError{
			Provider: f.Name(),
			Err:      fmt.Errorf("%d citation batch(es) unresolved", failedBatches),
		}
	}
	return nil
}

// lookupBatch resolves up to batchSize arXiv IDs in one POST call. The API
// returns a null element for every identifier it does not know.
func (f *Fetcher) lookupBatch(ctx context.Context, arxivIDs []string) ([]PaperResult, error) {
	prefixed := make([]string, len(arxivIDs))
	for i, id := range arxivIDs {
		prefixed[i] = "arXiv:" + id
	}

	body, err := json.Marshal(BatchRequest{IDs: prefixed})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/paper/batch?fields=%s", f.baseURL, paperFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &providers.ProviderError{Provider: f.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &providers.ProviderError{Provider: f.Name(), StatusCode: resp.StatusCode,
			Err: fmt.Errorf("batch lookup rejected")}
	}

	var raw []*PaperResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&raw); err != nil {
		return nil, &providers.ValidationError{Provider: f.Name(), Err: err}
	}

	results := make([]PaperResult, 0, len(raw))
	for _, r := range raw {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// lookupSingles resolves IDs one by one after a failed batch. Not-found
// papers are skipped; only a fully failed batch reports an error.
func (f *Fetcher) lookupSingles(ctx context.Context, arxivIDs []string) ([]PaperResult, error) {
	var results []PaperResult
	var lastErr error
	for _, id := range arxivIDs {
		r, err := f.lookupOne(ctx, id)
		if err != nil {
			lastErr = err
			continue
		}
		if r != nil {
			results = append(results, *r)
		}
	}
	if len(results) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return results, nil
}

func (f *Fetcher) lookupOne(ctx context.Context, arxivID string) (*PaperResult, error) {
	u := fmt.Sprintf("%s/paper/%s?fields=%s", f.baseURL, url.PathEscape("arXiv:"+arxivID), paperFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &providers.ProviderError{Provider: f.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &providers.ProviderError{Provider: f.Name(), StatusCode: resp.StatusCode,
			Err: fmt.Errorf("lookup rejected for %s", arxivID)}
	}

	var result PaperResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, &providers.ValidationError{Provider: f.Name(), Err: err}
	}
	// Single lookups do not always echo the arXiv ID back; pin it so the
	// caller can match the result.
	if result.ExternalIDs == nil {
		result.ExternalIDs = &ExternalIDs{}
	}
	if result.ExternalIDs.ArXiv == "" {
		result.ExternalIDs.ArXiv = arxivID
	}
	return &result, nil
}
