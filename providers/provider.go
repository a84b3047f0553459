// Package providers defines the adapter interface for external bibliographic
// sources and the error types they surface.
package providers

import (
	"context"
	"fmt"
	"time"

	"paper-birthdays/models"
)

// Provider is implemented by every bibliographic source adapter.
type Provider interface {
	// FetchByDate returns all papers submitted on the given calendar day,
	// optionally filtered by category (empty = all categories). An empty
	// result is valid and distinct from an error.
	FetchByDate(ctx context.Context, day time.Time, category string) ([]*models.Paper, error)

	// Name returns the unique provider name (e.g. "arxiv").
	Name() string
}

// ProviderError is a transport-level failure from an upstream provider.
// Retryable errors have already exhausted the client's retry budget by the
// time they surface here.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError means the provider answered but the response body did not
// have the expected shape. Not retried; a well-formed empty result is not a
// ValidationError.
type ValidationError struct {
	Provider string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Provider, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
