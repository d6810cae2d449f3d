// Package embed turns fragment text into embedding vectors. The
// openai-backed provider does the actual work; the batcher layers
// batching, concurrency, rate limiting, and retries on top so indexing
// runs can push thousands of fragments through one shared provider.
package embed

import (
	"context"
	"errors"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
)

// Provider generates embedding vectors for a batch of texts, preserving
// input order. Implementations classify failures as domain errors so
// callers can tell retryable rate limits from fatal configuration
// problems.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Retryable reports whether another attempt at the same request may
// succeed. Configuration errors never recover without operator action.
func Retryable(err error) bool {
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code != domain.ErrCodeConfiguration
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
