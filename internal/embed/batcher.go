package embed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tessera-ai/tessera/internal/domain"
)

const (
	// MaxBatchSize caps how many texts go to the provider in one request
	MaxBatchSize = 50
	// MaxRetries is the number of additional attempts after a retryable failure
	MaxRetries = 3

	defaultConcurrency    = 4
	defaultInitialBackoff = 500 * time.Millisecond
	maxBackoff            = 8 * time.Second
)

// BatchError records one batch that kept failing after its retries.
// Indices point at the affected entries in the original input.
type BatchError struct {
	Indices []int
	Err     error
}

// BatcherOptions tunes throughput. Zero values fall back to defaults; the
// rate limiter is disabled when RatePerSecond is zero.
type BatcherOptions struct {
	BatchSize      int
	Concurrency    int
	RatePerSecond  float64
	Burst          int
	InitialBackoff time.Duration
	Cache          *Cache
}

// Batcher drives a Provider at indexing scale: texts are cut into
// batches, embedded concurrently under one shared rate limiter, and
// retried with exponential backoff when the provider pushes back. One
// batch exhausting its retries does not stop the others.
type Batcher struct {
	provider       Provider
	cache          *Cache
	batchSize      int
	concurrency    int
	limiter        *rate.Limiter
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewBatcher creates a new Batcher instance
func NewBatcher(provider Provider, opts BatcherOptions) *Batcher {
	batchSize := opts.BatchSize
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	initialBackoff := opts.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Batcher{
		provider:       provider,
		cache:          opts.Cache,
		batchSize:      batchSize,
		concurrency:    concurrency,
		limiter:        limiter,
		initialBackoff: initialBackoff,
		sleep:          sleepContext,
	}
}

// Dimension returns the provider's vector width
func (b *Batcher) Dimension() int {
	return b.provider.Dimension()
}

// Embed satisfies Provider for callers outside the indexing pipeline,
// query embedding mostly. The shared limiter and cache still apply.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, batchErrs, err := b.EmbedAll(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(batchErrs) > 0 {
		return nil, batchErrs[0].Err
	}
	return vectors, nil
}

// EmbedAll embeds every text, preserving input order. A batch that
// exhausts its retries leaves nil vectors for its texts and shows up in
// the returned BatchErrors; the remaining batches still complete. The
// error return is reserved for failures that doom the whole call:
// configuration problems and context cancellation.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, []BatchError, error) {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil, nil
	}

	// Serve cache hits up front so only misses reach the provider.
	var miss []int
	for i, text := range texts {
		if b.cache != nil {
			if vector, ok := b.cache.Get(text); ok {
				vectors[i] = vector
				continue
			}
		}
		miss = append(miss, i)
	}
	if len(miss) == 0 {
		return vectors, nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	var mu sync.Mutex
	var batchErrs []BatchError

	for start := 0; start < len(miss); start += b.batchSize {
		end := min(start+b.batchSize, len(miss))
		indices := miss[start:end]

		g.Go(func() error {
			batch := make([]string, len(indices))
			for i, idx := range indices {
				batch[i] = texts[idx]
			}

			out, err := b.embedBatch(gctx, batch)
			if err != nil {
				if !Retryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				mu.Lock()
				batchErrs = append(batchErrs, BatchError{Indices: indices, Err: err})
				mu.Unlock()
				return nil
			}

			for i, idx := range indices {
				vectors[idx] = out[i]
				if b.cache != nil {
					b.cache.Add(texts[idx], out[i])
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return vectors, batchErrs, err
	}
	return vectors, batchErrs, nil
}

// embedBatch runs one batch with retries. Every attempt waits on the
// shared rate limiter so retries cannot starve other batches.
func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	backoff := b.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("Retrying embedding batch (attempt %d/%d) after %v: %v", attempt, MaxRetries, backoff, lastErr)
			if err := b.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = min(backoff*2, maxBackoff)
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		out, err := b.provider.Embed(ctx, batch)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingExhausted, lastErr)
}
