package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tessera-ai/tessera/internal/domain"
)

const (
	// DefaultModel is the embedding model used when none is configured
	DefaultModel = string(openai.SmallEmbedding3)
	// DefaultDimension is the native dimension of text-embedding-3-small
	DefaultDimension = 1536
)

// embeddingAPI is the slice of the OpenAI client the provider needs,
// narrowed for tests.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider generates embeddings through the OpenAI API.
type OpenAIProvider struct {
	api       embeddingAPI
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIProvider creates a new OpenAIProvider instance. The api key is
// required; model and dimension fall back to defaults when unset.
func NewOpenAIProvider(apiKey, model string, dimension int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &OpenAIProvider{
		api:       openai.NewClient(apiKey),
		model:     openai.EmbeddingModel(model),
		dimension: dimension,
	}, nil
}

// Dimension returns the configured vector width
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

// Embed requests vectors for all texts in one API call. Results come back
// in input order regardless of the order the API reports them.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	}
	// Pre-v3 models reject an explicit dimension parameter.
	if strings.HasPrefix(string(p.model), "text-embedding-3") {
		req.Dimensions = p.dimension
	}

	resp, err := p.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.NewDomainError(domain.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d embeddings for %d texts", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, domain.NewDomainError(domain.ErrCodeEmbeddingFailed,
				fmt.Sprintf("provider returned embedding for unknown index %d", d.Index))
		}
		if len(d.Embedding) != p.dimension {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("provider returned a %d-dimensional embedding, expected %d", len(d.Embedding), p.dimension),
				domain.ErrWrongDimension)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// classifyAPIError maps SDK failures onto the pipeline error taxonomy:
// quota exhaustion is retryable, rejected credentials are not, and other
// transient failures count as failed embedding attempts.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return domain.NewDomainErrorWithCause(domain.ErrCodeRateLimited,
				"embedding provider rate limited", err)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				"embedding provider rejected the api key", err)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed,
				"embedding provider unavailable", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed,
		"embedding request failed", err)
}
