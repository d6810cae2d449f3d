package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

const (
	defaultSearchLimit         = 20
	defaultCandidateMultiplier = 4
	defaultMinCandidates       = 20
	defaultMaxCandidates       = 200
	defaultSnippetMaxChars     = 220

	// A full-text match boosts the vector score, never dominates it.
	textWeight   = 0.5
	textBoostCap = 0.25
)

// EmbeddingProvider turns text into vectors. Query embedding and fragment
// embedding share one provider so cached vectors are reused.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchInput represents input for the search operation
type SearchInput struct {
	OrgID     string
	Query     string
	Types     []domain.FragmentType
	Tags      []string
	ProjectID string
	Limit     int
}

// SearchResult represents a ranked search hit
type SearchResult struct {
	ID              string
	Title           string
	Snippet         string
	Type            domain.FragmentType
	SourceReference string
	Score           float32
	UpdatedAt       time.Time
}

// SearchOutput represents output from the search operation
type SearchOutput struct {
	Results []*SearchResult
	// Degraded is set when the embedding provider was unavailable and the
	// ranking fell back to full-text order only.
	Degraded bool
}

// SearchService ranks fragments by vector similarity with a bounded
// full-text boost.
type SearchService struct {
	fragments FragmentRepositoryInterface
	embedder  EmbeddingProvider
}

// NewSearchService creates a new SearchService instance
func NewSearchService(fragments FragmentRepositoryInterface, embedder EmbeddingProvider) *SearchService {
	return &SearchService{
		fragments: fragments,
		embedder:  embedder,
	}
}

// Search embeds the query, fetches vector and full-text candidates with
// filters applied in SQL, and merges them into one deterministic ranking.
// A missing or failing provider degrades to full-text order instead of
// erroring; an empty result is an empty list, never NotFound.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "search",
	})
	defer span.End()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}
	if input.OrgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	filters := SearchFilters{
		OrgID:     input.OrgID,
		ProjectID: input.ProjectID,
		Types:     input.Types,
		Tags:      input.Tags,
	}
	candidateLimit := candidateLimitFor(limit)

	textCandidates, err := s.fragments.SearchByText(ctx, query, filters, candidateLimit)
	if err != nil {
		return nil, err
	}

	embedding, embedErr := s.embedQuery(ctx, query)
	if embedErr != nil {
		if isFatalEmbedError(embedErr) {
			return nil, embedErr
		}
		telemetry.CaptureError(ctx, embedErr)
		return &SearchOutput{
			Results:  textOnlyResults(textCandidates, limit),
			Degraded: true,
		}, nil
	}

	vectorCandidates, err := s.fragments.SearchByEmbedding(ctx, embedding, filters, candidateLimit)
	if err != nil {
		return nil, err
	}

	return &SearchOutput{
		Results: mergeCandidates(vectorCandidates, textCandidates, limit),
	}, nil
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, domain.NewDomainError(domain.ErrCodeEmbeddingFailed, "no embedding provider configured")
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, domain.NewDomainError(domain.ErrCodeEmbeddingFailed, "provider returned wrong vector count")
	}
	return vectors[0], nil
}

// Configuration errors mean the deployment is broken, not the provider
// being briefly unavailable; those surface instead of degrading.
func isFatalEmbedError(err error) bool {
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == domain.ErrCodeConfiguration
}

func candidateLimitFor(limit int) int {
	candidateLimit := limit * defaultCandidateMultiplier
	if candidateLimit < defaultMinCandidates {
		candidateLimit = defaultMinCandidates
	}
	if candidateLimit > defaultMaxCandidates {
		candidateLimit = defaultMaxCandidates
	}
	return candidateLimit
}

// mergeCandidates ranks by vector similarity plus a capped text boost.
// Fragments that only matched full-text (no embedding yet) carry the boost
// alone, so freshly indexed content is findable before it is embedded.
func mergeCandidates(vectorCandidates, textCandidates []*SearchCandidate, limit int) []*SearchResult {
	merged := make(map[string]*SearchResult, len(vectorCandidates)+len(textCandidates))

	for _, c := range vectorCandidates {
		merged[c.ID] = candidateToResult(c)
	}
	for _, c := range textCandidates {
		boost := textBoost(c.Score)
		if existing, ok := merged[c.ID]; ok {
			existing.Score += boost
			continue
		}
		r := candidateToResult(c)
		r.Score = boost
		merged[c.ID] = r
	}

	return sortAndTruncate(merged, limit)
}

// textOnlyResults keeps the raw ts_rank order for the degraded path.
func textOnlyResults(textCandidates []*SearchCandidate, limit int) []*SearchResult {
	merged := make(map[string]*SearchResult, len(textCandidates))
	for _, c := range textCandidates {
		merged[c.ID] = candidateToResult(c)
	}
	return sortAndTruncate(merged, limit)
}

func textBoost(tsRank float32) float32 {
	boost := textWeight * tsRank
	if boost > textBoostCap {
		boost = textBoostCap
	}
	return boost
}

func candidateToResult(c *SearchCandidate) *SearchResult {
	return &SearchResult{
		ID:              c.ID,
		Title:           c.Title,
		Snippet:         makeSnippet(c.Content),
		Type:            c.Type,
		SourceReference: c.SourceReference,
		Score:           c.Score,
		UpdatedAt:       c.UpdatedAt,
	}
}

// sortAndTruncate imposes a total order: score, then recency, then id.
// Equal inputs always rank identically.
func sortAndTruncate(merged map[string]*SearchResult, limit int) []*SearchResult {
	out := make([]*SearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func makeSnippet(content string) string {
	if content == "" {
		return ""
	}
	clean := strings.Join(strings.Fields(content), " ")
	runes := []rune(clean)
	if len(runes) <= defaultSnippetMaxChars {
		return clean
	}
	return string(runes[:defaultSnippetMaxChars-3]) + "..."
}
