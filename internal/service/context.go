package service

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

const (
	defaultTokenBudget  = 4000
	defaultPerTypeLimit = 5
	// Only the strongest hits seed graph expansion.
	expansionSeeds = 3
	// Related fragments inherit a decayed share of their seed's score.
	expansionDecay = 0.5

	charsPerToken = 4
)

// FragmentSearcher is the ranked retrieval dependency of the bundle
// builder.
type FragmentSearcher interface {
	Search(ctx context.Context, input SearchInput) (*SearchOutput, error)
}

// GraphTraverser expands bundle seeds along relationship edges.
type GraphTraverser interface {
	Traverse(ctx context.Context, orgID, startID string, maxDepth int) ([]*GraphNode, error)
}

// ContextRequest represents input for the Build operation
type ContextRequest struct {
	OrgID        string
	Query        string
	Types        []domain.FragmentType
	Tags         []string
	ProjectID    string
	TokenBudget  int
	PerTypeLimit int
	ExpandDepth  int
}

// ContextFragment is one bundle entry with full content.
type ContextFragment struct {
	ID              string
	Title           string
	Content         string
	Type            domain.FragmentType
	SourceReference string
	Score           float32
	Tokens          int
	// ContentTruncated mirrors the ingest-time cut, so callers know the
	// source holds more than the stored content.
	ContentTruncated bool
	// Related marks fragments pulled in by graph expansion rather than
	// direct search.
	Related bool
}

// ContextBundle is a token-bounded set of fragments for prompt assembly.
type ContextBundle struct {
	Fragments   []*ContextFragment
	TotalTokens int
	// Truncated is set when the budget stopped at least one candidate
	// from being included.
	Truncated bool
	Degraded  bool
}

// ContextService assembles retrieval results into token-bounded bundles.
type ContextService struct {
	fragments     FragmentRepositoryInterface
	search        FragmentSearcher
	graph         GraphTraverser
	defaultBudget int
}

// NewContextService creates a new ContextService instance
func NewContextService(fragments FragmentRepositoryInterface, search FragmentSearcher, graph GraphTraverser, defaultBudget int) *ContextService {
	if defaultBudget <= 0 {
		defaultBudget = defaultTokenBudget
	}
	return &ContextService{
		fragments:     fragments,
		search:        search,
		graph:         graph,
		defaultBudget: defaultBudget,
	}
}

type bundleCandidate struct {
	fragment *domain.Fragment
	score    float32
	related  bool
}

// Build searches every requested fragment type, optionally expands the top
// hits along relationship edges, and packs the merged candidates greedily
// until the token budget is spent. Candidates that do not fit are skipped,
// not trimmed; a later smaller candidate may still fit.
func (s *ContextService) Build(ctx context.Context, req ContextRequest) (*ContextBundle, error) {
	ctx, span := telemetry.StartSpan(ctx, "ContextService.Build", telemetry.SpanAttributes{
		OrgID:     req.OrgID,
		Operation: "context",
	})
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}
	if req.OrgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}

	budget := req.TokenBudget
	if budget <= 0 {
		budget = s.defaultBudget
	}
	perTypeLimit := req.PerTypeLimit
	if perTypeLimit <= 0 {
		perTypeLimit = defaultPerTypeLimit
	}
	types := req.Types
	if len(types) == 0 {
		types = []domain.FragmentType{
			domain.FragmentTypeCodeSymbol,
			domain.FragmentTypeKnowledge,
			domain.FragmentTypeSession,
		}
	}

	hits, degraded, err := s.searchAllTypes(ctx, req, types, perTypeLimit)
	if err != nil {
		return nil, err
	}

	candidates, err := s.resolveCandidates(ctx, req.OrgID, hits)
	if err != nil {
		return nil, err
	}

	if req.ExpandDepth > 0 {
		candidates, err = s.expandCandidates(ctx, req.OrgID, candidates, req.ExpandDepth)
		if err != nil {
			return nil, err
		}
	}

	sortCandidates(candidates)
	bundle := packBundle(candidates, budget)
	bundle.Degraded = degraded
	return bundle, nil
}

func (s *ContextService) searchAllTypes(ctx context.Context, req ContextRequest, types []domain.FragmentType, perTypeLimit int) ([]*SearchResult, bool, error) {
	var hits []*SearchResult
	degraded := false
	for _, t := range types {
		out, err := s.search.Search(ctx, SearchInput{
			OrgID:     req.OrgID,
			Query:     req.Query,
			Types:     []domain.FragmentType{t},
			Tags:      req.Tags,
			ProjectID: req.ProjectID,
			Limit:     perTypeLimit,
		})
		if err != nil {
			return nil, false, err
		}
		hits = append(hits, out.Results...)
		degraded = degraded || out.Degraded
	}
	return hits, degraded, nil
}

// resolveCandidates swaps snippets for full fragments; the bundle ships
// content, not previews.
func (s *ContextService) resolveCandidates(ctx context.Context, orgID string, hits []*SearchResult) ([]*bundleCandidate, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	fragments, err := s.fragments.GetByIDs(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Fragment, len(fragments))
	for _, f := range fragments {
		byID[f.ID] = f
	}

	candidates := make([]*bundleCandidate, 0, len(hits))
	for _, h := range hits {
		f, ok := byID[h.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, &bundleCandidate{fragment: f, score: h.Score})
	}
	return candidates, nil
}

func (s *ContextService) expandCandidates(ctx context.Context, orgID string, candidates []*bundleCandidate, depth int) ([]*bundleCandidate, error) {
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		seen[c.fragment.ID] = true
	}

	sortCandidates(candidates)
	seeds := candidates
	if len(seeds) > expansionSeeds {
		seeds = seeds[:expansionSeeds]
	}

	out := candidates
	for _, seed := range seeds {
		nodes, err := s.graph.Traverse(ctx, orgID, seed.fragment.ID, depth)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			if seen[node.Fragment.ID] {
				continue
			}
			seen[node.Fragment.ID] = true
			score := seed.score
			for i := 0; i < node.Depth; i++ {
				score *= expansionDecay
			}
			out = append(out, &bundleCandidate{fragment: node.Fragment, score: score, related: true})
		}
	}
	return out, nil
}

func sortCandidates(candidates []*bundleCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if !candidates[i].fragment.UpdatedAt.Equal(candidates[j].fragment.UpdatedAt) {
			return candidates[i].fragment.UpdatedAt.After(candidates[j].fragment.UpdatedAt)
		}
		return candidates[i].fragment.ID < candidates[j].fragment.ID
	})
}

func packBundle(candidates []*bundleCandidate, budget int) *ContextBundle {
	bundle := &ContextBundle{Fragments: []*ContextFragment{}}
	for _, c := range candidates {
		tokens := estimateTokens(c.fragment.Title) + estimateTokens(c.fragment.Content)
		if bundle.TotalTokens+tokens > budget {
			bundle.Truncated = true
			continue
		}
		bundle.Fragments = append(bundle.Fragments, &ContextFragment{
			ID:               c.fragment.ID,
			Title:            c.fragment.Title,
			Content:          c.fragment.Content,
			Type:             c.fragment.Type,
			SourceReference:  c.fragment.SourceReference,
			Score:            c.score,
			Tokens:           tokens,
			ContentTruncated: c.fragment.Truncated,
			Related:          c.related,
		})
		bundle.TotalTokens += tokens
	}
	return bundle
}

// estimateTokens approximates tokens as runes/4, rounded up.
func estimateTokens(s string) int {
	runes := utf8.RuneCountInString(s)
	if runes == 0 {
		return 0
	}
	return (runes + charsPerToken - 1) / charsPerToken
}
