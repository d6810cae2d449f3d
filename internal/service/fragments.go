package service

import (
	"context"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// ListFragmentsInput represents input for listing fragments
type ListFragmentsInput struct {
	OrgID  string
	Limit  int
	Cursor string
}

// FragmentService exposes direct fragment reads; writes go through the
// indexing pipeline only.
type FragmentService struct {
	fragments FragmentRepositoryInterface
	graph     GraphTraverser
}

// NewFragmentService creates a new FragmentService instance
func NewFragmentService(fragments FragmentRepositoryInterface, graph GraphTraverser) *FragmentService {
	return &FragmentService{
		fragments: fragments,
		graph:     graph,
	}
}

func (s *FragmentService) Get(ctx context.Context, orgID, id string) (*domain.Fragment, error) {
	ctx, span := telemetry.StartSpan(ctx, "FragmentService.Get", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "get_fragment",
	})
	defer span.End()

	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "fragment ID is required")
	}
	return s.fragments.GetByID(ctx, orgID, id)
}

func (s *FragmentService) List(ctx context.Context, input ListFragmentsInput) (*FragmentPageResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "FragmentService.List", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "list_fragments",
	})
	defer span.End()

	if input.OrgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	return s.fragments.ListByOrgWithCursor(ctx, input.OrgID, cursor, input.Limit)
}

// Related returns fragments reachable from id over relationship edges,
// bounded by depth.
func (s *FragmentService) Related(ctx context.Context, orgID, id string, depth int) ([]*GraphNode, error) {
	ctx, span := telemetry.StartSpan(ctx, "FragmentService.Related", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "related_fragments",
	})
	defer span.End()

	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "fragment ID is required")
	}
	return s.graph.Traverse(ctx, orgID, id, depth)
}
