package service

import (
	"context"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

const (
	// DefaultTraverseDepth applies when the caller passes no depth.
	DefaultTraverseDepth = 5
	// MaxTraverseDepth is the hard cap; requests above it are clamped.
	MaxTraverseDepth = 10
)

// GraphNode is a fragment reached by traversal, with the hop count from
// the start fragment.
type GraphNode struct {
	Fragment *domain.Fragment
	Depth    int
}

// GraphService walks the relationship graph breadth-first.
type GraphService struct {
	fragments    FragmentRepositoryInterface
	edges        EdgeRepositoryInterface
	defaultDepth int
}

// NewGraphService creates a new GraphService instance
func NewGraphService(fragments FragmentRepositoryInterface, edges EdgeRepositoryInterface, defaultDepth int) *GraphService {
	if defaultDepth <= 0 || defaultDepth > MaxTraverseDepth {
		defaultDepth = DefaultTraverseDepth
	}
	return &GraphService{
		fragments:    fragments,
		edges:        edges,
		defaultDepth: defaultDepth,
	}
}

// Traverse returns the fragments reachable from startID within maxDepth
// hops, in breadth order, start excluded. A visited set makes cycles safe.
// maxDepth <= 0 selects the configured default.
func (s *GraphService) Traverse(ctx context.Context, orgID, startID string, maxDepth int) ([]*GraphNode, error) {
	ctx, span := telemetry.StartSpan(ctx, "GraphService.Traverse", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "traverse",
	})
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = s.defaultDepth
	}
	if maxDepth > MaxTraverseDepth {
		maxDepth = MaxTraverseDepth
	}

	if _, err := s.fragments.GetByID(ctx, orgID, startID); err != nil {
		return nil, err
	}

	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var nodes []*GraphNode

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		edges, err := s.edges.ListOutgoingBatch(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var nextIDs []string
		for _, edge := range edges {
			if visited[edge.ToID] {
				continue
			}
			visited[edge.ToID] = true
			nextIDs = append(nextIDs, edge.ToID)
		}
		if len(nextIDs) == 0 {
			break
		}

		fragments, err := s.fragments.GetByIDs(ctx, orgID, nextIDs)
		if err != nil {
			return nil, err
		}

		// Preserve edge discovery order; GetByIDs returns rows in
		// arbitrary order. Edges into other organizations resolve to
		// nothing and fall out of the frontier here.
		byID := make(map[string]*domain.Fragment, len(fragments))
		for _, f := range fragments {
			byID[f.ID] = f
		}
		frontier = frontier[:0]
		for _, id := range nextIDs {
			f, ok := byID[id]
			if !ok {
				continue
			}
			nodes = append(nodes, &GraphNode{Fragment: f, Depth: depth})
			frontier = append(frontier, id)
		}
	}

	return nodes, nil
}
