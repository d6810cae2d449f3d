package service

import (
	"context"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

const recentRunCount = 5

// StatsOutput represents output from the stats operation
type StatsOutput struct {
	FragmentCounts map[domain.FragmentType]int
	TotalFragments int
	EdgeCount      int
	Runs           *RunAggregates
	RecentRuns     []*domain.IndexRun
}

// StatsService reports index size and run history for one organization.
type StatsService struct {
	fragments FragmentRepositoryInterface
	edges     EdgeRepositoryInterface
	runs      IndexRunRepositoryInterface
}

// NewStatsService creates a new StatsService instance
func NewStatsService(fragments FragmentRepositoryInterface, edges EdgeRepositoryInterface, runs IndexRunRepositoryInterface) *StatsService {
	return &StatsService{
		fragments: fragments,
		edges:     edges,
		runs:      runs,
	}
}

func (s *StatsService) Stats(ctx context.Context, orgID string) (*StatsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "StatsService.Stats", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "stats",
	})
	defer span.End()

	if orgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}

	counts, err := s.fragments.CountByType(ctx, orgID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	edgeCount, err := s.edges.CountEdges(ctx, orgID)
	if err != nil {
		return nil, err
	}

	aggregates, err := s.runs.Aggregate(ctx, orgID)
	if err != nil {
		return nil, err
	}

	recent, err := s.runs.ListByOrgWithCursor(ctx, orgID, nil, recentRunCount)
	if err != nil {
		return nil, err
	}

	return &StatsOutput{
		FragmentCounts: counts,
		TotalFragments: total,
		EdgeCount:      edgeCount,
		Runs:           aggregates,
		RecentRuns:     recent.Items,
	}, nil
}
