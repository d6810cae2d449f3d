package service

import (
	"context"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// ListRunsInput represents input for listing run history
type ListRunsInput struct {
	OrgID  string
	Limit  int
	Cursor string
}

// RunService exposes run history reads; run lifecycle writes belong to the
// scheduler.
type RunService struct {
	runs IndexRunRepositoryInterface
}

// NewRunService creates a new RunService instance
func NewRunService(runs IndexRunRepositoryInterface) *RunService {
	return &RunService{runs: runs}
}

func (s *RunService) Get(ctx context.Context, orgID, runID string) (*domain.IndexRun, error) {
	ctx, span := telemetry.StartSpan(ctx, "RunService.Get", telemetry.SpanAttributes{
		OrgID:     orgID,
		RunID:     runID,
		Operation: "get_run",
	})
	defer span.End()

	if runID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "run ID is required")
	}
	return s.runs.GetByID(ctx, orgID, runID)
}

func (s *RunService) List(ctx context.Context, input ListRunsInput) (*RunPageResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RunService.List", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "list_runs",
	})
	defer span.End()

	if input.OrgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
	}

	return s.runs.ListByOrgWithCursor(ctx, input.OrgID, cursor, input.Limit)
}
