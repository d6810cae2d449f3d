package service

import (
	"context"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
)

// SearchFilters narrow retrieval before ranking; they are applied inside
// the SQL, so limits count post-filter rows.
type SearchFilters struct {
	OrgID     string
	ProjectID string
	Types     []domain.FragmentType
	Tags      []string
}

// SearchCandidate is a raw row from one retrieval channel (vector or
// full-text) before the ranking merge.
type SearchCandidate struct {
	ID              string
	Title           string
	Content         string
	Type            domain.FragmentType
	SourceReference string
	UpdatedAt       time.Time
	Score           float32
}

// FragmentPageResult is a cursor page of fragments.
type FragmentPageResult struct {
	Items      []*domain.Fragment
	NextCursor string
	HasMore    bool
}

// RunPageResult is a cursor page of index runs.
type RunPageResult struct {
	Items      []*domain.IndexRun
	NextCursor string
	HasMore    bool
}

// RunAggregates summarizes run history for the stats endpoint.
type RunAggregates struct {
	TotalRuns       int
	Completed       int
	Failed          int
	Cancelled       int
	TotalProcessed  int
	TotalStored     int
	LastCompletedAt *time.Time
}

// FragmentRepositoryInterface defines fragment persistence operations
type FragmentRepositoryInterface interface {
	Upsert(ctx context.Context, f *domain.Fragment) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Fragment, error)
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Fragment, error)
	ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*FragmentPageResult, error)
	DeleteBySourcePrefix(ctx context.Context, orgID, projectID, prefix string) ([]string, error)
	CountByType(ctx context.Context, orgID string) (map[domain.FragmentType]int, error)
	SearchByEmbedding(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]*SearchCandidate, error)
	SearchByText(ctx context.Context, queryText string, filters SearchFilters, limit int) ([]*SearchCandidate, error)
}

// EdgeRepositoryInterface defines relationship graph persistence
type EdgeRepositoryInterface interface {
	ReplaceOutgoing(ctx context.Context, fromID string, edges []*domain.RelationshipEdge) error
	ListOutgoingBatch(ctx context.Context, fromIDs []string) ([]*domain.RelationshipEdge, error)
	CountEdges(ctx context.Context, orgID string) (int, error)
}

// SourceRepositoryInterface defines registered source persistence
type SourceRepositoryInterface interface {
	Create(ctx context.Context, s *domain.Source) error
	GetByID(ctx context.Context, orgID, id string) (*domain.Source, error)
	GetByName(ctx context.Context, orgID, name string) (*domain.Source, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Source, error)
	ListEnabled(ctx context.Context) ([]*domain.Source, error)
	SetEnabled(ctx context.Context, orgID, id string, enabled bool) error
	Delete(ctx context.Context, orgID, id string) error
	UnitStates(ctx context.Context, sourceID string) (map[string]string, error)
	UpsertUnitStates(ctx context.Context, sourceID string, states map[string]string) error
	DeleteUnitStates(ctx context.Context, sourceID string, refs []string) error
}

// IndexRunRepositoryInterface defines run history persistence
type IndexRunRepositoryInterface interface {
	Create(ctx context.Context, run *domain.IndexRun) error
	UpdateState(ctx context.Context, runID string, state domain.RunState) error
	Finish(ctx context.Context, run *domain.IndexRun) error
	GetByID(ctx context.Context, orgID, runID string) (*domain.IndexRun, error)
	ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*RunPageResult, error)
	Aggregate(ctx context.Context, orgID string) (*RunAggregates, error)
	ActiveRunForSource(ctx context.Context, sourceID string) (string, error)
	MarkStaleRunsFailed(ctx context.Context, before time.Time) (int64, error)
}
