package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
)

// MockUUIDGenerator is a mock implementation of UUIDGenerator
type MockUUIDGenerator struct {
	mock.Mock
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		uuid := m.uuids[m.callCount]
		m.callCount++
		return uuid
	}
	return "default-uuid"
}

// MockFragmentRepository is a mock implementation of FragmentRepositoryInterface
type MockFragmentRepository struct {
	mock.Mock
}

func (m *MockFragmentRepository) Upsert(ctx context.Context, f *domain.Fragment) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFragmentRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Fragment, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fragment), args.Error(1)
}

func (m *MockFragmentRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Fragment, error) {
	args := m.Called(ctx, orgID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Fragment), args.Error(1)
}

func (m *MockFragmentRepository) ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*FragmentPageResult, error) {
	args := m.Called(ctx, orgID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FragmentPageResult), args.Error(1)
}

func (m *MockFragmentRepository) DeleteBySourcePrefix(ctx context.Context, orgID, projectID, prefix string) ([]string, error) {
	args := m.Called(ctx, orgID, projectID, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFragmentRepository) CountByType(ctx context.Context, orgID string) (map[domain.FragmentType]int, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.FragmentType]int), args.Error(1)
}

func (m *MockFragmentRepository) SearchByEmbedding(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]*SearchCandidate, error) {
	args := m.Called(ctx, embedding, filters, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchCandidate), args.Error(1)
}

func (m *MockFragmentRepository) SearchByText(ctx context.Context, queryText string, filters SearchFilters, limit int) ([]*SearchCandidate, error) {
	args := m.Called(ctx, queryText, filters, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*SearchCandidate), args.Error(1)
}

// MockEdgeRepository is a mock implementation of EdgeRepositoryInterface
type MockEdgeRepository struct {
	mock.Mock
}

func (m *MockEdgeRepository) ReplaceOutgoing(ctx context.Context, fromID string, edges []*domain.RelationshipEdge) error {
	args := m.Called(ctx, fromID, edges)
	return args.Error(0)
}

func (m *MockEdgeRepository) ListOutgoingBatch(ctx context.Context, fromIDs []string) ([]*domain.RelationshipEdge, error) {
	args := m.Called(ctx, fromIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RelationshipEdge), args.Error(1)
}

func (m *MockEdgeRepository) CountEdges(ctx context.Context, orgID string) (int, error) {
	args := m.Called(ctx, orgID)
	return args.Int(0), args.Error(1)
}

// MockIndexRunRepository is a mock implementation of IndexRunRepositoryInterface
type MockIndexRunRepository struct {
	mock.Mock
}

func (m *MockIndexRunRepository) Create(ctx context.Context, run *domain.IndexRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockIndexRunRepository) UpdateState(ctx context.Context, runID string, state domain.RunState) error {
	args := m.Called(ctx, runID, state)
	return args.Error(0)
}

func (m *MockIndexRunRepository) Finish(ctx context.Context, run *domain.IndexRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockIndexRunRepository) GetByID(ctx context.Context, orgID, runID string) (*domain.IndexRun, error) {
	args := m.Called(ctx, orgID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexRun), args.Error(1)
}

func (m *MockIndexRunRepository) ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*RunPageResult, error) {
	args := m.Called(ctx, orgID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RunPageResult), args.Error(1)
}

func (m *MockIndexRunRepository) Aggregate(ctx context.Context, orgID string) (*RunAggregates, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RunAggregates), args.Error(1)
}

func (m *MockIndexRunRepository) ActiveRunForSource(ctx context.Context, sourceID string) (string, error) {
	args := m.Called(ctx, sourceID)
	return args.String(0), args.Error(1)
}

func (m *MockIndexRunRepository) MarkStaleRunsFailed(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// MockSourceRepository is a mock implementation of SourceRepositoryInterface
type MockSourceRepository struct {
	mock.Mock
}

func (m *MockSourceRepository) Create(ctx context.Context, s *domain.Source) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSourceRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Source, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Source), args.Error(1)
}

func (m *MockSourceRepository) GetByName(ctx context.Context, orgID, name string) (*domain.Source, error) {
	args := m.Called(ctx, orgID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Source), args.Error(1)
}

func (m *MockSourceRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Source, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Source), args.Error(1)
}

func (m *MockSourceRepository) ListEnabled(ctx context.Context) ([]*domain.Source, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Source), args.Error(1)
}

func (m *MockSourceRepository) SetEnabled(ctx context.Context, orgID, id string, enabled bool) error {
	args := m.Called(ctx, orgID, id, enabled)
	return args.Error(0)
}

func (m *MockSourceRepository) Delete(ctx context.Context, orgID, id string) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

func (m *MockSourceRepository) UnitStates(ctx context.Context, sourceID string) (map[string]string, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockSourceRepository) UpsertUnitStates(ctx context.Context, sourceID string, states map[string]string) error {
	args := m.Called(ctx, sourceID, states)
	return args.Error(0)
}

func (m *MockSourceRepository) DeleteUnitStates(ctx context.Context, sourceID string, refs []string) error {
	args := m.Called(ctx, sourceID, refs)
	return args.Error(0)
}

// MockEmbeddingProvider is a mock implementation of EmbeddingProvider
type MockEmbeddingProvider struct {
	mock.Mock
}

func (m *MockEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}
