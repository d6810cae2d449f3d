package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/api/handlers"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/scheduler"
	"github.com/tessera-ai/tessera/internal/service"
)

const testAPIKey = "tsr_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type MockIndexScheduler struct {
	mock.Mock
}

func (m *MockIndexScheduler) Trigger(ctx context.Context, input scheduler.TriggerInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockIndexScheduler) Cancel(ctx context.Context, orgID, runID string) error {
	args := m.Called(ctx, orgID, runID)
	return args.Error(0)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchOutput), args.Error(1)
}

type MockContextService struct {
	mock.Mock
}

func (m *MockContextService) Build(ctx context.Context, req service.ContextRequest) (*service.ContextBundle, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ContextBundle), args.Error(1)
}

type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) Stats(ctx context.Context, orgID string) (*service.StatsOutput, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StatsOutput), args.Error(1)
}

type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Get(ctx context.Context, orgID, runID string) (*domain.IndexRun, error) {
	args := m.Called(ctx, orgID, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IndexRun), args.Error(1)
}

func (m *MockRunService) List(ctx context.Context, input service.ListRunsInput) (*service.RunPageResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RunPageResult), args.Error(1)
}

type MockFragmentService struct {
	mock.Mock
}

func (m *MockFragmentService) Get(ctx context.Context, orgID, id string) (*domain.Fragment, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Fragment), args.Error(1)
}

func (m *MockFragmentService) List(ctx context.Context, input service.ListFragmentsInput) (*service.FragmentPageResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FragmentPageResult), args.Error(1)
}

func (m *MockFragmentService) Related(ctx context.Context, orgID, id string, depth int) ([]*service.GraphNode, error) {
	args := m.Called(ctx, orgID, id, depth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*service.GraphNode), args.Error(1)
}

type routerFixture struct {
	router    http.Handler
	validator *MockAuthValidator
	scheduler *MockIndexScheduler
	search    *MockSearchService
	stats     *MockStatsService
	runs      *MockRunService
	fragments *MockFragmentService
}

func setupRouter() *routerFixture {
	f := &routerFixture{
		validator: new(MockAuthValidator),
		scheduler: new(MockIndexScheduler),
		search:    new(MockSearchService),
		stats:     new(MockStatsService),
		runs:      new(MockRunService),
		fragments: new(MockFragmentService),
	}

	f.router = NewRouter(RouterConfig{
		AuthValidator:    f.validator,
		IndexHandler:     handlers.NewIndexHandler(f.scheduler),
		SearchHandler:    handlers.NewSearchHandler(f.search),
		ContextHandler:   handlers.NewContextHandler(new(MockContextService)),
		StatsHandler:     handlers.NewStatsHandler(f.stats),
		RunsHandler:      handlers.NewRunsHandler(f.runs, f.scheduler),
		FragmentsHandler: handlers.NewFragmentsHandler(f.fragments),
	})
	return f
}

func TestRouter_HealthEndpoint(t *testing.T) {
	f := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	f := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/index"},
		{http.MethodGet, "/search"},
		{http.MethodGet, "/context"},
		{http.MethodGet, "/stats"},
		{http.MethodGet, "/runs"},
		{http.MethodGet, "/runs/run-1"},
		{http.MethodPost, "/runs/run-1/cancel"},
		{http.MethodGet, "/fragments"},
		{http.MethodGet, "/fragments/frag-1"},
		{http.MethodGet, "/fragments/frag-1/related"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			f.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"status":"failure"`)
		})
	}

	f.validator.AssertExpectations(t)
}

func TestRouter_StatsWithValidAuth(t *testing.T) {
	f := setupRouter()

	f.validator.On("ValidateAPIKey", mock.Anything, testAPIKey).Return("org-789", nil)
	f.stats.On("Stats", mock.Anything, "org-789").Return(&service.StatsOutput{
		FragmentCounts: map[domain.FragmentType]int{},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	f.validator.AssertExpectations(t)
	f.stats.AssertExpectations(t)
}

func TestRouter_TriggerIndexRoute(t *testing.T) {
	f := setupRouter()

	f.validator.On("ValidateAPIKey", mock.Anything, testAPIKey).Return("org-789", nil)
	f.scheduler.On("Trigger", mock.Anything, mock.MatchedBy(func(input scheduler.TriggerInput) bool {
		return input.OrgID == "org-789" && input.SourceID == "src-1"
	})).Return("run-1", nil)

	body := bytes.NewReader([]byte(`{"source_id":"src-1","scope":"incremental"}`))
	req := httptest.NewRequest(http.MethodPost, "/index", body)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")
	f.scheduler.AssertExpectations(t)
}

func TestRouter_RunParamReachesHandler(t *testing.T) {
	f := setupRouter()

	f.validator.On("ValidateAPIKey", mock.Anything, testAPIKey).Return("org-789", nil)
	f.runs.On("Get", mock.Anything, "org-789", "run-42").Return(nil, domain.ErrIndexRunNotFound)

	req := httptest.NewRequest(http.MethodGet, "/runs/run-42", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	f.runs.AssertExpectations(t)
}

func TestRouter_RejectsOversizedBody(t *testing.T) {
	f := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/index", bytes.NewReader([]byte(`{}`)))
	req.ContentLength = 2 * 1024 * 1024
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_RequestIDHeader(t *testing.T) {
	f := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
