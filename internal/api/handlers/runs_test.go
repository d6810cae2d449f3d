package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/service"
)

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

func newTestRun() *domain.IndexRun {
	started := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	completed := started.Add(42 * time.Second)
	return &domain.IndexRun{
		RunID:       "run-123",
		SourceID:    "src-1",
		OrgID:       "org-456",
		Scope:       domain.RunScopeIncremental,
		State:       domain.RunStateCompleted,
		Processed:   10,
		Stored:      25,
		Skipped:     3,
		Removed:     1,
		Errors:      []domain.RunError{{Provider: "extractor", Code: domain.ErrCodeParse, Message: "bad file", UnitRef: "bad.go"}},
		StartedAt:   started,
		CompletedAt: &completed,
	}
}

func TestRunsHandler_Get_Success(t *testing.T) {
	mockSvc := new(MockRunService)
	handler := NewRunsHandler(mockSvc, new(MockIndexScheduler))

	mockSvc.On("Get", mock.Anything, "org-456", "run-123").Return(newTestRun(), nil)

	req := requestWithOrgID(http.MethodGet, "/runs/run-123", nil)
	req = withRouteParam(req, "run_id", "run-123")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "run-123", data["run_id"])
	assert.Equal(t, "completed", data["state"])
	assert.Equal(t, float64(25), data["stored"])
	assert.Equal(t, "2025-06-01T03:00:00Z", data["started_at"])
	assert.Equal(t, "2025-06-01T03:00:42Z", data["completed_at"])
	errorsField := data["errors"].([]interface{})
	require.Len(t, errorsField, 1)
	first := errorsField[0].(map[string]interface{})
	assert.Equal(t, "extractor", first["provider"])
	assert.Equal(t, "bad.go", first["unit_ref"])
	mockSvc.AssertExpectations(t)
}

func TestRunsHandler_Get_NotFound(t *testing.T) {
	mockSvc := new(MockRunService)
	handler := NewRunsHandler(mockSvc, new(MockIndexScheduler))

	mockSvc.On("Get", mock.Anything, "org-456", "run-999").Return(nil, domain.ErrIndexRunNotFound)

	req := requestWithOrgID(http.MethodGet, "/runs/run-999", nil)
	req = withRouteParam(req, "run_id", "run-999")
	w := httptest.NewRecorder()

	handler.Get(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunsHandler_List_Success(t *testing.T) {
	mockSvc := new(MockRunService)
	handler := NewRunsHandler(mockSvc, new(MockIndexScheduler))

	page := &service.RunPageResult{
		Items:      []*domain.IndexRun{newTestRun()},
		NextCursor: "cursor-2",
		HasMore:    true,
	}
	mockSvc.On("List", mock.Anything, service.ListRunsInput{
		OrgID:  "org-456",
		Limit:  10,
		Cursor: "cursor-1",
	}).Return(page, nil)

	req := requestWithOrgID(http.MethodGet, "/runs?limit=10&cursor=cursor-1", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "cursor-2", data["cursor"])
	assert.Equal(t, true, data["has_more"])
	runs := data["runs"].([]interface{})
	require.Len(t, runs, 1)
	mockSvc.AssertExpectations(t)
}

func TestRunsHandler_List_InvalidLimit(t *testing.T) {
	handler := NewRunsHandler(new(MockRunService), new(MockIndexScheduler))

	req := requestWithOrgID(http.MethodGet, "/runs?limit=-1", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid limit")
}

func TestRunsHandler_Cancel_Success(t *testing.T) {
	mockSched := new(MockIndexScheduler)
	handler := NewRunsHandler(new(MockRunService), mockSched)

	mockSched.On("Cancel", mock.Anything, "org-456", "run-123").Return(nil)

	req := requestWithOrgID(http.MethodPost, "/runs/run-123/cancel", nil)
	req = withRouteParam(req, "run_id", "run-123")
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "run-123")
	mockSched.AssertExpectations(t)
}

func TestRunsHandler_Cancel_Terminal(t *testing.T) {
	mockSched := new(MockIndexScheduler)
	handler := NewRunsHandler(new(MockRunService), mockSched)

	mockSched.On("Cancel", mock.Anything, "org-456", "run-123").Return(domain.ErrRunNotCancelable)

	req := requestWithOrgID(http.MethodPost, "/runs/run-123/cancel", nil)
	req = withRouteParam(req, "run_id", "run-123")
	w := httptest.NewRecorder()

	handler.Cancel(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeInvalidOperation)
}

func TestRunsHandler_Unauthorized(t *testing.T) {
	handler := NewRunsHandler(new(MockRunService), new(MockIndexScheduler))

	for _, fn := range []http.HandlerFunc{handler.List, handler.Get, handler.Cancel} {
		req := httptest.NewRequest(http.MethodGet, "/runs", nil)
		w := httptest.NewRecorder()
		fn(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}
