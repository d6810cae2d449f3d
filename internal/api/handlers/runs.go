package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/service"
)

// RunService exposes run history reads.
type RunService interface {
	Get(ctx context.Context, orgID, runID string) (*domain.IndexRun, error)
	List(ctx context.Context, input service.ListRunsInput) (*service.RunPageResult, error)
}

type RunsHandler struct {
	svc       RunService
	scheduler IndexScheduler
}

func NewRunsHandler(svc RunService, sched IndexScheduler) *RunsHandler {
	return &RunsHandler{svc: svc, scheduler: sched}
}

type RunErrorResponse struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	UnitRef  string `json:"unit_ref,omitempty"`
}

type RunResponse struct {
	RunID       string              `json:"run_id"`
	SourceID    string              `json:"source_id"`
	Scope       string              `json:"scope"`
	State       string              `json:"state"`
	Processed   int                 `json:"processed"`
	Stored      int                 `json:"stored"`
	Skipped     int                 `json:"skipped"`
	Removed     int                 `json:"removed"`
	Errors      []*RunErrorResponse `json:"errors,omitempty"`
	StartedAt   string              `json:"started_at"`
	CompletedAt string              `json:"completed_at,omitempty"`
}

type ListRunsResponse struct {
	Runs    []*RunResponse `json:"runs"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

type CancelRunResponse struct {
	RunID string `json:"run_id"`
}

func runResponseFrom(run *domain.IndexRun) *RunResponse {
	resp := &RunResponse{
		RunID:     run.RunID,
		SourceID:  run.SourceID,
		Scope:     string(run.Scope),
		State:     string(run.State),
		Processed: run.Processed,
		Stored:    run.Stored,
		Skipped:   run.Skipped,
		Removed:   run.Removed,
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, e := range run.Errors {
		resp.Errors = append(resp.Errors, &RunErrorResponse{
			Provider: e.Provider,
			Code:     e.Code,
			Message:  e.Message,
			UnitRef:  e.UnitRef,
		})
	}
	return resp
}

// List handles GET /runs with cursor pagination, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	params := r.URL.Query()

	limit := 0
	if raw := params.Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid limit")
			return
		}
	}

	page, err := h.svc.List(r.Context(), service.ListRunsInput{
		OrgID:  orgID,
		Limit:  limit,
		Cursor: params.Get("cursor"),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	runs := make([]*RunResponse, len(page.Items))
	for i, run := range page.Items {
		runs[i] = runResponseFrom(run)
	}

	api.Success(w, http.StatusOK, ListRunsResponse{
		Runs:    runs,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

// Get handles GET /runs/{run_id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	runID := chi.URLParam(r, "run_id")

	run, err := h.svc.Get(r.Context(), orgID, runID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, runResponseFrom(run))
}

// Cancel handles POST /runs/{run_id}/cancel. Cancellation is
// asynchronous: 202 means the run was told to stop, not that it has.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	runID := chi.URLParam(r, "run_id")

	if err := h.scheduler.Cancel(r.Context(), orgID, runID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, CancelRunResponse{RunID: runID})
}
