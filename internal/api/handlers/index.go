package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/scheduler"
)

// IndexScheduler starts and cancels index runs.
type IndexScheduler interface {
	Trigger(ctx context.Context, input scheduler.TriggerInput) (string, error)
	Cancel(ctx context.Context, orgID, runID string) error
}

type IndexHandler struct {
	scheduler IndexScheduler
}

func NewIndexHandler(sched IndexScheduler) *IndexHandler {
	return &IndexHandler{scheduler: sched}
}

type TriggerIndexRequest struct {
	SourceID string `json:"source_id"`
	Scope    string `json:"scope,omitempty"`
}

type TriggerIndexResponse struct {
	RunID string `json:"run_id"`
}

// Trigger starts an index run for one source. The run executes in the
// background; the response carries only the run id to poll.
func (h *IndexHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	var req TriggerIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid request body")
		return
	}

	if req.SourceID == "" {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "source_id is required")
		return
	}

	runID, err := h.scheduler.Trigger(r.Context(), scheduler.TriggerInput{
		OrgID:    orgID,
		SourceID: req.SourceID,
		Scope:    domain.RunScope(req.Scope),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, TriggerIndexResponse{RunID: runID})
}
