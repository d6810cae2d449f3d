package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/service"
)

// StatsService reports index size and run history.
type StatsService interface {
	Stats(ctx context.Context, orgID string) (*service.StatsOutput, error)
}

type StatsHandler struct {
	svc StatsService
}

func NewStatsHandler(svc StatsService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

type RunAggregatesResponse struct {
	TotalRuns       int    `json:"total_runs"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	Cancelled       int    `json:"cancelled"`
	TotalProcessed  int    `json:"total_processed"`
	TotalStored     int    `json:"total_stored"`
	LastCompletedAt string `json:"last_completed_at,omitempty"`
}

type StatsResponse struct {
	Fragments      map[string]int         `json:"fragments"`
	TotalFragments int                    `json:"total_fragments"`
	Edges          int                    `json:"edges"`
	Runs           *RunAggregatesResponse `json:"runs,omitempty"`
	RecentRuns     []*RunResponse         `json:"recent_runs"`
}

// Stats handles GET /stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	output, err := h.svc.Stats(r.Context(), orgID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	fragments := make(map[string]int, len(output.FragmentCounts))
	for t, n := range output.FragmentCounts {
		fragments[string(t)] = n
	}

	var aggregates *RunAggregatesResponse
	if output.Runs != nil {
		aggregates = &RunAggregatesResponse{
			TotalRuns:      output.Runs.TotalRuns,
			Completed:      output.Runs.Completed,
			Failed:         output.Runs.Failed,
			Cancelled:      output.Runs.Cancelled,
			TotalProcessed: output.Runs.TotalProcessed,
			TotalStored:    output.Runs.TotalStored,
		}
		if output.Runs.LastCompletedAt != nil {
			aggregates.LastCompletedAt = output.Runs.LastCompletedAt.UTC().Format(time.RFC3339Nano)
		}
	}

	recent := make([]*RunResponse, len(output.RecentRuns))
	for i, run := range output.RecentRuns {
		recent[i] = runResponseFrom(run)
	}

	api.Success(w, http.StatusOK, StatsResponse{
		Fragments:      fragments,
		TotalFragments: output.TotalFragments,
		Edges:          output.EdgeCount,
		Runs:           aggregates,
		RecentRuns:     recent,
	})
}
