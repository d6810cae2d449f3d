package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/service"
)

// SearchService ranks fragments for a query.
type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchResultResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Snippet         string  `json:"snippet,omitempty"`
	Score           float32 `json:"score"`
	FragmentType    string  `json:"fragment_type"`
	SourceReference string  `json:"source_reference,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

type SearchResponse struct {
	Results  []*SearchResultResponse `json:"results"`
	Degraded bool                    `json:"degraded,omitempty"`
}

// Search handles GET /search. Filters arrive as query parameters; type and
// tags accept repeated parameters or comma-separated values.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	params := r.URL.Query()

	query := params.Get("query")
	if query == "" {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "query is required")
		return
	}

	types, err := parseFragmentTypes(params["type"])
	if err != nil {
		api.HandleError(w, err)
		return
	}

	limit := 0
	if raw := params.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid limit")
			return
		}
	}

	output, err := h.svc.Search(r.Context(), service.SearchInput{
		OrgID:     orgID,
		Query:     query,
		Types:     types,
		Tags:      splitParams(params["tags"]),
		ProjectID: params.Get("project_id"),
		Limit:     limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, len(output.Results))
	for i, result := range output.Results {
		updatedAt := ""
		if !result.UpdatedAt.IsZero() {
			updatedAt = result.UpdatedAt.UTC().Format(time.RFC3339Nano)
		}
		responses[i] = &SearchResultResponse{
			ID:              result.ID,
			Title:           result.Title,
			Snippet:         result.Snippet,
			Score:           result.Score,
			FragmentType:    string(result.Type),
			SourceReference: result.SourceReference,
			UpdatedAt:       updatedAt,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: responses, Degraded: output.Degraded})
}

// splitParams flattens repeated query parameters and comma-separated
// values into one list, dropping empties.
func splitParams(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseFragmentTypes(values []string) ([]domain.FragmentType, error) {
	raw := splitParams(values)
	if len(raw) == 0 {
		return nil, nil
	}
	types := make([]domain.FragmentType, 0, len(raw))
	for _, v := range raw {
		ft, err := domain.ParseFragmentType(v)
		if err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	return types, nil
}
