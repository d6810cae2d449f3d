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

// FragmentService exposes stored fragment reads and graph traversal.
type FragmentService interface {
	Get(ctx context.Context, orgID, id string) (*domain.Fragment, error)
	List(ctx context.Context, input service.ListFragmentsInput) (*service.FragmentPageResult, error)
	Related(ctx context.Context, orgID, id string, depth int) ([]*service.GraphNode, error)
}

type FragmentsHandler struct {
	svc FragmentService
}

func NewFragmentsHandler(svc FragmentService) *FragmentsHandler {
	return &FragmentsHandler{svc: svc}
}

type FragmentResponse struct {
	ID              string   `json:"id"`
	ProjectID       string   `json:"project_id,omitempty"`
	Type            string   `json:"type"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Truncated       bool     `json:"truncated,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	SourceType      string   `json:"source_type"`
	SourceReference string   `json:"source_reference,omitempty"`
	EmbeddingStatus string   `json:"embedding_status"`
	ConfidenceScore float64  `json:"confidence_score,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

type ListFragmentsResponse struct {
	Fragments []*FragmentResponse `json:"fragments"`
	Cursor    string              `json:"cursor,omitempty"`
	HasMore   bool                `json:"has_more"`
}

type RelatedFragmentResponse struct {
	Fragment *FragmentResponse `json:"fragment"`
	Depth    int               `json:"depth"`
}

type RelatedResponse struct {
	Related []*RelatedFragmentResponse `json:"related"`
}

func fragmentResponseFrom(f *domain.Fragment) *FragmentResponse {
	resp := &FragmentResponse{
		ID:              f.ID,
		ProjectID:       f.ProjectID,
		Type:            string(f.Type),
		Title:           f.Title,
		Content:         f.Content,
		Truncated:       f.Truncated,
		Tags:            f.Tags,
		SourceType:      string(f.SourceType),
		SourceReference: f.SourceReference,
		EmbeddingStatus: string(f.EmbeddingStatus),
		ConfidenceScore: f.ConfidenceScore,
	}
	if !f.CreatedAt.IsZero() {
		resp.CreatedAt = f.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !f.UpdatedAt.IsZero() {
		resp.UpdatedAt = f.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

// Get handles GET /fragments/{id}.
func (h *FragmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")

	fragment, err := h.svc.Get(r.Context(), orgID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, fragmentResponseFrom(fragment))
}

// List handles GET /fragments with cursor pagination.
func (h *FragmentsHandler) List(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.svc.List(r.Context(), service.ListFragmentsInput{
		OrgID:  orgID,
		Limit:  limit,
		Cursor: params.Get("cursor"),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	fragments := make([]*FragmentResponse, len(page.Items))
	for i, f := range page.Items {
		fragments[i] = fragmentResponseFrom(f)
	}

	api.Success(w, http.StatusOK, ListFragmentsResponse{
		Fragments: fragments,
		Cursor:    page.NextCursor,
		HasMore:   page.HasMore,
	})
}

// Related handles GET /fragments/{id}/related. Depth 0 asks for the
// configured default; the traversal ceiling is enforced by the service.
func (h *FragmentsHandler) Related(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")

	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		var err error
		depth, err = strconv.Atoi(raw)
		if err != nil || depth < 0 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid depth")
			return
		}
	}

	nodes, err := h.svc.Related(r.Context(), orgID, id, depth)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	related := make([]*RelatedFragmentResponse, len(nodes))
	for i, node := range nodes {
		related[i] = &RelatedFragmentResponse{
			Fragment: fragmentResponseFrom(node.Fragment),
			Depth:    node.Depth,
		}
	}

	api.Success(w, http.StatusOK, RelatedResponse{Related: related})
}
