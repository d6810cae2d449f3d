package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/tessera-ai/tessera/internal/api"
	"github.com/tessera-ai/tessera/internal/api/middleware"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/service"
)

// ContextService assembles token-bounded context bundles.
type ContextService interface {
	Build(ctx context.Context, req service.ContextRequest) (*service.ContextBundle, error)
}

type ContextHandler struct {
	svc ContextService
}

func NewContextHandler(svc ContextService) *ContextHandler {
	return &ContextHandler{svc: svc}
}

type ContextRequest struct {
	Query       string   `json:"query"`
	Types       []string `json:"types,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	TokenBudget int      `json:"token_budget,omitempty"`
	ExpandDepth int      `json:"expand_depth,omitempty"`
}

type ContextFragmentResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Content         string  `json:"content"`
	Type            string  `json:"type"`
	SourceReference string  `json:"source_reference,omitempty"`
	Score           float32 `json:"score"`
	Tokens          int     `json:"tokens"`
	// ContentTruncated reports the ingest-time cut; the source holds more
	// than the stored content.
	ContentTruncated bool `json:"content_truncated,omitempty"`
	Related          bool `json:"related,omitempty"`
}

type ContextResponse struct {
	Fragments   []*ContextFragmentResponse `json:"fragments"`
	TotalTokens int                        `json:"total_tokens"`
	Truncated   bool                       `json:"truncated,omitempty"`
	Degraded    bool                       `json:"degraded,omitempty"`
}

// Build handles GET /context. The request is a JSON body; clients that
// cannot send a body on GET may pass the same fields as query parameters.
func (h *ContextHandler) Build(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		api.Error(w, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "query is required")
		return
	}

	types, err := parseFragmentTypes(req.Types)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	bundle, err := h.svc.Build(r.Context(), service.ContextRequest{
		OrgID:       orgID,
		Query:       req.Query,
		Types:       types,
		Tags:        splitParams(req.Tags),
		ProjectID:   req.ProjectID,
		TokenBudget: req.TokenBudget,
		ExpandDepth: req.ExpandDepth,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	fragments := make([]*ContextFragmentResponse, len(bundle.Fragments))
	for i, f := range bundle.Fragments {
		fragments[i] = &ContextFragmentResponse{
			ID:               f.ID,
			Title:            f.Title,
			Content:          f.Content,
			Type:             string(f.Type),
			SourceReference:  f.SourceReference,
			Score:            f.Score,
			Tokens:           f.Tokens,
			ContentTruncated: f.ContentTruncated,
			Related:          f.Related,
		}
	}

	api.Success(w, http.StatusOK, ContextResponse{
		Fragments:   fragments,
		TotalTokens: bundle.TotalTokens,
		Truncated:   bundle.Truncated,
		Degraded:    bundle.Degraded,
	})
}

func (h *ContextHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (ContextRequest, bool) {
	var req ContextRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err == nil {
		return req, true
	}
	if !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid request body")
		return req, false
	}

	// Empty body: fall back to query parameters.
	params := r.URL.Query()
	req.Query = params.Get("query")
	req.Types = params["types"]
	req.Tags = params["tags"]
	req.ProjectID = params.Get("project_id")

	if raw := params.Get("token_budget"); raw != "" {
		req.TokenBudget, err = strconv.Atoi(raw)
		if err != nil || req.TokenBudget < 0 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid token_budget")
			return req, false
		}
	}
	if raw := params.Get("expand_depth"); raw != "" {
		req.ExpandDepth, err = strconv.Atoi(raw)
		if err != nil || req.ExpandDepth < 0 {
			api.Error(w, http.StatusBadRequest, domain.ErrCodeValidation, "invalid expand_depth")
			return req, false
		}
	}
	return req, true
}
