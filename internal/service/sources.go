package service

import (
	"context"
	"time"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// CreateSourceInput represents input for registering a source
type CreateSourceInput struct {
	OrgID     string
	ProjectID string
	Name      string
	Kind      domain.SourceKind
	Locator   string
}

// SourceService manages registered sources. Names are unique per
// organization; the scheduler indexes whatever is registered and enabled.
type SourceService struct {
	sources SourceRepositoryInterface
	uuidGen UUIDGenerator
}

// NewSourceService creates a new SourceService instance
func NewSourceService(sources SourceRepositoryInterface, uuidGen UUIDGenerator) *SourceService {
	return &SourceService{
		sources: sources,
		uuidGen: uuidGen,
	}
}

func (s *SourceService) Create(ctx context.Context, input CreateSourceInput) (*domain.Source, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceService.Create", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "create_source",
	})
	defer span.End()

	src := domain.NewSource(s.uuidGen.NewString(), input.OrgID, input.ProjectID, input.Name, input.Kind, input.Locator)
	now := time.Now().UTC()
	src.CreatedAt = now
	src.UpdatedAt = now

	if err := domain.ValidateSource(src); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid source", err)
	}

	existing, err := s.sources.GetByName(ctx, input.OrgID, input.Name)
	if err != nil && err != domain.ErrSourceNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrSourceAlreadyExists
	}

	if err := s.sources.Create(ctx, src); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *SourceService) Get(ctx context.Context, orgID, id string) (*domain.Source, error) {
	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "source ID is required")
	}
	return s.sources.GetByID(ctx, orgID, id)
}

func (s *SourceService) GetByName(ctx context.Context, orgID, name string) (*domain.Source, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "source name is required")
	}
	return s.sources.GetByName(ctx, orgID, name)
}

func (s *SourceService) List(ctx context.Context, orgID string) ([]*domain.Source, error) {
	if orgID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "organization ID is required")
	}
	return s.sources.ListByOrg(ctx, orgID)
}

func (s *SourceService) SetEnabled(ctx context.Context, orgID, id string, enabled bool) error {
	if id == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "source ID is required")
	}
	return s.sources.SetEnabled(ctx, orgID, id, enabled)
}

// Delete removes the source registration and its unit states. Indexed
// fragments stay; remove them first with a delete-by-source pass if the
// content should go too.
func (s *SourceService) Delete(ctx context.Context, orgID, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "SourceService.Delete", telemetry.SpanAttributes{
		OrgID:     orgID,
		SourceID:  id,
		Operation: "delete_source",
	})
	defer span.End()

	if id == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "source ID is required")
	}
	return s.sources.Delete(ctx, orgID, id)
}
