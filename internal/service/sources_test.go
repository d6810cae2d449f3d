package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

func TestSourceService_Create(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)
	mockUUID := NewMockUUIDGenerator("source-uuid-1")

	mockSources.On("GetByName", mock.Anything, "org-1", "main-repo").Return(nil, domain.ErrSourceNotFound)
	mockSources.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.Source) bool {
		return s.ID == "source-uuid-1" && s.Name == "main-repo" && s.Enabled
	})).Return(nil)

	service := NewSourceService(mockSources, mockUUID)
	src, err := service.Create(ctx, CreateSourceInput{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Name:      "main-repo",
		Kind:      domain.SourceKindCodeFilesystem,
		Locator:   "/srv/repos/main",
	})

	require.NoError(t, err)
	assert.Equal(t, "source-uuid-1", src.ID)
	assert.Equal(t, domain.SourceKindCodeFilesystem, src.Kind)
	assert.True(t, src.Enabled)
	assert.False(t, src.CreatedAt.IsZero())
	mockSources.AssertExpectations(t)
}

func TestSourceService_Create_DuplicateName(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)
	mockUUID := NewMockUUIDGenerator("source-uuid-2")

	existing := domain.NewSource("source-uuid-1", "org-1", "proj-1", "main-repo", domain.SourceKindCodeFilesystem, "/srv/repos/main")
	mockSources.On("GetByName", mock.Anything, "org-1", "main-repo").Return(existing, nil)

	service := NewSourceService(mockSources, mockUUID)
	_, err := service.Create(ctx, CreateSourceInput{
		OrgID:     "org-1",
		ProjectID: "proj-1",
		Name:      "main-repo",
		Kind:      domain.SourceKindCodeFilesystem,
		Locator:   "/srv/repos/other",
	})

	assert.ErrorIs(t, err, domain.ErrSourceAlreadyExists)
	mockSources.AssertNotCalled(t, "Create")
}

func TestSourceService_Create_CodeSourceNeedsProject(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)
	mockUUID := NewMockUUIDGenerator("source-uuid-1")

	service := NewSourceService(mockSources, mockUUID)
	_, err := service.Create(ctx, CreateSourceInput{
		OrgID:   "org-1",
		Name:    "main-repo",
		Kind:    domain.SourceKindCodeFilesystem,
		Locator: "/srv/repos/main",
	})

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
	mockSources.AssertNotCalled(t, "GetByName")
}

func TestSourceService_Create_KnowledgeSourceWithoutProject(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)
	mockUUID := NewMockUUIDGenerator("source-uuid-3")

	mockSources.On("GetByName", mock.Anything, "org-1", "wiki").Return(nil, domain.ErrSourceNotFound)
	mockSources.On("Create", mock.Anything, mock.Anything).Return(nil)

	service := NewSourceService(mockSources, mockUUID)
	src, err := service.Create(ctx, CreateSourceInput{
		OrgID:   "org-1",
		Name:    "wiki",
		Kind:    domain.SourceKindKnowledgeS3,
		Locator: "s3://acme-wiki/pages/",
	})

	require.NoError(t, err)
	assert.Empty(t, src.ProjectID)
}

func TestSourceService_Create_InvalidKind(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)
	mockUUID := NewMockUUIDGenerator("source-uuid-1")

	service := NewSourceService(mockSources, mockUUID)
	_, err := service.Create(ctx, CreateSourceInput{
		OrgID:   "org-1",
		Name:    "weird",
		Kind:    domain.SourceKind("ftp"),
		Locator: "ftp://host/",
	})

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
}

func TestSourceService_Get(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)

	src := domain.NewSource("source-1", "org-1", "", "wiki", domain.SourceKindKnowledgeS3, "s3://acme-wiki/")
	mockSources.On("GetByID", mock.Anything, "org-1", "source-1").Return(src, nil)

	service := NewSourceService(mockSources, NewMockUUIDGenerator())
	got, err := service.Get(ctx, "org-1", "source-1")

	require.NoError(t, err)
	assert.Equal(t, "wiki", got.Name)
}

func TestSourceService_Get_EmptyID(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)

	service := NewSourceService(mockSources, NewMockUUIDGenerator())
	_, err := service.Get(ctx, "org-1", "")

	require.Error(t, err)
	mockSources.AssertNotCalled(t, "GetByID")
}

func TestSourceService_List(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)

	mockSources.On("ListByOrg", mock.Anything, "org-1").Return([]*domain.Source{
		domain.NewSource("source-1", "org-1", "proj-1", "main-repo", domain.SourceKindCodeFilesystem, "/srv/repos/main"),
		domain.NewSource("source-2", "org-1", "", "wiki", domain.SourceKindKnowledgeS3, "s3://acme-wiki/"),
	}, nil)

	service := NewSourceService(mockSources, NewMockUUIDGenerator())
	sources, err := service.List(ctx, "org-1")

	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestSourceService_SetEnabled(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)

	mockSources.On("SetEnabled", mock.Anything, "org-1", "source-1", false).Return(nil)

	service := NewSourceService(mockSources, NewMockUUIDGenerator())
	err := service.SetEnabled(ctx, "org-1", "source-1", false)

	require.NoError(t, err)
	mockSources.AssertExpectations(t)
}

func TestSourceService_Delete(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)

	mockSources.On("Delete", mock.Anything, "org-1", "source-1").Return(nil)

	service := NewSourceService(mockSources, NewMockUUIDGenerator())
	err := service.Delete(ctx, "org-1", "source-1")

	require.NoError(t, err)
	mockSources.AssertExpectations(t)
}

func TestSourceService_Delete_NotFound(t *testing.T) {
	ctx := context.Background()
	mockSources := new(MockSourceRepository)

	mockSources.On("Delete", mock.Anything, "org-1", "source-missing").Return(domain.ErrSourceNotFound)

	service := NewSourceService(mockSources, NewMockUUIDGenerator())
	err := service.Delete(ctx, "org-1", "source-missing")

	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}
