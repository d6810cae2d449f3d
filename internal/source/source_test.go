package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

func TestParseS3Locator(t *testing.T) {
	tests := []struct {
		name       string
		locator    string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{"scheme with prefix", "s3://acme-wiki/pages/", "acme-wiki", "pages/", false},
		{"scheme without prefix", "s3://acme-wiki", "acme-wiki", "", false},
		{"no scheme", "acme-wiki/pages", "acme-wiki", "pages", false},
		{"nested prefix", "s3://acme-wiki/team/runbooks/", "acme-wiki", "team/runbooks/", false},
		{"empty", "", "", "", true},
		{"scheme only", "s3://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, prefix, err := ParseS3Locator(tt.locator)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestFactory_ForSource(t *testing.T) {
	factory := NewFactory(nil)

	fsSource := domain.NewSource("source-1", "org-1", "proj-1", "repo", domain.SourceKindCodeFilesystem, "/srv/repo")
	adapter, err := factory.ForSource(fsSource)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceKindCodeFilesystem, adapter.Kind())

	sessSource := domain.NewSource("source-2", "org-1", "", "chats", domain.SourceKindSessionLog, "/var/log/sessions")
	adapter, err = factory.ForSource(sessSource)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceKindSessionLog, adapter.Kind())
}

func TestFactory_ForSource_S3WithoutClient(t *testing.T) {
	factory := NewFactory(nil)

	s3Source := domain.NewSource("source-3", "org-1", "", "wiki", domain.SourceKindKnowledgeS3, "s3://acme-wiki/pages/")
	_, err := factory.ForSource(s3Source)

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeConfiguration, domainErr.Code)
}

func TestFactory_ForSource_UnknownKind(t *testing.T) {
	factory := NewFactory(nil)

	src := domain.NewSource("source-4", "org-1", "", "odd", domain.SourceKind("ftp"), "ftp://host/")
	_, err := factory.ForSource(src)

	assert.ErrorIs(t, err, domain.ErrInvalidSourceKind)
}

func TestIsKnowledgeKey(t *testing.T) {
	assert.True(t, isKnowledgeKey("pages/runbook.md"))
	assert.True(t, isKnowledgeKey("pages/RUNBOOK.MD"))
	assert.True(t, isKnowledgeKey("notes.markdown"))
	assert.True(t, isKnowledgeKey("plain.txt"))
	assert.False(t, isKnowledgeKey("pages/"))
	assert.False(t, isKnowledgeKey("image.png"))
	assert.False(t, isKnowledgeKey("archive.tar.gz"))
}

func TestPageName(t *testing.T) {
	assert.Equal(t, "Deployment Runbook", pageName("pages/Deployment Runbook.md"))
	assert.Equal(t, "notes", pageName("notes.txt"))
	assert.Equal(t, "index", pageName("a/b/c/index.markdown"))
}
