package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-ai/tessera/internal/domain"
)

func TestForKind(t *testing.T) {
	tests := []struct {
		kind domain.SourceKind
		want any
	}{
		{domain.SourceKindCodeFilesystem, &CodeExtractor{}},
		{domain.SourceKindKnowledgeS3, &KnowledgeExtractor{}},
		{domain.SourceKindSessionLog, &SessionExtractor{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			extractor, err := ForKind(tt.kind, "org-1", "proj-1")
			require.NoError(t, err)
			assert.IsType(t, tt.want, extractor)
		})
	}
}

func TestForKind_Unknown(t *testing.T) {
	_, err := ForKind(domain.SourceKind("carrier_pigeon"), "org-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidSourceKind)
}
