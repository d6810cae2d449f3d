package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		source  *Source
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid knowledge source",
			source:  NewSource("src1", "org1", "", "wiki", SourceKindKnowledgeS3, "kb-bucket/pages/"),
			wantErr: false,
		},
		{
			name:    "valid code source",
			source:  NewSource("src2", "org1", "proj1", "backend", SourceKindCodeFilesystem, "/srv/repos/backend"),
			wantErr: false,
		},
		{
			name:    "code source without project",
			source:  NewSource("src3", "org1", "", "backend", SourceKindCodeFilesystem, "/srv/repos/backend"),
			wantErr: true,
			errMsg:  "ProjectID",
		},
		{
			name:    "missing locator",
			source:  NewSource("src4", "org1", "", "wiki", SourceKindKnowledgeS3, ""),
			wantErr: true,
			errMsg:  "Locator",
		},
		{
			name:    "invalid kind",
			source:  NewSource("src5", "org1", "", "wiki", "webhook", "x"),
			wantErr: true,
			errMsg:  "Kind is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSource(tt.source)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestFragmentSourceType(t *testing.T) {
	assert.Equal(t, SourceTypeCodeFile, SourceKindCodeFilesystem.FragmentSourceType())
	assert.Equal(t, SourceTypeKnowledgePage, SourceKindKnowledgeS3.FragmentSourceType())
	assert.Equal(t, SourceTypeSessionLog, SourceKindSessionLog.FragmentSourceType())
	assert.Equal(t, SourceType(""), SourceKind("webhook").FragmentSourceType())
}

func TestValidateRelationshipEdge(t *testing.T) {
	tests := []struct {
		name    string
		edge    *RelationshipEdge
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid edge",
			edge:    NewRelationshipEdge("a", "b", EdgeKindDependsOn),
			wantErr: false,
		},
		{
			name:    "missing FromID",
			edge:    NewRelationshipEdge("", "b", EdgeKindReferences),
			wantErr: true,
			errMsg:  "FromID",
		},
		{
			name:    "invalid kind",
			edge:    NewRelationshipEdge("a", "b", "points_at"),
			wantErr: true,
			errMsg:  "Kind is invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelationshipEdge(tt.edge)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
