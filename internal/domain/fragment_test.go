package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFragment(t *testing.T) {
	f := NewFragment(
		KnowledgeIdentity("org1", "Deployment Runbook"),
		"org1", "",
		FragmentTypeKnowledge,
		"Deployment Runbook",
		"Step 1. Step 2.",
		[]string{"runbook", "runbook", "ops", ""},
		SourceTypeKnowledgePage,
		"docs/runbook.md",
	)

	assert.Equal(t, FragmentTypeKnowledge, f.Type)
	assert.Equal(t, "Step 1. Step 2.", f.Content)
	assert.False(t, f.Truncated)
	assert.Equal(t, []string{"ops", "runbook"}, f.Tags)
	assert.Equal(t, EmbeddingStatusPending, f.EmbeddingStatus)
	assert.Nil(t, f.Embedding)
}

func TestNormalizeContent(t *testing.T) {
	short, truncated := NormalizeContent("hello")
	assert.Equal(t, "hello", short)
	assert.False(t, truncated)

	long, truncated := NormalizeContent(strings.Repeat("a", MaxContentChars+100))
	assert.True(t, truncated)
	assert.Len(t, []rune(long), MaxContentChars)

	// rune boundaries, not byte boundaries
	wide, truncated := NormalizeContent(strings.Repeat("界", MaxContentChars+1))
	assert.True(t, truncated)
	assert.Len(t, []rune(wide), MaxContentChars)
}

func TestEmbeddingText(t *testing.T) {
	f := &Fragment{Title: "NewRouter", Content: "func NewRouter() {}"}
	assert.Equal(t, "NewRouter\n\nfunc NewRouter() {}", f.EmbeddingText())

	untitled := &Fragment{Content: "body only"}
	assert.Equal(t, "body only", untitled.EmbeddingText())
}

func TestValidateFragment(t *testing.T) {
	valid := func() *Fragment {
		return &Fragment{
			ID:              KnowledgeIdentity("org1", "Runbook"),
			OrgID:           "org1",
			Type:            FragmentTypeKnowledge,
			Title:           "Runbook",
			Content:         "Step 1.",
			SourceType:      SourceTypeKnowledgePage,
			SourceReference: "docs/runbook.md",
			EmbeddingStatus: EmbeddingStatusPending,
		}
	}

	tests := []struct {
		name    string
		mutate  func(f *Fragment)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid fragment",
			mutate:  func(f *Fragment) {},
			wantErr: false,
		},
		{
			name:    "missing ID",
			mutate:  func(f *Fragment) { f.ID = "" },
			wantErr: true,
			errMsg:  "ID",
		},
		{
			name:    "missing OrgID",
			mutate:  func(f *Fragment) { f.OrgID = "" },
			wantErr: true,
			errMsg:  "OrgID",
		},
		{
			name:    "missing Content",
			mutate:  func(f *Fragment) { f.Content = "" },
			wantErr: true,
			errMsg:  "Content",
		},
		{
			name:    "invalid type",
			mutate:  func(f *Fragment) { f.Type = "paragraph" },
			wantErr: true,
			errMsg:  "Type is invalid",
		},
		{
			name:    "invalid source type",
			mutate:  func(f *Fragment) { f.SourceType = "crawler" },
			wantErr: true,
			errMsg:  "SourceType is invalid",
		},
		{
			name: "code symbol without project",
			mutate: func(f *Fragment) {
				f.Type = FragmentTypeCodeSymbol
				f.SourceType = SourceTypeCodeFile
			},
			wantErr: true,
			errMsg:  "ProjectID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(f)
			err := ValidateFragment(f)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil))
	assert.Nil(t, NormalizeTags([]string{"", ""}))
	assert.Equal(t, []string{"function", "router.go"}, NormalizeTags([]string{"router.go", "function", "router.go"}))
}
