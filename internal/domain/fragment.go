package domain

import (
	"fmt"
	"sort"
	"time"
)

// FragmentType represents the kind of content a fragment carries
type FragmentType string

const (
	FragmentTypeCodeSymbol FragmentType = "code_symbol"
	FragmentTypeKnowledge  FragmentType = "knowledge"
	FragmentTypeSession    FragmentType = "session_interaction"
)

// ParseFragmentType converts an external string into a FragmentType
func ParseFragmentType(s string) (FragmentType, error) {
	t := FragmentType(s)
	if !isValidFragmentType(t) {
		return "", ErrInvalidFragmentType
	}
	return t, nil
}

// SourceType represents the origin a fragment was extracted from
type SourceType string

const (
	SourceTypeCodeFile      SourceType = "code_file"
	SourceTypeKnowledgePage SourceType = "knowledge_page"
	SourceTypeSessionLog    SourceType = "session_log"
)

// EmbeddingStatus tracks whether a fragment has a vector attached
type EmbeddingStatus string

const (
	EmbeddingStatusPending  EmbeddingStatus = "pending"
	EmbeddingStatusEmbedded EmbeddingStatus = "embedded"
	EmbeddingStatusFailed   EmbeddingStatus = "failed"
)

// MaxContentChars bounds the indexable content length in runes. Longer
// content is cut and the fragment marked truncated so callers can fetch
// the full text from the source on demand.
const MaxContentChars = 8000

// Fragment is the atomic indexable unit: one code symbol, one knowledge
// page, or one session turn. The ID is a stable content-derived identity
// (see identity.go), never a random uuid.
type Fragment struct {
	ID              string
	OrgID           string
	ProjectID       string // empty for org-wide knowledge and session fragments
	Type            FragmentType
	Title           string
	Content         string
	Truncated       bool
	Tags            []string
	SourceType      SourceType
	SourceReference string
	Embedding       []float32 // nil until embedded
	EmbeddingStatus EmbeddingStatus
	ConfidenceScore float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewFragment creates a draft Fragment with normalized content and tags.
// Embedding starts pending; timestamps are set by the storage layer on
// upsert.
func NewFragment(id, orgID, projectID string, fragmentType FragmentType, title, content string, tags []string, sourceType SourceType, sourceReference string) *Fragment {
	normalized, truncated := NormalizeContent(content)
	return &Fragment{
		ID:              id,
		OrgID:           orgID,
		ProjectID:       projectID,
		Type:            fragmentType,
		Title:           title,
		Content:         normalized,
		Truncated:       truncated,
		Tags:            NormalizeTags(tags),
		SourceType:      sourceType,
		SourceReference: sourceReference,
		EmbeddingStatus: EmbeddingStatusPending,
	}
}

// NormalizeContent bounds content to MaxContentChars runes. The second
// return reports whether a cut happened.
func NormalizeContent(content string) (string, bool) {
	runes := []rune(content)
	if len(runes) <= MaxContentChars {
		return content, false
	}
	return string(runes[:MaxContentChars]), true
}

// NormalizeTags returns the tag set deduplicated, sorted, and with empty
// entries dropped
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// EmbeddingText returns the text sent to the embedding provider
func (f *Fragment) EmbeddingText() string {
	if f.Title == "" {
		return f.Content
	}
	return f.Title + "\n\n" + f.Content
}

// ValidateFragment validates a Fragment instance
func ValidateFragment(f *Fragment) error {
	if f == nil {
		return fmt.Errorf("fragment cannot be nil")
	}

	if f.ID == "" {
		return fmt.Errorf("fragment ID is required")
	}

	if f.OrgID == "" {
		return fmt.Errorf("fragment OrgID is required")
	}

	if f.Title == "" {
		return fmt.Errorf("fragment Title is required")
	}

	if f.Content == "" {
		return fmt.Errorf("fragment Content is required")
	}

	if f.SourceReference == "" {
		return fmt.Errorf("fragment SourceReference is required")
	}

	if !isValidFragmentType(f.Type) {
		return fmt.Errorf("fragment Type is invalid: %s", f.Type)
	}

	if !isValidSourceType(f.SourceType) {
		return fmt.Errorf("fragment SourceType is invalid: %s", f.SourceType)
	}

	if !isValidEmbeddingStatus(f.EmbeddingStatus) {
		return fmt.Errorf("fragment EmbeddingStatus is invalid: %s", f.EmbeddingStatus)
	}

	if f.Type == FragmentTypeCodeSymbol && f.ProjectID == "" {
		return fmt.Errorf("fragment ProjectID is required for code symbols")
	}

	return nil
}

// isValidFragmentType checks if a FragmentType is valid
func isValidFragmentType(t FragmentType) bool {
	switch t {
	case FragmentTypeCodeSymbol, FragmentTypeKnowledge, FragmentTypeSession:
		return true
	}
	return false
}

// isValidSourceType checks if a SourceType is valid
func isValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypeCodeFile, SourceTypeKnowledgePage, SourceTypeSessionLog:
		return true
	}
	return false
}

// isValidEmbeddingStatus checks if an EmbeddingStatus is valid
func isValidEmbeddingStatus(s EmbeddingStatus) bool {
	switch s {
	case EmbeddingStatusPending, EmbeddingStatusEmbedded, EmbeddingStatusFailed:
		return true
	}
	return false
}
