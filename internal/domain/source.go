package domain

import (
	"fmt"
	"time"
)

// SourceKind represents the adapter a registered source is served by
type SourceKind string

const (
	SourceKindCodeFilesystem SourceKind = "code_filesystem"
	SourceKindKnowledgeS3    SourceKind = "knowledge_s3"
	SourceKindSessionLog     SourceKind = "session_log"
)

// Source is a registered input the scheduler indexes. Locator is
// adapter-specific: a directory root for filesystem sources, a
// bucket/prefix for S3 sources, a transcript directory for session logs.
type Source struct {
	ID        string
	OrgID     string
	ProjectID string // required for code sources, optional otherwise
	Name      string
	Kind      SourceKind
	Locator   string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnitState is the last known state of one source unit, used by change
// detection to split a source into added, modified, and removed units.
type UnitState struct {
	SourceID    string
	UnitRef     string
	ContentHash string
	SeenAt      time.Time
}

// NewSource creates a new Source instance
func NewSource(id, orgID, projectID, name string, kind SourceKind, locator string) *Source {
	return &Source{
		ID:        id,
		OrgID:     orgID,
		ProjectID: projectID,
		Name:      name,
		Kind:      kind,
		Locator:   locator,
		Enabled:   true,
	}
}

// FragmentSourceType maps the source kind to the fragment origin it emits
func (k SourceKind) FragmentSourceType() SourceType {
	switch k {
	case SourceKindCodeFilesystem:
		return SourceTypeCodeFile
	case SourceKindKnowledgeS3:
		return SourceTypeKnowledgePage
	case SourceKindSessionLog:
		return SourceTypeSessionLog
	}
	return ""
}

// ValidateSource validates a Source instance
func ValidateSource(s *Source) error {
	if s == nil {
		return fmt.Errorf("source cannot be nil")
	}

	if s.ID == "" {
		return fmt.Errorf("source ID is required")
	}

	if s.OrgID == "" {
		return fmt.Errorf("source OrgID is required")
	}

	if s.Name == "" {
		return fmt.Errorf("source Name is required")
	}

	if s.Locator == "" {
		return fmt.Errorf("source Locator is required")
	}

	if !isValidSourceKind(s.Kind) {
		return fmt.Errorf("source Kind is invalid: %s", s.Kind)
	}

	if s.Kind == SourceKindCodeFilesystem && s.ProjectID == "" {
		return fmt.Errorf("source ProjectID is required for code sources")
	}

	return nil
}

// isValidSourceKind checks if a SourceKind is valid
func isValidSourceKind(k SourceKind) bool {
	switch k {
	case SourceKindCodeFilesystem, SourceKindKnowledgeS3, SourceKindSessionLog:
		return true
	}
	return false
}
