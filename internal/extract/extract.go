// Package extract turns source units into fragment drafts and the
// relationship edges discovered in the same pass.
package extract

import (
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/source"
)

// Confidence defaults per fragment type: code parses deterministically,
// knowledge structure is heuristic, session turns are free-form.
const (
	codeConfidence      = 1.0
	knowledgeConfidence = 0.9
	sessionConfidence   = 0.5
)

// Extractor turns one source unit into fragment drafts plus relationship
// edges. A unit-level error means nothing usable came out of the unit; the
// caller records it and continues with the unit's siblings.
type Extractor interface {
	Extract(unit source.Unit) ([]domain.Fragment, []domain.RelationshipEdge, error)
}

// ForKind returns the extractor handling a source kind. Code extraction is
// project-scoped because symbol identity includes the project.
func ForKind(kind domain.SourceKind, orgID, projectID string) (Extractor, error) {
	switch kind {
	case domain.SourceKindCodeFilesystem:
		return NewCodeExtractor(orgID, projectID), nil
	case domain.SourceKindKnowledgeS3:
		return NewKnowledgeExtractor(orgID), nil
	case domain.SourceKindSessionLog:
		return NewSessionExtractor(orgID), nil
	}
	return nil, domain.ErrInvalidSourceKind
}
