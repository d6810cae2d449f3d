package domain

import (
	"fmt"
	"time"
)

// EdgeKind represents the type of a directed relationship between fragments
type EdgeKind string

const (
	EdgeKindDependsOn   EdgeKind = "depends_on"
	EdgeKindReferences  EdgeKind = "references"
	EdgeKindDerivedFrom EdgeKind = "derived_from"
)

// RelationshipEdge is a directed, typed link between two fragments.
// Nothing forbids cycles; traversal guards against them with a visited set.
type RelationshipEdge struct {
	FromID    string
	ToID      string
	Kind      EdgeKind
	CreatedAt time.Time
}

// NewRelationshipEdge creates a new RelationshipEdge instance
func NewRelationshipEdge(fromID, toID string, kind EdgeKind) *RelationshipEdge {
	return &RelationshipEdge{
		FromID: fromID,
		ToID:   toID,
		Kind:   kind,
	}
}

// ValidateRelationshipEdge validates a RelationshipEdge instance
func ValidateRelationshipEdge(e *RelationshipEdge) error {
	if e == nil {
		return fmt.Errorf("relationship edge cannot be nil")
	}

	if e.FromID == "" {
		return fmt.Errorf("relationship edge FromID is required")
	}

	if e.ToID == "" {
		return fmt.Errorf("relationship edge ToID is required")
	}

	if !isValidEdgeKind(e.Kind) {
		return fmt.Errorf("relationship edge Kind is invalid: %s", e.Kind)
	}

	return nil
}

// isValidEdgeKind checks if an EdgeKind is valid
func isValidEdgeKind(k EdgeKind) bool {
	switch k {
	case EdgeKindDependsOn, EdgeKindReferences, EdgeKindDerivedFrom:
		return true
	}
	return false
}
