package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/source"
)

// maxTurnLineBytes bounds a single transcript line; content is truncated
// to MaxContentChars later anyway.
const maxTurnLineBytes = 1 << 20

// SessionExtractor turns a JSONL transcript into one fragment per
// conversational turn. The unit ref is the session id.
type SessionExtractor struct {
	orgID string
}

// NewSessionExtractor creates a new SessionExtractor instance
func NewSessionExtractor(orgID string) *SessionExtractor {
	return &SessionExtractor{orgID: orgID}
}

type sessionTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Extract reads the transcript line by line. Any malformed line fails the
// whole unit; turn indices must stay stable for identity, so a transcript
// is indexed all-or-nothing.
func (e *SessionExtractor) Extract(unit source.Unit) ([]domain.Fragment, []domain.RelationshipEdge, error) {
	sessionID := unit.Ref

	scanner := bufio.NewScanner(bytes.NewReader(unit.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxTurnLineBytes)

	var fragments []domain.Fragment
	var edges []domain.RelationshipEdge
	var prevID string
	turnIndex := 0
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var turn sessionTurn
		if err := json.Unmarshal(line, &turn); err != nil {
			return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeParse,
				fmt.Sprintf("transcript %s line %d is not a valid turn", sessionID, lineNo), err)
		}
		if turn.Role == "" || turn.Text == "" {
			return nil, nil, domain.NewDomainError(domain.ErrCodeParse,
				fmt.Sprintf("transcript %s line %d is missing role or text", sessionID, lineNo))
		}

		id := domain.SessionIdentity(e.orgID, sessionID, turnIndex)
		f := domain.NewFragment(
			id, e.orgID, "",
			domain.FragmentTypeSession,
			fmt.Sprintf("%s #%d", sessionID, turnIndex),
			turn.Text,
			[]string{turn.Role},
			domain.SourceTypeSessionLog,
			fmt.Sprintf("%s#%d", sessionID, turnIndex),
		)
		f.ConfidenceScore = sessionConfidence
		fragments = append(fragments, *f)

		if prevID != "" {
			edges = append(edges, *domain.NewRelationshipEdge(id, prevID, domain.EdgeKindDerivedFrom))
		}
		prevID = id
		turnIndex++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeParse,
			fmt.Sprintf("transcript %s could not be read", sessionID), err)
	}
	if len(fragments) == 0 {
		return nil, nil, domain.NewDomainError(domain.ErrCodeParse,
			fmt.Sprintf("transcript %s has no turns", sessionID))
	}

	return fragments, edges, nil
}
