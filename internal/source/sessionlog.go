package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tessera-ai/tessera/internal/domain"
)

// SessionLogAdapter serves session transcripts stored as JSONL files in a
// directory, one file per session. The file name without extension is the
// session id and the unit ref.
type SessionLogAdapter struct {
	dir string
}

// NewSessionLogAdapter creates a new SessionLogAdapter instance
func NewSessionLogAdapter(dir string) *SessionLogAdapter {
	return &SessionLogAdapter{dir: dir}
}

// Kind returns the source kind this adapter serves
func (a *SessionLogAdapter) Kind() domain.SourceKind {
	return domain.SourceKindSessionLog
}

// ListUnits returns one unit per transcript file.
func (a *SessionLogAdapter) ListUnits(ctx context.Context) ([]Unit, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript dir %s: %w", a.dir, err)
	}

	var units []Unit
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(a.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript %s: %w", entry.Name(), err)
		}
		ref := strings.TrimSuffix(entry.Name(), ".jsonl")
		units = append(units, Unit{
			Ref:         ref,
			Name:        ref,
			ContentHash: hashContent(content),
		})
	}
	return units, nil
}

// Fetch loads one transcript by session id.
func (a *SessionLogAdapter) Fetch(ctx context.Context, ref string) (Unit, error) {
	path := filepath.Join(a.dir, ref+".jsonl")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unit{}, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("transcript %s not found", ref))
		}
		return Unit{}, fmt.Errorf("failed to read transcript %s: %w", path, err)
	}
	return Unit{
		Ref:         ref,
		Name:        ref,
		ContentHash: hashContent(content),
		Content:     content,
	}, nil
}
