package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tessera-ai/tessera/internal/domain"
)

// FilesystemAdapter serves Go source files under a directory root. Unit
// refs are slash-separated paths relative to the root, so they stay stable
// across hosts and become the source-reference prefix of extracted
// fragments.
type FilesystemAdapter struct {
	root string
}

// NewFilesystemAdapter creates a new FilesystemAdapter instance
func NewFilesystemAdapter(root string) *FilesystemAdapter {
	return &FilesystemAdapter{root: root}
}

// Kind returns the source kind this adapter serves
func (a *FilesystemAdapter) Kind() domain.SourceKind {
	return domain.SourceKindCodeFilesystem
}

// ListUnits walks the root and returns every Go file with its content
// hash. Hidden directories, vendor trees, and underscore-prefixed
// directories are skipped, matching what the Go toolchain ignores.
func (a *FilesystemAdapter) ListUnits(ctx context.Context) ([]Unit, error) {
	var units []Unit
	err := filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if path != a.root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		units = append(units, Unit{
			Ref:         filepath.ToSlash(rel),
			Name:        name,
			ContentHash: hashContent(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list units under %s: %w", a.root, err)
	}
	return units, nil
}

// Fetch reads one file by its relative ref.
func (a *FilesystemAdapter) Fetch(ctx context.Context, ref string) (Unit, error) {
	path := filepath.Join(a.root, filepath.FromSlash(ref))
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unit{}, domain.NewDomainError(domain.ErrCodeNotFound, fmt.Sprintf("unit %s not found", ref))
		}
		return Unit{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Unit{
		Ref:         ref,
		Name:        filepath.Base(ref),
		ContentHash: hashContent(content),
		Content:     content,
	}, nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
