package source

import (
	"context"

	"github.com/tessera-ai/tessera/internal/domain"
)

// Unit is one indexable input from a registered source: a code file, a
// knowledge page, or a session transcript. Ref is the adapter-scoped
// stable reference (slash-separated relative path, object key, or session
// id) and doubles as the source-reference prefix of every fragment the
// unit produces.
type Unit struct {
	Ref         string
	Name        string
	ContentHash string // sha256 hex over the raw content
	Content     []byte // nil until Fetch
}

// Adapter lists and fetches the units of one registered source.
//
// ListUnits enumerates current units with content hashes and no content;
// change detection compares these hashes against stored unit states.
// Fetch loads a single unit with content, so only changed units are held
// in memory during a run.
type Adapter interface {
	Kind() domain.SourceKind
	ListUnits(ctx context.Context) ([]Unit, error)
	Fetch(ctx context.Context, ref string) (Unit, error)
}

// Factory builds the adapter for a registered source. The S3 client is
// optional; sources that need it fail with a configuration error when it
// was never set up.
type Factory struct {
	s3 *S3Client
}

// NewFactory creates a new Factory instance
func NewFactory(s3 *S3Client) *Factory {
	return &Factory{s3: s3}
}

// ForSource returns the adapter serving the source's kind and locator.
func (f *Factory) ForSource(src *domain.Source) (Adapter, error) {
	switch src.Kind {
	case domain.SourceKindCodeFilesystem:
		return NewFilesystemAdapter(src.Locator), nil
	case domain.SourceKindKnowledgeS3:
		if f.s3 == nil {
			return nil, domain.NewDomainError(domain.ErrCodeConfiguration, "s3 credentials are not configured")
		}
		bucket, prefix, err := ParseS3Locator(src.Locator)
		if err != nil {
			return nil, err
		}
		return NewS3Adapter(f.s3, bucket, prefix), nil
	case domain.SourceKindSessionLog:
		return NewSessionLogAdapter(src.Locator), nil
	}
	return nil, domain.ErrInvalidSourceKind
}
