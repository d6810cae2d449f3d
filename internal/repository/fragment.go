package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
	"github.com/tessera-ai/tessera/internal/service"
)

type FragmentRepository struct {
	db dbtx
}

func NewFragmentRepository(pool *pgxpool.Pool) *FragmentRepository {
	return &FragmentRepository{db: pool}
}

func NewFragmentRepositoryWithTx(tx pgx.Tx) *FragmentRepository {
	return &FragmentRepository{db: tx}
}

// Upsert inserts the fragment or, when the stable id already exists,
// overwrites its mutable columns. Per-key serialization comes from the row
// lock Postgres takes on the conflicting id; created_at survives updates.
// The tsvector column is generated, so the full-text index moves in the
// same statement as the row.
func (r *FragmentRepository) Upsert(ctx context.Context, f *domain.Fragment) error {
	var embedding any
	if f.Embedding != nil {
		embedding = pgvector.NewVector(f.Embedding)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO fragments (id, org_id, project_id, fragment_type, title, content, truncated, tags,
		                        source_type, source_reference, embedding, embedding_status, confidence_score,
		                        created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     content = EXCLUDED.content,
		     truncated = EXCLUDED.truncated,
		     tags = EXCLUDED.tags,
		     source_reference = EXCLUDED.source_reference,
		     embedding = EXCLUDED.embedding,
		     embedding_status = EXCLUDED.embedding_status,
		     confidence_score = EXCLUDED.confidence_score,
		     updated_at = EXCLUDED.updated_at`,
		f.ID, f.OrgID, nullableString(f.ProjectID), f.Type, f.Title, f.Content, f.Truncated, f.Tags,
		f.SourceType, f.SourceReference, embedding, f.EmbeddingStatus, f.ConfidenceScore,
		f.UpdatedAt,
	)
	return err
}

func (r *FragmentRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Fragment, error) {
	var f domain.Fragment
	var projectID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, project_id, fragment_type, title, content, truncated, tags,
		        source_type, source_reference, embedding_status, confidence_score, created_at, updated_at
		 FROM fragments WHERE org_id = $1 AND id = $2`,
		orgID, id,
	).Scan(&f.ID, &f.OrgID, &projectID, &f.Type, &f.Title, &f.Content, &f.Truncated, &f.Tags,
		&f.SourceType, &f.SourceReference, &f.EmbeddingStatus, &f.ConfidenceScore, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFragmentNotFound
		}
		return nil, err
	}
	if projectID != nil {
		f.ProjectID = *projectID
	}
	return &f, nil
}

func (r *FragmentRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Fragment, error) {
	if len(ids) == 0 {
		return []*domain.Fragment{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, project_id, fragment_type, title, content, truncated, tags,
		        source_type, source_reference, embedding_status, confidence_score, created_at, updated_at
		 FROM fragments WHERE org_id = $1 AND id = ANY($2)`,
		orgID, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFragmentRows(rows)
}

func (r *FragmentRepository) ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*service.FragmentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, org_id, project_id, fragment_type, title, content, truncated, tags,
			        source_type, source_reference, embedding_status, confidence_score, created_at, updated_at
			 FROM fragments
			 WHERE org_id = $1 AND (updated_at, id) < ($2, $3)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $4`,
			orgID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, org_id, project_id, fragment_type, title, content, truncated, tags,
			        source_type, source_reference, embedding_status, confidence_score, created_at, updated_at
			 FROM fragments
			 WHERE org_id = $1
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $2`,
			orgID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanFragmentRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UpdatedAt)
	}

	return &service.FragmentPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// DeleteBySourcePrefix removes fragments whose source reference starts with
// the prefix and returns the removed ids. Relationship edges follow via
// foreign key cascade. projectID narrows code fragments; pass "" otherwise.
func (r *FragmentRepository) DeleteBySourcePrefix(ctx context.Context, orgID, projectID, prefix string) ([]string, error) {
	query := `DELETE FROM fragments WHERE org_id = $1 AND source_reference LIKE $2`
	args := []any{orgID, escapeLike(prefix) + "%"}

	if projectID != "" {
		query += ` AND project_id = $3`
		args = append(args, projectID)
	}
	query += ` RETURNING id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteStaleBySourcePrefixes removes fragments under any of the given
// source reference prefixes that were not touched since the cutoff. An
// indexing run calls this after storing, so rows a source no longer
// produces fall out without comparing fragment sets in memory.
func (r *FragmentRepository) DeleteStaleBySourcePrefixes(ctx context.Context, orgID, projectID string, prefixes []string, before time.Time) ([]string, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}

	patterns := make([]string, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = escapeLike(p) + "%"
	}

	query := `DELETE FROM fragments WHERE org_id = $1 AND updated_at < $2 AND source_reference LIKE ANY($3)`
	args := []any{orgID, before, patterns}

	if projectID != "" {
		query += ` AND project_id = $4`
		args = append(args, projectID)
	}
	query += ` RETURNING id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *FragmentRepository) CountByType(ctx context.Context, orgID string) (map[domain.FragmentType]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT fragment_type, COUNT(*) FROM fragments WHERE org_id = $1 GROUP BY fragment_type`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.FragmentType]int)
	for rows.Next() {
		var fragmentType domain.FragmentType
		var count int
		if err := rows.Scan(&fragmentType, &count); err != nil {
			return nil, err
		}
		counts[fragmentType] = count
	}
	return counts, rows.Err()
}

// SearchByEmbedding returns the nearest fragments by cosine distance with
// filters applied inside the query, so limit counts post-filter rows. The
// ORDER BY distance form keeps the HNSW index usable.
func (r *FragmentRepository) SearchByEmbedding(ctx context.Context, embedding []float32, filters service.SearchFilters, limit int) ([]*service.SearchCandidate, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, title, content, fragment_type, source_reference, updated_at,
		       1.0 / (1.0 + (embedding <=> $1)) AS score
		FROM fragments
		WHERE org_id = $2 AND embedding IS NOT NULL`
	args := []any{pgvector.NewVector(embedding), filters.OrgID}
	args, query = appendSearchFilters(args, query, filters)

	query += ` ORDER BY embedding <=> $1, updated_at DESC, id ASC`
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSearchCandidates(rows)
}

// SearchByText matches the generated tsvector column; the rank is bounded
// later by the ranking merge, not here.
func (r *FragmentRepository) SearchByText(ctx context.Context, queryText string, filters service.SearchFilters, limit int) ([]*service.SearchCandidate, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, title, content, fragment_type, source_reference, updated_at,
		       ts_rank(content_tsv, plainto_tsquery('english', $1)) AS score
		FROM fragments
		WHERE org_id = $2 AND content_tsv @@ plainto_tsquery('english', $1)`
	args := []any{queryText, filters.OrgID}
	args, query = appendSearchFilters(args, query, filters)

	query += ` ORDER BY score DESC, updated_at DESC, id ASC`
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSearchCandidates(rows)
}

func appendSearchFilters(args []any, query string, filters service.SearchFilters) ([]any, string) {
	if len(filters.Types) > 0 {
		types := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		query += fmt.Sprintf(` AND fragment_type = ANY($%d)`, len(args))
	}
	if len(filters.Tags) > 0 {
		args = append(args, filters.Tags)
		query += fmt.Sprintf(` AND tags @> $%d`, len(args))
	}
	if filters.ProjectID != "" {
		args = append(args, filters.ProjectID)
		query += fmt.Sprintf(` AND project_id = $%d`, len(args))
	}
	return args, query
}

func scanSearchCandidates(rows pgx.Rows) ([]*service.SearchCandidate, error) {
	results := make([]*service.SearchCandidate, 0)
	for rows.Next() {
		var c service.SearchCandidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &c.Type, &c.SourceReference, &c.UpdatedAt, &c.Score); err != nil {
			return nil, err
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

func scanFragmentRows(rows pgx.Rows) ([]*domain.Fragment, error) {
	var results []*domain.Fragment
	for rows.Next() {
		var f domain.Fragment
		var projectID *string
		if err := rows.Scan(&f.ID, &f.OrgID, &projectID, &f.Type, &f.Title, &f.Content, &f.Truncated, &f.Tags,
			&f.SourceType, &f.SourceReference, &f.EmbeddingStatus, &f.ConfidenceScore, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		if projectID != nil {
			f.ProjectID = *projectID
		}
		results = append(results, &f)
	}
	return results, rows.Err()
}
