package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
)

// EdgeRepository handles persistence of the directed relationship graph.
type EdgeRepository struct {
	db dbtx
}

func NewEdgeRepository(pool *pgxpool.Pool) *EdgeRepository {
	return &EdgeRepository{db: pool}
}

func NewEdgeRepositoryWithTx(tx pgx.Tx) *EdgeRepository {
	return &EdgeRepository{db: tx}
}

// ReplaceOutgoing swaps the full outgoing edge set of a fragment, which
// makes edge maintenance idempotent on re-extraction. Edges whose target
// fragment does not exist yet are dropped; the next full run re-creates
// them once the target is indexed.
func (r *EdgeRepository) ReplaceOutgoing(ctx context.Context, fromID string, edges []*domain.RelationshipEdge) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM relationship_edges WHERE from_id = $1`,
		fromID,
	)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		_, err := r.db.Exec(ctx,
			`INSERT INTO relationship_edges (from_id, to_id, kind)
			 SELECT $1, $2, $3
			 WHERE EXISTS (SELECT 1 FROM fragments WHERE id = $2)
			 ON CONFLICT (from_id, to_id, kind) DO NOTHING`,
			fromID, edge.ToID, edge.Kind,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListOutgoingBatch returns all outgoing edges of the given fragments in
// one query: one call per breadth-first traversal level.
func (r *EdgeRepository) ListOutgoingBatch(ctx context.Context, fromIDs []string) ([]*domain.RelationshipEdge, error) {
	if len(fromIDs) == 0 {
		return []*domain.RelationshipEdge{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT from_id, to_id, kind, created_at
		 FROM relationship_edges WHERE from_id = ANY($1)
		 ORDER BY from_id, to_id, kind`,
		fromIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*domain.RelationshipEdge
	for rows.Next() {
		var e domain.RelationshipEdge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Kind, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

// CountEdges returns the total edge count for fragments of one organization
func (r *EdgeRepository) CountEdges(ctx context.Context, orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM relationship_edges e
		 JOIN fragments f ON f.id = e.from_id
		 WHERE f.org_id = $1`,
		orgID,
	).Scan(&count)
	return count, err
}
