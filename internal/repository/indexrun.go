package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/pagination"
	"github.com/tessera-ai/tessera/internal/service"
)

type IndexRunRepository struct {
	db dbtx
}

func NewIndexRunRepository(pool *pgxpool.Pool) *IndexRunRepository {
	return &IndexRunRepository{db: pool}
}

func NewIndexRunRepositoryWithTx(tx pgx.Tx) *IndexRunRepository {
	return &IndexRunRepository{db: tx}
}

func (r *IndexRunRepository) Create(ctx context.Context, run *domain.IndexRun) error {
	errorsJSON, err := marshalRunErrors(run.Errors)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO index_runs (run_id, source_id, org_id, scope, state, processed, stored, skipped, removed, errors, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.RunID, run.SourceID, run.OrgID, run.Scope, run.State,
		run.Processed, run.Stored, run.Skipped, run.Removed, errorsJSON,
		run.StartedAt, run.CompletedAt,
	)
	return err
}

// UpdateState advances the persisted state machine position of a run
func (r *IndexRunRepository) UpdateState(ctx context.Context, runID string, state domain.RunState) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_runs SET state = $1 WHERE run_id = $2`,
		state, runID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexRunNotFound
	}
	return nil
}

// Finish writes the terminal state together with final counts and the
// accumulated error records.
func (r *IndexRunRepository) Finish(ctx context.Context, run *domain.IndexRun) error {
	errorsJSON, err := marshalRunErrors(run.Errors)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_runs
		 SET state = $1, processed = $2, stored = $3, skipped = $4, removed = $5, errors = $6, completed_at = $7
		 WHERE run_id = $8`,
		run.State, run.Processed, run.Stored, run.Skipped, run.Removed, errorsJSON, run.CompletedAt, run.RunID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrIndexRunNotFound
	}
	return nil
}

func (r *IndexRunRepository) GetByID(ctx context.Context, orgID, runID string) (*domain.IndexRun, error) {
	var run domain.IndexRun
	var errorsJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT run_id, source_id, org_id, scope, state, processed, stored, skipped, removed, errors, started_at, completed_at
		 FROM index_runs WHERE org_id = $1 AND run_id = $2`,
		orgID, runID,
	).Scan(&run.RunID, &run.SourceID, &run.OrgID, &run.Scope, &run.State,
		&run.Processed, &run.Stored, &run.Skipped, &run.Removed, &errorsJSON,
		&run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexRunNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *IndexRunRepository) ListByOrgWithCursor(ctx context.Context, orgID string, cursor *pagination.Cursor, limit int) (*service.RunPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT run_id, source_id, org_id, scope, state, processed, stored, skipped, removed, errors, started_at, completed_at
			 FROM index_runs
			 WHERE org_id = $1 AND (started_at, run_id) < ($2, $3)
			 ORDER BY started_at DESC, run_id DESC
			 LIMIT $4`,
			orgID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT run_id, source_id, org_id, scope, state, processed, stored, skipped, removed, errors, started_at, completed_at
			 FROM index_runs
			 WHERE org_id = $1
			 ORDER BY started_at DESC, run_id DESC
			 LIMIT $2`,
			orgID, limit+1,
		)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanRunRows(rows)
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
		nextCursor = pagination.EncodeCursor(lastItem.RunID, lastItem.StartedAt)
	}

	return &service.RunPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Aggregate summarizes run history for the stats contract
func (r *IndexRunRepository) Aggregate(ctx context.Context, orgID string) (*service.RunAggregates, error) {
	var agg service.RunAggregates
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE state = 'completed'),
		        COUNT(*) FILTER (WHERE state = 'failed'),
		        COUNT(*) FILTER (WHERE state = 'cancelled'),
		        COALESCE(SUM(processed), 0),
		        COALESCE(SUM(stored), 0),
		        MAX(completed_at) FILTER (WHERE state = 'completed')
		 FROM index_runs WHERE org_id = $1`,
		orgID,
	).Scan(&agg.TotalRuns, &agg.Completed, &agg.Failed, &agg.Cancelled,
		&agg.TotalProcessed, &agg.TotalStored, &agg.LastCompletedAt)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// ActiveRunForSource reports an in-flight run id for the source, if any.
// Single-flight is enforced in memory by the scheduler; this backs the
// check after a restart.
func (r *IndexRunRepository) ActiveRunForSource(ctx context.Context, sourceID string) (string, error) {
	var runID string
	err := r.db.QueryRow(ctx,
		`SELECT run_id FROM index_runs
		 WHERE source_id = $1 AND completed_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`,
		sourceID,
	).Scan(&runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return runID, nil
}

// MarkStaleRunsFailed closes runs left open by a previous process, so a
// restart does not block single-flight forever.
func (r *IndexRunRepository) MarkStaleRunsFailed(ctx context.Context, before time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_runs SET state = 'failed', completed_at = now()
		 WHERE completed_at IS NULL AND started_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanRunRows(rows pgx.Rows) ([]*domain.IndexRun, error) {
	var results []*domain.IndexRun
	for rows.Next() {
		var run domain.IndexRun
		var errorsJSON []byte
		if err := rows.Scan(&run.RunID, &run.SourceID, &run.OrgID, &run.Scope, &run.State,
			&run.Processed, &run.Stored, &run.Skipped, &run.Removed, &errorsJSON,
			&run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
			return nil, err
		}
		results = append(results, &run)
	}
	return results, rows.Err()
}

func marshalRunErrors(runErrors []domain.RunError) ([]byte, error) {
	if runErrors == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(runErrors)
}
