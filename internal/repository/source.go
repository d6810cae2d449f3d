package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/domain"
)

type SourceRepository struct {
	db dbtx
}

func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: pool}
}

func NewSourceRepositoryWithTx(tx pgx.Tx) *SourceRepository {
	return &SourceRepository{db: tx}
}

func (r *SourceRepository) Create(ctx context.Context, s *domain.Source) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sources (id, org_id, project_id, name, kind, locator, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.OrgID, nullableString(s.ProjectID), s.Name, s.Kind, s.Locator, s.Enabled, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SourceRepository) GetByID(ctx context.Context, orgID, id string) (*domain.Source, error) {
	var s domain.Source
	var projectID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, project_id, name, kind, locator, enabled, created_at, updated_at
		 FROM sources WHERE org_id = $1 AND id = $2`,
		orgID, id,
	).Scan(&s.ID, &s.OrgID, &projectID, &s.Name, &s.Kind, &s.Locator, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	if projectID != nil {
		s.ProjectID = *projectID
	}
	return &s, nil
}

func (r *SourceRepository) GetByName(ctx context.Context, orgID, name string) (*domain.Source, error) {
	var s domain.Source
	var projectID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, org_id, project_id, name, kind, locator, enabled, created_at, updated_at
		 FROM sources WHERE org_id = $1 AND name = $2`,
		orgID, name,
	).Scan(&s.ID, &s.OrgID, &projectID, &s.Name, &s.Kind, &s.Locator, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	if projectID != nil {
		s.ProjectID = *projectID
	}
	return &s, nil
}

func (r *SourceRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Source, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, project_id, name, kind, locator, enabled, created_at, updated_at
		 FROM sources WHERE org_id = $1 ORDER BY created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSourceRows(rows)
}

// ListEnabled returns enabled sources across all organizations; the cron
// trigger uses it to fan out scheduled full runs.
func (r *SourceRepository) ListEnabled(ctx context.Context) ([]*domain.Source, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, project_id, name, kind, locator, enabled, created_at, updated_at
		 FROM sources WHERE enabled ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSourceRows(rows)
}

func (r *SourceRepository) SetEnabled(ctx context.Context, orgID, id string, enabled bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE sources SET enabled = $1, updated_at = $2 WHERE org_id = $3 AND id = $4`,
		enabled, time.Now().UTC(), orgID, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}

func (r *SourceRepository) Delete(ctx context.Context, orgID, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM sources WHERE org_id = $1 AND id = $2`,
		orgID, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}

// UnitStates returns the last known content hash per unit reference
func (r *SourceRepository) UnitStates(ctx context.Context, sourceID string) (map[string]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT unit_ref, content_hash FROM unit_states WHERE source_id = $1`,
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]string)
	for rows.Next() {
		var ref, hash string
		if err := rows.Scan(&ref, &hash); err != nil {
			return nil, err
		}
		states[ref] = hash
	}
	return states, rows.Err()
}

// UpsertUnitStates records the processed hashes after a run; only units
// that finished without errors should be passed in, so a failed unit is
// re-detected as changed on the next run.
func (r *SourceRepository) UpsertUnitStates(ctx context.Context, sourceID string, states map[string]string) error {
	now := time.Now().UTC()
	for ref, hash := range states {
		_, err := r.db.Exec(ctx,
			`INSERT INTO unit_states (source_id, unit_ref, content_hash, seen_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (source_id, unit_ref) DO UPDATE SET content_hash = EXCLUDED.content_hash, seen_at = EXCLUDED.seen_at`,
			sourceID, ref, hash, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *SourceRepository) DeleteUnitStates(ctx context.Context, sourceID string, refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM unit_states WHERE source_id = $1 AND unit_ref = ANY($2)`,
		sourceID, refs,
	)
	return err
}

func scanSourceRows(rows pgx.Rows) ([]*domain.Source, error) {
	var results []*domain.Source
	for rows.Next() {
		var s domain.Source
		var projectID *string
		if err := rows.Scan(&s.ID, &s.OrgID, &projectID, &s.Name, &s.Kind, &s.Locator, &s.Enabled, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if projectID != nil {
			s.ProjectID = *projectID
		}
		results = append(results, &s)
	}
	return results, rows.Err()
}
