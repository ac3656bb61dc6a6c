package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *GraphDBStorage) CreateRun(ctx context.Context, summary common.RunSummary) error {
	_, err := s.conn.Exec(ctx, insertRunSQL,
		summary.RunID, summary.Status, summary.DryRun, summary.StartedAt)
	return err
}

func (s *GraphDBStorage) FinishRun(ctx context.Context, summary common.RunSummary) error {
	_, err := s.conn.Exec(ctx, finishRunSQL,
		summary.RunID, summary.Status,
		summary.MentionsProcessed, summary.MentionsSkipped,
		summary.EntitiesCreated, summary.EntitiesMerged, summary.EntitiesClassified,
		summary.EdgesCreated, summary.EdgesUpdated,
		summary.FailurePoint, summary.Error, summary.FinishedAt)
	return err
}

func (s *GraphDBStorage) GetRun(ctx context.Context, runID string) (common.RunSummary, error) {
	row := s.conn.QueryRow(ctx, getRunSQL, runID)
	summary, err := scanRun(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return summary, fmt.Errorf("run %s: %w", runID, store.ErrNotFound)
	}
	return summary, err
}

func (s *GraphDBStorage) ListRuns(ctx context.Context, limit int) ([]common.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func scanRun(row pgxv5.Row) (common.RunSummary, error) {
	var r common.RunSummary
	err := row.Scan(&r.RunID, &r.Status, &r.DryRun,
		&r.MentionsProcessed, &r.MentionsSkipped,
		&r.EntitiesCreated, &r.EntitiesMerged, &r.EntitiesClassified,
		&r.EdgesCreated, &r.EdgesUpdated,
		&r.FailurePoint, &r.Error, &r.StartedAt, &r.FinishedAt)
	return r, err
}

const insertRunSQL = `
INSERT INTO engine_runs (run_id, status, dry_run, started_at)
VALUES ($1, $2, $3, $4);
`

const finishRunSQL = `
UPDATE engine_runs
SET status             = $2,
    mentions_processed = $3,
    mentions_skipped   = $4,
    entities_created   = $5,
    entities_merged    = $6,
    entities_classified = $7,
    edges_created      = $8,
    edges_updated      = $9,
    failure_point      = $10,
    error              = $11,
    finished_at        = $12
WHERE run_id = $1;
`

const runColumns = `run_id, status, dry_run,
       mentions_processed, mentions_skipped,
       entities_created, entities_merged, entities_classified,
       edges_created, edges_updated,
       failure_point, error, started_at, COALESCE(finished_at, started_at)`

const getRunSQL = `
SELECT ` + runColumns + `
FROM engine_runs
WHERE run_id = $1;
`

const listRunsSQL = `
SELECT ` + runColumns + `
FROM engine_runs
ORDER BY started_at DESC
LIMIT $1;
`
