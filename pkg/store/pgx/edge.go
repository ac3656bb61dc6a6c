package pgx

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/cooccur"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
)

// UpsertEdges applies edge deltas additively in one transaction. Weight,
// proximity_score and risk accumulate, confidence keeps its maximum, and the
// per-document provenance log sums into the edge metadata so the current
// weight stays explainable without recomputation. Rows from before the
// proximity column existed carry NULL there; the first additive touch seeds
// it from the accumulated weight. Existing rows are read under a row lock
// because the provenance merge happens here rather than in SQL.
func (s *GraphDBStorage) UpsertEdges(ctx context.Context, deltas []cooccur.EdgeDelta) (int, int, error) {
	if len(deltas) == 0 {
		return 0, 0, nil
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	created, updated := 0, 0
	for _, d := range deltas {
		docKey := cooccur.ProvenanceKey(d.DocumentID)

		var (
			oldWeight float64
			oldProx   *float64
			metadata  []byte
		)
		err := tx.QueryRow(ctx, lockEdgeSQL, d.SourceID, d.TargetID, d.Type).
			Scan(&oldWeight, &oldProx, &metadata)
		if errors.Is(err, pgxv5.ErrNoRows) {
			provenance, err := json.Marshal(map[string]common.EdgeLog{docKey: d.Log})
			if err != nil {
				return 0, 0, err
			}
			_, err = tx.Exec(ctx, insertEdgeSQL,
				d.SourceID, d.TargetID, d.Type,
				d.WeightDelta, d.Confidence, d.WeightDelta, d.RiskDelta, provenance)
			if err != nil {
				return 0, 0, err
			}
			created++
			continue
		}
		if err != nil {
			return 0, 0, err
		}

		provMap := make(map[string]common.EdgeLog)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &provMap); err != nil {
				return 0, 0, err
			}
		}
		provMap[docKey] = sumEdgeLogs(provMap[docKey], d.Log)
		provenance, err := json.Marshal(provMap)
		if err != nil {
			return 0, 0, err
		}

		proximity := oldWeight
		if oldProx != nil {
			proximity = *oldProx
		}
		proximity += d.WeightDelta

		_, err = tx.Exec(ctx, updateEdgeSQL,
			d.SourceID, d.TargetID, d.Type,
			d.WeightDelta, d.Confidence, proximity, d.RiskDelta, provenance)
		if err != nil {
			return 0, 0, err
		}
		updated++
	}

	logger.Debug("[Store][UpsertEdges] Applied deltas",
		"deltas", len(deltas), "created", created, "updated", updated)
	return created, updated, tx.Commit(ctx)
}

func (s *GraphDBStorage) GetEdge(ctx context.Context, sourceID, targetID int64, relType string) (common.Edge, error) {
	if sourceID > targetID {
		sourceID, targetID = targetID, sourceID
	}
	row := s.conn.QueryRow(ctx, getEdgeSQL, sourceID, targetID, relType)

	var e common.Edge
	var metadata []byte
	err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Type,
		&e.Weight, &e.Confidence, &e.Proximity, &e.RiskScore, &metadata)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.Edge{}, store.ErrNotFound
	}
	if err != nil {
		return common.Edge{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Provenance); err != nil {
			return common.Edge{}, err
		}
	}
	return e, nil
}

func queryEdges(ctx context.Context, conn pgxIConn, sql string, ids []int64) ([]common.Edge, error) {
	rows, err := conn.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Edge
	for rows.Next() {
		var e common.Edge
		var metadata []byte
		err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Type,
			&e.Weight, &e.Confidence, &e.Proximity, &e.RiskScore, &metadata)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Provenance); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableProximity(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}

const lockEdgeSQL = `
SELECT weight, proximity_score, metadata
FROM entity_relationships
WHERE source_id = $1 AND target_id = $2 AND relationship_type = $3
FOR UPDATE;
`

const insertEdgeSQL = `
INSERT INTO entity_relationships
  (source_id, target_id, relationship_type, weight, confidence, proximity_score, risk_score, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`

const updateEdgeSQL = `
UPDATE entity_relationships
SET weight          = weight + $4,
    confidence      = GREATEST(confidence, $5),
    proximity_score = $6,
    risk_score      = risk_score + $7,
    metadata        = $8,
    updated_at      = now()
WHERE source_id = $1 AND target_id = $2 AND relationship_type = $3;
`

const getEdgeSQL = `
SELECT id, source_id, target_id, relationship_type,
       weight, confidence, COALESCE(proximity_score, 0), risk_score, metadata
FROM entity_relationships
WHERE source_id = $1 AND target_id = $2 AND relationship_type = $3;
`
