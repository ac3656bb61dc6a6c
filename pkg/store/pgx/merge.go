package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
)

type edgeKey struct {
	sourceID int64
	targetID int64
	relType  string
}

// MergeEntities collapses duplicateIDs into survivorID in one transaction.
// Mentions are repointed, edges are re-keyed under the canonical (min, max,
// type) ordering and additively combined on collision, the survivor's
// mention count is recomputed from rows, and the duplicate entities are
// deleted. A duplicate id that no longer exists is skipped; a missing
// survivor aborts the whole merge.
func (s *GraphDBStorage) MergeEntities(
	ctx context.Context,
	survivorID int64,
	duplicateIDs []int64,
	caps store.Capabilities,
) (common.MergeReport, error) {
	report := common.MergeReport{SurvivorID: survivorID}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return report, err
	}
	defer tx.Rollback(ctx)

	var survivorRisk float64
	err = tx.QueryRow(ctx, lockEntitySQL, survivorID).Scan(&survivorRisk)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			err = store.ErrNotFound
		}
		return report, fmt.Errorf("merge survivor %d: %w", survivorID, err)
	}

	// Partition duplicates into live and already-gone. A duplicate deleted
	// by an earlier merge is a no-op, not an error; anything besides a
	// missing row aborts the merge.
	live := make([]int64, 0, len(duplicateIDs))
	mergedRisk := 0.0
	for _, id := range store.DedupeInt64s(duplicateIDs) {
		if id == survivorID {
			continue
		}
		var risk float64
		if err := tx.QueryRow(ctx, lockEntitySQL, id).Scan(&risk); err != nil {
			if !errors.Is(err, pgxv5.ErrNoRows) {
				return report, fmt.Errorf("merge duplicate %d: %w", id, err)
			}
			report.SkippedIDs = append(report.SkippedIDs, id)
			continue
		}
		live = append(live, id)
		mergedRisk += risk
	}
	if len(live) == 0 {
		report.MentionCount, err = s.finishMerge(ctx, tx, survivorID, survivorRisk)
		if err != nil {
			return report, err
		}
		return report, tx.Commit(ctx)
	}
	report.MergedIDs = live

	tag, err := tx.Exec(ctx, repointMentionsSQL, survivorID, live)
	if err != nil {
		return report, err
	}
	report.MentionsRepointed = int(tag.RowsAffected())

	combined, repointed, collided, err := s.rekeyEdges(ctx, tx, survivorID, live)
	if err != nil {
		return report, err
	}
	report.EdgesRepointed = repointed
	report.EdgesCombined = collided

	for _, e := range combined {
		provenance, err := json.Marshal(e.Provenance)
		if err != nil {
			return report, err
		}
		_, err = tx.Exec(ctx, replaceEdgeSQL,
			e.SourceID, e.TargetID, e.Type,
			e.Weight, e.Confidence, nullableProximity(e.Proximity), e.RiskScore, provenance)
		if err != nil {
			return report, err
		}
	}

	if caps.HasEvidenceLinks {
		if _, err := tx.Exec(ctx, repointEvidenceLinksSQL, survivorID, live); err != nil {
			return report, err
		}
	}
	if caps.HasTimelineEvents {
		if _, err := tx.Exec(ctx, repointTimelineEventsSQL, survivorID, live); err != nil {
			return report, err
		}
	}

	if _, err := tx.Exec(ctx, deleteEntitiesSQL, live); err != nil {
		return report, err
	}

	report.MentionCount, err = s.finishMerge(ctx, tx, survivorID, survivorRisk+mergedRisk)
	if err != nil {
		return report, err
	}

	logger.Debug("[Store][MergeEntities] Merged",
		"survivor", survivorID, "merged", len(live), "mentions", report.MentionsRepointed)
	return report, tx.Commit(ctx)
}

// rekeyEdges loads every edge touching a duplicate, deletes those rows and
// folds their contributions into canonical survivor edges. Edges that
// collapse onto the survivor itself are dropped.
func (s *GraphDBStorage) rekeyEdges(
	ctx context.Context,
	tx pgxIConn,
	survivorID int64,
	duplicateIDs []int64,
) ([]common.Edge, int, int, error) {
	dupEdges, err := queryEdges(ctx, tx, listEdgesTouchingSQL, duplicateIDs)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(dupEdges) == 0 {
		return nil, 0, 0, nil
	}

	survivorEdges, err := queryEdges(ctx, tx, listEdgesTouchingSQL, []int64{survivorID})
	if err != nil {
		return nil, 0, 0, err
	}

	if _, err := tx.Exec(ctx, deleteEdgesTouchingSQL, duplicateIDs); err != nil {
		return nil, 0, 0, err
	}

	byKey := make(map[edgeKey]*common.Edge, len(survivorEdges))
	for i := range survivorEdges {
		e := survivorEdges[i]
		byKey[edgeKey{e.SourceID, e.TargetID, e.Type}] = &e
	}

	isDup := make(map[int64]bool, len(duplicateIDs))
	for _, id := range duplicateIDs {
		isDup[id] = true
	}

	repointed, collided := 0, 0
	touched := make(map[edgeKey]bool)
	for _, e := range dupEdges {
		src, tgt := e.SourceID, e.TargetID
		if isDup[src] {
			src = survivorID
		}
		if isDup[tgt] {
			tgt = survivorID
		}
		if src == tgt {
			continue
		}
		if src > tgt {
			src, tgt = tgt, src
		}
		repointed++

		key := edgeKey{src, tgt, e.Type}
		existing, ok := byKey[key]
		if !ok {
			e.SourceID, e.TargetID = src, tgt
			byKey[key] = &e
			touched[key] = true
			continue
		}
		collided++
		existing.Weight += e.Weight
		existing.RiskScore += e.RiskScore
		existing.Proximity += e.Proximity
		existing.Confidence = max(existing.Confidence, e.Confidence)
		if existing.Provenance == nil {
			existing.Provenance = make(map[string]common.EdgeLog)
		}
		for doc, log := range e.Provenance {
			existing.Provenance[doc] = sumEdgeLogs(existing.Provenance[doc], log)
		}
		touched[key] = true
	}

	out := make([]common.Edge, 0, len(touched))
	for key := range touched {
		out = append(out, *byKey[key])
	}
	slices.SortFunc(out, func(a, b common.Edge) int {
		if a.SourceID != b.SourceID {
			return int(a.SourceID - b.SourceID)
		}
		return int(a.TargetID - b.TargetID)
	})
	return out, repointed, collided, nil
}

// finishMerge recomputes the survivor's cached mention count from mention
// rows and writes the merged risk score.
func (s *GraphDBStorage) finishMerge(
	ctx context.Context,
	tx pgxIConn,
	survivorID int64,
	riskScore float64,
) (int, error) {
	var count int
	err := tx.QueryRow(ctx, recountMentionsSQL, survivorID).Scan(&count)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, updateEntityAfterMergeSQL, survivorID, count, riskScore)
	return count, err
}

func sumEdgeLogs(a, b common.EdgeLog) common.EdgeLog {
	return common.EdgeLog{
		Base:      a.Base + b.Base,
		Proximity: a.Proximity + b.Proximity,
		TypeBonus: a.TypeBonus + b.TypeBonus,
		RedFlag:   a.RedFlag + b.RedFlag,
		Weight:    a.Weight + b.Weight,
		Risk:      a.Risk + b.Risk,
	}
}

const lockEntitySQL = `
SELECT risk_score
FROM entities
WHERE id = $1
FOR UPDATE;
`

const repointMentionsSQL = `
UPDATE entity_mentions
SET entity_id = $1
WHERE entity_id = ANY($2);
`

const listEdgesTouchingSQL = `
SELECT id, source_id, target_id, relationship_type,
       weight, confidence, COALESCE(proximity_score, 0), risk_score, metadata
FROM entity_relationships
WHERE source_id = ANY($1) OR target_id = ANY($1)
ORDER BY id
FOR UPDATE;
`

const deleteEdgesTouchingSQL = `
DELETE FROM entity_relationships
WHERE source_id = ANY($1) OR target_id = ANY($1);
`

const replaceEdgeSQL = `
INSERT INTO entity_relationships
  (source_id, target_id, relationship_type, weight, confidence, proximity_score, risk_score, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (source_id, target_id, relationship_type) DO UPDATE
SET weight          = EXCLUDED.weight,
    confidence      = EXCLUDED.confidence,
    proximity_score = EXCLUDED.proximity_score,
    risk_score      = EXCLUDED.risk_score,
    metadata        = EXCLUDED.metadata,
    updated_at      = now();
`

const repointEvidenceLinksSQL = `
UPDATE evidence_links
SET entity_id = $1
WHERE entity_id = ANY($2);
`

const repointTimelineEventsSQL = `
UPDATE timeline_events
SET entity_id = $1
WHERE entity_id = ANY($2);
`

const deleteEntitiesSQL = `
DELETE FROM entities
WHERE id = ANY($1);
`

const recountMentionsSQL = `
SELECT count(*)
FROM entity_mentions
WHERE entity_id = $1;
`

const updateEntityAfterMergeSQL = `
UPDATE entities
SET mention_count = $2, risk_score = $3, updated_at = now()
WHERE id = $1;
`
