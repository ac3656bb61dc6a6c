package pgx

import (
	"context"
	"fmt"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/store"
)

// ClaimStagedMentions pulls up to limit pending raw mentions in scope,
// oldest first. Claiming does not mark anything; a batch stays pending until
// CommitResolvedMentions or MarkStagedJunk settles it, so a crashed run
// leaves the rows reclaimable.
func (s *GraphDBStorage) ClaimStagedMentions(
	ctx context.Context,
	scope store.Scope,
	limit int,
) ([]common.RawMention, error) {
	if limit <= 0 {
		limit = 500
	}
	docFilter := scope.DocumentIDs
	if len(docFilter) == 0 {
		docFilter = nil
	}

	rows, err := s.conn.Query(ctx, claimStagedSQL, docFilter, scope.Since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.RawMention
	for rows.Next() {
		var m common.RawMention
		err := rows.Scan(&m.ID, &m.DocumentID, &m.RawName, &m.PageNumber, &m.Position, &m.Snippet)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CommitResolvedMentions inserts the mention rows, bumps the owning
// entities' mention counts and marks each mention's staged source
// processed, all in one transaction per chunk. Settling the staged rows
// inside the chunk transaction is what keeps re-invocation safe: a row is
// either committed and settled, or untouched and reclaimable, never both.
func (s *GraphDBStorage) CommitResolvedMentions(
	ctx context.Context,
	mentions []common.Mention,
	stagedIDs []int64,
) error {
	if len(mentions) != len(stagedIDs) {
		return fmt.Errorf("mentions and staged ids out of step: %d vs %d", len(mentions), len(stagedIDs))
	}
	if len(mentions) == 0 {
		return nil
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	mentionChunk := 500

	return store.ChunkRange(len(mentions), mentionChunk, func(start, end int) error {
		part := mentions[start:end]
		staged := stagedIDs[start:end]
		logger.Debug("[Store][CommitResolvedMentions] Saving chunk", "mentions", len(part))

		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		entityIDs := make([]int64, 0, len(part))
		documentIDs := make([]int64, 0, len(part))
		pageNumbers := make([]int, 0, len(part))
		positions := make([]int, 0, len(part))
		confidences := make([]float64, 0, len(part))
		snippets := make([]string, 0, len(part))
		for _, m := range part {
			entityIDs = append(entityIDs, m.EntityID)
			documentIDs = append(documentIDs, m.DocumentID)
			pageNumbers = append(pageNumbers, m.PageNumber)
			positions = append(positions, m.Position)
			confidences = append(confidences, m.Confidence)
			snippets = append(snippets, m.Snippet)
		}

		_, err = tx.Exec(ctx, insertMentionsSQL,
			entityIDs, documentIDs, pageNumbers, positions, confidences, snippets)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, bumpMentionCountsSQL, store.DedupeInt64s(entityIDs))
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, markStagedSQL, staged, stagedProcessed)
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func (s *GraphDBStorage) MarkStagedJunk(ctx context.Context, stagedIDs []int64) error {
	if len(stagedIDs) == 0 {
		return nil
	}
	s.dbLock.Lock()
	defer s.dbLock.Unlock()
	_, err := s.conn.Exec(ctx, markStagedSQL, stagedIDs, stagedJunk)
	return err
}

const (
	stagedProcessed = "processed"
	stagedJunk      = "junk"
)

const claimStagedSQL = `
SELECT sm.id, sm.document_id, sm.raw_name, sm.page_number, sm.position_in_text, sm.context_snippet
FROM staged_mentions sm
JOIN documents d ON d.id = sm.document_id
WHERE sm.status = 'pending'
  AND ($1::bigint[] IS NULL OR sm.document_id = ANY($1))
  AND d.document_date >= $2
ORDER BY sm.created_at, sm.id
LIMIT $3;
`

const insertMentionsSQL = `
INSERT INTO entity_mentions
  (entity_id, document_id, page_number, position_in_text, confidence, context_snippet)
SELECT * FROM unnest(
  $1::bigint[], $2::bigint[], $3::int[], $4::int[], $5::float8[], $6::text[]
);
`

const bumpMentionCountsSQL = `
UPDATE entities e
SET mention_count = sub.cnt, updated_at = now()
FROM (
  SELECT entity_id, count(*) AS cnt
  FROM entity_mentions
  WHERE entity_id = ANY($1)
  GROUP BY entity_id
) sub
WHERE e.id = sub.entity_id;
`

const markStagedSQL = `
UPDATE staged_mentions
SET status = $2, processed_at = now()
WHERE id = ANY($1);
`
