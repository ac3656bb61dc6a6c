package pgx

import (
	"context"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/cooccur"
	"github.com/caseframe/backend/pkg/store"
)

func (s *GraphDBStorage) GetDocumentMeta(ctx context.Context, ids []int64) (map[int64]common.DocumentMeta, error) {
	if len(ids) == 0 {
		return map[int64]common.DocumentMeta{}, nil
	}
	rows, err := s.conn.Query(ctx, getDocumentMetaSQL, store.DedupeInt64s(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]common.DocumentMeta, len(ids))
	for rows.Next() {
		var d common.DocumentMeta
		err := rows.Scan(&d.ID, &d.EvidenceType, &d.RiskRating, &d.EvidentiaryRisk, &d.DocumentDate)
		if err != nil {
			return nil, err
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

// ListDocumentMentions returns per-document resolved mentions for the
// aggregator, ordered by document id so batch boundaries are stable across
// runs.
func (s *GraphDBStorage) ListDocumentMentions(ctx context.Context, scope store.Scope) ([]store.DocumentMentions, error) {
	docFilter := scope.DocumentIDs
	if len(docFilter) == 0 {
		docFilter = nil
	}
	entityFilter := scope.EntityIDs
	if len(entityFilter) == 0 {
		entityFilter = nil
	}

	rows, err := s.conn.Query(ctx, listDocumentMentionsSQL, docFilter, entityFilter, scope.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DocumentMentions
	for rows.Next() {
		var docID int64
		var m cooccur.ResolvedMention
		if err := rows.Scan(&docID, &m.EntityID, &m.PageNumber, &m.Position); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].DocumentID != docID {
			out = append(out, store.DocumentMentions{DocumentID: docID})
		}
		last := &out[len(out)-1]
		last.Mentions = append(last.Mentions, m)
	}
	return out, rows.Err()
}

const getDocumentMetaSQL = `
SELECT id, evidence_type, risk_rating, evidentiary_risk, document_date
FROM documents
WHERE id = ANY($1);
`

const listDocumentMentionsSQL = `
SELECT m.document_id, m.entity_id, m.page_number, m.position_in_text
FROM entity_mentions m
JOIN documents d ON d.id = m.document_id
WHERE ($1::bigint[] IS NULL OR m.document_id = ANY($1))
  AND ($2::bigint[] IS NULL OR m.entity_id = ANY($2))
  AND d.document_date >= $3
ORDER BY m.document_id, m.id;
`
