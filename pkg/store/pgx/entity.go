package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/caseframe/backend/pkg/common"
	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *GraphDBStorage) LoadAliases(ctx context.Context) (map[string]string, error) {
	rows, err := s.conn.Query(ctx, listAliasesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := make(map[string]string)
	for rows.Next() {
		var alias, canonical string
		if err := rows.Scan(&alias, &canonical); err != nil {
			return nil, err
		}
		aliases[alias] = canonical
	}
	return aliases, rows.Err()
}

func (s *GraphDBStorage) ListEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, listEntitiesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *GraphDBStorage) GetEntities(ctx context.Context, ids []int64) ([]common.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, getEntitiesSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *GraphDBStorage) ListUnclassifiedEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, listUnclassifiedSQL, common.ClassUnknown)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

// CreateEntity inserts a new canonical entity. The unique index on
// normalized_name turns a concurrent duplicate insert into a lookup of the
// winning row, so two resolvers racing on the same name converge on one id.
func (s *GraphDBStorage) CreateEntity(
	ctx context.Context,
	displayName, normalizedName string,
	class common.EntityClass,
) (int64, error) {
	if normalizedName == "" {
		return -1, fmt.Errorf("entity normalized_name is empty")
	}

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	var id int64
	err := s.conn.QueryRow(ctx, insertEntitySQL, displayName, normalizedName, class).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return -1, err
	}
	// ON CONFLICT DO NOTHING returned no row; fetch the existing one.
	err = s.conn.QueryRow(ctx, getEntityByNormalizedSQL, normalizedName).Scan(&id)
	if err != nil {
		return -1, err
	}
	return id, nil
}

// UpdateEntityClass narrows an unclassified entity. Rows that already carry
// a class are left untouched so a later pass can never downgrade an earlier
// decision.
func (s *GraphDBStorage) UpdateEntityClass(ctx context.Context, id int64, class common.EntityClass) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tag, err := s.conn.Exec(ctx, updateEntityClassSQL, id, class, common.ClassUnknown)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %d not found or already classified", id)
	}
	return nil
}

func scanEntities(rows pgxv5.Rows) ([]common.Entity, error) {
	var out []common.Entity
	for rows.Next() {
		var e common.Entity
		err := rows.Scan(&e.ID, &e.DisplayName, &e.NormalizedName, &e.Class, &e.MentionCount, &e.RiskScore)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const listAliasesSQL = `
SELECT alias, canonical_name
FROM name_aliases;
`

const listEntitiesSQL = `
SELECT id, display_name, normalized_name, entity_class, mention_count, risk_score
FROM entities
ORDER BY id;
`

const getEntitiesSQL = `
SELECT id, display_name, normalized_name, entity_class, mention_count, risk_score
FROM entities
WHERE id = ANY($1)
ORDER BY id;
`

const listUnclassifiedSQL = `
SELECT id, display_name, normalized_name, entity_class, mention_count, risk_score
FROM entities
WHERE entity_class = $1
ORDER BY id;
`

const insertEntitySQL = `
INSERT INTO entities (display_name, normalized_name, entity_class)
VALUES ($1, $2, $3)
ON CONFLICT (normalized_name) DO NOTHING
RETURNING id;
`

const getEntityByNormalizedSQL = `
SELECT id
FROM entities
WHERE normalized_name = $1;
`

const updateEntityClassSQL = `
UPDATE entities
SET entity_class = $2, updated_at = now()
WHERE id = $1 AND entity_class = $3;
`
