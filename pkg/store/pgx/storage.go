package pgx

import (
	"context"
	"sync"

	"github.com/caseframe/backend/pkg/store"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphDBStorage implements the store.Storage interface on PostgreSQL.
// Write paths run in explicit transactions; the mutex serializes them so a
// single shared connection can back the storage in tests.
type GraphDBStorage struct {
	conn   pgxIConn
	dbLock sync.Mutex
}

func NewGraphDBStorageWithConnection(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

var _ store.Storage = (*GraphDBStorage)(nil)

// Capabilities probes the schema for the optional auxiliary tables. Older
// deployments predate evidence_links and timeline_events, so their presence
// is detected rather than assumed.
func (s *GraphDBStorage) Capabilities(ctx context.Context) (store.Capabilities, error) {
	rows, err := s.conn.Query(ctx, probeTablesSQL)
	if err != nil {
		return store.Capabilities{}, err
	}
	defer rows.Close()

	var caps store.Capabilities
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return store.Capabilities{}, err
		}
		switch name {
		case "evidence_links":
			caps.HasEvidenceLinks = true
		case "timeline_events":
			caps.HasTimelineEvents = true
		}
	}
	return caps, rows.Err()
}

const probeTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema()
  AND table_name IN ('evidence_links', 'timeline_events');
`
