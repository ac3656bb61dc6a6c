package store

import (
	"context"
	"errors"
	"time"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/cooccur"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// Capabilities reports which optional auxiliary tables exist in the current
// schema. Probed once at run start and threaded into the merge executor, so
// schema-version checks do not leak into merge logic.
type Capabilities struct {
	HasEvidenceLinks  bool
	HasTimelineEvents bool
}

// Scope restricts a run to part of the corpus. Zero-value fields mean
// unrestricted. It is the only externally configurable filter of the
// engine.
type Scope struct {
	DocumentIDs []int64
	EntityIDs   []int64
	Since       time.Time
}

// DocumentMentions is one document's resolved mention list, the aggregator
// input unit.
type DocumentMentions struct {
	DocumentID int64
	Mentions   []cooccur.ResolvedMention
}

// Storage is the transactional contract between the engine and the
// relational store. Implementations guarantee that each method either fully
// applies or leaves no trace: concurrent readers may observe committed
// batches but never a half-written one.
type Storage interface {
	Capabilities(ctx context.Context) (Capabilities, error)

	// LoadAliases returns the static alias knowledge table
	// (alias -> canonical display name). Loaded once per run, never
	// mutated by the engine.
	LoadAliases(ctx context.Context) (map[string]string, error)

	ListEntities(ctx context.Context) ([]common.Entity, error)
	GetEntities(ctx context.Context, ids []int64) ([]common.Entity, error)
	CreateEntity(ctx context.Context, displayName, normalizedName string, class common.EntityClass) (int64, error)
	ListUnclassifiedEntities(ctx context.Context) ([]common.Entity, error)

	// UpdateEntityClass narrows an Unknown entity; implementations must
	// refuse to overwrite an already-classified one.
	UpdateEntityClass(ctx context.Context, id int64, class common.EntityClass) error

	// ClaimStagedMentions returns up to limit unprocessed raw mentions in
	// scope, oldest first.
	ClaimStagedMentions(ctx context.Context, scope Scope, limit int) ([]common.RawMention, error)

	// CommitResolvedMentions inserts the mention rows and marks their
	// staged sources processed in the same transaction. stagedIDs[i] is
	// the staging row mentions[i] was resolved from; the slices must be
	// index-aligned.
	CommitResolvedMentions(ctx context.Context, mentions []common.Mention, stagedIDs []int64) error

	// MarkStagedJunk marks staged rows dropped by the junk classifier so
	// they are not reclaimed.
	MarkStagedJunk(ctx context.Context, stagedIDs []int64) error

	GetDocumentMeta(ctx context.Context, ids []int64) (map[int64]common.DocumentMeta, error)

	// ListDocumentMentions returns, per document in scope, the resolved
	// mentions the aggregator scores. Ordered by document id.
	ListDocumentMentions(ctx context.Context, scope Scope) ([]DocumentMentions, error)

	// MergeEntities atomically collapses duplicates into the survivor:
	// mentions repointed, edges re-keyed and combined, survivor
	// mention_count recomputed, duplicate rows deleted. Already-deleted
	// duplicate ids are skipped; a missing survivor aborts the
	// transaction.
	MergeEntities(ctx context.Context, survivorID int64, duplicateIDs []int64, caps Capabilities) (common.MergeReport, error)

	// UpsertEdges applies edge deltas additively under the canonical
	// (min, max, type) key, in one transaction per call.
	UpsertEdges(ctx context.Context, deltas []cooccur.EdgeDelta) (created int, updated int, err error)

	GetEdge(ctx context.Context, sourceID, targetID int64, relType string) (common.Edge, error)

	CreateRun(ctx context.Context, summary common.RunSummary) error
	FinishRun(ctx context.Context, summary common.RunSummary) error
	GetRun(ctx context.Context, runID string) (common.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]common.RunSummary, error)
}
