// Package memory provides an in-process store.Storage used by engine tests
// and dry-run previews. It mirrors the transactional semantics of the
// PostgreSQL store closely enough that the pipeline cannot tell them apart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/cooccur"
	"github.com/caseframe/backend/pkg/store"
)

type edgeKey struct {
	sourceID int64
	targetID int64
	relType  string
}

type stagedRow struct {
	common.RawMention
	status string
}

type MemoryStorage struct {
	mu sync.Mutex

	caps    store.Capabilities
	aliases map[string]string

	entities     map[int64]*common.Entity
	byNormalized map[string]int64
	mentions     map[int64]*common.Mention
	staged       map[int64]*stagedRow
	edges        map[edgeKey]*common.Edge
	docs         map[int64]common.DocumentMeta
	runs         map[string]common.RunSummary
	runOrder     []string

	nextEntityID  int64
	nextMentionID int64
	nextStagedID  int64
	nextEdgeID    int64
}

var _ store.Storage = (*MemoryStorage)(nil)

func New() *MemoryStorage {
	return &MemoryStorage{
		aliases:      make(map[string]string),
		entities:     make(map[int64]*common.Entity),
		byNormalized: make(map[string]int64),
		mentions:     make(map[int64]*common.Mention),
		staged:       make(map[int64]*stagedRow),
		edges:        make(map[edgeKey]*common.Edge),
		docs:         make(map[int64]common.DocumentMeta),
		runs:         make(map[string]common.RunSummary),
	}
}

// SetCapabilities configures which optional tables the fake schema "has".
func (s *MemoryStorage) SetCapabilities(caps store.Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = caps
}

func (s *MemoryStorage) SeedDocument(doc common.DocumentMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *MemoryStorage) SeedAlias(alias, canonical string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[alias] = canonical
}

// StageMention enqueues one raw mention and returns its staged id.
// SeedMentions installs already-resolved mentions, bypassing staging.
func (s *MemoryStorage) SeedMentions(mentions []common.Mention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := make(map[int64]bool)
	for _, m := range mentions {
		s.nextMentionID++
		m.ID = s.nextMentionID
		s.mentions[m.ID] = &m
		touched[m.EntityID] = true
	}
	for id := range touched {
		if e, ok := s.entities[id]; ok {
			e.MentionCount = s.countMentions(id)
		}
	}
}

func (s *MemoryStorage) StageMention(raw common.RawMention) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStagedID++
	raw.ID = s.nextStagedID
	s.staged[raw.ID] = &stagedRow{RawMention: raw, status: "pending"}
	return raw.ID
}

func (s *MemoryStorage) Capabilities(ctx context.Context) (store.Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps, nil
}

func (s *MemoryStorage) LoadAliases(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.aliases))
	for k, v := range s.aliases {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStorage) ListEntities(ctx context.Context) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b common.Entity) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *MemoryStorage) GetEntities(ctx context.Context, ids []int64) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Entity, 0, len(ids))
	for _, id := range store.DedupeInt64s(ids) {
		if e, ok := s.entities[id]; ok {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b common.Entity) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *MemoryStorage) ListUnclassifiedEntities(ctx context.Context) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []common.Entity
	for _, e := range s.entities {
		if e.Class == common.ClassUnknown {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b common.Entity) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *MemoryStorage) CreateEntity(
	ctx context.Context,
	displayName, normalizedName string,
	class common.EntityClass,
) (int64, error) {
	if normalizedName == "" {
		return -1, fmt.Errorf("entity normalized_name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byNormalized[normalizedName]; ok {
		return id, nil
	}
	s.nextEntityID++
	id := s.nextEntityID
	s.entities[id] = &common.Entity{
		ID:             id,
		DisplayName:    displayName,
		NormalizedName: normalizedName,
		Class:          class,
	}
	s.byNormalized[normalizedName] = id
	return id, nil
}

func (s *MemoryStorage) UpdateEntityClass(ctx context.Context, id int64, class common.EntityClass) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok || e.Class != common.ClassUnknown {
		return fmt.Errorf("entity %d not found or already classified", id)
	}
	e.Class = class
	return nil
}

func (s *MemoryStorage) ClaimStagedMentions(
	ctx context.Context,
	scope store.Scope,
	limit int,
) ([]common.RawMention, error) {
	if limit <= 0 {
		limit = 500
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.staged))
	for id := range s.staged {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []common.RawMention
	for _, id := range ids {
		row := s.staged[id]
		if row.status != "pending" {
			continue
		}
		if !s.inScope(row.DocumentID, scope) {
			continue
		}
		out = append(out, row.RawMention)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStorage) CommitResolvedMentions(
	ctx context.Context,
	mentions []common.Mention,
	stagedIDs []int64,
) error {
	if len(mentions) != len(stagedIDs) {
		return fmt.Errorf("mentions and staged ids out of step: %d vs %d", len(mentions), len(stagedIDs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[int64]bool)
	for _, m := range mentions {
		if _, ok := s.entities[m.EntityID]; !ok {
			return fmt.Errorf("mention references missing entity %d", m.EntityID)
		}
		s.nextMentionID++
		m.ID = s.nextMentionID
		s.mentions[m.ID] = &m
		touched[m.EntityID] = true
	}
	for id := range touched {
		s.entities[id].MentionCount = s.countMentions(id)
	}
	s.markStaged(stagedIDs, "processed")
	return nil
}

func (s *MemoryStorage) MarkStagedJunk(ctx context.Context, stagedIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markStaged(stagedIDs, "junk")
	return nil
}

func (s *MemoryStorage) GetDocumentMeta(ctx context.Context, ids []int64) (map[int64]common.DocumentMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]common.DocumentMeta, len(ids))
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (s *MemoryStorage) ListDocumentMentions(ctx context.Context, scope store.Scope) ([]store.DocumentMentions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entityFilter := make(map[int64]bool, len(scope.EntityIDs))
	for _, id := range scope.EntityIDs {
		entityFilter[id] = true
	}

	byDoc := make(map[int64][]int64)
	for id, m := range s.mentions {
		if !s.inScope(m.DocumentID, scope) {
			continue
		}
		if len(entityFilter) > 0 && !entityFilter[m.EntityID] {
			continue
		}
		byDoc[m.DocumentID] = append(byDoc[m.DocumentID], id)
	}

	docIDs := make([]int64, 0, len(byDoc))
	for id := range byDoc {
		docIDs = append(docIDs, id)
	}
	slices.Sort(docIDs)

	out := make([]store.DocumentMentions, 0, len(docIDs))
	for _, docID := range docIDs {
		mentionIDs := byDoc[docID]
		slices.Sort(mentionIDs)
		dm := store.DocumentMentions{DocumentID: docID}
		for _, id := range mentionIDs {
			m := s.mentions[id]
			dm.Mentions = append(dm.Mentions, cooccur.ResolvedMention{
				EntityID:   m.EntityID,
				PageNumber: m.PageNumber,
				Position:   m.Position,
			})
		}
		out = append(out, dm)
	}
	return out, nil
}

func (s *MemoryStorage) MergeEntities(
	ctx context.Context,
	survivorID int64,
	duplicateIDs []int64,
	caps store.Capabilities,
) (common.MergeReport, error) {
	report := common.MergeReport{SurvivorID: survivorID}

	s.mu.Lock()
	defer s.mu.Unlock()

	survivor, ok := s.entities[survivorID]
	if !ok {
		return report, fmt.Errorf("merge survivor %d: %w", survivorID, store.ErrNotFound)
	}

	var live []int64
	for _, id := range store.DedupeInt64s(duplicateIDs) {
		if id == survivorID {
			continue
		}
		if _, ok := s.entities[id]; !ok {
			report.SkippedIDs = append(report.SkippedIDs, id)
			continue
		}
		live = append(live, id)
	}
	if len(live) == 0 {
		report.MentionCount = survivor.MentionCount
		return report, nil
	}
	report.MergedIDs = live

	isDup := make(map[int64]bool, len(live))
	for _, id := range live {
		isDup[id] = true
	}

	for _, m := range s.mentions {
		if isDup[m.EntityID] {
			m.EntityID = survivorID
			report.MentionsRepointed++
		}
	}

	for key, e := range s.edges {
		if !isDup[e.SourceID] && !isDup[e.TargetID] {
			continue
		}
		delete(s.edges, key)

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
		report.EdgesRepointed++

		newKey := edgeKey{src, tgt, e.Type}
		existing, ok := s.edges[newKey]
		if !ok {
			e.SourceID, e.TargetID = src, tgt
			s.edges[newKey] = e
			continue
		}
		report.EdgesCombined++
		existing.Weight += e.Weight
		existing.RiskScore += e.RiskScore
		existing.Proximity += e.Proximity
		existing.Confidence = max(existing.Confidence, e.Confidence)
		for doc, log := range e.Provenance {
			existing.Provenance[doc] = sumEdgeLogs(existing.Provenance[doc], log)
		}
	}

	for _, id := range live {
		survivor.RiskScore += s.entities[id].RiskScore
		delete(s.byNormalized, s.entities[id].NormalizedName)
		delete(s.entities, id)
	}
	survivor.MentionCount = s.countMentions(survivorID)
	report.MentionCount = survivor.MentionCount
	return report, nil
}

func (s *MemoryStorage) UpsertEdges(ctx context.Context, deltas []cooccur.EdgeDelta) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, updated := 0, 0
	for _, d := range deltas {
		key := edgeKey{d.SourceID, d.TargetID, d.Type}
		docKey := cooccur.ProvenanceKey(d.DocumentID)
		e, ok := s.edges[key]
		if !ok {
			s.nextEdgeID++
			s.edges[key] = &common.Edge{
				ID:         s.nextEdgeID,
				SourceID:   d.SourceID,
				TargetID:   d.TargetID,
				Type:       d.Type,
				Weight:     d.WeightDelta,
				Confidence: d.Confidence,
				Proximity:  d.WeightDelta,
				RiskScore:  d.RiskDelta,
				Provenance: map[string]common.EdgeLog{docKey: d.Log},
			}
			created++
			continue
		}
		// proximity_score accumulates the full weight delta, seeded from
		// the prior weight when the edge predates the column.
		proximity := e.Proximity
		if proximity == 0 {
			proximity = e.Weight
		}
		e.Proximity = proximity + d.WeightDelta
		e.Weight += d.WeightDelta
		e.RiskScore += d.RiskDelta
		e.Confidence = max(e.Confidence, d.Confidence)
		e.Provenance[docKey] = sumEdgeLogs(e.Provenance[docKey], d.Log)
		updated++
	}
	return created, updated, nil
}

func (s *MemoryStorage) GetEdge(ctx context.Context, sourceID, targetID int64, relType string) (common.Edge, error) {
	if sourceID > targetID {
		sourceID, targetID = targetID, sourceID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[edgeKey{sourceID, targetID, relType}]
	if !ok {
		return common.Edge{}, store.ErrNotFound
	}
	out := *e
	out.Provenance = make(map[string]common.EdgeLog, len(e.Provenance))
	for k, v := range e.Provenance {
		out.Provenance[k] = v
	}
	return out, nil
}

func (s *MemoryStorage) CreateRun(ctx context.Context, summary common.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[summary.RunID]; ok {
		return fmt.Errorf("run %s already exists", summary.RunID)
	}
	s.runs[summary.RunID] = summary
	s.runOrder = append(s.runOrder, summary.RunID)
	return nil
}

func (s *MemoryStorage) FinishRun(ctx context.Context, summary common.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[summary.RunID]; !ok {
		return store.ErrNotFound
	}
	s.runs[summary.RunID] = summary
	return nil
}

func (s *MemoryStorage) GetRun(ctx context.Context, runID string) (common.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.runs[runID]
	if !ok {
		return common.RunSummary{}, store.ErrNotFound
	}
	return summary, nil
}

func (s *MemoryStorage) ListRuns(ctx context.Context, limit int) ([]common.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.RunSummary, 0, min(limit, len(s.runOrder)))
	for i := len(s.runOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[s.runOrder[i]])
	}
	return out, nil
}

func (s *MemoryStorage) inScope(documentID int64, scope store.Scope) bool {
	if len(scope.DocumentIDs) > 0 && !slices.Contains(scope.DocumentIDs, documentID) {
		return false
	}
	if !scope.Since.IsZero() {
		doc, ok := s.docs[documentID]
		if !ok || doc.DocumentDate.Before(scope.Since) {
			return false
		}
	}
	return true
}

func (s *MemoryStorage) countMentions(entityID int64) int {
	count := 0
	for _, m := range s.mentions {
		if m.EntityID == entityID {
			count++
		}
	}
	return count
}

func (s *MemoryStorage) markStaged(ids []int64, status string) {
	for _, id := range ids {
		if row, ok := s.staged[id]; ok {
			row.status = status
		}
	}
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
