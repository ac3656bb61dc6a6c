package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/cooccur"
	"github.com/caseframe/backend/pkg/dedupe"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/resolver"
	"github.com/caseframe/backend/pkg/store"
)

// resolveStage drains the staged mention queue in bounded batches. Each
// batch is resolved against a shared in-memory index, committed, and its
// staged rows settled; rows of a failed batch stay pending and are
// reclaimed by the next run.
func (e *Engine) resolveStage(ctx context.Context, summary *common.RunSummary, params Params) error {
	aliases, err := e.store.LoadAliases(ctx)
	if err != nil {
		return fmt.Errorf("load aliases: %w", err)
	}
	entities, err := e.store.ListEntities(ctx)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}

	var creator resolver.EntityCreator = e.store
	if params.DryRun {
		creator = &previewCreator{}
	}
	res := resolver.New(resolver.NewIndex(entities, aliases), creator)

	for {
		raws, err := e.store.ClaimStagedMentions(ctx, params.Scope, params.BatchSize)
		if err != nil {
			return fmt.Errorf("claim staged mentions: %w", err)
		}
		if len(raws) == 0 {
			return nil
		}

		mentions := make([]common.Mention, 0, len(raws))
		resolvedIDs := make([]int64, 0, len(raws))
		junkIDs := make([]int64, 0)
		for _, raw := range raws {
			resn, err := res.Resolve(ctx, raw.RawName)
			if errors.Is(err, resolver.ErrJunk) {
				junkIDs = append(junkIDs, raw.ID)
				summary.MentionsSkipped++
				continue
			}
			if err != nil {
				return err
			}
			if resn.Created {
				summary.EntitiesCreated++
				if params.DryRun {
					logger.Info("[Engine] Dry run: would create entity", "raw_name", raw.RawName)
				}
			}
			mentions = append(mentions, common.Mention{
				EntityID:   resn.EntityID,
				DocumentID: raw.DocumentID,
				PageNumber: raw.PageNumber,
				Position:   raw.Position,
				Confidence: resn.Confidence,
				Snippet:    raw.Snippet,
			})
			resolvedIDs = append(resolvedIDs, raw.ID)
			summary.MentionsProcessed++
		}

		if params.DryRun {
			// Nothing is settled in a dry run, so the queue would hand the
			// same rows back forever. One batch is the preview.
			return nil
		}

		err = commit(ctx, func(ctx context.Context) error {
			return e.store.CommitResolvedMentions(ctx, mentions, resolvedIDs)
		})
		if err != nil {
			return fmt.Errorf("commit resolved mentions: %w", err)
		}
		if err := e.store.MarkStagedJunk(ctx, junkIDs); err != nil {
			return fmt.Errorf("mark junk mentions: %w", err)
		}

		if len(raws) < params.BatchSize {
			return nil
		}
	}
}

// mergeStage finds duplicate entity groups and executes one merge
// transaction per group, survivor first in id order. A group that fails
// does not stop the remaining groups; the first error is reported after
// all groups ran.
func (e *Engine) mergeStage(ctx context.Context, summary *common.RunSummary, params Params, caps store.Capabilities) error {
	aliases, err := e.store.LoadAliases(ctx)
	if err != nil {
		return fmt.Errorf("load aliases: %w", err)
	}
	entities, err := e.store.ListEntities(ctx)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}

	pairs := dedupe.FindDuplicatePairs(entities, aliases)
	plans := dedupe.PlanMerges(dedupe.BuildComponents(pairs))
	if len(plans) == 0 {
		return nil
	}
	logger.Info("[Engine] Merge plan ready", "groups", len(plans), "pairs", len(pairs))

	if params.DryRun {
		for _, plan := range plans {
			summary.EntitiesMerged += len(plan.DuplicateIDs)
			logger.Info("[Engine] Dry run: would merge",
				"survivor", plan.SurvivorID, "duplicates", plan.DuplicateIDs)
		}
		return nil
	}

	var firstErr error
	for _, plan := range plans {
		report, err := e.store.MergeEntities(ctx, plan.SurvivorID, plan.DuplicateIDs, caps)
		if err != nil {
			logger.Error("[Engine] Merge group failed",
				"survivor", plan.SurvivorID, "duplicates", plan.DuplicateIDs, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("merge into %d: %w", plan.SurvivorID, err)
			}
			continue
		}
		summary.EntitiesMerged += len(report.MergedIDs)
	}
	return firstErr
}

// classifyStage narrows entities still carrying the unknown class based on
// their display names. Names the heuristic cannot place stay unknown.
func (e *Engine) classifyStage(ctx context.Context, summary *common.RunSummary, params Params) error {
	entities, err := e.store.ListUnclassifiedEntities(ctx)
	if err != nil {
		return fmt.Errorf("load unclassified entities: %w", err)
	}

	for _, entity := range entities {
		class := resolver.ClassifyName(entity.DisplayName)
		if class == common.ClassUnknown {
			continue
		}
		if params.DryRun {
			summary.EntitiesClassified++
			continue
		}
		if err := e.store.UpdateEntityClass(ctx, entity.ID, class); err != nil {
			return fmt.Errorf("classify entity %d: %w", entity.ID, err)
		}
		summary.EntitiesClassified++
	}
	return nil
}

// aggregateStage scores co-occurrence per document and applies the edge
// deltas additively, one bounded batch of documents per transaction.
func (e *Engine) aggregateStage(ctx context.Context, summary *common.RunSummary, params Params) error {
	docs, err := e.store.ListDocumentMentions(ctx, params.Scope)
	if err != nil {
		return fmt.Errorf("load document mentions: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	docIDs := make([]int64, 0, len(docs))
	for _, d := range docs {
		docIDs = append(docIDs, d.DocumentID)
	}
	meta, err := e.store.GetDocumentMeta(ctx, docIDs)
	if err != nil {
		return fmt.Errorf("load document metadata: %w", err)
	}

	err = store.ChunkRange(len(docs), params.BatchSize, func(start, end int) error {
		var deltas []cooccur.EdgeDelta
		mergeMu := sync.Mutex{}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(scoreParallelMax)
		for _, doc := range docs[start:end] {
			d := doc
			g.Go(func() error {
				select {
				case <-gCtx.Done():
					return nil
				default:
					docMeta, ok := meta[d.DocumentID]
					if !ok {
						logger.Warn("[Engine] Document metadata missing, skipping", "document_id", d.DocumentID)
						return nil
					}
					scored := cooccur.ScoreDocument(docMeta, d.Mentions)
					if len(scored) == 0 {
						return nil
					}
					mergeMu.Lock()
					deltas = append(deltas, scored...)
					mergeMu.Unlock()
					return nil
				}
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if len(deltas) == 0 {
			return nil
		}
		if params.DryRun {
			for _, d := range deltas {
				summary.PlannedUpserts = append(summary.PlannedUpserts, common.PlannedUpsert{
					SourceID:    d.SourceID,
					TargetID:    d.TargetID,
					Type:        d.Type,
					DocumentID:  d.DocumentID,
					WeightDelta: d.WeightDelta,
					Confidence:  d.Confidence,
					RiskDelta:   d.RiskDelta,
				})
			}
			summary.EdgesUpdated += len(deltas)
			return nil
		}

		return commit(ctx, func(ctx context.Context) error {
			created, updated, err := e.store.UpsertEdges(ctx, deltas)
			if err != nil {
				return err
			}
			summary.EdgesCreated += created
			summary.EdgesUpdated += updated
			return nil
		})
	})
	if err != nil {
		return err
	}

	if params.DryRun {
		// The scoring fan-out appends in arrival order.
		slices.SortFunc(summary.PlannedUpserts, func(a, b common.PlannedUpsert) int {
			if a.SourceID != b.SourceID {
				return int(a.SourceID - b.SourceID)
			}
			if a.TargetID != b.TargetID {
				return int(a.TargetID - b.TargetID)
			}
			return int(a.DocumentID - b.DocumentID)
		})
		for _, p := range summary.PlannedUpserts {
			logger.Info("[Engine] Dry run: would upsert edge",
				"source", p.SourceID, "target", p.TargetID, "document", p.DocumentID,
				"weight_delta", p.WeightDelta, "confidence", p.Confidence, "risk_delta", p.RiskDelta)
		}
	}
	return nil
}

// previewCreator stands in for the store during dry runs. Synthetic
// negative ids keep the in-memory index consistent without writing rows.
type previewCreator struct {
	nextID int64
}

func (c *previewCreator) CreateEntity(ctx context.Context, displayName, normalizedName string, class common.EntityClass) (int64, error) {
	c.nextID--
	return c.nextID, nil
}
