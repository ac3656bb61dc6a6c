// Package engine orchestrates the entity resolution pipeline: staged
// mentions are resolved onto canonical entities, duplicate entities are
// merged, fresh entities are classified and co-occurrence edges are
// aggregated. Stages run in a fixed order and each stage commits in bounded
// batches so a failure loses at most one batch of work.
package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/caseframe/backend/internal/util"
	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/logger"
	"github.com/caseframe/backend/pkg/store"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Stage string

const (
	StageResolve   Stage = "resolve"
	StageMerge     Stage = "merge"
	StageClassify  Stage = "classify"
	StageAggregate Stage = "aggregate"
)

// stageOrder is the only order stages ever run in. Callers select a subset;
// they cannot reorder it, because aggregation over unmerged duplicates
// splits edge weight across entities that are about to collapse.
var stageOrder = []Stage{StageResolve, StageMerge, StageClassify, StageAggregate}

func AllStages() []Stage {
	return slices.Clone(stageOrder)
}

func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return AllStages(), nil
	}
	selected := make(map[Stage]bool, len(names))
	for _, name := range names {
		stage := Stage(name)
		if !slices.Contains(stageOrder, stage) {
			return nil, fmt.Errorf("unknown stage %q", name)
		}
		selected[stage] = true
	}
	out := make([]Stage, 0, len(selected))
	for _, stage := range stageOrder {
		if selected[stage] {
			out = append(out, stage)
		}
	}
	return out, nil
}

const (
	defaultBatchSize = 500
	commitRetries    = 3
	// Scoring is pure computation, so the fan-out is bounded by CPU
	// rather than by any external rate limit.
	scoreParallelMax = 8
)

// Params configures one pipeline run.
type Params struct {
	Stages    []Stage
	Scope     store.Scope
	DryRun    bool
	BatchSize int
}

type Engine struct {
	store store.Storage
}

func New(st store.Storage) *Engine {
	return &Engine{store: st}
}

// Run executes the selected stages in pipeline order and persists a run
// record. The returned summary is also written to the store; the error is
// non-nil when any stage aborted. A run that committed some batches before
// aborting reports RunPartial, one that committed nothing reports RunFailed.
func (e *Engine) Run(ctx context.Context, params Params) (common.RunSummary, error) {
	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	stages := params.Stages
	if len(stages) == 0 {
		stages = AllStages()
	}

	runID, err := gonanoid.New()
	if err != nil {
		return common.RunSummary{}, err
	}
	summary := common.RunSummary{
		RunID:     runID,
		Status:    common.RunComputing,
		DryRun:    params.DryRun,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, summary); err != nil {
		return summary, fmt.Errorf("create run record: %w", err)
	}

	caps, err := e.store.Capabilities(ctx)
	if err != nil {
		return e.finish(ctx, summary, "capabilities", err)
	}

	logger.Info("[Engine] Run started",
		"run_id", runID, "stages", stages, "dry_run", params.DryRun, "batch_size", params.BatchSize)

	for _, stage := range stages {
		start := time.Now()
		switch stage {
		case StageResolve:
			err = e.resolveStage(ctx, &summary, params)
		case StageMerge:
			err = e.mergeStage(ctx, &summary, params, caps)
		case StageClassify:
			err = e.classifyStage(ctx, &summary, params)
		case StageAggregate:
			err = e.aggregateStage(ctx, &summary, params)
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			return e.finish(ctx, summary, string(stage), err)
		}
		logger.Debug("[Engine] Stage done", "run_id", runID, "stage", stage, "took", time.Since(start))
	}

	return e.finish(ctx, summary, "", nil)
}

func (e *Engine) finish(ctx context.Context, summary common.RunSummary, failurePoint string, cause error) (common.RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()
	if cause == nil {
		summary.Status = common.RunSucceeded
	} else {
		summary.FailurePoint = failurePoint
		summary.Error = cause.Error()
		if summaryHasProgress(summary) {
			summary.Status = common.RunPartial
		} else {
			summary.Status = common.RunFailed
		}
	}

	if err := e.store.FinishRun(ctx, summary); err != nil {
		logger.Error("[Engine] Failed to persist run record", "run_id", summary.RunID, "error", err)
		if cause == nil {
			cause = err
		}
	}

	logger.Info("[Engine] Run finished",
		"run_id", summary.RunID, "status", summary.Status,
		"mentions", summary.MentionsProcessed, "skipped", summary.MentionsSkipped,
		"created", summary.EntitiesCreated, "merged", summary.EntitiesMerged,
		"classified", summary.EntitiesClassified,
		"edges_created", summary.EdgesCreated, "edges_updated", summary.EdgesUpdated)
	return summary, cause
}

func summaryHasProgress(s common.RunSummary) bool {
	return s.MentionsProcessed > 0 || s.MentionsSkipped > 0 ||
		s.EntitiesCreated > 0 || s.EntitiesMerged > 0 || s.EntitiesClassified > 0 ||
		s.EdgesCreated > 0 || s.EdgesUpdated > 0
}

func commit(ctx context.Context, fn func(context.Context) error) error {
	return util.RetryErrWithContext(ctx, commitRetries, fn)
}
