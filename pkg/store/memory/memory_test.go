package memory

import (
	"context"
	"math"
	"testing"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/cooccur"
	"github.com/caseframe/backend/pkg/store"
)

func TestMergeEntities_MissingSurvivorFails(t *testing.T) {
	ctx := context.Background()
	st := New()

	_, err := st.MergeEntities(ctx, 99, []int64{1}, store.Capabilities{})
	if err == nil {
		t.Fatal("MergeEntities() with missing survivor succeeded")
	}
}

func TestMergeEntities_MissingDuplicateSkipped(t *testing.T) {
	ctx := context.Background()
	st := New()
	id1, _ := st.CreateEntity(ctx, "A", "a one", common.ClassPerson)
	id2, _ := st.CreateEntity(ctx, "B", "b two", common.ClassPerson)

	report, err := st.MergeEntities(ctx, id1, []int64{id2, 42}, store.Capabilities{})
	if err != nil {
		t.Fatalf("MergeEntities() error = %v", err)
	}
	if len(report.MergedIDs) != 1 || report.MergedIDs[0] != id2 {
		t.Errorf("MergedIDs = %v, want [%d]", report.MergedIDs, id2)
	}
	if len(report.SkippedIDs) != 1 || report.SkippedIDs[0] != 42 {
		t.Errorf("SkippedIDs = %v, want [42]", report.SkippedIDs)
	}
}

func TestMergeEntities_DropsCollapsedSelfEdge(t *testing.T) {
	ctx := context.Background()
	st := New()
	id1, _ := st.CreateEntity(ctx, "A", "a one", common.ClassPerson)
	id2, _ := st.CreateEntity(ctx, "B", "b two", common.ClassPerson)

	// An edge between the survivor and the duplicate becomes a self loop
	// after repointing and must disappear.
	_, _, err := st.UpsertEdges(ctx, []cooccur.EdgeDelta{
		{SourceID: id1, TargetID: id2, Type: cooccur.RelationshipType, DocumentID: 1, WeightDelta: 4},
	})
	if err != nil {
		t.Fatalf("UpsertEdges() error = %v", err)
	}

	report, err := st.MergeEntities(ctx, id1, []int64{id2}, store.Capabilities{})
	if err != nil {
		t.Fatalf("MergeEntities() error = %v", err)
	}
	if report.EdgesRepointed != 0 {
		t.Errorf("EdgesRepointed = %d, want 0 for a collapsed self edge", report.EdgesRepointed)
	}
	if _, err := st.GetEdge(ctx, id1, id2, cooccur.RelationshipType); err == nil {
		t.Error("self edge survived the merge")
	}
}

func TestUpsertEdges_AccumulatesProximityAndProvenance(t *testing.T) {
	ctx := context.Background()
	st := New()
	id1, _ := st.CreateEntity(ctx, "A", "a one", common.ClassPerson)
	id2, _ := st.CreateEntity(ctx, "B", "b two", common.ClassPerson)

	delta := cooccur.EdgeDelta{
		SourceID: id1, TargetID: id2, Type: cooccur.RelationshipType,
		DocumentID: 1, WeightDelta: 7.8, Confidence: 0.75, RiskDelta: 2.4,
		Log: common.EdgeLog{Base: 2, Proximity: 2, TypeBonus: 3, RedFlag: 0.8, Weight: 7.8, Risk: 2.4},
	}
	for i := 0; i < 2; i++ {
		if _, _, err := st.UpsertEdges(ctx, []cooccur.EdgeDelta{delta}); err != nil {
			t.Fatalf("UpsertEdges() error = %v", err)
		}
	}

	edge, err := st.GetEdge(ctx, id1, id2, cooccur.RelationshipType)
	if err != nil {
		t.Fatalf("GetEdge() error = %v", err)
	}
	if math.Abs(edge.Weight-15.6) > 1e-9 {
		t.Errorf("weight = %v, want 15.6", edge.Weight)
	}
	// The proximity score accumulates the full weight delta, not just the
	// proximity bonus.
	if math.Abs(edge.Proximity-15.6) > 1e-9 {
		t.Errorf("proximity_score = %v, want 15.6", edge.Proximity)
	}
	if math.Abs(edge.RiskScore-4.8) > 1e-9 {
		t.Errorf("risk_score = %v, want 4.8", edge.RiskScore)
	}
	// Re-aggregating the same document sums its log so the weight stays
	// explainable from the provenance alone.
	log := edge.Provenance["1"]
	if math.Abs(log.Weight-15.6) > 1e-9 || math.Abs(log.Base-4) > 1e-9 || math.Abs(log.RedFlag-1.6) > 1e-9 {
		t.Errorf("provenance log = %+v, want doubled contributions", log)
	}
}

func TestCommitResolvedMentions_RequiresAlignedStagedIDs(t *testing.T) {
	ctx := context.Background()
	st := New()
	id, _ := st.CreateEntity(ctx, "A", "a one", common.ClassPerson)

	err := st.CommitResolvedMentions(ctx, []common.Mention{{EntityID: id, DocumentID: 1}}, nil)
	if err == nil {
		t.Fatal("CommitResolvedMentions() accepted mismatched staged ids")
	}
}

func TestStagedLifecycle(t *testing.T) {
	ctx := context.Background()
	st := New()
	st.SeedDocument(common.DocumentMeta{ID: 1})
	junkID := st.StageMention(common.RawMention{DocumentID: 1, RawName: "12345"})
	goodID := st.StageMention(common.RawMention{DocumentID: 1, RawName: "Jeffrey Epstein"})

	if err := st.MarkStagedJunk(ctx, []int64{junkID}); err != nil {
		t.Fatalf("MarkStagedJunk() error = %v", err)
	}

	raws, err := st.ClaimStagedMentions(ctx, store.Scope{}, 10)
	if err != nil {
		t.Fatalf("ClaimStagedMentions() error = %v", err)
	}
	if len(raws) != 1 || raws[0].ID != goodID {
		t.Fatalf("claimed = %v, want only the unsettled row", raws)
	}

	id, err := st.CreateEntity(ctx, "Jeffrey Epstein", "jeffrey epstein", common.ClassPerson)
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	err = st.CommitResolvedMentions(ctx, []common.Mention{{EntityID: id, DocumentID: 1}}, []int64{goodID})
	if err != nil {
		t.Fatalf("CommitResolvedMentions() error = %v", err)
	}

	raws, err = st.ClaimStagedMentions(ctx, store.Scope{}, 10)
	if err != nil {
		t.Fatalf("ClaimStagedMentions() error = %v", err)
	}
	if len(raws) != 0 {
		t.Errorf("claimed after settle = %v, want none", raws)
	}

	entities, err := st.GetEntities(ctx, []int64{id})
	if err != nil || len(entities) != 1 {
		t.Fatalf("GetEntities() = %v, %v", entities, err)
	}
	if entities[0].MentionCount != 1 {
		t.Errorf("mention_count = %d, want 1", entities[0].MentionCount)
	}
}

func TestUpdateEntityClass_RefusesReclassify(t *testing.T) {
	ctx := context.Background()
	st := New()
	id, _ := st.CreateEntity(ctx, "Interpol", "interpol", common.ClassUnknown)

	if err := st.UpdateEntityClass(ctx, id, common.ClassOrganization); err != nil {
		t.Fatalf("UpdateEntityClass() error = %v", err)
	}
	if err := st.UpdateEntityClass(ctx, id, common.ClassPerson); err == nil {
		t.Error("UpdateEntityClass() overwrote an existing class")
	}
}
