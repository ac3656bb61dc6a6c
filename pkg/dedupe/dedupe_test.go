package dedupe

import (
	"reflect"
	"testing"

	"github.com/caseframe/backend/pkg/common"
)

func TestFindDuplicatePairs_PhoneticBucket(t *testing.T) {
	entities := []common.Entity{
		{ID: 1, DisplayName: "Ghislaine Maxwell"},
		{ID: 2, DisplayName: "Ghislaine Maxwel"},
		{ID: 3, DisplayName: "Alan Dershowitz"},
	}

	pairs := FindDuplicatePairs(entities, nil)
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d: %+v", len(pairs), pairs)
	}
	if pairs[0].A != 1 || pairs[0].B != 2 {
		t.Fatalf("unexpected pair: %+v", pairs[0])
	}
	if pairs[0].Similarity < 0.90 {
		t.Fatalf("expected similarity >= 0.90, got %v", pairs[0].Similarity)
	}
}

func TestFindDuplicatePairs_DissimilarBucketMatesExcluded(t *testing.T) {
	// Same phonetic bucket is necessary but not sufficient.
	entities := []common.Entity{
		{ID: 1, DisplayName: "Robert"},
		{ID: 2, DisplayName: "Rupert"},
	}

	pairs := FindDuplicatePairs(entities, nil)
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", pairs)
	}
}

func TestFindDuplicatePairs_AliasLink(t *testing.T) {
	entities := []common.Entity{
		{ID: 1, DisplayName: "Jeffrey Epstein"},
		{ID: 2, DisplayName: "Jeff Epstein"},
	}
	aliases := map[string]string{"Jeff Epstein": "Jeffrey Epstein"}

	pairs := FindDuplicatePairs(entities, aliases)
	if len(pairs) == 0 {
		t.Fatal("expected alias-linked pair")
	}
	found := false
	for _, p := range pairs {
		if p.A == 1 && p.B == 2 && p.Similarity == 1.0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected alias pair (1,2) at similarity 1.0, got %+v", pairs)
	}
}

func TestBuildComponents_Transitive(t *testing.T) {
	pairs := []Candidate{
		{A: 1, B: 2},
		{A: 2, B: 3},
		{A: 5, B: 6},
	}

	groups := BuildComponents(pairs)
	want := [][]int64{{1, 2, 3}, {5, 6}}
	if !reflect.DeepEqual(groups, want) {
		t.Fatalf("expected %v, got %v", want, groups)
	}
}

func TestPlanMerges_SurvivorIsLowestID(t *testing.T) {
	plans := PlanMerges([][]int64{{1, 2, 3}, {5, 6}})
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].SurvivorID != 1 || !reflect.DeepEqual(plans[0].DuplicateIDs, []int64{2, 3}) {
		t.Fatalf("unexpected plan[0]: %+v", plans[0])
	}
	if plans[1].SurvivorID != 5 || !reflect.DeepEqual(plans[1].DuplicateIDs, []int64{6}) {
		t.Fatalf("unexpected plan[1]: %+v", plans[1])
	}
}

func TestPlanMerges_SingletonsSkipped(t *testing.T) {
	if plans := PlanMerges([][]int64{{9}}); len(plans) != 0 {
		t.Fatalf("expected no plans for singleton group, got %+v", plans)
	}
}
