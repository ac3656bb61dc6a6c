// Package dedupe discovers duplicate entities after the fact and plans
// their merges. Resolution catches most duplicates up front; this pass
// sweeps up the ones that slipped through because they were created before
// their better-spelled twin, or because the alias table learned a mapping
// later.
package dedupe

import (
	"sort"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/namekit"
	"github.com/caseframe/backend/pkg/resolver"
)

// Candidate is one potentially duplicate entity pair, A < B by id.
type Candidate struct {
	A          int64
	B          int64
	Similarity float64
}

// MergePlan names a survivor and the duplicates to collapse into it.
type MergePlan struct {
	SurvivorID   int64
	DuplicateIDs []int64
}

// FindDuplicatePairs buckets the stored entities by phonetic key and scores
// every within-bucket pair, keeping those at or above the length-dependent
// similarity threshold. Pairs whose normalized names are linked through the
// alias table are duplicates regardless of edit distance.
func FindDuplicatePairs(entities []common.Entity, aliases map[string]string) []Candidate {
	buckets := make(map[string][]common.Entity)
	byNormalized := make(map[string][]int64, len(entities))

	for _, e := range entities {
		norm := e.NormalizedName
		if norm == "" {
			norm = namekit.Casefold(e.DisplayName)
		}
		if norm == "" {
			continue
		}
		key := namekit.PhoneticKey(e.DisplayName)
		if key != "" {
			buckets[key] = append(buckets[key], e)
		}
		byNormalized[norm] = append(byNormalized[norm], e.ID)
	}

	var pairs []Candidate

	for _, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				normA, normB := normOf(a), normOf(b)
				sim := namekit.Similarity(normA, normB)
				threshold := min(resolver.SimilarityThreshold(normA), resolver.SimilarityThreshold(normB))
				if sim < threshold {
					continue
				}
				pairs = append(pairs, orderedCandidate(a.ID, b.ID, sim))
			}
		}
	}

	for alias, canonical := range aliases {
		aliasIDs := byNormalized[namekit.Casefold(alias)]
		canonIDs := byNormalized[namekit.Casefold(canonical)]
		for _, aid := range aliasIDs {
			for _, cid := range canonIDs {
				if aid == cid {
					continue
				}
				pairs = append(pairs, orderedCandidate(aid, cid, 1.0))
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

func normOf(e common.Entity) string {
	if e.NormalizedName != "" {
		return e.NormalizedName
	}
	return namekit.Casefold(e.DisplayName)
}

func orderedCandidate(a, b int64, sim float64) Candidate {
	if a > b {
		a, b = b, a
	}
	return Candidate{A: a, B: b, Similarity: sim}
}

// BuildComponents groups transitively-similar entity ids with union-find.
// Output groups are sorted ascending, and the group list is ordered by its
// smallest member, so planning is deterministic.
func BuildComponents(pairs []Candidate) [][]int64 {
	parent := make(map[int64]int64)

	var find func(x int64) int64
	find = func(x int64) int64 {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	union := func(x, y int64) {
		px, py := find(x), find(y)
		if px != py {
			parent[px] = py
		}
	}

	for _, p := range pairs {
		union(p.A, p.B)
	}

	components := make(map[int64][]int64)
	for id := range parent {
		root := find(id)
		components[root] = append(components[root], id)
	}

	result := make([][]int64, 0, len(components))
	for _, group := range components {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		result = append(result, group)
	}
	sort.Slice(result, func(i, j int) bool { return result[i][0] < result[j][0] })
	return result
}

// PlanMerges picks the survivor for each component: the lowest entity id,
// matching the resolver's first-seen tie-break.
func PlanMerges(groups [][]int64) []MergePlan {
	plans := make([]MergePlan, 0, len(groups))
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		plans = append(plans, MergePlan{
			SurvivorID:   group[0],
			DuplicateIDs: group[1:],
		})
	}
	return plans
}
