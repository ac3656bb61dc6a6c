package resolver

import (
	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/namekit"
)

type indexEntry struct {
	ID         int64
	Normalized string
}

// Index is the per-run in-memory view of the known entities, keyed for each
// stage of the matching cascade. The alias table is static knowledge loaded
// once per run and never mutated by resolution; entities created during the
// run are added so that re-resolving the same raw name within the run hits
// the exact stage.
type Index struct {
	byNormalized map[string]int64
	byPhonetic   map[string][]indexEntry
	aliases      map[string]string
}

// NewIndex builds the lookup structure from the stored entities and the
// alias table (normalized alias -> canonical display name).
func NewIndex(entities []common.Entity, aliases map[string]string) *Index {
	ix := &Index{
		byNormalized: make(map[string]int64, len(entities)),
		byPhonetic:   make(map[string][]indexEntry),
		aliases:      make(map[string]string, len(aliases)),
	}
	for alias, canonical := range aliases {
		ix.aliases[namekit.Casefold(alias)] = canonical
	}
	for _, e := range entities {
		ix.Add(e)
	}
	return ix
}

// Add registers an entity under its normalized and phonetic keys. When two
// entities share a normalized form the lower (older) id wins, reflecting
// first-seen priority.
func (ix *Index) Add(e common.Entity) {
	norm := e.NormalizedName
	if norm == "" {
		norm = namekit.Casefold(e.DisplayName)
	}
	if norm == "" {
		return
	}

	if existing, ok := ix.byNormalized[norm]; !ok || e.ID < existing {
		ix.byNormalized[norm] = e.ID
	}

	key := namekit.PhoneticKey(e.DisplayName)
	if key != "" {
		ix.byPhonetic[key] = append(ix.byPhonetic[key], indexEntry{ID: e.ID, Normalized: norm})
	}
}

// Exact returns the entity whose normalized display name equals norm.
func (ix *Index) Exact(norm string) (int64, bool) {
	id, ok := ix.byNormalized[norm]
	return id, ok
}

// Alias maps a normalized spelling to its canonical display name, if the
// alias table knows it.
func (ix *Index) Alias(norm string) (string, bool) {
	canonical, ok := ix.aliases[norm]
	return canonical, ok
}

// Bucket returns the phonetic-bucket candidates for a raw name.
func (ix *Index) Bucket(phoneticKey string) []indexEntry {
	return ix.byPhonetic[phoneticKey]
}

// Size reports the number of distinct normalized names indexed.
func (ix *Index) Size() int {
	return len(ix.byNormalized)
}
