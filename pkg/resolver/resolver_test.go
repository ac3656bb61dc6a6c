package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/namekit"
)

type fakeCreator struct {
	nextID  int64
	created []common.Entity
}

func (f *fakeCreator) CreateEntity(_ context.Context, displayName, normalizedName string, class common.EntityClass) (int64, error) {
	f.nextID++
	f.created = append(f.created, common.Entity{
		ID:             f.nextID,
		DisplayName:    displayName,
		NormalizedName: normalizedName,
		Class:          class,
	})
	return f.nextID, nil
}

func testIndex(aliases map[string]string, entities ...common.Entity) *Index {
	for i := range entities {
		if entities[i].NormalizedName == "" {
			entities[i].NormalizedName = namekit.Casefold(entities[i].DisplayName)
		}
	}
	return NewIndex(entities, aliases)
}

func TestResolve_Exact(t *testing.T) {
	ix := testIndex(nil, common.Entity{ID: 7, DisplayName: "Jeffrey Epstein"})
	r := New(ix, &fakeCreator{nextID: 100})

	res, err := r.Resolve(context.Background(), "  jeffrey   EPSTEIN ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityID != 7 || res.Method != MethodExact || res.Confidence != 1.0 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolve_Alias(t *testing.T) {
	aliases := map[string]string{"Jeff Epstein": "Jeffrey Epstein"}
	ix := testIndex(aliases, common.Entity{ID: 7, DisplayName: "Jeffrey Epstein"})
	r := New(ix, &fakeCreator{nextID: 100})

	res, err := r.Resolve(context.Background(), "Jeff Epstein")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityID != 7 || res.Method != MethodAlias || res.Confidence != 0.98 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolve_PhoneticSimilarity(t *testing.T) {
	ix := testIndex(nil, common.Entity{ID: 3, DisplayName: "Ghislaine Maxwell"})
	r := New(ix, &fakeCreator{nextID: 100})

	res, err := r.Resolve(context.Background(), "Ghislaine Maxwel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityID != 3 || res.Method != MethodPhonetic {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res.Confidence < SimilarityThresholdLong {
		t.Fatalf("expected confidence >= %v, got %v", SimilarityThresholdLong, res.Confidence)
	}
}

func TestResolve_PhoneticTieBreakPrefersLowerID(t *testing.T) {
	ix := testIndex(nil,
		common.Entity{ID: 2, DisplayName: "Jan Smith"},
		common.Entity{ID: 1, DisplayName: "Jon Smith"},
	)
	r := New(ix, &fakeCreator{nextID: 100})

	res, err := r.Resolve(context.Background(), "Jen Smith")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != MethodPhonetic {
		t.Fatalf("expected phonetic match, got %+v", res)
	}
	if res.EntityID != 1 {
		t.Fatalf("expected tie to break toward id 1, got %d", res.EntityID)
	}
}

func TestResolve_BelowThresholdCreates(t *testing.T) {
	ix := testIndex(nil, common.Entity{ID: 3, DisplayName: "Ghislaine Maxwell"})
	creator := &fakeCreator{nextID: 100}
	r := New(ix, creator)

	// Similarity of "ghislaine max" to "ghislaine maxwell" is ~0.76, below
	// both thresholds, so a separate entity is created; the merge pass owns
	// collapsing it later.
	res, err := r.Resolve(context.Background(), "Ghislaine Max")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created || res.Method != MethodCreated {
		t.Fatalf("expected creation, got %+v", res)
	}
	if len(creator.created) != 1 || creator.created[0].DisplayName != "Ghislaine Max" {
		t.Fatalf("unexpected created entities: %+v", creator.created)
	}
}

func TestResolve_OCRRetryMatchesExisting(t *testing.T) {
	ix := testIndex(nil, common.Entity{ID: 9, DisplayName: "William Maxwell"})
	creator := &fakeCreator{nextID: 100}
	r := New(ix, creator)

	res, err := r.Resolve(context.Background(), "Wi11iam Maxwe11")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EntityID != 9 || res.Method != MethodOCR {
		t.Fatalf("expected OCR match onto id 9, got %+v", res)
	}
	if len(creator.created) != 0 {
		t.Fatalf("expected no created entities, got %+v", creator.created)
	}
}

func TestResolve_OCRMissCreatesUnderOriginalSpelling(t *testing.T) {
	ix := testIndex(nil)
	creator := &fakeCreator{}
	r := New(ix, creator)

	res, err := r.Resolve(context.Background(), "Wi11iam Maxwe11")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created {
		t.Fatalf("expected creation, got %+v", res)
	}
	if creator.created[0].DisplayName != "Wi11iam Maxwe11" {
		t.Fatalf("expected original spelling preserved, got %q", creator.created[0].DisplayName)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	ix := testIndex(nil)
	creator := &fakeCreator{}
	r := New(ix, creator)

	first, err := r.Resolve(context.Background(), "Alan Dershowitz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), "Alan Dershowitz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.EntityID != second.EntityID {
		t.Fatalf("expected same entity id, got %d then %d", first.EntityID, second.EntityID)
	}
	if !first.Created || second.Created {
		t.Fatalf("expected create-then-match, got %+v then %+v", first, second)
	}
	if second.Method != MethodExact {
		t.Fatalf("expected second resolution via exact, got %s", second.Method)
	}
}

func TestResolve_JunkDropped(t *testing.T) {
	ix := testIndex(nil)
	creator := &fakeCreator{}
	r := New(ix, creator)

	for _, name := range []string{"On Tuesday the", "12345", "a@b.com", "AB", ""} {
		_, err := r.Resolve(context.Background(), name)
		if !errors.Is(err, ErrJunk) {
			t.Fatalf("expected ErrJunk for %q, got %v", name, err)
		}
	}
	if len(creator.created) != 0 {
		t.Fatalf("expected no entities created for junk, got %+v", creator.created)
	}
}

func TestSimilarityThreshold(t *testing.T) {
	if got := SimilarityThreshold("short name"); got != SimilarityThresholdShort {
		t.Fatalf("expected short threshold, got %v", got)
	}
	if got := SimilarityThreshold("a much longer name"); got != SimilarityThresholdLong {
		t.Fatalf("expected long threshold, got %v", got)
	}
}

func TestClassifyName(t *testing.T) {
	cases := []struct {
		name string
		want common.EntityClass
	}{
		{"Jeffrey Epstein", common.ClassPerson},
		{"Jean-Luc Brunel", common.ClassPerson},
		{"Ludwig van Beethoven", common.ClassPerson},
		{"Deutsche Bank AG", common.ClassOrganization},
		{"Victoria's Secret Company", common.ClassOrganization},
		{"Clinton Foundation", common.ClassOrganization},
		{"Little St. James Island", common.ClassLocation},
		{"Palm Beach County", common.ClassLocation},
		{"mystery", common.ClassUnknown},
		{"lowercase name", common.ClassUnknown},
	}

	for _, c := range cases {
		if got := ClassifyName(c.name); got != c.want {
			t.Fatalf("ClassifyName(%q) = %s, want %s", c.name, got, c.want)
		}
	}
}
