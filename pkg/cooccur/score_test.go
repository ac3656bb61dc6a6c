package cooccur

import (
	"math"
	"testing"

	"github.com/caseframe/backend/pkg/common"
)

func TestScoreDocument_WeightFormula(t *testing.T) {
	// Three distinct entities, one pair on the same page within the
	// proximity window: base = 1 + min(3, 2) = 3, proximity = 2.
	doc := common.DocumentMeta{
		ID:              10,
		EvidenceType:    "financial",
		RiskRating:      1,
		EvidentiaryRisk: 0.5,
	}
	mentions := []ResolvedMention{
		{EntityID: 1, PageNumber: 4, Position: 100},
		{EntityID: 2, PageNumber: 4, Position: 400},
		{EntityID: 3, PageNumber: 9, Position: 50},
	}

	deltas := ScoreDocument(doc, mentions)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(deltas))
	}

	typeBonus := DocumentTypeBonus("financial")
	wantClose := 3.0 + 2 + typeBonus + doc.RiskRating
	wantFar := 3.0 + 0 + typeBonus + doc.RiskRating
	wantRisk := doc.EvidentiaryRisk + 0.5*typeBonus

	for _, d := range deltas {
		want := wantFar
		if d.SourceID == 1 && d.TargetID == 2 {
			want = wantClose
		}
		if d.WeightDelta != want {
			t.Fatalf("pair (%d,%d): weight %v, want %v", d.SourceID, d.TargetID, d.WeightDelta, want)
		}
		if d.RiskDelta != wantRisk {
			t.Fatalf("pair (%d,%d): risk %v, want %v", d.SourceID, d.TargetID, d.RiskDelta, wantRisk)
		}
		if d.Log.Base != 3 || d.Log.TypeBonus != typeBonus || d.Log.RedFlag != doc.RiskRating {
			t.Fatalf("pair (%d,%d): unexpected provenance log %+v", d.SourceID, d.TargetID, d.Log)
		}
	}
}

func TestScoreDocument_CanonicalPairOrder(t *testing.T) {
	doc := common.DocumentMeta{ID: 1, EvidenceType: "news"}
	forward := ScoreDocument(doc, []ResolvedMention{
		{EntityID: 5, PageNumber: 1, Position: 0},
		{EntityID: 2, PageNumber: 1, Position: 10},
	})
	backward := ScoreDocument(doc, []ResolvedMention{
		{EntityID: 2, PageNumber: 1, Position: 10},
		{EntityID: 5, PageNumber: 1, Position: 0},
	})

	if len(forward) != 1 || len(backward) != 1 {
		t.Fatalf("expected 1 pair each, got %d and %d", len(forward), len(backward))
	}
	if forward[0].SourceID != 2 || forward[0].TargetID != 5 {
		t.Fatalf("expected canonical key (2,5), got (%d,%d)", forward[0].SourceID, forward[0].TargetID)
	}
	if forward[0].SourceID != backward[0].SourceID || forward[0].TargetID != backward[0].TargetID {
		t.Fatal("expected mention order not to change the edge key")
	}
}

func TestScoreDocument_EntityCountBounds(t *testing.T) {
	doc := common.DocumentMeta{ID: 1, EvidenceType: "news"}

	if deltas := ScoreDocument(doc, []ResolvedMention{{EntityID: 1}}); len(deltas) != 0 {
		t.Fatalf("expected no edges for a single entity, got %d", len(deltas))
	}

	crowded := make([]ResolvedMention, 0, 90)
	for i := 0; i < 90; i++ {
		crowded = append(crowded, ResolvedMention{EntityID: int64(i + 1), PageNumber: 1, Position: i})
	}
	if deltas := ScoreDocument(doc, crowded); len(deltas) != 0 {
		t.Fatalf("expected zero edges above the %d-entity cap, got %d", MaxEntitiesPerDocument, len(deltas))
	}

	atCap := crowded[:MaxEntitiesPerDocument]
	if deltas := ScoreDocument(doc, atCap); len(deltas) != MaxEntitiesPerDocument*(MaxEntitiesPerDocument-1)/2 {
		t.Fatalf("expected full pair set at the cap, got %d", len(deltas))
	}
}

func TestScoreDocument_DuplicateMentionsCollapse(t *testing.T) {
	doc := common.DocumentMeta{ID: 1, EvidenceType: "news"}
	deltas := ScoreDocument(doc, []ResolvedMention{
		{EntityID: 1, PageNumber: 1, Position: 0},
		{EntityID: 1, PageNumber: 2, Position: 900},
		{EntityID: 1, PageNumber: 3, Position: 2000},
		{EntityID: 2, PageNumber: 7, Position: 0},
	})

	if len(deltas) != 1 {
		t.Fatalf("expected repeat mentions to dedupe to one pair, got %d", len(deltas))
	}
	// base counts distinct entities, not mentions
	if deltas[0].Log.Base != 1+1 {
		t.Fatalf("expected base 2 for two distinct entities, got %v", deltas[0].Log.Base)
	}
}

func TestScoreDocument_ProximityRequiresSamePage(t *testing.T) {
	doc := common.DocumentMeta{ID: 1, EvidenceType: "news"}

	samePageFar := ScoreDocument(doc, []ResolvedMention{
		{EntityID: 1, PageNumber: 1, Position: 0},
		{EntityID: 2, PageNumber: 1, Position: ProximityWindow + 1},
	})
	if samePageFar[0].Log.Proximity != 0 {
		t.Fatalf("expected no bonus beyond the window, got %v", samePageFar[0].Log.Proximity)
	}

	differentPages := ScoreDocument(doc, []ResolvedMention{
		{EntityID: 1, PageNumber: 1, Position: 0},
		{EntityID: 2, PageNumber: 2, Position: 0},
	})
	if differentPages[0].Log.Proximity != 0 {
		t.Fatalf("expected no bonus across pages, got %v", differentPages[0].Log.Proximity)
	}

	boundary := ScoreDocument(doc, []ResolvedMention{
		{EntityID: 1, PageNumber: 1, Position: 0},
		{EntityID: 2, PageNumber: 1, Position: ProximityWindow},
	})
	if boundary[0].Log.Proximity != proximityBonus {
		t.Fatalf("expected bonus at the window boundary, got %v", boundary[0].Log.Proximity)
	}
}

func TestConfidence_Bounds(t *testing.T) {
	if got := Confidence(0); got != confidenceFloor {
		t.Fatalf("expected floor at zero weight, got %v", got)
	}
	if got := Confidence(1000); got != confidenceCeil {
		t.Fatalf("expected ceiling for huge weight, got %v", got)
	}

	want := 1 / (1 + math.Exp(-7.0/6.0))
	if got := Confidence(7); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected sigmoid value %v, got %v", want, got)
	}
}

func TestDocumentTypeBonus_Fallback(t *testing.T) {
	if DocumentTypeBonus("financial") <= DocumentTypeBonus("unknown_type") {
		t.Fatal("expected financial documents to outweigh generic ones")
	}
	if DocumentTypeBonus("unknown_type") != defaultTypeBonus {
		t.Fatal("expected unlisted types to take the default bonus")
	}
}
