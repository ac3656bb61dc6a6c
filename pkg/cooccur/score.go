// Package cooccur turns per-document resolved mention lists into additive
// relationship-edge deltas. Scoring is pure so a dry run reports exactly
// what a live run would write.
package cooccur

import (
	"math"
	"sort"
	"strconv"

	"github.com/caseframe/backend/pkg/common"
)

// Empirical caps from the source archive, kept configurable rather than
// re-derived. Documents with fewer than two distinct entities have no pair
// to score; documents above the cap are almost always bulk lists or
// indexes whose pairwise co-occurrence is combinatorial noise.
const (
	MinEntitiesPerDocument = 2
	MaxEntitiesPerDocument = 80

	// ProximityWindow is the character distance within which two same-page
	// mentions earn the proximity bonus.
	ProximityWindow = 500

	proximityBonus = 2.0
	baseCap        = 3

	confidenceFloor = 0.5
	confidenceCeil  = 0.99
	sigmoidDivisor  = 6.0
)

// RelationshipType is the edge type produced by document co-occurrence.
const RelationshipType = "co_occurrence"

// documentTypeBonus reflects that some document classes carry stronger
// relational signal: shared presence on a flight log or a wire transfer
// says more than shared presence in a news clipping.
var documentTypeBonus = map[string]float64{
	"financial":     3,
	"flight_log":    3,
	"court_filing":  2,
	"deposition":    2,
	"communication": 2,
	"contact_book":  2,
	"news":          1,
}

const defaultTypeBonus = 1.0

// DocumentTypeBonus returns the relational-signal bonus for an evidence
// type, falling back to the generic bonus for unlisted types.
func DocumentTypeBonus(evidenceType string) float64 {
	if bonus, ok := documentTypeBonus[evidenceType]; ok {
		return bonus
	}
	return defaultTypeBonus
}

// ResolvedMention is one canonical-entity occurrence inside the document
// being scored.
type ResolvedMention struct {
	EntityID   int64
	PageNumber int
	Position   int
}

// EdgeDelta is the additive contribution of one document to one edge. The
// key is canonical: SourceID < TargetID always, so co-occurrence of (a,b)
// and (b,a) address the same stored edge.
type EdgeDelta struct {
	SourceID    int64
	TargetID    int64
	Type        string
	DocumentID  int64
	WeightDelta float64
	Confidence  float64
	RiskDelta   float64
	Log         common.EdgeLog
}

// ScoreDocument enumerates the unordered pairs of distinct entities in one
// document and computes their edge deltas. Documents outside the
// [MinEntitiesPerDocument, MaxEntitiesPerDocument] range yield nothing.
func ScoreDocument(doc common.DocumentMeta, mentions []ResolvedMention) []EdgeDelta {
	byEntity := make(map[int64][]ResolvedMention)
	for _, m := range mentions {
		byEntity[m.EntityID] = append(byEntity[m.EntityID], m)
	}

	distinct := len(byEntity)
	if distinct < MinEntitiesPerDocument || distinct > MaxEntitiesPerDocument {
		return nil
	}

	ids := make([]int64, 0, distinct)
	for id := range byEntity {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	base := 1 + float64(min(baseCap, distinct-1))
	typeBonus := DocumentTypeBonus(doc.EvidenceType)
	riskDelta := doc.EvidentiaryRisk + 0.5*typeBonus

	deltas := make([]EdgeDelta, 0, distinct*(distinct-1)/2)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			prox := 0.0
			if withinProximity(byEntity[ids[i]], byEntity[ids[j]]) {
				prox = proximityBonus
			}

			weightDelta := base + prox + typeBonus + doc.RiskRating
			log := common.EdgeLog{
				Base:      base,
				Proximity: prox,
				TypeBonus: typeBonus,
				RedFlag:   doc.RiskRating,
				Weight:    weightDelta,
				Risk:      riskDelta,
			}

			deltas = append(deltas, EdgeDelta{
				SourceID:    ids[i],
				TargetID:    ids[j],
				Type:        RelationshipType,
				DocumentID:  doc.ID,
				WeightDelta: weightDelta,
				Confidence:  Confidence(weightDelta),
				RiskDelta:   riskDelta,
				Log:         log,
			})
		}
	}

	return deltas
}

// withinProximity reports whether any mention of a and any mention of b sit
// on the same page within ProximityWindow character positions.
func withinProximity(a, b []ResolvedMention) bool {
	for _, ma := range a {
		if ma.PageNumber == 0 {
			continue
		}
		for _, mb := range b {
			if mb.PageNumber != ma.PageNumber {
				continue
			}
			if absInt(ma.Position-mb.Position) <= ProximityWindow {
				return true
			}
		}
	}
	return false
}

// Confidence is the smooth, bounded transform of a weight delta: it
// saturates instead of growing without bound.
func Confidence(weightDelta float64) float64 {
	sig := 1 / (1 + math.Exp(-weightDelta/sigmoidDivisor))
	return math.Min(confidenceCeil, math.Max(confidenceFloor, sig))
}

// ProvenanceKey is the metadata-log key for a document's contribution.
func ProvenanceKey(documentID int64) string {
	return strconv.FormatInt(documentID, 10)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
