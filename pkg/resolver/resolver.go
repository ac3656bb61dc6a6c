package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/caseframe/backend/pkg/common"
	"github.com/caseframe/backend/pkg/namekit"
)

// Empirically chosen in the source archive; kept as named constants rather
// than re-derived. Shorter strings need the stricter ratio because a single
// edit is proportionally larger.
const (
	SimilarityThresholdLong  = 0.90
	SimilarityThresholdShort = 0.85
	longNameRunes            = 10

	aliasConfidence = 0.98
	ocrConfidence   = 0.95
)

// ErrJunk marks a raw name rejected by the junk classifier; the mention is
// dropped, not created.
var ErrJunk = errors.New("junk name")

// Method identifies which stage of the cascade produced a resolution.
type Method string

const (
	MethodExact    Method = "exact"
	MethodAlias    Method = "alias"
	MethodPhonetic Method = "phonetic"
	MethodOCR      Method = "ocr_corrected"
	MethodCreated  Method = "created"
)

// Resolution is the outcome of resolving one raw name.
type Resolution struct {
	EntityID   int64
	Method     Method
	Confidence float64
	Created    bool
}

// EntityCreator persists a new entity and returns its id. The store
// implements it; tests use an in-memory counter.
type EntityCreator interface {
	CreateEntity(ctx context.Context, displayName, normalizedName string, class common.EntityClass) (int64, error)
}

// Resolver maps raw extracted names onto canonical entity ids via the
// matching cascade: exact, alias table, phonetic bucket + edit distance,
// OCR-correction retry, then creation. First hit wins.
type Resolver struct {
	index   *Index
	creator EntityCreator
}

func New(index *Index, creator EntityCreator) *Resolver {
	return &Resolver{index: index, creator: creator}
}

// Resolve runs the cascade for rawName. Resolving the same name twice
// against an unchanged index yields the same id both times: a created
// entity is added to the index before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (Resolution, error) {
	trimmed := strings.TrimSpace(rawName)
	if trimmed == "" {
		return Resolution{}, fmt.Errorf("%w: empty name", ErrJunk)
	}
	if namekit.IsJunk(trimmed) {
		return Resolution{}, ErrJunk
	}

	norm := namekit.Casefold(trimmed)
	if norm == "" {
		return Resolution{}, ErrJunk
	}

	if id, ok := r.index.Exact(norm); ok {
		return Resolution{EntityID: id, Method: MethodExact, Confidence: 1.0}, nil
	}

	if canonical, ok := r.index.Alias(norm); ok {
		if id, ok := r.index.Exact(namekit.Casefold(canonical)); ok {
			return Resolution{EntityID: id, Method: MethodAlias, Confidence: aliasConfidence}, nil
		}
	}

	if id, sim, ok := r.matchPhonetic(trimmed, norm); ok {
		return Resolution{EntityID: id, Method: MethodPhonetic, Confidence: sim}, nil
	}

	if corrected, changed := namekit.OCRCorrect(trimmed); changed {
		if id, ok := r.index.Exact(namekit.Casefold(corrected)); ok {
			return Resolution{EntityID: id, Method: MethodOCR, Confidence: ocrConfidence}, nil
		}
	}

	// New identity, always under the original spelling; a guessed OCR
	// correction must never fabricate one.
	id, err := r.creator.CreateEntity(ctx, trimmed, norm, common.ClassUnknown)
	if err != nil {
		return Resolution{}, fmt.Errorf("create entity for %q: %w", trimmed, err)
	}
	r.index.Add(common.Entity{ID: id, DisplayName: trimmed, NormalizedName: norm, Class: common.ClassUnknown})

	return Resolution{EntityID: id, Method: MethodCreated, Confidence: 1.0, Created: true}, nil
}

// matchPhonetic scores every candidate in the raw name's phonetic bucket
// and accepts the best one at or above the length-dependent threshold.
// Ties go to the lower (older) entity id.
func (r *Resolver) matchPhonetic(trimmed, norm string) (int64, float64, bool) {
	candidates := r.index.Bucket(namekit.PhoneticKey(trimmed))
	if len(candidates) == 0 {
		return 0, 0, false
	}

	threshold := SimilarityThreshold(norm)
	bestID := int64(0)
	bestSim := -1.0

	for _, cand := range candidates {
		sim := namekit.Similarity(norm, cand.Normalized)
		if sim < threshold {
			continue
		}
		if sim > bestSim || (sim == bestSim && cand.ID < bestID) {
			bestID = cand.ID
			bestSim = sim
		}
	}

	if bestSim < 0 {
		return 0, 0, false
	}
	return bestID, bestSim, true
}

// SimilarityThreshold returns the acceptance threshold for a normalized
// name of the given length.
func SimilarityThreshold(norm string) float64 {
	if utf8.RuneCountInString(norm) > longNameRunes {
		return SimilarityThresholdLong
	}
	return SimilarityThresholdShort
}
