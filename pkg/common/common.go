package common

import "time"

// EntityClass labels what kind of real-world identity an entity resolves to.
// New entities start as ClassUnknown and are narrowed by the classification
// pass; an already-classified entity is never overwritten.
type EntityClass string

const (
	ClassPerson       EntityClass = "person"
	ClassOrganization EntityClass = "organization"
	ClassLocation     EntityClass = "location"
	ClassUnknown      EntityClass = "unknown"
)

// Entity is the single authoritative record for one real-world identity.
//
// MentionCount caches COUNT(entity_mentions WHERE entity_id = id) and is
// recomputed from mention rows after every merge; it is never a source of
// truth. RiskScore is derived from the documents the entity appears in.
type Entity struct {
	ID             int64       `json:"id"`
	DisplayName    string      `json:"display_name"`
	NormalizedName string      `json:"normalized_name"`
	Class          EntityClass `json:"entity_class"`
	MentionCount   int         `json:"mention_count"`
	RiskScore      float64     `json:"risk_score"`
}

// Mention is one observed occurrence of an entity in one document. Mentions
// are owned by their entity: a merge repoints them, a true entity deletion
// removes them in the same transaction. PageNumber and Position are zero
// when the extractor did not report them.
type Mention struct {
	ID         int64   `json:"id"`
	EntityID   int64   `json:"entity_id"`
	DocumentID int64   `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Position   int     `json:"position_in_text"`
	Confidence float64 `json:"confidence"`
	Snippet    string  `json:"context_snippet"`
}

// RawMention is an unresolved name occurrence staged by the external
// extraction pipeline. The engine makes no assumption about RawName beyond
// "it is a string".
type RawMention struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	RawName    string `json:"raw_name"`
	PageNumber int    `json:"page_number"`
	Position   int    `json:"position_in_text"`
	Snippet    string `json:"context_snippet"`
}

// DocumentMeta is the read-only document lookup the aggregator scores
// against. The documents table belongs to the archive's web layer; the
// engine only reads it.
type DocumentMeta struct {
	ID              int64     `json:"id"`
	EvidenceType    string    `json:"evidence_type"`
	RiskRating      float64   `json:"risk_rating"`
	EvidentiaryRisk float64   `json:"evidentiary_risk"`
	DocumentDate    time.Time `json:"document_date"`
}

// Edge is an undirected weighted relationship between two canonical
// entities, keyed by (min(source,target), max(source,target), type). Weight
// is a monotonically non-decreasing additive accumulator; Provenance records
// the per-document breakdown of how the weight was composed.
type Edge struct {
	ID         int64              `json:"id"`
	SourceID   int64              `json:"source_id"`
	TargetID   int64              `json:"target_id"`
	Type       string             `json:"relationship_type"`
	Weight     float64            `json:"weight"`
	Confidence float64            `json:"confidence"`
	Proximity  float64            `json:"proximity_score"`
	RiskScore  float64            `json:"risk_score"`
	Provenance map[string]EdgeLog `json:"metadata"`
}

// EdgeLog is one document's contribution to an edge, kept in the edge
// metadata so the current weight is always explainable without recomputing.
type EdgeLog struct {
	Base      float64 `json:"base"`
	Proximity float64 `json:"proximity"`
	TypeBonus float64 `json:"type_bonus"`
	RedFlag   float64 `json:"red_flag"`
	Weight    float64 `json:"weight"`
	Risk      float64 `json:"risk"`
}

// MergeReport summarizes one executed merge.
type MergeReport struct {
	SurvivorID        int64   `json:"survivor_id"`
	MergedIDs         []int64 `json:"merged_ids"`
	SkippedIDs        []int64 `json:"skipped_ids"`
	MentionsRepointed int     `json:"mentions_repointed"`
	EdgesRepointed    int     `json:"edges_repointed"`
	EdgesCombined     int     `json:"edges_combined"`
	MentionCount      int     `json:"mention_count"`
}

// RunStatus is the terminal disposition of an engine run.
type RunStatus string

const (
	RunComputing RunStatus = "computing"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// PlannedUpsert is one edge write a dry run would have applied.
type PlannedUpsert struct {
	SourceID    int64   `json:"source_id"`
	TargetID    int64   `json:"target_id"`
	Type        string  `json:"relationship_type"`
	DocumentID  int64   `json:"document_id"`
	WeightDelta float64 `json:"weight_delta"`
	Confidence  float64 `json:"confidence"`
	RiskDelta   float64 `json:"risk_delta"`
}

// RunSummary is the record every run ends with, persisted to engine_runs.
// FailurePoint names the stage and batch a partial or failed run stopped at
// so the next invocation can resume from store state. PlannedUpserts is
// only filled on dry runs and is not persisted; it is the inspection
// output a dry run exists for.
type RunSummary struct {
	RunID              string          `json:"run_id"`
	Status             RunStatus       `json:"status"`
	DryRun             bool            `json:"dry_run"`
	MentionsProcessed  int             `json:"mentions_processed"`
	MentionsSkipped    int             `json:"mentions_skipped"`
	EntitiesCreated    int             `json:"entities_created"`
	EntitiesMerged     int             `json:"entities_merged"`
	EntitiesClassified int             `json:"entities_classified"`
	EdgesCreated       int             `json:"edges_created"`
	EdgesUpdated       int             `json:"edges_updated"`
	PlannedUpserts     []PlannedUpsert `json:"planned_upserts,omitempty"`
	FailurePoint       string          `json:"failure_point,omitempty"`
	Error              string          `json:"error,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
}
