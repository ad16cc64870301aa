package model

import "time"

// EntityType classifies knowledge graph entities.
type EntityType string

const (
	EntityTypeParty    EntityType = "party"
	EntityTypeFact     EntityType = "fact"
	EntityTypeEvent    EntityType = "event"
	EntityTypeDocument EntityType = "document"
	EntityTypeIssue    EntityType = "issue"
	EntityTypeCitation EntityType = "citation"
)

// Provenance records where an entity observation came from.
type Provenance struct {
	Source string `json:"source"`
	// Foundational marks higher-trust channels (intake drafts, attorney notes).
	// Foundational entities receive a one-time confidence boost at ingestion.
	Foundational bool `json:"foundational"`
}

// TemporalContext bounds the period during which an entity's facts hold.
type TemporalContext struct {
	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// AttributeRevision preserves a superseded attribute value. Entities are never
// destructively updated; conflicting observations accumulate as history.
type AttributeRevision struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Entity is a node in the knowledge graph.
type Entity struct {
	ID           string              `json:"id"`
	Type         EntityType          `json:"type"`
	Name         string              `json:"name"`
	Attributes   map[string]string   `json:"attributes"`
	History      []AttributeRevision `json:"history,omitempty"`
	Confidence   float64             `json:"confidence"`
	Provenance   Provenance          `json:"provenance"`
	Temporal     *TemporalContext    `json:"temporal,omitempty"`
	Jurisdiction string              `json:"jurisdiction,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// EntityCandidate is an observation proposed for ingestion, before scoring
// and identity resolution.
type EntityCandidate struct {
	Type         EntityType        `json:"type"`
	Name         string            `json:"name"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Provenance   Provenance        `json:"provenance"`
	Temporal     *TemporalContext  `json:"temporal,omitempty"`
	Jurisdiction string            `json:"jurisdiction,omitempty"`

	// Scoring inputs observed at extraction time. MatterJurisdiction is the
	// governing jurisdiction of the session the observation came from; the
	// jurisdiction-match factor scores only candidates that match it.
	SourceCredibility  float64 `json:"source_credibility"`
	EvidenceCount      int     `json:"evidence_count"`
	RecencyYears       float64 `json:"recency_years"`
	MatterJurisdiction string  `json:"matter_jurisdiction,omitempty"`
}
