package model

import "time"

// RelationshipType classifies graph edges.
type RelationshipType string

const (
	RelationshipSupports    RelationshipType = "supports"
	RelationshipContradicts RelationshipType = "contradicts"
	RelationshipInvolves    RelationshipType = "involves"
	RelationshipCites       RelationshipType = "cites"
	RelationshipSupersedes  RelationshipType = "supersedes"
)

// TemporalValidity bounds the period during which a relationship holds.
// End is nil for relationships still in force.
type TemporalValidity struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Relationship is a directed edge between two entities. Endpoints are id
// references, never pointers, so cyclic structures stay representable.
type Relationship struct {
	ID           string           `json:"id"`
	FromEntityID string           `json:"from_entity_id"`
	ToEntityID   string           `json:"to_entity_id"`
	Type         RelationshipType `json:"type"`
	Confidence   float64          `json:"confidence"`
	Validity     TemporalValidity `json:"validity"`
	EvidenceRefs []string         `json:"evidence_refs,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
